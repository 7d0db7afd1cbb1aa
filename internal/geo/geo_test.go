package geo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinytelemetry/accesslens/internal/model"
)

type countingResolver struct {
	calls atomic.Int32
	table map[string]model.Location
	err   error
	delay time.Duration
}

func (r *countingResolver) Resolve(_ context.Context, ip string) (model.Location, bool, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return model.Location{}, false, r.err
	}
	loc, ok := r.table[ip]
	return loc, ok, nil
}

var berlin = model.Location{City: "Berlin", Country: "Germany", Latitude: 52.52, Longitude: 13.405}

func TestLoadFileResolver(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "geo-cache.json")
	data := `{"10.0.0.1":{"city":"Berlin","country":"Germany","latitude":52.52,"longitude":13.405}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadFileResolver(path)
	if err != nil {
		t.Fatalf("LoadFileResolver: %v", err)
	}
	loc, ok, err := r.Resolve(context.Background(), "10.0.0.1")
	if err != nil || !ok || loc != berlin {
		t.Fatalf("Resolve = %+v, %v, %v", loc, ok, err)
	}
	if _, ok, _ := r.Resolve(context.Background(), "10.0.0.2"); ok {
		t.Fatal("expected miss for unknown ip")
	}
}

func TestLoadFileResolverMissingAndCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := LoadFileResolver(filepath.Join(dir, "missing.json"))
	if err != nil || r.Len() != 0 {
		t.Fatalf("missing file should give empty resolver, got %v, %v", r, err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileResolver(bad); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCachingResolverMemoizes(t *testing.T) {
	t.Parallel()

	next := &countingResolver{table: map[string]model.Location{"10.0.0.1": berlin}, delay: 10 * time.Millisecond}
	c := NewCachingResolver(next, time.Hour, 10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := c.Resolve(context.Background(), "10.0.0.1"); err != nil || !ok {
				t.Errorf("Resolve: ok=%v err=%v", ok, err)
			}
		}()
	}
	wg.Wait()

	if _, ok, _ := c.Resolve(context.Background(), "10.9.9.9"); ok {
		t.Fatal("expected miss")
	}
	if _, ok, _ := c.Resolve(context.Background(), "10.9.9.9"); ok {
		t.Fatal("expected cached miss")
	}
	if got := next.calls.Load(); got > 3 {
		t.Fatalf("upstream called %d times, want at most 3", got)
	}
}

func TestCachingResolverExpiresAndEvicts(t *testing.T) {
	t.Parallel()

	next := &countingResolver{table: map[string]model.Location{}}
	c := NewCachingResolver(next, time.Minute, 4)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	c.Resolve(ctx, "a")
	c.Resolve(ctx, "a")
	if got := next.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	now = now.Add(2 * time.Minute)
	c.Resolve(ctx, "a")
	if got := next.calls.Load(); got != 2 {
		t.Fatalf("expired entry should be refreshed, calls = %d", got)
	}

	for _, ip := range []string{"b", "c", "d", "e", "f"} {
		c.Resolve(ctx, ip)
	}
	if n := c.Len(); n > 4 {
		t.Fatalf("cache grew past max size: %d", n)
	}
}

func TestCachingResolverDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	next := &countingResolver{err: errors.New("lookup failed")}
	c := NewCachingResolver(next, 0, 0)
	for i := 0; i < 2; i++ {
		if _, _, err := c.Resolve(context.Background(), "10.0.0.1"); err == nil {
			t.Fatal("expected error")
		}
	}
	if got := next.calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestEnrich(t *testing.T) {
	t.Parallel()

	next := &countingResolver{table: map[string]model.Location{"10.0.0.1": berlin}}
	a := model.Anomaly{
		ID: "excessive-404s-10.0.0.1",
		RelatedLogs: []model.LogRecord{
			{IP: "10.0.0.1"}, {IP: "10.0.0.1"}, {IP: "10.0.0.2"}, {IP: ""},
		},
	}

	got, err := Enrich(context.Background(), a, next, 2)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(got) != 1 || got["10.0.0.1"] != berlin {
		t.Fatalf("Enrich = %+v", got)
	}
	if calls := next.calls.Load(); calls != 2 {
		t.Fatalf("expected one lookup per distinct ip, got %d", calls)
	}
}

func TestEnrichPropagatesErrors(t *testing.T) {
	t.Parallel()

	next := &countingResolver{err: errors.New("boom")}
	a := model.Anomaly{RelatedLogs: []model.LogRecord{{IP: "10.0.0.1"}}}
	if _, err := Enrich(context.Background(), a, next, 0); err == nil {
		t.Fatal("expected error")
	}
}
