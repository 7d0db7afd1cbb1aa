package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/tinytelemetry/accesslens/internal/model"
)

var testRef = time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)

func newRecord(ip, path string, status int, size int64, ts time.Time) model.LogRecord {
	return model.LogRecord{
		IP:        ip,
		Timestamp: ts.UnixMilli(),
		Request:   model.Request{Method: "GET", Path: path, ProtocolVersion: "HTTP/1.1"},
		Status:    status,
		Size:      size,
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
	}
}

func TestScalarStatsEmpty(t *testing.T) {
	t.Parallel()

	if got := UniqueVisitors(nil); got != 0 {
		t.Errorf("UniqueVisitors(nil) = %d, want 0", got)
	}
	if got := TotalRequests(nil); got != 0 {
		t.Errorf("TotalRequests(nil) = %d, want 0", got)
	}
	if got := TotalBytes(nil); got != 0 {
		t.Errorf("TotalBytes(nil) = %d, want 0", got)
	}
	if got := TopPaths(nil, 5); len(got) != 0 {
		t.Errorf("TopPaths(nil) = %v, want empty", got)
	}
	if got := StatusDistribution(nil); got.Total() != 0 {
		t.Errorf("StatusDistribution(nil) = %+v, want zero", got)
	}
}

func TestScalarStats(t *testing.T) {
	t.Parallel()

	records := []model.LogRecord{
		newRecord("10.0.0.1", "/", 200, 100, testRef),
		newRecord("10.0.0.2", "/", 200, 250, testRef),
		newRecord("10.0.0.1", "/about", 404, 0, testRef),
		newRecord("", "/", 200, 50, testRef),
	}

	if got := UniqueVisitors(records); got != 3 {
		t.Errorf("UniqueVisitors = %d, want 3", got)
	}
	if got := TotalRequests(records); got != len(records) {
		t.Errorf("TotalRequests = %d, want %d", got, len(records))
	}
	if UniqueVisitors(records) > TotalRequests(records) {
		t.Error("unique visitors exceed total requests")
	}
	if got := TotalBytes(records); got != 400 {
		t.Errorf("TotalBytes = %d, want 400", got)
	}
}

func TestTopPaths(t *testing.T) {
	t.Parallel()

	var records []model.LogRecord
	add := func(path string, n int) {
		for i := 0; i < n; i++ {
			records = append(records, newRecord("10.0.0.1", path, 200, 1, testRef))
		}
	}
	add("/b", 2)
	add("/a", 3)
	add("/c", 2)
	add("/d", 1)
	add("/e", 1)
	add("/f", 1)

	got := TopPaths(records, 0)
	want := []model.PathCount{
		{Path: "/a", Count: 3},
		{Path: "/b", Count: 2},
		{Path: "/c", Count: 2},
		{Path: "/d", Count: 1},
		{Path: "/e", Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("TopPaths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TopPaths[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	if got := TopPaths(records, 2); len(got) != 2 {
		t.Errorf("TopPaths(limit=2) returned %d entries", len(got))
	}
	if got := TopPaths(records, 50); len(got) != 6 {
		t.Errorf("TopPaths(limit=50) returned %d entries, want number of distinct paths", len(got))
	}
}

func TestStatusDistribution(t *testing.T) {
	t.Parallel()

	statuses := []int{200, 201, 301, 304, 404, 403, 410, 500, 503, 101, 0, 600}
	records := make([]model.LogRecord, 0, len(statuses))
	for _, s := range statuses {
		records = append(records, newRecord("10.0.0.1", "/", s, 0, testRef))
	}

	got := StatusDistribution(records)
	want := model.StatusDistribution{Success: 2, Redirection: 2, ClientError: 3, ServerError: 2}
	if got != want {
		t.Fatalf("StatusDistribution = %+v, want %+v", got, want)
	}
}

func TestBuckets(t *testing.T) {
	t.Parallel()

	hourly := Buckets(model.Hourly, 24, testRef)
	if len(hourly) != 24 {
		t.Fatalf("expected 24 hourly buckets, got %d", len(hourly))
	}
	if hourly[23].Label != "2024-03-15T18:00" {
		t.Errorf("last hourly label = %q", hourly[23].Label)
	}
	if hourly[0].Label != "2024-03-14T19:00" {
		t.Errorf("first hourly label = %q", hourly[0].Label)
	}

	daily := Buckets(model.Daily, 7, testRef)
	if daily[0].Label != "2024-03-09" || daily[6].Label != "2024-03-15" {
		t.Errorf("daily labels = %q..%q", daily[0].Label, daily[6].Label)
	}

	if got := Buckets(model.Daily, 0, testRef); got != nil {
		t.Errorf("expected no buckets, got %v", got)
	}
}

func TestTimeSeriesIsDense(t *testing.T) {
	t.Parallel()

	records := []model.LogRecord{
		newRecord("10.0.0.1", "/", 200, 10, testRef.Add(-3*time.Hour)),
		newRecord("10.0.0.1", "/", 200, 10, testRef.Add(-40*24*time.Hour)),
	}
	for _, n := range []int{1, 7, 24, 30} {
		got := TimeSeries(records, model.MetricRequests, model.Hourly, n, testRef)
		if len(got) != n {
			t.Errorf("TimeSeries(%d buckets) returned %d", n, len(got))
		}
	}
	got := TimeSeries(nil, model.MetricBytes, model.Daily, 30, testRef)
	if len(got) != 30 {
		t.Fatalf("expected 30 buckets for empty input, got %d", len(got))
	}
	for _, p := range got {
		if p.Value != 0 {
			t.Fatalf("expected zero bucket, got %+v", p)
		}
	}
}

func TestTimeSeriesHourlySumsMatchDaily(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	endOfDay := day.Add(23*time.Hour + 59*time.Minute)
	var records []model.LogRecord
	for i := 0; i < 100; i++ {
		ts := day.Add(time.Duration(i*17) * time.Minute)
		records = append(records, newRecord(fmt.Sprintf("10.0.0.%d", i%7), "/", 200, int64(i), ts))
	}
	// Outside the day on both sides.
	records = append(records,
		newRecord("10.0.0.1", "/", 200, 1000, day.Add(-time.Minute)),
		newRecord("10.0.0.1", "/", 200, 1000, day.Add(24*time.Hour)),
	)

	for _, metric := range []model.SeriesMetric{model.MetricRequests, model.MetricBytes} {
		hourly := TimeSeries(records, metric, model.Hourly, 24, endOfDay)
		daily := TimeSeries(records, metric, model.Daily, 1, endOfDay)

		var sum int64
		for _, p := range hourly {
			sum += p.Value
		}
		if sum != daily[0].Value {
			t.Errorf("%s: hourly sum %d != daily %d", metric, sum, daily[0].Value)
		}
	}
}

func TestTimeSeriesVisitors(t *testing.T) {
	t.Parallel()

	records := []model.LogRecord{
		newRecord("10.0.0.1", "/", 200, 1, testRef),
		newRecord("10.0.0.1", "/", 200, 1, testRef),
		newRecord("10.0.0.2", "/", 200, 1, testRef),
		newRecord("", "/", 200, 1, testRef),
		newRecord("10.0.0.3", "/", 200, 1, testRef.Add(-time.Hour)),
	}
	got := TimeSeries(records, model.MetricVisitors, model.Hourly, 2, testRef)
	if got[0].Value != 1 || got[1].Value != 3 {
		t.Fatalf("visitors = %d,%d want 1,3", got[0].Value, got[1].Value)
	}
}

func TestHourlyBucketsAcrossFallBack(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	// 2024-11-03 01:00 repeats: 05:00Z is EDT, 06:00Z is EST.
	ref := time.Date(2024, 11, 3, 7, 15, 0, 0, time.UTC).In(ny)
	buckets := Buckets(model.Hourly, 4, ref)
	labels := make([]string, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Label
	}
	want := []string{"2024-11-03T00:00", "2024-11-03T01:00", "2024-11-03T01:00", "2024-11-03T02:00"}
	if fmt.Sprint(labels) != fmt.Sprint(want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}

	records := []model.LogRecord{
		newRecord("10.0.0.1", "/", 200, 1, time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC)),
		newRecord("10.0.0.1", "/", 200, 1, time.Date(2024, 11, 3, 6, 30, 0, 0, time.UTC)),
		newRecord("10.0.0.1", "/", 200, 1, time.Date(2024, 11, 3, 6, 45, 0, 0, time.UTC)),
	}
	got := TimeSeries(records, model.MetricRequests, model.Hourly, 4, ref)
	if got[1].Value != 1 || got[2].Value != 2 {
		t.Fatalf("fall-back buckets = %d,%d want 1,2", got[1].Value, got[2].Value)
	}
}

func TestDeviceSeries(t *testing.T) {
	t.Parallel()

	desktop := newRecord("10.0.0.1", "/", 200, 1, testRef)
	mobile := desktop
	mobile.UserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)"
	bot := desktop
	bot.UserAgent = "GPTBot/1.0"

	got := DeviceSeries([]model.LogRecord{desktop, mobile, mobile, bot}, model.Daily, 7, testRef)
	if len(got) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(got))
	}
	last := got[6]
	if last.Desktop != 1 || last.Mobile != 2 || last.Bot != 1 || last.Total() != 4 {
		t.Fatalf("unexpected device point %+v", last)
	}
}

func TestSeriesShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		w         model.Window
		earliest  time.Time
		wantG     model.Granularity
		wantCount int
	}{
		{"day", model.Day, time.Time{}, model.Hourly, 24},
		{"week", model.Week, time.Time{}, model.Daily, 7},
		{"month", model.Month, time.Time{}, model.Daily, 30},
		{"all from earliest", model.AllTime, testRef.AddDate(0, 0, -9), model.Daily, 10},
		{"all empty", model.AllTime, time.Time{}, model.Daily, 1},
		{"short range", model.Between(testRef.Add(-5*time.Hour), testRef), time.Time{}, model.Hourly, 6},
		{"long range", model.Between(testRef.AddDate(0, 0, -4), testRef), time.Time{}, model.Daily, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, n := SeriesShape(tt.w, testRef, tt.earliest)
			if g != tt.wantG || n != tt.wantCount {
				t.Errorf("SeriesShape = (%s, %d), want (%s, %d)", g, n, tt.wantG, tt.wantCount)
			}
		})
	}
}
