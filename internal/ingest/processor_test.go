package ingest

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/accesslens/internal/logsource"
	"github.com/tinytelemetry/accesslens/internal/model"
)

type recordingSink struct {
	records []model.LogRecord
}

func (s *recordingSink) Add(record model.LogRecord) {
	s.records = append(s.records, record)
}

func TestNewEnvelopeProcessor_DefaultJSON(t *testing.T) {
	t.Parallel()

	p, err := NewEnvelopeProcessor("", nil)
	if err != nil {
		t.Fatalf("NewEnvelopeProcessor returned error: %v", err)
	}
	if p.Name() != ProcessorModeJSON {
		t.Fatalf("processor name = %q, want %q", p.Name(), ProcessorModeJSON)
	}
	if _, ok := p.(*Processor); !ok {
		t.Fatalf("processor type = %T, want *Processor", p)
	}
}

func TestNewEnvelopeProcessor_NDJSON(t *testing.T) {
	t.Parallel()

	p, err := NewEnvelopeProcessor("ndjson", nil)
	if err != nil {
		t.Fatalf("NewEnvelopeProcessor returned error: %v", err)
	}
	if _, ok := p.(*LineProcessor); !ok {
		t.Fatalf("processor type = %T, want *LineProcessor", p)
	}
}

func TestNewEnvelopeProcessor_InvalidMode(t *testing.T) {
	t.Parallel()

	if _, err := NewEnvelopeProcessor("unknown", nil); err == nil {
		t.Fatal("expected error for invalid processor mode")
	}
}

func TestProcessor_MultiLineObject(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(sink)
	lines := []string{
		`{`,
		`  "ip": "10.0.0.1",`,
		`  "timestamp": 1705312245000,`,
		`  "request": {"method": "GET", "path": "/a{b}", "protocolVersion": "HTTP/1.1"},`,
		`  "status": 200`,
		`}`,
	}
	for i, line := range lines {
		res := p.ProcessEnvelope(model.IngestEnvelope{Source: "stdin", Line: line})
		if i < len(lines)-1 {
			if res != nil {
				t.Fatalf("line %d: expected accumulation, got %+v", i, res)
			}
			continue
		}
		if res == nil || res.Err != nil {
			t.Fatalf("expected decoded record, got %+v", res)
		}
		if res.Record.Request.Path != "/a{b}" || res.Source != "stdin" {
			t.Fatalf("unexpected result %+v", res)
		}
	}
	if len(sink.records) != 1 {
		t.Fatalf("sink received %d records, want 1", len(sink.records))
	}
}

func TestProcessor_SingleLineAndGarbage(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil)
	res := p.ProcessEnvelope(model.IngestEnvelope{Line: `{"timestamp":1,"status":200}`})
	if res == nil || res.Err != nil {
		t.Fatalf("expected record, got %+v", res)
	}
	res = p.ProcessEnvelope(model.IngestEnvelope{Line: `127.0.0.1 - - [10/Oct/2023] "GET /"`})
	if res == nil || !errors.Is(res.Err, ErrInvalidRecord) {
		t.Fatalf("expected invalid record, got %+v", res)
	}
	if res := p.ProcessEnvelope(model.IngestEnvelope{Line: "   "}); res != nil {
		t.Fatalf("expected nil for blank line, got %+v", res)
	}
}

func TestProcessor_FlushIncomplete(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil)
	if res := p.ProcessEnvelope(model.IngestEnvelope{Line: `{"timestamp": 1,`}); res != nil {
		t.Fatalf("expected accumulation, got %+v", res)
	}
	res := p.Flush()
	if res == nil || !errors.Is(res.Err, ErrInvalidRecord) {
		t.Fatalf("expected truncated object to be invalid, got %+v", res)
	}
	if p.Flush() != nil {
		t.Fatal("second flush should be empty")
	}
}

func TestCollect(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"ip":"10.0.0.1","timestamp":1000,"request":{"path":"/"},"status":200,"size":10}`,
		`not json`,
		`{"ip":"10.0.0.2","timestamp":2000,"request":{"path":"/x"},"status":700}`,
		`{"ip":"10.0.0.3","timestamp":3000,"request":{"path":"/y"},"status":404}`,
	}, "\n")
	src := logsource.NewReaderSource(context.Background(), "test", strings.NewReader(input))

	records, stats, err := Collect(context.Background(), src, NewLineProcessor(nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if stats.Lines != 4 || stats.Records != 2 || stats.Skipped != 2 {
		t.Fatalf("stats = %+v, want 4 lines, 2 records, 2 skipped", stats)
	}
	if len(records) != 2 || records[0].IP != "10.0.0.1" || records[1].IP != "10.0.0.3" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestCollectCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := logsource.NewReaderSource(context.Background(), "test", strings.NewReader(""))

	_, _, err := Collect(ctx, src, NewProcessor(nil), zerolog.Nop())
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestCollectReportsReadError(t *testing.T) {
	t.Parallel()

	input := `{"ip":"10.0.0.1","timestamp":1000,"request":{"path":"/"},"status":200}` + "\n" + strings.Repeat("x", 512)
	src := logsource.NewReaderSource(context.Background(), "test", strings.NewReader(input), logsource.Config{MaxLineSize: 128})

	records, stats, err := Collect(context.Background(), src, NewLineProcessor(nil), zerolog.Nop())
	if err == nil {
		t.Fatal("Collect returned nil error for an oversized line")
	}
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("error = %v, want wrapping bufio.ErrTooLong", err)
	}
	if len(records) != 1 || stats.Records != 1 {
		t.Fatalf("records before the failure = %d (stats %+v), want 1", len(records), stats)
	}
}
