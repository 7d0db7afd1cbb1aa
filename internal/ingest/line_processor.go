package ingest

import (
	"strings"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// LineProcessor decodes every line as one complete JSON record. It keeps
// no state between lines and is safe for concurrent use when its sink is.
type LineProcessor struct {
	sink RecordSink
}

// NewLineProcessor creates a line-oriented processor. sink may be nil.
func NewLineProcessor(sink RecordSink) *LineProcessor {
	return &LineProcessor{sink: sink}
}

func (p *LineProcessor) Name() string { return ProcessorModeNDJSON }

// ProcessEnvelope decodes one line. Blank lines yield nil.
func (p *LineProcessor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	if strings.TrimSpace(env.Line) == "" {
		return nil
	}
	rec, err := DecodeRecord(env.Line)
	if err != nil {
		return &ProcessResult{Source: env.Source, Err: err}
	}
	if p.sink != nil {
		p.sink.Add(rec)
	}
	return &ProcessResult{Record: rec, Source: env.Source}
}
