package ingest

import (
	"fmt"
	"strings"

	"github.com/tinytelemetry/accesslens/internal/model"
)

const (
	// ProcessorModeJSON accepts single-line and pretty-printed JSON objects.
	ProcessorModeJSON = "json"
	// ProcessorModeNDJSON decodes every line on its own.
	ProcessorModeNDJSON = "ndjson"
)

// RecordSink receives decoded records.
type RecordSink interface {
	Add(model.LogRecord)
}

// EnvelopeProcessor consumes source-tagged ingest lines and emits records.
type EnvelopeProcessor interface {
	Name() string
	ProcessEnvelope(model.IngestEnvelope) *ProcessResult
}

// ProcessResult holds the outcome of one complete input object.
type ProcessResult struct {
	Record model.LogRecord
	Source string
	Err    error
}

// NewEnvelopeProcessor creates the processor for mode. An empty mode
// selects ProcessorModeJSON.
func NewEnvelopeProcessor(mode string, sink RecordSink) (EnvelopeProcessor, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ProcessorModeJSON:
		return NewProcessor(sink), nil
	case ProcessorModeNDJSON:
		return NewLineProcessor(sink), nil
	default:
		return nil, fmt.Errorf("ingest: unknown processor mode %q", mode)
	}
}
