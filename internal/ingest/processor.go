package ingest

import (
	"strings"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// Processor decodes JSON records that may span several lines. Lines are
// accumulated until the braces of an object balance out.
type Processor struct {
	sink RecordSink

	// JSON accumulation for multi-line JSON support
	jsonBuffer   strings.Builder
	jsonDepth    int
	inJSONObject bool
	source       string
}

// NewProcessor creates a multi-line JSON processor. sink may be nil.
func NewProcessor(sink RecordSink) *Processor {
	return &Processor{sink: sink}
}

func (p *Processor) Name() string { return ProcessorModeJSON }

// ProcessEnvelope consumes one line. It returns nil while an object is
// still being accumulated or for blank lines.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	trimmed := strings.TrimSpace(env.Line)

	if !p.inJSONObject {
		if trimmed == "" {
			return nil
		}
		if !strings.HasPrefix(trimmed, "{") {
			return p.decode(env.Source, trimmed)
		}
		p.inJSONObject = true
		p.jsonBuffer.Reset()
		p.jsonDepth = 0
		p.source = env.Source
	}

	p.jsonBuffer.WriteString(env.Line)
	p.jsonBuffer.WriteString("\n")
	p.jsonDepth += CountJSONDepth(env.Line)

	if p.jsonDepth > 0 {
		return nil
	}
	complete := strings.TrimSpace(p.jsonBuffer.String())
	source := p.source
	p.resetJSONAccumulation()
	return p.decode(source, complete)
}

// Flush returns the result of a pending incomplete object, if any.
func (p *Processor) Flush() *ProcessResult {
	if !p.inJSONObject {
		return nil
	}
	pending := strings.TrimSpace(p.jsonBuffer.String())
	source := p.source
	p.resetJSONAccumulation()
	return p.decode(source, pending)
}

func (p *Processor) decode(source, text string) *ProcessResult {
	rec, err := DecodeRecord(text)
	if err != nil {
		return &ProcessResult{Source: source, Err: err}
	}
	if p.sink != nil {
		p.sink.Add(rec)
	}
	return &ProcessResult{Record: rec, Source: source}
}

// CountJSONDepth counts the net change in JSON nesting depth for a line.
func CountJSONDepth(line string) int {
	depth := 0
	inString := false
	escaped := false

	for _, char := range line {
		if escaped {
			escaped = false
			continue
		}

		switch char {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
			}
		}
	}

	return depth
}

// resetJSONAccumulation resets the JSON accumulation state.
func (p *Processor) resetJSONAccumulation() {
	p.inJSONObject = false
	p.jsonDepth = 0
	p.jsonBuffer.Reset()
	p.source = ""
}
