package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/accesslens/internal/logsource"
	"github.com/tinytelemetry/accesslens/internal/model"
)

// Stats summarizes one collection pass.
type Stats struct {
	Lines   int `json:"lines" yaml:"lines"`
	Records int `json:"records" yaml:"records"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

type flusher interface {
	Flush() *ProcessResult
}

// Collect drains src through proc until the source is exhausted or ctx is
// done. Invalid lines are counted as skipped and logged at debug level.
// The source is stopped before Collect returns.
func Collect(ctx context.Context, src logsource.LogSource, proc EnvelopeProcessor, log zerolog.Logger) ([]model.LogRecord, Stats, error) {
	defer src.Stop()

	var (
		records []model.LogRecord
		stats   Stats
	)
	handle := func(res *ProcessResult) {
		if res == nil {
			return
		}
		if res.Err != nil {
			stats.Skipped++
			log.Debug().Err(res.Err).Str("source", res.Source).Int("line", stats.Lines).Msg("ingest: skipped line")
			return
		}
		stats.Records++
		records = append(records, res.Record)
	}

	lines := src.Lines()
	for {
		select {
		case <-ctx.Done():
			return records, stats, fmt.Errorf("ingest: collect from %s: %w", src.Name(), ctx.Err())
		case env, ok := <-lines:
			if !ok {
				if f, ok := proc.(flusher); ok {
					handle(f.Flush())
				}
				log.Debug().
					Str("source", src.Name()).
					Int("lines", stats.Lines).
					Int("records", stats.Records).
					Int("skipped", stats.Skipped).
					Msg("ingest: source drained")
				if err := src.Err(); err != nil {
					return records, stats, fmt.Errorf("ingest: read %s: %w", src.Name(), err)
				}
				return records, stats, nil
			}
			stats.Lines++
			handle(proc.ProcessEnvelope(env))
		}
	}
}
