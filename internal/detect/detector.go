// Package detect runs the heuristic rule pipeline over access-log records
// and reports anomalies together with their evidence.
package detect

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// Result is the output of one pipeline run.
type Result struct {
	Anomalies []model.Anomaly
	// Flags maps the ID of every record cited as evidence to the reason of
	// the first anomaly citing it. The detector never mutates its input;
	// callers apply Flags to the records they own.
	Flags map[int]string
}

// Detector evaluates an ordered rule list. It holds no per-run state and
// is safe for concurrent use.
type Detector struct {
	rules      []Rule
	thresholds Thresholds
	log        zerolog.Logger
}

// Option customizes a Detector.
type Option func(*Detector)

// WithRules replaces the default pipeline.
func WithRules(rules ...Rule) Option {
	return func(d *Detector) {
		d.rules = rules
	}
}

// WithLogger sets the debug logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Detector) {
		d.log = l
	}
}

// New returns a detector with the default rule pipeline. Zero fields of
// th fall back to their defaults.
func New(th Thresholds, opts ...Option) *Detector {
	d := &Detector{
		rules:      DefaultRules(),
		thresholds: th.WithDefaults(),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Thresholds returns the effective thresholds.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Run evaluates every rule over records. Anomalies are ordered by rule,
// then by the first appearance of their IP in records. An anomaly ID
// produced twice keeps its first position and the last result.
func (d *Detector) Run(records []model.LogRecord) Result {
	start := time.Now()
	groups := GroupByIP(records)

	var anomalies []model.Anomaly
	position := make(map[string]int)
	emit := func(a model.Anomaly) {
		if i, ok := position[a.ID]; ok {
			anomalies[i] = a
			return
		}
		position[a.ID] = len(anomalies)
		anomalies = append(anomalies, a)
	}

	for _, rule := range d.rules {
		switch {
		case rule.Global != nil:
			if a, ok := rule.Global(records, d.thresholds); ok {
				emit(a)
			}
		case rule.PerIP != nil:
			for _, g := range groups {
				if a, ok := rule.PerIP(g, d.thresholds); ok {
					emit(a)
				}
			}
		}
	}

	flags := make(map[int]string)
	for _, a := range anomalies {
		for _, r := range a.RelatedLogs {
			if _, ok := flags[r.ID]; !ok {
				flags[r.ID] = a.Reason
			}
		}
	}

	d.log.Debug().
		Int("records", len(records)).
		Int("ip_groups", len(groups)).
		Int("anomalies", len(anomalies)).
		Int("flagged", len(flags)).
		Dur("elapsed", time.Since(start)).
		Msg("detect: pipeline run")

	return Result{Anomalies: anomalies, Flags: flags}
}
