// Package engine is the analysis facade: it owns the canonical record set,
// answers window-scoped aggregate queries and runs anomaly detection at
// most once per window and load.
package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tinytelemetry/accesslens/internal/detect"
	"github.com/tinytelemetry/accesslens/internal/model"
	"github.com/tinytelemetry/accesslens/internal/window"
)

// Anchor selects the reference time of relative windows.
type Anchor string

const (
	// AnchorWall anchors day/week/month to the wall clock at call time.
	AnchorWall Anchor = "wall"
	// AnchorLatest anchors them to the newest loaded record.
	AnchorLatest Anchor = "latest"
)

// ParseAnchor parses "wall" (or "") and "latest".
func ParseAnchor(s string) (Anchor, error) {
	switch Anchor(strings.ToLower(strings.TrimSpace(s))) {
	case "", AnchorWall:
		return AnchorWall, nil
	case AnchorLatest:
		return AnchorLatest, nil
	default:
		return "", fmt.Errorf("engine: unknown window anchor %q", s)
	}
}

// Config configures an Engine. The zero value is usable.
type Config struct {
	Thresholds    detect.Thresholds
	Rules         []detect.Rule
	Anchor        Anchor
	Location      *time.Location
	TopPathsLimit int
	Clock         func() time.Time
	Logger        *zerolog.Logger
	Metrics       *Metrics
}

// Engine is safe for concurrent use. Aggregate queries run in parallel
// with each other and with cached detection reads; detection for a given
// window runs at most once per loaded record set.
type Engine struct {
	mu         sync.RWMutex
	records    []model.LogRecord
	flags      map[int]string
	generation uint64

	cache    *detectionCache
	flight   singleflight.Group
	detector *detect.Detector

	anchor   Anchor
	loc      *time.Location
	topPaths int
	clock    func() time.Time
	log      zerolog.Logger
	metrics  *Metrics
}

var _ model.Analyzer = (*Engine)(nil)

// New creates an empty engine.
func New(cfg Config) *Engine {
	if cfg.Anchor == "" {
		cfg.Anchor = AnchorWall
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.TopPathsLimit <= 0 {
		cfg.TopPathsLimit = model.DefaultTopPathsLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	opts := []detect.Option{detect.WithLogger(logger)}
	if len(cfg.Rules) > 0 {
		opts = append(opts, detect.WithRules(cfg.Rules...))
	}

	return &Engine{
		flags:    make(map[int]string),
		cache:    newDetectionCache(),
		detector: detect.New(cfg.Thresholds, opts...),
		anchor:   cfg.Anchor,
		loc:      cfg.Location,
		topPaths: cfg.TopPathsLimit,
		clock:    cfg.Clock,
		log:      logger,
		metrics:  cfg.Metrics,
	}
}

// Load replaces the record set and invalidates every cached detection
// result. Records are copied; IDs are reassigned in input order and any
// incoming anomaly flags are cleared.
func (e *Engine) Load(records []model.LogRecord) {
	owned := make([]model.LogRecord, len(records))
	for i, r := range records {
		r.ID = i
		r.IsAnomaly = false
		r.Note = ""
		owned[i] = r
	}

	e.mu.Lock()
	e.records = owned
	e.flags = make(map[int]string)
	e.generation++
	gen := e.generation
	e.cache.reset()
	e.mu.Unlock()

	e.metrics.observeLoad(len(owned))
	e.log.Debug().Int("records", len(owned)).Uint64("generation", gen).Msg("engine: loaded records")
}

// snapshot is a consistent read view of the engine state.
type snapshot struct {
	records    []model.LogRecord
	generation uint64
	now        time.Time
}

// snapshot must be called without e.mu held. The returned records slice
// is shared and must not be modified.
func (e *Engine) snapshot() snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshot{
		records:    e.records,
		generation: e.generation,
		now:        e.nowLocked(),
	}
}

// nowLocked returns the reference time for relative windows.
func (e *Engine) nowLocked() time.Time {
	if e.anchor == AnchorLatest {
		if t, ok := window.Latest(e.records); ok {
			return t.In(e.loc)
		}
	}
	return e.clock().In(e.loc)
}

// filtered returns the records of w and the reference time used.
func (e *Engine) filtered(w model.Window) ([]model.LogRecord, time.Time) {
	s := e.snapshot()
	return window.Filter(s.records, w, s.now), s.now
}

// DetectAnomalies returns the anomalies of w. The pipeline runs once per
// window until the next Load; later calls return the cached result and
// concurrent calls share one run. Every record cited as evidence is
// flagged.
func (e *Engine) DetectAnomalies(w model.Window) []model.Anomaly {
	key := w.String()

	e.mu.RLock()
	gen := e.generation
	e.mu.RUnlock()

	if cached, ok := e.cache.get(key, gen); ok {
		e.metrics.observeCacheHit()
		e.log.Debug().Str("window", key).Msg("engine: detection cache hit")
		return cloneAnomalies(cached)
	}

	v, _, _ := e.flight.Do(fmt.Sprintf("%d/%s", gen, key), func() (any, error) {
		return e.detect(w, key), nil
	})
	return cloneAnomalies(v.([]model.Anomaly))
}

// detect runs the pipeline for w unless a result for the current
// generation was stored in the meantime.
func (e *Engine) detect(w model.Window, key string) []model.Anomaly {
	s := e.snapshot()
	if cached, ok := e.cache.get(key, s.generation); ok {
		e.metrics.observeCacheHit()
		return cached
	}

	runID := uuid.NewString()
	start := time.Now()
	in := window.Filter(s.records, w, s.now)
	res := e.detector.Run(in)
	elapsed := time.Since(start)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.generation != s.generation {
		// A Load replaced the records mid-run; the result describes the old
		// set and is neither cached nor applied.
		e.log.Debug().Str("run_id", runID).Str("window", key).Msg("engine: discarded stale detection run")
		return res.Anomalies
	}

	for id, reason := range res.Flags {
		if _, ok := e.flags[id]; !ok {
			e.flags[id] = reason
		}
	}
	anomalies := make([]model.Anomaly, len(res.Anomalies))
	perRule := make(map[string]int)
	for i, a := range res.Anomalies {
		a.RelatedLogs = e.withFlagsLocked(a.RelatedLogs)
		anomalies[i] = a
		perRule[a.Rule]++
	}
	e.cache.set(key, anomalies, s.generation)

	e.metrics.observeRun(elapsed, perRule)
	e.log.Debug().
		Str("run_id", runID).
		Str("window", key).
		Int("records", len(in)).
		Int("anomalies", len(anomalies)).
		Int("flagged_total", len(e.flags)).
		Dur("elapsed", elapsed).
		Msg("engine: detection run")
	return anomalies
}

// withFlagsLocked returns a copy of records with the flag table applied.
// e.mu must be held.
func (e *Engine) withFlagsLocked(records []model.LogRecord) []model.LogRecord {
	out := make([]model.LogRecord, len(records))
	for i, r := range records {
		if note, ok := e.flags[r.ID]; ok {
			r.IsAnomaly = true
			r.Note = note
		}
		out[i] = r
	}
	return out
}

// Anomalies returns the most recent detection result for the current
// record set, or nil before the first detection.
func (e *Engine) Anomalies() []model.Anomaly {
	e.mu.RLock()
	gen := e.generation
	e.mu.RUnlock()
	return cloneAnomalies(e.cache.latest(gen))
}

// AnomalyByID looks up an anomaly detected over the current record set.
// The most recent result wins; otherwise every cached window is searched.
func (e *Engine) AnomalyByID(id string) (model.Anomaly, bool) {
	e.mu.RLock()
	gen := e.generation
	e.mu.RUnlock()

	a, ok := e.cache.find(id, gen)
	if !ok {
		return model.Anomaly{}, false
	}
	return cloneAnomaly(a), true
}

// Records returns a copy of the record set with anomaly flags applied.
func (e *Engine) Records() []model.LogRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.withFlagsLocked(e.records)
}

// FlaggedRecords returns copies of the records flagged so far, in load
// order.
func (e *Engine) FlaggedRecords() []model.LogRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.LogRecord, 0, len(e.flags))
	for _, r := range e.records {
		if note, ok := e.flags[r.ID]; ok {
			r.IsAnomaly = true
			r.Note = note
			out = append(out, r)
		}
	}
	return out
}

// Thresholds returns the effective rule thresholds.
func (e *Engine) Thresholds() detect.Thresholds {
	return e.detector.Thresholds()
}

// Len returns the number of loaded records.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}

func cloneAnomaly(a model.Anomaly) model.Anomaly {
	if a.RelatedLogs != nil {
		a.RelatedLogs = append([]model.LogRecord(nil), a.RelatedLogs...)
	}
	return a
}

func cloneAnomalies(in []model.Anomaly) []model.Anomaly {
	if in == nil {
		return nil
	}
	out := make([]model.Anomaly, len(in))
	for i, a := range in {
		out[i] = cloneAnomaly(a)
	}
	return out
}
