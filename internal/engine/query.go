package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/accesslens/internal/aggregate"
	"github.com/tinytelemetry/accesslens/internal/model"
	"github.com/tinytelemetry/accesslens/internal/window"
)

// ErrUnknownQuery is returned by Query for an unsupported kind.
var ErrUnknownQuery = errors.New("engine: unknown query kind")

// UniqueVisitors counts distinct IPs in w.
func (e *Engine) UniqueVisitors(w model.Window) int {
	records, _ := e.filtered(w)
	return aggregate.UniqueVisitors(records)
}

// TotalRequests counts the records in w.
func (e *Engine) TotalRequests(w model.Window) int {
	records, _ := e.filtered(w)
	return aggregate.TotalRequests(records)
}

// TotalBytes sums response sizes in w.
func (e *Engine) TotalBytes(w model.Window) int64 {
	records, _ := e.filtered(w)
	return aggregate.TotalBytes(records)
}

// TopPaths returns the most requested paths in w. A limit of zero or less
// uses the configured default.
func (e *Engine) TopPaths(w model.Window, limit int) []model.PathCount {
	if limit <= 0 {
		limit = e.topPaths
	}
	records, _ := e.filtered(w)
	return aggregate.TopPaths(records, limit)
}

// StatusDistribution counts the records of w per status class.
func (e *Engine) StatusDistribution(w model.Window) model.StatusDistribution {
	records, _ := e.filtered(w)
	return aggregate.StatusDistribution(records)
}

// Series returns metric over w as a dense bucketed series.
func (e *Engine) Series(w model.Window, metric model.SeriesMetric) []model.SeriesPoint {
	s := e.snapshot()
	records := window.Filter(s.records, w, s.now)
	g, n, ref := e.seriesShape(w, s, records)
	return aggregate.TimeSeries(records, metric, g, n, ref)
}

// TrafficSeries returns per-device request counts over w.
func (e *Engine) TrafficSeries(w model.Window) []model.DevicePoint {
	s := e.snapshot()
	records := window.Filter(s.records, w, s.now)
	g, n, ref := e.seriesShape(w, s, records)
	return aggregate.DeviceSeries(records, g, n, ref)
}

// seriesShape picks granularity, bucket count and the reference time of
// the newest bucket.
func (e *Engine) seriesShape(w model.Window, s snapshot, records []model.LogRecord) (model.Granularity, int, time.Time) {
	ref := s.now
	if w.Kind == model.WindowRange {
		ref = w.End.In(e.loc)
	}
	earliest, _ := window.Earliest(records)
	if !earliest.IsZero() {
		earliest = earliest.In(e.loc)
	}
	g, n := aggregate.SeriesShape(w, ref, earliest)
	return g, n, ref
}

// Query dispatches kind over w and returns the typed result.
func (e *Engine) Query(kind model.QueryKind, w model.Window) (any, error) {
	switch kind {
	case model.QueryUniqueVisitors:
		return e.UniqueVisitors(w), nil
	case model.QueryTotalRequests:
		return e.TotalRequests(w), nil
	case model.QueryTotalBytes:
		return e.TotalBytes(w), nil
	case model.QueryTopPaths:
		return e.TopPaths(w, 0), nil
	case model.QueryStatusDistribution:
		return e.StatusDistribution(w), nil
	case model.QueryVisitorsSeries:
		return e.Series(w, model.MetricVisitors), nil
	case model.QueryRequestsSeries:
		return e.Series(w, model.MetricRequests), nil
	case model.QueryBytesSeries:
		return e.Series(w, model.MetricBytes), nil
	case model.QueryTrafficSeries:
		return e.TrafficSeries(w), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuery, kind)
	}
}

// Summary computes the dashboard snapshot of w. All parts are computed
// concurrently over the same filtered records.
func (e *Engine) Summary(ctx context.Context, w model.Window) (model.Summary, error) {
	s := e.snapshot()
	records := window.Filter(s.records, w, s.now)
	g, n, ref := e.seriesShape(w, s, records)

	sum := model.Summary{Window: w.String()}
	grp, ctx := errgroup.WithContext(ctx)
	run := func(fn func()) {
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn()
			return nil
		})
	}

	run(func() {
		sum.UniqueVisitors = aggregate.UniqueVisitors(records)
		sum.TotalRequests = aggregate.TotalRequests(records)
		sum.TotalBytes = aggregate.TotalBytes(records)
	})
	run(func() { sum.TopPaths = aggregate.TopPaths(records, e.topPaths) })
	run(func() { sum.Status = aggregate.StatusDistribution(records) })
	run(func() { sum.Visitors = aggregate.TimeSeries(records, model.MetricVisitors, g, n, ref) })
	run(func() { sum.Bytes = aggregate.TimeSeries(records, model.MetricBytes, g, n, ref) })
	run(func() { sum.Traffic = aggregate.DeviceSeries(records, g, n, ref) })

	if err := grp.Wait(); err != nil {
		return model.Summary{}, fmt.Errorf("engine: summary: %w", err)
	}
	return sum, nil
}
