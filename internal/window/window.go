// Package window selects the records that fall inside a time window.
package window

import (
	"math"
	"time"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// Bounds returns the inclusive [start, end] of w in milliseconds, relative
// to now for day/week/month. Relative windows have no upper bound, so end
// is math.MaxInt64 for them. ok is false for the all window.
func Bounds(w model.Window, now time.Time) (start, end int64, ok bool) {
	switch w.Kind {
	case model.WindowDay, model.WindowWeek, model.WindowMonth:
		return now.Add(-w.Span()).UnixMilli(), math.MaxInt64, true
	case model.WindowRange:
		return w.Start.UnixMilli(), w.End.UnixMilli(), true
	default:
		return 0, 0, false
	}
}

// Filter returns the records of w, relative to now. The all window returns
// records unchanged; every other window returns a new slice that keeps the
// input order.
func Filter(records []model.LogRecord, w model.Window, now time.Time) []model.LogRecord {
	start, end, ok := Bounds(w, now)
	if !ok {
		return records
	}
	out := make([]model.LogRecord, 0, len(records))
	for _, r := range records {
		if r.Timestamp >= start && r.Timestamp <= end {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the time of the newest record, or zero time and false for
// an empty set. Records need not be sorted.
func Latest(records []model.LogRecord) (time.Time, bool) {
	if len(records) == 0 {
		return time.Time{}, false
	}
	maxTS := records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp > maxTS {
			maxTS = r.Timestamp
		}
	}
	return time.UnixMilli(maxTS), true
}

// Earliest returns the time of the oldest record, or zero time and false
// for an empty set.
func Earliest(records []model.LogRecord) (time.Time, bool) {
	if len(records) == 0 {
		return time.Time{}, false
	}
	minTS := records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp < minTS {
			minTS = r.Timestamp
		}
	}
	return time.UnixMilli(minTS), true
}
