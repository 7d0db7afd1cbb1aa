package model

import (
	"fmt"
	"strings"
	"time"
)

// WindowKind names a time window used to scope aggregation and detection.
type WindowKind string

const (
	WindowDay   WindowKind = "day"
	WindowWeek  WindowKind = "week"
	WindowMonth WindowKind = "month"
	WindowAll   WindowKind = "all"
	WindowRange WindowKind = "range"
)

// Window is either a relative window (day/week/month), everything (all),
// or an explicit inclusive [Start, End] range.
type Window struct {
	Kind  WindowKind
	Start time.Time // only for WindowRange
	End   time.Time // only for WindowRange
}

// Relative windows and the unbounded window.
var (
	Day     = Window{Kind: WindowDay}
	Week    = Window{Kind: WindowWeek}
	Month   = Window{Kind: WindowMonth}
	AllTime = Window{Kind: WindowAll}
)

// Between returns an explicit inclusive range window.
func Between(start, end time.Time) Window {
	return Window{Kind: WindowRange, Start: start, End: end}
}

// ParseWindow parses "day", "week", "month", "all" (or "" for all), the
// dashboard aliases "24h", "7d", "30d", and "START..END" with RFC3339 bounds.
func ParseWindow(s string) (Window, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "all":
		return AllTime, nil
	case "day", "24h":
		return Day, nil
	case "week", "7d":
		return Week, nil
	case "month", "30d":
		return Month, nil
	}

	startRaw, endRaw, ok := strings.Cut(s, "..")
	if !ok {
		return Window{}, fmt.Errorf("unknown window %q", s)
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(startRaw))
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(endRaw))
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	if end.Before(start) {
		return Window{}, fmt.Errorf("window end %s is before start %s", endRaw, startRaw)
	}
	return Between(start, end), nil
}

// String returns a stable key for the window. Two windows with the same
// String select the same records for the same anchor time.
func (w Window) String() string {
	if w.Kind == WindowRange {
		return fmt.Sprintf("%d..%d", w.Start.UnixMilli(), w.End.UnixMilli())
	}
	if w.Kind == "" {
		return string(WindowAll)
	}
	return string(w.Kind)
}

// Span returns the length of a relative window, or zero for all/range.
func (w Window) Span() time.Duration {
	switch w.Kind {
	case WindowDay:
		return 24 * time.Hour
	case WindowWeek:
		return 7 * 24 * time.Hour
	case WindowMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Granularity is the width of a time-series bucket.
type Granularity string

const (
	Hourly Granularity = "hour"
	Daily  Granularity = "day"
)

// SeriesMetric selects the value aggregated per bucket.
type SeriesMetric string

const (
	MetricRequests SeriesMetric = "requests"
	MetricBytes    SeriesMetric = "bytes"
	MetricVisitors SeriesMetric = "visitors"
)
