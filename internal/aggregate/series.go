package aggregate

import (
	"time"

	"github.com/tinytelemetry/accesslens/internal/logparse"
	"github.com/tinytelemetry/accesslens/internal/model"
)

const (
	hourLabelLayout = "2006-01-02T15:00"
	dayLabelLayout  = "2006-01-02"
)

// Bucket is one contiguous time slice of a series.
type Bucket struct {
	Label string
	Start time.Time
}

// Truncate returns the start of the bucket containing t, computed in loc.
// Hourly buckets are cut on elapsed time, so the repeated wall-clock hour
// of a DST fall-back yields two distinct buckets.
func Truncate(t time.Time, g model.Granularity, loc *time.Location) time.Time {
	t = t.In(loc)
	if g == model.Hourly {
		into := time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second +
			time.Duration(t.Nanosecond())
		return t.Add(-into)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Buckets returns count contiguous buckets, oldest first, the last of which
// contains ref. Buckets are computed in ref's location.
func Buckets(g model.Granularity, count int, ref time.Time) []Bucket {
	if count <= 0 {
		return nil
	}
	loc := ref.Location()
	last := Truncate(ref, g, loc)
	layout := dayLabelLayout
	if g == model.Hourly {
		layout = hourLabelLayout
	}

	out := make([]Bucket, count)
	for i := range out {
		back := count - 1 - i
		var start time.Time
		if g == model.Hourly {
			start = last.Add(-time.Duration(back) * time.Hour)
		} else {
			start = last.AddDate(0, 0, -back)
		}
		out[i] = Bucket{Label: start.Format(layout), Start: start}
	}
	return out
}

// bucketIndex maps each bucket start to its position in the series.
func bucketIndex(buckets []Bucket) map[int64]int {
	idx := make(map[int64]int, len(buckets))
	for i, b := range buckets {
		idx[b.Start.Unix()] = i
	}
	return idx
}

// TimeSeries aggregates metric into count buckets ending at ref. Every
// bucket is present; empty buckets have value 0. Records outside the
// buckets are ignored.
func TimeSeries(records []model.LogRecord, metric model.SeriesMetric, g model.Granularity, count int, ref time.Time) []model.SeriesPoint {
	buckets := Buckets(g, count, ref)
	idx := bucketIndex(buckets)
	loc := ref.Location()

	values := make([]int64, len(buckets))
	var visitors []map[string]struct{}
	if metric == model.MetricVisitors {
		visitors = make([]map[string]struct{}, len(buckets))
	}

	for _, r := range records {
		i, ok := idx[Truncate(r.Time(), g, loc).Unix()]
		if !ok {
			continue
		}
		switch metric {
		case model.MetricBytes:
			values[i] += r.Size
		case model.MetricVisitors:
			if visitors[i] == nil {
				visitors[i] = make(map[string]struct{})
			}
			visitors[i][r.IP] = struct{}{}
		default:
			values[i]++
		}
	}

	out := make([]model.SeriesPoint, len(buckets))
	for i, b := range buckets {
		v := values[i]
		if visitors != nil {
			v = int64(len(visitors[i]))
		}
		out[i] = model.SeriesPoint{Label: b.Label, Start: b.Start, Value: v}
	}
	return out
}

// DeviceSeries counts requests per device class in count buckets ending
// at ref.
func DeviceSeries(records []model.LogRecord, g model.Granularity, count int, ref time.Time) []model.DevicePoint {
	buckets := Buckets(g, count, ref)
	idx := bucketIndex(buckets)
	loc := ref.Location()

	out := make([]model.DevicePoint, len(buckets))
	for i, b := range buckets {
		out[i] = model.DevicePoint{Label: b.Label, Start: b.Start}
	}
	for _, r := range records {
		i, ok := idx[Truncate(r.Time(), g, loc).Unix()]
		if !ok {
			continue
		}
		switch logparse.ClassifyDevice(r.UserAgent) {
		case model.DeviceBot:
			out[i].Bot++
		case model.DeviceMobile:
			out[i].Mobile++
		default:
			out[i].Desktop++
		}
	}
	return out
}

// SeriesShape picks the granularity and bucket count used to chart w.
// Relative windows use 24 hourly, 7 daily or 30 daily buckets. The all
// window spans from the earliest record's day to ref's day. A range of
// up to 48 hours is hourly, longer ranges are daily.
func SeriesShape(w model.Window, ref, earliest time.Time) (model.Granularity, int) {
	switch w.Kind {
	case model.WindowDay:
		return model.Hourly, 24
	case model.WindowWeek:
		return model.Daily, 7
	case model.WindowMonth:
		return model.Daily, 30
	case model.WindowRange:
		if w.End.Sub(w.Start) <= 48*time.Hour {
			return model.Hourly, spanBuckets(w.Start, w.End, model.Hourly, ref.Location())
		}
		return model.Daily, spanBuckets(w.Start, w.End, model.Daily, ref.Location())
	default:
		if earliest.IsZero() || earliest.After(ref) {
			return model.Daily, 1
		}
		return model.Daily, spanBuckets(earliest, ref, model.Daily, ref.Location())
	}
}

// spanBuckets counts the buckets between the buckets containing from and
// to, inclusive.
func spanBuckets(from, to time.Time, g model.Granularity, loc *time.Location) int {
	first := Truncate(from, g, loc)
	last := Truncate(to, g, loc)
	n := 1
	for cur := first; cur.Before(last); n++ {
		if g == model.Hourly {
			cur = cur.Add(time.Hour)
		} else {
			cur = cur.AddDate(0, 0, 1)
		}
	}
	return n
}
