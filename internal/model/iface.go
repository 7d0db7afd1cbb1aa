package model

import "context"

// QueryKind names an aggregate query dispatched by the engine.
type QueryKind string

const (
	QueryUniqueVisitors     QueryKind = "unique-visitors"
	QueryTotalRequests      QueryKind = "total-requests"
	QueryTotalBytes         QueryKind = "total-bytes"
	QueryTopPaths           QueryKind = "top-paths"
	QueryStatusDistribution QueryKind = "status-distribution"
	QueryVisitorsSeries     QueryKind = "visitors-series"
	QueryRequestsSeries     QueryKind = "requests-series"
	QueryBytesSeries        QueryKind = "bytes-series"
	QueryTrafficSeries      QueryKind = "traffic-series"
)

// Aggregates provides read-only, window-scoped traffic statistics.
type Aggregates interface {
	UniqueVisitors(w Window) int
	TotalRequests(w Window) int
	TotalBytes(w Window) int64
	TopPaths(w Window, limit int) []PathCount
	StatusDistribution(w Window) StatusDistribution
	Series(w Window, metric SeriesMetric) []SeriesPoint
	TrafficSeries(w Window) []DevicePoint
	Query(kind QueryKind, w Window) (any, error)
}

// AnomalySource provides detection results and lookups.
type AnomalySource interface {
	DetectAnomalies(w Window) []Anomaly
	Anomalies() []Anomaly
	AnomalyByID(id string) (Anomaly, bool)
}

// Analyzer is the unified contract consumed by presentation and narrative
// collaborators.
type Analyzer interface {
	Aggregates
	AnomalySource
	Records() []LogRecord
}

// GeoResolver maps an IP to a location. Implementations may block on I/O;
// ok is false when the resolver has no data for the IP.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (loc Location, ok bool, err error)
}
