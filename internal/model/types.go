package model

import "time"

// Request is the request line of an access-log entry.
type Request struct {
	Method          string `json:"method" yaml:"method"`
	Path            string `json:"path" yaml:"path"`
	ProtocolVersion string `json:"protocolVersion" yaml:"protocolVersion"`
}

// LogRecord represents a single HTTP access-log entry.
// It is the canonical type for loading, anomaly evidence, and display.
// Records are treated as immutable once loaded; IsAnomaly and Note are
// derived from the engine's flag table when records are handed out.
type LogRecord struct {
	ID        int     `json:"id" yaml:"id"` // load-order index, assigned by the engine
	IP        string  `json:"ip" yaml:"ip"`
	Timestamp int64   `json:"timestamp" yaml:"timestamp"` // milliseconds since epoch
	Request   Request `json:"request" yaml:"request"`
	Status    int     `json:"status" yaml:"status"`
	Size      int64   `json:"size" yaml:"size"`
	UserAgent string  `json:"userAgent" yaml:"userAgent"`
	IsAnomaly bool    `json:"isAnomaly" yaml:"isAnomaly"`
	Note      string  `json:"note,omitempty" yaml:"note,omitempty"`
}

// Time returns the record timestamp as a time.Time in the local zone.
func (r LogRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Anomaly is one flagged suspicious pattern plus the records that caused it.
type Anomaly struct {
	ID          string      `json:"id" yaml:"id"`
	Rule        string      `json:"rule" yaml:"rule"`
	Subject     string      `json:"subject,omitempty" yaml:"subject,omitempty"` // grouping key, e.g. the IP
	Reason      string      `json:"reason" yaml:"reason"`
	Note        string      `json:"note" yaml:"note"`
	RelatedLogs []LogRecord `json:"relatedLogs" yaml:"relatedLogs"`
}

// PathCount represents a request path and its hit count.
type PathCount struct {
	Path  string `json:"path" yaml:"path"`
	Count int    `json:"count" yaml:"count"`
}

// StatusDistribution counts records per HTTP status class.
type StatusDistribution struct {
	Success     int `json:"2xx" yaml:"2xx"`
	Redirection int `json:"3xx" yaml:"3xx"`
	ClientError int `json:"4xx" yaml:"4xx"`
	ServerError int `json:"5xx" yaml:"5xx"`
}

// Total returns the number of classified records.
func (d StatusDistribution) Total() int {
	return d.Success + d.Redirection + d.ClientError + d.ServerError
}

// SeriesPoint is one bucket of a time series.
type SeriesPoint struct {
	Label string    `json:"label" yaml:"label"`
	Start time.Time `json:"start" yaml:"start"`
	Value int64     `json:"value" yaml:"value"`
}

// DeviceClass is the coarse client type derived from a user agent.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceBot     DeviceClass = "bot"
)

// DevicePoint holds per-device request counts for one bucket.
type DevicePoint struct {
	Label   string    `json:"label" yaml:"label"`
	Start   time.Time `json:"start" yaml:"start"`
	Desktop int       `json:"desktop" yaml:"desktop"`
	Mobile  int       `json:"mobile" yaml:"mobile"`
	Bot     int       `json:"bot" yaml:"bot"`
}

// Total returns the bucket's request count across device classes.
func (p DevicePoint) Total() int {
	return p.Desktop + p.Mobile + p.Bot
}

// Summary is the dashboard snapshot for one window.
type Summary struct {
	Window         string             `json:"window" yaml:"window"`
	UniqueVisitors int                `json:"uniqueVisitors" yaml:"uniqueVisitors"`
	TotalRequests  int                `json:"totalRequests" yaml:"totalRequests"`
	TotalBytes     int64              `json:"totalBytes" yaml:"totalBytes"`
	TopPaths       []PathCount        `json:"topPaths" yaml:"topPaths"`
	Status         StatusDistribution `json:"status" yaml:"status"`
	Visitors       []SeriesPoint      `json:"visitors" yaml:"visitors"`
	Bytes          []SeriesPoint      `json:"bytes" yaml:"bytes"`
	Traffic        []DevicePoint      `json:"traffic" yaml:"traffic"`
}

// Location is what a geolocation collaborator knows about an IP.
type Location struct {
	City      string  `json:"city" yaml:"city"`
	Country   string  `json:"country" yaml:"country"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}
