// Package aggregate computes traffic statistics over an already filtered
// set of access-log records. Every function is pure and safe for
// concurrent use on shared input.
package aggregate

import (
	"sort"

	"github.com/tinytelemetry/accesslens/internal/logparse"
	"github.com/tinytelemetry/accesslens/internal/model"
)

// UniqueVisitors counts distinct IPs. A missing IP counts as one visitor.
func UniqueVisitors(records []model.LogRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.IP] = struct{}{}
	}
	return len(seen)
}

// TotalRequests is the number of records.
func TotalRequests(records []model.LogRecord) int {
	return len(records)
}

// TotalBytes sums the response sizes.
func TotalBytes(records []model.LogRecord) int64 {
	var total int64
	for _, r := range records {
		total += r.Size
	}
	return total
}

// TopPaths returns the most requested paths, descending by count. Paths
// with equal counts keep the order in which they were first seen. A limit
// of zero or less uses model.DefaultTopPathsLimit.
func TopPaths(records []model.LogRecord, limit int) []model.PathCount {
	if limit <= 0 {
		limit = model.DefaultTopPathsLimit
	}

	index := make(map[string]int)
	counts := make([]model.PathCount, 0)
	for _, r := range records {
		i, ok := index[r.Request.Path]
		if !ok {
			i = len(counts)
			index[r.Request.Path] = i
			counts = append(counts, model.PathCount{Path: r.Request.Path})
		}
		counts[i].Count++
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// StatusDistribution counts records per 2xx/3xx/4xx/5xx class. Records
// of any other class are left out.
func StatusDistribution(records []model.LogRecord) model.StatusDistribution {
	var d model.StatusDistribution
	for _, r := range records {
		switch logparse.StatusClass(r.Status) {
		case 2:
			d.Success++
		case 3:
			d.Redirection++
		case 4:
			d.ClientError++
		case 5:
			d.ServerError++
		}
	}
	return d
}
