// Package geo adapts IP geolocation collaborators for enriching anomaly
// evidence. Nothing in the analysis core depends on it.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// FileResolver answers lookups from a JSON cache file shaped as
// {"<ip>": {"city": ..., "country": ..., "latitude": ..., "longitude": ...}}.
type FileResolver struct {
	entries map[string]model.Location
}

// LoadFileResolver reads a geo cache file. A missing file yields an empty
// resolver.
func LoadFileResolver(path string) (*FileResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileResolver{entries: map[string]model.Location{}}, nil
		}
		return nil, fmt.Errorf("geo: read %s: %w", path, err)
	}
	entries := make(map[string]model.Location)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("geo: decode %s: %w", path, err)
	}
	return &FileResolver{entries: entries}, nil
}

// NewStaticResolver returns a resolver over a fixed table.
func NewStaticResolver(entries map[string]model.Location) *FileResolver {
	copied := make(map[string]model.Location, len(entries))
	for ip, loc := range entries {
		copied[ip] = loc
	}
	return &FileResolver{entries: copied}
}

// Resolve implements model.GeoResolver.
func (r *FileResolver) Resolve(ctx context.Context, ip string) (model.Location, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Location{}, false, err
	}
	loc, ok := r.entries[ip]
	return loc, ok, nil
}

// Len returns the number of known IPs.
func (r *FileResolver) Len() int {
	return len(r.entries)
}
