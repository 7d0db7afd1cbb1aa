package geo

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// Enrich resolves the distinct IPs in an anomaly's evidence. At most
// concurrency lookups run at once. IPs the resolver does not know are
// left out of the result.
func Enrich(ctx context.Context, a model.Anomaly, r model.GeoResolver, concurrency int) (map[string]model.Location, error) {
	return ResolveAll(ctx, evidenceIPs(a), r, concurrency)
}

// ResolveAll resolves ips with bounded concurrency.
func ResolveAll(ctx context.Context, ips []string, r model.GeoResolver, concurrency int) (map[string]model.Location, error) {
	if concurrency <= 0 {
		concurrency = model.DefaultGeoResolveConcurrent
	}

	var mu sync.Mutex
	out := make(map[string]model.Location, len(ips))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, ip := range ips {
		g.Go(func() error {
			loc, ok, err := r.Resolve(ctx, ip)
			if err != nil {
				return fmt.Errorf("geo: resolve %s: %w", ip, err)
			}
			if !ok {
				return nil
			}
			mu.Lock()
			out[ip] = loc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// evidenceIPs returns the distinct non-empty IPs of a's evidence in order
// of first appearance.
func evidenceIPs(a model.Anomaly) []string {
	seen := make(map[string]struct{})
	var ips []string
	for _, r := range a.RelatedLogs {
		if r.IP == "" {
			continue
		}
		if _, ok := seen[r.IP]; ok {
			continue
		}
		seen[r.IP] = struct{}{}
		ips = append(ips, r.IP)
	}
	return ips
}
