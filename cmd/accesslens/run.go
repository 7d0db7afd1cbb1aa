package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/accesslens/internal/duckdb"
	"github.com/tinytelemetry/accesslens/internal/engine"
	"github.com/tinytelemetry/accesslens/internal/geo"
	"github.com/tinytelemetry/accesslens/internal/ingest"
	"github.com/tinytelemetry/accesslens/internal/logsource"
	"github.com/tinytelemetry/accesslens/internal/model"
	"github.com/tinytelemetry/accesslens/internal/window"
)

const (
	commandReport    = "report"
	commandAnomalies = "anomalies"
	commandRecords   = "records"
	commandSQL       = "sql"
)

// app holds what every command needs after the input has been loaded.
type app struct {
	cfg      appConfig
	log      zerolog.Logger
	out      io.Writer
	engine   *engine.Engine
	window   model.Window
	records  []model.LogRecord
	stats    ingest.Stats
	resolver model.GeoResolver
}

// run loads the input, executes command and writes its output to out.
func run(ctx context.Context, cfg appConfig, command string, args []string, out io.Writer) error {
	logger, cleanupLogger := newLogger(cfg)
	defer cleanupLogger()

	w, err := model.ParseWindow(cfg.Window)
	if err != nil {
		return err
	}
	anchor, err := engine.ParseAnchor(cfg.WindowAnchor)
	if err != nil {
		return err
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	reg := prometheus.NewRegistry()
	eng := engine.New(engine.Config{
		Thresholds:    cfg.Rules,
		Anchor:        anchor,
		Location:      loc,
		TopPathsLimit: cfg.TopPathsLimit,
		Logger:        &logger,
		Metrics:       engine.NewMetrics(reg),
	})

	records, stats, err := loadInput(ctx, cfg, logger)
	if err != nil {
		return err
	}
	eng.Load(records)
	logger.Info().
		Str("input", inputName(cfg.Input)).
		Int("records", eng.Len()).
		Int("skipped", stats.Skipped).
		Str("window", w.String()).
		Msg("input loaded")
	logger.Debug().Interface("rules", eng.Thresholds()).Msg("detection thresholds")

	a := &app{
		cfg:     cfg,
		log:     logger,
		out:     out,
		engine:  eng,
		window:  w,
		records: records,
		stats:   stats,
	}
	if cfg.GeoCache != "" {
		fr, err := geo.LoadFileResolver(cfg.GeoCache)
		if err != nil {
			return err
		}
		a.resolver = geo.NewCachingResolver(fr, cfg.GeoCacheTTL, defaultGeoCacheSize)
	}

	switch command {
	case commandReport:
		err = a.report(ctx)
	case commandAnomalies:
		err = a.anomalies(ctx)
	case commandRecords:
		err = a.recordList()
	case commandSQL:
		err = a.sql(strings.TrimSpace(strings.Join(args, " ")))
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return err
	}

	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func loadInput(ctx context.Context, cfg appConfig, logger zerolog.Logger) ([]model.LogRecord, ingest.Stats, error) {
	src, err := logsource.Open(ctx, cfg.Input, logsource.Config{Logger: &logger})
	if err != nil {
		return nil, ingest.Stats{}, err
	}
	proc, err := ingest.NewEnvelopeProcessor(cfg.InputFormat, nil)
	if err != nil {
		src.Stop()
		return nil, ingest.Stats{}, err
	}
	return ingest.Collect(ctx, src, proc, logger)
}

func inputName(path string) string {
	if path == "" || path == "-" {
		return "stdin"
	}
	return path
}

// report is the dashboard: summary statistics plus anomalies.
type report struct {
	Summary   model.Summary `json:"summary" yaml:"summary"`
	Anomalies []anomalyView `json:"anomalies" yaml:"anomalies"`
	Ingest    ingest.Stats  `json:"ingest" yaml:"ingest"`
}

// anomalyView is an anomaly with the locations of its evidence IPs.
type anomalyView struct {
	model.Anomaly `yaml:",inline"`
	Locations     map[string]model.Location `json:"locations,omitempty" yaml:"locations,omitempty"`
}

func (a *app) report(ctx context.Context) error {
	summary, err := a.engine.Summary(ctx, a.window)
	if err != nil {
		return err
	}
	views, err := a.detect(ctx)
	if err != nil {
		return err
	}
	return render(a.out, a.cfg.Format, report{Summary: summary, Anomalies: views, Ingest: a.stats})
}

func (a *app) anomalies(ctx context.Context) error {
	views, err := a.detect(ctx)
	if err != nil {
		return err
	}
	return render(a.out, a.cfg.Format, views)
}

// detect runs detection for the configured window and attaches locations
// when a geo cache is configured.
func (a *app) detect(ctx context.Context) ([]anomalyView, error) {
	found := a.engine.DetectAnomalies(a.window)
	views := make([]anomalyView, 0, len(found))
	for _, an := range found {
		v := anomalyView{Anomaly: an}
		if a.resolver != nil {
			locs, err := geo.Enrich(ctx, an, a.resolver, a.cfg.GeoConcurrency)
			if err != nil {
				return nil, err
			}
			if len(locs) > 0 {
				v.Locations = locs
			}
		}
		views = append(views, v)
	}
	return views, nil
}

func (a *app) recordList() error {
	a.engine.DetectAnomalies(a.window)
	if a.cfg.FlaggedOnly {
		return render(a.out, a.cfg.Format, a.engine.FlaggedRecords())
	}
	return render(a.out, a.cfg.Format, a.engine.Records())
}

// storeOverview describes the SQL mirror when no query is given.
type storeOverview struct {
	Schema   string                   `json:"schema" yaml:"schema"`
	Tables   map[string]int64         `json:"tables" yaml:"tables"`
	Window   string                   `json:"window" yaml:"window"`
	Requests int64                    `json:"requests" yaml:"requests"`
	Visitors int64                    `json:"visitors" yaml:"visitors"`
	Bytes    int64                    `json:"bytes" yaml:"bytes"`
	Status   model.StatusDistribution `json:"status" yaml:"status"`
	TopPaths []model.PathCount        `json:"topPaths" yaml:"topPaths"`
	// Evidence counts the stored evidence rows of each mirrored anomaly.
	Evidence map[string]int `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// sql mirrors the loaded records and the window's anomalies into DuckDB
// and runs a read-only query against them.
func (a *app) sql(query string) error {
	store, err := duckdb.NewStore(a.cfg.DBPath,
		duckdb.WithQueryTimeout(a.cfg.QueryTimeout),
		duckdb.WithLogger(a.log),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	if err := store.Reset(); err != nil {
		return err
	}
	anomalies := a.engine.DetectAnomalies(a.window)
	if err := store.InsertRecords(a.engine.Records()); err != nil {
		return err
	}
	if err := store.InsertAnomalies(anomalies); err != nil {
		return err
	}

	if query != "" {
		rows, err := store.ExecuteQuery(query)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		return render(a.out, a.cfg.Format, queryRows(rows))
	}

	tables, err := store.TableRowCounts()
	if err != nil {
		return err
	}
	opts := a.queryOpts()
	overview := storeOverview{
		Schema: store.GetSchemaDescription(),
		Tables: tables,
		Window: a.window.String(),
	}
	if overview.Requests, err = store.TotalRequests(opts); err != nil {
		return err
	}
	if overview.Visitors, err = store.UniqueVisitors(opts); err != nil {
		return err
	}
	if overview.Bytes, err = store.TotalBytes(opts); err != nil {
		return err
	}
	if overview.Status, err = store.StatusDistribution(opts); err != nil {
		return err
	}
	if overview.TopPaths, err = store.TopPaths(a.cfg.TopPathsLimit, opts); err != nil {
		return err
	}
	for _, an := range anomalies {
		evidence, err := store.AnomalyEvidence(an.ID)
		if err != nil {
			return err
		}
		if overview.Evidence == nil {
			overview.Evidence = make(map[string]int, len(anomalies))
		}
		overview.Evidence[an.ID] = len(evidence)
	}
	return render(a.out, a.cfg.Format, overview)
}

// queryOpts translates the window into store bounds using the same
// reference time the engine uses.
func (a *app) queryOpts() duckdb.QueryOpts {
	now := time.Now()
	if a.cfg.WindowAnchor == string(engine.AnchorLatest) {
		if latest, ok := window.Latest(a.records); ok {
			now = latest
		}
	}
	start, end, ok := window.Bounds(a.window, now)
	if !ok {
		return duckdb.QueryOpts{}
	}
	return duckdb.QueryOpts{FromMillis: start, ToMillis: end}
}
