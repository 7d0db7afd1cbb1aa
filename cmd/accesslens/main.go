package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// GetVersionInfo returns the current version and commit information.
func GetVersionInfo() (string, string) {
	return version, commit
}

// flagKeys maps command-line flags onto config keys. A flag that is set
// explicitly wins over the config file and the environment.
var flagKeys = map[string]string{
	"input":            "input",
	"input-format":     "input-format",
	"window":           "window",
	"anchor":           "window-anchor",
	"format":           "format",
	"metrics-textfile": "metrics-textfile",
	"geo-cache":        "geo-cache",
	"db-path":          "db-path",
}

func main() {
	var (
		configPath  string
		showVersion bool
		flaggedOnly bool
	)

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/accesslens/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.BoolVar(&flaggedOnly, "flagged", false, "records: only print records cited by an anomaly")
	flag.String("input", "", "access log file of JSON records (- or empty for stdin)")
	flag.String("input-format", defaultInputFormat, "input framing: json or ndjson")
	flag.String("window", defaultWindow, "time window: day, week, month, all or RFC3339..RFC3339")
	flag.String("anchor", defaultAnchor, "relative window anchor: wall or latest")
	flag.String("format", defaultFormat, "output format: text, json or yaml")
	flag.String("metrics-textfile", "", "write engine metrics to this file in Prometheus text format")
	flag.String("geo-cache", "", "JSON file mapping IPs to locations")
	flag.String("db-path", "", "DuckDB file for the sql command (default in-memory)")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Printf("accesslens - Access Log Analytics\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	overrides := make(map[string]string)
	flag.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = f.Value.String()
		}
	})

	cfg, err := loadConfig(configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.FlaggedOnly = flaggedOnly

	command := commandReport
	args := flag.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, command, args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: accesslens [flags] [report|anomalies|records|sql [query]]\n\n")
	fmt.Fprintf(out, "Commands:\n")
	fmt.Fprintf(out, "  report     traffic summary and detected anomalies (default)\n")
	fmt.Fprintf(out, "  anomalies  detected anomalies with evidence\n")
	fmt.Fprintf(out, "  records    loaded records with anomaly flags\n")
	fmt.Fprintf(out, "  sql        read-only SQL over the loaded records; no query prints the schema\n\n")
	fmt.Fprintf(out, "Flags:\n")
	flag.PrintDefaults()
}
