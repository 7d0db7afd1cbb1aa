package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/accesslens/internal/detect"
	"github.com/tinytelemetry/accesslens/internal/model"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateHome(t)

	cfg, err := loadConfig("", nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.InputFormat != defaultInputFormat {
		t.Errorf("InputFormat = %q, want %q", cfg.InputFormat, defaultInputFormat)
	}
	if cfg.Window != "all" || cfg.WindowAnchor != "wall" || cfg.Format != formatText {
		t.Errorf("window/anchor/format = %q/%q/%q, want all/wall/text", cfg.Window, cfg.WindowAnchor, cfg.Format)
	}
	if cfg.TopPathsLimit != model.DefaultTopPathsLimit {
		t.Errorf("TopPathsLimit = %d, want %d", cfg.TopPathsLimit, model.DefaultTopPathsLimit)
	}
	if cfg.Rules != detect.DefaultThresholds() {
		t.Errorf("Rules = %+v, want defaults %+v", cfg.Rules, detect.DefaultThresholds())
	}
	if cfg.QueryTimeout != defaultQueryTimeout {
		t.Errorf("QueryTimeout = %v, want %v", cfg.QueryTimeout, defaultQueryTimeout)
	}
}

func TestLoadConfigFile(t *testing.T) {
	home := isolateHome(t)

	path := filepath.Join(home, "accesslens.yml")
	content := strings.Join([]string{
		"window: week",
		"window-anchor: latest",
		"format: json",
		"top-paths-limit: 10",
		"geo-cache-ttl: 5m",
		"db-path: ~/data/mirror.duckdb",
		"rules:",
		"  burst-threshold: 120",
		"  not-found-threshold: 3",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path, nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ConfigPath != path {
		t.Errorf("ConfigPath = %q, want %q", cfg.ConfigPath, path)
	}
	if cfg.Window != "week" || cfg.WindowAnchor != "latest" || cfg.Format != formatJSON {
		t.Errorf("window/anchor/format = %q/%q/%q", cfg.Window, cfg.WindowAnchor, cfg.Format)
	}
	if cfg.TopPathsLimit != 10 {
		t.Errorf("TopPathsLimit = %d, want 10", cfg.TopPathsLimit)
	}
	if cfg.GeoCacheTTL != 5*time.Minute {
		t.Errorf("GeoCacheTTL = %v, want 5m", cfg.GeoCacheTTL)
	}
	if want := filepath.Join(home, "data", "mirror.duckdb"); cfg.DBPath != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want)
	}
	if cfg.Rules.Burst != 120 || cfg.Rules.NotFoundThreshold != 3 {
		t.Errorf("Rules = %+v, want burst 120 and not-found 3", cfg.Rules)
	}
	if cfg.Rules.ErrorStorm != model.DefaultErrorStormThreshold {
		t.Errorf("ErrorStorm = %d, want default %d", cfg.Rules.ErrorStorm, model.DefaultErrorStormThreshold)
	}
}

func TestLoadConfigEnvAndOverrides(t *testing.T) {
	isolateHome(t)
	t.Setenv("ACCESSLENS_RULES_BURST_THRESHOLD", "80")
	t.Setenv("ACCESSLENS_WINDOW", "month")
	t.Setenv("ACCESSLENS_LOG_LEVEL", "debug")

	cfg, err := loadConfig("", map[string]string{"window": "day", "format": "yaml"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Rules.Burst != 80 {
		t.Errorf("Rules.Burst = %d, want 80", cfg.Rules.Burst)
	}
	if cfg.Window != "day" {
		t.Errorf("Window = %q, want flag override day", cfg.Window)
	}
	if cfg.Format != formatYAML {
		t.Errorf("Format = %q, want yaml", cfg.Format)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		env       map[string]string
		wantErr   string
	}{
		{name: "format", overrides: map[string]string{"format": "xml"}, wantErr: "Format"},
		{name: "anchor", overrides: map[string]string{"window-anchor": "noon"}, wantErr: "WindowAnchor"},
		{name: "input format", overrides: map[string]string{"input-format": "csv"}, wantErr: "InputFormat"},
		{name: "window", overrides: map[string]string{"window": "fortnight"}, wantErr: "invalid window"},
		{name: "reversed range", overrides: map[string]string{"window": "2024-05-02T00:00:00Z..2024-05-01T00:00:00Z"}, wantErr: "invalid window"},
		{name: "timezone", env: map[string]string{"ACCESSLENS_TIMEZONE": "Mars/Olympus"}, wantErr: "invalid timezone"},
		{name: "threshold", env: map[string]string{"ACCESSLENS_RULES_ERROR_STORM_THRESHOLD": "0"}, wantErr: "ErrorStorm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateHome(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig("", tt.overrides)
			if err == nil {
				t.Fatal("loadConfig succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	home := isolateHome(t)
	path := filepath.Join(home, "broken.yml")
	if err := os.WriteFile(path, []byte("window: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path, nil); err == nil {
		t.Fatal("loadConfig succeeded on malformed file, want error")
	}
}
