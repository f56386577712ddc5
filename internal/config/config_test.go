package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:8190" {
		t.Fatalf("BindAddr = %q; want 127.0.0.1:8190", cfg.BindAddr)
	}
	if cfg.MinBars != 10 || cfg.ZoomIn != 0.85 || cfg.ZoomOut != 1.15 {
		t.Fatalf("viewport defaults = %g/%g/%g; want 10/0.85/1.15", cfg.MinBars, cfg.ZoomIn, cfg.ZoomOut)
	}
	if cfg.FrameInterval() != 16*time.Millisecond {
		t.Fatalf("FrameInterval() = %v; want 16ms", cfg.FrameInterval())
	}
	if cfg.CDPEnabled {
		t.Fatal("CDPEnabled = true; want false by default")
	}
	if got := cfg.GetCDPURL(); got != "http://127.0.0.1:9220" {
		t.Fatalf("GetCDPURL() = %q", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VIEWSYNC_LOG_LEVEL", "DEBUG")
	t.Setenv("VIEWSYNC_MIN_BARS", "20")
	t.Setenv("VIEWSYNC_ZOOM_IN", "0.5")
	t.Setenv("VIEWSYNC_CDP_ENABLED", "true")
	t.Setenv("VIEWSYNC_EVAL_TIMEOUT_MS", "10")
	t.Setenv("VIEWSYNC_RIGHT_OFFSET", "not-a-number")
	t.Setenv("CHROMIUM_CDP_PORT", "9333")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q; want debug", cfg.LogLevel)
	}
	if cfg.MinBars != 20 || cfg.ZoomIn != 0.5 || !cfg.CDPEnabled {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.EvalTimeout() != time.Second {
		t.Fatalf("EvalTimeout() = %v; want clamped to 1s", cfg.EvalTimeout())
	}
	if cfg.RightOffset != 0 {
		t.Fatalf("RightOffset = %d; want default on parse failure", cfg.RightOffset)
	}
	if got := cfg.GetCDPURL(); got != "http://127.0.0.1:9333" {
		t.Fatalf("GetCDPURL() = %q", got)
	}
}

func TestLoadRejectsBadZoom(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VIEWSYNC_ZOOM_OUT", "0.9")
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil; want zoom out validation error")
	}
}

func TestLoadChartTabs(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "tabs.yaml")
	if err := os.WriteFile(good, []byte("tabs:\n  - url: http://localhost:5173/chart/a\n  - url: http://localhost:5173/chart/b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadChartTabs(good)
	if err != nil {
		t.Fatalf("LoadChartTabs() error = %v", err)
	}
	if urls := cfg.URLs(); len(urls) != 2 || urls[1] != "http://localhost:5173/chart/b" {
		t.Fatalf("URLs() = %v", urls)
	}

	if _, err := LoadChartTabs(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("LoadChartTabs(missing) error = %v; want os.ErrNotExist", err)
	}
	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("tabs: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChartTabs(empty); err == nil {
		t.Fatal("LoadChartTabs(empty) error = nil")
	}
	nourl := filepath.Join(dir, "nourl.yaml")
	if err := os.WriteFile(nourl, []byte("tabs:\n  - url: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChartTabs(nourl); err == nil {
		t.Fatal("LoadChartTabs(nourl) error = nil")
	}
}
