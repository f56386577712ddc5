package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the viewsync service.
type Config struct {
	BindAddr         string
	PortAutoFallback bool
	PortCandidates   string
	LogLevel         string
	LogFile          string

	// Frame loop and viewport defaults
	FrameIntervalMS int
	Resolution      string
	MinBars         float64
	ZoomIn          float64
	ZoomOut         float64
	RightOffset     int
	SimBars         int

	// CDP connection settings; cdp viewports are disabled unless CDPEnabled.
	CDPEnabled    bool
	CDPAddress    string
	CDPPort       int
	TabURLFilter  string
	EvalTimeoutMS int

	// Optional YAML files
	LayoutPath    string
	RelayFeedPath string
	ChartTabsPath string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("VIEWSYNC_BIND_ADDR", "127.0.0.1:8190"),
		PortAutoFallback: getEnvBoolOrDefault("VIEWSYNC_PORT_AUTO_FALLBACK", true),
		PortCandidates:   getEnvOrDefault("VIEWSYNC_PORT_CANDIDATES", "127.0.0.1:8191,127.0.0.1:8192,127.0.0.1:8193"),
		LogLevel:         strings.ToLower(getEnvOrDefault("VIEWSYNC_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("VIEWSYNC_LOG_FILE", "logs/viewsyncd.log"),
		FrameIntervalMS:  getEnvIntOrDefault("VIEWSYNC_FRAME_INTERVAL_MS", 16),
		Resolution:       getEnvOrDefault("VIEWSYNC_RESOLUTION", "1"),
		MinBars:          getEnvFloatOrDefault("VIEWSYNC_MIN_BARS", 10),
		ZoomIn:           getEnvFloatOrDefault("VIEWSYNC_ZOOM_IN", 0.85),
		ZoomOut:          getEnvFloatOrDefault("VIEWSYNC_ZOOM_OUT", 1.15),
		RightOffset:      getEnvIntOrDefault("VIEWSYNC_RIGHT_OFFSET", 0),
		SimBars:          getEnvIntOrDefault("VIEWSYNC_SIM_BARS", 500),
		CDPEnabled:       getEnvBoolOrDefault("VIEWSYNC_CDP_ENABLED", false),
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		TabURLFilter:     getEnvOrDefault("VIEWSYNC_TAB_URL_FILTER", ""),
		EvalTimeoutMS:    getEnvIntOrDefault("VIEWSYNC_EVAL_TIMEOUT_MS", 5000),
		LayoutPath:       getEnvOrDefault("VIEWSYNC_LAYOUT", ""),
		RelayFeedPath:    getEnvOrDefault("VIEWSYNC_RELAY_FEEDS", ""),
		ChartTabsPath:    getEnvOrDefault("VIEWSYNC_CHART_TABS", ""),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.FrameIntervalMS <= 0 {
		return fmt.Errorf("config: VIEWSYNC_FRAME_INTERVAL_MS must be positive, got %d", c.FrameIntervalMS)
	}
	if c.MinBars < 1 {
		return fmt.Errorf("config: VIEWSYNC_MIN_BARS must be at least 1, got %g", c.MinBars)
	}
	if c.ZoomIn <= 0 || c.ZoomIn >= 1 {
		return fmt.Errorf("config: VIEWSYNC_ZOOM_IN must be in (0, 1), got %g", c.ZoomIn)
	}
	if c.ZoomOut <= 1 {
		return fmt.Errorf("config: VIEWSYNC_ZOOM_OUT must be greater than 1, got %g", c.ZoomOut)
	}
	if c.RightOffset < 0 {
		return fmt.Errorf("config: VIEWSYNC_RIGHT_OFFSET must not be negative, got %d", c.RightOffset)
	}
	return nil
}

// FrameInterval returns the frame loop period.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

// EvalTimeout returns the per-evaluation CDP timeout.
func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
