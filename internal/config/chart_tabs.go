package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TabEntry describes a single chart tab to open at startup.
type TabEntry struct {
	URL string `yaml:"url"`
}

// ChartTabsConfig is the top-level YAML configuration for startup tabs.
type ChartTabsConfig struct {
	Tabs []TabEntry `yaml:"tabs"`
}

// URLs returns the configured tab URLs in order.
func (c *ChartTabsConfig) URLs() []string {
	out := make([]string, 0, len(c.Tabs))
	for _, t := range c.Tabs {
		out = append(out, t.URL)
	}
	return out
}

// LoadChartTabs reads and validates a chart tabs YAML config file.
// Returns an os.ErrNotExist-wrapped error if the file is absent (caller
// silently skips in that case).
func LoadChartTabs(path string) (*ChartTabsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chart_tabs config: %w", err)
	}
	var cfg ChartTabsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("chart_tabs config: %w", err)
	}
	if len(cfg.Tabs) < 1 {
		return nil, fmt.Errorf("chart_tabs config: at least one tab entry is required")
	}
	for i, t := range cfg.Tabs {
		if t.URL == "" {
			return nil, fmt.Errorf("chart_tabs config: tabs[%d] missing url", i)
		}
	}
	return &cfg, nil
}
