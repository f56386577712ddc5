package relay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
)

// FeedConfig describes a named SSE feed: a filter over bus messages.
type FeedConfig struct {
	Name string `yaml:"name"`
	// Kinds limits the feed to message kinds by name (range_changed,
	// crosshair_moved). Empty accepts all.
	Kinds []string `yaml:"kinds,omitempty"`
	// Sources limits the feed to messages published by these viewports.
	Sources []string `yaml:"sources,omitempty"`
}

// RelayConfig is the top-level YAML configuration.
type RelayConfig struct {
	Feeds []FeedConfig `yaml:"feeds"`
}

// DefaultConfig has one feed per message kind.
func DefaultConfig() *RelayConfig {
	return &RelayConfig{Feeds: []FeedConfig{
		{Name: viewsync.RangeChanged.String(), Kinds: []string{viewsync.RangeChanged.String()}},
		{Name: viewsync.CrosshairMoved.String(), Kinds: []string{viewsync.CrosshairMoved.String()}},
	}}
}

// LoadConfig reads and validates a relay YAML config file.
func LoadConfig(path string) (*RelayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}
	var cfg RelayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks feed names and kinds.
func (c *RelayConfig) Validate() error {
	seen := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		if f.Name == "" {
			return fmt.Errorf("relay config: feed[%d] missing name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("relay config: duplicate feed %q", f.Name)
		}
		seen[f.Name] = true
		for _, k := range f.Kinds {
			if _, ok := parseKind(k); !ok {
				return fmt.Errorf("relay config: feed[%d] (%s) unknown kind %q", i, f.Name, k)
			}
		}
	}
	return nil
}

func parseKind(s string) (viewsync.Kind, bool) {
	switch s {
	case viewsync.RangeChanged.String():
		return viewsync.RangeChanged, true
	case viewsync.CrosshairMoved.String():
		return viewsync.CrosshairMoved, true
	}
	return 0, false
}
