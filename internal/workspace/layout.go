package workspace

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layout is the YAML file listing the viewports to mount at startup.
type Layout struct {
	Viewports []MountSpec `yaml:"viewports"`
}

// LoadLayout reads and validates a layout file.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Validate checks for duplicate ids and missing chart ids.
func (l *Layout) Validate() error {
	seen := make(map[string]bool, len(l.Viewports))
	for i, v := range l.Viewports {
		id := strings.TrimSpace(v.ID)
		if id != "" {
			if seen[id] {
				return fmt.Errorf("layout: viewport[%d] duplicate id %q", i, id)
			}
			seen[id] = true
		}
		switch strings.ToLower(strings.TrimSpace(v.Kind)) {
		case "", KindSim:
		case KindCDP:
			if strings.TrimSpace(v.ChartID) == "" {
				return fmt.Errorf("layout: viewport[%d] (%s) missing chart_id", i, id)
			}
		default:
			return fmt.Errorf("layout: viewport[%d] (%s) unknown kind %q", i, id, v.Kind)
		}
		if v.Range != nil && !v.Range.Valid() {
			return fmt.Errorf("layout: viewport[%d] (%s) range end must be greater than start", i, id)
		}
	}
	return nil
}

// MountLayout mounts every viewport of l in order. It stops at the first
// failure and returns what was mounted so far.
func (w *Workspace) MountLayout(ctx context.Context, l *Layout) ([]ViewportInfo, error) {
	out := make([]ViewportInfo, 0, len(l.Viewports))
	for i, spec := range l.Viewports {
		info, err := w.Mount(ctx, spec)
		if err != nil {
			return out, fmt.Errorf("layout: viewport[%d] (%s): %w", i, spec.ID, err)
		}
		out = append(out, info)
	}
	return out, nil
}
