package steps

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/terracehq/terrace/pkg/catalog"
)

// DatasetOverride carries the dataset-level fields a step's YAML sidecar
// may set or override.
type DatasetOverride struct {
	Title            string `yaml:"title,omitempty"`
	Description      string `yaml:"description,omitempty"`
	UpdatePeriodDays int    `yaml:"update_period_days,omitempty"`
	IsPublic         *bool  `yaml:"is_public,omitempty"`
}

// TableOverride carries per-table metadata overrides.
type TableOverride struct {
	Title       string                          `yaml:"title,omitempty"`
	Description string                          `yaml:"description,omitempty"`
	Variables   map[string]catalog.VariableMeta `yaml:"variables,omitempty"`
}

// MetaSidecar is the optional <step>.meta.yml next to a step definition.
// Fields set here win over whatever the transform computed; empty fields
// leave the computed values alone.
type MetaSidecar struct {
	Dataset DatasetOverride          `yaml:"dataset,omitempty"`
	Tables  map[string]TableOverride `yaml:"tables,omitempty"`
}

// LoadSidecar reads a step's metadata sidecar. A missing file is not an
// error; it returns nil.
func LoadSidecar(path string) (*MetaSidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load sidecar %s: %w", path, err)
	}
	var sc MetaSidecar
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parse sidecar %s: %w", path, err)
	}
	return &sc, nil
}

// Apply overlays the sidecar onto a built dataset.
func (sc *MetaSidecar) Apply(ds *catalog.Dataset) error {
	if sc == nil {
		return nil
	}
	if sc.Dataset.Title != "" {
		ds.Meta.Title = sc.Dataset.Title
	}
	if sc.Dataset.Description != "" {
		ds.Meta.Description = sc.Dataset.Description
	}
	if sc.Dataset.UpdatePeriodDays != 0 {
		ds.Meta.UpdatePeriodDays = sc.Dataset.UpdatePeriodDays
	}
	if sc.Dataset.IsPublic != nil {
		ds.Meta.IsPublic = *sc.Dataset.IsPublic
	}
	for tableName, to := range sc.Tables {
		t, err := ds.Table(tableName)
		if err != nil {
			return fmt.Errorf("sidecar: %w", err)
		}
		if to.Title != "" {
			t.Meta.Title = to.Title
		}
		if to.Description != "" {
			t.Meta.Description = to.Description
		}
		for col, vm := range to.Variables {
			s, err := t.Column(col)
			if err != nil {
				return fmt.Errorf("sidecar: table %s: %w", tableName, err)
			}
			overlayVariableMeta(&s.Meta, vm)
		}
	}
	return nil
}

func overlayVariableMeta(dst *catalog.VariableMeta, src catalog.VariableMeta) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.Unit != "" {
		dst.Unit = src.Unit
	}
	if src.ShortUnit != "" {
		dst.ShortUnit = src.ShortUnit
	}
	if src.ProcessingLevel != "" {
		dst.ProcessingLevel = src.ProcessingLevel
	}
	if src.Display != nil {
		dst.Display = src.Display
	}
	if len(src.Origins) > 0 {
		dst.Origins = catalog.MergeOrigins(dst.Origins, src.Origins)
	}
}
