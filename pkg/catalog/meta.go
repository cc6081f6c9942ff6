package catalog

import (
	"fmt"
	"strings"
)

// License identifies the terms a data product is distributed under.
type License struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Origin describes where a value ultimately came from. Origins attach to
// individual variables and survive every table operation, so a published
// indicator can always cite the upstream producers that fed it.
type Origin struct {
	Producer      string   `json:"producer,omitempty" yaml:"producer,omitempty"`
	Title         string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	URLMain       string   `json:"url_main,omitempty" yaml:"url_main,omitempty"`
	URLDownload   string   `json:"url_download,omitempty" yaml:"url_download,omitempty"`
	DateAccessed  string   `json:"date_accessed,omitempty" yaml:"date_accessed,omitempty"`
	DatePublished string   `json:"date_published,omitempty" yaml:"date_published,omitempty"`
	CitationFull  string   `json:"citation_full,omitempty" yaml:"citation_full,omitempty"`
	License       *License `json:"license,omitempty" yaml:"license,omitempty"`
}

func (o Origin) key() string {
	return strings.Join([]string{o.Producer, o.Title, o.URLMain, o.URLDownload, o.DatePublished}, "|")
}

// Processing levels describe how far a variable has moved from the raw
// upstream values.
const (
	ProcessingMinor = "minor"
	ProcessingMajor = "major"
)

// Display carries presentation hints consumed by charting frontends.
type Display struct {
	Name             string `json:"name,omitempty" yaml:"name,omitempty"`
	Unit             string `json:"unit,omitempty" yaml:"unit,omitempty"`
	ShortUnit        string `json:"short_unit,omitempty" yaml:"short_unit,omitempty"`
	NumDecimalPlaces int    `json:"num_decimal_places,omitempty" yaml:"num_decimal_places,omitempty"`
	Tolerance        int    `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

// VariableMeta is the metadata of a single column. It rides along with the
// column through renames, joins, reshapes and arithmetic.
type VariableMeta struct {
	Title           string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	Unit            string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	ShortUnit       string   `json:"short_unit,omitempty" yaml:"short_unit,omitempty"`
	ProcessingLevel string   `json:"processing_level,omitempty" yaml:"processing_level,omitempty"`
	Display         *Display `json:"display,omitempty" yaml:"display,omitempty"`
	Origins         []Origin `json:"origins,omitempty" yaml:"origins,omitempty"`
}

// Clone returns a deep copy so that derived columns never alias the
// originals' metadata.
func (m VariableMeta) Clone() VariableMeta {
	out := m
	if m.Display != nil {
		d := *m.Display
		out.Display = &d
	}
	if len(m.Origins) > 0 {
		out.Origins = make([]Origin, len(m.Origins))
		copy(out.Origins, m.Origins)
		for i, o := range m.Origins {
			if o.License != nil {
				lic := *o.License
				out.Origins[i].License = &lic
			}
		}
	}
	return out
}

// MergeOrigins unions two origin lists, keeping first-seen order and
// dropping duplicates.
func MergeOrigins(a, b []Origin) []Origin {
	seen := make(map[string]bool, len(a)+len(b))
	var out []Origin
	for _, o := range append(append([]Origin{}, a...), b...) {
		k := o.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, o)
	}
	return out
}

// combineVariableMeta merges the metadata of two columns that are being
// folded into one, e.g. by a join on a shared column or by arithmetic.
// Origins are unioned. Unit and title survive only when both sides agree;
// disagreeing units clear rather than guess.
func combineVariableMeta(a, b VariableMeta) VariableMeta {
	out := VariableMeta{Origins: MergeOrigins(a.Origins, b.Origins)}
	if a.Unit == b.Unit {
		out.Unit = a.Unit
		out.ShortUnit = a.ShortUnit
	}
	if a.Title == b.Title {
		out.Title = a.Title
	}
	if a.Description == b.Description {
		out.Description = a.Description
	}
	out.ProcessingLevel = maxProcessingLevel(a.ProcessingLevel, b.ProcessingLevel)
	return out
}

func maxProcessingLevel(a, b string) string {
	if a == ProcessingMajor || b == ProcessingMajor {
		return ProcessingMajor
	}
	if a == ProcessingMinor || b == ProcessingMinor {
		return ProcessingMinor
	}
	return ""
}

// TableMeta describes one table of a dataset.
type TableMeta struct {
	ShortName   string   `json:"short_name" yaml:"short_name"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	PrimaryKey  []string `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
}

// DatasetMeta describes a dataset: one versioned directory of tables
// produced by exactly one step.
type DatasetMeta struct {
	Channel          string `json:"channel" yaml:"channel"`
	Namespace        string `json:"namespace" yaml:"namespace"`
	ShortName        string `json:"short_name" yaml:"short_name"`
	Version          string `json:"version" yaml:"version"`
	Title            string `json:"title,omitempty" yaml:"title,omitempty"`
	Description      string `json:"description,omitempty" yaml:"description,omitempty"`
	UpdatePeriodDays int    `json:"update_period_days,omitempty" yaml:"update_period_days,omitempty"`
	IsPublic         bool   `json:"is_public" yaml:"is_public"`
	SourceChecksum   string `json:"source_checksum,omitempty" yaml:"source_checksum,omitempty"`
}

// URI renders the canonical address of the dataset inside the catalog,
// e.g. "garden/demography/2026-07-01/un_population".
func (m DatasetMeta) URI() string {
	return fmt.Sprintf("%s/%s/%s/%s", m.Channel, m.Namespace, m.Version, m.ShortName)
}

// Channels of the layered catalog, ordered from raw to publishable.
const (
	ChannelSnapshot = "snapshot"
	ChannelMeadow   = "meadow"
	ChannelGarden   = "garden"
	ChannelGrapher  = "grapher"
	ChannelExplorer = "explorer"
	ChannelExport   = "export"
)

// KnownChannel reports whether name is one of the catalog channels.
func KnownChannel(name string) bool {
	switch name {
	case ChannelSnapshot, ChannelMeadow, ChannelGarden, ChannelGrapher, ChannelExplorer, ChannelExport:
		return true
	}
	return false
}
