package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	indexFile     = "index.json"
	parquetSuffix = ".parquet"
	sidecarSuffix = ".meta.json"
)

// Dataset is one versioned directory of tables plus its metadata. A
// dataset is produced in full by exactly one step; Save overwrites the
// directory's contents.
type Dataset struct {
	Meta   DatasetMeta
	Path   string
	tables map[string]*Table
}

// NewDataset returns an empty dataset that will live at path.
func NewDataset(path string, meta DatasetMeta) *Dataset {
	return &Dataset{Meta: meta, Path: path, tables: map[string]*Table{}}
}

// AddTable adds a table to the dataset, keyed by its short name.
func (d *Dataset) AddTable(t *Table) error {
	if t.Meta.ShortName == "" {
		return fmt.Errorf("dataset %s: table has no short name", d.Meta.ShortName)
	}
	if _, ok := d.tables[t.Meta.ShortName]; ok {
		return fmt.Errorf("dataset %s: duplicate table %q", d.Meta.ShortName, t.Meta.ShortName)
	}
	d.tables[t.Meta.ShortName] = t
	return nil
}

// Table returns the named table.
func (d *Dataset) Table(name string) (*Table, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, fmt.Errorf("dataset %s: no table %q", d.Meta.ShortName, name)
	}
	return t, nil
}

// TableNames returns the table short names, sorted.
func (d *Dataset) TableNames() []string {
	names := make([]string, 0, len(d.tables))
	for n := range d.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Origins rolls up the union of every column origin across the dataset's
// tables, for provenance display.
func (d *Dataset) Origins() []Origin {
	var out []Origin
	for _, name := range d.TableNames() {
		t := d.tables[name]
		for _, col := range t.Columns() {
			s, _ := t.Column(col)
			out = MergeOrigins(out, s.Meta.Origins)
		}
	}
	return out
}

// Save writes every table as parquet plus sidecar, then the dataset's
// index.json. The directory is created as needed; stale tables from a
// previous build are removed first.
func (d *Dataset) Save() error {
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("save dataset %s: %w", d.Meta.ShortName, err)
	}
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return fmt.Errorf("save dataset %s: %w", d.Meta.ShortName, err)
	}
	for _, e := range entries {
		name := e.Name()
		if name == indexFile || strings.HasSuffix(name, parquetSuffix) || strings.HasSuffix(name, sidecarSuffix) {
			if err := os.Remove(filepath.Join(d.Path, name)); err != nil {
				return fmt.Errorf("save dataset %s: %w", d.Meta.ShortName, err)
			}
		}
	}

	for _, name := range d.TableNames() {
		t := d.tables[name]
		data, err := EncodeParquet(t)
		if err != nil {
			return fmt.Errorf("save dataset %s: table %s: %w", d.Meta.ShortName, name, err)
		}
		if err := os.WriteFile(filepath.Join(d.Path, name+parquetSuffix), data, 0o644); err != nil {
			return fmt.Errorf("save dataset %s: table %s: %w", d.Meta.ShortName, name, err)
		}
		sc, err := json.MarshalIndent(t.Sidecar(), "", "  ")
		if err != nil {
			return fmt.Errorf("save dataset %s: table %s: %w", d.Meta.ShortName, name, err)
		}
		if err := os.WriteFile(filepath.Join(d.Path, name+sidecarSuffix), sc, 0o644); err != nil {
			return fmt.Errorf("save dataset %s: table %s: %w", d.Meta.ShortName, name, err)
		}
	}

	idx, err := json.MarshalIndent(d.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("save dataset %s: %w", d.Meta.ShortName, err)
	}
	if err := os.WriteFile(filepath.Join(d.Path, indexFile), idx, 0o644); err != nil {
		return fmt.Errorf("save dataset %s: %w", d.Meta.ShortName, err)
	}
	return nil
}

// LoadDatasetMeta reads only a dataset directory's index.json, without
// touching the tables. Used for cheap checksum comparisons.
func LoadDatasetMeta(path string) (DatasetMeta, error) {
	raw, err := os.ReadFile(filepath.Join(path, indexFile))
	if err != nil {
		return DatasetMeta{}, fmt.Errorf("load dataset meta %s: %w", path, err)
	}
	var meta DatasetMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return DatasetMeta{}, fmt.Errorf("load dataset meta %s: parse %s: %w", path, indexFile, err)
	}
	return meta, nil
}

// LoadDataset reads a dataset directory written by Save. A directory
// without index.json is not a dataset.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(filepath.Join(path, indexFile))
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	var meta DatasetMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("load dataset %s: parse %s: %w", path, indexFile, err)
	}
	d := NewDataset(path, meta)

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, sidecarSuffix) {
			continue
		}
		short := strings.TrimSuffix(name, sidecarSuffix)
		t, err := loadTable(path, short)
		if err != nil {
			return nil, fmt.Errorf("load dataset %s: %w", path, err)
		}
		if err := d.AddTable(t); err != nil {
			return nil, fmt.Errorf("load dataset %s: %w", path, err)
		}
	}
	return d, nil
}

func loadTable(dir, short string) (*Table, error) {
	raw, err := os.ReadFile(filepath.Join(dir, short+sidecarSuffix))
	if err != nil {
		return nil, err
	}
	var sc TableSidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("table %s: parse sidecar: %w", short, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, short+parquetSuffix))
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", short, err)
	}
	t, err := DecodeParquet(data, sc)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", short, err)
	}
	return t, nil
}
