// Package catalog implements the on-disk data catalog: typed tables with
// per-variable metadata, versioned datasets, and the directory layout the
// pipeline channels share. Datasets are stored as parquet files with JSON
// metadata sidecars so that values and provenance travel together.
package catalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CatalogIndexFile is the name of the index written at the catalog root.
const CatalogIndexFile = "catalog.json"

// IndexRow is one table's entry in the catalog index.
type IndexRow struct {
	Path       string   `json:"path"`
	Channel    string   `json:"channel"`
	Namespace  string   `json:"namespace"`
	Version    string   `json:"version"`
	Dataset    string   `json:"dataset"`
	Table      string   `json:"table"`
	Dimensions []string `json:"dimensions,omitempty"`
	Checksum   string   `json:"checksum,omitempty"`
	IsPublic   bool     `json:"is_public"`
}

// LocalCatalog is a catalog rooted at a local directory, laid out as
// <root>/<channel>/<namespace>/<version>/<dataset>.
type LocalCatalog struct {
	Root string
}

// NewLocalCatalog opens (or designates) a catalog at root.
func NewLocalCatalog(root string) *LocalCatalog {
	return &LocalCatalog{Root: root}
}

// DatasetPath returns the directory a dataset lives in.
func (c *LocalCatalog) DatasetPath(channel, namespace, version, shortName string) string {
	return filepath.Join(c.Root, channel, namespace, version, shortName)
}

// Dataset loads a dataset by its coordinates.
func (c *LocalCatalog) Dataset(channel, namespace, version, shortName string) (*Dataset, error) {
	return LoadDataset(c.DatasetPath(channel, namespace, version, shortName))
}

// HasDataset reports whether a built dataset exists at the coordinates.
func (c *LocalCatalog) HasDataset(channel, namespace, version, shortName string) bool {
	_, err := os.Stat(filepath.Join(c.DatasetPath(channel, namespace, version, shortName), indexFile))
	return err == nil
}

// NewDatasetAt returns an empty dataset positioned at the canonical path
// for its metadata.
func (c *LocalCatalog) NewDatasetAt(meta DatasetMeta) *Dataset {
	return NewDataset(c.DatasetPath(meta.Channel, meta.Namespace, meta.Version, meta.ShortName), meta)
}

// Reindex walks the catalog and rewrites catalog.json with one row per
// table. Returns the number of rows written.
func (c *LocalCatalog) Reindex() (int, error) {
	var rows []IndexRow
	err := filepath.WalkDir(c.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != indexFile {
			return nil
		}
		dir := filepath.Dir(path)
		rel, err := filepath.Rel(c.Root, dir)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 4 {
			return fmt.Errorf("reindex: dataset at %s is not under <channel>/<namespace>/<version>/<dataset>", rel)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var meta DatasetMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("reindex: parse %s: %w", path, err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), sidecarSuffix) {
				continue
			}
			short := strings.TrimSuffix(e.Name(), sidecarSuffix)
			var sc TableSidecar
			rawSC, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return err
			}
			if err := json.Unmarshal(rawSC, &sc); err != nil {
				return fmt.Errorf("reindex: parse %s: %w", e.Name(), err)
			}
			rows = append(rows, IndexRow{
				Path:       filepath.ToSlash(filepath.Join(rel, short+parquetSuffix)),
				Channel:    parts[0],
				Namespace:  strings.Join(parts[1:len(parts)-2], "/"),
				Version:    parts[len(parts)-2],
				Dataset:    meta.ShortName,
				Table:      short,
				Dimensions: sc.Table.PrimaryKey,
				Checksum:   meta.SourceChecksum,
				IsPublic:   meta.IsPublic,
			})
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			rows = nil
		} else {
			return 0, err
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })

	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return 0, err
	}
	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(filepath.Join(c.Root, CatalogIndexFile), out, 0o644); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Index reads catalog.json. A catalog that was never reindexed returns an
// empty index.
func (c *LocalCatalog) Index() ([]IndexRow, error) {
	raw, err := os.ReadFile(filepath.Join(c.Root, CatalogIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rows []IndexRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", CatalogIndexFile, err)
	}
	return rows, nil
}
