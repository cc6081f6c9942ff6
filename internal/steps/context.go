package steps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/terracehq/terrace/internal/snapshot"
	"github.com/terracehq/terrace/pkg/catalog"
	"github.com/terracehq/terrace/pkg/collection"
	"github.com/terracehq/terrace/pkg/harmonize"
	"github.com/terracehq/terrace/pkg/regions"
)

// Context hands a transform everything it may depend on: its loaded
// upstream datasets, fetched snapshot files, the region set and the
// namespace harmonizer, plus the catalog to position its output in.
type Context struct {
	Step          URI
	Catalog       *catalog.LocalCatalog
	Deps          map[string]*catalog.Dataset
	SnapshotPaths map[string]string
	SnapshotMetas map[string]snapshot.Meta
	Regions       *regions.Set
	Harmonizer    *harmonize.Harmonizer
	Sidecar       *MetaSidecar
	Log           *logrus.Logger

	// Collection is set by export transforms; the export step writes it
	// next to the CSV bundle.
	Collection *collection.Collection
}

// Dep returns the loaded upstream dataset with the given short name.
func (sc *Context) Dep(shortName string) (*catalog.Dataset, error) {
	var uris []string
	for uri, ds := range sc.Deps {
		if ds.Meta.ShortName == shortName {
			return ds, nil
		}
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return nil, fmt.Errorf("step %s: no dependency dataset %q (have: %s)",
		sc.Step, shortName, strings.Join(uris, ", "))
}

// DepByURI returns the loaded upstream dataset at the exact step URI.
func (sc *Context) DepByURI(uri string) (*catalog.Dataset, error) {
	ds, ok := sc.Deps[uri]
	if !ok {
		return nil, fmt.Errorf("step %s: no dependency %s", sc.Step, uri)
	}
	return ds, nil
}

// SnapshotMeta returns the sidecar of the snapshot dependency with the
// given name (including extension), so transforms can carry the origin
// onto the columns they produce.
func (sc *Context) SnapshotMeta(name string) (snapshot.Meta, error) {
	for uri, m := range sc.SnapshotMetas {
		if strings.HasSuffix(uri, "/"+name) {
			return m, nil
		}
	}
	return snapshot.Meta{}, fmt.Errorf("step %s: no snapshot dependency %q", sc.Step, name)
}

// SnapshotPath returns the local file of the snapshot dependency with the
// given name (including extension).
func (sc *Context) SnapshotPath(name string) (string, error) {
	var uris []string
	for uri, path := range sc.SnapshotPaths {
		if strings.HasSuffix(uri, "/"+name) {
			return path, nil
		}
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return "", fmt.Errorf("step %s: no snapshot dependency %q (have: %s)",
		sc.Step, name, strings.Join(uris, ", "))
}

// NewDataset returns an empty output dataset positioned at the step's
// canonical catalog path. Datasets are public unless the sidecar says
// otherwise.
func (sc *Context) NewDataset() *catalog.Dataset {
	meta := catalog.DatasetMeta{
		Channel:   sc.Step.Channel,
		Namespace: sc.Step.Namespace,
		Version:   sc.Step.Version,
		ShortName: sc.Step.Name,
		IsPublic:  true,
	}
	return sc.Catalog.NewDatasetAt(meta)
}
