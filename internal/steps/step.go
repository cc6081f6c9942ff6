package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/terracehq/terrace/internal/snapshot"
	"github.com/terracehq/terrace/pkg/catalog"
	"github.com/terracehq/terrace/pkg/harmonize"
	"github.com/terracehq/terrace/pkg/regions"
)

const (
	sidecarSuffix  = ".meta.yml"
	mappingSuffix  = ".countries.json"
	excludeSuffix  = ".excluded_countries.json"
	collectionFile = "collection.json"
)

// GrapherSync pushes a grapher-channel dataset into the presentation
// database. Nil when no DSN is configured.
type GrapherSync interface {
	SyncDataset(ctx context.Context, ds *catalog.Dataset) error
}

// Env wires a step execution to the shared services: the catalog, the
// snapshot store, region definitions, the transform registry, and the
// optional grapher and export targets.
type Env struct {
	Catalog   *catalog.LocalCatalog
	Snapshots *snapshot.Store
	Regions   *regions.Set
	Registry  *Registry

	// StepMetaDir roots the per-step definition files: metadata sidecars
	// and country mappings, laid out as <dir>/<channel>/<ns>/<version>/.
	StepMetaDir string

	// Grapher, when set, receives every grapher-channel dataset.
	Grapher GrapherSync

	// ExportStore, when set, receives export bundles under the same key
	// layout as the local export channel.
	ExportStore  snapshot.ObjectStore
	ExportBucket string

	Log *logrus.Logger
}

// Execute runs one step to completion. deps are the step's direct
// dependencies from the DAG.
func (e *Env) Execute(ctx context.Context, uri URI, deps []URI) error {
	switch uri.Scheme {
	case SchemeSnapshot:
		return e.executeSnapshot(ctx, uri)
	case SchemeData, SchemeGrapher, SchemeExport:
		return e.executeTransform(ctx, uri, deps)
	}
	return fmt.Errorf("step %s: unknown scheme %q", uri, uri.Scheme)
}

// Dirty reports whether a step needs to run: its output is missing or its
// stored input checksum no longer matches.
func (e *Env) Dirty(uri URI, deps []URI) (bool, error) {
	if uri.Scheme == SchemeSnapshot {
		m, err := e.Snapshots.Meta(uri.Namespace, uri.Version, uri.Name)
		if err != nil {
			return false, err
		}
		_, err = os.Stat(e.Snapshots.CachePath(m))
		return os.IsNotExist(err), nil
	}
	meta, err := e.loadOutputMeta(uri)
	if err != nil {
		return true, nil // output missing
	}
	want, err := e.InputChecksum(uri, deps)
	if err != nil {
		return true, nil // a dependency is not built yet
	}
	return meta.SourceChecksum != want, nil
}

func (e *Env) executeSnapshot(ctx context.Context, uri URI) error {
	m, err := e.Snapshots.Meta(uri.Namespace, uri.Version, uri.Name)
	if err != nil {
		return fmt.Errorf("step %s: %w", uri, err)
	}
	if _, err := e.Snapshots.Fetch(ctx, m); err != nil {
		return fmt.Errorf("step %s: %w", uri, err)
	}
	return nil
}

func (e *Env) executeTransform(ctx context.Context, uri URI, deps []URI) error {
	t, ok := e.Registry.Get(uri.String())
	if !ok {
		return fmt.Errorf("step %s: no transform registered", uri)
	}
	sc, err := e.buildContext(ctx, uri, deps)
	if err != nil {
		return err
	}
	ds, err := t.Fn(ctx, sc)
	if err != nil {
		return fmt.Errorf("step %s: %w", uri, err)
	}
	if ds == nil {
		return fmt.Errorf("step %s: transform returned no dataset", uri)
	}
	if err := e.checkPlacement(uri, ds); err != nil {
		return err
	}
	if err := sc.Sidecar.Apply(ds); err != nil {
		return fmt.Errorf("step %s: %w", uri, err)
	}
	ds.Meta.SourceChecksum, err = e.InputChecksum(uri, deps)
	if err != nil {
		return fmt.Errorf("step %s: %w", uri, err)
	}

	if uri.Scheme == SchemeExport {
		return e.writeExportBundle(ctx, uri, ds, sc)
	}
	if err := ds.Save(); err != nil {
		return fmt.Errorf("step %s: %w", uri, err)
	}
	if uri.Scheme == SchemeGrapher && e.Grapher != nil {
		if err := e.Grapher.SyncDataset(ctx, ds); err != nil {
			return fmt.Errorf("step %s: grapher sync: %w", uri, err)
		}
	}
	return nil
}

// checkPlacement enforces that a transform writes exactly the dataset its
// step URI names. Unset coordinates are filled in; mismatched ones are an
// authoring error.
func (e *Env) checkPlacement(uri URI, ds *catalog.Dataset) error {
	m := &ds.Meta
	if m.Channel == "" {
		m.Channel = uri.Channel
	}
	if m.Namespace == "" {
		m.Namespace = uri.Namespace
	}
	if m.Version == "" {
		m.Version = uri.Version
	}
	if m.ShortName == "" {
		m.ShortName = uri.Name
	}
	if m.Channel != uri.Channel || m.Namespace != uri.Namespace || m.Version != uri.Version || m.ShortName != uri.Name {
		return fmt.Errorf("step %s: transform produced dataset %s", uri, m.URI())
	}
	ds.Path = e.Catalog.DatasetPath(m.Channel, m.Namespace, m.Version, m.ShortName)
	return nil
}

func (e *Env) buildContext(ctx context.Context, uri URI, deps []URI) (*Context, error) {
	sc := &Context{
		Step:          uri,
		Catalog:       e.Catalog,
		Deps:          map[string]*catalog.Dataset{},
		SnapshotPaths: map[string]string{},
		SnapshotMetas: map[string]snapshot.Meta{},
		Regions:       e.Regions,
		Log:           e.Log,
	}
	for _, dep := range deps {
		if dep.Scheme == SchemeSnapshot {
			m, err := e.Snapshots.Meta(dep.Namespace, dep.Version, dep.Name)
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", uri, err)
			}
			path, err := e.Snapshots.Fetch(ctx, m)
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", uri, err)
			}
			sc.SnapshotPaths[dep.String()] = path
			sc.SnapshotMetas[dep.String()] = m
			continue
		}
		ds, err := e.Catalog.Dataset(dep.Channel, dep.Namespace, dep.Version, dep.Name)
		if err != nil {
			return nil, fmt.Errorf("step %s: load dependency %s: %w", uri, dep, err)
		}
		sc.Deps[dep.String()] = ds
	}

	var err error
	sc.Sidecar, err = LoadSidecar(e.definitionPath(uri, sidecarSuffix))
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", uri, err)
	}
	sc.Harmonizer, err = e.harmonizer(uri)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", uri, err)
	}
	return sc, nil
}

// harmonizer builds the namespace harmonizer from the region set plus the
// step's optional country mapping and exclude list.
func (e *Env) harmonizer(uri URI) (*harmonize.Harmonizer, error) {
	var mapping harmonize.Mapping
	mappingPath := e.definitionPath(uri, mappingSuffix)
	if _, err := os.Stat(mappingPath); err == nil {
		mapping, err = harmonize.LoadMapping(mappingPath)
		if err != nil {
			return nil, err
		}
	}
	var exclude []string
	excludePath := e.definitionPath(uri, excludeSuffix)
	if _, err := os.Stat(excludePath); err == nil {
		exclude, err = harmonize.LoadExcludeList(excludePath)
		if err != nil {
			return nil, err
		}
	}
	return harmonize.New(e.Regions, mapping, exclude), nil
}

// definitionPath locates a step's local definition file with the given
// suffix.
func (e *Env) definitionPath(uri URI, suffix string) string {
	return filepath.Join(e.StepMetaDir, uri.Channel, uri.Namespace, uri.Version, uri.Name+suffix)
}

// definitionFiles lists the local files whose content feeds the step's
// input checksum.
func (e *Env) definitionFiles(uri URI) []string {
	return []string{
		e.definitionPath(uri, sidecarSuffix),
		e.definitionPath(uri, mappingSuffix),
		e.definitionPath(uri, excludeSuffix),
	}
}

// loadOutputMeta reads the index.json of the step's output dataset.
func (e *Env) loadOutputMeta(uri URI) (catalog.DatasetMeta, error) {
	return catalog.LoadDatasetMeta(e.Catalog.DatasetPath(uri.Channel, uri.Namespace, uri.Version, uri.Name))
}

// writeExportBundle materializes an export step: one CSV per table plus
// collection.json and index.json, written locally and mirrored to the
// export object store when one is configured.
func (e *Env) writeExportBundle(ctx context.Context, uri URI, ds *catalog.Dataset, sc *Context) error {
	if sc.Collection == nil {
		return fmt.Errorf("step %s: export transform set no collection", uri)
	}
	if err := sc.Collection.Validate(); err != nil {
		return fmt.Errorf("step %s: %w", uri, err)
	}
	if err := os.MkdirAll(ds.Path, 0o755); err != nil {
		return fmt.Errorf("step %s: %w", uri, err)
	}

	files := map[string][]byte{}
	for _, name := range ds.TableNames() {
		t, _ := ds.Table(name)
		data, err := t.EncodeCSV()
		if err != nil {
			return fmt.Errorf("step %s: table %s: %w", uri, name, err)
		}
		files[name+".csv"] = data
	}
	coll, err := json.MarshalIndent(sc.Collection.ToMap(), "", "  ")
	if err != nil {
		return fmt.Errorf("step %s: %w", uri, err)
	}
	files[collectionFile] = coll
	idx, err := json.MarshalIndent(ds.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("step %s: %w", uri, err)
	}
	files["index.json"] = idx

	for name, data := range files {
		if err := os.WriteFile(filepath.Join(ds.Path, name), data, 0o644); err != nil {
			return fmt.Errorf("step %s: %w", uri, err)
		}
	}
	if e.ExportStore != nil {
		if err := e.ExportStore.EnsureBucket(ctx, e.ExportBucket); err != nil {
			return fmt.Errorf("step %s: %w", uri, err)
		}
		for name, data := range files {
			key := uri.Path() + "/" + name
			if err := e.ExportStore.PutObject(ctx, e.ExportBucket, key, data); err != nil {
				return fmt.Errorf("step %s: upload %s: %w", uri, key, err)
			}
		}
	}
	return nil
}
