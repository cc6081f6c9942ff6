// Package publish pushes built catalog files to the public object store.
// Uploads are incremental: a manifest of md5 checksums kept next to the
// data lets unchanged files skip the wire.
package publish

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/terracehq/terrace/internal/snapshot"
	"github.com/terracehq/terrace/pkg/catalog"
)

const manifestKey = "manifest.json"

// Stats summarizes one publish pass.
type Stats struct {
	Uploaded int
	Skipped  int
	Bytes    int64
}

// Publisher mirrors a local catalog into an object store bucket.
type Publisher struct {
	Catalog *catalog.LocalCatalog
	Store   snapshot.ObjectStore
	Bucket  string
	Log     *logrus.Logger
}

// Publish reindexes the catalog, then uploads every changed file plus the
// refreshed catalog.json and manifest. With dryRun set it only reports
// what would upload.
func (p *Publisher) Publish(ctx context.Context, dryRun bool) (Stats, error) {
	var stats Stats
	if _, err := p.Catalog.Reindex(); err != nil {
		return stats, fmt.Errorf("publish: reindex: %w", err)
	}

	manifest, err := p.loadManifest(ctx)
	if err != nil {
		return stats, err
	}
	files, err := p.localFiles()
	if err != nil {
		return stats, err
	}

	if !dryRun {
		if err := p.Store.EnsureBucket(ctx, p.Bucket); err != nil {
			return stats, fmt.Errorf("publish: %w", err)
		}
	}
	newManifest := map[string]string{}
	for _, key := range files {
		data, err := os.ReadFile(filepath.Join(p.Catalog.Root, filepath.FromSlash(key)))
		if err != nil {
			return stats, fmt.Errorf("publish: %w", err)
		}
		sum := md5.Sum(data)
		digest := hex.EncodeToString(sum[:])
		newManifest[key] = digest
		if manifest[key] == digest {
			stats.Skipped++
			continue
		}
		p.Log.WithFields(logrus.Fields{"key": key, "bytes": len(data)}).Info("uploading")
		if !dryRun {
			if err := p.Store.PutObject(ctx, p.Bucket, key, data); err != nil {
				return stats, fmt.Errorf("publish: upload %s: %w", key, err)
			}
		}
		stats.Uploaded++
		stats.Bytes += int64(len(data))
	}

	if !dryRun {
		raw, err := json.MarshalIndent(newManifest, "", "  ")
		if err != nil {
			return stats, fmt.Errorf("publish: %w", err)
		}
		if err := p.Store.PutObject(ctx, p.Bucket, manifestKey, raw); err != nil {
			return stats, fmt.Errorf("publish: upload manifest: %w", err)
		}
	}
	return stats, nil
}

// loadManifest pulls the remote checksum manifest. A missing manifest
// means a first publish; everything uploads.
func (p *Publisher) loadManifest(ctx context.Context) (map[string]string, error) {
	data, err := p.Store.GetObject(ctx, p.Bucket, manifestKey)
	if err != nil {
		return map[string]string{}, nil
	}
	var manifest map[string]string
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("publish: parse remote manifest: %w", err)
	}
	return manifest, nil
}

// localFiles lists every publishable file relative to the catalog root:
// dataset contents of public channels plus catalog.json.
func (p *Publisher) localFiles() ([]string, error) {
	var keys []string
	err := filepath.WalkDir(p.Catalog.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.Catalog.Root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("publish: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
