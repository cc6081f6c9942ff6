// Package snapshot implements the raw layer of the catalog: immutable,
// provenance-tagged copies of upstream source files, archived in an object
// store and mirrored into a local cache for step runs.
package snapshot

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/terracehq/terrace/pkg/catalog"
)

const metaSuffix = ".meta.yml"

// Meta is the sidecar describing one snapshot: where it came from, under
// what terms, and the checksum the archived bytes must match.
type Meta struct {
	Namespace     string         `yaml:"namespace"`
	Version       string         `yaml:"version"`
	ShortName     string         `yaml:"short_name"`
	FileExtension string         `yaml:"file_extension"`
	Origin        catalog.Origin `yaml:"origin"`
	MD5           string         `yaml:"md5,omitempty"`
	SizeBytes     int64          `yaml:"size_bytes,omitempty"`
}

// Name returns the snapshot's file name including extension.
func (m Meta) Name() string {
	if m.FileExtension == "" {
		return m.ShortName
	}
	return m.ShortName + "." + m.FileExtension
}

// Key returns the archive object key and relative cache path.
func (m Meta) Key() string {
	return fmt.Sprintf("%s/%s/%s", m.Namespace, m.Version, m.Name())
}

// URI renders the snapshot step address.
func (m Meta) URI() string {
	return fmt.Sprintf("snapshot://%s", m.Key())
}

// LoadMeta reads a snapshot sidecar.
func LoadMeta(path string) (Meta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, fmt.Errorf("load snapshot meta: %w", err)
	}
	var m Meta
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Meta{}, fmt.Errorf("parse snapshot meta %s: %w", path, err)
	}
	if m.Namespace == "" || m.Version == "" || m.ShortName == "" {
		return Meta{}, fmt.Errorf("snapshot meta %s: namespace, version and short_name are required", path)
	}
	return m, nil
}

// Save writes the sidecar to path.
func (m Meta) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save snapshot meta: %w", err)
	}
	raw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("save snapshot meta: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// Store resolves snapshots: cache hit, archive pull, or origin download, in
// that order. The archive is optional; without one the store works entirely
// from the cache and origin URLs.
type Store struct {
	MetaDir    string
	CacheDir   string
	Archive    ObjectStore
	Bucket     string
	Downloader *Downloader
	Log        *logrus.Logger
}

// MetaPath returns where the sidecar for the given snapshot key lives.
func (s *Store) MetaPath(namespace, version, name string) string {
	return filepath.Join(s.MetaDir, namespace, version, name+metaSuffix)
}

// Meta loads the sidecar for a snapshot key.
func (s *Store) Meta(namespace, version, name string) (Meta, error) {
	return LoadMeta(s.MetaPath(namespace, version, name))
}

// CachePath returns the file a fetched snapshot lands at.
func (s *Store) CachePath(m Meta) string {
	return filepath.Join(s.CacheDir, m.Namespace, m.Version, m.Name())
}

// Fetch ensures the snapshot is present in the local cache and returns its
// path. A cached file with a matching md5 short-circuits; otherwise the
// archive is consulted, then the origin download URL. Fetched bytes must
// match the sidecar's md5.
func (s *Store) Fetch(ctx context.Context, m Meta) (string, error) {
	path := s.CachePath(m)
	if data, err := os.ReadFile(path); err == nil {
		if m.MD5 == "" || checksum(data) == m.MD5 {
			return path, nil
		}
		s.Log.WithFields(logrus.Fields{"snapshot": m.URI()}).Warn("cached snapshot fails checksum, refetching")
	}

	data, err := s.pull(ctx, m)
	if err != nil {
		return "", err
	}
	if m.MD5 != "" && checksum(data) != m.MD5 {
		return "", wrapError(CodeChecksumMismatch, false,
			fmt.Errorf("snapshot %s: got md5 %s, want %s", m.URI(), checksum(data), m.MD5))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("fetch %s: %w", m.URI(), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("fetch %s: %w", m.URI(), err)
	}
	return path, nil
}

func (s *Store) pull(ctx context.Context, m Meta) ([]byte, error) {
	if s.Archive != nil {
		data, err := s.Archive.GetObject(ctx, s.Bucket, m.Key())
		if err == nil {
			return data, nil
		}
		var coded *Error
		if !errors.As(err, &coded) || coded.Code != CodeObjectNotFound {
			return nil, fmt.Errorf("fetch %s from archive: %w", m.URI(), err)
		}
	}
	if m.Origin.URLDownload == "" {
		return nil, fmt.Errorf("fetch %s: not in archive and no download URL", m.URI())
	}
	if s.Downloader == nil {
		return nil, fmt.Errorf("fetch %s: no downloader configured", m.URI())
	}
	s.Log.WithFields(logrus.Fields{"snapshot": m.URI(), "url": m.Origin.URLDownload}).Info("downloading snapshot")
	data, err := s.Downloader.Get(ctx, m.Origin.URLDownload)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", m.URI(), err)
	}
	return data, nil
}

// Ingest registers a local file as a snapshot: the sidecar gains the file's
// md5 and size, the bytes land in both the cache and (when configured) the
// archive.
func (s *Store) Ingest(ctx context.Context, m *Meta, srcPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", m.URI(), err)
	}
	m.MD5 = checksum(data)
	m.SizeBytes = int64(len(data))

	path := s.CachePath(*m)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ingest %s: %w", m.URI(), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("ingest %s: %w", m.URI(), err)
	}
	if s.Archive != nil {
		if err := s.Archive.EnsureBucket(ctx, s.Bucket); err != nil {
			return fmt.Errorf("ingest %s: %w", m.URI(), err)
		}
		if err := s.Archive.PutObject(ctx, s.Bucket, m.Key(), data); err != nil {
			return fmt.Errorf("ingest %s: %w", m.URI(), err)
		}
	}
	return m.Save(s.MetaPath(m.Namespace, m.Version, m.Name()))
}

func checksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
