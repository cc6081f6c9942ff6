package steps

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
)

// InputChecksum fingerprints a step's inputs: each dependency's checksum,
// the transform version, and the bytes of every local definition file
// (metadata sidecar, country mapping). A step is dirty when this value
// differs from the SourceChecksum stored with its output.
func (e *Env) InputChecksum(uri URI, deps []URI) (string, error) {
	h := md5.New()
	_, _ = io.WriteString(h, uri.String())

	sorted := append([]URI{}, deps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	for _, dep := range sorted {
		fp, err := e.depFingerprint(dep)
		if err != nil {
			return "", err
		}
		_, _ = io.WriteString(h, dep.String()+"="+fp)
	}

	if t, ok := e.Registry.Get(uri.String()); ok {
		_, _ = io.WriteString(h, "version="+t.Version)
	}
	for _, path := range e.definitionFiles(uri) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("checksum %s: %w", uri, err)
		}
		_, _ = h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// depFingerprint resolves the checksum a dependency contributes: a
// snapshot's md5, or a built dataset's own source checksum.
func (e *Env) depFingerprint(dep URI) (string, error) {
	if dep.Scheme == SchemeSnapshot {
		m, err := e.Snapshots.Meta(dep.Namespace, dep.Version, dep.Name)
		if err != nil {
			return "", fmt.Errorf("dependency %s: %w", dep, err)
		}
		if m.MD5 == "" {
			return "", fmt.Errorf("dependency %s: snapshot has no md5 (never ingested)", dep)
		}
		return m.MD5, nil
	}
	meta, err := e.loadOutputMeta(dep)
	if err != nil {
		return "", fmt.Errorf("dependency %s is not built: %w", dep, err)
	}
	return meta.SourceChecksum, nil
}
