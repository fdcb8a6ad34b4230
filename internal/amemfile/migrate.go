package amemfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// Open reads path applying policy to any version lower than CurrentVersion.
// strict rejects with KindVersionMismatch; off proceeds without copying the
// original file; auto-safe copies the pre-migration file into a checkpoint
// directory. Under both auto-safe and off, Open then rewrites the file at the
// current version itself.
func Open(path string, policy MigrationPolicy) (*graph.MemoryGraph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, graph.NewError(graph.KindNotFound, "file does not exist").WithCause(err)
		}
		return nil, graph.NewError(graph.KindStorageError, "read file").WithCause(err)
	}

	version, verr := peekVersion(raw)
	if verr == nil && version < CurrentVersion {
		switch policy {
		case MigrationStrict:
			return nil, graph.NewError(graph.KindVersionMismatch,
				fmt.Sprintf("file version %d below current %d, policy=strict", version, CurrentVersion))
		case MigrationAutoSafe:
			if err := checkpoint(path, raw, version); err != nil {
				return nil, err
			}
		case MigrationOff:
			// proceed without a safety copy
		}
	}

	g, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if verr == nil && version < CurrentVersion && policy != MigrationStrict {
		if err := Write(path, g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func peekVersion(raw []byte) (uint32, error) {
	if len(raw) < HeaderSize {
		return 0, graph.Corrupt(0, "file too small for header")
	}
	var h Header
	if _, err := h.ReadFrom(bytes.NewReader(raw)); err != nil {
		return 0, err
	}
	return h.Version, nil
}

func checkpoint(path string, raw []byte, fromVersion uint32) error {
	dir := filepath.Join(filepath.Dir(path), ".amem-migrations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return graph.NewError(graph.KindStorageError, "create migration checkpoint dir").WithCause(err)
	}
	stem := stripExt(filepath.Base(path))
	name := fmt.Sprintf("%s.v%d.%s.amem.checkpoint", stem, fromVersion, time.Now().UTC().Format("20060102150405"))
	dest := filepath.Join(dir, name)
	if err := os.WriteFile(dest, raw, 0o644); err != nil {
		return graph.NewError(graph.KindStorageError, "write migration checkpoint").WithCause(err)
	}
	return nil
}

func stripExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}
