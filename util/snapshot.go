// util/snapshot.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotStore persists small state objects (calculator flags, track
// snapshots) under a state directory so that interrupted workers can
// resume after a restart.  Objects are msgpack-encoded and
// zstd-compressed.
type SnapshotStore struct {
	dir string
}

func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

func (s *SnapshotStore) path(name string) string {
	return filepath.Join(s.dir, name+".zst")
}

func (s *SnapshotStore) Store(name string, obj any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(s.path(name))
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}

	if err := msgpack.NewEncoder(zw).Encode(obj); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Retrieve decodes the named object into obj and returns the time it was
// stored.
func (s *SnapshotStore) Retrieve(name string, obj any) (time.Time, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return time.Time{}, err
	}

	zr, err := zstd.NewReader(f)
	if err != nil {
		return time.Time{}, err
	}
	defer zr.Close()

	return fi.ModTime(), msgpack.NewDecoder(zr).Decode(obj)
}

func (s *SnapshotStore) Delete(name string) error {
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Exists reports whether the named object is present and, if maxAge is
// positive, no older than maxAge.
func (s *SnapshotStore) Exists(name string, maxAge time.Duration) bool {
	fi, err := os.Stat(s.path(name))
	if err != nil {
		return false
	}
	return maxAge <= 0 || time.Since(fi.ModTime()) <= maxAge
}
