package raft

import (
	"os"
	"path/filepath"

	"github.com/raftcore/raft/internal/errors"
)

// Snapshot is a compacted copy of the state machine's state as of
// LastIncludedIndex/LastIncludedTerm, together with the cluster
// configuration in effect at that point (needed so a server restoring
// purely from a snapshot still knows its membership).
type Snapshot struct {
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Configuration     Configuration
	Data              []byte
}

// SnapshotStore persists the single most recent snapshot taken of the
// state machine. Grounded on the teacher's persistentSnapshotStorage,
// simplified from a multi-snapshot history down to "latest only": once the
// log has been compacted through a snapshot's index, earlier snapshots
// serve no purpose a compacted log doesn't already serve.
type SnapshotStore interface {
	// Save persists snapshot as the current snapshot, replacing any
	// previous one.
	Save(snapshot Snapshot) error

	// Load returns the most recently saved snapshot, and whether one
	// exists.
	Load() (Snapshot, bool, error)
}

// FileSnapshotStore implements SnapshotStore backed by a single file,
// replaced via atomic rename on every Save.
type FileSnapshotStore struct {
	dir  string
	path string

	encoder StorageEncoder
	decoder StorageDecoder
}

// NewFileSnapshotStore creates a SnapshotStore that persists to
// path/snapshots/snapshot.bin.
func NewFileSnapshotStore(path string) (*FileSnapshotStore, error) {
	dir := filepath.Join(path, "snapshots")
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errors.WrapError(err, "failed to create snapshot directory: %s", err.Error())
	}
	return &FileSnapshotStore{
		dir:     dir,
		path:    filepath.Join(dir, "snapshot.bin"),
		encoder: WireStorageEncoder{},
		decoder: WireStorageDecoder{},
	}, nil
}

func (s *FileSnapshotStore) Save(snapshot Snapshot) error {
	tmp, err := os.CreateTemp(s.dir, "tmp-")
	if err != nil {
		return errors.WrapError(err, "failed to create temporary snapshot file: %s", err.Error())
	}
	defer tmp.Close()

	if err := writeSnapshot(tmp, snapshot); err != nil {
		return errors.WrapError(err, "failed to encode snapshot: %s", err.Error())
	}
	if err := tmp.Sync(); err != nil {
		return errors.WrapError(err, "failed to sync snapshot file: %s", err.Error())
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.WrapError(err, "failed to rename snapshot file: %s", err.Error())
	}
	return nil
}

func (s *FileSnapshotStore) Load() (Snapshot, bool, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, errors.WrapError(err, "failed to open snapshot file: %s", err.Error())
	}
	defer file.Close()

	snapshot, err := readSnapshot(file)
	if err != nil {
		return Snapshot{}, false, errors.WrapError(err, "failed to decode snapshot: %s", err.Error())
	}
	return snapshot, true, nil
}
