package raft

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/raftcore/raft/internal/errors"
)

// persistentMeta is the record MetaStore persists: currentTerm, votedFor,
// and a pointer to the latest committed Configuration (§6 persisted state
// layout: "{currentTerm, votedFor, configurationIndex} followed by a
// length-prefixed serialized current Configuration").
type persistentMeta struct {
	currentTerm        uint64
	votedFor           string
	configurationIndex uint64
	configuration      *Configuration
}

// MetaStore persists currentTerm, votedFor, and the latest committed cluster
// Configuration. Writes are synchronous: by the time SetTermAndVote or
// SetConfiguration returns, the write is durable.
type MetaStore interface {
	// Open opens the store for reading and writing, recovering any
	// previously persisted state.
	Open() error

	// Close closes the store.
	Close() error

	// State returns the most recently persisted term and vote.
	State() (term uint64, votedFor string)

	// SetTermAndVote persists term and votedFor, replacing the previous
	// state. Must be called, and complete, before a vote grant response is
	// returned to the candidate (§4.2).
	SetTermAndVote(term uint64, votedFor string) error

	// Configuration returns the most recently persisted configuration, or
	// false if none has been committed yet.
	Configuration() (Configuration, bool)

	// SetConfiguration persists cfg as the current committed configuration.
	SetConfiguration(cfg Configuration) error
}

// FileMetaStore implements MetaStore backed by a single file, replaced via
// atomic rename on every write (grounded on the teacher's
// persistentStateStorage in state_storage.go, extended with the
// configuration tail).
type FileMetaStore struct {
	dir     string
	path    string
	encoder StorageEncoder
	decoder StorageDecoder

	mu    sync.Mutex
	meta  *persistentMeta
	ready bool
}

// NewFileMetaStore creates a MetaStore that persists to path/meta/meta.bin.
func NewFileMetaStore(path string) *FileMetaStore {
	return &FileMetaStore{
		dir:     filepath.Join(path, "meta"),
		encoder: WireStorageEncoder{},
		decoder: WireStorageDecoder{},
	}
}

func (s *FileMetaStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, os.ModePerm); err != nil {
		return errors.WrapError(err, "failed to create meta directory: %s", err.Error())
	}
	s.path = filepath.Join(s.dir, "meta.bin")

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.meta = &persistentMeta{}
			s.ready = true
			return nil
		}
		return errors.WrapError(err, "failed to read meta file: %s", err.Error())
	}

	meta, err := s.decoder.Decode(bytes.NewReader(data))
	if err != nil && err != io.EOF {
		return errors.WrapError(err, "failed to decode meta file: %s", err.Error())
	}
	if meta == nil {
		meta = &persistentMeta{}
	}
	s.meta = meta
	s.ready = true
	return nil
}

func (s *FileMetaStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	return nil
}

func (s *FileMetaStore) State() (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.currentTerm, s.meta.votedFor
}

func (s *FileMetaStore) SetTermAndVote(term uint64, votedFor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return errors.WrapError(nil, "meta store is not open")
	}

	next := *s.meta
	next.currentTerm = term
	next.votedFor = votedFor
	if err := s.persist(&next); err != nil {
		return err
	}
	s.meta = &next
	return nil
}

func (s *FileMetaStore) Configuration() (Configuration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta.configuration == nil {
		return Configuration{}, false
	}
	return s.meta.configuration.Clone(), true
}

func (s *FileMetaStore) SetConfiguration(cfg Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return errors.WrapError(nil, "meta store is not open")
	}

	clone := cfg.Clone()
	next := *s.meta
	next.configurationIndex = cfg.Index
	next.configuration = &clone
	if err := s.persist(&next); err != nil {
		return err
	}
	s.meta = &next
	return nil
}

// persist writes meta to a temporary file and atomically renames it over
// the store's path, matching the teacher's SetState/persistentStateStorage.
func (s *FileMetaStore) persist(meta *persistentMeta) error {
	tmp, err := os.CreateTemp(s.dir, "tmp-")
	if err != nil {
		return errors.WrapError(err, "failed to create temporary meta file: %s", err.Error())
	}
	defer tmp.Close()

	if err := s.encoder.Encode(tmp, meta); err != nil {
		return errors.WrapError(err, "failed to encode meta: %s", err.Error())
	}
	if err := tmp.Sync(); err != nil {
		return errors.WrapError(err, "failed to sync meta file: %s", err.Error())
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.WrapError(err, "failed to rename meta file: %s", err.Error())
	}
	return nil
}

// VolatileMetaStore is an in-memory MetaStore, used in tests.
type VolatileMetaStore struct {
	mu   sync.Mutex
	meta persistentMeta
}

// NewVolatileMetaStore creates an in-memory MetaStore.
func NewVolatileMetaStore() *VolatileMetaStore {
	return &VolatileMetaStore{}
}

func (s *VolatileMetaStore) Open() error  { return nil }
func (s *VolatileMetaStore) Close() error { return nil }

func (s *VolatileMetaStore) State() (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.currentTerm, s.meta.votedFor
}

func (s *VolatileMetaStore) SetTermAndVote(term uint64, votedFor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.currentTerm = term
	s.meta.votedFor = votedFor
	return nil
}

func (s *VolatileMetaStore) Configuration() (Configuration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta.configuration == nil {
		return Configuration{}, false
	}
	return s.meta.configuration.Clone(), true
}

func (s *VolatileMetaStore) SetConfiguration(cfg Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := cfg.Clone()
	s.meta.configuration = &clone
	s.meta.configurationIndex = cfg.Index
	return nil
}
