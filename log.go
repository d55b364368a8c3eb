package raft

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/raftcore/raft/internal/errors"
)

// defaultMaxSegmentEntries bounds how many entries a segment holds before
// the log rolls over to a new tail segment.
const defaultMaxSegmentEntries = 8192

// Log is the replicated, segmented, append-only log described in §4.1: a
// sequence of sealed segments followed by one open tail segment. Entries
// are addressed by a 1-based, globally increasing index.
//
// Grounded on PersistentLog/VolatileLog, generalized from a single file and
// in-memory slice into a chain of bounded segment files so that Compact can
// reclaim space without rewriting the whole log.
type Log struct {
	dir              string
	encoder          LogEncoder
	decoder          LogDecoder
	maxSegmentEntries int

	mu       sync.Mutex
	segments []*segment
	open     bool
}

// NewLog creates a Log that persists its segments under path/log.
func NewLog(path string) *Log {
	return &Log{
		dir:               filepath.Join(path, "log"),
		encoder:           WireLogEncoder{},
		decoder:           WireLogDecoder{},
		maxSegmentEntries: defaultMaxSegmentEntries,
	}
}

// Open opens the log, replaying any existing segments, or creates the first
// empty segment if none exist.
func (l *Log) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open {
		return errors.WrapError(nil, "log %s is already open", l.dir)
	}

	if err := os.MkdirAll(l.dir, os.ModePerm); err != nil {
		return errors.WrapError(err, "failed to create log directory: %s", err.Error())
	}

	bases, err := existingSegmentBases(l.dir)
	if err != nil {
		return err
	}

	if len(bases) == 0 {
		s, err := newSegment(l.dir, 1, 0, l.encoder, l.decoder)
		if err != nil {
			return err
		}
		l.segments = []*segment{s}
		l.open = true
		return nil
	}

	segments := make([]*segment, 0, len(bases))
	for _, base := range bases {
		s, err := openSegment(l.dir, base.index, base.term, l.encoder, l.decoder)
		if err != nil {
			return err
		}
		segments = append(segments, s)
	}

	l.segments = segments
	l.open = true
	return nil
}

// segmentBase is a segment's identity as recovered from its filename.
type segmentBase struct {
	index uint64
	term  uint64
}

func existingSegmentBases(dir string) ([]segmentBase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapError(err, "failed to list log directory: %s", err.Error())
	}

	var bases []segmentBase
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".log")
		if name == e.Name() {
			continue
		}
		parts := strings.SplitN(name, "-", 2)
		if len(parts) != 2 {
			continue
		}
		index, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			continue
		}
		term, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			continue
		}
		bases = append(bases, segmentBase{index: index, term: term})
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i].index < bases[j].index })
	return bases, nil
}

// Close closes every segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return nil
	}

	var firstErr error
	for _, s := range l.segments {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.open = false
	return firstErr
}

func (l *Log) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// tail returns the current (last, unsealed) segment.
func (l *Log) tail() *segment {
	return l.segments[len(l.segments)-1]
}

func (l *Log) segmentContaining(index uint64) *segment {
	for _, s := range l.segments {
		if s.contains(index) {
			return s
		}
	}
	return nil
}

// GetEntry returns the entry at index.
func (l *Log) GetEntry(index uint64) (*LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return nil, errors.WrapError(nil, "log %s is not open", l.dir)
	}

	s := l.segmentContaining(index)
	if s == nil {
		return nil, errors.WrapError(nil, "log does not contain index %d", index)
	}
	return s.get(index), nil
}

// Contains reports whether index names an entry currently held in the log.
func (l *Log) Contains(index uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.segmentContaining(index) != nil
}

// AppendEntries appends entries to the log, truncating away any existing
// conflicting suffix first (entries at the same index but a different term,
// per the log matching property). entries must be provided with Index
// already assigned by the caller (the leader, or a follower copying the
// leader's indices).
func (l *Log) AppendEntries(entries ...*LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return errors.WrapError(nil, "log %s is not open", l.dir)
	}

	var toAppend []*LogEntry
	for i, entry := range entries {
		if l.lastIndexLocked() < entry.Index {
			toAppend = entries[i:]
			break
		}

		s := l.segmentContaining(entry.Index)
		if s == nil {
			// index falls at or before the log's compaction boundary: a
			// snapshot already covers it, nothing to conflict-check.
			continue
		}
		existing := s.get(entry.Index)
		if existing.IsConflict(entry) {
			if err := l.truncateLocked(entry.Index); err != nil {
				return err
			}
			toAppend = entries[i:]
			break
		}
		// Entry already present and non-conflicting: skip it, it's a
		// duplicate retransmission.
	}

	for _, entry := range toAppend {
		if err := l.tail().append(entry); err != nil {
			return err
		}
		if l.tail().count() >= l.maxSegmentEntries {
			if err := l.rollLocked(); err != nil {
				return err
			}
		}
	}

	return nil
}

// rollLocked seals the current tail and opens a fresh one starting at the
// next index.
func (l *Log) rollLocked() error {
	next := l.lastIndexLocked() + 1
	baseTerm := l.termAtLocked(next - 1)
	l.tail().sealed = true
	s, err := newSegment(l.dir, next, baseTerm, l.encoder, l.decoder)
	if err != nil {
		return err
	}
	l.segments = append(l.segments, s)
	return nil
}

// Truncate discards every entry at or after index, across as many trailing
// segments as necessary.
func (l *Log) Truncate(index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return errors.WrapError(nil, "log %s is not open", l.dir)
	}
	return l.truncateLocked(index)
}

func (l *Log) truncateLocked(index uint64) error {
	cut := -1
	for i, s := range l.segments {
		if index > s.lastIndex() {
			continue
		}
		if s.contains(index) {
			if err := s.truncateAfter(index); err != nil {
				return err
			}
			s.sealed = false
			cut = i
			break
		}
		// index falls in the gap before a segment with no entries yet:
		// nothing in this segment needs truncating, but everything after
		// it in the iteration does.
		cut = i - 1
		break
	}

	if cut < 0 {
		return nil
	}

	for _, s := range l.segments[cut+1:] {
		if err := s.remove(); err != nil {
			return err
		}
	}
	l.segments = l.segments[:cut+1]
	return nil
}

// Compact discards every sealed segment that lies entirely at or before
// index, reclaiming disk space after a snapshot has been taken through
// index. The tail segment is never compacted away. If the removed segments
// carried the log's only copy of the entry at index, the next remaining
// segment's boundary term is set so TermAt(index) still answers correctly.
func (l *Log) Compact(index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return errors.WrapError(nil, "log %s is not open", l.dir)
	}

	boundaryTerm := l.termAtLocked(index)

	keepFrom := 0
	for i, s := range l.segments {
		if i == len(l.segments)-1 {
			break
		}
		if s.lastIndex() <= index {
			keepFrom = i + 1
			continue
		}
		break
	}

	for _, s := range l.segments[:keepFrom] {
		if err := s.remove(); err != nil {
			return err
		}
	}
	l.segments = l.segments[keepFrom:]
	if keepFrom > 0 && len(l.segments) > 0 && l.segments[0].baseIndex == index+1 {
		l.segments[0].baseTerm = boundaryTerm
	}
	return nil
}

// Restore discards the entire log and installs a single fresh, empty tail
// segment based immediately after a just-installed snapshot, so that
// replication can resume at lastIncludedIndex+1 (§4.1's {baseIndex,
// baseTerm} pair) without needing any of the entries the snapshot replaces.
func (l *Log) Restore(lastIncludedIndex, lastIncludedTerm uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return errors.WrapError(nil, "log %s is not open", l.dir)
	}

	for _, s := range l.segments {
		if err := s.remove(); err != nil {
			return err
		}
	}

	s, err := newSegment(l.dir, lastIncludedIndex+1, lastIncludedTerm, l.encoder, l.decoder)
	if err != nil {
		return err
	}
	l.segments = []*segment{s}
	return nil
}

// Flush durably persists the tail segment.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	return l.tail().flush()
}

func (l *Log) FirstIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.segments {
		if s.count() > 0 {
			return s.firstIndex()
		}
	}
	return 0
}

func (l *Log) LastIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastIndexLocked()
}

func (l *Log) lastIndexLocked() uint64 {
	if len(l.segments) == 0 {
		return 0
	}
	return l.tail().lastIndex()
}

func (l *Log) LastTerm() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	last := l.lastIndexLocked()
	if last == 0 {
		return 0
	}
	return l.termAtLocked(last)
}

// TermAt returns the term of the entry at index, or 0 if index is not held.
// index may name either a live entry or a segment's recorded boundary (the
// entry immediately before a compaction or snapshot install), in which case
// the segment's baseTerm answers it without the entry itself being present.
func (l *Log) TermAt(index uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.termAtLocked(index)
}

func (l *Log) termAtLocked(index uint64) uint64 {
	for _, s := range l.segments {
		if s.baseIndex > 0 && index == s.baseIndex-1 {
			return s.baseTerm
		}
		if s.contains(index) {
			return s.get(index).Term
		}
	}
	return 0
}

func (l *Log) Path() string {
	return l.dir
}
