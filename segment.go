package raft

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/raftcore/raft/internal/errors"
)

// segmentFileFormat names segment files by their base index and base term,
// zero-padded so a directory listing sorts in log order. The base term is
// the term of the entry immediately before baseIndex -- for a fresh log
// that's meaningless (0), but for a segment created by installing a
// snapshot or by compacting through a boundary it's the term the log
// matching check needs at that exact boundary once the entry itself is
// gone (§4.1).
const segmentFileFormat = "%020d-%020d.log"

// segment is a single append-only file holding a contiguous run of log
// entries starting at baseIndex. The log keeps every sealed segment around
// until it falls entirely before the compaction point; only the last
// segment (the "tail") is ever appended to.
type segment struct {
	dir       string
	baseIndex uint64
	baseTerm  uint64
	path      string
	file      *os.File
	encoder   LogEncoder
	decoder   LogDecoder
	entries   []*LogEntry
	size      int64
	sealed    bool
}

func segmentPath(dir string, baseIndex, baseTerm uint64) string {
	return filepath.Join(dir, fmtSegmentName(baseIndex, baseTerm))
}

func fmtSegmentName(baseIndex, baseTerm uint64) string {
	return fmt.Sprintf(segmentFileFormat, baseIndex, baseTerm)
}

// newSegment creates and opens a brand new, empty tail segment. baseTerm is
// the term of the entry at baseIndex-1, i.e. the entry the log matching
// check will be asked about once nothing after it remains.
func newSegment(dir string, baseIndex, baseTerm uint64, encoder LogEncoder, decoder LogDecoder) (*segment, error) {
	path := segmentPath(dir, baseIndex, baseTerm)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, errors.WrapError(err, "failed to create segment %s: %s", path, err.Error())
	}
	return &segment{dir: dir, baseIndex: baseIndex, baseTerm: baseTerm, path: path, file: file, encoder: encoder, decoder: decoder}, nil
}

// openSegment opens an existing segment file and replays its entries.
func openSegment(dir string, baseIndex, baseTerm uint64, encoder LogEncoder, decoder LogDecoder) (*segment, error) {
	path := segmentPath(dir, baseIndex, baseTerm)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, errors.WrapError(err, "failed to open segment %s: %s", path, err.Error())
	}

	s := &segment{dir: dir, baseIndex: baseIndex, baseTerm: baseTerm, path: path, file: file, encoder: encoder, decoder: decoder}

	for {
		offset, err := file.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, errors.WrapError(err, "failed to seek segment %s: %s", path, err.Error())
		}

		entry, err := decoder.Decode(file)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.WrapError(err, "failed to replay segment %s: %s", path, err.Error())
		}

		entry.offset = offset
		s.entries = append(s.entries, entry)
		s.size = offset
	}

	if pos, err := file.Seek(0, io.SeekEnd); err == nil {
		s.size = pos
	}

	return s, nil
}

func (s *segment) firstIndex() uint64 {
	return s.baseIndex
}

func (s *segment) lastIndex() uint64 {
	if len(s.entries) == 0 {
		if s.baseIndex == 0 {
			return 0
		}
		return s.baseIndex - 1
	}
	return s.entries[len(s.entries)-1].Index
}

func (s *segment) count() int {
	return len(s.entries)
}

func (s *segment) contains(index uint64) bool {
	return len(s.entries) > 0 && s.baseIndex <= index && index <= s.lastIndex()
}

func (s *segment) get(index uint64) *LogEntry {
	if !s.contains(index) {
		return nil
	}
	return s.entries[index-s.baseIndex]
}

// append writes entry to the tail of the segment file and records it.
func (s *segment) append(entry *LogEntry) error {
	if s.sealed {
		return errors.WrapError(nil, "cannot append to sealed segment %s", s.path)
	}

	offset, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.WrapError(err, "failed to seek segment %s: %s", s.path, err.Error())
	}

	if err := s.encoder.Encode(s.file, entry); err != nil {
		return errors.WrapError(err, "failed to encode entry %d: %s", entry.Index, err.Error())
	}

	pos, err := s.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.WrapError(err, "failed to seek segment %s: %s", s.path, err.Error())
	}

	entry.offset = offset
	s.entries = append(s.entries, entry)
	s.size = pos
	return nil
}

// truncateAfter discards every entry at or after index, including from the
// underlying file.
func (s *segment) truncateAfter(index uint64) error {
	if !s.contains(index) {
		return errors.WrapError(nil, "segment %s does not contain index %d", s.path, index)
	}

	cut := s.entries[index-s.baseIndex]
	if err := s.file.Truncate(cut.offset); err != nil {
		return errors.WrapError(err, "failed to truncate segment %s: %s", s.path, err.Error())
	}
	if _, err := s.file.Seek(cut.offset, io.SeekStart); err != nil {
		return errors.WrapError(err, "failed to seek segment %s: %s", s.path, err.Error())
	}

	s.entries = s.entries[:index-s.baseIndex]
	s.size = cut.offset
	return nil
}

func (s *segment) flush() error {
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *segment) remove() error {
	s.close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.WrapError(err, "failed to remove segment %s: %s", s.path, err.Error())
	}
	return nil
}
