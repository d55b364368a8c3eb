package raft

import (
	"encoding/binary"
	"io"

	"github.com/raftcore/raft/internal/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the manual protobuf-wire-format encoding used by the
// default LogEncoder/LogDecoder and StorageEncoder/StorageDecoder. There is
// no .proto schema checked into this module (see DESIGN.md); the encoding
// below follows protobuf wire-format conventions by hand using the stable
// low-level google.golang.org/protobuf/encoding/protowire package, the same
// package protoc-gen-go itself is built on.
const (
	fieldEntryIndex = protowire.Number(1)
	fieldEntryTerm  = protowire.Number(2)
	fieldEntryTime  = protowire.Number(3)
	fieldEntryKind  = protowire.Number(4)
	fieldEntrySess  = protowire.Number(5)
	fieldEntrySeq   = protowire.Number(6)
	fieldEntryOp    = protowire.Number(7)
	fieldEntryCons  = protowire.Number(8)
	fieldEntryMem   = protowire.Number(9)

	fieldMemberID      = protowire.Number(1)
	fieldMemberAddress = protowire.Number(2)
	fieldMemberType    = protowire.Number(3)

	fieldMetaTerm      = protowire.Number(1)
	fieldMetaVotedFor  = protowire.Number(2)
	fieldMetaConfIndex = protowire.Number(3)
	fieldMetaConf      = protowire.Number(4)

	fieldConfIndex = protowire.Number(1)
	fieldConfTerm  = protowire.Number(2)
	fieldConfTime  = protowire.Number(3)
	fieldConfMem   = protowire.Number(4)

	fieldSnapIndex = protowire.Number(1)
	fieldSnapTerm  = protowire.Number(2)
	fieldSnapConf  = protowire.Number(3)
	fieldSnapData  = protowire.Number(4)
)

// LogEncoder encodes a LogEntry into a binary format that can be stored in a
// segment file or transmitted over the wire.
type LogEncoder interface {
	Encode(w io.Writer, entry *LogEntry) error
}

// LogDecoder decodes a binary representation produced by a LogEncoder back
// into a LogEntry.
type LogDecoder interface {
	Decode(r io.Reader) (*LogEntry, error)
}

// WireLogEncoder is the default LogEncoder, using protobuf wire format
// length-prefixed with a 4-byte big-endian size.
type WireLogEncoder struct{}

// WireLogDecoder is the default LogDecoder, matching WireLogEncoder.
type WireLogDecoder struct{}

// appendMemberField appends a member sub-message under an arbitrary field
// number, used both by entry encoding (fieldEntryMem) and configuration
// encoding (fieldConfMem).
func appendMemberField(b []byte, field protowire.Number, id string, m Member) []byte {
	var mb []byte
	mb = protowire.AppendTag(mb, fieldMemberID, protowire.BytesType)
	mb = protowire.AppendString(mb, id)
	mb = protowire.AppendTag(mb, fieldMemberAddress, protowire.BytesType)
	mb = protowire.AppendString(mb, m.Address)
	mb = protowire.AppendTag(mb, fieldMemberType, protowire.VarintType)
	mb = protowire.AppendVarint(mb, uint64(m.Type))
	b = protowire.AppendTag(b, field, protowire.BytesType)
	b = protowire.AppendBytes(b, mb)
	return b
}

func consumeMember(b []byte) (id string, m Member, n int, err error) {
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return "", Member{}, 0, errors.WrapError(nil, "failed to decode member: invalid tag")
		}
		b = b[tagLen:]
		n += tagLen
		switch num {
		case fieldMemberID:
			s, l := protowire.ConsumeString(b)
			if l < 0 {
				return "", Member{}, 0, errors.WrapError(nil, "failed to decode member id")
			}
			id, m.ID = s, s
			b, n = b[l:], n+l
		case fieldMemberAddress:
			s, l := protowire.ConsumeString(b)
			if l < 0 {
				return "", Member{}, 0, errors.WrapError(nil, "failed to decode member address")
			}
			m.Address = s
			b, n = b[l:], n+l
		case fieldMemberType:
			v, l := protowire.ConsumeVarint(b)
			if l < 0 {
				return "", Member{}, 0, errors.WrapError(nil, "failed to decode member type")
			}
			m.Type = MemberType(v)
			b, n = b[l:], n+l
		default:
			l := protowire.ConsumeFieldValue(num, typ, b)
			if l < 0 {
				return "", Member{}, 0, errors.WrapError(nil, "failed to skip unknown field")
			}
			b, n = b[l:], n+l
		}
	}
	return id, m, n, nil
}

// encodeEntry serializes a LogEntry into protobuf wire format.
func encodeEntry(e *LogEntry) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldEntryIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Index)
	b = protowire.AppendTag(b, fieldEntryTerm, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Term)
	b = protowire.AppendTag(b, fieldEntryTime, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Timestamp)
	b = protowire.AppendTag(b, fieldEntryKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Kind))
	if e.Session != 0 {
		b = protowire.AppendTag(b, fieldEntrySess, protowire.VarintType)
		b = protowire.AppendVarint(b, e.Session)
	}
	if e.Sequence != 0 {
		b = protowire.AppendTag(b, fieldEntrySeq, protowire.VarintType)
		b = protowire.AppendVarint(b, e.Sequence)
	}
	if len(e.Operation) > 0 {
		b = protowire.AppendTag(b, fieldEntryOp, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Operation)
	}
	if e.Consistency != Sequential {
		b = protowire.AppendTag(b, fieldEntryCons, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Consistency))
	}
	for id, m := range e.Members {
		b = appendMemberField(b, fieldEntryMem, id, m)
	}
	return b
}

// decodeEntry parses protobuf wire format produced by encodeEntry.
func decodeEntry(data []byte) (*LogEntry, error) {
	e := &LogEntry{}
	for len(data) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(data)
		if tagLen < 0 {
			return nil, errors.WrapError(nil, "failed to decode entry: invalid tag")
		}
		data = data[tagLen:]
		switch num {
		case fieldEntryIndex:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode entry index")
			}
			e.Index = v
			data = data[n:]
		case fieldEntryTerm:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode entry term")
			}
			e.Term = v
			data = data[n:]
		case fieldEntryTime:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode entry timestamp")
			}
			e.Timestamp = v
			data = data[n:]
		case fieldEntryKind:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode entry kind")
			}
			e.Kind = EntryKind(v)
			data = data[n:]
		case fieldEntrySess:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode entry session")
			}
			e.Session = v
			data = data[n:]
		case fieldEntrySeq:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode entry sequence")
			}
			e.Sequence = v
			data = data[n:]
		case fieldEntryOp:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode entry operation")
			}
			e.Operation = append([]byte(nil), v...)
			data = data[n:]
		case fieldEntryCons:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode entry consistency")
			}
			e.Consistency = Consistency(v)
			data = data[n:]
		case fieldEntryMem:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode entry member")
			}
			id, m, _, err := consumeMember(v)
			if err != nil {
				return nil, err
			}
			if e.Members == nil {
				e.Members = make(map[string]Member)
			}
			e.Members[id] = m
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to skip unknown field")
			}
			data = data[n:]
		}
	}
	return e, nil
}

func (WireLogEncoder) Encode(w io.Writer, entry *LogEntry) error {
	return writeLengthPrefixed(w, encodeEntry(entry))
}

func (WireLogDecoder) Decode(r io.Reader) (*LogEntry, error) {
	data, err := readLengthPrefixed(r)
	if err != nil {
		return nil, err
	}
	return decodeEntry(data)
}

// StorageEncoder encodes the MetaStore's persistent record.
type StorageEncoder interface {
	Encode(w io.Writer, meta *persistentMeta) error
}

// StorageDecoder decodes the MetaStore's persistent record.
type StorageDecoder interface {
	Decode(r io.Reader) (*persistentMeta, error)
}

// WireStorageEncoder is the default StorageEncoder.
type WireStorageEncoder struct{}

// WireStorageDecoder is the default StorageDecoder.
type WireStorageDecoder struct{}

func encodeMeta(meta *persistentMeta) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldMetaTerm, protowire.VarintType)
	b = protowire.AppendVarint(b, meta.currentTerm)
	b = protowire.AppendTag(b, fieldMetaVotedFor, protowire.BytesType)
	b = protowire.AppendString(b, meta.votedFor)
	b = protowire.AppendTag(b, fieldMetaConfIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, meta.configurationIndex)
	if meta.configuration != nil {
		b = protowire.AppendTag(b, fieldMetaConf, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeConfigurationBody(*meta.configuration))
	}
	return b
}

func decodeMeta(data []byte) (*persistentMeta, error) {
	meta := &persistentMeta{}
	for len(data) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(data)
		if tagLen < 0 {
			return nil, errors.WrapError(nil, "failed to decode meta: invalid tag")
		}
		data = data[tagLen:]
		switch num {
		case fieldMetaTerm:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode meta term")
			}
			meta.currentTerm = v
			data = data[n:]
		case fieldMetaVotedFor:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode meta votedFor")
			}
			meta.votedFor = v
			data = data[n:]
		case fieldMetaConfIndex:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode meta configurationIndex")
			}
			meta.configurationIndex = v
			data = data[n:]
		case fieldMetaConf:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to decode meta configuration")
			}
			conf, err := decodeConfigurationBody(v)
			if err != nil {
				return nil, err
			}
			meta.configuration = &conf
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.WrapError(nil, "failed to skip unknown field")
			}
			data = data[n:]
		}
	}
	return meta, nil
}

func decodeConfigurationBody(data []byte) (Configuration, error) {
	conf := Configuration{Members: make(map[string]Member)}
	for len(data) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(data)
		if tagLen < 0 {
			return Configuration{}, errors.WrapError(nil, "failed to decode configuration: invalid tag")
		}
		data = data[tagLen:]
		switch num {
		case fieldConfIndex:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Configuration{}, errors.WrapError(nil, "failed to decode configuration index")
			}
			conf.Index = v
			data = data[n:]
		case fieldConfTerm:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Configuration{}, errors.WrapError(nil, "failed to decode configuration term")
			}
			conf.Term = v
			data = data[n:]
		case fieldConfTime:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Configuration{}, errors.WrapError(nil, "failed to decode configuration timestamp")
			}
			conf.Timestamp = v
			data = data[n:]
		case fieldConfMem:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Configuration{}, errors.WrapError(nil, "failed to decode configuration member")
			}
			id, m, _, err := consumeMember(v)
			if err != nil {
				return Configuration{}, err
			}
			conf.Members[id] = m
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Configuration{}, errors.WrapError(nil, "failed to skip unknown field")
			}
			data = data[n:]
		}
	}
	return conf, nil
}

func (WireStorageEncoder) Encode(w io.Writer, meta *persistentMeta) error {
	return writeLengthPrefixed(w, encodeMeta(meta))
}

func (WireStorageDecoder) Decode(r io.Reader) (*persistentMeta, error) {
	data, err := readLengthPrefixed(r)
	if err != nil {
		return nil, err
	}
	return decodeMeta(data)
}

func writeLengthPrefixed(w io.Writer, payload []byte) error {
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return errors.WrapError(err, "failed to write length prefix: %s", err.Error())
	}
	if _, err := w.Write(payload); err != nil {
		return errors.WrapError(err, "failed to write payload: %s", err.Error())
	}
	return nil
}

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.WrapError(err, "failed to read payload: %s", err.Error())
	}
	return payload, nil
}

// encodeConfigurationBody encodes cfg as a standalone protobuf-wire message
// body, without a length prefix, so it can be embedded as a nested message
// field elsewhere (MetaStore records, snapshots).
func encodeConfigurationBody(cfg Configuration) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldConfIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, cfg.Index)
	b = protowire.AppendTag(b, fieldConfTerm, protowire.VarintType)
	b = protowire.AppendVarint(b, cfg.Term)
	b = protowire.AppendTag(b, fieldConfTime, protowire.VarintType)
	b = protowire.AppendVarint(b, cfg.Timestamp)
	for id, m := range cfg.Members {
		b = appendMemberField(b, fieldConfMem, id, m)
	}
	return b
}

func encodeSnapshot(snapshot Snapshot) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSnapIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, snapshot.LastIncludedIndex)
	b = protowire.AppendTag(b, fieldSnapTerm, protowire.VarintType)
	b = protowire.AppendVarint(b, snapshot.LastIncludedTerm)
	b = protowire.AppendTag(b, fieldSnapConf, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeConfigurationBody(snapshot.Configuration))
	b = protowire.AppendTag(b, fieldSnapData, protowire.BytesType)
	b = protowire.AppendBytes(b, snapshot.Data)
	return b
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	for len(data) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(data)
		if tagLen < 0 {
			return Snapshot{}, errors.WrapError(nil, "failed to decode snapshot: invalid tag")
		}
		data = data[tagLen:]
		switch num {
		case fieldSnapIndex:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Snapshot{}, errors.WrapError(nil, "failed to decode snapshot index")
			}
			snapshot.LastIncludedIndex = v
			data = data[n:]
		case fieldSnapTerm:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Snapshot{}, errors.WrapError(nil, "failed to decode snapshot term")
			}
			snapshot.LastIncludedTerm = v
			data = data[n:]
		case fieldSnapConf:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Snapshot{}, errors.WrapError(nil, "failed to decode snapshot configuration")
			}
			conf, err := decodeConfigurationBody(v)
			if err != nil {
				return Snapshot{}, err
			}
			snapshot.Configuration = conf
			data = data[n:]
		case fieldSnapData:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Snapshot{}, errors.WrapError(nil, "failed to decode snapshot data")
			}
			snapshot.Data = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Snapshot{}, errors.WrapError(nil, "failed to skip unknown field")
			}
			data = data[n:]
		}
	}
	return snapshot, nil
}

func writeSnapshot(w io.Writer, snapshot Snapshot) error {
	return writeLengthPrefixed(w, encodeSnapshot(snapshot))
}

func readSnapshot(r io.Reader) (Snapshot, error) {
	data, err := readLengthPrefixed(r)
	if err != nil {
		return Snapshot{}, err
	}
	return decodeSnapshot(data)
}
