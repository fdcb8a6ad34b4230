// Package immortal implements the append-only, hash-chained capture log: an
// immutable record of every message, tool call, file operation, and decision
// boundary a session produces, queryable by time, content, entity, and
// causal link, and replayable into a point-in-time snapshot.
package immortal

import (
	"bytes"
	"encoding/binary"
	"time"

	"lukechampine.com/blake3"
)

// PayloadTag identifies the kind of payload a Block carries.
type PayloadTag uint8

const (
	TagMessage PayloadTag = iota
	TagToolCall
	TagFileOp
	TagDecision
	TagBoundary
	TagCheckpoint
)

func (t PayloadTag) String() string {
	switch t {
	case TagMessage:
		return "message"
	case TagToolCall:
		return "tool_call"
	case TagFileOp:
		return "file_op"
	case TagDecision:
		return "decision"
	case TagBoundary:
		return "boundary"
	case TagCheckpoint:
		return "checkpoint"
	default:
		return "unknown"
	}
}

// FileOpKind classifies a FileOp payload's effect on a path.
type FileOpKind uint8

const (
	FileCreate FileOpKind = iota
	FileModify
	FileDelete
)

func (k FileOpKind) String() string {
	switch k {
	case FileCreate:
		return "Create"
	case FileModify:
		return "Modify"
	case FileDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Block is one entry in the hash chain. PayloadBytes holds the canonical,
// tag-specific encoding produced by encodePayload; Hash is computed over
// (Sequence, Timestamp, PreviousHash, PayloadTag, PayloadBytes).
type Block struct {
	Sequence     uint64
	Timestamp    int64 // microseconds since epoch
	PreviousHash [32]byte
	PayloadTag   PayloadTag
	PayloadBytes []byte
	Hash         [32]byte

	// Decoded view of PayloadBytes, populated by decodePayload on read.
	Text       string
	Path       string
	FileOp     FileOpKind
	BlockKind  string // boundary/checkpoint kind label, e.g. "session_start"
}

// genesisHash is the previous_hash of the first block ever appended.
var genesisHash [32]byte

// canonicalEncode serializes the fields that feed the hash chain, in the
// exact order spec.md §4.6 names: sequence ‖ timestamp ‖ previous_hash ‖
// payload_tag ‖ payload_bytes.
func canonicalEncode(seq uint64, ts int64, prev [32]byte, tag PayloadTag, payload []byte) []byte {
	buf := make([]byte, 0, 8+8+32+1+len(payload))
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:], seq)
	buf = append(buf, tmp[:]...)

	binary.LittleEndian.PutUint64(tmp[:], uint64(ts))
	buf = append(buf, tmp[:]...)

	buf = append(buf, prev[:]...)
	buf = append(buf, byte(tag))
	buf = append(buf, payload...)
	return buf
}

func computeHash(seq uint64, ts int64, prev [32]byte, tag PayloadTag, payload []byte) [32]byte {
	return blake3.Sum256(canonicalEncode(seq, ts, prev, tag, payload))
}

// newBlock builds and hashes a block against prevHash, stamping timestamp
// with the current time.
func newBlock(seq uint64, prevHash [32]byte, tag PayloadTag, payload []byte) Block {
	ts := time.Now().UnixMicro()
	b := Block{
		Sequence:     seq,
		Timestamp:    ts,
		PreviousHash: prevHash,
		PayloadTag:   tag,
		PayloadBytes: payload,
	}
	b.Hash = computeHash(seq, ts, prevHash, tag, payload)
	return b
}

// encodeString/decodeString give payload encoders a length-prefixed string
// field without pulling in a general serialization library for a handful of
// small tagged records.
func encodeString(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func decodeString(r *bytes.Reader) (string, error) {
	var n [4]byte
	if _, err := r.Read(n[:]); err != nil {
		return "", err
	}
	length := binary.LittleEndian.Uint32(n[:])
	b := make([]byte, length)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// encodePayload renders a payload's canonical bytes for a given tag. Message
// and Decision payloads are just a text field; ToolCall is name+args text;
// FileOp is path+op+text; Boundary/Checkpoint are kind+text.
func encodePayload(tag PayloadTag, text, path string, op FileOpKind, kind string) []byte {
	var buf bytes.Buffer
	switch tag {
	case TagFileOp:
		encodeString(&buf, path)
		buf.WriteByte(byte(op))
		encodeString(&buf, text)
	case TagBoundary, TagCheckpoint:
		encodeString(&buf, kind)
		encodeString(&buf, text)
	default:
		encodeString(&buf, text)
	}
	return buf.Bytes()
}

// decodePayload populates a Block's decoded view from PayloadBytes.
func decodePayload(b *Block) error {
	r := bytes.NewReader(b.PayloadBytes)
	switch b.PayloadTag {
	case TagFileOp:
		path, err := decodeString(r)
		if err != nil {
			return err
		}
		opByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		text, err := decodeString(r)
		if err != nil {
			return err
		}
		b.Path = path
		b.FileOp = FileOpKind(opByte)
		b.Text = text
	case TagBoundary, TagCheckpoint:
		kind, err := decodeString(r)
		if err != nil {
			return err
		}
		text, err := decodeString(r)
		if err != nil {
			return err
		}
		b.BlockKind = kind
		b.Text = text
	default:
		text, err := decodeString(r)
		if err != nil {
			return err
		}
		b.Text = text
	}
	return nil
}
