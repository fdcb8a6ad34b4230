// Package amemfile implements the reader and writer for the single-file
// `.amem` binary container: a fixed 64-byte header, a compressed node
// section, an edge section, an optional indexes section, and a trailing
// BLAKE3 checksum. All integers are little-endian.
package amemfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/xeolabs/amemcore/pkg/graph"
	"lukechampine.com/blake3"
)

// Magic is the 4-byte file signature.
var Magic = [4]byte{'A', 'M', 'E', 'M'}

// CurrentVersion is the format version this package writes.
const CurrentVersion uint32 = 1

// HeaderSize is the fixed, on-disk size of Header in bytes.
const HeaderSize = 64

// FooterSize is the size of the trailing checksum.
const FooterSize = 32

// Header is the fixed 64-byte `.amem` file header.
type Header struct {
	Magic         [4]byte
	Version       uint32
	Dimension     uint32
	NodeCount     uint32
	EdgeCount     uint32
	NodesOffset   uint64
	EdgesOffset   uint64
	IndexesOffset uint64
	CreatedAt     uint64
	// 12 reserved bytes pad the struct to HeaderSize.
}

// WriteTo serializes the header in the on-disk layout.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Dimension)
	binary.LittleEndian.PutUint32(buf[12:16], h.NodeCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.EdgeCount)
	binary.LittleEndian.PutUint64(buf[20:28], h.NodesOffset)
	binary.LittleEndian.PutUint64(buf[28:36], h.EdgesOffset)
	binary.LittleEndian.PutUint64(buf[36:44], h.IndexesOffset)
	binary.LittleEndian.PutUint64(buf[44:52], h.CreatedAt)
	// buf[52:64] stays zero (reserved).
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom parses a 64-byte header from r.
func (h *Header) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return int64(n), err
	}
	copy(h.Magic[:], buf[0:4])
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	h.Dimension = binary.LittleEndian.Uint32(buf[8:12])
	h.NodeCount = binary.LittleEndian.Uint32(buf[12:16])
	h.EdgeCount = binary.LittleEndian.Uint32(buf[16:20])
	h.NodesOffset = binary.LittleEndian.Uint64(buf[20:28])
	h.EdgesOffset = binary.LittleEndian.Uint64(buf[28:36])
	h.IndexesOffset = binary.LittleEndian.Uint64(buf[36:44])
	h.CreatedAt = binary.LittleEndian.Uint64(buf[44:52])
	return int64(n), nil
}

// encodeNode writes one node record: id, event_type, 7 bytes of padding,
// created_at, last_accessed, session_id, confidence, access_count,
// decay_score, content_length, content_compressed_length, compressed
// content bytes, then dimension×f32 feature vector.
func encodeNode(w io.Writer, n graph.CognitiveEvent, enc *zstd.Encoder, dimension int) error {
	compressed := enc.EncodeAll([]byte(n.Content), nil)

	head := make([]byte, 8+1+7+8+8+4+4+4+4+4+4)
	off := 0
	binary.LittleEndian.PutUint64(head[off:], n.ID)
	off += 8
	head[off] = byte(n.EventType)
	off += 1 + 7 // skip reserved padding
	binary.LittleEndian.PutUint64(head[off:], uint64(n.CreatedAt))
	off += 8
	binary.LittleEndian.PutUint64(head[off:], uint64(n.LastAccessed))
	off += 8
	binary.LittleEndian.PutUint32(head[off:], n.SessionID)
	off += 4
	binary.LittleEndian.PutUint32(head[off:], math.Float32bits(n.Confidence))
	off += 4
	binary.LittleEndian.PutUint32(head[off:], n.AccessCount)
	off += 4
	binary.LittleEndian.PutUint32(head[off:], math.Float32bits(n.DecayScore))
	off += 4
	binary.LittleEndian.PutUint32(head[off:], uint32(len(n.Content)))
	off += 4
	binary.LittleEndian.PutUint32(head[off:], uint32(len(compressed)))

	if _, err := w.Write(head); err != nil {
		return err
	}
	if _, err := w.Write(compressed); err != nil {
		return err
	}

	vec := make([]byte, dimension*4)
	fv := n.FeatureVec
	for i := 0; i < dimension; i++ {
		var v float32
		if i < len(fv) {
			v = fv[i]
		}
		binary.LittleEndian.PutUint32(vec[i*4:], math.Float32bits(v))
	}
	_, err := w.Write(vec)
	return err
}

// decodeNode reads one node record written by encodeNode.
func decodeNode(r io.Reader, dec *zstd.Decoder, dimension int) (graph.CognitiveEvent, error) {
	var n graph.CognitiveEvent
	head := make([]byte, 8+1+7+8+8+4+4+4+4+4+4)
	if _, err := io.ReadFull(r, head); err != nil {
		return n, err
	}
	off := 0
	n.ID = binary.LittleEndian.Uint64(head[off:])
	off += 8
	eventType := head[off]
	off += 1 + 7
	if eventType > uint8(graph.EventEpisode) {
		return n, graph.Corrupt(0, fmt.Sprintf("unknown event type %d", eventType))
	}
	n.EventType = graph.EventType(eventType)
	n.CreatedAt = int64(binary.LittleEndian.Uint64(head[off:]))
	off += 8
	n.LastAccessed = int64(binary.LittleEndian.Uint64(head[off:]))
	off += 8
	n.SessionID = binary.LittleEndian.Uint32(head[off:])
	off += 4
	n.Confidence = math.Float32frombits(binary.LittleEndian.Uint32(head[off:]))
	off += 4
	n.AccessCount = binary.LittleEndian.Uint32(head[off:])
	off += 4
	n.DecayScore = math.Float32frombits(binary.LittleEndian.Uint32(head[off:]))
	off += 4
	contentLen := binary.LittleEndian.Uint32(head[off:])
	off += 4
	compressedLen := binary.LittleEndian.Uint32(head[off:])

	compressed := make([]byte, compressedLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return n, err
	}
	if compressedLen > 0 {
		plain, err := dec.DecodeAll(compressed, make([]byte, 0, contentLen))
		if err != nil {
			return n, graph.Corrupt(0, "content decompression failed").WithCause(err)
		}
		n.Content = string(plain)
	}

	vec := make([]byte, dimension*4)
	if _, err := io.ReadFull(r, vec); err != nil {
		return n, err
	}
	n.FeatureVec = make([]float32, dimension)
	for i := 0; i < dimension; i++ {
		n.FeatureVec[i] = math.Float32frombits(binary.LittleEndian.Uint32(vec[i*4:]))
	}
	return n, nil
}

// encodeEdge writes one fixed-size edge record.
func encodeEdge(w io.Writer, e graph.Edge) error {
	buf := make([]byte, 8+8+1+4+8)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], e.SourceID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], e.TargetID)
	off += 8
	buf[off] = byte(e.EdgeType)
	off += 1
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(e.Weight))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(e.CreatedAt))
	_, err := w.Write(buf)
	return err
}

// decodeEdge reads one fixed-size edge record.
func decodeEdge(r io.Reader) (graph.Edge, error) {
	var e graph.Edge
	buf := make([]byte, 8+8+1+4+8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return e, err
	}
	off := 0
	e.SourceID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	e.TargetID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	edgeType := buf[off]
	off += 1
	if edgeType > uint8(graph.EdgeTemporalNext) {
		return e, graph.Corrupt(0, fmt.Sprintf("unknown edge type %d", edgeType))
	}
	e.EdgeType = graph.EdgeType(edgeType)
	e.Weight = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	e.CreatedAt = int64(binary.LittleEndian.Uint64(buf[off:]))
	return e, nil
}

// checksum computes the 32-byte BLAKE3 digest of buf.
func checksum(buf []byte) [32]byte {
	return blake3.Sum256(buf)
}
