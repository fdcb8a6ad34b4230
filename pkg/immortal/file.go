package immortal

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// frameBlock renders one length-framed log record: [u32 length][sequence ‖
// timestamp ‖ previous_hash ‖ payload_tag ‖ payload_bytes ‖ hash].
func frameBlock(b Block) []byte {
	body := canonicalEncode(b.Sequence, b.Timestamp, b.PreviousHash, b.PayloadTag, b.PayloadBytes)
	body = append(body, b.Hash[:]...)

	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(body)))
	return append(length[:], body...)
}

// appendBlock writes one framed block to f and fsyncs before returning, so a
// crash after this call leaves a complete, verifiable record on disk.
func appendBlock(f *os.File, b Block) error {
	frame := frameBlock(b)
	if _, err := f.Write(frame); err != nil {
		return graph.NewError(graph.KindStorageError, "append block").WithCause(err)
	}
	if err := f.Sync(); err != nil {
		return graph.NewError(graph.KindStorageError, "fsync log").WithCause(err)
	}
	return nil
}

// readAllBlocks reads every complete framed record from path in order. A
// truncated trailing record (a partial length prefix, or a length prefix
// whose declared body is longer than the remaining bytes) is dropped
// silently: it is the signature of a crash mid-append, and the recovered
// chain ends at the last fully-written block, per spec.md §4.6's failure
// model.
func readAllBlocks(path string) ([]Block, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, graph.NewError(graph.KindStorageError, "open log").WithCause(err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var blocks []Block
	for {
		var lengthBuf [4]byte
		if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
			break // EOF or a truncated length prefix: stop, keep what we have
		}
		length := binary.LittleEndian.Uint32(lengthBuf[:])

		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			break // truncated body: crash mid-write, stop here
		}

		block, err := parseBlockBody(body)
		if err != nil {
			break
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// parseBlockBody splits a record body back into its fields and decodes the
// payload's typed view.
func parseBlockBody(body []byte) (Block, error) {
	const fixedLen = 8 + 8 + 32 + 1
	if len(body) < fixedLen+32 {
		return Block{}, graph.Corrupt(0, "block body too short")
	}

	seq := binary.LittleEndian.Uint64(body[0:8])
	ts := int64(binary.LittleEndian.Uint64(body[8:16]))
	var prev [32]byte
	copy(prev[:], body[16:48])
	tag := PayloadTag(body[48])

	payloadEnd := len(body) - 32
	payload := body[fixedLen:payloadEnd]
	var hash [32]byte
	copy(hash[:], body[payloadEnd:])

	b := Block{
		Sequence:     seq,
		Timestamp:    ts,
		PreviousHash: prev,
		PayloadTag:   tag,
		PayloadBytes: append([]byte(nil), payload...),
		Hash:         hash,
	}
	if err := decodePayload(&b); err != nil {
		return Block{}, err
	}
	return b, nil
}

// frameLen returns the on-disk size of b's framed record, used for the
// hot tier's byte-budget accounting.
func frameLen(b Block) int {
	return 4 + 8 + 8 + 32 + 1 + len(b.PayloadBytes) + 32
}
