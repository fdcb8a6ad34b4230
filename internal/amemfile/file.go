package amemfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/xeolabs/amemcore/pkg/graph"
)

// MigrationPolicy governs what happens when an existing file's format
// version is lower than CurrentVersion.
type MigrationPolicy string

const (
	MigrationAutoSafe MigrationPolicy = "auto-safe"
	MigrationStrict   MigrationPolicy = "strict"
	MigrationOff      MigrationPolicy = "off"
)

// Write serializes g into path atomically: a temp file alongside the target
// is written, fsynced, then renamed over the target.
func Write(path string, g *graph.MemoryGraph) error {
	buf, err := Encode(g)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".amem-tmp-*")
	if err != nil {
		return graph.NewError(graph.KindStorageError, "create temp file").WithCause(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return graph.NewError(graph.KindStorageError, "write temp file").WithCause(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return graph.NewError(graph.KindStorageError, "fsync temp file").WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return graph.NewError(graph.KindStorageError, "close temp file").WithCause(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return graph.NewError(graph.KindStorageError, "rename into place").WithCause(err)
	}
	return nil
}

// Encode serializes g into the in-memory `.amem` byte layout, including the
// trailing BLAKE3 footer.
func Encode(g *graph.MemoryGraph) ([]byte, error) {
	var body bytes.Buffer

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, graph.NewError(graph.KindInternal, "init compressor").WithCause(err)
	}
	defer enc.Close()

	nodesOffset := uint64(HeaderSize)
	for _, n := range g.Nodes() {
		if err := encodeNode(&body, n, enc, g.Dimension); err != nil {
			return nil, graph.NewError(graph.KindStorageError, "encode node").WithCause(err)
		}
	}
	edgesOffset := nodesOffset + uint64(body.Len())
	for _, e := range g.Edges() {
		if err := encodeEdge(&body, e); err != nil {
			return nil, graph.NewError(graph.KindStorageError, "encode edge").WithCause(err)
		}
	}
	indexesOffset := nodesOffset + uint64(body.Len())
	// Indexes are intentionally not persisted (see DESIGN.md Open Question):
	// the reader always rebuilds term_index/doc_lengths/adjacency from the
	// arenas, so the indexes section is empty here.

	header := Header{
		Magic:         Magic,
		Version:       CurrentVersion,
		Dimension:     uint32(g.Dimension),
		NodeCount:     uint32(g.NodeCount()),
		EdgeCount:     uint32(g.EdgeCount()),
		NodesOffset:   nodesOffset,
		EdgesOffset:   edgesOffset,
		IndexesOffset: indexesOffset,
		CreatedAt:     uint64(time.Now().UnixMicro()),
	}

	var out bytes.Buffer
	if _, err := header.WriteTo(&out); err != nil {
		return nil, err
	}
	if _, err := out.Write(body.Bytes()); err != nil {
		return nil, err
	}

	sum := checksum(out.Bytes())
	out.Write(sum[:])
	return out.Bytes(), nil
}

// Read opens and parses path, validating the footer checksum, and returns a
// fully indexed MemoryGraph.
func Read(path string) (*graph.MemoryGraph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, graph.NewError(graph.KindNotFound, "file does not exist").WithCause(err)
		}
		return nil, graph.NewError(graph.KindStorageError, "read file").WithCause(err)
	}
	return Decode(raw)
}

// Decode parses the `.amem` byte layout produced by Encode.
func Decode(raw []byte) (*graph.MemoryGraph, error) {
	if len(raw) < HeaderSize+FooterSize {
		return nil, graph.Corrupt(0, "file too small")
	}

	body := raw[:len(raw)-FooterSize]
	wantSum := checksum(body)
	gotSum := raw[len(raw)-FooterSize:]
	if !bytes.Equal(wantSum[:], gotSum) {
		return nil, graph.NewError(graph.KindChecksumMismatch, "footer checksum mismatch")
	}

	r := bytes.NewReader(body)
	var header Header
	if _, err := header.ReadFrom(r); err != nil {
		return nil, graph.Corrupt(0, "truncated header").WithCause(err)
	}
	if header.Magic != Magic {
		return nil, graph.Corrupt(0, "bad magic")
	}
	if header.Version > CurrentVersion {
		return nil, graph.NewError(graph.KindVersionMismatch,
			fmt.Sprintf("file version %d newer than supported %d", header.Version, CurrentVersion))
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, graph.NewError(graph.KindInternal, "init decompressor").WithCause(err)
	}
	defer dec.Close()

	g := graph.New(int(header.Dimension))
	for i := uint32(0); i < header.NodeCount; i++ {
		n, err := decodeNode(r, dec, int(header.Dimension))
		if err != nil {
			return nil, wrapCorrupt(err, int64(r.Size())-int64(r.Len()))
		}
		g.InsertRaw(n)
	}
	for i := uint32(0); i < header.EdgeCount; i++ {
		e, err := decodeEdge(r)
		if err != nil {
			return nil, wrapCorrupt(err, int64(r.Size())-int64(r.Len()))
		}
		if err := g.InsertRawEdge(e); err != nil {
			return nil, err
		}
	}
	g.RebuildIndexes()
	return g, nil
}

func wrapCorrupt(err error, offset int64) error {
	if ae, ok := err.(*graph.AmemError); ok && ae.Kind == graph.KindCorrupt {
		ae.Offset = offset
		return ae
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return graph.Corrupt(offset, "truncated record").WithCause(err)
	}
	return graph.NewError(graph.KindStorageError, "read record").WithCause(err)
}
