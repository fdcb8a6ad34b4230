package amemfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xeolabs/amemcore/pkg/graph"
)

func buildSampleGraph(t *testing.T) *graph.MemoryGraph {
	t.Helper()
	b := graph.NewBuilder()
	a := b.AddFact("the sky is blue", 1, 0.9)
	d := b.AddDecision("ship it", 1, 0.8)
	b.Link(a, d, graph.EdgeSupports, 0.7)
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	g := buildSampleGraph(t)
	buf, err := Encode(g)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)

	require.Equal(t, g.NodeCount(), got.NodeCount())
	require.Equal(t, g.EdgeCount(), got.EdgeCount())

	for _, n := range g.Nodes() {
		gn, ok := got.GetNode(n.ID)
		require.True(t, ok)
		require.Equal(t, n.Content, gn.Content)
		require.Equal(t, n.EventType, gn.EventType)
		require.InDelta(t, n.Confidence, gn.Confidence, 1e-6)
	}
	for i, e := range g.Edges() {
		ge := got.Edges()[i]
		require.Equal(t, e.SourceID, ge.SourceID)
		require.Equal(t, e.TargetID, ge.TargetID)
		require.Equal(t, e.EdgeType, ge.EdgeType)
	}
}

func TestWriteReadRoundTripOnDisk(t *testing.T) {
	g := buildSampleGraph(t)
	path := filepath.Join(t.TempDir(), "brain.amem")
	require.NoError(t, Write(path, g))

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, g.NodeCount(), got.NodeCount())
	require.Equal(t, g.EdgeCount(), got.EdgeCount())
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	g := buildSampleGraph(t)
	buf, err := Encode(g)
	require.NoError(t, err)
	buf[len(buf)-1] ^= 0xFF

	_, err = Decode(buf)
	require.Error(t, err)
	var amemErr *graph.AmemError
	require.ErrorAs(t, err, &amemErr)
	require.Equal(t, graph.KindChecksumMismatch, amemErr.Kind)
}

func TestDecodeRejectsFutureVersion(t *testing.T) {
	g := buildSampleGraph(t)
	buf, err := Encode(g)
	require.NoError(t, err)
	// Bump the version field (bytes 4:8) past CurrentVersion, then
	// recompute the footer so only version-mismatch is exercised.
	buf[4] = 99
	fresh, err := Encode(g)
	require.NoError(t, err)
	_ = fresh

	body := buf[:len(buf)-FooterSize]
	sum := checksum(body)
	copy(buf[len(buf)-FooterSize:], sum[:])

	_, err = Decode(buf)
	require.Error(t, err)
	var amemErr *graph.AmemError
	require.ErrorAs(t, err, &amemErr)
	require.Equal(t, graph.KindVersionMismatch, amemErr.Kind)
}
