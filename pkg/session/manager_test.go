package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xeolabs/amemcore/pkg/graph"
)

func tempMemPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "brain.amem")
}

func TestOpenCreatesNewFileAndStartsSessionOne(t *testing.T) {
	path := tempMemPath(t)
	m, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, uint32(1), m.CurrentSessionID())
	require.Equal(t, 0, m.Graph().NodeCount())
}

func TestAddEventMarksDirtyAndAutoSavesWhenIntervalElapsed(t *testing.T) {
	path := tempMemPath(t)
	t.Setenv("AMEM_AUTOSAVE_SECS", "0")
	m, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	nodeID, edgeCount, err := m.AddEvent(graph.EventFact, "hello", 0.8, nil)
	require.NoError(t, err)
	require.Equal(t, 0, edgeCount)
	require.False(t, m.dirty)

	_, err = os.Stat(path)
	require.NoError(t, err)

	node, ok := m.Graph().GetNode(nodeID)
	require.True(t, ok)
	require.Equal(t, "hello", node.Content)
}

func TestCorrectNodeSupersedesAndDirties(t *testing.T) {
	path := tempMemPath(t)
	m, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	oldID, _, err := m.AddEvent(graph.EventFact, "the sky is green", 0.9, nil)
	require.NoError(t, err)

	newID, err := m.CorrectNode(oldID, "the sky is blue")
	require.NoError(t, err)
	require.NotEqual(t, oldID, newID)

	old, _ := m.Graph().GetNode(oldID)
	require.Zero(t, old.Confidence)
}

func TestCompressSessionSavesImmediately(t *testing.T) {
	path := tempMemPath(t)
	m, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	_, _, err = m.AddEvent(graph.EventFact, "a", 0.5, nil)
	require.NoError(t, err)

	episodeID, err := m.CompressSession(m.CurrentSessionID(), "summary")
	require.NoError(t, err)
	require.False(t, m.dirty)

	episode, ok := m.Graph().GetNode(episodeID)
	require.True(t, ok)
	require.Equal(t, graph.EventEpisode, episode.EventType)
}

func TestMaybeAutoBackupWritesABackupFile(t *testing.T) {
	path := tempMemPath(t)
	m, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	m.cfg.backupInterval = 0

	_, _, err = m.AddEvent(graph.EventFact, "a", 0.5, nil)
	require.NoError(t, err)
	require.NoError(t, m.Save())
	m.saveGeneration++

	require.NoError(t, m.MaybeAutoBackup())

	entries, err := os.ReadDir(m.cfg.backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPruneOldBackupsKeepsOnlyRetentionCount(t *testing.T) {
	path := tempMemPath(t)
	m, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	m.cfg.backupRetention = 2
	require.NoError(t, os.MkdirAll(m.cfg.backupDir, 0o755))

	names := []string{"a.amem.bak", "b.amem.bak", "c.amem.bak", "d.amem.bak"}
	for i, name := range names {
		p := filepath.Join(m.cfg.backupDir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		mtime := time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}

	require.NoError(t, m.pruneOldBackups())

	entries, err := os.ReadDir(m.cfg.backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "c.amem.bak", entries[0].Name())
	require.Equal(t, "d.amem.bak", entries[1].Name())
}

func TestEmitHealthLedgerWritesJSONPayload(t *testing.T) {
	path := tempMemPath(t)
	dir := t.TempDir()
	t.Setenv("AMEM_HEALTH_LEDGER_DIR", dir)
	m, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	m.lastHealthLedgerEmit = time.Time{}

	require.NoError(t, m.EmitHealthLedger("normal"))

	raw, err := os.ReadFile(filepath.Join(dir, "agentic-memory.json"))
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, "AgenticMemory", payload["project"])
	require.Equal(t, "ok", payload["status"])
}

func TestMaintenanceTickThrottlesUnderSLAPressure(t *testing.T) {
	path := tempMemPath(t)
	m, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	m.cfg.slaMaxMutationsPerMin = 1

	for i := 0; i < 5; i++ {
		m.recordMutation()
	}
	require.True(t, m.shouldThrottleMaintenance())

	require.NoError(t, m.RunMaintenanceTick())
	require.Equal(t, uint64(1), m.maintenanceThrottleCount)
}

func TestAutonomicProfileFromEnvDefaultsToDesktop(t *testing.T) {
	require.Equal(t, ProfileDesktop, autonomicProfileFromEnv("AMEM_AUTONOMIC_PROFILE_UNSET_FOR_TEST"))

	t.Setenv("AMEM_AUTONOMIC_PROFILE", "cloud")
	require.Equal(t, ProfileCloud, autonomicProfileFromEnv("AMEM_AUTONOMIC_PROFILE"))
}
