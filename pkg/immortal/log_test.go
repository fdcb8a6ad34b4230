package immortal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func tempLogPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session.immortal")
}

func testTierConfig() TierConfig {
	cfg := DefaultTierConfig()
	cfg.migrateEvery = 0 // no background worker in unit tests
	return cfg
}

func TestOpenOnFreshPathStartsEmptyChain(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	require.Equal(t, 0, len(l.Blocks()))
	report := l.VerifyIntegrity()
	require.True(t, report.Verified)
	require.Equal(t, 0, report.BlocksChecked)
}

// TestCaptureMessageAndFileOpVerifiesAndResurrects is the concrete
// round-trip scenario: capture a message and a file creation, verify the chain,
// resurrect "now" and find the file creation in the replayed state, then
// reopen the log in a fresh process-equivalent handle and confirm the chain
// still verifies and the first block's previous_hash is the all-zero
// genesis hash.
func TestCaptureMessageAndFileOpVerifiesAndResurrects(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)

	_, err = l.CaptureMessage("hello")
	require.NoError(t, err)

	_, err = l.CaptureFileOp("/a.txt", FileCreate, "create_file /a.txt")
	require.NoError(t, err)

	report := l.VerifyIntegrity()
	require.True(t, report.Verified)
	require.Equal(t, 2, report.BlocksChecked)
	require.True(t, report.ChainIntact)
	require.Empty(t, report.MissingBlocks)
	require.Empty(t, report.CorruptedBlocks)

	res := l.Resurrect(time.Now().UnixMicro())
	require.Equal(t, 2, res.BlockCount)
	fs, ok := res.FilesState["/a.txt"]
	require.True(t, ok)
	require.Equal(t, FileCreate, fs.Op)

	blocks := l.Blocks()
	require.Len(t, blocks, 2)
	require.Equal(t, genesisHash, blocks[0].PreviousHash)

	require.NoError(t, l.Close())

	reopened, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	report2 := reopened.VerifyIntegrity()
	require.True(t, report2.Verified)
	require.Equal(t, 2, report2.BlocksChecked)

	reopenedBlocks := reopened.Blocks()
	require.Equal(t, genesisHash, reopenedBlocks[0].PreviousHash)
}

func TestHashChainLinksEachBlockToItsPredecessor(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	first, err := l.CaptureMessage("one")
	require.NoError(t, err)
	second, err := l.CaptureMessage("two")
	require.NoError(t, err)
	third, err := l.CaptureMessage("three")
	require.NoError(t, err)

	require.Equal(t, first.Hash, second.PreviousHash)
	require.Equal(t, second.Hash, third.PreviousHash)
}

func TestVerifyIntegrityDetectsTamperedPayload(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	_, err = l.CaptureMessage("original")
	require.NoError(t, err)

	l.blocks[0].PayloadBytes[len(l.blocks[0].PayloadBytes)-1] ^= 0xFF

	report := l.VerifyIntegrity()
	require.False(t, report.Verified)
	require.Contains(t, report.CorruptedBlocks, uint64(0))
}

func TestCaptureDecisionRecordsCausalEvidence(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	msg, err := l.CaptureMessage("the build is failing")
	require.NoError(t, err)

	_, err = l.CaptureDecision("roll back the last deploy", []uint64{msg.Sequence})
	require.NoError(t, err)

	chain, err := l.index.causalChain(msg.Sequence, 5)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, chain)
}

func TestSearchSemanticRanksByTokenOverlap(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	_, err = l.CaptureMessage("deploy the staging environment")
	require.NoError(t, err)
	_, err = l.CaptureMessage("completely unrelated chatter")
	require.NoError(t, err)
	_, err = l.CaptureMessage("deploy production now")
	require.NoError(t, err)

	hits, err := l.SearchSemantic("deploy", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, b := range hits {
		require.Contains(t, b.Text, "deploy")
	}
}

func TestSearchEntityFindsFileOpsByPath(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	_, err = l.CaptureFileOp("/src/main.go", FileModify, "edited main")
	require.NoError(t, err)
	_, err = l.CaptureFileOp("/src/other.go", FileCreate, "new file")
	require.NoError(t, err)

	hits, err := l.SearchEntity("/src/main.go")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, FileModify, hits[0].FileOp)
}

func TestRetrieveRecencyOrdersNewestFirstWithinBudget(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	for _, text := range []string{"first", "second", "third"} {
		_, err := l.CaptureMessage(text)
		require.NoError(t, err)
	}

	result := l.Retrieve(RetrieveRequest{Strategy: StrategyRecency})
	require.Len(t, result.Blocks, 3)
	require.Equal(t, "third", result.Blocks[0].Text)
	require.Equal(t, "first", result.Blocks[2].Text)
	require.True(t, result.TokensUsed > 0)
}

func TestRetrieveRespectsTokenBudget(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 10; i++ {
		_, err := l.CaptureMessage("a message with a handful of words in it")
		require.NoError(t, err)
	}

	result := l.Retrieve(RetrieveRequest{Strategy: StrategyRecency, TokenBudget: 1})
	require.True(t, result.TokensUsed <= 1)
}

func TestSessionResumeCapsRecentMessagesAndListsFiles(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 5; i++ {
		_, err := l.CaptureMessage("msg")
		require.NoError(t, err)
	}
	_, err = l.CaptureFileOp("/x.txt", FileCreate, "created")
	require.NoError(t, err)

	state := l.SessionResume(2)
	require.Len(t, state.RecentMessages, 2)
	require.Equal(t, []string{"/x.txt"}, state.AllFiles)
	require.Equal(t, 6, state.BlockCount)
}

func TestHasEntityPrefixFindsPathsUnderADirectory(t *testing.T) {
	path := tempLogPath(t)
	l, err := Open(path, testTierConfig(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	_, err = l.CaptureFileOp("/src/pkg/immortal/log.go", FileModify, "edited")
	require.NoError(t, err)

	require.True(t, l.HasEntityPrefix("/src/pkg"))
	require.False(t, l.HasEntityPrefix("/other"))
}

func TestAcquireLockRejectsConcurrentHolderThenSucceedsAfterRelease(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "session.immortal.lock")

	first, err := acquireLock(lockPath, time.Second)
	require.NoError(t, err)

	_, err = acquireLock(lockPath, 100*time.Millisecond)
	require.Error(t, err)

	require.NoError(t, first.release())

	second, err := acquireLock(lockPath, time.Second)
	require.NoError(t, err)
	require.NoError(t, second.release())
}

func TestAcquireLockBreaksStaleLockFromDeadPID(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "session.immortal.lock")

	stale, err := acquireLock(lockPath, time.Second)
	require.NoError(t, err)
	stale.file.Truncate(0)
	stale.file.Seek(0, 0)
	stale.file.WriteString("999999999")
	stale.file.Sync()

	require.NoError(t, stale.file.Close())
	stale.file = nil

	l, err := acquireLock(lockPath, 200*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, l.release())
}
