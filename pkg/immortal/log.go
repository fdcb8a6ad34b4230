package immortal

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// TierConfig makes the Immortal Log's tier-migration thresholds configurable
// rather than hard-coded, since spec.md's source material disagrees on
// whether migration should be size-, age-, or count-triggered.
type TierConfig struct {
	HotMaxBlocks int           // resident block count before the hot tier evicts
	HotMaxBytes  int           // resident byte budget before the hot tier evicts
	WarmMaxAge   time.Duration // blocks older than this classify as cold
	ColdMaxAge   time.Duration // blocks older than this classify as frozen
	migrateEvery time.Duration // worker tick period; zero disables the worker
}

// DefaultTierConfig mirrors the desktop session profile's cadence: a modest
// hot window, a day in warm, a week in cold before frozen.
func DefaultTierConfig() TierConfig {
	return TierConfig{
		HotMaxBlocks: 512,
		HotMaxBytes:  4 << 20,
		WarmMaxAge:   24 * time.Hour,
		ColdMaxAge:   7 * 24 * time.Hour,
		migrateEvery: 30 * time.Second,
	}
}

// Log is the append-only, hash-chained capture log for one session's
// messages, tool calls, file operations, and decisions. One Log owns one
// on-disk file (plus its ".lock" sibling) and an in-memory rebuildable
// secondary index.
type Log struct {
	mu sync.Mutex

	path string
	file *os.File
	lock *fileLock

	index  *secondaryIndex
	hot    *hotTier
	cfg    TierConfig
	entity *entityIndex

	blocks       []Block
	bySeq        map[uint64]Block
	nextSequence uint64
	lastHash     [32]byte

	log     *zap.Logger
	closeCh chan struct{}
	closeWg sync.WaitGroup
	closed  bool
}

// Open loads or creates the log at path, replaying every existing block to
// rebuild the in-memory chain state and secondary index, then starts the
// background tier-migration worker.
func Open(path string, cfg TierConfig, logger *zap.Logger) (*Log, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	lock, err := acquireLock(path+".lock", 5*time.Second)
	if err != nil {
		return nil, err
	}

	blocks, err := readAllBlocks(path)
	if err != nil {
		lock.release()
		return nil, err
	}

	// Cut any bytes past the last complete frame (a crash mid-append) so the
	// next append lands directly after it.
	var validLen int64
	for _, b := range blocks {
		validLen += int64(frameLen(b))
	}
	if info, statErr := os.Stat(path); statErr == nil && info.Size() > validLen {
		if err := os.Truncate(path, validLen); err != nil {
			lock.release()
			return nil, graph.NewError(graph.KindStorageError, "truncate incomplete log tail").WithCause(err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		lock.release()
		return nil, graph.NewError(graph.KindStorageError, "open log for append").WithCause(err)
	}

	idx, err := openSecondaryIndex(":memory:")
	if err != nil {
		f.Close()
		lock.release()
		return nil, err
	}

	l := &Log{
		path:    path,
		file:    f,
		lock:    lock,
		index:   idx,
		hot:     newHotTier(cfg.HotMaxBlocks, cfg.HotMaxBytes),
		cfg:     cfg,
		entity:  newEntityIndex(),
		bySeq:   make(map[uint64]Block, len(blocks)),
		log:     logger,
		closeCh: make(chan struct{}),
	}

	l.lastHash = genesisHash
	for _, b := range blocks {
		l.blocks = append(l.blocks, b)
		l.bySeq[b.Sequence] = b
		l.hot.push(b)
		entities := deriveEntities(b)
		if err := l.index.index(b, entities, nil); err != nil {
			l.log.Warn("rebuild secondary index for block failed", zap.Uint64("sequence", b.Sequence), zap.Error(err))
		}
		for _, e := range entities {
			l.entity.add(e, b.Sequence)
		}
		l.lastHash = b.Hash
	}
	l.nextSequence = uint64(len(blocks))

	if cfg.migrateEvery > 0 {
		l.closeWg.Add(1)
		go l.runMigrationWorker(cfg.migrateEvery)
	}

	return l, nil
}

// deriveEntities pulls the normalized identifiers a block's payload
// mentions: a file op's path, or a tool call's leading command name.
func deriveEntities(b Block) []string {
	switch b.PayloadTag {
	case TagFileOp:
		if b.Path == "" {
			return nil
		}
		return []string{b.Path}
	case TagToolCall:
		fields := strings.Fields(b.Text)
		if len(fields) == 0 {
			return nil
		}
		return []string{fields[0]}
	default:
		return nil
	}
}

// captureBlock appends, hashes, indexes, and caches one block. Holding l.mu
// across the append+fsync serializes writers within this process; cross
// process exclusion is the job of the acquireLock at Open.
func (l *Log) captureBlock(tag PayloadTag, text, path string, op FileOpKind, kind string, causalFrom []uint64) (Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload := encodePayload(tag, text, path, op, kind)
	b := newBlock(l.nextSequence, l.lastHash, tag, payload)
	if err := decodePayload(&b); err != nil {
		return Block{}, err
	}
	if err := appendBlock(l.file, b); err != nil {
		return Block{}, err
	}

	l.nextSequence++
	l.lastHash = b.Hash
	l.blocks = append(l.blocks, b)
	l.bySeq[b.Sequence] = b
	l.hot.push(b)

	entities := deriveEntities(b)
	if err := l.index.index(b, entities, causalFrom); err != nil {
		l.log.Warn("index block failed", zap.Uint64("sequence", b.Sequence), zap.Error(err))
	}
	for _, e := range entities {
		l.entity.add(e, b.Sequence)
	}
	return b, nil
}

// CaptureMessage records a chat message.
func (l *Log) CaptureMessage(text string) (Block, error) {
	return l.captureBlock(TagMessage, text, "", 0, "", nil)
}

// CaptureToolCall records a tool invocation; name is indexed as an entity.
func (l *Log) CaptureToolCall(name, args string) (Block, error) {
	text := name
	if args != "" {
		text = name + " " + args
	}
	return l.captureBlock(TagToolCall, text, "", 0, "", nil)
}

// CaptureFileOp records a filesystem mutation; path is indexed as an entity
// and tracked by resurrect's replay.
func (l *Log) CaptureFileOp(path string, op FileOpKind, detail string) (Block, error) {
	return l.captureBlock(TagFileOp, detail, path, op, "", nil)
}

// CaptureDecision records a decision, optionally causally linked to the
// sequences of the evidence blocks it rests on.
func (l *Log) CaptureDecision(text string, evidence []uint64) (Block, error) {
	return l.captureBlock(TagDecision, text, "", 0, "", evidence)
}

// CaptureBoundary records a context-window boundary (compaction, summary,
// session switch).
func (l *Log) CaptureBoundary(kind string, tokensBefore, tokensAfter int, summary string) (Block, error) {
	text := boundaryText(tokensBefore, tokensAfter, summary)
	return l.captureBlock(TagBoundary, text, "", 0, kind, nil)
}

// CaptureCheckpoint records an explicit named checkpoint, e.g. before a risky
// operation.
func (l *Log) CaptureCheckpoint(kind, text string) (Block, error) {
	return l.captureBlock(TagCheckpoint, text, "", 0, kind, nil)
}

func boundaryText(tokensBefore, tokensAfter int, summary string) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(tokensBefore))
	b.WriteString(" -> ")
	b.WriteString(strconv.Itoa(tokensAfter))
	b.WriteString(" tokens: ")
	b.WriteString(summary)
	return b.String()
}

// IntegrityReport is the result of walking the entire hash chain.
type IntegrityReport struct {
	Verified        bool
	BlocksChecked   int
	ChainIntact     bool
	MissingBlocks   []uint64
	CorruptedBlocks []uint64
}

// VerifyIntegrity recomputes every block's hash and checks that each
// previous_hash matches the prior block's hash, starting from the genesis
// all-zero hash.
func (l *Log) VerifyIntegrity() IntegrityReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	report := IntegrityReport{ChainIntact: true}
	prev := genesisHash
	for i, b := range l.blocks {
		if b.Sequence != uint64(i) {
			report.MissingBlocks = append(report.MissingBlocks, uint64(i))
			report.ChainIntact = false
			continue
		}
		if b.PreviousHash != prev {
			report.CorruptedBlocks = append(report.CorruptedBlocks, b.Sequence)
			report.ChainIntact = false
		} else if computeHash(b.Sequence, b.Timestamp, b.PreviousHash, b.PayloadTag, b.PayloadBytes) != b.Hash {
			report.CorruptedBlocks = append(report.CorruptedBlocks, b.Sequence)
			report.ChainIntact = false
		}
		prev = b.Hash
		report.BlocksChecked++
	}
	report.Verified = report.ChainIntact && len(report.MissingBlocks) == 0 && len(report.CorruptedBlocks) == 0
	return report
}

// Blocks returns a copy of the full in-order chain.
func (l *Log) Blocks() []Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// blocksBySequence returns the blocks whose sequence is in seqs, in seqs'
// order, skipping any sequence that is missing (should not happen outside
// tests that fabricate sequence numbers).
func (l *Log) blocksBySequence(seqs []uint64) []Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Block, 0, len(seqs))
	for _, seq := range seqs {
		if b, ok := l.bySeq[seq]; ok {
			out = append(out, b)
		}
	}
	return out
}

// tierClassify buckets every resident block into hot/warm/cold/frozen. Hot
// membership comes from the live hotTier cache; warm/cold/frozen are age
// bands off cfg.WarmMaxAge/ColdMaxAge. There is only one durable backing
// store (this log file) for every tier — "migration" here is a
// classification relabeling for reporting and retrieval weighting, not a
// data copy between storage backends.
func (l *Log) tierClassify() (hot, warm, cold, frozen int) {
	l.mu.Lock()
	blocks := append([]Block(nil), l.blocks...)
	cfg := l.cfg
	l.mu.Unlock()

	hotSeqs := make(map[uint64]bool)
	for _, b := range l.hot.snapshot() {
		hotSeqs[b.Sequence] = true
	}

	now := time.Now()
	for _, b := range blocks {
		if hotSeqs[b.Sequence] {
			hot++
			continue
		}
		age := now.Sub(time.UnixMicro(b.Timestamp))
		switch {
		case cfg.WarmMaxAge > 0 && age <= cfg.WarmMaxAge:
			warm++
		case cfg.ColdMaxAge > 0 && age <= cfg.ColdMaxAge:
			cold++
		default:
			frozen++
		}
	}
	return
}

// TierCounts exposes the current hot/warm/cold/frozen classification, for
// health reporting alongside session.Manager's own tier counts.
func (l *Log) TierCounts() (hot, warm, cold, frozen int) {
	return l.tierClassify()
}

func (l *Log) runMigrationWorker(every time.Duration) {
	defer l.closeWg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.closeCh:
			return
		case <-ticker.C:
			hot, warm, cold, frozen := l.tierClassify()
			l.log.Debug("immortal log tier classification",
				zap.Int("hot", hot), zap.Int("warm", warm), zap.Int("cold", cold), zap.Int("frozen", frozen))
		}
	}
}

// Close stops the migration worker and releases the file handle and lock.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.closeCh)
	l.closeWg.Wait()

	var firstErr error
	if err := l.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = graph.NewError(graph.KindStorageError, "close log file").WithCause(err)
	}
	if err := l.lock.release(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
