package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xeolabs/amemcore/internal/amemfile"
	"github.com/xeolabs/amemcore/pkg/graph"
	"github.com/xeolabs/amemcore/pkg/pool"
	"github.com/xeolabs/amemcore/pkg/query"
	"github.com/xeolabs/amemcore/pkg/write"
)

// CurrentAmemVersion is the storage version this manager writes. Kept in
// step with internal/amemfile.CurrentVersion.
const CurrentAmemVersion = amemfile.CurrentVersion

// mutationWindow is the rolling window recordMutation uses to estimate the
// current sustained mutation rate for SLA throttling.
const mutationWindow = 60 * time.Second

// EdgeSpec is one (target, type, weight) triple attached to a node added via
// AddEvent.
type EdgeSpec struct {
	TargetID uint64
	EdgeType graph.EdgeType
	Weight   float32
}

// Manager owns the lifecycle of one memory graph backed by one .amem file:
// opening/migrating it, tracking the active session, throttled autosave and
// backup, a sleep-cycle maintenance pass, and health-ledger snapshots.
//
// A Manager is not safe for concurrent use; callers serialize access the
// same way the graph itself expects a single writer.
type Manager struct {
	graph       *graph.MemoryGraph
	query       *query.Engine
	write       *write.Engine
	filePath    string
	currentSession uint32

	cfg   config
	log   *zap.Logger

	dirty             bool
	lastSave          time.Time
	saveGeneration    uint64
	lastBackupGen     uint64
	lastBackup        time.Time
	lastSleepCycle    time.Time
	lastActivity      time.Time
	mutationWindowStart time.Time
	mutationWindowCount uint32
	maintenanceThrottleCount uint64
	lastHealthLedgerEmit     time.Time
}

// Open reads or creates the memory file at path, derives the active
// autonomic profile and per-setting overrides from the environment, and
// starts a new session numbered one past the highest existing session id.
func Open(path string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := loadConfig(path)
	_, statErr := os.Stat(path)
	fileExisted := statErr == nil

	var g *graph.MemoryGraph
	if fileExisted {
		logger.Info("opening existing memory file", zap.String("path", path))
		loaded, err := amemfile.Open(path, cfg.migrationPolicy)
		if err != nil {
			return nil, fmt.Errorf("open memory file: %w", err)
		}
		g = loaded
	} else {
		logger.Info("creating new memory file", zap.String("path", path))
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
		g = graph.New(0)
	}

	sessionIDs := g.SessionIDs()
	currentSession := uint32(1)
	if len(sessionIDs) > 0 {
		currentSession = sessionIDs[len(sessionIDs)-1] + 1
	}

	logger.Info("session started",
		zap.Uint32("session_id", currentSession),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()))
	logger.Info("autonomic profile resolved",
		zap.String("profile", string(cfg.profile)),
		zap.String("migration_policy", string(cfg.migrationPolicy)))

	saveGen := uint64(0)
	if fileExisted {
		saveGen = 1
	}

	m := &Manager{
		graph:          g,
		query:          query.New(),
		write:          write.New(g.Dimension),
		filePath:       path,
		currentSession: currentSession,
		cfg:            cfg,
		log:            logger,
		lastSave:       time.Now(),
		saveGeneration: saveGen,
		lastBackup:     time.Now(),
		lastSleepCycle: time.Now(),
		lastActivity:   time.Now(),
		mutationWindowStart: time.Now(),
		lastHealthLedgerEmit: time.Now().Add(-cfg.healthLedgerInterval),
	}

	return m, nil
}

// Graph returns the managed graph for read access.
func (m *Manager) Graph() *graph.MemoryGraph { return m.graph }

// QueryEngine returns the stateless query engine bound to this manager's
// graph; callers pass Graph() to each of its methods.
func (m *Manager) QueryEngine() *query.Engine { return m.query }

// WriteEngine returns the write engine bound to this manager's feature
// vector dimension.
func (m *Manager) WriteEngine() *write.Engine { return m.write }

// CurrentSessionID returns the session new events are attributed to.
func (m *Manager) CurrentSessionID() uint32 { return m.currentSession }

// FilePath returns the backing .amem path.
func (m *Manager) FilePath() string { return m.filePath }

// StartSession switches the active session, creating a fresh id one past
// the current maximum when explicitID is nil.
func (m *Manager) StartSession(explicitID *uint32) uint32 {
	sessionID := uint32(0)
	if explicitID != nil {
		sessionID = *explicitID
	} else {
		ids := m.graph.SessionIDs()
		if len(ids) > 0 {
			sessionID = ids[len(ids)-1] + 1
		} else {
			sessionID = 1
		}
	}
	m.currentSession = sessionID
	m.lastActivity = time.Now()
	m.log.Info("session started", zap.Uint32("session_id", sessionID))
	return sessionID
}

// AddEvent ingests a single node for the active session and any edges it
// should originate, marks the graph dirty, and triggers MaybeAutoSave.
func (m *Manager) AddEvent(eventType graph.EventType, content string, confidence float32, edges []EdgeSpec) (uint64, int, error) {
	event := graph.CognitiveEvent{
		EventType:  eventType,
		SessionID:  m.currentSession,
		Confidence: confidence,
		Content:    content,
	}

	result, err := m.write.Ingest(m.graph, []graph.CognitiveEvent{event}, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("add event: %w", err)
	}
	if len(result.NewNodeIDs) == 0 {
		return 0, 0, graph.NewError(graph.KindInternal, "ingest returned no node id")
	}
	nodeID := result.NewNodeIDs[0]

	edgeCount := 0
	for _, spec := range edges {
		if err := m.graph.AddEdge(graph.NewEdge(nodeID, spec.TargetID, spec.EdgeType, spec.Weight)); err != nil {
			return nodeID, edgeCount, fmt.Errorf("add edge: %w", err)
		}
		edgeCount++
	}
	m.graph.EnsureAdjacency()

	m.markDirtyLocked()
	if err := m.MaybeAutoSave(); err != nil {
		return nodeID, edgeCount, err
	}
	return nodeID, edgeCount, nil
}

// CorrectNode supersedes oldNodeID with a new Correction node in the active
// session.
func (m *Manager) CorrectNode(oldNodeID uint64, newContent string) (uint64, error) {
	newID, err := m.write.Correct(m.graph, oldNodeID, newContent, m.currentSession)
	if err != nil {
		return 0, fmt.Errorf("correct node: %w", err)
	}
	m.markDirtyLocked()
	if err := m.MaybeAutoSave(); err != nil {
		return newID, err
	}
	return newID, nil
}

// CompressSession creates an episode summary for sessionID, saves
// immediately (an episode boundary is a natural save point), and returns the
// new episode node id.
func (m *Manager) CompressSession(sessionID uint32, summary string) (uint64, error) {
	episodeID, err := m.write.CompressSession(m.graph, sessionID, summary)
	if err != nil {
		return 0, fmt.Errorf("compress session: %w", err)
	}
	m.markDirtyLocked()
	if err := m.Save(); err != nil {
		return episodeID, err
	}
	m.log.Info("session ended",
		zap.Uint32("session_id", sessionID),
		zap.Uint64("episode_id", episodeID))
	return episodeID, nil
}

// markDirtyLocked flags the graph dirty, bumps last-activity, and records a
// mutation for the SLA rate estimator. Named "Locked" to mirror write.Engine
// callers that always hold the single-writer discipline; Manager itself has
// no internal mutex.
func (m *Manager) markDirtyLocked() {
	m.dirty = true
	m.lastActivity = time.Now()
	m.recordMutation()
}

// MarkDirty exposes markDirtyLocked for callers that mutate the graph
// directly (e.g. via Graph()) outside of AddEvent/CorrectNode.
func (m *Manager) MarkDirty() { m.markDirtyLocked() }

func (m *Manager) recordMutation() {
	if time.Since(m.mutationWindowStart) >= mutationWindow {
		m.mutationWindowStart = time.Now()
		m.mutationWindowCount = 0
	}
	m.mutationWindowCount++
}

func (m *Manager) mutationRatePerMin() uint32 {
	elapsed := time.Since(m.mutationWindowStart).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	rate := float64(m.mutationWindowCount) * 60 / elapsed
	return uint32(rate)
}

func (m *Manager) shouldThrottleMaintenance() bool {
	return m.mutationRatePerMin() > m.cfg.slaMaxMutationsPerMin
}

// Save writes the graph to FilePath if dirty.
func (m *Manager) Save() error {
	if !m.dirty {
		return nil
	}
	if err := amemfile.Write(m.filePath, m.graph); err != nil {
		return fmt.Errorf("write memory file: %w", err)
	}
	m.dirty = false
	m.lastSave = time.Now()
	m.saveGeneration++
	m.log.Debug("saved memory file", zap.String("path", m.filePath))
	return nil
}

// MaybeAutoSave saves if dirty and the auto-save interval has elapsed.
func (m *Manager) MaybeAutoSave() error {
	if m.dirty && time.Since(m.lastSave) >= m.cfg.autoSaveInterval {
		return m.Save()
	}
	return nil
}

// RunMaintenanceTick runs one maintenance cycle: under SLA pressure it only
// autosaves and emits a throttled health-ledger snapshot; otherwise it runs
// the sleep cycle, autosave, and auto-backup in sequence.
func (m *Manager) RunMaintenanceTick() error {
	if m.shouldThrottleMaintenance() {
		m.maintenanceThrottleCount++
		if err := m.MaybeAutoSave(); err != nil {
			return err
		}
		if err := m.EmitHealthLedger("throttled"); err != nil {
			return err
		}
		m.log.Debug("maintenance throttled by SLA guard",
			zap.Uint32("mutation_rate", m.mutationRatePerMin()),
			zap.Uint32("threshold", m.cfg.slaMaxMutationsPerMin))
		return nil
	}

	if err := m.MaybeRunSleepCycle(); err != nil {
		return err
	}
	if err := m.MaybeAutoSave(); err != nil {
		return err
	}
	if err := m.MaybeAutoBackup(); err != nil {
		return err
	}
	return m.EmitHealthLedger("normal")
}

// MaybeRunSleepCycle runs decay refresh, tier counting for the log, and session
// auto-archival once the sleep-cycle interval has elapsed since the last
// run and the graph has been idle for at least the idle minimum.
func (m *Manager) MaybeRunSleepCycle() error {
	if time.Since(m.lastSleepCycle) < m.cfg.sleepCycleInterval {
		return nil
	}
	if time.Since(m.lastActivity) < m.cfg.sleepIdleMin {
		return nil
	}

	now := time.Now().UnixMicro()
	decayReport := m.write.RunDecay(m.graph, now)
	archived, err := m.autoArchiveCompletedSessions()
	if err != nil {
		return fmt.Errorf("sleep-cycle auto-archive: %w", err)
	}

	if decayReport.NodesDecayed > 0 || archived > 0 {
		m.dirty = true
		if err := m.Save(); err != nil {
			return err
		}
	}

	hot, warm, cold := m.tierCounts()
	m.lastSleepCycle = time.Now()
	m.log.Info("sleep cycle complete",
		zap.Int("decayed", decayReport.NodesDecayed),
		zap.Int("archived_sessions", archived),
		zap.Int("hot", hot), zap.Int("warm", warm), zap.Int("cold", cold))
	return nil
}

// autoArchiveCompletedSessions compresses every completed session (session
// id below the active one, no existing episode node, and at least
// archiveMinSessionNodes event nodes) into a summary episode.
func (m *Manager) autoArchiveCompletedSessions() (int, error) {
	sessionIDs := m.graph.SessionIDs()
	archived := 0

	for _, sessionID := range sessionIDs {
		if sessionID >= m.currentSession {
			continue
		}
		nodeIDs := m.graph.NodesBySession(sessionID)
		if len(nodeIDs) == 0 {
			continue
		}

		hasEpisode := false
		eventNodes, hot, warm, cold := 0, 0, 0, 0
		for _, nodeID := range nodeIDs {
			node, ok := m.graph.GetNode(nodeID)
			if !ok {
				continue
			}
			if node.EventType == graph.EventEpisode {
				hasEpisode = true
				continue
			}
			eventNodes++
			switch {
			case node.DecayScore >= m.cfg.hotMinDecay:
				hot++
			case node.DecayScore >= m.cfg.warmMinDecay:
				warm++
			default:
				cold++
			}
		}

		if hasEpisode || eventNodes < m.cfg.archiveMinSessionNodes {
			continue
		}

		summary := fmt.Sprintf("Auto-archive session %d: %d events (%d hot / %d warm / %d cold)",
			sessionID, eventNodes, hot, warm, cold)
		if _, err := m.write.CompressSession(m.graph, sessionID, summary); err != nil {
			return archived, fmt.Errorf("auto-archive session %d: %w", sessionID, err)
		}
		archived++
	}

	return archived, nil
}

func (m *Manager) tierCounts() (hot, warm, cold int) {
	for _, n := range m.graph.Nodes() {
		if n.EventType == graph.EventEpisode {
			continue
		}
		switch {
		case n.DecayScore >= m.cfg.hotMinDecay:
			hot++
		case n.DecayScore >= m.cfg.warmMinDecay:
			warm++
		default:
			cold++
		}
	}
	return hot, warm, cold
}

// MaybeAutoBackup copies the current file into the backup directory once
// the backup interval has elapsed since the last backup, provided the file
// has actually changed (a newer save generation) since then, and prunes old
// backups beyond the retention count.
func (m *Manager) MaybeAutoBackup() error {
	if time.Since(m.lastBackup) < m.cfg.backupInterval {
		return nil
	}
	if m.saveGeneration <= m.lastBackupGen {
		return nil
	}
	if _, err := os.Stat(m.filePath); err != nil {
		return nil
	}

	if err := os.MkdirAll(m.cfg.backupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	backupPath := m.nextBackupPath()
	if err := copyFile(m.filePath, backupPath); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	m.lastBackupGen = m.saveGeneration
	m.lastBackup = time.Now()
	if err := m.pruneOldBackups(); err != nil {
		return err
	}
	m.log.Info("auto-backup written", zap.String("path", backupPath))
	return nil
}

func (m *Manager) nextBackupPath() string {
	stem := stripExt(filepath.Base(m.filePath))
	ts := time.Now().UTC().Format("20060102150405")
	return filepath.Join(m.cfg.backupDir, fmt.Sprintf("%s.%s.amem.bak", stem, ts))
}

func (m *Manager) pruneOldBackups() error {
	entries, err := os.ReadDir(m.cfg.backupDir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}

	type backupFile struct {
		path    string
		modTime time.Time
	}
	var backups []backupFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".bak" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backupFile{path: filepath.Join(m.cfg.backupDir, e.Name()), modTime: info.ModTime()})
	}

	if len(backups) <= m.cfg.backupRetention {
		return nil
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].modTime.Before(backups[j].modTime) })

	toRemove := len(backups) - m.cfg.backupRetention
	for _, b := range backups[:toRemove] {
		_ = os.Remove(b.path)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func stripExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}

// EmitHealthLedger atomically writes a JSON snapshot of autonomic, SLA,
// storage, and graph-tier state to the health-ledger directory, throttled to
// once per healthLedgerInterval.
func (m *Manager) EmitHealthLedger(maintenanceMode string) error {
	if time.Since(m.lastHealthLedgerEmit) < m.cfg.healthLedgerInterval {
		return nil
	}

	dir := m.cfg.healthLedgerDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create health ledger dir: %w", err)
	}
	path := filepath.Join(dir, "agentic-memory.json")
	tmp := filepath.Join(dir, "agentic-memory.json.tmp")

	hot, warm, cold := m.tierCounts()
	payload := m.healthLedgerPayload(maintenanceMode, hot, warm, cold)

	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write health ledger: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename health ledger: %w", err)
	}
	m.lastHealthLedgerEmit = time.Now()
	return nil
}

// Close saves any pending mutation and runs one final backup, mirroring the
// teardown a defer/Drop-style call site expects.
func (m *Manager) Close() error {
	var errs []error
	if m.dirty {
		if err := m.Save(); err != nil {
			m.log.Error("failed to save on close", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if err := m.MaybeAutoBackup(); err != nil {
		m.log.Error("failed auto-backup on close", zap.Error(err))
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// healthLedgerPayload renders the JSON document EmitHealthLedger writes.
func (m *Manager) healthLedgerPayload(maintenanceMode string, hot, warm, cold int) []byte {
	m2 := pool.GetMap()
	defer pool.PutMap(m2)

	m2["project"] = "AgenticMemory"
	m2["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	m2["status"] = "ok"
	m2["autonomic"] = map[string]interface{}{
		"profile":          string(m.cfg.profile),
		"migration_policy": string(m.cfg.migrationPolicy),
		"maintenance_mode": maintenanceMode,
		"throttle_count":   m.maintenanceThrottleCount,
	}
	m2["sla"] = map[string]interface{}{
		"mutation_rate_per_min": m.mutationRatePerMin(),
		"max_mutations_per_min": m.cfg.slaMaxMutationsPerMin,
	}
	m2["storage"] = map[string]interface{}{
		"file":            m.filePath,
		"dirty":           m.dirty,
		"save_generation": m.saveGeneration,
		"backup_retention": m.cfg.backupRetention,
	}
	m2["graph"] = map[string]interface{}{
		"nodes": m.graph.NodeCount(),
		"edges": m.graph.EdgeCount(),
		"tiers": map[string]interface{}{"hot": hot, "warm": warm, "cold": cold},
	}

	bytes, err := json.MarshalIndent(m2, "", "  ")
	if err != nil {
		// m2's values are all JSON-safe primitives/maps; MarshalIndent
		// only fails on cyclic structures or unsupported types, neither
		// of which this payload can contain.
		return []byte("{}")
	}
	return bytes
}
