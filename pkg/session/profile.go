// Package session owns the lifecycle of one memory graph backed by one
// .amem file: open/close, autosave, periodic backup with retention pruning,
// a sleep-cycle maintenance pass (decay + session auto-archive), and a
// health-ledger snapshot writer.
package session

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xeolabs/amemcore/internal/amemfile"
)

// AutonomicProfile selects a bundle of maintenance-interval defaults.
type AutonomicProfile string

const (
	ProfileDesktop    AutonomicProfile = "desktop"
	ProfileCloud      AutonomicProfile = "cloud"
	ProfileAggressive AutonomicProfile = "aggressive"
)

// MigrationPolicy governs what Open does when it finds a legacy-version
// .amem file.
type MigrationPolicy = amemfile.MigrationPolicy

const (
	MigrationAutoSafe = amemfile.MigrationAutoSafe
	MigrationStrict   = amemfile.MigrationStrict
	MigrationOff      = amemfile.MigrationOff
)

// profileDefaults is the numeric table one AutonomicProfile expands to.
type profileDefaults struct {
	autoSaveSecs           uint64
	backupSecs             uint64
	backupRetention        int
	sleepCycleSecs         uint64
	sleepIdleSecs          uint64
	archiveMinSessionNodes int
	hotMinDecay            float32
	warmMinDecay           float32
	slaMaxMutationsPerMin  uint32
}

const (
	defaultHealthLedgerEmitSecs = 30
)

func autonomicProfileFromEnv(name string) AutonomicProfile {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch raw {
	case "cloud":
		return ProfileCloud
	case "aggressive":
		return ProfileAggressive
	default:
		return ProfileDesktop
	}
}

func migrationPolicyFromEnv(name string) MigrationPolicy {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch raw {
	case "strict":
		return MigrationStrict
	case "off", "disabled", "none":
		return MigrationOff
	default:
		return MigrationAutoSafe
	}
}

func (p AutonomicProfile) defaults() profileDefaults {
	switch p {
	case ProfileCloud:
		return profileDefaults{
			autoSaveSecs: 15, backupSecs: 600, backupRetention: 48,
			sleepCycleSecs: 900, sleepIdleSecs: 90, archiveMinSessionNodes: 50,
			hotMinDecay: 0.75, warmMinDecay: 0.4, slaMaxMutationsPerMin: 600,
		}
	case ProfileAggressive:
		return profileDefaults{
			autoSaveSecs: 10, backupSecs: 300, backupRetention: 16,
			sleepCycleSecs: 300, sleepIdleSecs: 45, archiveMinSessionNodes: 15,
			hotMinDecay: 0.8, warmMinDecay: 0.5, slaMaxMutationsPerMin: 900,
		}
	default:
		return profileDefaults{
			autoSaveSecs: 30, backupSecs: 900, backupRetention: 24,
			sleepCycleSecs: 1800, sleepIdleSecs: 180, archiveMinSessionNodes: 25,
			hotMinDecay: 0.7, warmMinDecay: 0.3, slaMaxMutationsPerMin: 240,
		}
	}
}

func readEnvU64(name string, def uint64) uint64 {
	if v, err := strconv.ParseUint(strings.TrimSpace(os.Getenv(name)), 10, 64); err == nil {
		return v
	}
	return def
}

func readEnvU32(name string, def uint32) uint32 {
	if v, err := strconv.ParseUint(strings.TrimSpace(os.Getenv(name)), 10, 32); err == nil {
		return uint32(v)
	}
	return def
}

func readEnvInt(name string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name))); err == nil {
		return v
	}
	return def
}

func readEnvF32(name string, def float32) float32 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(name)), 32); err == nil {
		return float32(v)
	}
	return def
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// config is a plain struct populated once, at Open time, from the profile
// defaults layered with any per-setting environment override.
type config struct {
	profile               AutonomicProfile
	migrationPolicy       MigrationPolicy
	autoSaveInterval      time.Duration
	backupInterval        time.Duration
	backupRetention       int
	backupDir             string
	sleepCycleInterval    time.Duration
	sleepIdleMin          time.Duration
	archiveMinSessionNodes int
	hotMinDecay           float32
	warmMinDecay          float32
	slaMaxMutationsPerMin uint32
	healthLedgerInterval  time.Duration
	healthLedgerDir       string
}

func loadConfig(memPath string) config {
	profile := autonomicProfileFromEnv("AMEM_AUTONOMIC_PROFILE")
	d := profile.defaults()

	hotMinDecay := clamp01(readEnvF32("AMEM_TIER_HOT_MIN_DECAY", d.hotMinDecay))
	warmMinDecay := clamp01(readEnvF32("AMEM_TIER_WARM_MIN_DECAY", d.warmMinDecay))
	if warmMinDecay > hotMinDecay {
		warmMinDecay = hotMinDecay
	}

	backupSecs := readEnvU64("AMEM_AUTO_BACKUP_SECS", d.backupSecs)
	if backupSecs < 30 {
		backupSecs = 30
	}
	sleepCycleSecs := readEnvU64("AMEM_SLEEP_CYCLE_SECS", d.sleepCycleSecs)
	if sleepCycleSecs < 60 {
		sleepCycleSecs = 60
	}
	sleepIdleSecs := readEnvU64("AMEM_SLEEP_IDLE_SECS", d.sleepIdleSecs)
	if sleepIdleSecs < 30 {
		sleepIdleSecs = 30
	}
	archiveMin := readEnvInt("AMEM_ARCHIVE_MIN_SESSION_NODES", d.archiveMinSessionNodes)
	if archiveMin < 1 {
		archiveMin = 1
	}
	backupRetention := readEnvInt("AMEM_AUTO_BACKUP_RETENTION", d.backupRetention)
	if backupRetention < 1 {
		backupRetention = 1
	}
	sla := readEnvU32("AMEM_SLA_MAX_MUTATIONS_PER_MIN", d.slaMaxMutationsPerMin)
	if sla < 1 {
		sla = 1
	}
	healthSecs := readEnvU64("AMEM_HEALTH_LEDGER_EMIT_SECS", defaultHealthLedgerEmitSecs)
	if healthSecs < 5 {
		healthSecs = 5
	}

	return config{
		profile:                profile,
		migrationPolicy:        migrationPolicyFromEnv("AMEM_STORAGE_MIGRATION_POLICY"),
		autoSaveInterval:       time.Duration(readEnvU64("AMEM_AUTOSAVE_SECS", d.autoSaveSecs)) * time.Second,
		backupInterval:         time.Duration(backupSecs) * time.Second,
		backupRetention:        backupRetention,
		backupDir:              resolveBackupsDir(memPath),
		sleepCycleInterval:     time.Duration(sleepCycleSecs) * time.Second,
		sleepIdleMin:           time.Duration(sleepIdleSecs) * time.Second,
		archiveMinSessionNodes: archiveMin,
		hotMinDecay:            hotMinDecay,
		warmMinDecay:           warmMinDecay,
		slaMaxMutationsPerMin:  sla,
		healthLedgerInterval:   time.Duration(healthSecs) * time.Second,
		healthLedgerDir:        resolveHealthLedgerDir(),
	}
}

func resolveBackupsDir(memPath string) string {
	if custom := strings.TrimSpace(os.Getenv("AMEM_AUTO_BACKUP_DIR")); custom != "" {
		return custom
	}
	return filepath.Join(filepath.Dir(memPath), ".amem-backups")
}

func resolveHealthLedgerDir() string {
	if custom := strings.TrimSpace(os.Getenv("AMEM_HEALTH_LEDGER_DIR")); custom != "" {
		return custom
	}
	if custom := strings.TrimSpace(os.Getenv("AGENTRA_HEALTH_LEDGER_DIR")); custom != "" {
		return custom
	}
	home := os.Getenv("HOME")
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".agentra", "health-ledger")
}
