package workspace

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// disableCleanupEnv, when set to any non-empty value, turns the periodic
// and startup orphan sweeps into no-ops. Intended for local debugging
// where a developer wants a finished workspace left on disk for
// inspection.
const disableCleanupEnv = "DISABLE_WORKTREE_CLEANUP"

// Record is the subset of a persisted workspace's bookkeeping the orphan
// sweep needs: enough to decide whether a directory on disk still has a
// live owner and whether that owner has expired.
type Record struct {
	ID        string
	Dir       string
	Repos     []RepoTarget
	Pinned    bool
	ExpiresAt time.Time
}

// Registry is the read side of persisted workspace bookkeeping the
// sweep consults. Implemented by the persistence layer; kept as a small
// interface here so this package never imports it.
type Registry interface {
	ListWorkspaces() ([]Record, error)
}

// Sweeper periodically reclaims workspace directories that have either
// gone unpersisted (the directory exists on disk but no Record names it)
// or expired (a Record exists but is past ExpiresAt and not pinned).
type Sweeper struct {
	BaseDir  string
	Registry Registry
	Interval time.Duration

	stop chan struct{}
}

// NewSweeper builds a Sweeper over baseDir using registry for the
// persisted-workspace side of the comparison. interval defaults to 30
// minutes when zero.
func NewSweeper(baseDir string, registry Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Sweeper{BaseDir: baseDir, Registry: registry, Interval: interval, stop: make(chan struct{})}
}

// Start runs an immediate sweep and then one on every Interval tick,
// until Stop is called. It is a no-op (after logging) when
// DISABLE_WORKTREE_CLEANUP is set.
func (s *Sweeper) Start() {
	if os.Getenv(disableCleanupEnv) != "" {
		log.Printf("workspace: orphan sweep disabled via %s", disableCleanupEnv)
		return
	}

	go func() {
		s.runOnce()
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep loop started by Start. Safe to call even if Start
// was never called or already returned early due to the disable flag.
func (s *Sweeper) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *Sweeper) runOnce() {
	records, err := s.Registry.ListWorkspaces()
	if err != nil {
		log.Printf("workspace: orphan sweep: list workspaces: %v", err)
		return
	}

	byDir := make(map[string]Record, len(records))
	for _, r := range records {
		byDir[filepath.Clean(r.Dir)] = r
	}

	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("workspace: orphan sweep: read base dir: %v", err)
		}
		return
	}

	now := time.Now()

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.BaseDir, e.Name())
		record, known := byDir[filepath.Clean(dir)]
		if !known {
			s.reclaim(dir, nil)
			continue
		}
		if !record.Pinned && !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
			s.reclaim(dir, record.Repos)
		}
	}
}

func (s *Sweeper) reclaim(dir string, repos []RepoTarget) {
	if err := CleanupWorkspace(dir, repos); err != nil {
		log.Printf("workspace: orphan sweep: reclaim %s: %v", dir, err)
	}
}
