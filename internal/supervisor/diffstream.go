package supervisor

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/andywolf/agentium-supervisor/internal/git"
)

// diffDebounce coalesces bursts of filesystem events within this window
// into a single recomputation.
const diffDebounce = 200 * time.Millisecond

// RepoDiffs pairs a repo's worktree with its computed diff, emitted on
// StreamDiffs's channel whenever the worktree changes.
type RepoDiffs struct {
	RepoID string
	Diffs  []git.Diff
	Err    error
}

// StreamDiffs provides a live per-repo Diff stream merging an immediate
// "compute now" with a filesystem watcher on the worktree.
// Closing ctx (or the caller simply abandoning the returned channel and
// calling the returned stop func) tears down the watcher.
func (s *Supervisor) StreamDiffs(ctx context.Context, repo RepoContext, baseCommit string) (<-chan RepoDiffs, func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := addRecursive(watcher, repo.WorktreePath); err != nil {
		_ = watcher.Close()
		return nil, nil, err
	}

	out := make(chan RepoDiffs, 1)
	stopped := make(chan struct{})
	stop := func() {
		select {
		case <-stopped:
		default:
			close(stopped)
			_ = watcher.Close()
		}
	}

	emit := func() {
		target := git.WorktreeTarget{WorktreePath: repo.WorktreePath, BaseCommit: baseCommit}
		diffs, err := git.GetDiffs(target, "")
		select {
		case out <- RepoDiffs{RepoID: repo.RepoID, Diffs: diffs, Err: err}:
		default:
		}
	}

	go func() {
		defer close(out)
		defer stop()

		emit()

		var pending *time.Timer
		var pendingC <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopped:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if pending == nil {
					pending = time.NewTimer(diffDebounce)
					pendingC = pending.C
				} else {
					pending.Reset(diffDebounce)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("supervisor: diff watcher error for repo %s: %v", repo.RepoID, err)
			case <-pendingC:
				pendingC = nil
				emit()
			}
		}
	}()

	return out, stop, nil
}

// addRecursive walks dir adding every subdirectory to watcher, since
// fsnotify watches are not recursive on any platform it supports. The
// .git directory is skipped: its constant churn would otherwise swamp the
// debounce window with events no diff consumer cares about.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if info.Name() == ".git" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
