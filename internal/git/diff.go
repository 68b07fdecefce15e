package git

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxInlineContentBytes is the size above which a blob's content is
// omitted from a Diff (ContentOmitted set, no contents or line counts).
// The content is still read to measure it.
const maxInlineContentBytes = 2 * 1024 * 1024

// ChangeKind is the closed classification of a single Diff entry.
type ChangeKind string

const (
	ChangeAdded            ChangeKind = "added"
	ChangeDeleted          ChangeKind = "deleted"
	ChangeModified         ChangeKind = "modified"
	ChangeRenamed          ChangeKind = "renamed"
	ChangeCopied           ChangeKind = "copied"
	ChangePermissionChange ChangeKind = "permission_change"
)

// Diff describes one file's change between two trees.
type Diff struct {
	Path           string
	OldPath        string
	Change         ChangeKind
	Additions      int
	Deletions      int
	ContentOmitted bool
	OldContent     *string
	NewContent     *string
}

// DiffTarget selects what GetDiffs compares.
type DiffTarget interface{ isDiffTarget() }

// WorktreeTarget diffs a worktree's index+working tree against baseCommit.
type WorktreeTarget struct {
	WorktreePath string
	BaseCommit   string
}

// BranchTarget diffs two branch tips, with rename detection.
type BranchTarget struct {
	RepoPath   string
	BranchName string
	BaseBranch string
}

// CommitTarget diffs a single commit against its first parent.
type CommitTarget struct {
	RepoPath  string
	CommitSHA string
}

func (WorktreeTarget) isDiffTarget() {}
func (BranchTarget) isDiffTarget()   {}
func (CommitTarget) isDiffTarget()   {}

type rawStatusEntry struct {
	status  string
	oldPath string
	newPath string
}

// GetDiffs computes the Diff list for target, optionally restricted to
// paths under pathFilter (empty means no restriction).
func GetDiffs(target DiffTarget, pathFilter string) ([]Diff, error) {
	switch t := target.(type) {
	case WorktreeTarget:
		return diffWorktree(t, pathFilter)
	case BranchTarget:
		return diffBranches(t, pathFilter)
	case CommitTarget:
		return diffCommit(t, pathFilter)
	default:
		return nil, fmt.Errorf("git: unknown diff target %T", target)
	}
}

func diffWorktree(t WorktreeTarget, pathFilter string) ([]Diff, error) {
	repo := NewRepo(t.WorktreePath)
	entries, err := nameStatus(repo, t.BaseCommit, "")
	if err != nil {
		return nil, err
	}
	untracked, err := repo.run("ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	for _, p := range strings.Split(untracked, "\n") {
		if p != "" {
			entries = append(entries, rawStatusEntry{status: "A", oldPath: p, newPath: p})
		}
	}
	return buildDiffs(entries, pathFilter, func(path string) ([]byte, bool) {
		return blobAtRef(repo, t.BaseCommit, path)
	}, func(path string) ([]byte, bool) {
		data, err := os.ReadFile(filepath.Join(t.WorktreePath, path))
		if err != nil {
			return nil, false
		}
		return data, true
	})
}

func diffBranches(t BranchTarget, pathFilter string) ([]Diff, error) {
	repo := NewRepo(t.RepoPath)
	entries, err := nameStatus(repo, t.BaseBranch, t.BranchName)
	if err != nil {
		return nil, err
	}
	return buildDiffs(entries, pathFilter, func(path string) ([]byte, bool) {
		return blobAtRef(repo, t.BaseBranch, path)
	}, func(path string) ([]byte, bool) {
		return blobAtRef(repo, t.BranchName, path)
	})
}

func diffCommit(t CommitTarget, pathFilter string) ([]Diff, error) {
	repo := NewRepo(t.RepoPath)
	parent, err := repo.run("rev-parse", t.CommitSHA+"^")
	if err != nil {
		return nil, fmt.Errorf("git: commit %s has no parent: %w", t.CommitSHA, err)
	}
	entries, err := nameStatus(repo, parent, t.CommitSHA)
	if err != nil {
		return nil, err
	}
	return buildDiffs(entries, pathFilter, func(path string) ([]byte, bool) {
		return blobAtRef(repo, parent, path)
	}, func(path string) ([]byte, bool) {
		return blobAtRef(repo, t.CommitSHA, path)
	})
}

// nameStatus runs `git diff --name-status --find-renames from [to]` and
// parses its tab-separated output.
func nameStatus(repo *Repo, from, to string) ([]rawStatusEntry, error) {
	args := []string{"diff", "--name-status", "--find-renames", from}
	if to != "" {
		args = append(args, to)
	}
	out, err := repo.run(args...)
	if err != nil {
		return nil, err
	}
	var entries []rawStatusEntry
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		e := rawStatusEntry{status: fields[0]}
		if strings.HasPrefix(e.status, "R") || strings.HasPrefix(e.status, "C") {
			if len(fields) < 3 {
				continue
			}
			e.oldPath, e.newPath = fields[1], fields[2]
		} else {
			e.oldPath, e.newPath = fields[1], fields[1]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func blobAtRef(repo *Repo, ref, path string) ([]byte, bool) {
	out, err := repo.run("show", ref+":"+path)
	if err != nil {
		return nil, false
	}
	return []byte(out), true
}

func buildDiffs(entries []rawStatusEntry, pathFilter string, loadOld, loadNew func(path string) ([]byte, bool)) ([]Diff, error) {
	var diffs []Diff
	for _, e := range entries {
		addr := e.newPath
		if addr == "" {
			addr = e.oldPath
		}
		if pathFilter != "" && !strings.HasPrefix(addr, pathFilter) {
			continue
		}

		change := classifyStatus(e.status)

		oldBytes, hasOld := loadOld(e.oldPath)
		newBytes, hasNew := loadNew(e.newPath)

		if (hasOld && isBinary(oldBytes)) || (hasNew && isBinary(newBytes)) {
			continue
		}

		d := Diff{Path: addr, OldPath: e.oldPath, Change: change}

		if change == ChangeModified && hasOld && hasNew && bytes.Equal(oldBytes, newBytes) {
			d.Change = ChangePermissionChange
		}

		tooBig := len(oldBytes) > maxInlineContentBytes || len(newBytes) > maxInlineContentBytes
		if tooBig {
			d.ContentOmitted = true
		} else {
			if hasOld {
				s := string(oldBytes)
				d.OldContent = &s
			}
			if hasNew {
				s := string(newBytes)
				d.NewContent = &s
			}
			d.Additions, d.Deletions = countLineChanges(hasOld, oldBytes, hasNew, newBytes)
		}

		diffs = append(diffs, d)
	}
	return diffs, nil
}

func classifyStatus(status string) ChangeKind {
	switch {
	case status == "A":
		return ChangeAdded
	case status == "D":
		return ChangeDeleted
	case strings.HasPrefix(status, "R"):
		return ChangeRenamed
	case strings.HasPrefix(status, "C"):
		return ChangeCopied
	default:
		return ChangeModified
	}
}

func isBinary(content []byte) bool {
	return bytes.IndexByte(content, 0) >= 0
}

// countLineChanges derives additions/deletions from content rather than
// trusting git's own numstat, since the worktree target diffs against an
// uncommitted working copy that numstat cannot see.
func countLineChanges(hasOld bool, oldContent []byte, hasNew bool, newContent []byte) (additions, deletions int) {
	switch {
	case !hasOld && hasNew:
		return countLines(newContent), 0
	case hasOld && !hasNew:
		return 0, countLines(oldContent)
	case !hasOld && !hasNew:
		return 0, 0
	}

	dmp := diffmatchpatch.New()
	oldText, newText, lineArray := dmp.DiffLinesToChars(string(oldContent), string(newContent))
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	for _, d := range diffs {
		lines := strings.Count(d.Text, "\n")
		if !strings.HasSuffix(d.Text, "\n") && d.Text != "" {
			lines++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += lines
		case diffmatchpatch.DiffDelete:
			deletions += lines
		}
	}
	return additions, deletions
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
