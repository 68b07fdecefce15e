package git

import (
	"strconv"
	"strings"
)

// MergeChanges squash-merges taskBranch into baseBranch, recording the
// result under commitMessage. baseWorktreePath is the worktree that has
// baseBranch checked out, or "" if no worktree has it checked out; repoPath
// is used for the plumbing-only path in that case. On any conflict every
// ref is left untouched.
func MergeChanges(repoPath, baseWorktreePath, taskWorktreePath, taskBranch, baseBranch, commitMessage string) error {
	refRepo := NewRepo(repoPath)
	if baseWorktreePath != "" {
		refRepo = NewRepo(baseWorktreePath)
	}

	ahead, _, err := aheadBehind(refRepo, baseBranch, taskBranch)
	if err != nil {
		return err
	}
	if ahead > 0 {
		return &BranchesDivergedError{BaseBranch: baseBranch, TaskBranch: taskBranch}
	}

	if baseWorktreePath != "" {
		return mergeViaCheckedOutBase(baseWorktreePath, taskBranch, commitMessage)
	}
	return mergeViaPlumbing(repoPath, taskBranch, baseBranch, commitMessage)
}

// aheadBehind reports how many commits base has that task does not
// (ahead) and how many commits task has that base does not (behind, i.e.
// how far base is behind task).
func aheadBehind(repo *Repo, base, task string) (ahead, behind int, err error) {
	out, err := repo.run("rev-list", "--left-right", "--count", base+"..."+task)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, nil
	}
	ahead, _ = strconv.Atoi(fields[0])
	behind, _ = strconv.Atoi(fields[1])
	return ahead, behind, nil
}

// mergeViaCheckedOutBase is the CLI path: base is the HEAD of some
// worktree, so the merge is performed there with the ordinary working-tree
// commands.
func mergeViaCheckedOutBase(baseWorktreePath, taskBranch, commitMessage string) error {
	repo := NewRepo(baseWorktreePath)

	staged, err := repo.run("diff", "--cached", "--name-only")
	if err != nil {
		return err
	}
	if strings.TrimSpace(staged) != "" {
		return &DirtyWorktreeError{WorktreePath: baseWorktreePath}
	}

	if _, err := repo.run("merge", "--squash", taskBranch); err != nil {
		return classifyMergeFailure(baseWorktreePath, err.Error())
	}

	EnsureIdentity(baseWorktreePath)
	if _, err := repo.run("commit", "--no-verify", "-m", commitMessage); err != nil {
		return err
	}

	newCommit, err := repo.HeadCommit("")
	if err != nil {
		return err
	}

	// Fast-forward the task branch to the merged state so its worktree can
	// continue without re-encountering the commits just folded into base.
	_, err = repo.run("update-ref", "refs/heads/"+taskBranch, newCommit)
	return err
}

// mergeViaPlumbing is the in-memory path: base has no worktree, so the
// merge is computed purely against the object database with
// `git merge-tree`, never touching a working directory.
func mergeViaPlumbing(repoPath, taskBranch, baseBranch, commitMessage string) error {
	repo := NewRepo(repoPath)

	baseCommit, err := repo.run("rev-parse", baseBranch)
	if err != nil {
		return err
	}

	treeOut, mergeErr := repo.run("merge-tree", "--write-tree", baseBranch, taskBranch)
	if mergeErr != nil {
		return classifyMergeFailure(repoPath, mergeErr.Error())
	}
	treeOid := strings.Fields(treeOut)[0]

	newCommit, err := repo.run("commit-tree", treeOid, "-p", baseCommit, "-m", commitMessage)
	if err != nil {
		return err
	}

	if _, err := repo.run("update-ref", "refs/heads/"+baseBranch, newCommit); err != nil {
		return err
	}
	_, err = repo.run("update-ref", "refs/heads/"+taskBranch, newCommit)
	return err
}

func classifyMergeFailure(worktreePath, stderr string) error {
	lower := strings.ToLower(stderr)
	if strings.Contains(lower, "conflict") {
		return &MergeConflictsError{Message: "merge produced conflicts", ConflictedFiles: extractConflictedFiles(stderr)}
	}
	return &MergeConflictsError{Message: stderr}
}
