package git

// defaultIdentityName/Email are set in a repo-local config only when a
// commit is about to happen and no identity is otherwise resolvable
// (global config, environment) — this keeps CI/sandbox checkouts from
// failing a commit with "Author identity unknown".
const (
	defaultIdentityName  = "agentium-supervisor"
	defaultIdentityEmail = "supervisor@agentium.invalid"
)

// EnsureIdentity sets user.name/user.email in the repo-local config if
// neither is already resolvable.
func EnsureIdentity(worktreePath string) {
	repo := NewRepo(worktreePath)
	if _, err := repo.run("config", "user.name"); err != nil {
		repo.runIgnoreError("config", "user.name", defaultIdentityName)
	}
	if _, err := repo.run("config", "user.email"); err != nil {
		repo.runIgnoreError("config", "user.email", defaultIdentityEmail)
	}
}

// Commit stages every change in worktreePath (respecting sparse-checkout,
// since staging goes through the CLI rather than a library) and commits
// with message. It returns false, not an error, when there was nothing to
// commit.
func Commit(worktreePath, message string) (bool, error) {
	repo := NewRepo(worktreePath)

	changed, err := repo.HasAnyChanges()
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	EnsureIdentity(worktreePath)

	if _, err := repo.run("add", "-A"); err != nil {
		return false, err
	}
	if _, err := repo.run("commit", "--no-verify", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}
