// Package codex implements the executor adapter for OpenAI's Codex CLI:
// process spawning, JSON-RPC notification normalization into timeline
// patches, and a fixed default slash-command list.
package codex

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/andywolf/agentium-supervisor/internal/agent"
	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// DefaultImage is kept for container-based deployments; bare-metal spawns
// ignore it.
const DefaultImage = "ghcr.io/andymwolf/agentium-codex:latest"

// BinaryName is the CLI binary this adapter shells out to.
const BinaryName = "codex"

var defaultSlashCommands = []string{"/diff", "/model", "/approvals"}

// Adapter implements agent.Adapter for the Codex CLI.
type Adapter struct {
	binPath string
}

// New creates a Codex adapter using the binary found on PATH.
func New() *Adapter {
	return &Adapter{binPath: BinaryName}
}

// Name returns the agent identifier.
func (a *Adapter) Name() string { return "codex" }

// Spawn starts a fresh Codex exec session.
func (a *Adapter) Spawn(ctx context.Context, dir, prompt string, env map[string]string) (*agent.SpawnedChild, error) {
	args := []string{"exec", "--json", "--yolo", "--skip-git-repo-check", "--cd", dir, prompt}
	return a.spawn(ctx, dir, args, env)
}

// SpawnFollowUp resumes a prior Codex session by id.
func (a *Adapter) SpawnFollowUp(ctx context.Context, dir, prompt, agentSessionID string, env map[string]string) (*agent.SpawnedChild, error) {
	args := []string{"exec", "--json", "--yolo", "--skip-git-repo-check", "--cd", dir, "resume", agentSessionID, prompt}
	return a.spawn(ctx, dir, args, env)
}

func (a *Adapter) spawn(ctx context.Context, dir string, args []string, env map[string]string) (*agent.SpawnedChild, error) {
	cmd := exec.CommandContext(ctx, a.binPath, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("codex: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("codex: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("codex: start: %w", err)
	}

	return &agent.SpawnedChild{
		Stdout: stdout,
		Stderr: stderr,
		Pid:    cmd.Process.Pid,
		Wait: func() (int, error) {
			err := cmd.Wait()
			if err == nil {
				return 0, nil
			}
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode(), nil
			}
			return -1, err
		},
		Signal: func() error {
			if cmd.Process == nil {
				return nil
			}
			return cmd.Process.Signal(syscall.SIGTERM)
		},
	}, nil
}

// NormalizeLogs drains store's history-plus-stream, feeding raw stdout
// lines through a Decoder and pushing the resulting patches back into the
// same store, along with the session id once discovered.
func (a *Adapter) NormalizeLogs(ctx context.Context, store *timeline.MsgStore, idx *patch.IndexProvider) {
	dec := NewDecoder(idx)
	lines := &timeline.StdoutLines{}

	stream, unsub := store.HistoryPlusStream()
	defer unsub()

	for {
		select {
		case msg, ok := <-stream:
			if !ok {
				return
			}
			switch msg.Kind {
			case timeline.LogStdout:
				for _, line := range lines.Feed(msg.Bytes) {
					hadSession := dec.SessionID != ""
					for _, p := range dec.FeedLine([]byte(line)) {
						store.PushPatch(p)
					}
					if !hadSession && dec.SessionID != "" {
						store.PushSessionID(dec.SessionID)
					}
				}
			case timeline.LogFinished:
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// AvailableSlashCommands emits the hardcoded default commands; Codex has
// no on-disk slash-command directory to merge in, so no second stage.
func (a *Adapter) AvailableSlashCommands(ctx context.Context, currentDir string) <-chan patch.Patch {
	out := make(chan patch.Patch, 1)
	go func() {
		defer close(out)
		out <- patch.Add(0, mustMarshal(timeline.NormalizedEntry{
			EntryType: timeline.EntrySystemMessage,
			Content:   strings.Join(defaultSlashCommands, ", "),
		}))
	}()
	return out
}

// DefaultMCPConfigPath returns the conventional per-project MCP config
// location for Codex.
func (a *Adapter) DefaultMCPConfigPath() string {
	return ".codex/config.toml"
}

// AvailabilityInfo probes whether the codex CLI is installed and usable.
func (a *Adapter) AvailabilityInfo(ctx context.Context) agent.AvailabilityInfo {
	path, err := exec.LookPath(a.binPath)
	if err != nil {
		return agent.AvailabilityInfo{Available: false, Reason: "codex CLI not found on PATH"}
	}

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return agent.AvailabilityInfo{Available: false, Reason: fmt.Sprintf("codex --version failed: %v", err)}
	}

	return agent.AvailabilityInfo{Available: true, Version: strings.TrimSpace(string(out))}
}

func init() {
	agent.Register("codex", func() agent.Adapter {
		return New()
	})
}
