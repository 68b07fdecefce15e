// Package claudecode implements the executor adapter for the Claude Code
// CLI: process spawning, NDJSON stream normalization into timeline
// patches, and slash-command discovery.
package claudecode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/andywolf/agentium-supervisor/internal/agent"
	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// DefaultImage is kept for environments that still run the adapter inside
// a container; bare-metal spawns ignore it.
const DefaultImage = "ghcr.io/andymwolf/agentium-claudecode:latest"

// BinaryName is the CLI binary this adapter shells out to.
const BinaryName = "claude"

// defaultSlashCommands are emitted immediately by AvailableSlashCommands,
// before on-disk discovery completes.
var defaultSlashCommands = []string{"/compact", "/clear", "/review", "/init"}

// Adapter implements agent.Adapter for the Claude Code CLI.
type Adapter struct {
	binPath string

	mu      sync.Mutex
	ampMode bool // amp-resume history reset strategy, set via SpawnFollowUp
}

// New creates a Claude Code adapter using the binary found on PATH.
func New() *Adapter {
	return &Adapter{binPath: BinaryName}
}

// Name returns the agent identifier.
func (a *Adapter) Name() string { return "claude-code" }

// Spawn starts a fresh Claude Code conversation.
func (a *Adapter) Spawn(ctx context.Context, dir, prompt string, env map[string]string) (*agent.SpawnedChild, error) {
	args := []string{
		"--print",
		"--verbose",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--dangerously-skip-permissions",
	}
	return a.spawn(ctx, dir, prompt, args, env)
}

// SpawnFollowUp resumes a prior Claude Code session using --resume.
func (a *Adapter) SpawnFollowUp(ctx context.Context, dir, prompt, agentSessionID string, env map[string]string) (*agent.SpawnedChild, error) {
	args := []string{
		"--print",
		"--verbose",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--dangerously-skip-permissions",
		"--resume", agentSessionID,
	}
	a.mu.Lock()
	a.ampMode = true
	a.mu.Unlock()
	return a.spawn(ctx, dir, prompt, args, env)
}

func (a *Adapter) spawn(ctx context.Context, dir, prompt string, args []string, env map[string]string) (*agent.SpawnedChild, error) {
	cmd := exec.CommandContext(ctx, a.binPath, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("claudecode: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("claudecode: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("claudecode: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("claudecode: start: %w", err)
	}

	if _, err := stdin.Write([]byte(prompt + "\n")); err != nil {
		return nil, fmt.Errorf("claudecode: write prompt: %w", err)
	}

	return &agent.SpawnedChild{
		Stdin:  stdin,
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
// same store. It returns when the stream finishes or ctx is canceled.
func (a *Adapter) NormalizeLogs(ctx context.Context, store *timeline.MsgStore, idx *patch.IndexProvider) {
	a.mu.Lock()
	ampMode := a.ampMode
	a.mu.Unlock()

	dec := NewDecoder(idx, ampMode)
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
					for _, p := range dec.FeedLine([]byte(line)) {
						store.PushPatch(p)
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

// AvailableSlashCommands emits the hardcoded default commands immediately,
// then scans .claude/commands/*.md under currentDir and emits a merged
// system-message patch once discovery completes.
func (a *Adapter) AvailableSlashCommands(ctx context.Context, currentDir string) <-chan patch.Patch {
	out := make(chan patch.Patch, 2)
	go func() {
		defer close(out)

		out <- patch.Add(0, mustMarshal(timeline.NormalizedEntry{
			EntryType: timeline.EntrySystemMessage,
			Content:   strings.Join(defaultSlashCommands, ", "),
		}))

		discovered := discoverSlashCommands(currentDir)
		if len(discovered) == 0 {
			return
		}
		merged := append(append([]string{}, defaultSlashCommands...), discovered...)
		select {
		case out <- patch.Replace(0, mustMarshal(timeline.NormalizedEntry{
			EntryType: timeline.EntrySystemMessage,
			Content:   strings.Join(merged, ", "),
		})):
		case <-ctx.Done():
		}
	}()
	return out
}

func discoverSlashCommands(currentDir string) []string {
	dir := filepath.Join(currentDir, ".claude", "commands")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, "/"+strings.TrimSuffix(e.Name(), ".md"))
	}
	return names
}

// DefaultMCPConfigPath returns the conventional per-project MCP config
// location for Claude Code.
func (a *Adapter) DefaultMCPConfigPath() string {
	return ".mcp.json"
}

// AvailabilityInfo probes whether the claude CLI is installed and usable.
func (a *Adapter) AvailabilityInfo(ctx context.Context) agent.AvailabilityInfo {
	path, err := exec.LookPath(a.binPath)
	if err != nil {
		return agent.AvailabilityInfo{Available: false, Reason: "claude CLI not found on PATH"}
	}

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return agent.AvailabilityInfo{Available: false, Reason: fmt.Sprintf("claude --version failed: %v", err)}
	}

	version := strings.TrimSpace(string(out))
	return agent.AvailabilityInfo{Available: true, Version: version}
}

func init() {
	agent.Register("claude-code", func() agent.Adapter {
		return New()
	})
}
