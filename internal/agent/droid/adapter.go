package droid

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

// BinaryName is the CLI binary this adapter shells out to.
const BinaryName = "droid"

var defaultSlashCommands = []string{"/undo", "/redo"}

// Adapter implements agent.Adapter for the Droid CLI.
type Adapter struct {
	binPath string
}

// New creates a Droid adapter using the binary found on PATH.
func New() *Adapter {
	return &Adapter{binPath: BinaryName}
}

// Name returns the agent identifier.
func (a *Adapter) Name() string { return "droid" }

// Spawn starts a fresh Droid conversation.
func (a *Adapter) Spawn(ctx context.Context, dir, prompt string, env map[string]string) (*agent.SpawnedChild, error) {
	args := []string{"exec", "--json", "--auto-approve", prompt}
	return a.spawn(ctx, dir, args, env)
}

// SpawnFollowUp resumes a prior Droid session.
func (a *Adapter) SpawnFollowUp(ctx context.Context, dir, prompt, agentSessionID string, env map[string]string) (*agent.SpawnedChild, error) {
	args := []string{"exec", "--json", "--auto-approve", "--session", agentSessionID, prompt}
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
		return nil, fmt.Errorf("droid: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("droid: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("droid: start: %w", err)
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
// same store.
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

// AvailableSlashCommands emits the hardcoded default commands; Droid has
// no on-disk slash-command directory to merge in.
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
// location for Droid.
func (a *Adapter) DefaultMCPConfigPath() string {
	return ".droid/mcp.json"
}

// AvailabilityInfo probes whether the droid CLI is installed and usable.
func (a *Adapter) AvailabilityInfo(ctx context.Context) agent.AvailabilityInfo {
	path, err := exec.LookPath(a.binPath)
	if err != nil {
		return agent.AvailabilityInfo{Available: false, Reason: "droid CLI not found on PATH"}
	}

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return agent.AvailabilityInfo{Available: false, Reason: fmt.Sprintf("droid --version failed: %v", err)}
	}

	return agent.AvailabilityInfo{Available: true, Version: strings.TrimSpace(string(out))}
}

func init() {
	agent.Register("droid", func() agent.Adapter {
		return New()
	})
}
