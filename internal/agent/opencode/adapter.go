// Package opencode implements the executor adapter for the Opencode
// server: an SSE client over net/http, event normalization into timeline
// patches, and permission-ask translation through ApprovalBroker.
package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/andywolf/agentium-supervisor/internal/agent"
	"github.com/andywolf/agentium-supervisor/internal/approval"
	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// BinaryName is the CLI binary used to launch an Opencode server.
const BinaryName = "opencode"

// DefaultPort is used when no port is configured; the adapter does not
// attempt to detect collisions across concurrent executions, matching the
// one-worktree-one-process model the supervisor already enforces.
const DefaultPort = 4096

var defaultSlashCommands = []string{"/undo", "/redo", "/share", "/init"}

// Adapter implements agent.Adapter for an Opencode server. Unlike the
// pipe-oriented CLIs, the real wire protocol runs over HTTP/SSE against a
// server process this adapter spawns, so NormalizeLogs talks to the server
// directly instead of parsing the child's stdout.
type Adapter struct {
	binPath string
	broker  approval.Requester

	mu        sync.Mutex
	baseURL   string
	sessionID string
	execID    string
}

// New creates an Opencode adapter that fails open on every permission
// prompt. Use NewWithBroker to wire a real approval rendezvous.
func New() *Adapter {
	return NewWithBroker(approval.NoopBroker{})
}

// NewWithBroker creates an Opencode adapter whose permission.asked events
// are resolved through broker.
func NewWithBroker(broker approval.Requester) *Adapter {
	return &Adapter{binPath: BinaryName, broker: broker}
}

// Name returns the agent identifier.
func (a *Adapter) Name() string { return "opencode" }

// Spawn starts an Opencode server in dir, creates a fresh session, and
// sends prompt as the first message.
func (a *Adapter) Spawn(ctx context.Context, dir, prompt string, env map[string]string) (*agent.SpawnedChild, error) {
	return a.spawn(ctx, dir, prompt, "", env)
}

// SpawnFollowUp starts a fresh server process but forks the prior
// conversation (agentSessionID) before sending prompt as a follow-up
// message, since an Opencode server does not persist sessions across
// process restarts on its own.
func (a *Adapter) SpawnFollowUp(ctx context.Context, dir, prompt, agentSessionID string, env map[string]string) (*agent.SpawnedChild, error) {
	return a.spawn(ctx, dir, prompt, agentSessionID, env)
}

func (a *Adapter) spawn(ctx context.Context, dir, prompt, resumeSessionID string, env map[string]string) (*agent.SpawnedChild, error) {
	port := DefaultPort
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	cmd := exec.CommandContext(ctx, a.binPath, "serve", "--port", strconv.Itoa(port))
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opencode: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opencode: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("opencode: start: %w", err)
	}

	if err := waitForHealth(ctx, baseURL); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("opencode: server did not become healthy: %w", err)
	}

	c := newClient(baseURL)
	sessionID, err := createOrForkSession(ctx, c, resumeSessionID)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("opencode: session setup: %w", err)
	}

	if err := sendMessage(ctx, c, sessionID, prompt); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("opencode: send message: %w", err)
	}

	a.mu.Lock()
	a.baseURL = baseURL
	a.sessionID = sessionID
	a.execID = uuid.NewString()
	a.mu.Unlock()

	exitSignal := make(chan struct{})

	return &agent.SpawnedChild{
		Stdin:  nil,
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
		Cancel: func() {
			close(exitSignal)
		},
		ExitSignal: exitSignal,
	}, nil
}

func waitForHealth(ctx context.Context, baseURL string) error {
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/doc", nil)
		if err == nil {
			if resp, err := http.DefaultClient.Do(req); err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("timed out waiting for %s", baseURL)
}

func createOrForkSession(ctx context.Context, c *client, resumeSessionID string) (string, error) {
	path := "/session"
	if resumeSessionID != "" {
		path = "/session/" + resumeSessionID + "/fork"
	}
	resp, err := c.postJSON(ctx, path, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d creating session", resp.StatusCode)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func sendMessage(ctx context.Context, c *client, sessionID, prompt string) error {
	body, err := json.Marshal(map[string]any{
		"parts": []map[string]string{{"type": "text", "text": prompt}},
	})
	if err != nil {
		return err
	}
	resp, err := c.postJSON(ctx, "/session/"+sessionID+"/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d sending message", resp.StatusCode)
	}
	return nil
}

// NormalizeLogs subscribes to the spawned server's /event stream directly;
// the process's own stdout/stderr (already flowing into store as
// LogStdout/LogStderr) carries server diagnostics, not the conversation
// protocol, so this loop ignores them and talks to the server instead.
func (a *Adapter) NormalizeLogs(ctx context.Context, store *timeline.MsgStore, idx *patch.IndexProvider) {
	a.mu.Lock()
	baseURL, execID := a.baseURL, a.execID
	a.mu.Unlock()
	if baseURL == "" {
		return
	}

	dec := NewDecoder(idx, a.broker, execID)
	c := newClient(baseURL)

	events := c.subscribe(ctx)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			for _, p := range dec.FeedEvent(ctx, evt.Event, evt.Data) {
				store.PushPatch(p)
			}
			if evt.Event == "session.idle" || evt.Event == "session.error" {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// AvailableSlashCommands emits the hardcoded default commands; Opencode has
// no per-project command discovery surface comparable to claudecode's.
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
// location for Opencode.
func (a *Adapter) DefaultMCPConfigPath() string {
	return "opencode.json"
}

// AvailabilityInfo probes whether the opencode CLI is installed and usable.
func (a *Adapter) AvailabilityInfo(ctx context.Context) agent.AvailabilityInfo {
	path, err := exec.LookPath(a.binPath)
	if err != nil {
		return agent.AvailabilityInfo{Available: false, Reason: "opencode CLI not found on PATH"}
	}

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return agent.AvailabilityInfo{Available: false, Reason: fmt.Sprintf("opencode --version failed: %v", err)}
	}

	version := strings.TrimSpace(string(out))
	return agent.AvailabilityInfo{Available: true, Version: version}
}

func init() {
	agent.Register("opencode", func() agent.Adapter {
		return New()
	})
}
