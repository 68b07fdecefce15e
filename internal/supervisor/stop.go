package supervisor

import (
	"context"
	"syscall"
	"time"

	"github.com/andywolf/agentium-supervisor/internal/gateway"
)

// StopExecution handles a user-initiated stop or process-wide
// shutdown. status must be StatusKilled or StatusCompleted.
func (s *Supervisor) StopExecution(ctx context.Context, executionID string, status gateway.ProcessStatus) error {
	var exitCode *int
	if status == gateway.StatusCompleted {
		zero := 0
		exitCode = &zero
	}
	if err := s.Gateway.UpdateStatus(ctx, executionID, status, exitCode); err != nil {
		if _, alreadyTerminal := err.(*gateway.ErrTerminal); !alreadyTerminal {
			return err
		}
	}

	h, ok := s.getHandle(executionID)
	if !ok {
		return nil
	}

	// Graceful: fire the cancellation token (adapter cooperative shutdown)
	// and give the exit monitor GraceTimeout to notice and return.
	if h.child.Cancel != nil {
		h.child.Cancel()
	}
	h.cancel()

	graceful := make(chan struct{})
	go func() {
		<-h.done
		close(graceful)
	}()

	select {
	case <-graceful:
	case <-afterGrace():
		killProcessGroup(h.child.Pid)
		<-h.done
	}

	return nil
}

// Shutdown stops every live execution, used on process exit so no child
// outlives the supervisor itself.
func (s *Supervisor) Shutdown(ctx context.Context) {
	for _, id := range s.LiveExecutionIDs() {
		if err := s.StopExecution(ctx, id, gateway.StatusKilled); err != nil {
			logError(id, "shutdown stop: %v", err)
		}
	}
}

// afterGrace returns a channel that fires after GraceTimeout, matching the
// two-phase cancel->grace->force-kill shutdown sequence.
func afterGrace() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		<-time.After(GraceTimeout)
		close(ch)
	}()
	return ch
}

// killProcessGroup force-kills the process group rooted at pid (POSIX:
// SIGKILL to the negated pid, per the setsid+killpg pattern every spawned
// child uses). A Windows job-object equivalent is a documented open item,
// not implemented here (see DESIGN.md).
func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
