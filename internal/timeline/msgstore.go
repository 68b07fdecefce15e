package timeline

import (
	"sync"

	"github.com/andywolf/agentium-supervisor/internal/patch"
)

// LogMsgKind discriminates the wire types a MsgStore carries.
type LogMsgKind string

const (
	LogStdout     LogMsgKind = "stdout"
	LogStderr     LogMsgKind = "stderr"
	LogJSONPatch  LogMsgKind = "json_patch"
	LogSessionID  LogMsgKind = "session_id"
	LogReady      LogMsgKind = "ready"
	LogFinished   LogMsgKind = "finished"
)

// LogMsg is a single entry in a MsgStore's total order.
type LogMsg struct {
	Kind      LogMsgKind
	Bytes     []byte
	Patch     patch.Patch
	SessionID string
}

// MsgStore is a per-ExecutionProcess ordered append-only buffer of LogMsg
// with broadcast semantics: every subscriber obtains history-plus-stream,
// replaying everything pushed so far before switching to live delivery.
// Finished is a terminal sentinel after which no further pushes occur and
// every live subscriber channel is closed.
type MsgStore struct {
	mu       sync.Mutex
	history  []LogMsg
	subs     map[int]chan LogMsg
	nextSub  int
	finished bool
}

// NewMsgStore creates an empty store.
func NewMsgStore() *MsgStore {
	return &MsgStore{subs: make(map[int]chan LogMsg)}
}

// Push appends msg to the store in total order and fans it out to every
// live subscriber. Pushing after Finished is a no-op; callers must not rely
// on it succeeding.
func (s *MsgStore) Push(msg LogMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.history = append(s.history, msg)
	for _, ch := range s.subs {
		select {
		case ch <- msg:
		default:
			// Slow subscriber: drop rather than block the writer. History
			// remains available via a fresh subscription; persistence is
			// independent of any live subscription.
		}
	}
	if msg.Kind == LogFinished {
		s.finished = true
		for _, ch := range s.subs {
			close(ch)
		}
		s.subs = make(map[int]chan LogMsg)
	}
}

// PushStdout, PushStderr, PushPatch, PushSessionID, PushFinished, PushReady
// are typed shortcuts over Push.
func (s *MsgStore) PushStdout(b []byte) { s.Push(LogMsg{Kind: LogStdout, Bytes: b}) }
func (s *MsgStore) PushStderr(b []byte) { s.Push(LogMsg{Kind: LogStderr, Bytes: b}) }
func (s *MsgStore) PushPatch(p patch.Patch) { s.Push(LogMsg{Kind: LogJSONPatch, Patch: p}) }
func (s *MsgStore) PushSessionID(id string) {
	s.Push(LogMsg{Kind: LogSessionID, SessionID: id})
}
func (s *MsgStore) PushFinished() { s.Push(LogMsg{Kind: LogFinished}) }
func (s *MsgStore) PushReady()    { s.Push(LogMsg{Kind: LogReady}) }

// HistoryPlusStream returns a channel yielding every LogMsg pushed so far,
// followed by live pushes as they occur. The channel is closed when
// Finished is observed. Each call creates an independent, restartable
// subscription; a subscriber that stops receiving has further messages
// dropped once its buffer is full (the default-case drop above) and stays
// registered until the returned unsubscribe func is called.
func (s *MsgStore) HistoryPlusStream() (<-chan LogMsg, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backlog := make([]LogMsg, len(s.history))
	copy(backlog, s.history)
	alreadyFinished := s.finished

	out := make(chan LogMsg, 256+len(backlog))
	for _, m := range backlog {
		out <- m
	}

	if alreadyFinished {
		close(out)
		return out, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = out

	unsub := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return out, unsub
}

// History returns a snapshot copy of everything pushed so far, without
// subscribing to live delivery. Used by consumers (e.g. the supervisor's
// exit monitor extracting the last AssistantMessage at finalize time) that
// need a point-in-time read rather than a long-lived stream.
func (s *MsgStore) History() []LogMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogMsg, len(s.history))
	copy(out, s.history)
	return out
}

// StdoutLines groups a raw stdout stream into newline-delimited lines,
// losslessly across chunk boundaries, for consumers that want whole lines
// rather than raw byte chunks.
type StdoutLines struct {
	buf []byte
}

// Feed appends a chunk and returns any complete lines it produced (without
// trailing newline). Incomplete trailing data is buffered for the next Feed.
func (l *StdoutLines) Feed(chunk []byte) []string {
	l.buf = append(l.buf, chunk...)
	var lines []string
	for {
		i := indexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(l.buf[:i]))
		l.buf = l.buf[i+1:]
	}
	return lines
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
