package normalizer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// Rebuild reads every record persisted at sinkPath and replays it into a
// fresh, transient MsgStore. This is used when resuming an execution whose
// process has exited: the supervisor rebuilds the store so subscribers
// (UI, gateway) see the same history-plus-stream contract they would have
// against a live execution, without re-running the underlying agent.
func Rebuild(sinkPath string) (*timeline.MsgStore, error) {
	records, err := ReadRecords(sinkPath)
	if err != nil {
		return nil, fmt.Errorf("rebuild store: %w", err)
	}

	store := timeline.NewMsgStore()
	for _, rec := range records {
		msg, err := decodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("rebuild store: %w", err)
		}
		store.Push(msg)
	}
	return store, nil
}

func decodeRecord(rec sinkRecord) (timeline.LogMsg, error) {
	msg := timeline.LogMsg{Kind: timeline.LogMsgKind(rec.Kind), SessionID: rec.SessionID}

	if rec.Bytes != "" {
		b, err := base64.StdEncoding.DecodeString(rec.Bytes)
		if err != nil {
			return msg, fmt.Errorf("decode record bytes: %w", err)
		}
		msg.Bytes = b
	}

	if len(rec.Patch) > 0 {
		var p patch.Patch
		if err := json.Unmarshal(rec.Patch, &p); err != nil {
			return msg, fmt.Errorf("decode record patch: %w", err)
		}
		msg.Patch = p
	}

	return msg, nil
}
