// Package normalizer hosts the NormalizerRuntime: the per-execution task
// that consumes an adapter's raw output, turns it into timeline patches via
// MsgStore, and drains MsgStore into persisted log storage.
package normalizer

import (
	"encoding/json"
	"time"

	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// DefaultGapDuration is the silence window that starts a new timeline entry
// when coalescing plain-text chunks (e.g. stderr).
const DefaultGapDuration = 2 * time.Second

// PlainTextLogProcessor coalesces a chunked plain-text stream into timeline
// entries, starting a new entry whenever more than the gap duration elapses
// between chunks. No adapter or supervisor path in this module feeds stderr
// through it; stderr reaches the MsgStore only as raw LogStderr chunks.
type PlainTextLogProcessor struct {
	gap       time.Duration
	idx       *patch.IndexProvider
	entryType timeline.EntryType

	lastWrite    time.Time
	currentIndex int
	haveCurrent  bool
	buf          []byte
}

// NewPlainTextLogProcessor creates a processor that emits entries of the
// given type, allocating indices from idx. gap <= 0 uses DefaultGapDuration.
func NewPlainTextLogProcessor(idx *patch.IndexProvider, entryType timeline.EntryType, gap time.Duration) *PlainTextLogProcessor {
	if gap <= 0 {
		gap = DefaultGapDuration
	}
	return &PlainTextLogProcessor{idx: idx, entryType: entryType, gap: gap}
}

// Feed processes one chunk (already ANSI-stripped and noise-filtered by the
// caller) and returns zero or more patches: a Replace for the current entry
// if still within the gap window, or a Remove-then-Add-equivalent (in
// practice just Add) when starting a fresh entry after a silence gap.
func (p *PlainTextLogProcessor) Feed(now time.Time, chunk []byte) []patch.Patch {
	if len(chunk) == 0 {
		return nil
	}

	var patches []patch.Patch

	startNew := !p.haveCurrent || now.Sub(p.lastWrite) > p.gap
	if startNew {
		p.buf = append(p.buf[:0], chunk...)
		p.currentIndex = p.idx.Next()
		p.haveCurrent = true
		patches = append(patches, patch.Add(p.currentIndex, marshalText(p.entryType, string(p.buf))))
	} else {
		p.buf = append(p.buf, chunk...)
		patches = append(patches, patch.Replace(p.currentIndex, marshalText(p.entryType, string(p.buf))))
	}
	p.lastWrite = now
	return patches
}

func marshalText(entryType timeline.EntryType, content string) []byte {
	entry := timeline.NormalizedEntry{EntryType: entryType, Content: content}
	data, err := json.Marshal(entry)
	if err != nil {
		// Entry marshaling cannot fail for this shape; degrade to an empty
		// object rather than panicking inside a log-processing hot path.
		return []byte(`{}`)
	}
	return data
}
