package normalizer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// ShutdownGrace bounds how long the persistence worker waits to drain a
// store's remaining backlog once asked to stop.
const ShutdownGrace = 5 * time.Second

// NormalizerRuntime owns a MsgStore for one execution and drains it into a
// LogSink, one record per LogMsg, in arrival order. It is the persistence
// half of the normalizer; the timeline half (turning adapter wire formats
// into patches) lives in each internal/agent/<family> package and pushes
// into the same MsgStore this runtime drains.
type NormalizerRuntime struct {
	executionID string
	store       *timeline.MsgStore
	sink        *LogSink

	done chan struct{}
}

// NewNormalizerRuntime starts draining store into a LogSink at sinkPath.
// The drain goroutine runs until the store finishes or ctx is canceled.
func NewNormalizerRuntime(ctx context.Context, executionID string, store *timeline.MsgStore, sinkPath string) (*NormalizerRuntime, error) {
	sink, err := NewLogSink(sinkPath)
	if err != nil {
		return nil, err
	}

	r := &NormalizerRuntime{
		executionID: executionID,
		store:       store,
		sink:        sink,
		done:        make(chan struct{}),
	}
	go r.drain(ctx)
	return r, nil
}

func (r *NormalizerRuntime) drain(ctx context.Context) {
	defer close(r.done)
	defer func() {
		if err := r.sink.Close(); err != nil {
			log.Printf("normalizer[%s]: close sink: %v", r.executionID, err)
		}
	}()

	stream, unsub := r.store.HistoryPlusStream()
	defer unsub()

	for {
		select {
		case msg, ok := <-stream:
			if !ok {
				return
			}
			if err := r.persist(msg); err != nil {
				log.Printf("normalizer[%s]: persist: %v", r.executionID, err)
			}
			if msg.Kind == timeline.LogFinished {
				return
			}
		case <-ctx.Done():
			r.drainRemaining(stream)
			return
		}
	}
}

// drainRemaining is invoked when the surrounding context is canceled
// (process shutdown). It keeps consuming whatever is already queued for up
// to ShutdownGrace so in-flight output is not lost, then gives up.
func (r *NormalizerRuntime) drainRemaining(stream <-chan timeline.LogMsg) {
	deadline := time.NewTimer(ShutdownGrace)
	defer deadline.Stop()
	for {
		select {
		case msg, ok := <-stream:
			if !ok {
				return
			}
			if err := r.persist(msg); err != nil {
				log.Printf("normalizer[%s]: persist during shutdown: %v", r.executionID, err)
			}
			if msg.Kind == timeline.LogFinished {
				return
			}
		case <-deadline.C:
			log.Printf("normalizer[%s]: shutdown grace expired with backlog remaining", r.executionID)
			return
		}
	}
}

func (r *NormalizerRuntime) persist(msg timeline.LogMsg) error {
	rec := sinkRecord{Kind: string(msg.Kind), SessionID: msg.SessionID}
	if msg.Bytes != nil {
		rec.Bytes = base64.StdEncoding.EncodeToString(msg.Bytes)
	}
	if msg.Kind == timeline.LogJSONPatch {
		data, err := patch.Marshal(msg.Patch)
		if err != nil {
			return fmt.Errorf("marshal patch for persistence: %w", err)
		}
		rec.Patch = data
	}
	if err := r.sink.WriteRecord(rec); err != nil {
		return err
	}
	return r.sink.Flush()
}

// Wait blocks until the drain loop has exited, either because the store
// finished or the shutdown grace elapsed.
func (r *NormalizerRuntime) Wait() {
	<-r.done
}

// SinkPath returns the path of the backing JSONL file.
func (r *NormalizerRuntime) SinkPath() string {
	return r.sink.Path()
}
