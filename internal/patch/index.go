package patch

import "sync"

// IndexProvider assigns dense, monotonically increasing timeline indices.
// It starts from the seed passed to NewIndexProvider; the supervisor seeds
// every execution with 0, and nothing in this module reseeds a provider
// from persisted entries on resume.
type IndexProvider struct {
	mu   sync.Mutex
	next int
}

// NewIndexProvider creates a provider starting at seed (normally the count
// of entries already persisted for this execution).
func NewIndexProvider(seed int) *IndexProvider {
	return &IndexProvider{next: seed}
}

// Next returns the next free index and advances the counter.
func (p *IndexProvider) Next() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.next
	p.next++
	return idx
}

// Peek returns the next index that would be assigned, without advancing.
func (p *IndexProvider) Peek() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

// Reset rewinds the counter to zero. Used only by the claudecode adapter's
// amp-resume history reset, which discards a pre-populated timeline
// before continuing.
func (p *IndexProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = 0
}
