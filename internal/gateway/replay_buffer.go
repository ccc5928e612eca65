package gateway

import "sync"

type replayEntry struct {
	seq      int64
	envelope []byte
}

// ReplayBuffer keeps the last envelopes of one channel, oldest overwritten
// first, so a client that saw a gap in channel_seq can fetch what it
// missed through /api/v1/replay. Safe for concurrent use.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	next    int // slot of the next write
	size    int
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayCapacity
	}
	return &ReplayBuffer{entries: make([]replayEntry, capacity)}
}

// Push stores a copy of envelope under seq.
func (rb *ReplayBuffer) Push(seq int64, envelope []byte) {
	e := replayEntry{seq: seq, envelope: append([]byte(nil), envelope...)}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries[rb.next] = e
	rb.next = (rb.next + 1) % len(rb.entries)
	if rb.size < len(rb.entries) {
		rb.size++
	}
}

// Range returns the envelopes with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	oldest := (rb.next - rb.size + len(rb.entries)) % len(rb.entries)
	for i := 0; i < rb.size; i++ {
		e := rb.entries[(oldest+i)%len(rb.entries)]
		if e.seq >= fromSeq && e.seq <= toSeq {
			out = append(out, e.envelope)
		}
	}
	return out
}

// Len returns the number of stored envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}
