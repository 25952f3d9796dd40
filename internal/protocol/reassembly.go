package protocol

import (
	"fmt"
	"sync"
	"time"
)

// DefaultReassemblyTTL bounds how long a partial message is kept
const DefaultReassemblyTTL = 5 * time.Second

type partial struct {
	count    uint16
	received int
	chunks   [][]byte
	started  time.Time
}

// Reassembler joins fragments that share a transaction id
type Reassembler struct {
	TTL time.Duration

	mu       sync.Mutex
	messages map[uint16]*partial
	now      func() time.Time
}

// NewReassembler creates a reassembler with DefaultReassemblyTTL
func NewReassembler() *Reassembler {
	return &Reassembler{
		TTL:      DefaultReassemblyTTL,
		messages: make(map[uint16]*partial),
		now:      time.Now,
	}
}

// Add stores one fragment. It returns the joined payload and true once every
// fragment of the transaction has arrived, in any order.
func (r *Reassembler) Add(f *Frame) ([]byte, bool, error) {
	if f.Count == 0 || f.Index >= f.Count {
		return nil, false, fmt.Errorf("invalid fragment %d of %d", f.Index, f.Count)
	}

	// fast path for the common single-fragment request
	if f.Count == 1 {
		return f.Payload, true, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked()

	p, ok := r.messages[f.TransactionID]
	if !ok || p.count != f.Count {
		p = &partial{
			count:   f.Count,
			chunks:  make([][]byte, f.Count),
			started: r.now(),
		}
		r.messages[f.TransactionID] = p
	}

	if p.chunks[f.Index] == nil {
		chunk := make([]byte, len(f.Payload))
		copy(chunk, f.Payload)
		p.chunks[f.Index] = chunk
		p.received++
	}

	if p.received < int(p.count) {
		return nil, false, nil
	}

	delete(r.messages, f.TransactionID)

	size := 0
	for _, c := range p.chunks {
		size += len(c)
	}
	out := make([]byte, 0, size)
	for _, c := range p.chunks {
		out = append(out, c...)
	}
	return out, true, nil
}

// Pending returns the number of incomplete messages
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *Reassembler) expireLocked() {
	cutoff := r.now().Add(-r.TTL)
	for tid, p := range r.messages {
		if p.started.Before(cutoff) {
			delete(r.messages, tid)
		}
	}
}
