package discovery

import "sync"

// Results is a replay-one broadcaster of discovery results.
// A new subscriber immediately receives the latest result (if any).
// Each subscriber holds at most one pending result; a newer publish
// replaces an unread one, so Publish never blocks.
type Results struct {
	mu     sync.Mutex
	latest []*Gateway
	has    bool
	closed bool
	subs   map[*Subscription]struct{}
}

// Subscription delivers results on C until Close is called
type Subscription struct {
	C <-chan []*Gateway

	ch      chan []*Gateway
	results *Results
}

// NewResults creates an empty result stream
func NewResults() *Results {
	return &Results{subs: make(map[*Subscription]struct{})}
}

// Publish retains result as the latest value and hands it to every subscriber
func (r *Results) Publish(result []*Gateway) {
	if result == nil {
		result = []*Gateway{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.latest = result
	r.has = true
	for sub := range r.subs {
		offer(sub.ch, result)
	}
}

// Latest returns the retained result and whether one was ever published
func (r *Results) Latest() ([]*Gateway, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.has
}

// Subscribe registers a new subscriber.
// On a closed stream the channel replays the latest result and is then closed.
func (r *Results) Subscribe() *Subscription {
	ch := make(chan []*Gateway, 1)
	sub := &Subscription{C: ch, ch: ch, results: r}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.has {
		ch <- r.latest
	}
	if r.closed {
		close(ch)
		return sub
	}
	r.subs[sub] = struct{}{}
	return sub
}

// Close ends every subscription
func (r *Results) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for sub := range r.subs {
		close(sub.ch)
		delete(r.subs, sub)
	}
}

// Close unregisters the subscription and closes C
func (s *Subscription) Close() {
	r := s.results
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[s]; !ok {
		return
	}
	delete(r.subs, s)
	close(s.ch)
}

// offer places v in a one-slot channel, replacing an unread value.
// Only publishers holding the stream lock send, so the second send cannot block.
func offer(ch chan []*Gateway, v []*Gateway) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
