package client

import (
	"sync"
	"sync/atomic"

	"github.com/stratakv/strata-go/errors"
)

// outcome is the single-assignment result slot of one in-flight call
type outcome struct {
	valuePtr uint32
	err      error
}

// pending tracks in-flight dispatches for one connection. A single
// lock guards both the closed flag and the operation set; whichever of
// {completion callback, Close} removes a token under that lock owns
// its resolution, which makes resolution exactly-once by construction.
//
// Delivery uses a buffered channel per operation so the resolving
// goroutine, which may be a foreign engine thread, never blocks and
// never runs caller code.
type pending struct {
	nextToken atomic.Uint64

	mu     sync.Mutex
	closed bool
	ops    map[uint64]chan outcome
}

func newPending() *pending {
	return &pending{ops: make(map[uint64]chan outcome)}
}

// register allocates a fresh token and its result channel. Fails with
// a closing error when the connection is closed.
func (p *pending) register() (uint64, chan outcome, error) {
	token := p.nextToken.Add(1)
	ch := make(chan outcome, 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, nil, errors.Closing("client is closed")
	}
	p.ops[token] = ch
	return token, ch, nil
}

// resolve delivers the outcome for token and reports whether the token
// was still registered. An absent token is an expected race (a close
// or cancellation got there first), never an error.
func (p *pending) resolve(token uint64, oc outcome) bool {
	p.mu.Lock()
	ch, ok := p.ops[token]
	if ok {
		delete(p.ops, token)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- oc
	return true
}

// drop removes a token without delivering an outcome. Reports false
// when the token was already resolved.
func (p *pending) drop(token uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ops[token]; !ok {
		return false
	}
	delete(p.ops, token)
	return true
}

// closeAll transitions to closed, runs release while still holding the
// lock, then resolves every outstanding operation with a closing
// error. Holding the lock across the traversal prevents a completion
// callback from resolving an entry the sweep is cancelling. Reports
// false when already closed.
func (p *pending) closeAll(release func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	release()
	for token, ch := range p.ops {
		ch <- outcome{err: errors.Closing("client is closed")}
		delete(p.ops, token)
	}
	return true
}

func (p *pending) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *pending) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ops)
}
