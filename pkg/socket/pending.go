package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Channel is the logical wait channel a request correlates on. Typing the
// channel keeps resolution keyed by (channel, id) instead of stringly-typed
// event names.
type Channel int

const (
	ChannelData Channel = iota
	ChannelAuthentication
	ChannelSubscription
	ChannelPong
)

// String returns the string representation of a channel
func (c Channel) String() string {
	switch c {
	case ChannelData:
		return "data"
	case ChannelAuthentication:
		return "authentication"
	case ChannelSubscription:
		return "subscription"
	case ChannelPong:
		return "pong"
	default:
		return "unknown"
	}
}

// outcome is the single-resolution result of a pending wait
type outcome struct {
	result json.RawMessage
	err    error
}

// waitHandle is returned by register and consumed by await. The channel is
// buffered so resolution never blocks the dispatch path.
type waitHandle struct {
	channel Channel
	id      int64
	done    chan outcome
}

type waitKey struct {
	channel Channel
	id      int64
}

// pendingRegistry tracks outstanding waits and resolves each exactly once.
// It is the rendezvous between the goroutine that sent a request and the
// read loop that receives the answering frame.
type pendingRegistry struct {
	mu    sync.Mutex
	waits map[waitKey]*waitHandle
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{
		waits: make(map[waitKey]*waitHandle),
	}
}

// register creates a wait for (channel, id). Ids are unique per session and
// pong senders are serialized, so no key is registered twice while a wait
// is outstanding; an overwrite would abandon the previous wait.
func (r *pendingRegistry) register(channel Channel, id int64) *waitHandle {
	handle := &waitHandle{
		channel: channel,
		id:      id,
		done:    make(chan outcome, 1),
	}

	r.mu.Lock()
	r.waits[waitKey{channel, id}] = handle
	r.mu.Unlock()

	return handle
}

// resolve completes the wait for (channel, id) and reports whether a waiter
// existed. Resolving an unknown or already-resolved key is a no-op, so a
// late or duplicate frame can never resurrect a finished wait.
func (r *pendingRegistry) resolve(channel Channel, id int64, out outcome) bool {
	r.mu.Lock()
	key := waitKey{channel, id}
	handle, ok := r.waits[key]
	if ok {
		delete(r.waits, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	handle.done <- out
	return true
}

// resolveResponse routes a response frame to whichever channel holds its id.
// Request ids are unique across channels, so at most one wait matches.
func (r *pendingRegistry) resolveResponse(id int64, out outcome) bool {
	for _, channel := range []Channel{ChannelData, ChannelAuthentication, ChannelSubscription} {
		if r.resolve(channel, id, out) {
			return true
		}
	}
	return false
}

// remove discards the wait without resolving it and reports whether it was
// still registered. Used on timeout so a late frame is ignored.
func (r *pendingRegistry) remove(channel Channel, id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := waitKey{channel, id}
	if _, ok := r.waits[key]; !ok {
		return false
	}
	delete(r.waits, key)
	return true
}

// failAll resolves every outstanding wait with err. Called when the
// transport drops so no caller is left suspended.
func (r *pendingRegistry) failAll(err error) {
	r.mu.Lock()
	waits := r.waits
	r.waits = make(map[waitKey]*waitHandle)
	r.mu.Unlock()

	for _, handle := range waits {
		handle.done <- outcome{err: err}
	}
}

// await suspends until the wait resolves, the deadline passes, or ctx is
// cancelled. A deadline or cancellation deregisters the wait; if resolution
// raced ahead of the timer the resolved outcome wins.
func (r *pendingRegistry) await(ctx context.Context, handle *waitHandle, timeout time.Duration) (json.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-handle.done:
		return out.result, out.err
	case <-timer.C:
		if !r.remove(handle.channel, handle.id) {
			// resolved between timer fire and removal
			select {
			case out := <-handle.done:
				return out.result, out.err
			default:
			}
		}
		return nil, ErrTimeout
	case <-ctx.Done():
		r.remove(handle.channel, handle.id)
		return nil, ctx.Err()
	}
}
