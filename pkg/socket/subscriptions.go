package socket

import (
	"encoding/json"
	"sync"
)

// PushHandler receives the positional parameter list of a push frame. It is
// invoked synchronously on the dispatch path, so it must return quickly; a
// slow handler delays every subsequent frame on the connection.
type PushHandler func(params []json.RawMessage)

// Subscription is a long-lived record bound to one session. It keeps the
// original request so the session can replay it verbatim (with a fresh id)
// after a reconnect. The session is the sole mutator; callers hold the
// handle only to unsubscribe and to observe terminal failure.
type Subscription struct {
	request Request
	handler PushHandler

	mu     sync.Mutex
	active bool
	dead   chan error
}

func newSubscription(req Request, handler PushHandler) *Subscription {
	return &Subscription{
		request: req,
		handler: handler,
		active:  true,
		dead:    make(chan error, 1),
	}
}

// Subject returns the topic this subscription receives pushes for
func (s *Subscription) Subject() string {
	return s.request.Subject
}

// Signed reports whether the subscription requires authentication
func (s *Subscription) Signed() bool {
	return s.request.Signed
}

// Active reports whether the subscription still receives pushes
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Done delivers the terminal error if the session could not keep the
// subscription alive across a reconnect. It never fires for an explicit
// unsubscribe.
func (s *Subscription) Done() <-chan error {
	return s.dead
}

// close marks the subscription inactive; a non-nil err is delivered on Done
func (s *Subscription) close(err error) {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()

	if wasActive && err != nil {
		select {
		case s.dead <- err:
		default:
		}
	}
}

// subscriptionRegistry is the durable record of active subscriptions, used
// both to route push frames by subject and to replay after reconnect.
type subscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		subs: make(map[*Subscription]struct{}),
	}
}

func (r *subscriptionRegistry) add(sub *Subscription) {
	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()
}

func (r *subscriptionRegistry) remove(sub *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[sub]; !ok {
		return false
	}
	delete(r.subs, sub)
	return true
}

// forSubject returns every active subscription registered for a subject.
// Multiple subscriptions may share a subject with different parameters
// (different markets); the server does not consistently echo the requesting
// market in push frames, so per-market filtering is each handler's job and
// routing hands the full payload to all of them.
func (r *subscriptionRegistry) forSubject(subject string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Subscription
	for sub := range r.subs {
		if sub.Subject() == subject && sub.Active() {
			matched = append(matched, sub)
		}
	}
	return matched
}

// all returns a snapshot of every active subscription
func (r *subscriptionRegistry) all() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*Subscription, 0, len(r.subs))
	for sub := range r.subs {
		if sub.Active() {
			subs = append(subs, sub)
		}
	}
	return subs
}
