// Package notify fans out session change events to subscribers such as SSE
// streams and MCP resource watchers.
package notify

import "sync"

// Event announces that a session's state changed. Subscribers are expected to
// re-read the session rather than trust any payload here.
type Event struct {
	SessionID string
}

// subscriptionBuffer bounds how many undelivered events a slow subscriber can
// hold before further events are dropped for it.
const subscriptionBuffer = 16

// Subscription is one subscriber's event stream.
type Subscription struct {
	sessionID string

	mu     sync.Mutex
	closed bool
	events chan Event

	once     sync.Once
	notifier *Notifier
}

// Events returns the subscriber's event channel. The channel closes when the
// subscription does.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close detaches the subscription and closes its channel. Close is
// idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.notifier.detach(s)
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
}

// deliver enqueues the event unless the subscription already closed or its
// buffer is full.
func (s *Subscription) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
	}
}

// Notifier tracks active subscriptions keyed by session.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// New creates an empty Notifier.
func New() *Notifier {
	return &Notifier{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers interest in one session's change events.
func (n *Notifier) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		sessionID: sessionID,
		events:    make(chan Event, subscriptionBuffer),
		notifier:  n,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	set, ok := n.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		n.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers an event to every subscriber of the session. The
// subscriber list is copied under the registry lock and delivery happens
// outside it. Delivery is best effort; a subscriber with a full buffer
// misses the event.
func (n *Notifier) Publish(event Event) {
	n.mu.Lock()
	targets := make([]*Subscription, 0, len(n.subs[event.SessionID]))
	for sub := range n.subs[event.SessionID] {
		targets = append(targets, sub)
	}
	n.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(event)
	}
}

// detach removes the subscription from the registry so later publishes no
// longer see it. The channel close happens in Close under the subscription's
// own lock.
func (n *Notifier) detach(sub *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	set, ok := n.subs[sub.sessionID]
	if ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(n.subs, sub.sessionID)
		}
	}
}
