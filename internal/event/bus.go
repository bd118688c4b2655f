// Package event is the daemon's process-wide fan-out for named push events.
// Subscribers register per WebSocket session and receive events as JSON-RPC
// notifications; broadcast is non-blocking and never fails observably.
// Durable events with no subscriber are handed to a FailureSink (normally
// internal/deadletter) instead of being dropped.
//
// Adapted from the server's original internal/event/bus.go: same watermill
// gochannel core and typed direct-call subscriber map, but the global
// singleton is replaced by an injectable *Bus (the daemon owns exactly one,
// wired at startup) and every Event carries a Durable flag.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Name is a push event name, exactly as named in the server -> client
// JSON-RPC notification catalog.
type Name string

const (
	SessionStatusChanged   Name = "session.statusChanged"
	SessionMessageCreated  Name = "session.messageCreated"
	SessionMessageUpdated  Name = "session.messageUpdated"
	SessionModeChanged     Name = "session.modeChanged"
	SessionDriftWarning    Name = "session.driftWarning"
	SessionToolCall        Name = "session.tool_call"
	ToolApprovalRequested  Name = "tool.approvalRequested"
	TaskStatusChanged      Name = "task.statusChanged"
	TaskTestResult         Name = "task.testResult"
	AEPlanReady            Name = "ae.planReady"
	AEPlanApproved         Name = "ae.planApproved"
	WarningContextNearFull Name = "warning.contextNearFull"
	WarningContextFull     Name = "warning.contextFull"
	AchievementUnlocked    Name = "achievement.unlocked"
	RepoStatusChanged      Name = "repo.statusChanged"
)

// Event is one push event. SessionID scopes delivery and is the dead-letter
// dedup key's first component; Durable marks events that must not be
// silently dropped on delivery failure.
type Event struct {
	Name      Name
	SessionID string
	Payload   any
	Durable   bool
}

// Subscriber receives events for one WebSocket connection's subscription.
type Subscriber func(Event)

// FailureSink receives durable events that found no subscriber.
// internal/deadletter implements this; this package never imports it
// directly, since deadletter depends on internal/store and this doesn't.
type FailureSink interface {
	Failed(ev Event, reason string)
}

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is one daemon's event broadcaster.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	bySession   map[string][]subscriberEntry
	global      []subscriberEntry
	nextID      uint64
	closed      bool
	failureSink FailureSink
}

// New creates an unstarted bus. The daemon constructs exactly one and wires
// it into internal/rpc (outbound push) and every component that emits events.
func New() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256, Persistent: false},
			watermill.NopLogger{},
		),
		bySession: make(map[string][]subscriberEntry),
	}
}

// SetFailureSink wires the dead-letter queue. Must be called before Publish
// is used with Durable events if drop-on-failure is unacceptable.
func (b *Bus) SetFailureSink(sink FailureSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureSink = sink
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for events scoped to sessionID. Returns an
// unsubscribe function.
func (b *Bus) Subscribe(sessionID string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.bySession[sessionID] = append(b.bySession[sessionID], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(sessionID, id) }
}

// SubscribeAll registers fn for every event regardless of session, used by
// the daemon-wide operator connection (no session scope).
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(sessionID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.bySession[sessionID]
	for i, e := range subs {
		if e.id == id {
			b.bySession[sessionID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.global {
		if e.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

// Publish fans out ev asynchronously; each subscriber runs in its own
// goroutine so one slow WebSocket write never blocks another.
func (b *Bus) Publish(ev Event) {
	subs, sink := b.snapshot(ev)
	if len(subs) == 0 {
		b.reportUndelivered(ev, sink, "no subscribers")
		return
	}
	for _, sub := range subs {
		go sub(ev)
	}
}

// PublishSync fans out ev in the caller's goroutine, preserving
// per-subscriber FIFO ordering relative to other synchronous publishes.
func (b *Bus) PublishSync(ev Event) {
	subs, sink := b.snapshot(ev)
	if len(subs) == 0 {
		b.reportUndelivered(ev, sink, "no subscribers")
		return
	}
	for _, sub := range subs {
		sub(ev)
	}
}

func (b *Bus) snapshot(ev Event) ([]Subscriber, FailureSink) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, b.failureSink
	}
	subs := make([]Subscriber, 0, len(b.bySession[ev.SessionID])+len(b.global))
	for _, e := range b.bySession[ev.SessionID] {
		subs = append(subs, e.fn)
	}
	for _, e := range b.global {
		subs = append(subs, e.fn)
	}
	return subs, b.failureSink
}

func (b *Bus) reportUndelivered(ev Event, sink FailureSink, reason string) {
	if ev.Durable && sink != nil {
		sink.Failed(ev, reason)
	}
}

// PubSub exposes the underlying watermill channel for components that want
// ordered replay semantics instead of direct callback dispatch.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// Close releases all subscribers and the underlying pubsub.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.bySession = make(map[string][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()
	return b.pubsub.Close()
}
