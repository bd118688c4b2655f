/*
Package event is the daemon's process-wide push-event broadcaster.

Subscribers register per WebSocket session and receive every event scoped to
that session, plus any global subscriber receives everything. A subscriber
MUST return quickly and must never call Publish/PublishSync re-entrantly.

	unsubscribe := bus.Subscribe(sessionID, func(ev event.Event) {
		conn.Notify(string(ev.Name), ev.Payload)
	})
	defer unsubscribe()

	bus.Publish(event.Event{Name: event.SessionStatusChanged, SessionID: id, Payload: p})

Durable events (Durable: true) that find no subscriber are handed to the
wired FailureSink (internal/deadletter) instead of being dropped. A
Subscriber returns no error, so once an event has reached a subscriber it
is never reported to the sink. Non-durable events are simply dropped when undeliverable, per
the broadcast contract: non-blocking and never observably failing.
*/
package event
