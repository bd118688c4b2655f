package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBusSubscribeScopedToSession(t *testing.T) {
	bus := New()
	defer bus.Close()

	var received Event
	var wg sync.WaitGroup
	wg.Add(1)

	unsub := bus.Subscribe("sess-1", func(e Event) {
		received = e
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Name: SessionStatusChanged, SessionID: "sess-1", Payload: "busy"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Name != SessionStatusChanged {
			t.Errorf("expected SessionStatusChanged, got %v", received.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusDoesNotCrossSessionBoundary(t *testing.T) {
	bus := New()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe("sess-1", func(e Event) {
		atomic.AddInt32(&count, 1)
	})
	defer unsub()

	bus.PublishSync(Event{Name: SessionStatusChanged, SessionID: "sess-2"})
	if atomic.LoadInt32(&count) != 0 {
		t.Errorf("expected 0 events for a different session, got %d", count)
	}
}

func TestBusSubscribeAllReceivesEveryEvent(t *testing.T) {
	bus := New()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)

	unsub := bus.SubscribeAll(func(e Event) {
		atomic.AddInt32(&count, 1)
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Name: SessionStatusChanged, SessionID: "a"})
	bus.Publish(Event{Name: TaskStatusChanged, SessionID: "b"})
	bus.Publish(Event{Name: RepoStatusChanged, SessionID: "c"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if atomic.LoadInt32(&count) != 3 {
			t.Errorf("expected 3 events, got %d", count)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for events")
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe("sess-1", func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.PublishSync(Event{Name: SessionStatusChanged, SessionID: "sess-1"})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("expected 1 event before unsubscribe, got %d", count)
	}

	unsub()

	bus.PublishSync(Event{Name: SessionStatusChanged, SessionID: "sess-1"})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("expected still 1 event after unsubscribe, got %d", count)
	}
}

func TestBusPublishSyncOrdersPerSubscriber(t *testing.T) {
	bus := New()
	defer bus.Close()

	var received []Name
	var mu sync.Mutex

	bus.Subscribe("sess-1", func(e Event) {
		mu.Lock()
		received = append(received, e.Name)
		mu.Unlock()
	})

	bus.PublishSync(Event{Name: SessionStatusChanged, SessionID: "sess-1"})
	bus.PublishSync(Event{Name: SessionModeChanged, SessionID: "sess-1"})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 || received[0] != SessionStatusChanged || received[1] != SessionModeChanged {
		t.Errorf("expected ordered [statusChanged, modeChanged], got %v", received)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recordingSink) Failed(ev Event, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func TestBusRoutesUndeliveredDurableEventToFailureSink(t *testing.T) {
	bus := New()
	defer bus.Close()

	sink := &recordingSink{}
	bus.SetFailureSink(sink)

	bus.PublishSync(Event{Name: TaskStatusChanged, SessionID: "sess-no-subs", Durable: true})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.reasons) != 1 {
		t.Fatalf("expected 1 failure recorded, got %d", len(sink.reasons))
	}
}

func TestBusDropsUndeliveredNonDurableEventSilently(t *testing.T) {
	bus := New()
	defer bus.Close()

	sink := &recordingSink{}
	bus.SetFailureSink(sink)

	bus.PublishSync(Event{Name: SessionStatusChanged, SessionID: "sess-no-subs", Durable: false})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.reasons) != 0 {
		t.Errorf("expected no failure sink entries for non-durable event, got %d", len(sink.reasons))
	}
}

func TestBusNoSubscribersDoesNotPanic(t *testing.T) {
	bus := New()
	defer bus.Close()

	bus.Publish(Event{Name: SessionStatusChanged, SessionID: "x"})
	bus.PublishSync(Event{Name: SessionStatusChanged, SessionID: "x"})
}

func TestBusConcurrentSubscribePublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe("sess-1", func(e Event) {
				atomic.AddInt32(&count, 1)
			})
			defer unsub()

			for j := 0; j < 10; j++ {
				bus.Publish(Event{Name: SessionStatusChanged, SessionID: "sess-1"})
			}
		}()
	}

	wg.Wait()
	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&count) == 0 {
		t.Log("warning: no events received, but no panic occurred")
	}
}
