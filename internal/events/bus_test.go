package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan CameraConnectedEvent, 1)

	unsub := bus.Subscribe(func(e CameraConnectedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(CameraConnectedEvent{CameraID: "cam1", Attempt: 3})

	select {
	case got := <-received:
		if got.CameraID != "cam1" || got.Attempt != 3 {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	received1 := make(chan FeedStateChangedEvent, 1)
	received2 := make(chan FeedStateChangedEvent, 1)

	defer bus.Subscribe(func(e FeedStateChangedEvent) { received1 <- e })()
	defer bus.Subscribe(func(e FeedStateChangedEvent) { received2 <- e })()

	bus.Publish(FeedStateChangedEvent{Feeding: true})

	for i, ch := range []chan FeedStateChangedEvent{received1, received2} {
		select {
		case e := <-ch:
			if !e.Feeding {
				t.Errorf("subscriber %d got %+v", i, e)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d not called", i)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CameraOfflineEvent, 1)

	unsub := bus.Subscribe(func(e CameraOfflineEvent) {
		received <- e
	})

	bus.Publish(CameraOfflineEvent{CameraID: "cam1"})
	<-received

	unsub()

	bus.Publish(CameraOfflineEvent{CameraID: "cam2"})
	select {
	case <-received:
		t.Fatal("should not receive events after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()
	offline := make(chan CameraOfflineEvent, 1)
	failed := make(chan CameraConnectFailedEvent, 1)

	defer bus.Subscribe(func(e CameraOfflineEvent) { offline <- e })()
	defer bus.Subscribe(func(e CameraConnectFailedEvent) { failed <- e })()

	bus.Publish(CameraConnectFailedEvent{CameraID: "cam1", Status: -1, RetryAfter: "30s"})

	select {
	case e := <-failed:
		if e.RetryAfter != "30s" {
			t.Errorf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("connect failure not delivered")
	}

	select {
	case e := <-offline:
		t.Fatalf("offline subscriber received %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_UnknownHandlerIsNoop(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_NilBusDropsEvents(_ *testing.T) {
	var bus *Bus
	bus.Publish(ShutdownRequestedEvent{Reason: "test"})
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(func(ConnectionStateChangedEvent) {})
			for range 10 {
				bus.Publish(ConnectionStateChangedEvent{From: "connecting", To: "connected"})
			}
			unsub()
		}()
	}
	wg.Wait()
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsub := SubscribeToChannel[ShutdownRequestedEvent](bus, ch)
	defer unsub()

	bus.Publish(ShutdownRequestedEvent{Reason: "interrupt"})

	select {
	case ev := <-ch:
		e, ok := ev.(ShutdownRequestedEvent)
		if !ok || e.Reason != "interrupt" {
			t.Errorf("unexpected event: %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not forwarded to channel")
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // never drained

	unsub := SubscribeToChannel[CameraDiscoveredEvent](bus, ch)
	defer unsub()

	for range 5 {
		bus.Publish(CameraDiscoveredEvent{CameraID: "cam1"})
	}
}
