package changestream

import (
	"testing"
	"time"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	s := New(4)
	defer s.Close()

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Publish(Event{Namespace: "ns", Key: "k", Kind: Put})

	select {
	case ev := <-ch:
		if ev.Key != "k" || ev.Kind != Put {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New(4)
	defer s.Close()

	ch, unsubscribe := s.Subscribe()
	unsubscribe()

	s.Publish(Event{Namespace: "ns", Key: "k", Kind: Put})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel closed, got a delivered event")
		}
	case <-time.After(time.Second):
		t.Fatal("expected channel to be closed promptly after unsubscribe")
	}
}

func TestSlowSubscriberGetsDroppedMarkerNotBlock(t *testing.T) {
	s := New(1)
	defer s.Close()

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	// Publish more events than the subscriber's channel (capacity 1)
	// can hold without ever draining it.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			s.Publish(Event{Namespace: "ns", Key: "k", Kind: Put})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// Drain whatever made it through; at least one Dropped marker is
	// expected given the channel could not hold all 20 events.
	sawDropped := false
	drain := time.After(500 * time.Millisecond)
loop:
	for {
		select {
		case ev := <-ch:
			if ev.Kind == Dropped {
				sawDropped = true
			}
		case <-drain:
			break loop
		}
	}
	if !sawDropped {
		t.Fatal("expected at least one Dropped marker for an overwhelmed subscriber")
	}
}

func TestMultipleSubscribersEachReceiveInOrder(t *testing.T) {
	s := New(16)
	defer s.Close()

	ch1, unsub1 := s.Subscribe()
	defer unsub1()
	ch2, unsub2 := s.Subscribe()
	defer unsub2()

	for i := 0; i < 5; i++ {
		s.Publish(Event{Namespace: "ns", Key: string(rune('a' + i)), Kind: Put})
	}

	for i := 0; i < 5; i++ {
		want := string(rune('a' + i))
		select {
		case ev := <-ch1:
			if ev.Key != want {
				t.Fatalf("subscriber 1: expected %s, got %s", want, ev.Key)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting on subscriber 1")
		}
		select {
		case ev := <-ch2:
			if ev.Key != want {
				t.Fatalf("subscriber 2: expected %s, got %s", want, ev.Key)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting on subscriber 2")
		}
	}
}

func TestSubscriberCount(t *testing.T) {
	s := New(4)
	defer s.Close()

	if s.SubscriberCount() != 0 {
		t.Fatal("expected 0 subscribers initially")
	}
	_, unsubscribe := s.Subscribe()
	if s.SubscriberCount() != 1 {
		t.Fatal("expected 1 subscriber after Subscribe")
	}
	unsubscribe()
	if s.SubscriberCount() != 0 {
		t.Fatal("expected 0 subscribers after unsubscribe")
	}
}
