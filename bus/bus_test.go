// bus/bus_test.go
package bus

import (
	"testing"
	"time"
)

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(TopicEvents)

	conn.Publish(b.NewMessage(TopicEvents, "hello", false))

	select {
	case got := <-sub.Channel():
		if got.Payload.(string) != "hello" {
			t.Errorf("expected payload 'hello', got %v", got.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(b.NewMessage(TopicBattery, "persist", true))

	sub := conn.Subscribe(TopicBattery)

	select {
	case got := <-sub.Channel():
		if got.Payload.(string) != "persist" {
			t.Errorf("expected retained payload 'persist', got %v", got.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for retained message")
	}
}

func TestRetainedCleared(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(b.NewMessage(TopicBattery, "persist", true))
	conn.Publish(&Message{Topic: TopicBattery, Payload: nil, Retained: true})

	sub := conn.Subscribe(TopicBattery)
	select {
	case got := <-sub.Channel():
		t.Fatalf("expected no retained message, got %v", got.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOrderingPreserved(t *testing.T) {
	b := NewBus(16)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(TopicEvents)

	for i := 0; i < 10; i++ {
		conn.Emit(TopicEvents, i)
	}

	for i := 0; i < 10; i++ {
		select {
		case got := <-sub.Channel():
			if got.Payload.(int) != i {
				t.Fatalf("out of order: expected %d, got %v", i, got.Payload)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}
}

func TestDropOldestWhenFull(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(TopicEvents)

	for i := 0; i < 4; i++ {
		conn.Emit(TopicEvents, i)
	}

	// Queue length 2: the two oldest were dropped.
	got := []int{}
	for {
		select {
		case m := <-sub.Channel():
			got = append(got, m.Payload.(int))
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected [2 3], got %v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(TopicEvents)
	sub.Unsubscribe()

	conn.Emit(TopicEvents, "late")

	select {
	case m, ok := <-sub.Channel():
		if ok {
			t.Fatalf("expected closed channel, got %v", m.Payload)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("expected channel to be closed")
	}
}

func TestDisconnectClosesAll(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")
	s1 := conn.Subscribe(TopicEvents)
	s2 := conn.Subscribe(TopicBattery)
	conn.Disconnect()

	for _, s := range []*Subscription{s1, s2} {
		select {
		case _, ok := <-s.Channel():
			if ok {
				t.Fatal("expected closed channel")
			}
		case <-time.After(50 * time.Millisecond):
			t.Fatal("expected channel to be closed")
		}
	}
}
