package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

func TestPublishNoConnections(t *testing.T) {
	bus := NewEventBus()
	// must not block or panic
	bus.Publish("nobody", "partner_connected", map[string]string{"message": "hi"})
	if bus.HasConnections("nobody") {
		t.Fatal("HasConnections reported a connection that was never opened")
	}
}

func TestPublishFansOutInOrder(t *testing.T) {
	bus := NewEventBus()
	first := bus.Subscribe("a")
	second := bus.Subscribe("a")
	defer bus.Unsubscribe(first)
	defer bus.Unsubscribe(second)

	for i := 0; i < 3; i++ {
		bus.Publish("a", "game_update", map[string]int{"seq": i})
	}

	for _, sub := range []*Subscription{first, second} {
		for i := 0; i < 3; i++ {
			ev := drainEvent(t, sub)
			if ev.Type != "game_update" {
				t.Fatalf("event type = %q, want game_update", ev.Type)
			}
			var payload struct {
				Seq int `json:"seq"`
			}
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				t.Fatalf("unmarshal payload: %v", err)
			}
			if payload.Seq != i {
				t.Fatalf("event %d arrived out of order: seq = %d", i, payload.Seq)
			}
		}
	}
}

func TestPublishDoesNotCrossIdentities(t *testing.T) {
	bus := NewEventBus()
	mine := bus.Subscribe("a")
	other := bus.Subscribe("b")
	defer bus.Unsubscribe(mine)
	defer bus.Unsubscribe(other)

	bus.Publish("a", "nudge", map[string]string{"message": "hey"})

	drainEvent(t, mine)
	select {
	case ev := <-other.Events():
		t.Fatalf("identity b received %q addressed to a", ev.Type)
	default:
	}
}

func TestUnsubscribeRemovesEntry(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe("a")
	if !bus.HasConnections("a") {
		t.Fatal("expected an open connection after Subscribe")
	}

	bus.Unsubscribe(sub)
	if bus.HasConnections("a") {
		t.Fatal("expected no connections after Unsubscribe")
	}

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done channel not closed after Unsubscribe")
	}

	// second call must be a no-op, not a double close
	bus.Unsubscribe(sub)
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe("a")
	defer bus.Unsubscribe(sub)

	for i := 0; i < subscriptionBuffer+5; i++ {
		bus.Publish("a", "game_update", map[string]int{"seq": i})
	}

	// only the first subscriptionBuffer events are retained
	count := 0
	for {
		select {
		case <-sub.Events():
			count++
			continue
		default:
		}
		break
	}
	if count != subscriptionBuffer {
		t.Fatalf("buffered events = %d, want %d", count, subscriptionBuffer)
	}
}

func TestBusConcurrentSubscribePublish(t *testing.T) {
	bus := NewEventBus()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("identity-%d", n%4)
			sub := bus.Subscribe(id)
			bus.Publish(id, "daily_update", map[string]int{"n": n})
			bus.Unsubscribe(sub)
		}(i)
	}
	wg.Wait()
	bus.Shutdown()
}

func TestShutdownWakesSubscribers(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe("a")
	b := bus.Subscribe("b")

	bus.Shutdown()

	for _, sub := range []*Subscription{a, b} {
		select {
		case <-sub.Done():
		default:
			t.Fatal("subscription not woken by Shutdown")
		}
	}
	if bus.HasConnections("a") || bus.HasConnections("b") {
		t.Fatal("connections survived Shutdown")
	}
}
