package eventbus

import "testing"

func TestSubscribePublishDelivers(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventOrderFilled, 1)
	defer unsub()

	b.Publish(EventOrderFilled, "fill-1")

	select {
	case got := <-ch:
		if got != "fill-1" {
			t.Fatalf("expected fill-1, got %v", got)
		}
	default:
		t.Fatalf("expected a buffered message, got none")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventRunStarted, 1)
	defer unsub()

	b.Publish(EventRunStarted, "a")
	b.Publish(EventRunStarted, "b") // buffer full, dropped rather than blocking

	if got := <-ch; got != "a" {
		t.Fatalf("expected first published value a, got %v", got)
	}
	select {
	case v := <-ch:
		t.Fatalf("expected no second message, got %v", v)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventRunFinished, 1)
	unsub()

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}
