package feed

import (
	"testing"
)

func TestRouterBuffersAndReplays(t *testing.T) {
	router := NewRouter(WithSubscriberCapacity(4))
	first := Event{ID: "evt-1", Type: EventCommentCreated, PostID: 7}
	second := Event{ID: "evt-2", Type: EventKeyFactorAdded, PostID: 7}
	router.Publish(first)
	router.Publish(second)
	sub := router.Subscribe(7)
	defer sub.Close()
	if got := <-sub.Events; got.ID != first.ID {
		t.Fatalf("expected first buffered event, got %s", got.ID)
	}
	if got := <-sub.Events; got.ID != second.ID {
		t.Fatalf("expected second buffered event, got %s", got.ID)
	}
}

func TestRouterIsolatesPosts(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe(1)
	defer sub.Close()
	router.Publish(NewEvent(EventKeyFactorAdded, 2))
	select {
	case got := <-sub.Events:
		t.Fatalf("received event for another post: %+v", got)
	default:
	}
}

func TestRouterDedupeByID(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe(3)
	defer sub.Close()
	event := NewEvent(EventVoteUpdated, 3)
	router.Publish(event)
	router.Publish(event)
	select {
	case got := <-sub.Events:
		if got.ID != event.ID {
			t.Fatalf("unexpected event: %s", got.ID)
		}
	default:
		t.Fatalf("expected first delivery")
	}
	select {
	case <-sub.Events:
		t.Fatalf("duplicate event delivered")
	default:
	}
}

func TestRouterDedupeWindowForgetsOldIDs(t *testing.T) {
	router := NewRouter(WithDedupeWindow(1))
	sub := router.Subscribe(3)
	defer sub.Close()
	router.Publish(Event{ID: "a", PostID: 3})
	router.Publish(Event{ID: "b", PostID: 3})
	router.Publish(Event{ID: "a", PostID: 3})
	if n := len(sub.Events); n != 3 {
		t.Fatalf("expected 3 deliveries once the window rolled over, got %d", n)
	}
}

func TestRouterPrefersDroppingVotes(t *testing.T) {
	router := NewRouter(WithSubscriberCapacity(1))
	sub := router.Subscribe(5)
	defer sub.Close()
	added := Event{ID: "evt-1", Type: EventKeyFactorAdded, PostID: 5}
	vote := Event{ID: "evt-2", Type: EventVoteUpdated, PostID: 5}
	router.Publish(added)
	router.Publish(vote)
	if got := <-sub.Events; got.ID != added.ID {
		t.Fatalf("expected the addition to survive, got %s", got.ID)
	}

	router.Publish(Event{ID: "evt-3", Type: EventVoteUpdated, PostID: 5})
	router.Publish(Event{ID: "evt-4", Type: EventKeyFactorAdded, PostID: 5})
	if got := <-sub.Events; got.ID != "evt-4" {
		t.Fatalf("expected the addition to replace the queued vote, got %s", got.ID)
	}
}

func TestSubscriptionCloseClosesChannel(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe(9)
	sub.Close()
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected closed channel")
	}
	router.Publish(NewEvent(EventKeyFactorAdded, 9))
}
