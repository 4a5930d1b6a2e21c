package stream

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"procuredata.io/internal/dataspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishReachesOnlyOwner(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := h.Subscribe(ctx, "u1")
	theirs := h.Subscribe(ctx, "u2")

	h.Publish(dataspace.Notification{ID: "n1", UserID: "u1", Title: "hola"})

	select {
	case n := <-mine:
		if n.ID != "n1" {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
	select {
	case n := <-theirs:
		t.Fatalf("u2 received %+v", n)
	default:
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = h.Subscribe(ctx, "u1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < bufferSize*4; i++ {
			h.Publish(dataspace.Notification{UserID: "u1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestCancelClosesAndUnregisters(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Subscribe(ctx, "u1")
	if h.Subscribers("u1") != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.Subscribers("u1"))
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if h.Subscribers("u1") != 0 {
		t.Fatalf("expected subscription removed, got %d", h.Subscribers("u1"))
	}
}
