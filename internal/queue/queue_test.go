package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func frameMessage(t *testing.T, ref, url string) Message {
	t.Helper()
	msg, err := NewMessage(TypeFrame, FramePayload{SessionRef: ref, ImageURL: url})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	return msg
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if err := q.Publish(ctx, frameMessage(t, "ref-1", "https://img/1.jpg")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg := receive(t, ch)
	if msg.Type != TypeFrame {
		t.Fatalf("type = %s, want frame", msg.Type)
	}
	var payload FramePayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if payload.SessionRef != "ref-1" || payload.ImageURL != "https://img/1.jpg" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestInMemoryPublishHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	if err := q.Publish(ctx, frameMessage(t, "r", "u")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Publish(canceled, frameMessage(t, "r", "u")); err == nil {
		t.Fatal("publish into a full queue with canceled context should fail")
	}
}

func TestRedisQueueRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewRedisQueue(client, "test:frames")
	if err := q.Publish(ctx, frameMessage(t, "ref-1", "https://img/1.jpg")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := q.Publish(ctx, frameMessage(t, "ref-2", "https://img/2.jpg")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	// BRPOP drains in publish order.
	for _, want := range []string{"ref-1", "ref-2"} {
		msg := receive(t, ch)
		var payload FramePayload
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			t.Fatalf("payload decode: %v", err)
		}
		if payload.SessionRef != want {
			t.Fatalf("session ref = %s, want %s", payload.SessionRef, want)
		}
	}
}
