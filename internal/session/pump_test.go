package session

import (
	"context"
	"testing"
	"time"

	"rollcall/internal/queue"
)

func TestRecognizedPumpFeedsRoster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newFakeStore()
	mgr := newTestManager(t, store, nil)
	opened, _ := mgr.Initiate(ctx, "teacher-1", "sub-1", "CS-A", "room-12")
	_, _, _ = mgr.ChooseMethod(ctx, opened.Ref, MethodCamera)

	q := queue.NewInMemory(8)
	go func() { _ = mgr.RunRecognizedPump(ctx, q) }()

	msg, err := queue.NewMessage(queue.TypeRecognized, queue.RecognizedPayload{
		SessionRef: opened.Ref,
		Students: []queue.RecognizedStudent{
			{StudentID: "s1", RollNumber: "01", Name: "Asha", Similarity: 0.92},
			{StudentID: "s2", RollNumber: "02", Name: "Bilal", Similarity: 0.88},
			{StudentID: "s1", RollNumber: "01", Name: "Asha", Similarity: 0.95},
		},
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		snap, err := mgr.Snapshot(opened.Ref)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if len(snap.Roster) == 2 {
			if snap.Roster[0].StudentID != "s1" || snap.Roster[1].StudentID != "s2" {
				t.Fatalf("roster order = %+v", snap.Roster)
			}
			if snap.Roster[0].Presence != Present {
				t.Fatalf("recognized student presence = %v, want present", snap.Roster[0].Presence)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("pump never delivered roster events, have %d", len(snap.Roster))
		case <-time.After(10 * time.Millisecond):
		}
	}
}
