package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/custodia/escrowd/internal/model"
	"github.com/custodia/escrowd/internal/store"
)

// Run exercises a minimal compliance suite against a journal implementation.
// makeStore should provide a clean, isolated store.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	ev := s.Events()

	if n, err := ev.Count(ctx); err != nil || n != 0 {
		t.Fatalf("Count on fresh journal: n=%d err=%v", n, err)
	}

	deadline := time.Now().UTC().Add(14 * 24 * time.Hour).Truncate(time.Second)
	created, err := ev.Append(ctx, &model.Event{
		Kind:         model.EventVaultCreated,
		VaultID:      1,
		Actor:        "alice",
		Asset:        model.TokenAsset("usdc"),
		Message:      "happy birthday",
		LockDeadline: &deadline,
	})
	if err != nil {
		t.Fatalf("Append vault_created: %v", err)
	}
	if created.Seq != 1 {
		t.Fatalf("Append: want seq 1, got %d", created.Seq)
	}
	if created.EventID == "" || created.CreationTime.IsZero() {
		t.Fatalf("Append must assign event id and creation time: %+v", created)
	}

	donated, err := ev.Append(ctx, &model.Event{
		Kind:    model.EventFundsDonated,
		VaultID: 1,
		Actor:   "bob",
		Asset:   model.TokenAsset("usdc"),
		Amount:  100,
	})
	if err != nil {
		t.Fatalf("Append funds_donated: %v", err)
	}
	if donated.Seq != 2 {
		t.Fatalf("Append: want seq 2, got %d", donated.Seq)
	}

	// Global events carry no vault or asset.
	if _, err := ev.Append(ctx, &model.Event{
		Kind:  model.EventEmergencyToggled,
		Actor: "operator-root",
	}); err != nil {
		t.Fatalf("Append emergency_toggled: %v", err)
	}

	if n, err := ev.Count(ctx); err != nil || n != 3 {
		t.Fatalf("Count: n=%d err=%v", n, err)
	}

	var got []model.Event
	if err := ev.Replay(ctx, func(e *model.Event) error {
		got = append(got, *e)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Replay: want 3 events, got %d", len(got))
	}
	for i, e := range got {
		if e.Seq != int64(i)+1 {
			t.Fatalf("Replay out of order: event %d has seq %d", i, e.Seq)
		}
	}
	if got[0].Kind != model.EventVaultCreated || got[0].Message != "happy birthday" {
		t.Fatalf("Replay vault_created mismatch: %+v", got[0])
	}
	if got[0].LockDeadline == nil || !got[0].LockDeadline.Equal(deadline) {
		t.Fatalf("Replay lock deadline mismatch: got %v want %v", got[0].LockDeadline, deadline)
	}
	if got[1].Asset != model.TokenAsset("usdc") || got[1].Amount != 100 {
		t.Fatalf("Replay funds_donated mismatch: %+v", got[1])
	}
	if !got[2].Asset.IsZero() || got[2].VaultID != 0 {
		t.Fatalf("Replay global event mismatch: %+v", got[2])
	}
}
