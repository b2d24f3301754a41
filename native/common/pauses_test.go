package common

import (
	"errors"
	"testing"

	"lendnet/core/state"
	"lendnet/storage"
)

func TestPausesRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	pauses := NewPauses(state.NewManager(db))

	if pauses.IsPaused("loans") {
		t.Fatalf("fresh registry reports paused")
	}
	if err := pauses.SetPaused("loans", true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if !pauses.IsPaused("loans") {
		t.Fatalf("pause not persisted")
	}
	if pauses.IsPaused("token") {
		t.Fatalf("unrelated module paused")
	}
	if err := pauses.SetPaused("loans", false); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if pauses.IsPaused("loans") {
		t.Fatalf("unpause not persisted")
	}
}

func TestGuard(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	pauses := NewPauses(state.NewManager(db))

	if err := Guard(pauses, "loans"); err != nil {
		t.Fatalf("Guard on unpaused module: %v", err)
	}
	if err := pauses.SetPaused("loans", true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if err := Guard(pauses, "loans"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	// A nil view never blocks.
	if err := Guard(nil, "loans"); err != nil {
		t.Fatalf("Guard with nil view: %v", err)
	}
}
