package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "questline.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AdventureLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AdventureFor(ctx, 1); !errors.Is(err, ErrNoAdventure) {
		t.Fatalf("expected ErrNoAdventure, got %v", err)
	}

	id, err := s.StartAdventure(ctx, 1)
	if err != nil {
		t.Fatalf("StartAdventure: %v", err)
	}
	if id == "" {
		t.Fatal("adventure ID should not be empty")
	}

	got, err := s.AdventureFor(ctx, 1)
	if err != nil {
		t.Fatalf("AdventureFor: %v", err)
	}
	if got != id {
		t.Errorf("expected %q, got %q", id, got)
	}

	if err := s.EndAdventure(ctx, 1); err != nil {
		t.Fatalf("EndAdventure: %v", err)
	}
	if _, err := s.AdventureFor(ctx, 1); !errors.Is(err, ErrNoAdventure) {
		t.Errorf("expected ErrNoAdventure after end, got %v", err)
	}

	// Ending again is a no-op
	if err := s.EndAdventure(ctx, 1); err != nil {
		t.Errorf("EndAdventure should be idempotent: %v", err)
	}
}

func TestStore_Transcript(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StartAdventure(ctx, 1)
	if err != nil {
		t.Fatalf("StartAdventure: %v", err)
	}

	if err := s.AppendScene(ctx, id, 1, "You wake in a forest.", []string{"Follow the path", "Climb a tree"}); err != nil {
		t.Fatalf("AppendScene: %v", err)
	}
	if err := s.RecordChoice(ctx, id, "Follow the path"); err != nil {
		t.Fatalf("RecordChoice: %v", err)
	}
	if err := s.AppendScene(ctx, id, 1, "The path leads to a river.", []string{"Swim", "Build a raft"}); err != nil {
		t.Fatalf("AppendScene: %v", err)
	}

	history, err := s.History(ctx, id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history))
	}
	if history[0].Narration != "You wake in a forest." || history[0].Choice != "Follow the path" {
		t.Errorf("unexpected first turn: %+v", history[0])
	}
	if history[1].Choice != "" {
		t.Errorf("latest turn should be awaiting a choice, got %q", history[1].Choice)
	}

	choices, err := s.PendingChoices(ctx, id)
	if err != nil {
		t.Fatalf("PendingChoices: %v", err)
	}
	if len(choices) != 2 || choices[0] != "Swim" {
		t.Errorf("unexpected pending choices: %v", choices)
	}
}

func TestStore_PendingChoicesNoneOutstanding(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.StartAdventure(ctx, 1)
	s.AppendScene(ctx, id, 1, "A quiet clearing.", []string{"Rest"})
	s.RecordChoice(ctx, id, "Rest")

	choices, err := s.PendingChoices(ctx, id)
	if err != nil {
		t.Fatalf("PendingChoices: %v", err)
	}
	if choices != nil {
		t.Errorf("expected no pending choices, got %v", choices)
	}
}

func TestStore_RestartDropsTranscript(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, _ := s.StartAdventure(ctx, 1)
	s.AppendScene(ctx, first, 1, "An old tower looms ahead.", []string{"Enter"})

	second, err := s.StartAdventure(ctx, 1)
	if err != nil {
		t.Fatalf("StartAdventure: %v", err)
	}
	if second == first {
		t.Error("restart should mint a fresh adventure ID")
	}

	history, err := s.History(ctx, first)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("old transcript should be dropped, got %d turns", len(history))
	}
}

func TestStore_RecordChoiceOnlyFillsPendingTurn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.StartAdventure(ctx, 1)
	s.AppendScene(ctx, id, 1, "A fork in the road.", []string{"Go left", "Go right"})
	s.RecordChoice(ctx, id, "Go left")
	s.RecordChoice(ctx, id, "Go right") // no pending turn — must not overwrite

	history, err := s.History(ctx, id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if history[0].Choice != "Go left" {
		t.Errorf("recorded choice overwritten: %q", history[0].Choice)
	}
}
