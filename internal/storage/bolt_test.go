package storage

import (
	"path/filepath"
	"testing"

	"github.com/SluiooktueSvg/ia/internal/model/chat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLoadTurns(t *testing.T) {
	store := newTestStore(t)

	turns := []chat.Turn{
		{ID: "u1", Text: "¿Qué hora es?", Sender: chat.SenderUser, Timestamp: 1700000000000},
		{
			ID:             "a1",
			Text:           "No puedo acceder a la hora actual.",
			Sender:         chat.SenderAI,
			Timestamp:      1700000001000,
			Sentiment:      "neutral",
			HasPlayedAudio: true,
		},
	}

	store.SaveTurns(turns)
	loaded := store.LoadTurns()

	if len(loaded) != len(turns) {
		t.Fatalf("expected %d turns, got %d", len(turns), len(loaded))
	}
	for i := range turns {
		if loaded[i] != turns[i] {
			t.Fatalf("turn %d mismatch:\n got %+v\nwant %+v", i, loaded[i], turns[i])
		}
	}
}

func TestLoadTurnsEmptyStore(t *testing.T) {
	store := newTestStore(t)

	if got := store.LoadTurns(); len(got) != 0 {
		t.Fatalf("expected no turns from a fresh store, got %d", len(got))
	}
}

func TestSaveOverwritesPreviousLog(t *testing.T) {
	store := newTestStore(t)

	store.SaveTurns([]chat.Turn{{ID: "old", Sender: chat.SenderUser}})
	store.SaveTurns([]chat.Turn{{ID: "new", Sender: chat.SenderUser}})

	loaded := store.LoadTurns()
	if len(loaded) != 1 || loaded[0].ID != "new" {
		t.Fatalf("expected only the latest log, got %+v", loaded)
	}
}

func TestClearTurns(t *testing.T) {
	store := newTestStore(t)

	store.SaveTurns([]chat.Turn{{ID: "u1", Sender: chat.SenderUser}})
	store.ClearTurns()

	if got := store.LoadTurns(); len(got) != 0 {
		t.Fatalf("expected cleared log, got %d turns", len(got))
	}
}

func TestQuotaFlagRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if store.QuotaFlag() {
		t.Fatal("fresh store must report no quota flag")
	}

	store.SetQuotaFlag()
	if !store.QuotaFlag() {
		t.Fatal("expected quota flag after set")
	}

	store.ClearQuotaFlag()
	if store.QuotaFlag() {
		t.Fatal("expected quota flag cleared")
	}
}

func TestQuotaFlagSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	store, err := New(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	store.SetQuotaFlag()
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	if !reopened.QuotaFlag() {
		t.Fatal("expected quota flag to survive reopen")
	}
}
