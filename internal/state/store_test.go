package state

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSaveLoad(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	want := Session{
		StreamName:    "NTS Live 2",
		StreamURL:     "https://stream-mixtape-geo.ntslive.net/stream2",
		Volume:        70,
		HistoryScroll: 4,
	}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("loaded session = %+v, want %+v", got, want)
	}
}

func TestLoadFreshStoreYieldsDefaults(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	sess, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.StreamName != "" || sess.StreamURL != "" {
		t.Errorf("expected empty stream, got %+v", sess)
	}
	if sess.Volume != NoVolume {
		t.Errorf("expected no saved volume, got %d", sess.Volume)
	}
}

func TestMutedVolumeRoundTrips(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, Session{StreamName: "NTS Live 1", Volume: 0}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sess, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// 0 is a deliberate mute, not the absence of a setting.
	if sess.Volume != 0 {
		t.Errorf("expected muted volume preserved, got %d", sess.Volume)
	}
}

func TestSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Save(ctx, Session{StreamName: "Poolside", StreamURL: "https://x", Volume: 30}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.Close()

	store, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	sess, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if sess.StreamName != "Poolside" || sess.Volume != 30 {
		t.Errorf("session did not survive reopen: %+v", sess)
	}
}

func TestClear(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, Session{StreamName: "NTS Live 1", Volume: 90}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	sess, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.StreamName != "" || sess.Volume != NoVolume {
		t.Errorf("expected cleared session, got %+v", sess)
	}
}
