package storyboard

import (
	"io"
	"log/slog"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func seedBoard(t *testing.T, s *Store, lines ...string) {
	t.Helper()
	seeds := make([]SceneSeed, 0, len(lines))
	for _, line := range lines {
		seeds = append(seeds, SceneSeed{ImagePrompt: "prompt for " + line, NarratorScript: line})
	}
	s.Reset(seeds)
}

func TestResetAssignsContiguousIDs(t *testing.T) {
	s := New(newLogger())
	seedBoard(t, s, "one", "two", "three")

	scenes := s.Scenes()
	if len(scenes) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(scenes))
	}
	for i, sc := range scenes {
		if sc.ID != i {
			t.Fatalf("expected id %d at position %d, got %d", i, i, sc.ID)
		}
		if sc.ImageURL != "" {
			t.Fatalf("new scene %d should have no image", sc.ID)
		}
	}
	if scenes[1].NarratorScript != "two" {
		t.Fatalf("narration not verbatim: %q", scenes[1].NarratorScript)
	}
}

func TestResetStopsPlaybackAndClearsErrors(t *testing.T) {
	s := New(newLogger())
	seedBoard(t, s, "a", "b")
	s.SetPlaying(true)
	if err := s.SetCurrentIndex(1); err != nil {
		t.Fatalf("set index: %v", err)
	}
	s.SetError("boom")
	s.SetEditorError("editor boom")

	seedBoard(t, s, "c")

	if s.Playing() {
		t.Fatal("reset should stop playback")
	}
	if s.CurrentIndex() != 0 {
		t.Fatalf("reset should return index to 0, got %d", s.CurrentIndex())
	}
	if s.LastError() != "" || s.EditorError() != "" {
		t.Fatal("reset should clear both error surfaces")
	}
}

func TestEditsAreInPlaceAndIdempotent(t *testing.T) {
	s := New(newLogger())
	seedBoard(t, s, "a", "b", "c")
	if err := s.SetImage(1, []byte{0xff, 0xd8}, "image/jpeg"); err != nil {
		t.Fatalf("set image: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.SetNarration(1, "edited"); err != nil {
			t.Fatalf("edit %d: %v", i, err)
		}
		if err := s.SetPrompt(1, "new prompt"); err != nil {
			t.Fatalf("edit prompt %d: %v", i, err)
		}
	}

	scenes := s.Scenes()
	if scenes[1].NarratorScript != "edited" || scenes[1].ImagePrompt != "new prompt" {
		t.Fatalf("edit not applied: %+v", scenes[1])
	}
	if scenes[1].ImageURL == "" {
		t.Fatal("edits must not touch the image reference")
	}
	if scenes[0].NarratorScript != "a" || scenes[2].NarratorScript != "c" {
		t.Fatal("edit leaked into sibling scenes")
	}
	for i, sc := range scenes {
		if sc.ID != i {
			t.Fatalf("ids must stay stable across edits, got %d at %d", sc.ID, i)
		}
	}
}

func TestSetImagePatchesOnlyTarget(t *testing.T) {
	s := New(newLogger())
	seedBoard(t, s, "a", "b", "c")

	if err := s.SetImage(2, []byte("jpegbytes"), "image/jpeg"); err != nil {
		t.Fatalf("set image: %v", err)
	}
	scenes := s.Scenes()
	if scenes[2].ImageURL != ImagePath(2) {
		t.Fatalf("expected image ref for scene 2, got %q", scenes[2].ImageURL)
	}
	if scenes[0].ImageURL != "" || scenes[1].ImageURL != "" {
		t.Fatal("other scenes must remain imageless")
	}
	data, mime, ok := s.Image(2)
	if !ok || string(data) != "jpegbytes" || mime != "image/jpeg" {
		t.Fatalf("stored blob mismatch: %q %q %v", data, mime, ok)
	}
}

func TestSetImageUnknownID(t *testing.T) {
	s := New(newLogger())
	seedBoard(t, s, "a")
	if err := s.SetImage(7, []byte("x"), "image/jpeg"); err == nil {
		t.Fatal("expected error for unknown scene id")
	}
}

func TestIndexBounds(t *testing.T) {
	s := New(newLogger())
	seedBoard(t, s, "a", "b")
	if err := s.SetCurrentIndex(2); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if err := s.SetCurrentIndex(-1); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if err := s.SetCurrentIndex(1); err != nil {
		t.Fatalf("in-range index rejected: %v", err)
	}
}

func TestRegenerationMarkerIsExclusive(t *testing.T) {
	s := New(newLogger())
	seedBoard(t, s, "a", "b")

	if err := s.BeginRegeneration(0); err != nil {
		t.Fatalf("begin regeneration: %v", err)
	}
	if err := s.BeginRegeneration(1); err == nil {
		t.Fatal("second regeneration must be blocked")
	}
	id, ok := s.RegeneratingID()
	if !ok || id != 0 {
		t.Fatalf("expected regenerating id 0, got %d %v", id, ok)
	}
	s.EndRegeneration(0)
	if _, ok := s.RegeneratingID(); ok {
		t.Fatal("marker should be cleared")
	}
	if err := s.BeginRegeneration(1); err != nil {
		t.Fatalf("regeneration after clear: %v", err)
	}
}

func TestRegenerationBlockedWhileLoading(t *testing.T) {
	s := New(newLogger())
	seedBoard(t, s, "a")
	s.BeginLoading("working")
	if err := s.BeginRegeneration(0); err == nil {
		t.Fatal("regeneration must be blocked while loading")
	}
	s.EndLoading()
	if err := s.BeginRegeneration(0); err != nil {
		t.Fatalf("regeneration after loading: %v", err)
	}
}

func TestBeginLoadingClearsErrors(t *testing.T) {
	s := New(newLogger())
	seedBoard(t, s, "a")
	s.SetError("old failure")
	s.BeginLoading("starting")
	if s.LastError() != "" {
		t.Fatal("starting a new action must clear the previous error")
	}
	loading, msg := s.Loading()
	if !loading || msg != "starting" {
		t.Fatalf("expected loading with message, got %v %q", loading, msg)
	}
	s.EndLoading()
	loading, msg = s.Loading()
	if loading || msg != "" {
		t.Fatal("end loading should clear flag and message")
	}
}

func TestNotifierReceivesChanges(t *testing.T) {
	s := New(newLogger())
	var changes []Change
	s.SetNotifier(func(c Change) { changes = append(changes, c) })

	seedBoard(t, s, "a", "b")
	if err := s.SetNarration(0, "x"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	s.SetPlaying(true)

	if len(changes) != 3 {
		t.Fatalf("expected 3 notifications, got %d: %+v", len(changes), changes)
	}
	if changes[0].Kind != ChangeBoard {
		t.Fatalf("expected board change first, got %v", changes[0].Kind)
	}
	if changes[1].Kind != ChangeScene || changes[1].SceneID != 0 {
		t.Fatalf("expected scene change for id 0, got %+v", changes[1])
	}
	if changes[2].Kind != ChangeTransient {
		t.Fatalf("expected transient change, got %+v", changes[2])
	}
}

func TestSnapshotCarriesTransientState(t *testing.T) {
	s := New(newLogger())
	seedBoard(t, s, "a", "b")
	if err := s.BeginRegeneration(1); err != nil {
		t.Fatalf("begin regeneration: %v", err)
	}
	s.SetError("top")

	snap := s.Snapshot()
	if len(snap.Scenes) != 2 {
		t.Fatalf("expected 2 scenes in snapshot, got %d", len(snap.Scenes))
	}
	if snap.RegeneratingID == nil || *snap.RegeneratingID != 1 {
		t.Fatalf("expected regenerating id 1 in snapshot, got %v", snap.RegeneratingID)
	}
	if snap.LastError != "top" {
		t.Fatalf("expected error in snapshot, got %q", snap.LastError)
	}
}
