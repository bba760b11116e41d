package docstore

import (
	"errors"
	"testing"

	"lexitrie/internal/document"
	"lexitrie/internal/engerrors"
)

func TestAddAssignsIDWhenAbsent(t *testing.T) {
	s := New(Config{IndexName: "idx"})
	doc := &document.Document{Fields: document.Fields{Title: "Hello"}}

	got := s.Add(doc, 1000)
	if got.ID == "" {
		t.Fatalf("expected assigned id")
	}
	if got.Metadata.Indexed != 1000 || got.Metadata.LastModified != 1000 {
		t.Fatalf("expected metadata timestamps stamped, got %+v", got.Metadata)
	}
}

func TestAddKeepsSuppliedID(t *testing.T) {
	s := New(Config{IndexName: "idx"})
	doc := &document.Document{ID: "custom-1", Fields: document.Fields{Title: "Hello"}}

	got := s.Add(doc, 1000)
	if got.ID != "custom-1" {
		t.Fatalf("expected supplied id kept, got %q", got.ID)
	}
}

func TestGetReturnsCloneNotSharedState(t *testing.T) {
	s := New(Config{IndexName: "idx"})
	doc := &document.Document{ID: "a", Fields: document.Fields{Title: "Hello", Tags: []string{"x"}}}
	s.Add(doc, 1000)

	got := s.Get("a")
	got.Fields.Tags[0] = "mutated"

	again := s.Get("a")
	if again.Fields.Tags[0] != "x" {
		t.Fatalf("expected stored document unaffected by caller mutation, got %+v", again.Fields.Tags)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := New(Config{IndexName: "idx"})
	if got := s.Get("missing"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestUpdateMissingFailsWithDocumentNotFound(t *testing.T) {
	s := New(Config{IndexName: "idx"})
	_, err := s.Update("missing", document.Fields{}, 1000)
	if !errors.Is(err, engerrors.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestUpdatePushesVersionWhenContentChanges(t *testing.T) {
	s := New(Config{IndexName: "idx", VersioningEnabled: true, MaxVersions: 10})
	doc := &document.Document{ID: "a", Fields: document.Fields{Content: "v1", Author: "alice"}}
	s.Add(doc, 1000)

	got, err := s.Update("a", document.Fields{Content: "v2", Author: "alice"}, 2000)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if len(got.Versions) != 1 {
		t.Fatalf("expected one version pushed, got %+v", got.Versions)
	}
	if got.Versions[0].Content != "v1" {
		t.Fatalf("expected prior content preserved, got %q", got.Versions[0].Content)
	}
	if got.Fields.Version != 2 {
		t.Fatalf("expected version incremented to 2, got %d", got.Fields.Version)
	}
}

func TestUpdateWithoutContentChangeDoesNotVersion(t *testing.T) {
	s := New(Config{IndexName: "idx", VersioningEnabled: true, MaxVersions: 10})
	doc := &document.Document{ID: "a", Fields: document.Fields{Content: "same"}}
	s.Add(doc, 1000)

	got, err := s.Update("a", document.Fields{Content: "same"}, 2000)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if len(got.Versions) != 0 {
		t.Fatalf("expected no version pushed, got %+v", got.Versions)
	}
}

func TestUpdateVersioningDisabledNeverPushes(t *testing.T) {
	s := New(Config{IndexName: "idx", VersioningEnabled: false})
	doc := &document.Document{ID: "a", Fields: document.Fields{Content: "v1"}}
	s.Add(doc, 1000)

	got, err := s.Update("a", document.Fields{Content: "v2"}, 2000)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if len(got.Versions) != 0 {
		t.Fatalf("expected no versioning when disabled, got %+v", got.Versions)
	}
}

func TestUpdateRespectsMaxVersionsBound(t *testing.T) {
	s := New(Config{IndexName: "idx", VersioningEnabled: true, MaxVersions: 2})
	doc := &document.Document{ID: "a", Fields: document.Fields{Content: "v1"}}
	s.Add(doc, 1000)

	s.Update("a", document.Fields{Content: "v2"}, 2000)
	s.Update("a", document.Fields{Content: "v3"}, 3000)
	got, _ := s.Update("a", document.Fields{Content: "v4"}, 4000)

	if len(got.Versions) != 2 {
		t.Fatalf("expected versions bounded to 2, got %d", len(got.Versions))
	}
}

func TestRestoreVersionRoutesThroughUpdate(t *testing.T) {
	s := New(Config{IndexName: "idx", VersioningEnabled: true, MaxVersions: 10})
	doc := &document.Document{ID: "a", Fields: document.Fields{Content: "v1"}}
	s.Add(doc, 1000)
	s.Update("a", document.Fields{Content: "v2"}, 2000)

	got, err := s.RestoreVersion("a", 1, 3000)
	if err != nil {
		t.Fatalf("RestoreVersion() error: %v", err)
	}
	if got.Fields.Content != "v1" {
		t.Fatalf("expected content restored to v1, got %q", got.Fields.Content)
	}
	if len(got.Versions) != 2 {
		t.Fatalf("expected restore itself to push a version for the pre-restore state, got %+v", got.Versions)
	}
}

func TestRestoreVersionUnknownVersionFails(t *testing.T) {
	s := New(Config{IndexName: "idx", VersioningEnabled: true})
	doc := &document.Document{ID: "a", Fields: document.Fields{Content: "v1"}}
	s.Add(doc, 1000)

	_, err := s.RestoreVersion("a", 99, 2000)
	if !errors.Is(err, engerrors.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound for unknown version, got %v", err)
	}
}

func TestRemoveDropsDocument(t *testing.T) {
	s := New(Config{IndexName: "idx"})
	doc := &document.Document{ID: "a"}
	s.Add(doc, 1000)

	if !s.Remove("a") {
		t.Fatalf("expected Remove to report true")
	}
	if s.Get("a") != nil {
		t.Fatalf("expected document gone after remove")
	}
	if s.Remove("a") {
		t.Fatalf("expected second remove to report false")
	}
}

func TestCountAndClear(t *testing.T) {
	s := New(Config{IndexName: "idx"})
	s.Add(&document.Document{ID: "a"}, 1000)
	s.Add(&document.Document{ID: "b"}, 1000)

	if s.Count() != 2 {
		t.Fatalf("expected count 2, got %d", s.Count())
	}
	s.Clear()
	if s.Count() != 0 {
		t.Fatalf("expected count 0 after clear, got %d", s.Count())
	}
}
