// Package docstore owns id -> Document storage, id assignment, and
// content-versioning on update (spec §4.6).
package docstore

import (
	"fmt"
	"sync"

	"lexitrie/internal/document"
	"lexitrie/internal/engerrors"
)

// Config controls id assignment and versioning behavior.
type Config struct {
	IndexName         string
	VersioningEnabled bool
	MaxVersions       int
}

// Store owns every live Document in one index.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	docs    map[string]*document.Document
	ordinal int64
}

// New returns an empty Store.
func New(cfg Config) *Store {
	if cfg.MaxVersions <= 0 {
		cfg.MaxVersions = 10
	}
	return &Store{cfg: cfg, docs: make(map[string]*document.Document)}
}

// Add stores doc, assigning an id if doc.ID is empty, and stamps metadata
// timestamps. Returns the stored (cloned) document.
func (s *Store) Add(doc *document.Document, nowMs int64) *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		s.ordinal++
		doc.ID = document.NewID(s.cfg.IndexName, s.ordinal, nowMs)
	}
	doc.Metadata.Indexed = nowMs
	doc.Metadata.LastModified = nowMs
	if doc.Fields.Version == 0 {
		doc.Fields.Version = document.MaxVersion(doc.Versions)
	}

	stored := doc.Clone()
	s.docs[stored.ID] = stored
	return stored.Clone()
}

// Get returns a clone of the stored document, or nil if absent.
func (s *Store) Get(id string) *document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil
	}
	return doc.Clone()
}

// Update replaces the stored document's fields with newFields, pushing a
// VersionEntry for the prior content when versioning is enabled and the
// content actually changed (spec §4.6). Fails with ErrDocumentNotFound if
// id is not known.
func (s *Store) Update(id string, newFields document.Fields, nowMs int64) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("docstore: update %q: %w", id, engerrors.ErrDocumentNotFound)
	}

	if s.cfg.VersioningEnabled && newFields.Content != existing.Fields.Content {
		entry := document.VersionEntry{
			Version:  existing.Fields.Version,
			Content:  existing.Fields.Content,
			Modified: existing.Metadata.LastModified,
			Author:   existing.Fields.Author,
		}
		existing.Versions = document.PushVersion(existing.Versions, entry, s.cfg.MaxVersions)
		newFields.Version = existing.Fields.Version + 1
	} else if newFields.Version == 0 {
		newFields.Version = existing.Fields.Version
	}

	existing.Fields = newFields
	existing.Metadata.LastModified = nowMs

	return existing.Clone(), nil
}

// RestoreVersion applies version v's content to document id as a new
// update, routing through the normal Update path so the pre-restore state
// is itself versioned.
func (s *Store) RestoreVersion(id string, v int, nowMs int64) (*document.Document, error) {
	s.mu.RLock()
	existing, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("docstore: restore %q: %w", id, engerrors.ErrDocumentNotFound)
	}

	entry, found := document.FindVersion(existing.Versions, v)
	if !found {
		return nil, fmt.Errorf("docstore: restore %q version %d: %w", id, v, engerrors.ErrDocumentNotFound)
	}

	restoredFields := existing.Fields
	restoredFields.Content = entry.Content
	return s.Update(id, restoredFields, nowMs)
}

// Remove drops id from the store. Returns false if id was not known.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return false
	}
	delete(s.docs, id)
	return true
}

// All returns a clone of every stored document.
func (s *Store) All() []*document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*document.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc.Clone())
	}
	return out
}

// Count reports the number of live documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Clear drops every stored document.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]*document.Document)
	s.ordinal = 0
}

// Restore inserts doc verbatim, without id assignment or metadata
// stamping, used to reconstruct a persisted snapshot exactly.
func (s *Store) Restore(doc *document.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc.Clone()
}
