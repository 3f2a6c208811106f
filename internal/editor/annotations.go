package editor

import (
	"maps"
	"slices"
	"sync"

	"github.com/dgallion1/planmark/internal/plan"
)

// AnnotationStore is the client-side copy of each loaded page's annotations
// in creation order. It only changes after the catalog has accepted a write.
type AnnotationStore struct {
	mu     sync.RWMutex
	pages  map[string][]plan.Annotation
	byID   map[string]string // annotation id -> page id
	entity map[string]string // linked entity id -> annotation id
}

func NewAnnotationStore() *AnnotationStore {
	return &AnnotationStore{
		pages:  make(map[string][]plan.Annotation),
		byID:   make(map[string]string),
		entity: make(map[string]string),
	}
}

// Replace sets the annotations of a page, as returned by the catalog.
func (s *AnnotationStore) Replace(pageID string, anns []plan.Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.pages[pageID] {
		s.unindexLocked(a)
	}
	list := make([]plan.Annotation, 0, len(anns))
	for _, a := range anns {
		a.Metadata = maps.Clone(a.Metadata)
		list = append(list, a)
		s.indexLocked(a)
	}
	s.pages[pageID] = list
}

// Add appends a committed annotation to its page.
func (s *AnnotationStore) Add(a plan.Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pid, ok := s.byID[a.ID]; ok {
		s.removeLocked(pid, a.ID)
	}
	a.Metadata = maps.Clone(a.Metadata)
	s.pages[a.PageID] = append(s.pages[a.PageID], a)
	s.indexLocked(a)
}

// SetBox records an accepted geometry change.
func (s *AnnotationStore) SetBox(id string, box plan.Box) bool {
	return s.update(id, func(a *plan.Annotation) { a.Box = box })
}

// SetMetadata records accepted metadata, merged the way the catalog does.
func (s *AnnotationStore) SetMetadata(id string, attrs map[string]any) bool {
	return s.update(id, func(a *plan.Annotation) { a.Metadata = plan.MergeMetadata(a.Metadata, attrs) })
}

func (s *AnnotationStore) update(id string, fn func(*plan.Annotation)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.byID[id]
	if !ok {
		return false
	}
	list := s.pages[pid]
	i := slices.IndexFunc(list, func(a plan.Annotation) bool { return a.ID == id })
	fn(&list[i])
	return true
}

// Remove drops an annotation.
func (s *AnnotationStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.byID[id]
	if !ok {
		return false
	}
	s.removeLocked(pid, id)
	return true
}

func (s *AnnotationStore) removeLocked(pageID, id string) {
	list := s.pages[pageID]
	i := slices.IndexFunc(list, func(a plan.Annotation) bool { return a.ID == id })
	if i < 0 {
		return
	}
	s.unindexLocked(list[i])
	s.pages[pageID] = slices.Delete(list, i, i+1)
}

func (s *AnnotationStore) indexLocked(a plan.Annotation) {
	s.byID[a.ID] = a.PageID
	if a.LinkedEntityID != "" {
		s.entity[a.LinkedEntityID] = a.ID
	}
}

func (s *AnnotationStore) unindexLocked(a plan.Annotation) {
	delete(s.byID, a.ID)
	if a.LinkedEntityID != "" && s.entity[a.LinkedEntityID] == a.ID {
		delete(s.entity, a.LinkedEntityID)
	}
}

// Get returns an annotation by id.
func (s *AnnotationStore) Get(id string) (plan.Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *AnnotationStore) getLocked(id string) (plan.Annotation, bool) {
	pid, ok := s.byID[id]
	if !ok {
		return plan.Annotation{}, false
	}
	for _, a := range s.pages[pid] {
		if a.ID == id {
			a.Metadata = maps.Clone(a.Metadata)
			return a, true
		}
	}
	return plan.Annotation{}, false
}

// ByEntity returns the annotation bound to entityID, on any loaded page.
func (s *AnnotationStore) ByEntity(entityID string) (plan.Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.entity[entityID]
	if !ok {
		return plan.Annotation{}, false
	}
	return s.getLocked(id)
}

// List returns a copy of a page's annotations, bottom to top.
func (s *AnnotationStore) List(pageID string) []plan.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]plan.Annotation, len(s.pages[pageID]))
	for i, a := range s.pages[pageID] {
		a.Metadata = maps.Clone(a.Metadata)
		out[i] = a
	}
	return out
}

// Len returns the number of annotations across all pages.
func (s *AnnotationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
