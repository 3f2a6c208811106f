// Package memstore is an in-process catalog used for tests, demos and the
// "memory" backend.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/planmark/internal/catalog"
	"github.com/dgallion1/planmark/internal/plan"
)

// Store keeps everything in maps guarded by one mutex. Entities are unique
// per (type, parent, normalized label). Deleting an annotation leaves its
// entity and any child entities in place.
type Store struct {
	mu          sync.Mutex
	pages       map[string]plan.Page
	annotations map[string]plan.Annotation
	pageOrder   map[string][]string // page id -> annotation ids in creation order
	entities    map[string]plan.Entity
	entityOrder []string
	now         func() time.Time
}

var _ catalog.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		pages:       make(map[string]plan.Page),
		annotations: make(map[string]plan.Annotation),
		pageOrder:   make(map[string][]string),
		entities:    make(map[string]plan.Entity),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) GetPage(_ context.Context, id string) (plan.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[id]
	if !ok {
		return plan.Page{}, fmt.Errorf("page %s: %w", id, plan.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListPages(_ context.Context, documentID string) ([]plan.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []plan.Page
	for _, p := range s.pages {
		if p.DocumentID == documentID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b plan.Page) int { return a.Ordinal - b.Ordinal })
	return out, nil
}

func (s *Store) CreatePage(_ context.Context, p plan.Page) (plan.Page, error) {
	if p.DocumentID == "" || p.Ordinal < 1 {
		return plan.Page{}, fmt.Errorf("create page: document id and 1-based ordinal required")
	}
	if p.PageType == "" {
		p.PageType = plan.PageOther
	}
	if _, err := plan.ParsePageType(string(p.PageType)); err != nil {
		return plan.Page{}, fmt.Errorf("create page: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[p.ID]; ok {
		return plan.Page{}, fmt.Errorf("create page %s: %w", p.ID, plan.ErrDuplicate)
	}
	s.pages[p.ID] = p
	return p, nil
}

func (s *Store) SetPageType(_ context.Context, id string, pt plan.PageType) error {
	if _, err := plan.ParsePageType(string(pt)); err != nil {
		return fmt.Errorf("set page type: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[id]
	if !ok {
		return fmt.Errorf("page %s: %w", id, plan.ErrNotFound)
	}
	p.PageType = pt
	s.pages[id] = p
	return nil
}

func (s *Store) GetEntity(_ context.Context, id string) (plan.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return plan.Entity{}, fmt.Errorf("entity %s: %w", id, plan.ErrNotFound)
	}
	return cloneEntity(e), nil
}

func (s *Store) CreateEntity(_ context.Context, e plan.Entity) (plan.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createEntityLocked(e)
}

func (s *Store) createEntityLocked(e plan.Entity) (plan.Entity, error) {
	var parent *plan.Entity
	if e.ParentID != "" {
		if p, ok := s.entities[e.ParentID]; ok {
			parent = &p
		}
	}
	if err := plan.ValidateParent(e.Type, e.ParentID, parent); err != nil {
		return plan.Entity{}, fmt.Errorf("create entity: %w", err)
	}
	if !e.Type.IsEntity() {
		return plan.Entity{}, fmt.Errorf("create entity: %w: %s has no entity", plan.ErrInvalidHierarchy, e.Type)
	}
	if plan.NormalizeLabel(e.Label) == "" {
		return plan.Entity{}, fmt.Errorf("create entity: label required")
	}
	if dup := s.findLocked(e.Type, e.ParentID, e.Label); dup != nil {
		return plan.Entity{}, fmt.Errorf("create entity %q: %w (%s)", e.Label, plan.ErrDuplicate, dup.ID)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Attrs = maps.Clone(e.Attrs)
	s.entities[e.ID] = e
	s.entityOrder = append(s.entityOrder, e.ID)
	return cloneEntity(e), nil
}

func (s *Store) findLocked(t plan.AnnotationType, parentRef, label string) *plan.Entity {
	norm := plan.NormalizeLabel(label)
	for _, id := range s.entityOrder {
		e := s.entities[id]
		if e.Type == t && e.ParentID == parentRef && plan.NormalizeLabel(e.Label) == norm {
			return &e
		}
	}
	return nil
}

func (s *Store) ListEntities(_ context.Context, t plan.AnnotationType, parentRef string) ([]plan.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []plan.Entity
	for _, id := range s.entityOrder {
		if e := s.entities[id]; e.Type == t && e.ParentID == parentRef {
			out = append(out, cloneEntity(e))
		}
	}
	return out, nil
}

func (s *Store) FindEntityByLabel(_ context.Context, t plan.AnnotationType, parentRef, label string) (*plan.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.findLocked(t, parentRef, label)
	if e == nil {
		return nil, nil
	}
	c := cloneEntity(*e)
	return &c, nil
}

func (s *Store) ListAnnotations(_ context.Context, pageID string) ([]plan.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[pageID]; !ok {
		return nil, fmt.Errorf("page %s: %w", pageID, plan.ErrNotFound)
	}
	ids := s.pageOrder[pageID]
	out := make([]plan.Annotation, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneAnnotation(s.annotations[id]))
	}
	return out, nil
}

// CreateAnnotation stores the annotation and, for entity types without a
// LinkedEntityID, creates the backing entity in the same critical section.
func (s *Store) CreateAnnotation(_ context.Context, req catalog.CreateAnnotationRequest) (plan.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[req.PageID]; !ok {
		return plan.Annotation{}, fmt.Errorf("create annotation: page %s: %w", req.PageID, plan.ErrNotFound)
	}
	if _, err := plan.ParseAnnotationType(string(req.Type)); err != nil {
		return plan.Annotation{}, fmt.Errorf("create annotation: %w", err)
	}

	linked := req.LinkedEntityID
	switch {
	case !req.Type.IsEntity():
		if req.ParentEntityRef != "" {
			if _, ok := s.entities[req.ParentEntityRef]; !ok {
				return plan.Annotation{}, fmt.Errorf("create annotation: note target %s: %w", req.ParentEntityRef, plan.ErrNotFound)
			}
		}
	case linked != "":
		e, ok := s.entities[linked]
		if !ok {
			return plan.Annotation{}, fmt.Errorf("create annotation: entity %s: %w", linked, plan.ErrNotFound)
		}
		if e.Type != req.Type {
			return plan.Annotation{}, fmt.Errorf("create annotation: %w: entity %s is a %s", plan.ErrInvalidHierarchy, linked, e.Type)
		}
		if req.ParentEntityRef != "" && e.ParentID != req.ParentEntityRef {
			return plan.Annotation{}, fmt.Errorf("create annotation: %w: entity %s is not under %s", plan.ErrInvalidHierarchy, linked, req.ParentEntityRef)
		}
	default:
		e, err := s.createEntityLocked(plan.Entity{
			Type:     req.Type,
			ParentID: req.ParentEntityRef,
			Label:    req.Label,
			Attrs:    req.EntityAttrs,
		})
		if err != nil {
			return plan.Annotation{}, fmt.Errorf("create annotation: %w", err)
		}
		linked = e.ID
	}

	now := s.now()
	a := plan.Annotation{
		ID:              uuid.NewString(),
		PageID:          req.PageID,
		Type:            req.Type,
		Box:             req.Box,
		Label:           req.Label,
		Color:           req.Color,
		LinkedEntityID:  linked,
		ParentEntityRef: req.ParentEntityRef,
		Metadata:        maps.Clone(req.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.annotations[a.ID] = a
	s.pageOrder[a.PageID] = append(s.pageOrder[a.PageID], a.ID)
	return cloneAnnotation(a), nil
}

func (s *Store) UpdateAnnotationGeometry(_ context.Context, id string, box plan.Box) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.annotations[id]
	if !ok {
		return fmt.Errorf("annotation %s: %w", id, plan.ErrNotFound)
	}
	a.Box = box
	a.UpdatedAt = s.now()
	s.annotations[id] = a
	return nil
}

// UpdateAnnotationMetadata merges attrs into the annotation's metadata. A nil
// value removes the key.
func (s *Store) UpdateAnnotationMetadata(_ context.Context, id string, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.annotations[id]
	if !ok {
		return fmt.Errorf("annotation %s: %w", id, plan.ErrNotFound)
	}
	a.Metadata = plan.MergeMetadata(a.Metadata, attrs)
	a.UpdatedAt = s.now()
	s.annotations[id] = a
	return nil
}

func (s *Store) DeleteAnnotation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.annotations[id]
	if !ok {
		return fmt.Errorf("annotation %s: %w", id, plan.ErrNotFound)
	}
	delete(s.annotations, id)
	ids := s.pageOrder[a.PageID]
	if i := slices.Index(ids, id); i >= 0 {
		s.pageOrder[a.PageID] = slices.Delete(ids, i, i+1)
	}
	return nil
}

func cloneEntity(e plan.Entity) plan.Entity {
	e.Attrs = maps.Clone(e.Attrs)
	return e
}

func cloneAnnotation(a plan.Annotation) plan.Annotation {
	a.Metadata = maps.Clone(a.Metadata)
	return a
}
