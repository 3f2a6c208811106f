// Package plan holds the domain model shared by the annotation engine:
// pages, annotations, the entities they bind to and the active selection.
package plan

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

var (
	// ErrNotFound indicates a page, annotation or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPolicyViolation indicates an annotation type is not allowed on a page type.
	ErrPolicyViolation = errors.New("annotation type not allowed on page")

	// ErrDuplicate indicates an equivalent entity already exists under the same parent.
	ErrDuplicate = errors.New("duplicate entity")

	// ErrInvalidHierarchy indicates a parent reference with the wrong rank.
	ErrInvalidHierarchy = errors.New("invalid hierarchy")

	// ErrInvalidState indicates an operation that the current gesture does not accept.
	ErrInvalidState = errors.New("invalid editor state")

	// ErrBusy indicates a write for the same target is already in flight.
	ErrBusy = errors.New("write already in progress")
)

// PageType is the operator-assigned classification of a page.
type PageType string

const (
	PageCover      PageType = "cover"
	PageFloorPlan  PageType = "floor_plan"
	PageElevation  PageType = "elevation"
	PageCountertop PageType = "countertop"
	PageReference  PageType = "reference"
	PageOther      PageType = "other"
)

// PageTypes lists every page type in display order.
var PageTypes = []PageType{PageCover, PageFloorPlan, PageElevation, PageCountertop, PageReference, PageOther}

// ParsePageType validates a page type string.
func ParsePageType(s string) (PageType, error) {
	for _, pt := range PageTypes {
		if string(pt) == s {
			return pt, nil
		}
	}
	return "", fmt.Errorf("unknown page type %q", s)
}

// AnnotationType is the kind of region drawn on a page.
type AnnotationType string

const (
	TypeRoom       AnnotationType = "room"
	TypeLocation   AnnotationType = "location"
	TypeCabinetRun AnnotationType = "cabinet_run"
	TypeCabinet    AnnotationType = "cabinet"
	TypeNote       AnnotationType = "note"
)

// hierarchy is indexed by rank.
var hierarchy = []AnnotationType{TypeRoom, TypeLocation, TypeCabinetRun, TypeCabinet}

// AnnotationTypes lists every annotation type in rank order, notes last.
var AnnotationTypes = []AnnotationType{TypeRoom, TypeLocation, TypeCabinetRun, TypeCabinet, TypeNote}

// ParseAnnotationType validates an annotation type string.
func ParseAnnotationType(s string) (AnnotationType, error) {
	for _, t := range AnnotationTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown annotation type %q", s)
}

// Rank returns the fixed hierarchy depth of t. Notes have no rank.
func (t AnnotationType) Rank() (int, bool) {
	for i, h := range hierarchy {
		if h == t {
			return i, true
		}
	}
	return -1, false
}

// IsEntity reports whether annotations of type t are backed by a domain entity.
func (t AnnotationType) IsEntity() bool {
	_, ok := t.Rank()
	return ok
}

// ParentType returns the type one rank above t.
func (t AnnotationType) ParentType() (AnnotationType, bool) {
	r, ok := t.Rank()
	if !ok || r == 0 {
		return "", false
	}
	return hierarchy[r-1], true
}

// ChildType returns the type one rank below t.
func (t AnnotationType) ChildType() (AnnotationType, bool) {
	r, ok := t.Rank()
	if !ok || r == len(hierarchy)-1 {
		return "", false
	}
	return hierarchy[r+1], true
}

// TypeAtRank returns the entity type at depth r.
func TypeAtRank(r int) (AnnotationType, bool) {
	if r < 0 || r >= len(hierarchy) {
		return "", false
	}
	return hierarchy[r], true
}

// Page is a single page of an ingested document.
type Page struct {
	ID           string   `json:"id"`
	DocumentID   string   `json:"documentId"`
	Ordinal      int      `json:"ordinal"`
	NativeWidth  float64  `json:"nativeWidth"`
	NativeHeight float64  `json:"nativeHeight"`
	Scale        float64  `json:"scale"` // native units -> real-world length units
	PageType     PageType `json:"pageType"`
}

// Bounds returns the page rectangle in native units.
func (p Page) Bounds() Box {
	return Box{W: p.NativeWidth, H: p.NativeHeight}
}

// RealSize converts a native box to real-world width and height.
func (p Page) RealSize(b Box) (float64, float64) {
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	return b.W * scale, b.H * scale
}

// Annotation is a labeled rectangle on a page, bound to a domain entity.
type Annotation struct {
	ID              string         `json:"id"`
	PageID          string         `json:"pageId"`
	Type            AnnotationType `json:"type"`
	Box             Box            `json:"box"`
	Label           string         `json:"label"`
	Color           string         `json:"color,omitempty"`
	LinkedEntityID  string         `json:"linkedEntityId,omitempty"`
	ParentEntityRef string         `json:"parentEntityRef,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Entity is a domain record (room, location, cabinet run, cabinet).
type Entity struct {
	ID       string         `json:"id"`
	Type     AnnotationType `json:"type"`
	ParentID string         `json:"parentId,omitempty"`
	Label    string         `json:"label"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// ValidateParent checks that an entity of type t may hang under parent.
// A nil parent is accepted for every type except when parentRef is set.
func ValidateParent(t AnnotationType, parentRef string, parent *Entity) error {
	if t == TypeNote {
		return nil
	}
	if !t.IsEntity() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidHierarchy, t)
	}
	if parentRef == "" {
		return nil
	}
	want, ok := t.ParentType()
	if !ok {
		return fmt.Errorf("%w: %s cannot have a parent", ErrInvalidHierarchy, t)
	}
	if parent == nil {
		return fmt.Errorf("%w: parent %s not found", ErrInvalidHierarchy, parentRef)
	}
	if parent.Type != want {
		return fmt.Errorf("%w: %s parent must be a %s, got %s", ErrInvalidHierarchy, t, want, parent.Type)
	}
	return nil
}

// NormalizeLabel trims, collapses inner whitespace and case-folds a label.
// A Caser is not safe for concurrent use, so one is built per call.
func NormalizeLabel(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// MergeMetadata returns a copy of base with attrs applied. A nil value in
// attrs removes the key.
func MergeMetadata(base, attrs map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any, len(attrs))
	}
	for k, v := range attrs {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
