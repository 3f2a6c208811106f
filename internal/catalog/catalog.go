// Package catalog is the boundary to the persistence collaborator that owns
// documents, pages, annotations and domain entities.
package catalog

import (
	"context"

	"github.com/dgallion1/planmark/internal/plan"
)

// CreateAnnotationRequest is the body of an annotation create. When
// LinkedEntityID is empty and Type is an entity type, the store creates the
// backing entity from Label, ParentEntityRef and EntityAttrs.
type CreateAnnotationRequest struct {
	PageID          string              `json:"pageId"`
	Type            plan.AnnotationType `json:"type"`
	Box             plan.Box            `json:"box"`
	Label           string              `json:"label"`
	Color           string              `json:"color,omitempty"`
	ParentEntityRef string              `json:"parentEntityRef,omitempty"`
	LinkedEntityID  string              `json:"linkedEntityId,omitempty"`
	EntityAttrs     map[string]any      `json:"entityAttrs,omitempty"`
	Metadata        map[string]any      `json:"metadata,omitempty"`
}

// Annotations is what the editing core consumes.
type Annotations interface {
	ListAnnotations(ctx context.Context, pageID string) ([]plan.Annotation, error)
	CreateAnnotation(ctx context.Context, req CreateAnnotationRequest) (plan.Annotation, error)
	UpdateAnnotationGeometry(ctx context.Context, id string, box plan.Box) error
	UpdateAnnotationMetadata(ctx context.Context, id string, attrs map[string]any) error
	DeleteAnnotation(ctx context.Context, id string) error
	ListEntities(ctx context.Context, t plan.AnnotationType, parentRef string) ([]plan.Entity, error)
	// FindEntityByLabel returns nil, nil when nothing matches.
	FindEntityByLabel(ctx context.Context, t plan.AnnotationType, parentRef, label string) (*plan.Entity, error)
}

// Documents covers pages and direct entity access, used by ingestion and the
// HTTP shell.
type Documents interface {
	GetPage(ctx context.Context, id string) (plan.Page, error)
	ListPages(ctx context.Context, documentID string) ([]plan.Page, error)
	CreatePage(ctx context.Context, p plan.Page) (plan.Page, error)
	SetPageType(ctx context.Context, id string, pt plan.PageType) error
	GetEntity(ctx context.Context, id string) (plan.Entity, error)
	CreateEntity(ctx context.Context, e plan.Entity) (plan.Entity, error)
}

// Store is a complete persistence backend.
type Store interface {
	Annotations
	Documents
	Close() error
}
