// Package dupguard prevents creating an entity when one with the same
// normalized label already exists under the same parent.
package dupguard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/hierarchy"
	"github.com/dgallion1/planmark/internal/plan"
)

// Finder looks an entity up by label in the persistence collaborator. It
// returns nil, nil when there is no match.
type Finder interface {
	FindEntityByLabel(ctx context.Context, t plan.AnnotationType, parentRef, label string) (*plan.Entity, error)
}

// AnnotationIndex resolves the annotation bound to an entity.
type AnnotationIndex interface {
	ByEntity(entityID string) (plan.Annotation, bool)
}

// Result is the outcome of a duplicate check.
type Result struct {
	IsDuplicate bool             `json:"isDuplicate"`
	Entity      *plan.Entity     `json:"entity,omitempty"`
	Existing    *plan.Annotation `json:"existing,omitempty"`
}

// Guard checks the in-session graph first and then the store.
type Guard struct {
	graph  *hierarchy.Graph
	finder Finder
	index  AnnotationIndex
	rep    *errreport.Reporter
	log    *slog.Logger
}

func New(graph *hierarchy.Graph, finder Finder, index AnnotationIndex, rep *errreport.Reporter, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{graph: graph, finder: finder, index: index, rep: rep, log: log}
}

// Check reports whether an entity of type t labeled label already exists
// under parentRef. Notes and empty labels are never duplicates.
func (g *Guard) Check(ctx context.Context, t plan.AnnotationType, parentRef, label string) (Result, error) {
	if !t.IsEntity() || plan.NormalizeLabel(label) == "" {
		return Result{}, nil
	}

	if e, ok := g.graph.FindByLabel(t, parentRef, label); ok {
		return g.found(e), nil
	}

	found, err := errreport.Call(ctx, g.rep, "findEntityByLabel", func(ctx context.Context) (*plan.Entity, error) {
		return g.finder.FindEntityByLabel(ctx, t, parentRef, label)
	})
	if err != nil {
		return Result{}, fmt.Errorf("duplicate check: %w", err)
	}
	if found == nil || found.Type != t || found.ParentID != parentRef ||
		plan.NormalizeLabel(found.Label) != plan.NormalizeLabel(label) {
		return Result{}, nil
	}
	if err := g.graph.Add(*found); err != nil {
		g.log.Warn("duplicate entity not indexed", "entity_id", found.ID, "error", err)
	}
	return g.found(*found), nil
}

func (g *Guard) found(e plan.Entity) Result {
	res := Result{IsDuplicate: true, Entity: &e}
	if g.index != nil {
		if a, ok := g.index.ByEntity(e.ID); ok {
			res.Existing = &a
		}
	}
	g.log.Info("duplicate detected", "type", e.Type, "entity_id", e.ID, "parent_id", e.ParentID)
	return res
}

// Err returns the DuplicateDetected warning for a duplicate result, or nil.
func (r Result) Err() error {
	if !r.IsDuplicate || r.Entity == nil {
		return nil
	}
	msg := fmt.Sprintf("%s %q already exists", r.Entity.Type, r.Entity.Label)
	if r.Entity.ParentID != "" {
		msg += " under " + r.Entity.ParentID
	}
	return errreport.Validation(errreport.CodeDuplicateDetected, msg, plan.ErrDuplicate)
}
