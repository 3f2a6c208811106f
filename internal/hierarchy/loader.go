package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/plan"
)

// Source is the slice of the persistence collaborator the loader needs.
type Source interface {
	ListEntities(ctx context.Context, t plan.AnnotationType, parentRef string) ([]plan.Entity, error)
	GetEntity(ctx context.Context, id string) (plan.Entity, error)
}

// Loader fills a Graph from the persistence collaborator. Network failures
// are retried through the reporter.
type Loader struct {
	src   Source
	graph *Graph
	rep   *errreport.Reporter
}

func NewLoader(src Source, graph *Graph, rep *errreport.Reporter) *Loader {
	return &Loader{src: src, graph: graph, rep: rep}
}

// Graph returns the graph the loader fills.
func (l *Loader) Graph() *Graph { return l.graph }

// LoadChildren fetches the candidates for level under sel into the graph and
// returns the filtered list. A level whose parent is not selected yields an
// empty list without a store call.
func (l *Loader) LoadChildren(ctx context.Context, sel plan.Selection, level plan.AnnotationType) ([]plan.Entity, error) {
	parentRef := ""
	if pt, ok := level.ParentType(); ok {
		parentRef = sel.At(pt)
		if parentRef == "" {
			return nil, nil
		}
	} else if level != plan.TypeRoom {
		return nil, fmt.Errorf("load children: %w: %q", plan.ErrInvalidHierarchy, level)
	}

	ents, err := errreport.Call(ctx, l.rep, "listEntities", func(ctx context.Context) ([]plan.Entity, error) {
		return l.src.ListEntities(ctx, level, parentRef)
	})
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		if err := l.graph.Add(e); err != nil {
			return nil, fmt.Errorf("load children: %w", err)
		}
	}
	return FilteredChildren(l.graph, sel, level), nil
}

// Resolve makes sure id and all of its ancestors are in the graph. A missing
// entity yields plan.ErrNotFound without being reported; callers decide
// whether that is a failure.
func (l *Loader) Resolve(ctx context.Context, id string) error {
	var chain []plan.Entity
	for range plan.AnnotationTypes {
		if id == "" {
			break
		}
		if e, ok := l.graph.Get(id); ok {
			id = e.ParentID
			continue
		}
		want := id
		e, err := errreport.Call(ctx, l.rep, "getEntity", func(ctx context.Context) (*plan.Entity, error) {
			e, err := l.src.GetEntity(ctx, want)
			if errors.Is(err, plan.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return &e, nil
		})
		if err != nil {
			return fmt.Errorf("resolve %s: %w", want, err)
		}
		if e == nil {
			return fmt.Errorf("resolve %s: %w", want, plan.ErrNotFound)
		}
		chain = append(chain, *e)
		id = e.ParentID
	}
	// Insert ancestors first so rank checks see the parent.
	for i := len(chain) - 1; i >= 0; i-- {
		if err := l.graph.Add(chain[i]); err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
	}
	return nil
}
