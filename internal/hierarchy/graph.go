// Package hierarchy keeps the document-wide entity graph and derives the
// cascading Room -> Location -> CabinetRun -> Cabinet selection from it.
//
// Parent links are by entity id, not by page, so a cabinet run drawn on an
// elevation can hang under a location whose annotation sits on a floor plan.
package hierarchy

import (
	"fmt"
	"slices"
	"sync"

	"github.com/dgallion1/planmark/internal/plan"
)

// Graph indexes entities by id. Nodes are entities and edges are parent
// pointers. Safe for concurrent use.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[string]plan.Entity
	children map[string][]string // parent id -> child ids in insertion order; "" holds parentless entities
}

func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]plan.Entity),
		children: make(map[string][]string),
	}
}

// Add inserts or replaces e. A parent that is already in the graph must have
// the rank directly above e; an unknown parent is accepted and resolved later.
func (g *Graph) Add(e plan.Entity) error {
	if e.ID == "" {
		return fmt.Errorf("add entity: empty id")
	}
	if !e.Type.IsEntity() {
		return fmt.Errorf("add entity %s: %w: %q is not an entity type", e.ID, plan.ErrInvalidHierarchy, e.Type)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if e.ParentID != "" {
		if p, ok := g.nodes[e.ParentID]; ok {
			if err := plan.ValidateParent(e.Type, e.ParentID, &p); err != nil {
				return fmt.Errorf("add entity %s: %w", e.ID, err)
			}
		} else if _, ok := e.Type.ParentType(); !ok {
			return fmt.Errorf("add entity %s: %w: %s cannot have a parent", e.ID, plan.ErrInvalidHierarchy, e.Type)
		}
	}

	if old, ok := g.nodes[e.ID]; ok && old.ParentID != e.ParentID {
		g.unlinkLocked(old.ParentID, e.ID)
		g.children[e.ParentID] = append(g.children[e.ParentID], e.ID)
	} else if !ok {
		g.children[e.ParentID] = append(g.children[e.ParentID], e.ID)
	}
	g.nodes[e.ID] = e
	return nil
}

// Remove drops the entity. Its children stay in the graph as orphans.
func (g *Graph) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.nodes[id]
	if !ok {
		return
	}
	g.unlinkLocked(e.ParentID, id)
	delete(g.nodes, id)
}

func (g *Graph) unlinkLocked(parentID, id string) {
	kids := g.children[parentID]
	if i := slices.Index(kids, id); i >= 0 {
		g.children[parentID] = slices.Delete(kids, i, i+1)
	}
	if len(g.children[parentID]) == 0 {
		delete(g.children, parentID)
	}
}

// Get returns the entity with the given id.
func (g *Graph) Get(id string) (plan.Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.nodes[id]
	return e, ok
}

// Len returns the number of entities.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Children returns the entities of type t directly under parentID, in the
// order they were added. An empty parentID lists parentless entities.
func (g *Graph) Children(parentID string, t plan.AnnotationType) []plan.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []plan.Entity
	for _, id := range g.children[parentID] {
		if e := g.nodes[id]; e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Path returns the ancestry of id from the top-most known ancestor down to
// the entity itself. It returns nil when id is unknown.
func (g *Graph) Path(id string) []plan.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var path []plan.Entity
	for range plan.AnnotationTypes {
		e, ok := g.nodes[id]
		if !ok {
			break
		}
		path = append(path, e)
		if e.ParentID == "" {
			break
		}
		id = e.ParentID
	}
	slices.Reverse(path)
	return path
}

// ValidateParent checks that an entity of type t may hang under parentID.
func (g *Graph) ValidateParent(t plan.AnnotationType, parentID string) error {
	if parentID == "" {
		return plan.ValidateParent(t, "", nil)
	}
	p, ok := g.Get(parentID)
	if !ok {
		return plan.ValidateParent(t, parentID, nil)
	}
	return plan.ValidateParent(t, parentID, &p)
}

// FindByLabel returns the entity of type t under parentID whose normalized
// label equals label's.
func (g *Graph) FindByLabel(t plan.AnnotationType, parentID, label string) (plan.Entity, bool) {
	norm := plan.NormalizeLabel(label)
	for _, e := range g.Children(parentID, t) {
		if plan.NormalizeLabel(e.Label) == norm {
			return e, true
		}
	}
	return plan.Entity{}, false
}
