package hierarchy

import "github.com/dgallion1/planmark/internal/plan"

// Event selects EntityID at Level. An empty EntityID resets the level.
type Event struct {
	Level    plan.AnnotationType `json:"level"`
	EntityID string              `json:"entityId,omitempty"`
}

// Reduce applies ev to sel. Selecting an entity clears every level below it
// and fills the levels above from its ancestry; resetting a level clears it
// and everything below. Events for unknown or mistyped entities, or for
// entities whose ancestry does not reach a room, return sel unchanged.
func Reduce(sel plan.Selection, ev Event, g *Graph) plan.Selection {
	rank, ok := ev.Level.Rank()
	if !ok {
		return sel
	}
	if ev.EntityID == "" {
		return sel.ClearFrom(ev.Level)
	}
	path := g.Path(ev.EntityID)
	if len(path) != rank+1 || path[rank].Type != ev.Level || path[0].Type != plan.TypeRoom {
		return sel
	}
	var out plan.Selection
	for _, e := range path {
		out = out.With(e.Type, e.ID)
	}
	return out
}

// FilteredChildren lists the candidates for level under the current
// selection. Rooms are always listed; any other level lists the children of
// the selected entity one level up, or nothing when that level is empty.
func FilteredChildren(g *Graph, sel plan.Selection, level plan.AnnotationType) []plan.Entity {
	if level == plan.TypeRoom {
		return g.Children("", plan.TypeRoom)
	}
	pt, ok := level.ParentType()
	if !ok {
		return nil
	}
	pid := sel.At(pt)
	if pid == "" {
		return nil
	}
	return g.Children(pid, level)
}

// Valid reports whether sel satisfies the parent chain against g: every set
// level has its parent level set to the entity's actual parent.
func Valid(sel plan.Selection, g *Graph) bool {
	for r := 0; ; r++ {
		t, ok := plan.TypeAtRank(r)
		if !ok {
			return true
		}
		id := sel.At(t)
		if id == "" {
			// Nothing below an empty level may be set.
			return sel.ClearFrom(t) == sel
		}
		e, ok := g.Get(id)
		if !ok || e.Type != t {
			return false
		}
		if pt, hasParent := t.ParentType(); hasParent && e.ParentID != sel.At(pt) {
			return false
		}
	}
}
