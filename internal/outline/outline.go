// Package outline holds an imported entity hierarchy, such as a room
// schedule, before it is written to the catalog.
package outline

import (
	"fmt"
	"strings"

	"github.com/dgallion1/planmark/internal/plan"
)

// MaxDepth is the deepest level that maps to an entity type.
const MaxDepth = 4

// Outline is the root of an imported hierarchy.
type Outline struct {
	Title    string  // from metadata or filename
	Children []*Node // rooms
}

// Node is one entity in the outline. Depth 1 is a room, 4 a cabinet.
type Node struct {
	Label    string
	Notes    string         // free text found under the heading
	Attrs    map[string]any // extra columns, CSV only
	Line     int            // source line or paragraph, 0 if unknown
	Children []*Node
}

// TypeAtDepth returns the entity type for a 1-based depth.
func TypeAtDepth(depth int) (plan.AnnotationType, bool) {
	return plan.TypeAtRank(depth - 1)
}

// Walk visits every node depth-first, parents before children. parent is
// nil for rooms. Returning an error stops the walk.
func (o *Outline) Walk(fn func(n, parent *Node, depth int) error) error {
	var walk func(nodes []*Node, parent *Node, depth int) error
	walk = func(nodes []*Node, parent *Node, depth int) error {
		for _, n := range nodes {
			if err := fn(n, parent, depth); err != nil {
				return err
			}
			if err := walk(n.Children, n, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(o.Children, nil, 1)
}

// Count returns the number of nodes.
func (o *Outline) Count() int {
	n := 0
	_ = o.Walk(func(*Node, *Node, int) error {
		n++
		return nil
	})
	return n
}

// Validate checks that no node is deeper than MaxDepth or unlabeled.
func (o *Outline) Validate() error {
	return o.Walk(func(n, _ *Node, depth int) error {
		if depth > MaxDepth {
			return fmt.Errorf("%q at depth %d: outline is at most %d levels deep", n.Label, depth, MaxDepth)
		}
		if plan.NormalizeLabel(n.Label) == "" {
			return fmt.Errorf("unlabeled node at depth %d (line %d)", depth, n.Line)
		}
		return nil
	})
}

// Ensure returns the child of parent labeled label, creating it when no
// child matches after normalization. A nil parent means the rooms of o.
func (o *Outline) Ensure(parent *Node, label string, line int) *Node {
	list := &o.Children
	if parent != nil {
		list = &parent.Children
	}
	norm := plan.NormalizeLabel(label)
	for _, c := range *list {
		if plan.NormalizeLabel(c.Label) == norm {
			return c
		}
	}
	n := &Node{Label: strings.TrimSpace(label), Line: line}
	*list = append(*list, n)
	return n
}

// Builder assembles an outline from a stream of headings and text using a
// heading stack. Headings deeper than MaxDepth are kept as notes.
type Builder struct {
	title string
	root  Node
	stack []frame
	text  strings.Builder
}

type frame struct {
	node  *Node
	level int
}

func NewBuilder(title string) *Builder {
	b := &Builder{title: title}
	b.stack = []frame{{node: &b.root, level: 0}}
	return b
}

// Heading opens a node at level (1-based).
func (b *Builder) Heading(level int, label string, line int) {
	label = strings.TrimSpace(label)
	if label == "" {
		return
	}
	if level > MaxDepth {
		b.Text(label)
		return
	}
	b.flush()
	n := &Node{Label: label, Line: line}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, n)
	b.stack = append(b.stack, frame{node: n, level: level})
}

// Up closes every node deeper than level so following text attaches to the
// node at level.
func (b *Builder) Up(level int) {
	b.flush()
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level > level {
		b.stack = b.stack[:len(b.stack)-1]
	}
}

// Text appends a paragraph to the current node's notes.
func (b *Builder) Text(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if b.text.Len() > 0 {
		b.text.WriteString("\n\n")
	}
	b.text.WriteString(s)
}

func (b *Builder) flush() {
	t := b.text.String()
	b.text.Reset()
	if t == "" {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top.Notes != "" {
		top.Notes += "\n\n" + t
	} else {
		top.Notes = t
	}
}

// Outline returns the finished outline. Text before the first heading is
// dropped; it belongs to no entity.
func (b *Builder) Outline() *Outline {
	b.flush()
	return &Outline{Title: b.title, Children: b.root.Children}
}
