package outline

import (
	"testing"

	"github.com/dgallion1/planmark/internal/plan"
)

func TestBuilder_HeadingStack(t *testing.T) {
	b := NewBuilder("schedule")
	b.Text("preamble")
	b.Heading(1, "Kitchen 1", 1)
	b.Text("open plan")
	b.Heading(2, "Sink Wall", 3)
	b.Heading(3, "Base Run", 4)
	b.Heading(4, "B1", 5)
	b.Heading(5, "too deep", 6)
	b.Heading(2, "Island", 7)
	b.Heading(1, "Pantry", 8)
	o := b.Outline()

	if o.Title != "schedule" {
		t.Errorf("expected title %q, got %q", "schedule", o.Title)
	}
	if len(o.Children) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(o.Children))
	}
	kitchen := o.Children[0]
	if kitchen.Notes != "open plan" {
		t.Errorf("expected kitchen notes %q, got %q", "open plan", kitchen.Notes)
	}
	if len(kitchen.Children) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(kitchen.Children))
	}
	cab := kitchen.Children[0].Children[0].Children[0]
	if cab.Label != "B1" {
		t.Errorf("expected cabinet B1, got %q", cab.Label)
	}
	if cab.Notes != "too deep" {
		t.Errorf("expected deep heading kept as notes, got %q", cab.Notes)
	}
	if got := o.Count(); got != 6 {
		t.Errorf("expected 6 nodes, got %d", got)
	}
	if err := o.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestBuilder_SkippedLevelAttachesToNearest(t *testing.T) {
	b := NewBuilder("x")
	b.Heading(1, "Kitchen", 1)
	b.Heading(3, "Base Run", 2)
	o := b.Outline()
	if len(o.Children[0].Children) != 1 {
		t.Fatalf("expected the h3 under the room, got %+v", o.Children[0])
	}
}

func TestWalk_Depths(t *testing.T) {
	o := &Outline{}
	k := o.Ensure(nil, "Kitchen 1", 1)
	o.Ensure(k, "Sink Wall", 2)
	if again := o.Ensure(nil, "  kitchen   1 ", 3); again != k {
		t.Errorf("expected Ensure to reuse the normalized match")
	}

	var got []plan.AnnotationType
	err := o.Walk(func(n, parent *Node, depth int) error {
		typ, ok := TypeAtDepth(depth)
		if !ok {
			t.Fatalf("no type at depth %d", depth)
		}
		if depth == 1 && parent != nil {
			t.Errorf("room should have no parent")
		}
		got = append(got, typ)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != plan.TypeRoom || got[1] != plan.TypeLocation {
		t.Errorf("unexpected types %v", got)
	}
}

func TestValidate_TooDeep(t *testing.T) {
	o := &Outline{}
	n := o.Ensure(nil, "r", 0)
	for _, l := range []string{"l", "run", "cab", "shelf"} {
		n = o.Ensure(n, l, 0)
	}
	if err := o.Validate(); err == nil {
		t.Error("expected an error for a fifth level")
	}
}
