package parser

import (
	"strings"
	"testing"
)

func TestCSVParser_RoomSchedule(t *testing.T) {
	input := `Room,Location,Cabinet Run,Cabinet,Width,Finish
Kitchen 1,Sink Wall,Base Run,B1,36,oak
Kitchen 1,Sink Wall,Base Run,B2,18,oak
kitchen  1,Island,,,,
Pantry,,,,,
`
	p := &CSVParser{}
	o, err := p.Parse(strings.NewReader(input), "schedule.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Title != "schedule" {
		t.Errorf("expected title %q, got %q", "schedule", o.Title)
	}
	if len(o.Children) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(o.Children))
	}
	kitchen := o.Children[0]
	if len(kitchen.Children) != 2 {
		t.Fatalf("expected Sink Wall and Island, got %d locations", len(kitchen.Children))
	}
	run := kitchen.Children[0].Children[0]
	if len(run.Children) != 2 {
		t.Fatalf("expected 2 cabinets, got %d", len(run.Children))
	}
	b1 := run.Children[0]
	if b1.Attrs["Width"] != 36.0 || b1.Attrs["Finish"] != "oak" {
		t.Errorf("unexpected attrs %v", b1.Attrs)
	}
	if b1.Line != 2 {
		t.Errorf("expected line 2, got %d", b1.Line)
	}
	if err := o.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestCSVParser_ColumnOrder(t *testing.T) {
	input := "location,room\nSink Wall,Kitchen\n"
	p := &CSVParser{}
	o, err := p.Parse(strings.NewReader(input), "x.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Children[0].Label != "Kitchen" || o.Children[0].Children[0].Label != "Sink Wall" {
		t.Errorf("expected Kitchen > Sink Wall, got %+v", o.Children[0])
	}
}

func TestCSVParser_NoHierarchyColumns(t *testing.T) {
	p := &CSVParser{}
	if _, err := p.Parse(strings.NewReader("a,b\n1,2\n"), "x.csv"); err == nil {
		t.Error("expected an error without hierarchy columns")
	}
}

func TestCSVParser_Empty(t *testing.T) {
	p := &CSVParser{}
	o, err := p.Parse(strings.NewReader(""), "x.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(o.Children) != 0 {
		t.Errorf("expected no rooms, got %d", len(o.Children))
	}
}
