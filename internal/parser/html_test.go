package parser

import (
	"strings"
	"testing"
)

func TestHTMLParser_Headings(t *testing.T) {
	input := `<html><head><title>Smith Residence</title></head><body>
<nav><h1>Menu</h1></nav>
<h1>Kitchen   1</h1>
<p>Galley layout.</p>
<h2>Sink Wall</h2>
<h3>Base Run</h3>
<h2>Island</h2>
<script>var x = "<h1>no</h1>";</script>
</body></html>`
	p := &HTMLParser{}
	o, err := p.Parse(strings.NewReader(input), "smith.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Title != "Smith Residence" {
		t.Errorf("expected title from <title>, got %q", o.Title)
	}
	if len(o.Children) != 1 {
		t.Fatalf("expected 1 room, got %d", len(o.Children))
	}
	kitchen := o.Children[0]
	if kitchen.Label != "Kitchen 1" {
		t.Errorf("expected whitespace collapsed, got %q", kitchen.Label)
	}
	if kitchen.Notes != "Galley layout." {
		t.Errorf("unexpected notes %q", kitchen.Notes)
	}
	if len(kitchen.Children) != 2 || len(kitchen.Children[0].Children) != 1 {
		t.Errorf("unexpected structure %+v", kitchen.Children)
	}
}

func TestHeadingLevel(t *testing.T) {
	for tag, want := range map[string]int{"h1": 1, "h4": 4, "h6": 6, "h7": 0, "hr": 0, "p": 0} {
		if got := headingLevel(tag); got != want {
			t.Errorf("headingLevel(%q) = %d, want %d", tag, got, want)
		}
	}
}

func TestForFile(t *testing.T) {
	for _, name := range []string{"a.md", "a.CSV", "a.htm", "a.docx", "a.txt"} {
		if _, err := ForFile(name); err != nil {
			t.Errorf("ForFile(%q): %v", name, err)
		}
	}
	if _, err := ForFile("a.pdf"); err == nil {
		t.Error("expected pdf to be rejected as an outline")
	}
	if !IsPDF("Plans.PDF") {
		t.Error("expected IsPDF for upper-case extension")
	}
}
