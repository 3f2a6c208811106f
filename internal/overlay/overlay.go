// Package overlay renders a session view as an SVG layer that sits on top of
// the rendered page image.
package overlay

import (
	"io"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/planmark/internal/editor"
	"github.com/dgallion1/planmark/internal/plan"
)

// Palette is the stroke color per annotation type. Annotations with their
// own color keep it.
var Palette = map[plan.AnnotationType]string{
	plan.TypeRoom:       "#1f77b4",
	plan.TypeLocation:   "#2ca02c",
	plan.TypeCabinetRun: "#ff7f0e",
	plan.TypeCabinet:    "#9467bd",
	plan.TypeNote:       "#7f7f7f",
}

const (
	highlightColor = "#d62728"
	previewDash    = "6 4"
)

// Size is the screen area the overlay covers, in pixels.
type Size struct {
	Width  float64
	Height float64
}

// Render writes v as SVG in screen space. Boxes are mapped through the
// view's viewport; the active gesture box replaces the stored box of the
// annotation it targets.
func Render(w io.Writer, v editor.View, size Size) error {
	return html.Render(w, Build(v, size))
}

// Build returns the SVG element tree for v.
func Build(v editor.View, size Size) *html.Node {
	st := v.State
	vp := st.Viewport

	root := element("svg",
		"xmlns", "http://www.w3.org/2000/svg",
		"width", num(size.Width),
		"height", num(size.Height),
		"viewBox", "0 0 "+num(size.Width)+" "+num(size.Height),
		"data-page", st.Page.ID,
		"data-mode", string(st.Mode),
	)

	selected := selectedIDs(v.Selection)
	layer := element("g", "class", "annotations")
	for _, a := range v.Annotations {
		box := a.Box
		active := a.ID == st.TargetID && (st.Mode == editor.ModeResizing || st.Mode == editor.ModeMoving)
		if active {
			box = st.Box
		}

		class := "annotation " + string(a.Type)
		switch {
		case a.ID == st.Highlight:
			class += " highlight"
		case a.LinkedEntityID != "" && selected[a.LinkedEntityID]:
			class += " selected"
		}
		if active {
			class += " active"
		}

		g := element("g", "class", class, "data-id", a.ID, "data-type", string(a.Type))
		g.AppendChild(rect(vp.BoxToScreen(box), strokeFor(a, st.Highlight), ""))
		if a.Label != "" {
			g.AppendChild(label(vp.ToScreen(box.Min()), a.Label))
		}
		if active {
			for _, h := range handles(box) {
				g.AppendChild(handle(vp.ToScreen(h)))
			}
		}
		layer.AppendChild(g)
	}
	root.AppendChild(layer)

	switch st.Mode {
	case editor.ModeDragging, editor.ModePreviewReady:
		g := element("g", "class", "preview "+string(st.Mode), "data-type", string(st.Type))
		g.AppendChild(rect(vp.BoxToScreen(st.Box), Palette[st.Type], previewDash))
		if v.Draft != nil && v.Draft.Label != "" {
			g.AppendChild(label(vp.ToScreen(st.Box.Min()), v.Draft.Label))
		}
		root.AppendChild(g)
	}
	return root
}

func strokeFor(a plan.Annotation, highlight string) string {
	if a.ID == highlight {
		return highlightColor
	}
	if a.Color != "" {
		return a.Color
	}
	return Palette[a.Type]
}

func selectedIDs(sel plan.Selection) map[string]bool {
	out := make(map[string]bool, 4)
	for _, t := range []plan.AnnotationType{plan.TypeRoom, plan.TypeLocation, plan.TypeCabinetRun, plan.TypeCabinet} {
		if id := sel.At(t); id != "" {
			out[id] = true
		}
	}
	return out
}

func handles(b plan.Box) []plan.Point {
	hs := editor.Handles(b)
	out := make([]plan.Point, 0, len(hs))
	for _, h := range []editor.Handle{editor.HandleNW, editor.HandleN, editor.HandleNE, editor.HandleE,
		editor.HandleSE, editor.HandleS, editor.HandleSW, editor.HandleW} {
		if p, ok := hs[h]; ok {
			out = append(out, p)
		}
	}
	return out
}

func rect(b plan.Box, stroke, dash string) *html.Node {
	n := element("rect",
		"x", num(b.X), "y", num(b.Y),
		"width", num(b.W), "height", num(b.H),
		"fill", stroke, "fill-opacity", "0.12",
		"stroke", stroke, "stroke-width", "2",
	)
	if dash != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "stroke-dasharray", Val: dash})
	}
	return n
}

func label(at plan.Point, text string) *html.Node {
	n := element("text", "x", num(at.X+4), "y", num(at.Y+14), "font-size", "12")
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

func handle(at plan.Point) *html.Node {
	const half = 4
	return element("rect",
		"class", "handle",
		"x", num(at.X-half), "y", num(at.Y-half),
		"width", num(2*half), "height", num(2*half),
		"fill", "#ffffff", "stroke", "#000000",
	)
}

func element(tag string, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag)), Namespace: "svg"}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
