package overlay

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/dgallion1/planmark/internal/editor"
	"github.com/dgallion1/planmark/internal/plan"
	"github.com/dgallion1/planmark/internal/viewport"
)

func baseView() editor.View {
	st := editor.NewState()
	st.Page = plan.Page{ID: "p1", NativeWidth: 612, NativeHeight: 792, PageType: plan.PageFloorPlan}
	st.Viewport = viewport.Viewport{Zoom: 2, Pan: plan.Point{X: 10, Y: 20}}
	return editor.View{
		State: st,
		Annotations: []plan.Annotation{
			{ID: "a1", Type: plan.TypeRoom, Label: "Kitchen 1", LinkedEntityID: "r1", Box: plan.Box{X: 10, Y: 10, W: 100, H: 50}},
			{ID: "a2", Type: plan.TypeLocation, Label: "Sink <Wall>", Box: plan.Box{X: 20, Y: 20, W: 30, H: 10}, Color: "#00ff00"},
		},
	}
}

func render(t *testing.T, v editor.View) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, v, Size{Width: 800, Height: 600}))
	return buf.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	if match(n) {
		out = append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, findAll(c, match)...)
	}
	return out
}

func byClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		for _, f := range strings.Fields(attr(n, "class")) {
			if f == class {
				return true
			}
		}
		return false
	}
}

func TestBuild_ScreenSpaceBoxes(t *testing.T) {
	root := Build(baseView(), Size{Width: 800, Height: 600})
	groups := findAll(root, byClass("annotation"))
	require.Len(t, groups, 2)

	r := groups[0].FirstChild
	assert.Equal(t, "rect", r.Data)
	// page (10,10) at zoom 2 pan (10,20) is screen (30,40).
	assert.Equal(t, "30", attr(r, "x"))
	assert.Equal(t, "40", attr(r, "y"))
	assert.Equal(t, "200", attr(r, "width"))
	assert.Equal(t, "100", attr(r, "height"))
	assert.Equal(t, Palette[plan.TypeRoom], attr(r, "stroke"))

	assert.Equal(t, "#00ff00", attr(groups[1].FirstChild, "stroke"), "own color wins")
}

func TestRender_EscapesLabels(t *testing.T) {
	out := render(t, baseView())
	assert.True(t, strings.HasPrefix(out, "<svg"))
	assert.Contains(t, out, "Kitchen 1")
	assert.Contains(t, out, "Sink &lt;Wall&gt;")
	assert.NotContains(t, out, "<Wall>")
}

func TestBuild_PreviewAndHighlight(t *testing.T) {
	v := baseView()
	v.State.Mode = editor.ModePreviewReady
	v.State.Type = plan.TypeCabinet
	v.State.Box = plan.Box{X: 100, Y: 100, W: 40, H: 20}
	v.State.Highlight = "a2"
	v.Draft = &editor.Draft{Type: plan.TypeCabinet, Box: v.State.Box, Label: "B1"}

	root := Build(v, Size{Width: 800, Height: 600})
	previews := findAll(root, byClass("preview"))
	require.Len(t, previews, 1)
	pr := previews[0].FirstChild
	assert.Equal(t, "210", attr(pr, "x"))
	assert.Equal(t, previewDash, attr(pr, "stroke-dasharray"))
	assert.Contains(t, render(t, v), "B1")

	hl := findAll(root, byClass("highlight"))
	require.Len(t, hl, 1)
	assert.Equal(t, "a2", attr(hl[0], "data-id"))
	assert.Equal(t, highlightColor, attr(hl[0].FirstChild, "stroke"))
}

func TestBuild_ActiveGestureUsesLiveBox(t *testing.T) {
	v := baseView()
	v.State.Mode = editor.ModeMoving
	v.State.TargetID = "a1"
	v.State.Box = plan.Box{X: 50, Y: 60, W: 100, H: 50}

	root := Build(v, Size{Width: 800, Height: 600})
	active := findAll(root, byClass("active"))
	require.Len(t, active, 1)
	assert.Equal(t, "110", attr(active[0].FirstChild, "x"))
	assert.Len(t, findAll(active[0], byClass("handle")), 8)
	assert.Empty(t, findAll(root, byClass("preview")))
}

func TestBuild_SelectedEntity(t *testing.T) {
	v := baseView()
	v.Selection = plan.Selection{RoomID: "r1"}
	sel := findAll(Build(v, Size{Width: 800, Height: 600}), byClass("selected"))
	require.Len(t, sel, 1)
	assert.Equal(t, "a1", attr(sel[0], "data-id"))
}
