package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dgallion1/planmark/internal/plan"
)

const eps = 1e-9

func TestRoundTrip(t *testing.T) {
	zooms := []float64{0.25, 0.5, 1, 1.2, 1.5, 2.75, 4}
	pans := []plan.Point{{}, {X: 13.5, Y: -40}, {X: -1200, Y: 800.25}}
	points := []plan.Point{{}, {X: 1, Y: 1}, {X: 512.3, Y: 97.1}, {X: -50, Y: 3000}}

	for _, z := range zooms {
		for _, pan := range pans {
			v := Viewport{Zoom: z, Pan: pan}
			for _, p := range points {
				got := v.ToScreen(v.ToPage(p))
				assert.InDelta(t, p.X, got.X, eps, "zoom=%v pan=%v p=%v", z, pan, p)
				assert.InDelta(t, p.Y, got.Y, eps, "zoom=%v pan=%v p=%v", z, pan, p)
			}
		}
	}
}

func TestToPage_Formula(t *testing.T) {
	v := Viewport{Zoom: 2, Pan: plan.Point{X: 10, Y: 20}}
	got := v.ToPage(plan.Point{X: 110, Y: 220})
	assert.Equal(t, plan.Point{X: 50, Y: 100}, got)
}

func TestBounds_Clamp(t *testing.T) {
	b := DefaultBounds()
	assert.Equal(t, 0.25, b.Clamp(0.01))
	assert.Equal(t, 4.0, b.Clamp(9))
	assert.Equal(t, 1.5, b.Clamp(1.5))

	// Broken bounds fall back to defaults.
	assert.Equal(t, 4.0, Bounds{Min: 5, Max: 1}.Clamp(10))
}

func TestZoomAround_KeepsAnchorFixed(t *testing.T) {
	v := Viewport{Zoom: 1, Pan: plan.Point{X: 30, Y: -10}}
	anchor := plan.Point{X: 400, Y: 300}
	before := v.ToPage(anchor)

	z := v.ZoomAround(anchor, 2.5, DefaultBounds())
	after := z.ToPage(anchor)

	assert.Equal(t, 2.5, z.Zoom)
	assert.InDelta(t, before.X, after.X, eps)
	assert.InDelta(t, before.Y, after.Y, eps)
}

func TestZoomDoesNotTouchStoredBox(t *testing.T) {
	box := plan.Box{X: 100, Y: 100, W: 150, H: 120}
	v := New()
	for _, z := range []float64{0.25, 1, 4} {
		s := v.WithZoom(z, DefaultBounds()).BoxToScreen(box)
		assert.InDelta(t, 150*z, s.W, eps)
	}
	assert.Equal(t, plan.Box{X: 100, Y: 100, W: 150, H: 120}, box)
}

func TestPanBy(t *testing.T) {
	v := New().PanBy(plan.Point{X: 5, Y: -5}).PanBy(plan.Point{X: 1, Y: 1})
	assert.Equal(t, plan.Point{X: 6, Y: -4}, v.Pan)
}

func TestFit_CentersPage(t *testing.T) {
	page := plan.Page{NativeWidth: 1000, NativeHeight: 500}
	v := Fit(page, 500, 500, DefaultBounds())
	assert.InDelta(t, 0.5, v.Zoom, eps)
	assert.InDelta(t, 0, v.Pan.X, eps)
	assert.InDelta(t, 125, v.Pan.Y, eps)
}

func TestZeroZoomIsSafe(t *testing.T) {
	var v Viewport
	got := v.ToPage(plan.Point{X: 10, Y: 10})
	assert.Equal(t, plan.Point{X: 10, Y: 10}, got)
}
