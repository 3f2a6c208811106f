// Package viewport converts between screen pixels and page-native units.
//
// Annotation boxes are always stored in page-native units; everything on
// screen is derived from a Viewport and never written back.
package viewport

import (
	"math"

	"github.com/dgallion1/planmark/internal/plan"
)

const (
	DefaultMinZoom = 0.25
	DefaultMaxZoom = 4.0
)

// Bounds limits the zoom factor.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultBounds returns [0.25, 4.0].
func DefaultBounds() Bounds {
	return Bounds{Min: DefaultMinZoom, Max: DefaultMaxZoom}
}

// Clamp pins z into the bounds. Invalid bounds fall back to the defaults.
func (b Bounds) Clamp(z float64) float64 {
	if b.Min <= 0 || b.Max < b.Min {
		b = DefaultBounds()
	}
	if math.IsNaN(z) {
		return b.Min
	}
	return math.Max(b.Min, math.Min(z, b.Max))
}

// Viewport is the current zoom factor and pan offset (screen pixels).
type Viewport struct {
	Zoom float64    `json:"zoom"`
	Pan  plan.Point `json:"pan"`
}

// New returns a viewport at zoom 1 with no pan.
func New() Viewport {
	return Viewport{Zoom: 1}
}

func (v Viewport) scale() float64 {
	if v.Zoom <= 0 {
		return 1
	}
	return v.Zoom
}

// ToPage maps a screen point to page-native units: (p - pan) / zoom.
func (v Viewport) ToPage(p plan.Point) plan.Point {
	z := v.scale()
	return plan.Point{X: (p.X - v.Pan.X) / z, Y: (p.Y - v.Pan.Y) / z}
}

// ToScreen maps a page-native point to screen pixels: p * zoom + pan.
func (v Viewport) ToScreen(p plan.Point) plan.Point {
	z := v.scale()
	return plan.Point{X: p.X*z + v.Pan.X, Y: p.Y*z + v.Pan.Y}
}

// BoxToScreen maps a page-native box to screen pixels.
func (v Viewport) BoxToScreen(b plan.Box) plan.Box {
	z := v.scale()
	o := v.ToScreen(b.Min())
	return plan.Box{X: o.X, Y: o.Y, W: b.W * z, H: b.H * z}
}

// PageLength converts a screen-pixel length to page-native units.
func (v Viewport) PageLength(px float64) float64 {
	return px / v.scale()
}

// WithZoom sets the zoom factor, clamped, keeping the pan unchanged.
func (v Viewport) WithZoom(z float64, b Bounds) Viewport {
	v.Zoom = b.Clamp(z)
	return v
}

// ZoomAround changes the zoom factor while keeping the page point under the
// screen anchor in place.
func (v Viewport) ZoomAround(anchor plan.Point, z float64, b Bounds) Viewport {
	fixed := v.ToPage(anchor)
	out := Viewport{Zoom: b.Clamp(z)}
	out.Pan = plan.Point{
		X: anchor.X - fixed.X*out.Zoom,
		Y: anchor.Y - fixed.Y*out.Zoom,
	}
	return out
}

// PanBy shifts the pan offset by d screen pixels.
func (v Viewport) PanBy(d plan.Point) Viewport {
	v.Pan = v.Pan.Add(d)
	return v
}

// Fit returns a viewport that shows the whole page centered in a screen of
// the given size.
func Fit(page plan.Page, screenW, screenH float64, b Bounds) Viewport {
	if page.NativeWidth <= 0 || page.NativeHeight <= 0 || screenW <= 0 || screenH <= 0 {
		return New()
	}
	z := b.Clamp(math.Min(screenW/page.NativeWidth, screenH/page.NativeHeight))
	return Viewport{
		Zoom: z,
		Pan: plan.Point{
			X: (screenW - page.NativeWidth*z) / 2,
			Y: (screenH - page.NativeHeight*z) / 2,
		},
	}
}
