package plan

import "math"

// Point is a 2D coordinate. Whether it is in screen pixels or page-native
// units depends on the caller.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Box is an axis-aligned rectangle with non-negative width and height.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// BoxFromCorners builds a normalized box spanning two opposite corners.
func BoxFromCorners(a, b Point) Box {
	return Box{
		X: math.Min(a.X, b.X),
		Y: math.Min(a.Y, b.Y),
		W: math.Abs(b.X - a.X),
		H: math.Abs(b.Y - a.Y),
	}
}

// Area returns w*h.
func (b Box) Area() float64 {
	return b.W * b.H
}

// Min returns the top-left corner.
func (b Box) Min() Point { return Point{X: b.X, Y: b.Y} }

// Max returns the bottom-right corner.
func (b Box) Max() Point { return Point{X: b.X + b.W, Y: b.Y + b.H} }

// Contains reports whether p lies inside or on the edge of b.
func (b Box) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.W &&
		p.Y >= b.Y && p.Y <= b.Y+b.H
}

// Translate moves the box by d.
func (b Box) Translate(d Point) Box {
	b.X += d.X
	b.Y += d.Y
	return b
}

// ClampInto moves b so it lies inside bounds without resizing it, unless b
// is larger than bounds on an axis, in which case it is pinned to the origin
// of that axis. A zero-sized bounds leaves b untouched.
func (b Box) ClampInto(bounds Box) Box {
	if bounds.W <= 0 || bounds.H <= 0 {
		return b
	}
	b.X = clampAxis(b.X, b.W, bounds.X, bounds.W)
	b.Y = clampAxis(b.Y, b.H, bounds.Y, bounds.H)
	return b
}

func clampAxis(pos, size, lo, span float64) float64 {
	if size >= span {
		return lo
	}
	if pos < lo {
		return lo
	}
	if pos+size > lo+span {
		return lo + span - size
	}
	return pos
}

// ClampPoint pins p inside bounds. A zero-sized bounds leaves p untouched.
func (b Box) ClampPoint(p Point) Point {
	if b.W <= 0 || b.H <= 0 {
		return p
	}
	p.X = math.Max(b.X, math.Min(p.X, b.X+b.W))
	p.Y = math.Max(b.Y, math.Min(p.Y, b.Y+b.H))
	return p
}
