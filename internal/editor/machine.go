package editor

import (
	"strings"

	"github.com/dgallion1/planmark/internal/pagegate"
	"github.com/dgallion1/planmark/internal/plan"
	"github.com/dgallion1/planmark/internal/viewport"
)

// ShouldAutoPan reports whether a pointer-down on empty canvas pans instead
// of drawing.
func (s EditorState) ShouldAutoPan(cfg Config) bool {
	switch s.Mode {
	case ModeDragging, ModeResizing, ModeMoving:
		return false
	}
	return s.Viewport.Zoom > cfg.PanThreshold && !s.ModalOpen
}

// SelectType arms t. It is accepted from Idle or Armed and only for types
// the page allows.
func (s EditorState) SelectType(t plan.AnnotationType, label string) (EditorState, error) {
	if s.Mode != ModeIdle && s.Mode != ModeArmed {
		return s, plan.ErrInvalidState
	}
	if err := pagegate.Check(s.Page, t); err != nil {
		return s, err
	}
	s.Mode = ModeArmed
	s.Type = t
	s.Label = label
	s.Box = plan.Box{}
	s.Highlight = ""
	return s, nil
}

// PointerDown starts a gesture at screen point p. anns are the page's
// annotations, bottom to top. Pointer-down is ignored while a modal or
// preview is open, or while another gesture is active.
func (s EditorState) PointerDown(cfg Config, p plan.Point, anns []plan.Annotation) EditorState {
	if s.ModalOpen || (s.Mode != ModeIdle && s.Mode != ModeArmed) {
		return s
	}
	pagePt := s.Viewport.ToPage(p)
	autoPan := s.ShouldAutoPan(cfg)

	if s.Mode == ModeArmed {
		if autoPan {
			return s.startPan(p)
		}
		pagePt = s.Page.Bounds().ClampPoint(pagePt)
		s.Mode = ModeDragging
		s.Anchor = pagePt
		s.Box = plan.Box{X: pagePt.X, Y: pagePt.Y}
		return s
	}

	hit := HitTest(anns, pagePt, s.Viewport.PageLength(cfg.HandleSize))
	switch {
	case hit.ID != "" && hit.Handle != HandleNone:
		s.Mode = ModeResizing
		s.TargetID = hit.ID
		s.Handle = hit.Handle
		s.Original = hit.Box
		s.Box = hit.Box
		s.Highlight = ""
	case autoPan:
		return s.startPan(p)
	case hit.ID != "":
		s.Mode = ModeMoving
		s.TargetID = hit.ID
		s.Offset = pagePt.Sub(hit.Box.Min())
		s.Original = hit.Box
		s.Box = hit.Box
		s.Highlight = ""
	}
	return s
}

func (s EditorState) startPan(p plan.Point) EditorState {
	s.Mode = ModePanning
	s.PanStart = p
	s.PanOrigin = s.Viewport.Pan
	s.Last = p
	return s
}

// PointerMove updates the active gesture with screen point p.
func (s EditorState) PointerMove(p plan.Point) EditorState {
	bounds := s.Page.Bounds()
	switch s.Mode {
	case ModeDragging:
		s.Box = plan.BoxFromCorners(s.Anchor, bounds.ClampPoint(s.Viewport.ToPage(p)))
	case ModePanning:
		s.Viewport = s.Viewport.PanBy(p.Sub(s.Last))
		s.Last = p
	case ModeMoving:
		origin := s.Viewport.ToPage(p).Sub(s.Offset)
		s.Box = plan.Box{X: origin.X, Y: origin.Y, W: s.Original.W, H: s.Original.H}.ClampInto(bounds)
	case ModeResizing:
		s.Box = resize(s.Original, s.Handle, bounds.ClampPoint(s.Viewport.ToPage(p)))
	}
	return s
}

// ReleaseDrag ends a draw. A box smaller than cfg.MinArea is discarded and
// the state returns to Armed; ok is false in that case.
func (s EditorState) ReleaseDrag(cfg Config) (next EditorState, ok bool) {
	if s.Mode != ModeDragging {
		return s, false
	}
	if s.Box.Area() < cfg.MinArea {
		s.Mode = ModeArmed
		s.Box = plan.Box{}
		s.Anchor = plan.Point{}
		return s, false
	}
	return s, true
}

// OpenPreview moves a released drag into PreviewReady and opens the binding
// editor.
func (s EditorState) OpenPreview() EditorState {
	s.Mode = ModePreviewReady
	s.ModalOpen = true
	return s
}

// RejectDuplicate returns to Armed and flashes the existing annotation.
func (s EditorState) RejectDuplicate(existingID string) EditorState {
	s.Mode = ModeArmed
	s.ModalOpen = false
	s.Box = plan.Box{}
	s.Anchor = plan.Point{}
	s.Highlight = existingID
	return s
}

// EndPan finishes a pan, keeping the new offset.
func (s EditorState) EndPan() EditorState {
	if s.Mode != ModePanning {
		return s
	}
	return s.idle()
}

// Escape backs out of the current gesture. Dragging returns to Armed,
// Resizing and Moving revert to the original box, Panning restores the
// starting pan and every other mode goes Idle.
func (s EditorState) Escape() EditorState {
	switch s.Mode {
	case ModeDragging:
		s.Mode = ModeArmed
		s.Box = plan.Box{}
		s.Anchor = plan.Point{}
		return s
	case ModePanning:
		s.Viewport.Pan = s.PanOrigin
	}
	return s.idle()
}

// Cancel discards any draw in progress without touching the store.
func (s EditorState) Cancel() EditorState {
	return s.idle()
}

// EndGesture returns to Idle after a resize or move has been resolved.
func (s EditorState) EndGesture() EditorState {
	return s.idle()
}

// Changed reports whether a resize or move altered the box.
func (s EditorState) Changed() bool {
	return (s.Mode == ModeResizing || s.Mode == ModeMoving) && s.Box != s.Original
}

// WithPage switches to page p, discarding any gesture or preview.
func (s EditorState) WithPage(p plan.Page) EditorState {
	s = s.idle()
	s.Page = p
	s.Highlight = ""
	return s
}

// WithViewport replaces the viewport, clamping the zoom.
func (s EditorState) WithViewport(v viewport.Viewport, b viewport.Bounds) EditorState {
	v.Zoom = b.Clamp(v.Zoom)
	s.Viewport = v
	return s
}

// Draft describes the previewed annotation for the binding editor.
func (s EditorState) Draft(parentRef string) (Draft, bool) {
	if s.Mode != ModePreviewReady {
		return Draft{}, false
	}
	w, h := s.Page.RealSize(s.Box)
	return Draft{
		Type:            s.Type,
		Box:             s.Box,
		RealWidth:       w,
		RealHeight:      h,
		Label:           s.Label,
		ParentEntityRef: parentRef,
	}, true
}

func (s EditorState) idle() EditorState {
	return EditorState{
		Mode:      ModeIdle,
		Page:      s.Page,
		Viewport:  s.Viewport,
		Highlight: s.Highlight,
	}
}

// Hit is the result of a hit test.
type Hit struct {
	ID     string
	Handle Handle
	Box    plan.Box
}

// HitTest finds the topmost annotation under p. Handles within tol (page
// units) of a corner or edge midpoint win over the body.
func HitTest(anns []plan.Annotation, p plan.Point, tol float64) Hit {
	for i := len(anns) - 1; i >= 0; i-- {
		a := anns[i]
		if h := handleAt(a.Box, p, tol); h != HandleNone {
			return Hit{ID: a.ID, Handle: h, Box: a.Box}
		}
		if a.Box.Contains(p) {
			return Hit{ID: a.ID, Box: a.Box}
		}
	}
	return Hit{}
}

// Handles returns the grip positions of b.
func Handles(b plan.Box) map[Handle]plan.Point {
	x0, y0, x1, y1 := b.X, b.Y, b.X+b.W, b.Y+b.H
	mx, my := b.X+b.W/2, b.Y+b.H/2
	return map[Handle]plan.Point{
		HandleNW: {X: x0, Y: y0}, HandleN: {X: mx, Y: y0}, HandleNE: {X: x1, Y: y0},
		HandleW: {X: x0, Y: my}, HandleE: {X: x1, Y: my},
		HandleSW: {X: x0, Y: y1}, HandleS: {X: mx, Y: y1}, HandleSE: {X: x1, Y: y1},
	}
}

var handleOrder = []Handle{HandleNW, HandleNE, HandleSW, HandleSE, HandleN, HandleS, HandleW, HandleE}

func handleAt(b plan.Box, p plan.Point, tol float64) Handle {
	grips := Handles(b)
	for _, h := range handleOrder {
		g := grips[h]
		if abs(p.X-g.X) <= tol && abs(p.Y-g.Y) <= tol {
			return h
		}
	}
	return HandleNone
}

// resize moves the edges named by h to p and normalizes the result.
func resize(orig plan.Box, h Handle, p plan.Point) plan.Box {
	a, b := orig.Min(), orig.Max()
	hs := string(h)
	if strings.Contains(hs, "w") {
		a.X = p.X
	}
	if strings.Contains(hs, "e") {
		b.X = p.X
	}
	if strings.Contains(hs, "n") {
		a.Y = p.Y
	}
	if strings.Contains(hs, "s") {
		b.Y = p.Y
	}
	return plan.BoxFromCorners(a, b)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
