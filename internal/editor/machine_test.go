package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/planmark/internal/plan"
	"github.com/dgallion1/planmark/internal/viewport"
)

var floorPlan = plan.Page{ID: "p2", DocumentID: "d1", Ordinal: 2, NativeWidth: 612, NativeHeight: 792, Scale: 0.5, PageType: plan.PageFloorPlan}

func stateOn(page plan.Page) EditorState {
	return NewState().WithPage(page)
}

func TestSelectType_GatedByPage(t *testing.T) {
	s := stateOn(floorPlan)
	next, err := s.SelectType(plan.TypeRoom, "Kitchen 1")
	require.NoError(t, err)
	assert.Equal(t, ModeArmed, next.Mode)
	assert.Equal(t, plan.TypeRoom, next.Type)

	same, err := s.SelectType(plan.TypeCabinet, "")
	assert.ErrorIs(t, err, plan.ErrPolicyViolation)
	assert.Equal(t, s, same, "state is unchanged on violation")
}

func TestSelectType_RejectedMidGesture(t *testing.T) {
	s := stateOn(floorPlan)
	s, _ = s.SelectType(plan.TypeRoom, "")
	s = s.PointerDown(DefaultConfig(), plan.Point{X: 10, Y: 10}, nil)
	require.Equal(t, ModeDragging, s.Mode)
	_, err := s.SelectType(plan.TypeLocation, "")
	assert.ErrorIs(t, err, plan.ErrInvalidState)
}

func TestDrag_NormalizesBox(t *testing.T) {
	cfg := DefaultConfig()
	s, _ := stateOn(floorPlan).SelectType(plan.TypeRoom, "")
	s = s.PointerDown(cfg, plan.Point{X: 250, Y: 220}, nil)
	s = s.PointerMove(plan.Point{X: 100, Y: 100})
	assert.Equal(t, plan.Box{X: 100, Y: 100, W: 150, H: 120}, s.Box)

	s, ok := s.ReleaseDrag(cfg)
	require.True(t, ok)
	s = s.OpenPreview()
	assert.Equal(t, ModePreviewReady, s.Mode)
	assert.True(t, s.ModalOpen)

	d, ok := s.Draft("room-1")
	require.True(t, ok)
	assert.Equal(t, 75.0, d.RealWidth)
	assert.Equal(t, 60.0, d.RealHeight)
	assert.Equal(t, "room-1", d.ParentEntityRef)
}

func TestDrag_UsesPageCoordinates(t *testing.T) {
	cfg := DefaultConfig()
	s, _ := stateOn(floorPlan).SelectType(plan.TypeRoom, "")
	s.Viewport = viewport.Viewport{Zoom: 0.5, Pan: plan.Point{X: 20, Y: 40}}
	s = s.PointerDown(cfg, plan.Point{X: 70, Y: 90}, nil)
	s = s.PointerMove(plan.Point{X: 145, Y: 150})
	assert.Equal(t, plan.Box{X: 100, Y: 100, W: 150, H: 120}, s.Box)
}

func TestDrag_ClampedToPage(t *testing.T) {
	s, _ := stateOn(floorPlan).SelectType(plan.TypeRoom, "")
	s = s.PointerDown(DefaultConfig(), plan.Point{X: 600, Y: 780}, nil)
	s = s.PointerMove(plan.Point{X: 900, Y: 900})
	assert.Equal(t, plan.Box{X: 600, Y: 780, W: 12, H: 12}, s.Box)
}

func TestReleaseDrag_BelowMinimumArea(t *testing.T) {
	cfg := DefaultConfig()
	s, _ := stateOn(floorPlan).SelectType(plan.TypeLocation, "Sink Wall")
	s = s.PointerDown(cfg, plan.Point{X: 10, Y: 10}, nil)
	s = s.PointerMove(plan.Point{X: 12, Y: 11})
	require.Equal(t, 2.0, s.Box.Area())

	s, ok := s.ReleaseDrag(cfg)
	assert.False(t, ok)
	assert.Equal(t, ModeArmed, s.Mode)
	assert.Equal(t, plan.TypeLocation, s.Type)
	assert.Equal(t, "Sink Wall", s.Label)
}

func TestAutoPan_TakesPrecedenceOverArmed(t *testing.T) {
	cfg := DefaultConfig()
	s, _ := stateOn(floorPlan).SelectType(plan.TypeRoom, "")
	s.Viewport.Zoom = 1.5
	require.True(t, s.ShouldAutoPan(cfg))

	s = s.PointerDown(cfg, plan.Point{X: 300, Y: 300}, nil)
	assert.Equal(t, ModePanning, s.Mode)

	s = s.PointerMove(plan.Point{X: 320, Y: 290})
	s = s.PointerMove(plan.Point{X: 330, Y: 280})
	assert.Equal(t, plan.Point{X: 30, Y: -20}, s.Viewport.Pan)

	s = s.EndPan()
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Equal(t, plan.Point{X: 30, Y: -20}, s.Viewport.Pan)
}

func TestAutoPan_Guard(t *testing.T) {
	cfg := DefaultConfig()
	s := stateOn(floorPlan)
	s.Viewport.Zoom = 1.2
	assert.False(t, s.ShouldAutoPan(cfg), "threshold is exclusive")
	s.Viewport.Zoom = 2
	s.ModalOpen = true
	assert.False(t, s.ShouldAutoPan(cfg))
	s.ModalOpen = false
	s.Mode = ModeDragging
	assert.False(t, s.ShouldAutoPan(cfg))
}

func TestEscape_PanRestoresOrigin(t *testing.T) {
	cfg := DefaultConfig()
	s := stateOn(floorPlan)
	s.Viewport = viewport.Viewport{Zoom: 2, Pan: plan.Point{X: 5, Y: 5}}
	s = s.PointerDown(cfg, plan.Point{X: 0, Y: 0}, nil)
	s = s.PointerMove(plan.Point{X: 50, Y: 50})
	s = s.Escape()
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Equal(t, plan.Point{X: 5, Y: 5}, s.Viewport.Pan)
}

func TestEscape_Chain(t *testing.T) {
	cfg := DefaultConfig()
	s, _ := stateOn(floorPlan).SelectType(plan.TypeRoom, "")
	s = s.PointerDown(cfg, plan.Point{X: 1, Y: 1}, nil)
	s = s.Escape()
	assert.Equal(t, ModeArmed, s.Mode)
	s = s.Escape()
	assert.Equal(t, ModeIdle, s.Mode)
}

func room(id string, box plan.Box) plan.Annotation {
	return plan.Annotation{ID: id, PageID: floorPlan.ID, Type: plan.TypeRoom, Box: box}
}

func TestMove_TranslatesAndReverts(t *testing.T) {
	cfg := DefaultConfig()
	anns := []plan.Annotation{room("a1", plan.Box{X: 100, Y: 100, W: 150, H: 120})}
	s := stateOn(floorPlan)

	s = s.PointerDown(cfg, plan.Point{X: 150, Y: 150}, anns)
	require.Equal(t, ModeMoving, s.Mode)
	assert.Equal(t, "a1", s.TargetID)

	s = s.PointerMove(plan.Point{X: 160, Y: 155})
	assert.Equal(t, plan.Box{X: 110, Y: 105, W: 150, H: 120}, s.Box)
	assert.True(t, s.Changed())

	s = s.Escape()
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Equal(t, plan.Box{X: 100, Y: 100, W: 150, H: 120}, anns[0].Box)
}

func TestMove_ClampedInsidePage(t *testing.T) {
	cfg := DefaultConfig()
	anns := []plan.Annotation{room("a1", plan.Box{X: 10, Y: 10, W: 100, H: 100})}
	s := stateOn(floorPlan).PointerDown(cfg, plan.Point{X: 50, Y: 50}, anns)
	s = s.PointerMove(plan.Point{X: -500, Y: 5000})
	assert.Equal(t, plan.Box{X: 0, Y: 692, W: 100, H: 100}, s.Box)
}

func TestResize_FromCorner(t *testing.T) {
	cfg := DefaultConfig()
	anns := []plan.Annotation{room("a1", plan.Box{X: 100, Y: 100, W: 150, H: 120})}
	s := stateOn(floorPlan).PointerDown(cfg, plan.Point{X: 252, Y: 219}, anns)
	require.Equal(t, ModeResizing, s.Mode)
	assert.Equal(t, HandleSE, s.Handle)

	s = s.PointerMove(plan.Point{X: 300, Y: 260})
	assert.Equal(t, plan.Box{X: 100, Y: 100, W: 200, H: 160}, s.Box)

	// Dragging past the opposite edge flips rather than going negative.
	s = s.PointerMove(plan.Point{X: 50, Y: 60})
	assert.Equal(t, plan.Box{X: 50, Y: 60, W: 50, H: 40}, s.Box)
}

func TestResize_EdgeHandle(t *testing.T) {
	anns := []plan.Annotation{room("a1", plan.Box{X: 100, Y: 100, W: 150, H: 120})}
	s := stateOn(floorPlan).PointerDown(DefaultConfig(), plan.Point{X: 175, Y: 100}, anns)
	require.Equal(t, HandleN, s.Handle)
	s = s.PointerMove(plan.Point{X: 400, Y: 80})
	assert.Equal(t, plan.Box{X: 100, Y: 80, W: 150, H: 140}, s.Box)
}

func TestPointerDown_HandleBeatsAutoPan(t *testing.T) {
	cfg := DefaultConfig()
	anns := []plan.Annotation{room("a1", plan.Box{X: 100, Y: 100, W: 150, H: 120})}
	s := stateOn(floorPlan)
	s.Viewport.Zoom = 2
	s = s.PointerDown(cfg, plan.Point{X: 200, Y: 200}, anns) // page (100,100): NW corner
	assert.Equal(t, ModeResizing, s.Mode)

	s = stateOn(floorPlan)
	s.Viewport.Zoom = 2
	s = s.PointerDown(cfg, plan.Point{X: 300, Y: 300}, anns) // body
	assert.Equal(t, ModePanning, s.Mode)
}

func TestPointerDown_IgnoredInPreview(t *testing.T) {
	s := stateOn(floorPlan)
	s.Mode = ModePreviewReady
	s.ModalOpen = true
	assert.Equal(t, s, s.PointerDown(DefaultConfig(), plan.Point{X: 1, Y: 1}, nil))
}

func TestHitTest_TopmostWins(t *testing.T) {
	anns := []plan.Annotation{
		room("bottom", plan.Box{X: 0, Y: 0, W: 200, H: 200}),
		room("top", plan.Box{X: 50, Y: 50, W: 50, H: 50}),
	}
	assert.Equal(t, "top", HitTest(anns, plan.Point{X: 75, Y: 75}, 2).ID)
	assert.Equal(t, "bottom", HitTest(anns, plan.Point{X: 150, Y: 150}, 2).ID)
	assert.Empty(t, HitTest(anns, plan.Point{X: 500, Y: 500}, 2).ID)
}

func TestWithPage_DiscardsPreview(t *testing.T) {
	s := stateOn(floorPlan)
	s.Mode = ModePreviewReady
	s.ModalOpen = true
	s.Type = plan.TypeRoom
	s.Box = plan.Box{W: 10, H: 10}
	s.Viewport.Zoom = 2

	cover := plan.Page{ID: "p1", PageType: plan.PageCover}
	next := s.WithPage(cover)
	assert.Equal(t, ModeIdle, next.Mode)
	assert.False(t, next.ModalOpen)
	assert.Equal(t, plan.Box{}, next.Box)
	assert.Equal(t, cover, next.Page)
	assert.Equal(t, 2.0, next.Viewport.Zoom)
}

func TestRejectDuplicate(t *testing.T) {
	s := stateOn(floorPlan)
	s.Mode = ModePreviewReady
	s.ModalOpen = true
	s.Type = plan.TypeLocation
	s = s.RejectDuplicate("ann-7")
	assert.Equal(t, ModeArmed, s.Mode)
	assert.Equal(t, plan.TypeLocation, s.Type)
	assert.False(t, s.ModalOpen)
	assert.Equal(t, "ann-7", s.Highlight)
}
