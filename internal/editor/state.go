// Package editor is the drawing core: a pure state machine over EditorState,
// the client-side AnnotationStore and the Session controller that drives
// both against the catalog.
package editor

import (
	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/plan"
	"github.com/dgallion1/planmark/internal/viewport"
)

// Mode is the active gesture.
type Mode string

const (
	ModeIdle         Mode = "idle"
	ModeArmed        Mode = "armed"
	ModeDragging     Mode = "dragging"
	ModePreviewReady Mode = "preview_ready"
	ModeResizing     Mode = "resizing"
	ModeMoving       Mode = "moving"
	ModePanning      Mode = "panning"
)

// Handle names a resize grip by compass direction.
type Handle string

const (
	HandleNone Handle = ""
	HandleN    Handle = "n"
	HandleS    Handle = "s"
	HandleE    Handle = "e"
	HandleW    Handle = "w"
	HandleNE   Handle = "ne"
	HandleNW   Handle = "nw"
	HandleSE   Handle = "se"
	HandleSW   Handle = "sw"
)

const (
	DefaultPanThreshold = 1.2
	DefaultMinArea      = 16.0 // page-native units squared
	DefaultHandleSize   = 8.0  // screen pixels
)

// Config holds the tunables of a session.
type Config struct {
	PanThreshold float64
	MinArea      float64
	HandleSize   float64
	Zoom         viewport.Bounds
	Retry        errreport.RetryPolicy
	HistorySize  int
}

func DefaultConfig() Config {
	return Config{
		PanThreshold: DefaultPanThreshold,
		MinArea:      DefaultMinArea,
		HandleSize:   DefaultHandleSize,
		Zoom:         viewport.DefaultBounds(),
		Retry:        errreport.DefaultRetryPolicy(),
		HistorySize:  errreport.DefaultHistorySize,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.PanThreshold <= 0 {
		c.PanThreshold = d.PanThreshold
	}
	if c.MinArea < 0 {
		c.MinArea = d.MinArea
	}
	if c.HandleSize <= 0 {
		c.HandleSize = d.HandleSize
	}
	if c.Zoom.Min <= 0 || c.Zoom.Max < c.Zoom.Min {
		c.Zoom = d.Zoom
	}
	return c
}

// EditorState is the complete draw/viewport state of one document view.
// Transitions take a state and return the next one.
type EditorState struct {
	Mode      Mode                `json:"mode"`
	Page      plan.Page           `json:"page"`
	Viewport  viewport.Viewport   `json:"viewport"`
	ModalOpen bool                `json:"modalOpen"`
	Type      plan.AnnotationType `json:"type,omitempty"`  // Armed, Dragging, PreviewReady
	Label     string              `json:"label,omitempty"` // label chosen when arming, if any

	Anchor   plan.Point `json:"anchor"`             // Dragging: page point of pointer-down
	Box      plan.Box   `json:"box"`                // live or previewed box, page-native
	TargetID string     `json:"targetId,omitempty"` // Resizing, Moving
	Handle   Handle     `json:"handle,omitempty"`
	Offset   plan.Point `json:"offset"`   // Moving: pointer minus box origin
	Original plan.Box   `json:"original"` // Resizing, Moving: box before the gesture

	PanStart  plan.Point `json:"panStart"`  // Panning: screen point of pointer-down
	PanOrigin plan.Point `json:"panOrigin"` // Panning: pan before the gesture
	Last      plan.Point `json:"last"`     // Panning: last screen point

	Highlight string `json:"highlight,omitempty"` // annotation flashed after a duplicate
}

// NewState returns an idle state at zoom 1.
func NewState() EditorState {
	return EditorState{Mode: ModeIdle, Viewport: viewport.New()}
}

// Draft is what the entity-binding editor is opened with.
type Draft struct {
	Type            plan.AnnotationType `json:"type"`
	Box             plan.Box            `json:"box"`
	RealWidth       float64             `json:"realWidth"`
	RealHeight      float64             `json:"realHeight"`
	Label           string              `json:"label,omitempty"`
	ParentEntityRef string              `json:"parentEntityRef,omitempty"`
}
