package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/planmark/internal/catalog"
	"github.com/dgallion1/planmark/internal/dupguard"
	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/hierarchy"
	"github.com/dgallion1/planmark/internal/pagegate"
	"github.com/dgallion1/planmark/internal/plan"
	"github.com/dgallion1/planmark/internal/viewport"
)

// Backend is the part of the catalog a session talks to.
type Backend interface {
	catalog.Annotations
	GetPage(ctx context.Context, id string) (plan.Page, error)
	GetEntity(ctx context.Context, id string) (plan.Entity, error)
}

// Hooks are the upward notifications of a session. Each is optional and is
// called without any session lock held.
type Hooks struct {
	OnAnnotationCommitted func(plan.Annotation)
	OnSelectionChanged    func(plan.Selection)
	OnError               func(errreport.Event)
}

// CommitRequest carries what the binding editor collected.
type CommitRequest struct {
	Label           string         `json:"label"`
	Color           string         `json:"color,omitempty"`
	ParentEntityRef string         `json:"parentEntityRef,omitempty"` // overrides the selection
	LinkedEntityID  string         `json:"linkedEntityId,omitempty"`  // bind to an existing entity
	EntityAttrs     map[string]any `json:"entityAttrs,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Session is one open document view. Pointer input is applied one event at
// a time; catalog calls run with the lock released so unrelated input stays
// responsive while a write is pending.
type Session struct {
	id    string
	cfg   Config
	store Backend
	log   *slog.Logger
	rep   *errreport.Reporter
	unsub func()
	hooks Hooks

	annotations *AnnotationStore
	graph       *hierarchy.Graph
	loader      *hierarchy.Loader
	guard       *dupguard.Guard

	mu         sync.Mutex
	state      EditorState
	selection  plan.Selection
	gen        uint64 // bumped whenever the gesture is abandoned or replaced
	loadSeq    uint64
	committing bool
	inflight   map[string]bool
	lastUsed   time.Time
}

func NewSession(id string, store Backend, cfg Config, hooks Hooks, log *slog.Logger) *Session {
	cfg = cfg.normalized()
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session_id", id)
	rep := errreport.NewReporter(errreport.Config{Retry: cfg.Retry, HistorySize: cfg.HistorySize}, log)
	graph := hierarchy.NewGraph()
	annotations := NewAnnotationStore()

	s := &Session{
		id:          id,
		cfg:         cfg,
		store:       store,
		log:         log,
		rep:         rep,
		unsub:       func() {},
		hooks:       hooks,
		annotations: annotations,
		graph:       graph,
		loader:      hierarchy.NewLoader(store, graph, rep),
		guard:       dupguard.New(graph, store, annotations, rep, log),
		state:       NewState(),
		inflight:    make(map[string]bool),
		lastUsed:    time.Now(),
	}
	if hooks.OnError != nil {
		s.unsub = rep.Subscribe(hooks.OnError)
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Reporter returns the session's error reporter.
func (s *Session) Reporter() *errreport.Reporter { return s.rep }

// Graph returns the session's entity graph.
func (s *Session) Graph() *hierarchy.Graph { return s.graph }

// Annotations returns the session's annotation store.
func (s *Session) Annotations() *AnnotationStore { return s.annotations }

// Close detaches the error hook.
func (s *Session) Close() {
	s.unsub()
}

func (s *Session) lock() {
	s.mu.Lock()
	s.lastUsed = time.Now()
}

// LastUsed returns the time of the last call into the session.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// View is a consistent snapshot for rendering.
type View struct {
	State        EditorState           `json:"state"`
	Selection    plan.Selection        `json:"selection"`
	Annotations  []plan.Annotation     `json:"annotations"`
	AllowedTypes []plan.AnnotationType `json:"allowedTypes"`
	AutoPan      bool                  `json:"autoPan"`
	Draft        *Draft                `json:"draft,omitempty"`
	Committing   bool                  `json:"committing"`
}

// View returns the current state of the session.
func (s *Session) View() View {
	s.lock()
	defer s.mu.Unlock()
	v := View{
		State:        s.state,
		Selection:    s.selection,
		Annotations:  s.annotations.List(s.state.Page.ID),
		AllowedTypes: pagegate.AllowedTypes(s.state.Page.PageType),
		AutoPan:      s.state.ShouldAutoPan(s.cfg),
		Committing:   s.committing,
	}
	if d, ok := s.state.Draft(s.parentRefLocked(s.state.Type)); ok {
		v.Draft = &d
	}
	return v
}

// State returns the current editor state.
func (s *Session) State() EditorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Selection returns the active hierarchy selection.
func (s *Session) Selection() plan.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// LoadPage switches the view to pageID. Any armed draw or open preview is
// discarded before the page is fetched. The selection is kept.
func (s *Session) LoadPage(ctx context.Context, pageID string) error {
	s.lock()
	s.state = s.state.Cancel()
	s.gen++
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	page, err := errreport.Call(ctx, s.rep, "getPage", func(ctx context.Context) (plan.Page, error) {
		return s.store.GetPage(ctx, pageID)
	})
	if err != nil {
		return err
	}
	anns, err := errreport.Call(ctx, s.rep, "listAnnotations", func(ctx context.Context) ([]plan.Annotation, error) {
		return s.store.ListAnnotations(ctx, pageID)
	})
	if err != nil {
		return err
	}
	s.annotations.Replace(pageID, anns)
	for _, a := range anns {
		if a.Type.IsEntity() && a.LinkedEntityID != "" {
			if err := s.loader.Resolve(ctx, a.LinkedEntityID); err != nil {
				s.log.Warn("entity not resolved", "annotation_id", a.ID, "entity_id", a.LinkedEntityID, "error", err)
			}
		}
	}

	s.lock()
	defer s.mu.Unlock()
	if s.loadSeq != seq {
		return nil
	}
	s.state = s.state.WithPage(page)
	s.gen++
	s.log.Info("page loaded", "page_id", page.ID, "ordinal", page.Ordinal, "page_type", page.PageType, "annotations", len(anns))
	return nil
}

// SelectType arms a draw of type t. label may be empty and supplied at
// commit instead.
func (s *Session) SelectType(t plan.AnnotationType, label string) error {
	s.lock()
	next, err := s.state.SelectType(t, label)
	if err == nil {
		s.state = next
		s.gen++
	}
	s.mu.Unlock()

	if err != nil && !errors.Is(err, plan.ErrInvalidState) {
		s.rep.Report("selectType", err)
	}
	return err
}

// PointerDown handles a pointer press at screen point p.
func (s *Session) PointerDown(p plan.Point) error {
	s.lock()
	defer s.mu.Unlock()
	prev := s.state
	next := prev.PointerDown(s.cfg, p, s.annotations.List(prev.Page.ID))
	if next.Mode != prev.Mode && next.TargetID != "" && s.inflight[next.TargetID] {
		return fmt.Errorf("annotation %s: %w", next.TargetID, plan.ErrBusy)
	}
	if next.Mode != prev.Mode {
		s.gen++
	}
	s.state = next
	return nil
}

// PointerMove handles pointer motion at screen point p.
func (s *Session) PointerMove(p plan.Point) {
	s.lock()
	defer s.mu.Unlock()
	s.state = s.state.PointerMove(p)
}

// PointerUp finishes the active gesture. A finished draw is checked for
// duplicates when its label is known; a finished move or resize is written
// to the catalog and only then applied locally. A resize that shrinks the
// box below the minimum area is dropped.
func (s *Session) PointerUp(ctx context.Context) error {
	s.lock()
	st := s.state
	switch st.Mode {
	case ModePanning:
		s.state = st.EndPan()
		s.mu.Unlock()
		return nil

	case ModeDragging:
		next, ok := st.ReleaseDrag(s.cfg)
		if !ok {
			s.state = next
			s.mu.Unlock()
			s.log.Debug("draw discarded below minimum area", "box", st.Box)
			return nil
		}
		// Unlabeled draws are checked at commit, once the label is known.
		if plan.NormalizeLabel(next.Label) == "" || !next.Type.IsEntity() {
			s.state = next.OpenPreview()
			s.mu.Unlock()
			return nil
		}
		parentRef := s.parentRefLocked(next.Type)
		s.state = next
		gen := s.gen
		s.mu.Unlock()

		res, err := s.guard.Check(ctx, next.Type, parentRef, next.Label)
		if err == nil && res.IsDuplicate {
			s.resolveQuietly(ctx, res.Entity.ID)
		}

		s.lock()
		if s.gen != gen || s.state.Mode != ModeDragging {
			s.mu.Unlock()
			return nil
		}
		if err != nil {
			// Commit checks again.
			s.state = s.state.OpenPreview()
			s.mu.Unlock()
			s.log.Warn("duplicate check failed at release", "error", err)
			return nil
		}
		if res.IsDuplicate {
			notices := s.surfaceDuplicateLocked(res)
			s.gen++
			s.mu.Unlock()
			dupErr := res.Err()
			s.rep.Report("pointerUp", dupErr)
			fire(notices)
			return dupErr
		}
		s.state = s.state.OpenPreview()
		s.mu.Unlock()
		return nil

	case ModeResizing, ModeMoving:
		if !st.Changed() {
			s.state = st.EndGesture()
			s.mu.Unlock()
			return nil
		}
		if st.Mode == ModeResizing && st.Box.Area() < s.cfg.MinArea {
			s.state = st.EndGesture()
			s.mu.Unlock()
			s.log.Debug("resize discarded below minimum area", "annotation_id", st.TargetID, "box", st.Box)
			return nil
		}
		id, box := st.TargetID, st.Box
		s.inflight[id] = true
		s.state = st.EndGesture()
		s.gen++
		s.mu.Unlock()

		err := s.rep.Do(ctx, "updateAnnotationGeometry", func(ctx context.Context) error {
			return s.store.UpdateAnnotationGeometry(ctx, id, box)
		})

		s.lock()
		delete(s.inflight, id)
		if err == nil {
			s.annotations.SetBox(id, box)
		}
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return nil
}

// Escape backs out of the current gesture. A preview whose commit is in
// flight cannot be escaped.
func (s *Session) Escape() error {
	s.lock()
	defer s.mu.Unlock()
	if s.committing && s.state.Mode == ModePreviewReady {
		return plan.ErrBusy
	}
	s.state = s.state.Escape()
	s.gen++
	return nil
}

// Cancel discards an armed draw or open preview without touching the
// catalog.
func (s *Session) Cancel() error {
	s.lock()
	defer s.mu.Unlock()
	if s.committing && s.state.Mode == ModePreviewReady {
		return plan.ErrBusy
	}
	s.state = s.state.Cancel()
	s.gen++
	return nil
}

// SetModal records whether a modal dialog is open. Closing the binding
// editor cancels the preview.
func (s *Session) SetModal(open bool) error {
	s.lock()
	defer s.mu.Unlock()
	if s.state.Mode == ModePreviewReady {
		if open {
			return nil
		}
		if s.committing {
			return plan.ErrBusy
		}
		s.state = s.state.Cancel()
		s.gen++
		return nil
	}
	s.state.ModalOpen = open
	return nil
}

// Commit persists the previewed annotation. On success the annotation is
// added to the store, its entity is selected and the state returns to Idle.
// A duplicate returns to Armed and surfaces the existing annotation. Any
// other failure leaves the preview open for a retry or cancel.
func (s *Session) Commit(ctx context.Context, req CommitRequest) (plan.Annotation, error) {
	s.lock()
	if s.state.Mode != ModePreviewReady {
		s.mu.Unlock()
		return plan.Annotation{}, plan.ErrInvalidState
	}
	if s.committing {
		s.mu.Unlock()
		return plan.Annotation{}, plan.ErrBusy
	}
	st := s.state
	label := req.Label
	if label == "" {
		label = st.Label
	}
	parentRef := req.ParentEntityRef
	if parentRef == "" {
		parentRef = s.parentRefLocked(st.Type)
	}
	s.committing = true
	gen := s.gen
	s.mu.Unlock()

	a, dup, err := s.commit(ctx, st, label, parentRef, req)

	s.lock()
	s.committing = false
	current := s.gen == gen && s.state.Mode == ModePreviewReady

	if dup != nil {
		var notices []func()
		if current {
			notices = s.surfaceDuplicateLocked(*dup)
			s.gen++
		}
		s.mu.Unlock()
		s.rep.Report("commit", err)
		fire(notices)
		return plan.Annotation{}, err
	}
	if err != nil {
		s.mu.Unlock()
		return plan.Annotation{}, err
	}

	s.annotations.Add(a)
	parentRef = a.ParentEntityRef
	if a.Type.IsEntity() && a.LinkedEntityID != "" {
		if _, known := s.graph.Get(a.LinkedEntityID); !known {
			e := plan.Entity{ID: a.LinkedEntityID, Type: a.Type, ParentID: parentRef, Label: label, Attrs: req.EntityAttrs}
			if err := s.graph.Add(e); err != nil {
				s.log.Warn("committed entity not indexed", "entity_id", e.ID, "error", err)
			}
		}
	}
	if current {
		s.state = s.state.Cancel()
		s.gen++
	}
	notices := []func(){}
	if h := s.hooks.OnAnnotationCommitted; h != nil {
		notices = append(notices, func() { h(a) })
	}
	if a.Type.IsEntity() {
		old := s.selection
		s.selection = hierarchy.Reduce(old, hierarchy.Event{Level: a.Type, EntityID: a.LinkedEntityID}, s.graph)
		notices = append(notices, s.selectionNoticeLocked(old)...)
	}
	s.mu.Unlock()

	s.log.Info("annotation committed", "annotation_id", a.ID, "type", a.Type, "entity_id", a.LinkedEntityID, "parent", parentRef)
	fire(notices)
	return a, nil
}

// commit runs the gate, the hierarchy and duplicate checks and the create,
// in that order. It reports its own validation failures; catalog failures
// are reported by the retry loop. A non-nil dup means the failure is a
// duplicate that the caller reports.
func (s *Session) commit(ctx context.Context, st EditorState, label, parentRef string, req CommitRequest) (plan.Annotation, *dupguard.Result, error) {
	t := st.Type
	if err := pagegate.Check(st.Page, t); err != nil {
		s.rep.Report("commit", err)
		return plan.Annotation{}, nil, err
	}
	if t.IsEntity() && req.LinkedEntityID == "" && plan.NormalizeLabel(label) == "" {
		err := errreport.Validation(errreport.CodeLabelRequired, fmt.Sprintf("%s needs a label", t), nil)
		s.rep.Report("commit", err)
		return plan.Annotation{}, nil, err
	}
	if req.LinkedEntityID != "" {
		ref, err := s.linkedParent(ctx, t, parentRef, req.LinkedEntityID)
		if err != nil {
			return plan.Annotation{}, nil, err
		}
		parentRef = ref
	}

	if parentRef != "" {
		if _, ok := s.graph.Get(parentRef); !ok {
			if err := s.loader.Resolve(ctx, parentRef); err != nil && !errors.Is(err, plan.ErrNotFound) {
				return plan.Annotation{}, nil, err
			}
		}
		if err := s.graph.ValidateParent(t, parentRef); err != nil {
			verr := errreport.Validation(errreport.CodeInvalidHierarchy, err.Error(), err)
			s.rep.Report("commit", verr)
			return plan.Annotation{}, nil, verr
		}
	}

	if t.IsEntity() && req.LinkedEntityID == "" {
		res, err := s.guard.Check(ctx, t, parentRef, label)
		if err != nil {
			return plan.Annotation{}, nil, err
		}
		if res.IsDuplicate {
			s.resolveQuietly(ctx, res.Entity.ID)
			return plan.Annotation{}, &res, res.Err()
		}
	}

	a, err := errreport.Call(ctx, s.rep, "createAnnotation", func(ctx context.Context) (plan.Annotation, error) {
		return s.store.CreateAnnotation(ctx, catalog.CreateAnnotationRequest{
			PageID:          st.Page.ID,
			Type:            t,
			Box:             st.Box,
			Label:           label,
			Color:           req.Color,
			ParentEntityRef: parentRef,
			LinkedEntityID:  req.LinkedEntityID,
			EntityAttrs:     req.EntityAttrs,
			Metadata:        req.Metadata,
		})
	})
	if err != nil {
		return plan.Annotation{}, nil, err
	}
	if a.ParentEntityRef == "" {
		a.ParentEntityRef = parentRef
	}
	return a, nil, nil
}

// linkedParent loads the entity a commit binds to and returns the parent the
// annotation hangs under. The entity must have the armed type and, when a
// parent is given, already sit under it.
func (s *Session) linkedParent(ctx context.Context, t plan.AnnotationType, parentRef, id string) (string, error) {
	if err := s.loader.Resolve(ctx, id); err != nil && !errors.Is(err, plan.ErrNotFound) {
		return "", err
	}
	var msg string
	e, ok := s.graph.Get(id)
	switch {
	case !ok:
		msg = fmt.Sprintf("linked entity %s not found", id)
	case e.Type != t:
		msg = fmt.Sprintf("linked entity %s is a %s, not a %s", id, e.Type, t)
	case parentRef != "" && e.ParentID != parentRef:
		msg = fmt.Sprintf("linked entity %s is not under %s", id, parentRef)
	default:
		return e.ParentID, nil
	}
	err := errreport.Validation(errreport.CodeInvalidHierarchy, msg, plan.ErrInvalidHierarchy)
	s.rep.Report("commit", err)
	return "", err
}

// SelectEntity applies a cascade event. Ancestors missing from the graph are
// fetched first.
func (s *Session) SelectEntity(ctx context.Context, level plan.AnnotationType, id string) (plan.Selection, error) {
	if id != "" {
		if err := s.loader.Resolve(ctx, id); err != nil {
			return s.Selection(), err
		}
	}
	s.lock()
	old := s.selection
	s.selection = hierarchy.Reduce(old, hierarchy.Event{Level: level, EntityID: id}, s.graph)
	sel := s.selection
	notices := s.selectionNoticeLocked(old)
	s.mu.Unlock()

	fire(notices)
	if id != "" && sel.At(level) != id {
		err := errreport.Validation(errreport.CodeInvalidHierarchy,
			fmt.Sprintf("%s cannot be selected as %s", id, level), plan.ErrInvalidHierarchy)
		s.rep.Report("selectEntity", err)
		return sel, err
	}
	return sel, nil
}

// Children loads the candidates for level under the active selection.
func (s *Session) Children(ctx context.Context, level plan.AnnotationType) ([]plan.Entity, error) {
	sel := s.Selection()
	return s.loader.LoadChildren(ctx, sel, level)
}

// SetZoom sets the zoom factor, clamped to the configured bounds.
func (s *Session) SetZoom(z float64) viewport.Viewport {
	s.lock()
	defer s.mu.Unlock()
	s.state = s.state.WithViewport(s.state.Viewport.WithZoom(z, s.cfg.Zoom), s.cfg.Zoom)
	return s.state.Viewport
}

// ZoomAround zooms keeping the page point under the screen anchor fixed.
func (s *Session) ZoomAround(anchor plan.Point, z float64) viewport.Viewport {
	s.lock()
	defer s.mu.Unlock()
	s.state = s.state.WithViewport(s.state.Viewport.ZoomAround(anchor, z, s.cfg.Zoom), s.cfg.Zoom)
	return s.state.Viewport
}

// PanBy shifts the view by d screen pixels.
func (s *Session) PanBy(d plan.Point) viewport.Viewport {
	s.lock()
	defer s.mu.Unlock()
	s.state = s.state.WithViewport(s.state.Viewport.PanBy(d), s.cfg.Zoom)
	return s.state.Viewport
}

// Fit zooms the current page to a screen of the given size.
func (s *Session) Fit(screenW, screenH float64) viewport.Viewport {
	s.lock()
	defer s.mu.Unlock()
	s.state = s.state.WithViewport(viewport.Fit(s.state.Page, screenW, screenH, s.cfg.Zoom), s.cfg.Zoom)
	return s.state.Viewport
}

// UpdateMetadata writes attrs to the catalog and then merges them locally.
func (s *Session) UpdateMetadata(ctx context.Context, id string, attrs map[string]any) error {
	if err := s.claim(id); err != nil {
		return err
	}
	err := s.rep.Do(ctx, "updateAnnotationMetadata", func(ctx context.Context) error {
		return s.store.UpdateAnnotationMetadata(ctx, id, attrs)
	})
	s.release(id, func() {
		if err == nil {
			s.annotations.SetMetadata(id, attrs)
		}
	})
	return err
}

// Delete removes an annotation from the catalog and then locally. Entities
// are left alone; what happens to them is the catalog's policy.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.claim(id); err != nil {
		return err
	}
	err := s.rep.Do(ctx, "deleteAnnotation", func(ctx context.Context) error {
		return s.store.DeleteAnnotation(ctx, id)
	})
	s.release(id, func() {
		if err == nil {
			s.annotations.Remove(id)
			if s.state.Highlight == id {
				s.state.Highlight = ""
			}
		}
	})
	return err
}

// claim marks id as having a write in flight.
func (s *Session) claim(id string) error {
	s.lock()
	defer s.mu.Unlock()
	if _, ok := s.annotations.Get(id); !ok {
		return fmt.Errorf("annotation %s: %w", id, plan.ErrNotFound)
	}
	busy := s.inflight[id] ||
		((s.state.Mode == ModeMoving || s.state.Mode == ModeResizing) && s.state.TargetID == id)
	if busy {
		return fmt.Errorf("annotation %s: %w", id, plan.ErrBusy)
	}
	s.inflight[id] = true
	return nil
}

func (s *Session) release(id string, apply func()) {
	s.lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
	apply()
}

// parentRefLocked derives the parent for a new annotation of type t from the
// selection: the level above for entities, the deepest selection for notes.
func (s *Session) parentRefLocked(t plan.AnnotationType) string {
	if t == plan.TypeNote {
		_, id := s.selection.Deepest()
		return id
	}
	if pt, ok := t.ParentType(); ok {
		return s.selection.At(pt)
	}
	return ""
}

func (s *Session) surfaceDuplicateLocked(res dupguard.Result) []func() {
	existing := ""
	if res.Existing != nil {
		existing = res.Existing.ID
	}
	s.state = s.state.RejectDuplicate(existing)
	if res.Entity == nil {
		return nil
	}
	old := s.selection
	s.selection = hierarchy.Reduce(old, hierarchy.Event{Level: res.Entity.Type, EntityID: res.Entity.ID}, s.graph)
	return s.selectionNoticeLocked(old)
}

func (s *Session) selectionNoticeLocked(old plan.Selection) []func() {
	h := s.hooks.OnSelectionChanged
	if h == nil || old == s.selection {
		return nil
	}
	sel := s.selection
	return []func(){func() { h(sel) }}
}

func (s *Session) resolveQuietly(ctx context.Context, id string) {
	if err := s.loader.Resolve(ctx, id); err != nil {
		s.log.Debug("ancestry not resolved", "entity_id", id, "error", err)
	}
}

func fire(notices []func()) {
	for _, fn := range notices {
		fn()
	}
}
