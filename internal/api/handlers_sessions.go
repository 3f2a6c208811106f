package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/planmark/internal/editor"
	"github.com/dgallion1/planmark/internal/overlay"
	"github.com/dgallion1/planmark/internal/plan"
)

type pointBody struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p pointBody) point() plan.Point { return plan.Point{X: p.X, Y: p.Y} }

// session resolves the session in the URL or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	sess := s.sessions.Get(id)
	if sess == nil {
		s.mailboxes.remove(id)
		jsonError(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PageID string `json:"pageId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	if n := s.mailboxes.prune(func(id string) bool { return s.sessions.Get(id) != nil }); n > 0 {
		s.log.Debug("mailboxes pruned", "count", n)
	}
	box := &mailbox{}
	sess := s.sessions.Open(box.hooks())
	s.mailboxes.put(sess.ID(), box)

	if body.PageID != "" {
		if err := sess.LoadPage(r.Context(), body.PageID); err != nil {
			s.sessions.Close(sess.ID())
			s.mailboxes.remove(sess.ID())
			writeError(w, err, nil)
			return
		}
	}
	s.log.Info("session opened", "session_id", sess.ID(), "page_id", body.PageID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID(),
		"view":       sess.View(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	s.mailboxes.remove(id)
	if !s.sessions.Close(id) {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		PageID string `json:"pageId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.PageID == "" {
		jsonError(w, "pageId is required", http.StatusBadRequest)
		return
	}
	if err := sess.LoadPage(r.Context(), body.PageID); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Type  string `json:"type"`
		Label string `json:"label"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	t, err := plan.ParseAnnotationType(body.Type)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := sess.SelectType(t, body.Label); err != nil {
		writeError(w, err, map[string]any{"state": sess.State()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": sess.State()})
}

func (s *Server) handlePointerDown(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var p pointBody
	if !decodeJSON(w, r, &p) {
		return
	}
	if err := sess.PointerDown(p.point()); err != nil {
		writeError(w, err, map[string]any{"state": sess.State()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": sess.State()})
}

func (s *Server) handlePointerMove(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var p pointBody
	if !decodeJSON(w, r, &p) {
		return
	}
	sess.PointerMove(p.point())
	writeJSON(w, http.StatusOK, map[string]any{"state": sess.State()})
}

func (s *Server) handlePointerUp(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.PointerUp(r.Context()); err != nil {
		writeError(w, err, map[string]any{"view": sess.View()})
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleEscape(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Escape(); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": sess.State()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Cancel(); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": sess.State()})
}

func (s *Server) handleModal(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Open bool `json:"open"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := sess.SetModal(body.Open); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": sess.State()})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req editor.CommitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := sess.Commit(r.Context(), req)
	if err != nil {
		writeError(w, err, map[string]any{"view": sess.View()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"annotation": a,
		"view":       sess.View(),
	})
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Zoom   float64    `json:"zoom"`
		Anchor *pointBody `json:"anchor,omitempty"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Zoom <= 0 {
		jsonError(w, "zoom must be positive", http.StatusBadRequest)
		return
	}
	if body.Anchor != nil {
		writeJSON(w, http.StatusOK, sess.ZoomAround(body.Anchor.point(), body.Zoom))
		return
	}
	writeJSON(w, http.StatusOK, sess.SetZoom(body.Zoom))
}

func (s *Server) handlePan(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, sess.PanBy(plan.Point{X: body.DX, Y: body.DY}))
}

func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Width <= 0 || body.Height <= 0 {
		jsonError(w, "width and height must be positive", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, sess.Fit(body.Width, body.Height))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Level    string `json:"level"`
		EntityID string `json:"entityId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	level, err := parseEntityLevel(body.Level)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sel, err := sess.SelectEntity(r.Context(), level, body.EntityID)
	if err != nil {
		writeError(w, err, map[string]any{"selection": sel})
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	level, err := parseEntityLevel(r.URL.Query().Get("level"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	children, err := sess.Children(r.Context(), level)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if children == nil {
		children = []plan.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"level": level, "entities": children})
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Attrs map[string]any `json:"attrs"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "annotationID")
	if err := sess.UpdateMetadata(r.Context(), id, body.Attrs); err != nil {
		writeError(w, err, nil)
		return
	}
	a, _ := sess.Annotations().Get(id)
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Delete(r.Context(), chi.URLParam(r, "annotationID")); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": sess.Reporter().History()})
}

func (s *Server) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Reporter().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	box := s.mailboxes.get(sess.ID())
	if box == nil {
		writeJSON(w, http.StatusOK, map[string]any{"notifications": []Notification{}, "dropped": 0})
		return
	}
	notes, dropped := box.drain()
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notes, "dropped": dropped})
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	size := overlay.Size{Width: 1024, Height: 768}
	for key, dst := range map[string]*float64{"width": &size.Width, "height": &size.Height} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			jsonError(w, fmt.Sprintf("invalid %s %q", key, raw), http.StatusBadRequest)
			return
		}
		*dst = v
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := overlay.Render(w, sess.View(), size); err != nil {
		s.log.Error("overlay render failed", "session_id", sess.ID(), "error", err)
	}
}

func parseEntityLevel(s string) (plan.AnnotationType, error) {
	t, err := plan.ParseAnnotationType(s)
	if err != nil {
		return "", err
	}
	if !t.IsEntity() {
		return "", fmt.Errorf("%s is not a hierarchy level", t)
	}
	return t, nil
}
