package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/planmark/internal/pagegate"
	"github.com/dgallion1/planmark/internal/plan"
)

type pageView struct {
	plan.Page
	RealWidth    float64               `json:"realWidth"`
	RealHeight   float64               `json:"realHeight"`
	AllowedTypes []plan.AnnotationType `json:"allowedTypes"`
}

func newPageView(p plan.Page) pageView {
	w, h := p.RealSize(p.Bounds())
	return pageView{Page: p, RealWidth: w, RealHeight: h, AllowedTypes: pagegate.AllowedTypes(p.PageType)}
}

// handleListPages lists the pages of a document in ordinal order.
func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	pages, err := s.docs.ListPages(r.Context(), docID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	out := make([]pageView, 0, len(pages))
	for _, p := range pages {
		out = append(out, newPageView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": docID, "pages": out})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.docs.GetPage(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newPageView(p))
}

// handleSetPageType reclassifies a page. Open sessions pick the new type up
// on their next page load.
func (s *Server) handleSetPageType(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PageType string `json:"pageType"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	pt, err := plan.ParsePageType(body.PageType)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "pageID")
	if err := s.docs.SetPageType(r.Context(), id, pt); err != nil {
		writeError(w, err, nil)
		return
	}
	p, err := s.docs.GetPage(r.Context(), id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	s.log.Info("page type changed", "page_id", id, "page_type", pt)
	writeJSON(w, http.StatusOK, newPageView(p))
}
