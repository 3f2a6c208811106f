package api

import (
	"net/http"
)

func (s *Server) handleCatalogStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"backend":     s.cfg.CatalogBackend,
		"sessions":    s.sessions.Len(),
		"queue_depth": s.orchestrator.QueueDepth(),
	}
	if s.stats != nil {
		body["latency"] = s.stats.Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}
