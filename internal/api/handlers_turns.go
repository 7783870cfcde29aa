package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/talkturns/internal/talk"
	"github.com/go-chi/chi/v5"
)

// handleGetPageTurns returns the turns stored in pathstore for one page.
func (s *Server) handleGetPageTurns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "pathstore not configured", http.StatusServiceUnavailable)
		return
	}
	lang := talk.Language(chi.URLParam(r, "lang"))
	pageID := chi.URLParam(r, "pageID")

	node, err := s.store.ReadPage(r.Context(), lang, pageID)
	if err != nil {
		jsonError(w, "failed to read page: "+err.Error(), http.StatusBadGateway)
		return
	}
	if node == nil {
		jsonError(w, "page not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(node)
}

// handleResetLanguage deletes every stored page of one language.
func (s *Server) handleResetLanguage(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "pathstore not configured", http.StatusServiceUnavailable)
		return
	}
	lang := talk.Language(chi.URLParam(r, "lang"))
	if err := s.store.Reset(r.Context(), lang); err != nil {
		jsonError(w, "failed to delete turns: "+err.Error(), http.StatusBadGateway)
		return
	}
	s.log.Info("turns deleted", "lang", lang)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"deleted": true, "lang": lang})
}
