package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/talkturns/internal/metrics"
	"github.com/dgallion1/talkturns/internal/segment"
	"github.com/dgallion1/talkturns/internal/talk"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type segmentRequest struct {
	PageID    string `json:"page_id" validate:"required,max=64"`
	UnifiedID string `json:"unified_id" validate:"max=64"`
	Title     string `json:"title" validate:"max=512"`
	Language  string `json:"lang" validate:"required,min=2,max=16"`
	Text      string `json:"text"`
}

type segmentResponse struct {
	Turns  []talk.Turn        `json:"turns"`
	Stats  segment.Stats      `json:"stats"`
	Issues []talk.MarkupIssue `json:"issues"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"languages": s.orchestrator.Segmenter().Library().Languages(),
		"default":   s.cfg.Language,
	})
}

// handleSegment segments a single page synchronously.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
			jsonError(w, "invalid page: "+strings.Join(fields, ", "), http.StatusBadRequest)
			return
		}
		jsonError(w, "invalid page: "+err.Error(), http.StatusBadRequest)
		return
	}

	page := talk.Page{
		ID:        req.PageID,
		UnifiedID: req.UnifiedID,
		Title:     req.Title,
		Language:  talk.Language(req.Language),
		Text:      req.Text,
	}
	start := time.Now()
	res, err := s.orchestrator.Segmenter().SegmentPage(page)
	elapsed := time.Since(start)

	var cfgErr *talk.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.observe(page.Language, metrics.OutcomeFailed, res, elapsed)
		s.log.Error("segment failed", "page_id", page.ID, "error", err)
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	outcome := metrics.OutcomeOK
	if len(res.Turns) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	s.observe(page.Language, outcome, res, elapsed)

	if res.Turns == nil {
		res.Turns = []talk.Turn{}
	}
	if res.Issues == nil {
		res.Issues = []talk.MarkupIssue{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(segmentResponse{Turns: res.Turns, Stats: res.Stats, Issues: res.Issues})
}

func (s *Server) observe(lang talk.Language, outcome string, res segment.Result, elapsed time.Duration) {
	s.orchestrator.Latency().Record(elapsed)
	if s.metrics != nil {
		s.metrics.ObservePage(string(lang), outcome, len(res.Turns), res.Stats, elapsed)
	}
}
