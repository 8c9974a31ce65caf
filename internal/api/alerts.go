package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListAlerts handles GET /alerts. Dismissed alerts are excluded unless
// ?include_dismissed=true.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	includeDismissed := r.URL.Query().Get("include_dismissed") == "true"

	alerts, err := s.alerts.ListByUser(r.Context(), userID, includeDismissed)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: alerts})
}

// handleReadAlert handles POST /alerts/{id}/read.
func (s *Server) handleReadAlert(w http.ResponseWriter, r *http.Request) {
	s.flagAlert(w, r, s.alerts.MarkRead)
}

// handleDismissAlert handles POST /alerts/{id}/dismiss.
func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	s.flagAlert(w, r, s.alerts.Dismiss)
}

func (s *Server) flagAlert(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, userID string) error) {
	userID, err := userIDFrom(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	if err := fn(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"status": "ok"}})
}
