package api

import (
	"net/http"
	"strconv"
	"time"

	"alrt/internal/types"
)

// defaultSnapshotLimit bounds GET /targets/{id}/analytics when no limit
// query parameter is given.
const defaultSnapshotLimit = 30

// defaultCalendarDays is the calendar window returned when no range is given.
const defaultCalendarDays = 90

// handleCalendar handles GET /targets/{id}/calendar. Optional from/to query
// parameters (YYYY-MM-DD) bound the range; the default is the last 90 days.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	account, err := s.ownedAccount(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	now := s.clock.Now()
	to := now
	from := now.AddDate(0, 0, -defaultCalendarDays)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload,
				"from must be a YYYY-MM-DD date", nil))
			return
		}
		from = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload,
				"to must be a YYYY-MM-DD date", nil))
			return
		}
		to = parsed
	}
	if to.Before(from) {
		Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload,
			"to must not precede from", nil))
		return
	}

	entries, err := s.analytics.ListCalendar(r.Context(), account.ID, from, to)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: entries})
}

// handleAnalytics handles GET /targets/{id}/analytics, returning snapshot
// history newest-first. An optional limit query parameter (1 to 365) caps
// the number of rows.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	account, err := s.ownedAccount(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	limit := defaultSnapshotLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 365 {
			Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload,
				"limit must be an integer between 1 and 365", nil))
			return
		}
		limit = parsed
	}

	snapshots, err := s.analytics.ListSnapshots(r.Context(), account.ID, limit)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: snapshots})
}
