package api

import (
	"net/http"

	"alrt/internal/types"
)

type dashboardStats struct {
	TotalAccounts int                    `json:"total_accounts"`
	RedCount      int                    `json:"red_count"`
	YellowCount   int                    `json:"yellow_count"`
	GreenCount    int                    `json:"green_count"`
	AdsActive     int                    `json:"ads_active"`
	QueueDepths   map[types.TaskKind]int `json:"queue_depths"`
}

type dashboardResponse struct {
	Stats    dashboardStats          `json:"stats"`
	Accounts []*types.TrackedAccount `json:"accounts"`
}

// handleDashboard handles GET /dashboard. It returns the user's accounts
// together with aggregate signal counts and the live queue depths.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	accounts, err := s.accounts.ListByUser(r.Context(), userID)
	if err != nil {
		Error(w, r, err)
		return
	}

	stats := dashboardStats{
		TotalAccounts: len(accounts),
		QueueDepths:   s.scheduler.GetQueueDepths(),
	}
	for _, a := range accounts {
		switch a.StatusSignal {
		case types.SignalRed:
			stats.RedCount++
		case types.SignalYellow:
			stats.YellowCount++
		case types.SignalGreen:
			stats.GreenCount++
		}
		if a.AdsStatus == types.AdsActive {
			stats.AdsActive++
		}
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: dashboardResponse{
		Stats:    stats,
		Accounts: accounts,
	}})
}

// handleQueueDepths handles GET /queue.
func (s *Server) handleQueueDepths(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: s.scheduler.GetQueueDepths()})
}
