package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alrt/internal/types"
)

func TestListAlertsExcludesDismissedByDefault(t *testing.T) {
	env := newTestEnv()
	env.alerts.alerts = []*types.InactivityAlert{
		{ID: "al-1", UserID: "user-1", DaysInactive: 4},
		{ID: "al-2", UserID: "user-1", DaysInactive: 6, IsDismissed: true},
		{ID: "al-3", UserID: "user-2", DaysInactive: 3},
	}

	rec := env.do(t, http.MethodGet, "/alerts/", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"al-1"`)
	assert.NotContains(t, rec.Body.String(), `"al-2"`)
	assert.NotContains(t, rec.Body.String(), `"al-3"`)
}

func TestListAlertsCanIncludeDismissed(t *testing.T) {
	env := newTestEnv()
	env.alerts.alerts = []*types.InactivityAlert{
		{ID: "al-2", UserID: "user-1", DaysInactive: 6, IsDismissed: true},
	}

	rec := env.do(t, http.MethodGet, "/alerts/?include_dismissed=true", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"al-2"`)
}

func TestReadAndDismissAlert(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/alerts/al-1/read", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/alerts/al-1/dismiss", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"al-1"}, env.alerts.read)
	assert.Equal(t, []string{"al-1"}, env.alerts.dismissed)
}

func TestDashboardAggregatesSignals(t *testing.T) {
	env := newTestEnv()
	env.accounts.byID["acc-1"] = &types.TrackedAccount{
		ID: "acc-1", UserID: "user-1", StatusSignal: types.SignalRed,
		AdsStatus: types.AdsActive,
	}
	env.accounts.byID["acc-2"] = &types.TrackedAccount{
		ID: "acc-2", UserID: "user-1", StatusSignal: types.SignalYellow,
	}
	env.accounts.byID["acc-3"] = &types.TrackedAccount{
		ID: "acc-3", UserID: "user-1", StatusSignal: types.SignalGreen,
	}
	env.scheduler.depths = map[types.TaskKind]int{
		types.TaskProfileRefresh: 7,
		types.TaskAdsCheck:       0,
		types.TaskStoriesRefresh: 1,
	}

	rec := env.do(t, http.MethodGet, "/dashboard", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"total_accounts":3`)
	assert.Contains(t, body, `"red_count":1`)
	assert.Contains(t, body, `"yellow_count":1`)
	assert.Contains(t, body, `"green_count":1`)
	assert.Contains(t, body, `"ads_active":1`)
	assert.Contains(t, body, `"profile_refresh":7`)
}

func TestQueueEndpointReportsDepths(t *testing.T) {
	env := newTestEnv()
	env.scheduler.depths = map[types.TaskKind]int{
		types.TaskProfileRefresh: 2,
		types.TaskAdsCheck:       3,
		types.TaskStoriesRefresh: 4,
	}

	rec := env.do(t, http.MethodGet, "/queue", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"ads_check":3`)
	assert.Contains(t, body, `"stories_refresh":4`)
}

func TestCalendarValidatesRange(t *testing.T) {
	env := newTestEnv()
	env.accounts.byID["acc-1"] = &types.TrackedAccount{ID: "acc-1", UserID: "user-1"}

	rec := env.do(t, http.MethodGet,
		"/targets/acc-1/calendar?from=2025-06-10&to=2025-06-01", "", true)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet,
		"/targets/acc-1/calendar?from=not-a-date", "", true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarQueriesRequestedWindow(t *testing.T) {
	env := newTestEnv()
	env.accounts.byID["acc-1"] = &types.TrackedAccount{ID: "acc-1", UserID: "user-1"}

	rec := env.do(t, http.MethodGet,
		"/targets/acc-1/calendar?from=2025-06-01&to=2025-06-30", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-06-01", env.analytics.gotFrom.Format("2006-01-02"))
	assert.Equal(t, "2025-06-30", env.analytics.gotTo.Format("2006-01-02"))
}

func TestCalendarDefaultWindowEndsAtCurrentTime(t *testing.T) {
	env := newTestEnv()
	env.accounts.byID["acc-1"] = &types.TrackedAccount{ID: "acc-1", UserID: "user-1"}

	rec := env.do(t, http.MethodGet, "/targets/acc-1/calendar", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.analytics.gotTo.Equal(env.now))
	assert.True(t, env.analytics.gotFrom.Equal(env.now.AddDate(0, 0, -90)))
}

func TestAnalyticsLimitValidation(t *testing.T) {
	env := newTestEnv()
	env.accounts.byID["acc-1"] = &types.TrackedAccount{ID: "acc-1", UserID: "user-1"}

	rec := env.do(t, http.MethodGet, "/targets/acc-1/analytics?limit=0", "", true)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/targets/acc-1/analytics?limit=400", "", true)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/targets/acc-1/analytics?limit=10", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, env.analytics.gotLimit)
}

func TestAnalyticsDefaultsLimit(t *testing.T) {
	env := newTestEnv()
	env.accounts.byID["acc-1"] = &types.TrackedAccount{ID: "acc-1", UserID: "user-1"}

	rec := env.do(t, http.MethodGet, "/targets/acc-1/analytics", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultSnapshotLimit, env.analytics.gotLimit)
}

func TestAnalyticsForForeignAccountIs404(t *testing.T) {
	env := newTestEnv()
	env.accounts.byID["acc-1"] = &types.TrackedAccount{ID: "acc-1", UserID: "user-2"}

	rec := env.do(t, http.MethodGet, "/targets/acc-1/analytics", "", true)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
