package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alrt/internal/config"
	"alrt/internal/db"
	"alrt/internal/types"
)

// --- Mocks ---

type mockAuth struct {
	user      *types.User
	token     string
	loginErr  error
	authErr   error
	registers []string
}

func (m *mockAuth) Register(_ context.Context, username, _ string) (*types.User, error) {
	m.registers = append(m.registers, username)
	return m.user, nil
}

func (m *mockAuth) Login(_ context.Context, _, _ string) (string, *types.User, error) {
	if m.loginErr != nil {
		return "", nil, m.loginErr
	}
	return m.token, m.user, nil
}

func (m *mockAuth) Authenticate(_ context.Context, token string) (*types.User, error) {
	if m.authErr != nil {
		return nil, m.authErr
	}
	if token != m.token {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid or expired token", nil)
	}
	return m.user, nil
}

type mockAccounts struct {
	byID      map[string]*types.TrackedAccount
	count     int
	createErr error
	created   []string
	deleted   []string
	updates   []db.MetadataUpdate
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{byID: make(map[string]*types.TrackedAccount)}
}

func (m *mockAccounts) Create(_ context.Context, userID, handle string) (*types.TrackedAccount, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, a := range m.byID {
		if a.UserID == userID && a.Handle == handle {
			return nil, types.NewAppError(types.ErrCodeConflictTracked, "already tracked", nil)
		}
	}
	account := &types.TrackedAccount{
		ID:           "acc-" + handle,
		UserID:       userID,
		Handle:       handle,
		Tracked:      true,
		CheckStatus:  types.CheckPending,
		AdsStatus:    types.AdsUnknown,
		StatusSignal: types.SignalRed,
		LeadStatus:   types.LeadNew,
	}
	m.byID[account.ID] = account
	m.created = append(m.created, handle)
	m.count++
	return account, nil
}

func (m *mockAccounts) GetByIDForUser(_ context.Context, id, userID string) (*types.TrackedAccount, error) {
	account, ok := m.byID[id]
	if !ok || account.UserID != userID {
		return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}
	return account, nil
}

func (m *mockAccounts) ListByUser(_ context.Context, userID string) ([]*types.TrackedAccount, error) {
	var out []*types.TrackedAccount
	for _, a := range m.byID {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAccounts) CountByUser(_ context.Context, _ string) (int, error) {
	return m.count, nil
}

func (m *mockAccounts) Delete(_ context.Context, id, userID string) error {
	account, ok := m.byID[id]
	if !ok || account.UserID != userID {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}
	delete(m.byID, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockAccounts) UpdateMetadata(_ context.Context, id, userID string, upd db.MetadataUpdate) error {
	account, ok := m.byID[id]
	if !ok || account.UserID != userID {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}
	m.updates = append(m.updates, upd)
	if upd.CustomLabel != nil {
		account.CustomLabel = *upd.CustomLabel
	}
	if upd.Notes != nil {
		account.Notes = *upd.Notes
	}
	if upd.LeadStatus != nil {
		account.LeadStatus = *upd.LeadStatus
	}
	if upd.FacebookPageURL != nil {
		account.FacebookPageURL = *upd.FacebookPageURL
	}
	return nil
}

type mockAlerts struct {
	alerts    []*types.InactivityAlert
	read      []string
	dismissed []string
}

func (m *mockAlerts) ListByUser(_ context.Context, userID string, includeDismissed bool) ([]*types.InactivityAlert, error) {
	var out []*types.InactivityAlert
	for _, a := range m.alerts {
		if a.UserID != userID {
			continue
		}
		if a.IsDismissed && !includeDismissed {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *mockAlerts) MarkRead(_ context.Context, id, _ string) error {
	m.read = append(m.read, id)
	return nil
}

func (m *mockAlerts) Dismiss(_ context.Context, id, _ string) error {
	m.dismissed = append(m.dismissed, id)
	return nil
}

type mockAnalyticsStore struct {
	snapshots []*types.AnalyticsSnapshot
	entries   []*types.ActivityCalendarEntry
	gotLimit  int
	gotFrom   time.Time
	gotTo     time.Time
}

func (m *mockAnalyticsStore) ListSnapshots(_ context.Context, _ string, limit int) ([]*types.AnalyticsSnapshot, error) {
	m.gotLimit = limit
	return m.snapshots, nil
}

func (m *mockAnalyticsStore) ListCalendar(_ context.Context, _ string, from, to time.Time) ([]*types.ActivityCalendarEntry, error) {
	m.gotFrom, m.gotTo = from, to
	return m.entries, nil
}

type mockTaskScheduler struct {
	profileIDs []string
	adsIDs     []string
	enqueueErr error
	depths     map[types.TaskKind]int
}

func (m *mockTaskScheduler) EnqueueProfileRefresh(_ context.Context, account *types.TrackedAccount) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.profileIDs = append(m.profileIDs, account.ID)
	return nil
}

func (m *mockTaskScheduler) EnqueueAdsCheck(_ context.Context, account *types.TrackedAccount) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.adsIDs = append(m.adsIDs, account.ID)
	return nil
}

func (m *mockTaskScheduler) GetQueueDepths() map[types.TaskKind]int {
	if m.depths != nil {
		return m.depths
	}
	return map[types.TaskKind]int{
		types.TaskProfileRefresh: 0,
		types.TaskAdsCheck:       0,
		types.TaskStoriesRefresh: 0,
	}
}

// --- Helpers ---

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type testEnv struct {
	server    *Server
	auth      *mockAuth
	accounts  *mockAccounts
	alerts    *mockAlerts
	analytics *mockAnalyticsStore
	scheduler *mockTaskScheduler
	now       time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		auth: &mockAuth{
			user: &types.User{
				ID:       "user-1",
				Username: "alice",
				Plan:     types.PlanBronze,
			},
			token: "valid-token",
		},
		accounts:  newMockAccounts(),
		alerts:    &mockAlerts{},
		analytics: &mockAnalyticsStore{},
		scheduler: &mockTaskScheduler{},
		now:       time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC),
	}
	env.server = NewServer(ServerConfig{
		Plans: config.PlanConfig{
			MaxAccountsBronze: 2,
			MaxAccountsSilver: 5,
			MaxAccountsGold:   10,
		},
		Auth:      env.auth,
		Accounts:  env.accounts,
		Alerts:    env.alerts,
		Analytics: env.analytics,
		Scheduler: env.scheduler,
		Clock:     fixedClock{now: env.now},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer valid-token")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

// --- Tests ---

func TestHealthEndpointIsPublic(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/healthz", "", false)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMissingTokenIsRejected(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/targets/", "", false)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthTokenMissing), decodeError(t, rec).Code)
}

func TestInvalidTokenIsRejected(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/targets/", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthTokenInvalid), decodeError(t, rec).Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "trace-123")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "trace-123", rec.Header().Get("X-Request-Id"))
}

func TestRequestIDIsGeneratedWhenAbsent(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/healthz", "", false)

	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRegisterCreatesUser(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/auth/register",
		`{"username":"alice","password":"correct horse"}`, false)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"alice"}, env.auth.registers)
}

func TestRegisterRejectsMalformedBody(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/auth/register", `{"username":`, false)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationBadPayload), decodeError(t, rec).Code)
}

func TestTokenReturnsBearerToken(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/auth/token",
		`{"username":"alice","password":"correct horse"}`, false)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data tokenResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "valid-token", resp.Data.AccessToken)
	assert.Equal(t, "bearer", resp.Data.TokenType)
}

func TestTokenMapsInvalidCredentials(t *testing.T) {
	env := newTestEnv()
	env.auth.loginErr = types.NewAppError(types.ErrCodeAuthInvalidCreds,
		"invalid username or password", nil)

	rec := env.do(t, http.MethodPost, "/auth/token",
		`{"username":"alice","password":"wrong"}`, false)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthInvalidCreds), decodeError(t, rec).Code)
}

func TestMeReturnsPlanLimit(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/me", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"max_accounts":2`)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
}

func TestPanicIsRecovered(t *testing.T) {
	env := newTestEnv()
	// A nil scheduler makes GET /queue panic inside the handler.
	env.server.scheduler = nil

	rec := env.do(t, http.MethodGet, "/queue", "", true)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeInternalUnexpected))
}
