package api

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"alrt/internal/db"
	"alrt/internal/scrape"
	"alrt/internal/types"
)

// handlePattern validates profile handles: lowercase letters, digits, dots,
// and underscores, 1 to 30 characters.
var handlePattern = regexp.MustCompile(`^[a-z0-9._]{1,30}$`)

// maxBulkRows caps the number of rows accepted by a single CSV import.
const maxBulkRows = 500

type createTargetRequest struct {
	Handle string `json:"handle"`
}

// normalizeHandle lowercases a handle and strips a leading @ and surrounding
// whitespace, so "@Some.Handle " and "some.handle" name the same profile.
func normalizeHandle(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(h)
}

func validateHandle(handle string) error {
	if handle == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			"handle is required", nil)
	}
	if !handlePattern.MatchString(handle) {
		return types.NewAppError(types.ErrCodeValidationInvalidHandle,
			"handle may only contain lowercase letters, digits, dots, and underscores (max 30 chars)", nil)
	}
	return nil
}

// checkPlanLimit rejects the request when the user is already at their
// tier's tracked-account cap. newCount is how many accounts the request
// would add.
func (s *Server) checkPlanLimit(r *http.Request, userID string, plan types.PlanTier, newCount int) error {
	current, err := s.accounts.CountByUser(r.Context(), userID)
	if err != nil {
		return err
	}
	limit := s.plans.MaxAccounts(string(plan))
	if current+newCount > limit {
		appErr := types.NewAppError(types.ErrCodeLimitAccounts,
			"tracked account limit reached for plan", nil)
		appErr.Details = map[string]any{"limit": limit, "current": current}
		return appErr
	}
	return nil
}

// planFor resolves the requesting user's plan tier. The auth middleware
// already validated the token, so this is a context-free lookup by ID.
func (s *Server) planFor(r *http.Request) (string, types.PlanTier, error) {
	userID, err := userIDFrom(r)
	if err != nil {
		return "", "", err
	}
	token := extractBearerToken(r.Header.Get("Authorization"))
	user, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		return "", "", err
	}
	return userID, user.Plan, nil
}

// handleCreateTarget handles POST /targets. On success the new account is
// immediately queued for a profile refresh; a full queue is tolerated (the
// periodic trigger will pick the account up later).
func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	userID, plan, err := s.planFor(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	var req createTargetRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	handle := normalizeHandle(req.Handle)
	if err := validateHandle(handle); err != nil {
		Error(w, r, err)
		return
	}

	if err := s.checkPlanLimit(r, userID, plan, 1); err != nil {
		Error(w, r, err)
		return
	}

	account, err := s.accounts.Create(r.Context(), userID, handle)
	if err != nil {
		Error(w, r, err)
		return
	}

	if err := s.scheduler.EnqueueProfileRefresh(r.Context(), account); err != nil {
		s.logger.WarnContext(r.Context(), "initial refresh not queued",
			"account_id", account.ID, "error", err)
	}

	JSON(w, r, http.StatusCreated, APIResponse{Data: account})
}

type bulkImportResult struct {
	Added   []*types.TrackedAccount `json:"added"`
	Skipped []bulkRowError          `json:"skipped,omitempty"`
}

type bulkRowError struct {
	Row    int    `json:"row"`
	Handle string `json:"handle,omitempty"`
	Reason string `json:"reason"`
}

// handleBulkImport handles POST /targets/bulk. The body is a CSV whose first
// column is the handle; an optional header row named "handle" or "username"
// is skipped. Rows are processed independently: invalid or duplicate rows
// are reported per-row and do not abort the import.
func (s *Server) handleBulkImport(w http.ResponseWriter, r *http.Request) {
	userID, plan, err := s.planFor(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	reader := csv.NewReader(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	reader.FieldsPerRecord = -1

	result := bulkImportResult{Added: []*types.TrackedAccount{}}
	seen := make(map[string]bool)
	row := 0

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload,
				"malformed CSV in request body", err))
			return
		}
		row++
		if row > maxBulkRows {
			Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload,
				"CSV import is limited to 500 rows", nil))
			return
		}
		if len(record) == 0 {
			continue
		}

		handle := normalizeHandle(record[0])
		if row == 1 && (handle == "handle" || handle == "username") {
			continue
		}

		if err := validateHandle(handle); err != nil {
			result.Skipped = append(result.Skipped, bulkRowError{
				Row: row, Handle: record[0], Reason: "invalid handle",
			})
			continue
		}
		if seen[handle] {
			result.Skipped = append(result.Skipped, bulkRowError{
				Row: row, Handle: handle, Reason: "duplicate row",
			})
			continue
		}
		seen[handle] = true

		if err := s.checkPlanLimit(r, userID, plan, 1); err != nil {
			result.Skipped = append(result.Skipped, bulkRowError{
				Row: row, Handle: handle, Reason: "account limit reached",
			})
			continue
		}

		account, err := s.accounts.Create(r.Context(), userID, handle)
		if err != nil {
			reason := "could not add"
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictTracked {
				reason = "already tracked"
			}
			result.Skipped = append(result.Skipped, bulkRowError{
				Row: row, Handle: handle, Reason: reason,
			})
			continue
		}

		if err := s.scheduler.EnqueueProfileRefresh(r.Context(), account); err != nil {
			s.logger.WarnContext(r.Context(), "initial refresh not queued",
				"account_id", account.ID, "error", err)
		}
		result.Added = append(result.Added, account)
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: result})
}

// handleListTargets handles GET /targets.
func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
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

	JSON(w, r, http.StatusOK, APIResponse{Data: accounts})
}

// handleGetTarget handles GET /targets/{id}.
func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	account, err := s.ownedAccount(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: account})
}

// handleDeleteTarget handles DELETE /targets/{id}.
func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	if err := s.accounts.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type updateTargetRequest struct {
	CustomLabel     *string `json:"custom_label"`
	Notes           *string `json:"notes"`
	LeadStatus      *string `json:"lead_status"`
	FacebookPageURL *string `json:"facebook_page_url"`
}

// handleUpdateTarget handles PATCH /targets/{id}. Only fields present in the
// body are updated. Facebook page URLs are normalized to the canonical host
// before storage so the ads worker always sees one form.
func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	var req updateTargetRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	upd := db.MetadataUpdate{
		CustomLabel: req.CustomLabel,
		Notes:       req.Notes,
	}

	if req.LeadStatus != nil {
		status := types.LeadStatus(strings.ToUpper(*req.LeadStatus))
		if !status.Valid() {
			Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload,
				"lead_status must be one of NEW_LEAD, CONTACTED, NEGOTIATING, WON, LOST", nil))
			return
		}
		upd.LeadStatus = &status
	}

	if req.FacebookPageURL != nil {
		normalized, err := normalizePageURL(*req.FacebookPageURL)
		if err != nil {
			Error(w, r, err)
			return
		}
		upd.FacebookPageURL = &normalized
	}

	id := chi.URLParam(r, "id")
	if err := s.accounts.UpdateMetadata(r.Context(), id, userID, upd); err != nil {
		Error(w, r, err)
		return
	}

	account, err := s.accounts.GetByIDForUser(r.Context(), id, userID)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: account})
}

// normalizePageURL validates a Facebook page URL and rewrites regional hosts
// to the canonical www.facebook.com. An empty string clears the link.
func normalizePageURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", types.NewAppError(types.ErrCodeValidationInvalidURL,
			"facebook_page_url must be an absolute URL", nil)
	}
	if !strings.HasSuffix(u.Hostname(), "facebook.com") {
		return "", types.NewAppError(types.ErrCodeValidationInvalidURL,
			"facebook_page_url must be a facebook.com URL", nil)
	}

	return scrape.NormalizeFacebookURL(trimmed), nil
}

// handleRefreshTarget handles POST /targets/{id}/refresh. It queues a
// profile refresh, plus an ads check when the account has a linked page.
func (s *Server) handleRefreshTarget(w http.ResponseWriter, r *http.Request) {
	account, err := s.ownedAccount(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	if err := s.scheduler.EnqueueProfileRefresh(r.Context(), account); err != nil {
		Error(w, r, err)
		return
	}
	if account.FacebookPageURL != "" {
		if err := s.scheduler.EnqueueAdsCheck(r.Context(), account); err != nil {
			Error(w, r, err)
			return
		}
	}

	JSON(w, r, http.StatusAccepted, APIResponse{Data: map[string]string{
		"status": "queued",
	}})
}

// handleAdsCheck handles POST /targets/{id}/ads-check.
func (s *Server) handleAdsCheck(w http.ResponseWriter, r *http.Request) {
	account, err := s.ownedAccount(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	if account.FacebookPageURL == "" {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"account has no facebook_page_url to check", nil))
		return
	}

	if err := s.scheduler.EnqueueAdsCheck(r.Context(), account); err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusAccepted, APIResponse{Data: map[string]string{
		"status": "queued",
	}})
}

// ownedAccount loads the {id} route param's account scoped to the
// authenticated user.
func (s *Server) ownedAccount(r *http.Request) (*types.TrackedAccount, error) {
	userID, err := userIDFrom(r)
	if err != nil {
		return nil, err
	}
	return s.accounts.GetByIDForUser(r.Context(), chi.URLParam(r, "id"), userID)
}
