package api

import (
	"net/http"

	"alrt/internal/types"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        *types.User `json:"user"`
}

// handleRegister handles POST /auth/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	user, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusCreated, APIResponse{Data: user})
}

// handleToken handles POST /auth/token. It exchanges credentials for a
// bearer token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	token, user, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}})
}

// handleMe handles GET /api/me. The auth middleware has already resolved the
// token; this re-resolves the user so the response reflects current state.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	user, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		Error(w, r, err)
		return
	}

	type meResponse struct {
		*types.User
		MaxAccounts int `json:"max_accounts"`
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: meResponse{
		User:        user,
		MaxAccounts: s.plans.MaxAccounts(string(user.Plan)),
	}})
}
