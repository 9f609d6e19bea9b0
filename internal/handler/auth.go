package handler

import (
	"encoding/json"
	"net/http"

	"flashdeal-api/internal/service"
	"flashdeal-api/pkg/apierror"
	"flashdeal-api/pkg/response"
)

// AuthHandler issues and revokes session tokens. It trusts the upstream
// gateway for identity; real credential checks live in the auth service,
// which is outside this codebase.
type AuthHandler struct {
	tokens *service.TokenService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(tokens *service.TokenService) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

type tokenRequest struct {
	UserID int64 `json:"user_id"`
}

// GenerateToken handles POST /api/v1/auth/token
func (h *AuthHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}
	if req.UserID <= 0 {
		response.Error(w, apierror.BadRequest("user_id is required"))
		return
	}

	token, err := h.tokens.GenerateToken(r.Context(), req.UserID)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"token":   token,
		"user_id": req.UserID,
	})
}

// RevokeToken handles POST /api/v1/auth/revoke
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Token")
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header is required"))
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), token); err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{"status": "revoked"})
}
