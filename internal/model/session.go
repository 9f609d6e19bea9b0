package model

import "time"

// SessionData is the payload stored in Redis for an issued session token.
// Session management proper lives in the upstream auth service; this is the
// minimal slice the flash-sale pipeline needs to resolve the current user.
type SessionData struct {
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
