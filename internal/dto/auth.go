package dto

import "time"

// IssueTokenRequest asks for a bearer token for a given identity. Only served outside production.
type IssueTokenRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Role   string `json:"role" validate:"required,oneof=ADMIN APPROVER"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
