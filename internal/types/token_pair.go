// types/token_pair.go
package types

import "github.com/princeprakhar/reviewnext-backend/internal/models"

type TokenPair struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	AccessTokenExpiresAt  int64  `json:"access_token_expires_at"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at"`
}

// AuthResponse is returned by signup, login and refresh. Role is derived
// from the authorization policy when the response is built.
type AuthResponse struct {
	Token TokenPair   `json:"tokens"`
	User  models.User `json:"user"`
	Role  string      `json:"role"`
}

// Profile is the authenticated user's view of their own account.
type Profile struct {
	models.User
	Role string `json:"role"`
}
