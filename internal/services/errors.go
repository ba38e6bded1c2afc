package services

import (
	"errors"

	"github.com/princeprakhar/reviewnext-backend/internal/policy"
)

var (
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID   string
	Email    string
	Username string
}

func requireAdmin(p *policy.AuthorizationPolicy, actor Actor) error {
	if !p.IsAdmin(actor.Email) {
		return ErrForbidden
	}
	return nil
}

// requireOwnerOrAdmin allows the owner of a resource or any admin.
func requireOwnerOrAdmin(p *policy.AuthorizationPolicy, actor Actor, ownerID string) error {
	if actor.UserID != "" && actor.UserID == ownerID {
		return nil
	}
	return requireAdmin(p, actor)
}

// CategoryFailure reports a category that could not be served in a
// multi-category view.
type CategoryFailure struct {
	Category string `json:"category"`
	Error    string `json:"error"`
}
