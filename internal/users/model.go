package users

import (
	"time"

	"github.com/bizbank/bizbank/internal/apperr"
)

var (
	ErrNotFound           = apperr.New(apperr.ErrNotFound, "user_not_found", "user not found")
	ErrEmailTaken         = apperr.New(apperr.ErrConflict, "email_taken", "email already registered")
	ErrInvalidUser        = apperr.New(apperr.ErrInvalidInput, "invalid_user", "invalid user")
	ErrInvalidState       = apperr.New(apperr.ErrConflict, "invalid_user_state", "user is already active")
	ErrForbidden          = apperr.New(apperr.ErrForbidden, "forbidden", "missing users:manage capability")
	ErrInvalidCredentials = apperr.New(apperr.ErrUnauthorized, "invalid_credentials", "invalid credentials")
)

// Status of a user account.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
)

// payloadDesiredRole is the verification payload key carrying the role an
// invited user receives on acceptance.
const payloadDesiredRole = "desired_role_id"

// minPasswordLength applies to passwords chosen while accepting an invitation.
const minPasswordLength = 8

// User is a company member. RoleID is opaque to this service.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	RoleID       string
	PasswordHash []byte
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
