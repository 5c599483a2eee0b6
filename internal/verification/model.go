package verification

import (
	"time"

	"github.com/bizbank/bizbank/internal/apperr"
)

var (
	ErrNotFound       = apperr.New(apperr.ErrNotFound, "verification_not_found", "verification not found")
	ErrAlreadyDecided = apperr.New(apperr.ErrConflict, "already_decided", "verification already decided")
	ErrInvalidCode    = apperr.New(apperr.ErrUnauthorized, "invalid_code", "invalid verification code")
	ErrNotAllowed     = apperr.New(apperr.ErrForbidden, "not_allowed", "not allowed to decide this verification")
	ErrInvalidStatus  = apperr.New(apperr.ErrInvalidInput, "invalid_status", "decision status must be completed or rejected")
)

// Action names the state transition a verification gates.
type Action string

const (
	ActionNewUserCreated     Action = "new_user_created"
	ActionUserAssignedToCard Action = "user_assigned_to_card"
	ActionCardPrinting       Action = "card_printing"
	ActionCardTermination    Action = "card_termination"
	ActionPaymentCreated     Action = "payment_created"
	ActionPaymentReverted    Action = "payment_reverted"
)

// Status of a verification. Pending is the only non-terminal status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// Verification is a challenge that must be confirmed with its code before
// the gated transition is applied. Payload holds action specific parameters,
// e.g. the role an invited user receives on acceptance.
type Verification struct {
	ID         string
	Action     Action
	TargetID   string
	Status     Status
	Code       string
	CreatedBy  string
	AssigneeID string
	Payload    map[string]string
	CreatedAt  time.Time
	DecidedAt  *time.Time
}

// CreateInput describes a new verification. NotifyTo, when set, receives
// the code through the configured notifier.
type CreateInput struct {
	Action     Action
	TargetID   string
	CreatedBy  string
	AssigneeID string
	Payload    map[string]string
	NotifyTo   string
}

// Filter narrows a verification listing.
type Filter struct {
	Actions    []Action
	Status     Status
	TargetID   string
	AssigneeID string
	CreatedBy  string
	Query      string
	Skip       int
	Take       int
}

const (
	defaultTake = 25
	maxTake     = 500
)

func (f Filter) normalized() Filter {
	if f.Skip < 0 {
		f.Skip = 0
	}
	switch {
	case f.Take <= 0:
		f.Take = defaultTake
	case f.Take > maxTake:
		f.Take = maxTake
	}
	return f
}
