package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/ledger"
	"github.com/bizbank/bizbank/internal/notification"
	"github.com/bizbank/bizbank/internal/verification"
)

// WalletProvisioner opens the ledger wallet of a newly activated user.
type WalletProvisioner interface {
	EnsureWallet(ctx context.Context, userID string) (ledger.Wallet, error)
}

// Service manages user invitations and their acceptance.
type Service struct {
	repo          Repository
	verifications *verification.Service
	wallets       WalletProvisioner
	notifier      notification.Notifier
	logger        *slog.Logger
	defaultRole   string
	now           func() time.Time
}

// NewService creates a user service. wallets and notifier may be nil.
func NewService(
	repo Repository,
	verifications *verification.Service,
	wallets WalletProvisioner,
	notifier notification.Notifier,
	logger *slog.Logger,
	defaultRole string,
) *Service {
	return &Service{
		repo:          repo,
		verifications: verifications,
		wallets:       wallets,
		notifier:      notifier,
		logger:        logger,
		defaultRole:   defaultRole,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// InviteInput captures an invitation. DesiredRoleID is applied only when the
// invited user accepts.
type InviteInput struct {
	Email         string
	DisplayName   string
	DesiredRoleID string
}

// Invite creates a pending user and sends them an acceptance code.
func (s *Service) Invite(ctx context.Context, actor auth.Principal, input InviteInput) (User, verification.Verification, error) {
	if !actor.Has(auth.CapUsersManage) {
		return User{}, verification.Verification{}, ErrForbidden
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.DisplayName)
	if email == "" || name == "" {
		return User{}, verification.Verification{}, fmt.Errorf("%w: email and display name are required", ErrInvalidUser)
	}

	now := s.now()
	user := User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: name,
		RoleID:      s.defaultRole,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, verification.Verification{}, err
	}
	v, err := s.invite(ctx, actor, user, input.DesiredRoleID)
	if err != nil {
		return User{}, verification.Verification{}, err
	}
	return user, v, nil
}

// Reinvite issues a fresh acceptance code to a user who has not activated
// their account yet.
func (s *Service) Reinvite(ctx context.Context, actor auth.Principal, userID, desiredRoleID string) (verification.Verification, error) {
	if !actor.Has(auth.CapUsersManage) {
		return verification.Verification{}, ErrForbidden
	}
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return verification.Verification{}, err
	}
	if user.Status == StatusActive {
		return verification.Verification{}, ErrInvalidState
	}
	return s.invite(ctx, actor, user, desiredRoleID)
}

func (s *Service) invite(ctx context.Context, actor auth.Principal, user User, desiredRoleID string) (verification.Verification, error) {
	var payload map[string]string
	if role := strings.TrimSpace(desiredRoleID); role != "" {
		payload = map[string]string{payloadDesiredRole: role}
	}
	v, err := s.verifications.Create(ctx, verification.CreateInput{
		Action:     verification.ActionNewUserCreated,
		TargetID:   user.ID,
		CreatedBy:  actor.UserID,
		AssigneeID: user.ID,
		Payload:    payload,
	})
	if err != nil {
		return verification.Verification{}, err
	}

	if s.notifier != nil {
		msg := notification.Message{
			Kind:        notification.KindInvitation,
			Destination: user.Email,
			Subject:     "Verify your account",
			Body: fmt.Sprintf("Hello %s,\n\nPlease verify your account.\nVerification id: %s\nVerification code: %s\n\nYou can set your password during verification.",
				user.DisplayName, v.ID, v.Code),
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("invitation delivery failed", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}
	return v, nil
}

// DecisionInput is the invited user's answer. NewPassword is optional.
type DecisionInput struct {
	ID          string
	Code        string
	Accept      bool
	NewPassword string
}

// Decide lets the invited user accept or reject their account. Acceptance
// sets the chosen password, applies the desired role and activates the user.
func (s *Service) Decide(ctx context.Context, actor auth.Principal, input DecisionInput) (verification.Verification, error) {
	var hash []byte
	if input.Accept && input.NewPassword != "" {
		if len(input.NewPassword) < minPasswordLength {
			return verification.Verification{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, minPasswordLength)
		}
		var err error
		if hash, err = bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost); err != nil {
			return verification.Verification{}, err
		}
	}

	var user User
	return s.verifications.Submit(ctx, verification.Decision{ID: input.ID, Code: input.Code, Accept: input.Accept}, verification.Policy{
		Actions: []verification.Action{verification.ActionNewUserCreated},
		Authorize: func(ctx context.Context, v verification.Verification) error {
			if v.TargetID != actor.UserID {
				return verification.ErrNotAllowed
			}
			var err error
			user, err = s.repo.Get(ctx, v.TargetID)
			return err
		},
		Apply: func(ctx context.Context, v verification.Verification, accept bool) error {
			if !accept {
				user.Status = StatusRejected
				user.UpdatedAt = s.now()
				return s.repo.Update(ctx, user)
			}
			if hash != nil {
				user.PasswordHash = hash
			}
			if role := v.Payload[payloadDesiredRole]; role != "" {
				user.RoleID = role
			}
			user.Status = StatusActive
			user.UpdatedAt = s.now()
			if err := s.repo.Update(ctx, user); err != nil {
				return err
			}
			if s.wallets != nil {
				if _, err := s.wallets.EnsureWallet(ctx, user.ID); err != nil {
					s.logger.Warn("wallet provisioning failed", slog.String("user_id", user.ID), slog.Any("error", err))
				}
			}
			s.logger.Info("user activated", slog.String("user_id", user.ID), slog.String("role_id", user.RoleID))
			return nil
		},
	})
}

// Get returns a user to themselves or to a user manager.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (User, error) {
	if actor.UserID != id && !actor.Has(auth.CapUsersManage) {
		return User{}, ErrForbidden
	}
	return s.repo.Get(ctx, id)
}

// Authenticate checks an active user's password. Unknown users, inactive
// users and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if user.Status != StatusActive || len(user.PasswordHash) == 0 {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}
