package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bizbank/bizbank/internal/dbtx"
	"github.com/bizbank/bizbank/internal/metrics"
	"github.com/bizbank/bizbank/internal/notification"
)

// Service issues verifications and runs the decision protocol on top of a Store.
type Service struct {
	store    Store
	notifier notification.Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
	newCode  func() (string, error)
}

// NewService builds a verification service. notifier and rec may be nil.
func NewService(store Store, notifier notification.Notifier, rec metrics.Recorder, logger *slog.Logger) *Service {
	if rec == nil {
		rec = metrics.NoOp{}
	}
	return &Service{
		store:    store,
		notifier: notifier,
		metrics:  rec,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newCode:  NewCode,
	}
}

// Create stores a pending verification with a fresh code. The returned
// record carries the code; when input.NotifyTo is set it is also delivered
// through the notifier.
func (s *Service) Create(ctx context.Context, input CreateInput) (Verification, error) {
	if input.Action == "" || input.TargetID == "" {
		return Verification{}, errors.New("verification action and target are required")
	}
	code, err := s.newCode()
	if err != nil {
		return Verification{}, err
	}
	v := Verification{
		ID:         uuid.NewString(),
		Action:     input.Action,
		TargetID:   input.TargetID,
		Status:     StatusPending,
		Code:       code,
		CreatedBy:  input.CreatedBy,
		AssigneeID: input.AssigneeID,
		Payload:    input.Payload,
		CreatedAt:  s.now(),
	}
	if err := s.store.Create(ctx, v); err != nil {
		return Verification{}, err
	}
	s.metrics.VerificationCreated(string(v.Action))
	s.logger.Info("verification created",
		slog.String("verification_id", v.ID),
		slog.String("action", string(v.Action)),
		slog.String("target_id", v.TargetID),
	)

	if input.NotifyTo != "" && s.notifier != nil {
		msg := notification.Message{
			Kind:        notification.KindVerificationCode,
			Destination: input.NotifyTo,
			Subject:     v.Action.Title() + " verification",
			Body:        fmt.Sprintf("Your verification code is %s", v.Code),
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("verification code delivery failed", slog.String("verification_id", v.ID), slog.Any("error", err))
		}
	}
	return v, nil
}

// Get fetches a verification by id.
func (s *Service) Get(ctx context.Context, id string) (Verification, error) {
	return s.store.Get(ctx, id)
}

// List returns a page of verifications and the total number of matches.
func (s *Service) List(ctx context.Context, filter Filter) ([]Verification, int, error) {
	return s.store.List(ctx, filter)
}

// Decide moves a pending verification to a terminal status without running
// any policy. Domain services use Submit instead.
func (s *Service) Decide(ctx context.Context, id string, status Status) (Verification, error) {
	if status != StatusCompleted && status != StatusRejected {
		return Verification{}, ErrInvalidStatus
	}
	return s.store.Decide(ctx, id, status, s.now())
}

// Decision is a caller's answer to a verification.
type Decision struct {
	ID     string
	Code   string
	Accept bool
}

// Policy is the domain side of a decision. Actions limits which kinds the
// caller may decide; others are reported as not found. Authorize runs after
// the code has been checked. Apply performs the gated transition; when it
// fails on acceptance its writes are discarded, Refused records the outcome
// on the domain side and the verification is stored as rejected.
//
// All callbacks receive the context of the locked unit of work and must pass
// it on to repositories so their writes commit with the decision.
type Policy struct {
	Actions   []Action
	Authorize func(ctx context.Context, v Verification) error
	Apply     func(ctx context.Context, v Verification, accept bool) error
	Refused   func(ctx context.Context, v Verification, cause error) error
}

func (p Policy) allows(a Action) bool {
	if len(p.Actions) == 0 {
		return true
	}
	for _, allowed := range p.Actions {
		if allowed == a {
			return true
		}
	}
	return false
}

// decisionTimeout bounds how long a decision may hold the record lock.
const decisionTimeout = 10 * time.Second

// Submit runs the decision protocol: the verification must exist, be pending,
// match the code and pass Authorize before Apply runs under the record lock.
func (s *Service) Submit(ctx context.Context, d Decision, p Policy) (Verification, error) {
	var action Action
	ctx, cancel := context.WithTimeout(ctx, decisionTimeout)
	defer cancel()
	v, err := s.store.Resolve(ctx, d.ID, s.now(), func(ctx context.Context, v Verification) (Status, error) {
		action = v.Action
		if !p.allows(v.Action) {
			return "", ErrNotFound
		}
		if v.Status != StatusPending {
			return "", ErrAlreadyDecided
		}
		if !codesEqual(v.Code, d.Code) {
			return "", ErrInvalidCode
		}
		if p.Authorize != nil {
			if err := p.Authorize(ctx, v); err != nil {
				return "", err
			}
		}
		if p.Apply != nil {
			err := dbtx.Savepoint(ctx, func(ctx context.Context) error {
				return p.Apply(ctx, v, d.Accept)
			})
			if err != nil {
				if !d.Accept {
					return "", err
				}
				if p.Refused != nil {
					if rerr := p.Refused(ctx, v, err); rerr != nil {
						return "", errors.Join(err, rerr)
					}
				}
				return StatusRejected, err
			}
		}
		if d.Accept {
			return StatusCompleted, nil
		}
		return StatusRejected, nil
	})

	outcome := string(v.Status)
	if err != nil {
		outcome = decisionFailure(err)
	}
	if action != "" {
		s.metrics.VerificationDecision(string(action), outcome)
	}

	attrs := []any{
		slog.String("verification_id", d.ID),
		slog.String("action", string(action)),
		slog.String("outcome", outcome),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
		s.logger.Warn("verification decision failed", attrs...)
		return v, err
	}
	s.logger.Info("verification decided", attrs...)
	return v, nil
}

func decisionFailure(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyDecided):
		return "already_decided"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrNotAllowed):
		return "not_allowed"
	default:
		return "apply_failed"
	}
}
