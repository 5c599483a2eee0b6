package cards

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/verification"
)

var cardActions = []verification.Action{
	verification.ActionUserAssignedToCard,
	verification.ActionCardPrinting,
	verification.ActionCardTermination,
}

// Service manages cards and the verifications gating their lifecycle.
type Service struct {
	repo          Repository
	verifications *verification.Service
	logger        *slog.Logger
	now           func() time.Time
}

// NewService builds a card service instance.
func NewService(repo Repository, verifications *verification.Service, logger *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		verifications: verifications,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput captures data required to issue a card.
type CreateInput struct {
	Type              string
	Name              string
	SingleLimitMinor  int64
	MonthlyLimitMinor int64
}

// Create issues an unassigned, unprinted card. Shared cards need a name;
// personal cards are named after their holder once assignment is accepted.
func (s *Service) Create(ctx context.Context, input CreateInput) (Card, error) {
	cardType, err := ParseType(input.Type)
	if err != nil {
		return Card{}, err
	}
	name := strings.TrimSpace(input.Name)
	if cardType == TypeShared && name == "" {
		return Card{}, fmt.Errorf("%w: name is required", ErrInvalidCard)
	}
	if cardType == TypePersonal {
		name = ""
	}
	if err := validateLimits(input.SingleLimitMinor, input.MonthlyLimitMinor); err != nil {
		return Card{}, err
	}

	now := s.now()
	card := Card{
		ID:                uuid.NewString(),
		Type:              cardType,
		Name:              name,
		SingleLimitMinor:  input.SingleLimitMinor,
		MonthlyLimitMinor: input.MonthlyLimitMinor,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, card); err != nil {
		return Card{}, err
	}
	return card, nil
}

// Get fetches a card.
func (s *Service) Get(ctx context.Context, id string) (Card, error) {
	return s.repo.Get(ctx, id)
}

// List returns every card.
func (s *Service) List(ctx context.Context) ([]Card, error) {
	return s.repo.List(ctx)
}

// Assign attaches a card to a user and asks that user to accept it.
func (s *Service) Assign(ctx context.Context, actor auth.Principal, cardID, userID string) (Card, verification.Verification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Card{}, verification.Verification{}, fmt.Errorf("%w: user id is required", ErrInvalidCard)
	}
	card, err := s.repo.Get(ctx, cardID)
	if err != nil {
		return Card{}, verification.Verification{}, err
	}
	if card.Terminated {
		return Card{}, verification.Verification{}, ErrTerminated
	}
	if card.AssignedUserID != "" {
		return Card{}, verification.Verification{}, ErrAlreadyAssigned
	}

	card.AssignedUserID = userID
	card.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, card); err != nil {
		return Card{}, verification.Verification{}, err
	}
	v, err := s.open(ctx, actor, verification.ActionUserAssignedToCard, card)
	if err != nil {
		return Card{}, verification.Verification{}, err
	}
	return card, v, nil
}

// UpdateInput lists optional changes; nil fields are left untouched.
type UpdateInput struct {
	Type              *string
	Name              *string
	SingleLimitMinor  *int64
	MonthlyLimitMinor *int64
	Options           []string
	Printed           *bool
}

// Update changes card settings. Options are frozen once the card is printed
// or printing is requested. Setting Printed on an unprinted card does not
// print it; it opens a printing verification instead.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id string, input UpdateInput) (Card, *verification.Verification, error) {
	card, err := s.repo.Get(ctx, id)
	if err != nil {
		return Card{}, nil, err
	}
	if card.Terminated {
		return Card{}, nil, ErrTerminated
	}

	requestPrint := input.Printed != nil && *input.Printed && !card.Printed
	effectivePrinted := card.Printed
	if input.Printed != nil {
		effectivePrinted = *input.Printed
	}
	if input.Options != nil && effectivePrinted {
		return Card{}, nil, ErrOptionsFrozen
	}
	if requestPrint && card.AssignedUserID == "" {
		return Card{}, nil, fmt.Errorf("%w: cannot request printing", ErrUnassigned)
	}

	if input.Type != nil {
		t, err := ParseType(*input.Type)
		if err != nil {
			return Card{}, nil, err
		}
		card.Type = t
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return Card{}, nil, fmt.Errorf("%w: name cannot be blank", ErrInvalidCard)
		}
		card.Name = name
	}
	if input.SingleLimitMinor != nil {
		card.SingleLimitMinor = *input.SingleLimitMinor
	}
	if input.MonthlyLimitMinor != nil {
		card.MonthlyLimitMinor = *input.MonthlyLimitMinor
	}
	if err := validateLimits(card.SingleLimitMinor, card.MonthlyLimitMinor); err != nil {
		return Card{}, nil, err
	}
	if input.Options != nil {
		opts, err := ParseOptions(input.Options)
		if err != nil {
			return Card{}, nil, err
		}
		card.Options = opts
	}

	card.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, card); err != nil {
		return Card{}, nil, err
	}
	if !requestPrint {
		return card, nil, nil
	}
	v, err := s.open(ctx, actor, verification.ActionCardPrinting, card)
	if err != nil {
		return Card{}, nil, err
	}
	return card, &v, nil
}

// RequestTermination asks the card holder to confirm termination.
func (s *Service) RequestTermination(ctx context.Context, actor auth.Principal, id string) (verification.Verification, error) {
	return s.RequestVerification(ctx, actor, verification.ActionCardTermination, id)
}

// RequestVerification opens a card verification of the given kind.
func (s *Service) RequestVerification(ctx context.Context, actor auth.Principal, action verification.Action, cardID string) (verification.Verification, error) {
	if !isCardAction(action) {
		return verification.Verification{}, ErrUnsupportedAction
	}
	card, err := s.repo.Get(ctx, cardID)
	if err != nil {
		return verification.Verification{}, err
	}
	if card.Terminated {
		return verification.Verification{}, ErrTerminated
	}
	if action != verification.ActionCardPrinting && card.AssignedUserID == "" {
		return verification.Verification{}, ErrUnassigned
	}
	return s.open(ctx, actor, action, card)
}

func (s *Service) open(ctx context.Context, actor auth.Principal, action verification.Action, card Card) (verification.Verification, error) {
	return s.verifications.Create(ctx, verification.CreateInput{
		Action:     action,
		TargetID:   card.ID,
		CreatedBy:  actor.UserID,
		AssigneeID: card.AssignedUserID,
	})
}

// Decide answers a card verification. Assignment and termination are decided
// by the card holder; printing also by holders of the cards capability.
func (s *Service) Decide(ctx context.Context, actor auth.Principal, d verification.Decision) (verification.Verification, error) {
	var card Card
	return s.verifications.Submit(ctx, d, verification.Policy{
		Actions: cardActions,
		Authorize: func(ctx context.Context, v verification.Verification) error {
			var err error
			card, err = s.repo.Get(ctx, v.TargetID)
			if err != nil {
				return err
			}
			holder := card.AssignedUserID != "" && card.AssignedUserID == actor.UserID
			if holder {
				return nil
			}
			if v.Action == verification.ActionCardPrinting && actor.Has(auth.CapCardsManage) {
				return nil
			}
			return verification.ErrNotAllowed
		},
		Apply: func(ctx context.Context, v verification.Verification, accept bool) error {
			switch {
			case accept && v.Action == verification.ActionUserAssignedToCard:
				if card.Type != TypePersonal {
					return nil
				}
				card.Name = actor.DisplayName
			case accept && v.Action == verification.ActionCardPrinting:
				card.Printed = true
			case accept && v.Action == verification.ActionCardTermination:
				card.Terminated = true
			case !accept && v.Action == verification.ActionUserAssignedToCard:
				card.AssignedUserID = ""
			default:
				return nil
			}
			card.UpdatedAt = s.now()
			if err := s.repo.Update(ctx, card); err != nil {
				return err
			}
			s.logger.Info("card updated by verification",
				slog.String("card_id", card.ID),
				slog.String("action", string(v.Action)),
				slog.Bool("accepted", accept),
			)
			return nil
		},
	})
}

// Verifications lists card verifications; other kinds are never returned.
func (s *Service) Verifications(ctx context.Context, filter verification.Filter) ([]verification.Verification, int, error) {
	filter.Actions = cardActions
	return s.verifications.List(ctx, filter)
}

func isCardAction(a verification.Action) bool {
	for _, c := range cardActions {
		if c == a {
			return true
		}
	}
	return false
}

func validateLimits(single, monthly int64) error {
	if single < 0 {
		return fmt.Errorf("%w: single transaction limit must be >= 0", ErrInvalidCard)
	}
	if monthly < 0 {
		return fmt.Errorf("%w: monthly limit must be >= 0", ErrInvalidCard)
	}
	return nil
}
