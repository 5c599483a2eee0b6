package cards

import (
	"fmt"
	"strings"
	"time"

	"github.com/bizbank/bizbank/internal/apperr"
)

var (
	ErrNotFound          = apperr.New(apperr.ErrNotFound, "card_not_found", "card not found")
	ErrAlreadyAssigned   = apperr.New(apperr.ErrConflict, "card_already_assigned", "card is already assigned and cannot be reassigned")
	ErrTerminated        = apperr.New(apperr.ErrConflict, "card_terminated", "card is terminated")
	ErrUnassigned        = apperr.New(apperr.ErrInvalidInput, "card_unassigned", "card has no assigned user")
	ErrOptionsFrozen     = apperr.New(apperr.ErrInvalidInput, "card_options_frozen", "card options cannot be changed after the card is printed")
	ErrInvalidCard       = apperr.New(apperr.ErrInvalidInput, "invalid_card", "invalid card")
	ErrUnsupportedAction = apperr.New(apperr.ErrInvalidInput, "unsupported_action", "unsupported verification action for cards")
)

// Type distinguishes cards issued to one person from shared company cards.
type Type string

const (
	TypePersonal Type = "personal"
	TypeShared   Type = "shared"
)

// ParseType accepts a card type in any case.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypePersonal, TypeShared:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown card type %q", ErrInvalidCard, s)
}

// Options is a bit set of card features.
type Options uint32

const (
	OptionATM Options = 1 << iota
	OptionMagneticStripe
	OptionContactless
	OptionOnlinePayments
	OptionAllowChangingSettings
	OptionAllowPlasticOrder
)

var optionNames = []struct {
	opt  Options
	name string
}{
	{OptionATM, "atm"},
	{OptionMagneticStripe, "magnetic_stripe"},
	{OptionContactless, "contactless"},
	{OptionOnlinePayments, "online_payments"},
	{OptionAllowChangingSettings, "allow_changing_settings"},
	{OptionAllowPlasticOrder, "allow_plastic_order"},
}

// ParseOptions builds a bit set from option names.
func ParseOptions(names []string) (Options, error) {
	var out Options
next:
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		for _, o := range optionNames {
			if o.name == n {
				out |= o.opt
				continue next
			}
		}
		return 0, fmt.Errorf("%w: unknown card option %q", ErrInvalidCard, n)
	}
	return out, nil
}

// Names lists the set options in declaration order.
func (o Options) Names() []string {
	out := []string{}
	for _, n := range optionNames {
		if o&n.opt != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

// Card is a payment card. AssignedUserID is empty until the card is assigned.
type Card struct {
	ID                string
	Type              Type
	Name              string
	SingleLimitMinor  int64
	MonthlyLimitMinor int64
	AssignedUserID    string
	Options           Options
	Printed           bool
	Terminated        bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
