package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validate checks the preconditions of ApplyPaymentEvent.
func (e PaymentEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.IntentID) == "":
		return fmt.Errorf("%w: intent id is required", ErrInvalidEvent)
	case strings.TrimSpace(e.PayerUserID) == "":
		return fmt.Errorf("%w: payer user id is required", ErrInvalidEvent)
	case e.AmountMinor <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEvent)
	case !e.Currency.Valid():
		return fmt.Errorf("%w: unsupported currency %q", ErrInvalidEvent, e.Currency)
	}
	switch e.Kind {
	case EventCaptured, EventRefundSucceeded, EventChargebackReceived:
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidEvent, e.Kind)
	}
	// A capture naming the payer as payee would be planned as a single-wallet
	// inflow and credit the payer without debiting anyone.
	if e.Kind == EventCaptured && strings.TrimSpace(e.PayeeUserID) == strings.TrimSpace(e.PayerUserID) {
		return fmt.Errorf("%w: payer and payee of a capture must differ", ErrInvalidEvent)
	}
	return nil
}

func (in TopUpInput) validate() error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	case in.AmountMinor <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	case !in.Currency.Valid():
		return fmt.Errorf("%w: unsupported currency %q", ErrInvalidRequest, in.Currency)
	}
	return nil
}

func (in TopUpInput) withDefaults() TopUpInput {
	if in.CorrelationID == "" {
		in.CorrelationID = uuid.NewString()
	}
	if in.Description == "" {
		in.Description = "top-up"
	}
	return in
}

// leg is one wallet's half of a posting: inflow credits cash, outflow debits it.
type leg struct {
	userID string
	inflow bool
}

// eventPlan is the set of legs an event produces. source is only set for
// cross-wallet transfers, whose source cash balance must cover the amount.
type eventPlan struct {
	source string
	legs   []leg
}

func planEvent(evt PaymentEvent) eventPlan {
	cross := evt.PayeeUserID != "" && evt.PayeeUserID != evt.PayerUserID
	if !cross {
		return eventPlan{legs: []leg{{userID: evt.PayerUserID, inflow: evt.Kind == EventCaptured}}}
	}
	source, dest := evt.PayerUserID, evt.PayeeUserID
	if evt.Kind != EventCaptured {
		source, dest = dest, source
	}
	return eventPlan{
		source: source,
		legs:   []leg{{userID: source}, {userID: dest, inflow: true}},
	}
}

// userIDs returns the users touched by the plan in lock order.
func (p eventPlan) userIDs() []string {
	ids := make([]string, 0, len(p.legs))
	for _, l := range p.legs {
		ids = append(ids, l.userID)
	}
	sort.Strings(ids)
	return ids
}

func (p eventPlan) entries(evt PaymentEvent, wallets map[string]Wallet, now time.Time) []Entry {
	desc := evt.Description
	if desc == "" {
		desc = string(evt.Kind)
	}
	out := make([]Entry, 0, 2*len(p.legs))
	for _, l := range p.legs {
		out = append(out, pair(wallets[l.userID].ID, l.inflow, evt.AmountMinor, evt.Currency, desc, evt.IntentID, now)...)
	}
	return out
}

// pair builds the balanced cash/clearing entries for one wallet.
func pair(walletID string, inflow bool, amount int64, currency Currency, desc, correlationID string, now time.Time) []Entry {
	cashType, clearingType := Debit, Credit
	if inflow {
		cashType, clearingType = Credit, Debit
	}
	base := Entry{
		WalletID:      walletID,
		AmountMinor:   amount,
		Currency:      currency,
		Description:   desc,
		CorrelationID: correlationID,
		CreatedAt:     now,
	}
	cash, clearing := base, base
	cash.ID, cash.Type, cash.Account, cash.CounterpartyAccount = uuid.NewString(), cashType, Cash, Clearing
	clearing.ID, clearing.Type, clearing.Account, clearing.CounterpartyAccount = uuid.NewString(), clearingType, Clearing, Cash
	return []Entry{cash, clearing}
}

// cashBalances folds entries into per-currency cash balances ordered by currency.
func cashBalances(entries []Entry) []Balance {
	sums := map[Currency]int64{}
	for _, e := range entries {
		if e.Account != Cash {
			continue
		}
		sums[e.Currency] += e.Signed()
	}
	out := make([]Balance, 0, len(sums))
	for c, v := range sums {
		out = append(out, Balance{Currency: c, BalanceMinor: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}
