package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizbank/bizbank/internal/dbtx"
)

const uniqueViolation = "23505"

// PostgresLedger persists ledger entries in PostgreSQL ensuring double-entry balance.
//
// Every mutation runs in one transaction: wallets are get-or-created and
// locked FOR UPDATE in user id order before the idempotency and sufficiency
// checks, so concurrent postings to the same wallet serialize. The unique
// index on (wallet_id, correlation_id, account) catches duplicate deliveries
// that race past the pre-check. When the context carries a transaction (see
// dbtx) the mutation runs in a savepoint of it instead, so a posting made
// while deciding a verification commits or rolls back with that decision.
type PostgresLedger struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// ApplyPaymentEvent posts the entries for evt exactly once.
func (l *PostgresLedger) ApplyPaymentEvent(ctx context.Context, evt PaymentEvent) (ApplyStatus, error) {
	if err := evt.Validate(); err != nil {
		return "", err
	}
	plan := planEvent(evt)

	tx, err := dbtx.Begin(ctx, l.db)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	wallets, err := lockWallets(ctx, tx, plan.userIDs(), l.now())
	if err != nil {
		return "", err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE correlation_id = $1)`, evt.IntentID).Scan(&exists); err != nil {
		return "", err
	}
	if exists {
		return StatusIdempotent, nil
	}

	if plan.source != "" {
		available, err := cashBalance(ctx, tx, wallets[plan.source].ID, evt.Currency)
		if err != nil {
			return "", err
		}
		if available < evt.AmountMinor {
			return "", &InsufficientFundsError{Currency: evt.Currency, AvailableMinor: available}
		}
	}

	if err := insertEntries(ctx, tx, plan.entries(evt, wallets, l.now())); err != nil {
		if isUniqueViolation(err) {
			return StatusIdempotent, nil
		}
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return StatusIdempotent, nil
		}
		return "", err
	}
	return StatusApplied, nil
}

// TopUp credits the user's cash account once per (wallet, correlation id).
func (l *PostgresLedger) TopUp(ctx context.Context, input TopUpInput) (TopUpResult, error) {
	if err := input.validate(); err != nil {
		return TopUpResult{}, err
	}
	input = input.withDefaults()

	tx, err := dbtx.Begin(ctx, l.db)
	if err != nil {
		return TopUpResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	wallets, err := lockWallets(ctx, tx, []string{input.UserID}, l.now())
	if err != nil {
		return TopUpResult{}, err
	}
	w := wallets[input.UserID]
	res := TopUpResult{
		Status:        StatusApplied,
		CorrelationID: input.CorrelationID,
		WalletID:      w.ID,
		UserID:        w.UserID,
		Currency:      input.Currency,
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE wallet_id = $1 AND correlation_id = $2)`,
		w.ID, input.CorrelationID).Scan(&exists); err != nil {
		return TopUpResult{}, err
	}
	if exists {
		res.Status = StatusIdempotent
	} else if err := insertEntries(ctx, tx, pair(w.ID, true, input.AmountMinor, input.Currency, input.Description, input.CorrelationID, l.now())); err != nil {
		if !isUniqueViolation(err) {
			return TopUpResult{}, err
		}
		_ = tx.Rollback(ctx)
		return l.idempotentTopUp(ctx, res)
	}

	if res.BalanceMinor, err = cashBalance(ctx, tx, w.ID, input.Currency); err != nil {
		return TopUpResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return l.idempotentTopUp(ctx, res)
		}
		return TopUpResult{}, err
	}
	return res, nil
}

// idempotentTopUp reports a duplicate found by the unique index. The posting
// transaction is rolled back by then, so the balance is read outside it.
func (l *PostgresLedger) idempotentTopUp(ctx context.Context, res TopUpResult) (TopUpResult, error) {
	res.Status = StatusIdempotent
	balance, err := cashBalance(ctx, dbtx.Q(ctx, l.db), res.WalletID, res.Currency)
	if err != nil {
		return TopUpResult{}, err
	}
	res.BalanceMinor = balance
	return res, nil
}

// EnsureWallet returns the user's wallet, creating it on first use.
func (l *PostgresLedger) EnsureWallet(ctx context.Context, userID string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	tx, err := dbtx.Begin(ctx, l.db)
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO wallets (id, user_id, created_at) VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO NOTHING`, uuid.New(), userID, l.now()); err != nil {
		return Wallet{}, err
	}
	w, err := scanWallet(tx.QueryRow(ctx, `SELECT id, user_id, created_at FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return Wallet{}, err
	}
	return w, tx.Commit(ctx)
}

// Wallet fetches the user's wallet without creating it.
func (l *PostgresLedger) Wallet(ctx context.Context, userID string) (Wallet, error) {
	return scanWallet(dbtx.Q(ctx, l.db).QueryRow(ctx, `SELECT id, user_id, created_at FROM wallets WHERE user_id = $1`, userID))
}

// Balances returns the cash balance per currency of the user's wallet.
func (l *PostgresLedger) Balances(ctx context.Context, userID string) ([]Balance, error) {
	w, err := l.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	const query = `
        SELECT currency, COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount_minor ELSE -amount_minor END), 0)
        FROM ledger_entries
        WHERE wallet_id = $1 AND account = 'cash'
        GROUP BY currency
        ORDER BY currency`
	rows, err := dbtx.Q(ctx, l.db).Query(ctx, query, w.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := []Balance{}
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.Currency, &b.BalanceMinor); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// Entries lists the user's entries in posting order.
func (l *PostgresLedger) Entries(ctx context.Context, userID string, filter EntryFilter) ([]Entry, error) {
	w, err := l.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, wallet_id, amount_minor, currency, entry_type, account, counterparty_account,
        description, correlation_id, created_at
        FROM ledger_entries WHERE wallet_id = $1`
	args := []any{w.ID}
	if filter.CorrelationID != "" {
		args = append(args, filter.CorrelationID)
		query += fmt.Sprintf(" AND correlation_id = $%d", len(args))
	}
	if filter.Account != "" {
		args = append(args, filter.Account)
		query += fmt.Sprintf(" AND account = $%d", len(args))
	}
	query += " ORDER BY created_at, seq"

	rows, err := dbtx.Q(ctx, l.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e            Entry
			id, walletID uuid.UUID
			createdAt    time.Time
		)
		if err := rows.Scan(&id, &walletID, &e.AmountMinor, &e.Currency, &e.Type, &e.Account, &e.CounterpartyAccount,
			&e.Description, &e.CorrelationID, &createdAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.WalletID = walletID.String()
		e.CreatedAt = createdAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// lockWallets get-or-creates a wallet per user and locks the rows in the
// order given, which callers keep sorted.
func lockWallets(ctx context.Context, tx pgx.Tx, userIDs []string, now time.Time) (map[string]Wallet, error) {
	wallets := make(map[string]Wallet, len(userIDs))
	for _, userID := range userIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO wallets (id, user_id, created_at) VALUES ($1, $2, $3)
            ON CONFLICT (user_id) DO NOTHING`, uuid.New(), userID, now); err != nil {
			return nil, err
		}
		w, err := scanWallet(tx.QueryRow(ctx, `SELECT id, user_id, created_at FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
		if err != nil {
			return nil, err
		}
		wallets[userID] = w
	}
	return wallets, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func cashBalance(ctx context.Context, q querier, walletID string, currency Currency) (int64, error) {
	const query = `
        SELECT COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount_minor ELSE -amount_minor END), 0)
        FROM ledger_entries
        WHERE wallet_id = $1 AND account = 'cash' AND currency = $2`
	var balance int64
	if err := q.QueryRow(ctx, query, walletID, currency).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func insertEntries(ctx context.Context, tx pgx.Tx, entries []Entry) error {
	const stmt = `INSERT INTO ledger_entries (id, wallet_id, amount_minor, currency, entry_type, account,
        counterparty_account, description, correlation_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, e := range entries {
		if _, err := tx.Exec(ctx, stmt, e.ID, e.WalletID, e.AmountMinor, e.Currency, e.Type, e.Account,
			e.CounterpartyAccount, e.Description, e.CorrelationID, e.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w         Wallet
		id        uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&id, &w.UserID, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.CreatedAt = createdAt.UTC()
	return w, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
