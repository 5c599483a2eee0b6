package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizbank/bizbank/internal/dbtx"
)

// Repository persists bank accounts.
type Repository interface {
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, id string) (Account, error)
	GetByIBAN(ctx context.Context, iban string) (Account, error)
	ListByOwner(ctx context.Context, userID string) ([]Account, error)
	Delete(ctx context.Context, id string) error
}

// PostgresRepository stores accounts in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an account; a duplicate IBAN yields ErrIBANTaken.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return err
	}
	_, err = dbtx.Q(ctx, r.db).Exec(ctx, `INSERT INTO bank_accounts (id, user_id, iban, currency, created_at)
        VALUES ($1, $2, $3, $4, $5)`, id, account.UserID, account.IBAN, account.Currency, account.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrIBANTaken
	}
	return err
}

// Get fetches an account by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return scanAccount(dbtx.Q(ctx, r.db).QueryRow(ctx, `SELECT id, user_id, iban, currency, created_at
        FROM bank_accounts WHERE id = $1`, accountID))
}

// GetByIBAN fetches an account by normalized IBAN.
func (r *PostgresRepository) GetByIBAN(ctx context.Context, iban string) (Account, error) {
	return scanAccount(dbtx.Q(ctx, r.db).QueryRow(ctx, `SELECT id, user_id, iban, currency, created_at
        FROM bank_accounts WHERE iban = $1`, iban))
}

// ListByOwner returns the user's accounts, oldest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, userID string) ([]Account, error) {
	rows, err := dbtx.Q(ctx, r.db).Query(ctx, `SELECT id, user_id, iban, currency, created_at
        FROM bank_accounts WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes an account.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := dbtx.Q(ctx, r.db).Exec(ctx, `DELETE FROM bank_accounts WHERE id = $1`, accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a         Account
		id        uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&id, &a.UserID, &a.IBAN, &a.Currency, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.ID = id.String()
	a.CreatedAt = createdAt.UTC()
	return a, nil
}
