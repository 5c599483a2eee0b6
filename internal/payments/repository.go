package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizbank/bizbank/internal/dbtx"
)

// Repository persists payments.
type Repository interface {
	Create(ctx context.Context, payment Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	ListByUser(ctx context.Context, userID string) ([]Payment, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}

// PostgresRepository stores payments in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentColumns = `id, user_id, beneficiary_name, beneficiary_account, beneficiary_id, from_account,
        amount_minor, currency, from_currency, debit_minor, details, status, created_at, updated_at`

// Create inserts a payment.
func (r *PostgresRepository) Create(ctx context.Context, p Payment) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return err
	}
	_, err = dbtx.Q(ctx, r.db).Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, p.UserID, p.BeneficiaryName, p.BeneficiaryAccount, p.BeneficiaryID, p.FromAccount,
		p.AmountMinor, p.Currency, p.FromCurrency, p.DebitMinor, p.Details, p.Status,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	return err
}

// Get fetches a payment by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Payment, error) {
	paymentID, err := uuid.Parse(id)
	if err != nil {
		return Payment{}, ErrNotFound
	}
	return scanPayment(dbtx.Q(ctx, r.db).QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID))
}

// ListByUser returns the user's payments, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Payment, error) {
	rows, err := dbtx.Q(ctx, r.db).Query(ctx, `SELECT `+paymentColumns+` FROM payments
        WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateStatus sets the payment status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	paymentID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := dbtx.Q(ctx, r.db).Exec(ctx, `UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`, paymentID, status, at.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p         Payment
		id        uuid.UUID
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&id, &p.UserID, &p.BeneficiaryName, &p.BeneficiaryAccount, &p.BeneficiaryID, &p.FromAccount,
		&p.AmountMinor, &p.Currency, &p.FromCurrency, &p.DebitMinor, &p.Details, &p.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	p.ID = id.String()
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}
