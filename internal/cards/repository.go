package cards

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizbank/bizbank/internal/dbtx"
)

// Repository persists cards.
type Repository interface {
	Create(ctx context.Context, card Card) error
	Get(ctx context.Context, id string) (Card, error)
	List(ctx context.Context) ([]Card, error)
	Update(ctx context.Context, card Card) error
}

// PostgresRepository stores cards in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const cardColumns = `id, card_type, name, single_limit_minor, monthly_limit_minor, assigned_user_id,
        options, printed, terminated, created_at, updated_at`

// Create inserts a new card.
func (r *PostgresRepository) Create(ctx context.Context, card Card) error {
	id, err := uuid.Parse(card.ID)
	if err != nil {
		return err
	}
	_, err = dbtx.Q(ctx, r.db).Exec(ctx, `INSERT INTO cards (`+cardColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, card.Type, card.Name, card.SingleLimitMinor, card.MonthlyLimitMinor, card.AssignedUserID,
		int32(card.Options), card.Printed, card.Terminated, card.CreatedAt.UTC(), card.UpdatedAt.UTC())
	return err
}

// Get fetches a card by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Card, error) {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return Card{}, ErrNotFound
	}
	return scanCard(dbtx.Q(ctx, r.db).QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, cardID))
}

// List returns all cards, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]Card, error) {
	rows, err := dbtx.Q(ctx, r.db).Query(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update overwrites the mutable fields of a card.
func (r *PostgresRepository) Update(ctx context.Context, card Card) error {
	id, err := uuid.Parse(card.ID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := dbtx.Q(ctx, r.db).Exec(ctx, `UPDATE cards SET card_type = $2, name = $3, single_limit_minor = $4,
        monthly_limit_minor = $5, assigned_user_id = $6, options = $7, printed = $8, terminated = $9,
        updated_at = $10 WHERE id = $1`,
		id, card.Type, card.Name, card.SingleLimitMinor, card.MonthlyLimitMinor, card.AssignedUserID,
		int32(card.Options), card.Printed, card.Terminated, card.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCard(row pgx.Row) (Card, error) {
	var (
		c         Card
		id        uuid.UUID
		options   int32
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&id, &c.Type, &c.Name, &c.SingleLimitMinor, &c.MonthlyLimitMinor, &c.AssignedUserID,
		&options, &c.Printed, &c.Terminated, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, ErrNotFound
		}
		return Card{}, err
	}
	c.ID = id.String()
	c.Options = Options(options)
	c.CreatedAt = createdAt.UTC()
	c.UpdatedAt = updatedAt.UTC()
	return c, nil
}
