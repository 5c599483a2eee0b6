package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizbank/bizbank/internal/dbtx"
)

const selectColumns = `id, action, target_id, status, code, created_by, assignee_id, payload, created_at, decided_at`

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed verification store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new verification.
func (s *PostgresStore) Create(ctx context.Context, v Verification) error {
	id, err := uuid.Parse(v.ID)
	if err != nil {
		return err
	}
	payload := v.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	_, err = dbtx.Q(ctx, s.db).Exec(ctx, `INSERT INTO verifications (id, action, target_id, status, code, created_by, assignee_id, payload, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, v.Action, v.TargetID, v.Status, v.Code, v.CreatedBy, v.AssigneeID, payload, v.CreatedAt.UTC())
	return err
}

// Get fetches a verification by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Verification, error) {
	vid, err := uuid.Parse(id)
	if err != nil {
		return Verification{}, ErrNotFound
	}
	return scanVerification(dbtx.Q(ctx, s.db).QueryRow(ctx, `SELECT `+selectColumns+` FROM verifications WHERE id = $1`, vid))
}

// Decide performs a compare-and-swap from pending to status.
func (s *PostgresStore) Decide(ctx context.Context, id string, status Status, at time.Time) (Verification, error) {
	vid, err := uuid.Parse(id)
	if err != nil {
		return Verification{}, ErrNotFound
	}
	v, err := scanVerification(dbtx.Q(ctx, s.db).QueryRow(ctx, `UPDATE verifications SET status = $2, decided_at = $3
        WHERE id = $1 AND status = 'pending'
        RETURNING `+selectColumns, vid, status, at.UTC()))
	if !errors.Is(err, ErrNotFound) {
		return v, err
	}
	var exists bool
	if err := dbtx.Q(ctx, s.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM verifications WHERE id = $1)`, vid).Scan(&exists); err != nil {
		return Verification{}, err
	}
	if exists {
		return Verification{}, ErrAlreadyDecided
	}
	return Verification{}, ErrNotFound
}

// Resolve locks the row FOR UPDATE while fn decides its fate. fn receives a
// context carrying the locking transaction, so the domain writes it makes
// through dbtx commit or roll back with the status update and never wait on
// a second pool connection while the lock is held.
func (s *PostgresStore) Resolve(ctx context.Context, id string, at time.Time, fn ResolveFunc) (Verification, error) {
	vid, err := uuid.Parse(id)
	if err != nil {
		return Verification{}, ErrNotFound
	}
	tx, err := dbtx.Begin(ctx, s.db)
	if err != nil {
		return Verification{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	v, err := scanVerification(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM verifications WHERE id = $1 FOR UPDATE`, vid))
	if err != nil {
		return Verification{}, err
	}

	status, fnErr := fn(dbtx.WithTx(ctx, tx), v)
	if status == "" {
		return v, fnErr
	}
	if _, err := tx.Exec(ctx, `UPDATE verifications SET status = $2, decided_at = $3 WHERE id = $1`, vid, status, at.UTC()); err != nil {
		return Verification{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Verification{}, err
	}
	decided := at.UTC()
	v.Status = status
	v.DecidedAt = &decided
	return v, fnErr
}

// List returns a page of verifications, newest first, with the total match count.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Verification, int, error) {
	filter = filter.normalized()
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		where = append(where, "action = ANY("+arg(actions)+")")
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(filter.Status))
	}
	if filter.TargetID != "" {
		where = append(where, "target_id = "+arg(filter.TargetID))
	}
	if filter.AssigneeID != "" {
		where = append(where, "assignee_id = "+arg(filter.AssigneeID))
	}
	if filter.CreatedBy != "" {
		where = append(where, "created_by = "+arg(filter.CreatedBy))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		if _, err := uuid.Parse(q); err == nil {
			p := arg(q)
			where = append(where, fmt.Sprintf("(id::text = %[1]s OR target_id = %[1]s OR assignee_id = %[1]s OR created_by = %[1]s)", p))
		} else {
			p := arg("%" + strings.ToLower(q) + "%")
			where = append(where, fmt.Sprintf("(action LIKE %[1]s OR status LIKE %[1]s)", p))
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := dbtx.Q(ctx, s.db).QueryRow(ctx, `SELECT COUNT(*) FROM verifications`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + selectColumns + ` FROM verifications` + clause +
		` ORDER BY created_at DESC, id OFFSET ` + arg(filter.Skip) + ` LIMIT ` + arg(filter.Take)
	rows, err := dbtx.Q(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []Verification{}
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func scanVerification(row pgx.Row) (Verification, error) {
	var (
		v         Verification
		id        uuid.UUID
		createdAt time.Time
		decidedAt *time.Time
	)
	if err := row.Scan(&id, &v.Action, &v.TargetID, &v.Status, &v.Code, &v.CreatedBy, &v.AssigneeID, &v.Payload, &createdAt, &decidedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Verification{}, ErrNotFound
		}
		return Verification{}, err
	}
	v.ID = id.String()
	v.CreatedAt = createdAt.UTC()
	if decidedAt != nil {
		t := decidedAt.UTC()
		v.DecidedAt = &t
	}
	return v, nil
}
