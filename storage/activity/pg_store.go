package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists activity in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPGStore connects and initializes the schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PGStore{pool: pool, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS workhard_activity (
  id TEXT PRIMARY KEY,
  account TEXT NOT NULL,
  network TEXT NOT NULL,
  action TEXT NOT NULL,
  outcome TEXT NOT NULL,
  tx_hash TEXT,
  reason TEXT,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS workhard_activity_account_idx ON workhard_activity (lower(account), created_at DESC);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PGStore) Append(ctx context.Context, e Entry) (Entry, error) {
	e, err := prepare(e, s.now())
	if err != nil {
		return Entry{}, err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO workhard_activity (id, account, network, action, outcome, tx_hash, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Account, e.Network, e.Action, e.Outcome, e.TxHash, e.Reason, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("insert activity: %w", err)
	}
	return e, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Entry, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, account, network, action, outcome, COALESCE(tx_hash, ''), COALESCE(reason, ''), created_at
FROM workhard_activity WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get activity: %w", err)
	}
	return e, nil
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	query, args := listQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// listQuery builds the filtered select for f.
func listQuery(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Account != "" {
		args = append(args, strings.ToLower(f.Account))
		where = append(where, fmt.Sprintf("lower(account) = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if f.Outcome != "" {
		args = append(args, f.Outcome)
		where = append(where, fmt.Sprintf("outcome = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT id, account, network, action, outcome, COALESCE(tx_hash, ''), COALESCE(reason, ''), created_at FROM workhard_activity`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, limitOf(f))
	fmt.Fprintf(&b, " ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	return b.String(), args
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Account, &e.Network, &e.Action, &e.Outcome, &e.TxHash, &e.Reason, &e.CreatedAt)
	return e, err
}
