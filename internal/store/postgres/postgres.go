package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/custodia/escrowd/internal/model"
	"github.com/custodia/escrowd/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and
// verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a Postgres-backed journal over an existing connection.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Events() store.Events { return &events{db: s.db} }

// HealthPing implements store.HealthPinger.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS escrow_events (
    seq           BIGSERIAL PRIMARY KEY,
    event_id      TEXT NOT NULL UNIQUE,
    kind          TEXT NOT NULL,
    vault_id      BIGINT NOT NULL DEFAULT 0,
    actor         TEXT NOT NULL,
    recipient     TEXT NOT NULL DEFAULT '',
    asset         TEXT NOT NULL DEFAULT '',
    amount        BIGINT NOT NULL DEFAULT 0,
    message       TEXT NOT NULL DEFAULT '',
    lock_deadline TIMESTAMPTZ,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS escrow_events_vault_idx ON escrow_events (vault_id, seq);
`

// Bootstrap applies the journal schema and verifies connectivity.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

type events struct{ db *sql.DB }

func (e *events) Append(ctx context.Context, evt *model.Event) (*model.Event, error) {
	out := *evt
	if out.EventID == "" {
		out.EventID = uuid.New().String()
	}
	asset := ""
	if !out.Asset.IsZero() {
		asset = out.Asset.String()
	}
	row := e.db.QueryRowContext(ctx, `
        INSERT INTO escrow_events (event_id, kind, vault_id, actor, recipient, asset, amount, message, lock_deadline)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING seq, creation_time
    `, out.EventID, string(out.Kind), out.VaultID, out.Actor, out.Recipient, asset, out.Amount, out.Message, out.LockDeadline)
	if err := row.Scan(&out.Seq, &out.CreationTime); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *events) Replay(ctx context.Context, fn func(*model.Event) error) error {
	rows, err := e.db.QueryContext(ctx, `
        SELECT seq, event_id, kind, vault_id, actor, recipient, asset, amount, message, lock_deadline, creation_time
        FROM escrow_events ORDER BY seq
    `)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (e *events) Count(ctx context.Context) (int64, error) {
	var n int64
	err := e.db.QueryRowContext(ctx, `SELECT count(*) FROM escrow_events`).Scan(&n)
	return n, err
}

func scanEvent(rows *sql.Rows) (*model.Event, error) {
	var (
		out      model.Event
		kind     string
		asset    string
		deadline *time.Time
	)
	if err := rows.Scan(&out.Seq, &out.EventID, &kind, &out.VaultID, &out.Actor,
		&out.Recipient, &asset, &out.Amount, &out.Message, &deadline, &out.CreationTime); err != nil {
		return nil, err
	}
	out.Kind = model.EventKind(kind)
	if asset != "" {
		a, err := model.ParseAsset(asset)
		if err != nil {
			return nil, fmt.Errorf("journal seq %d: %w", out.Seq, err)
		}
		out.Asset = a
	}
	out.LockDeadline = deadline
	return &out, nil
}
