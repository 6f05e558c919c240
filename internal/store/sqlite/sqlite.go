package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/custodia/escrowd/internal/model"
	"github.com/custodia/escrowd/internal/store"
)

// Open opens (or creates) a SQLite database file and applies the journal
// schema. Use ":memory:" for an ephemeral journal.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer: the engine serializes appends anyway, and modernc's
	// driver does not support concurrent writers on one file.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a SQLite-backed journal over an existing connection.
func NewWithDB(db *sql.DB) store.Store { return &liteStore{db: db} }

type liteStore struct{ db *sql.DB }

func (s *liteStore) Events() store.Events { return &events{db: s.db} }

// HealthPing implements store.HealthPinger.
func (s *liteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS escrow_events (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id      TEXT NOT NULL UNIQUE,
    kind          TEXT NOT NULL,
    vault_id      INTEGER NOT NULL DEFAULT 0,
    actor         TEXT NOT NULL,
    recipient     TEXT NOT NULL DEFAULT '',
    asset         TEXT NOT NULL DEFAULT '',
    amount        INTEGER NOT NULL DEFAULT 0,
    message       TEXT NOT NULL DEFAULT '',
    lock_deadline TIMESTAMP,
    creation_time TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS escrow_events_vault_idx ON escrow_events (vault_id, seq);
`

type events struct{ db *sql.DB }

func (e *events) Append(ctx context.Context, evt *model.Event) (*model.Event, error) {
	out := *evt
	if out.EventID == "" {
		out.EventID = uuid.New().String()
	}
	if out.CreationTime.IsZero() {
		out.CreationTime = time.Now().UTC()
	}
	asset := ""
	if !out.Asset.IsZero() {
		asset = out.Asset.String()
	}
	res, err := e.db.ExecContext(ctx, `
        INSERT INTO escrow_events (event_id, kind, vault_id, actor, recipient, asset, amount, message, lock_deadline, creation_time)
        VALUES (?,?,?,?,?,?,?,?,?,?)
    `, out.EventID, string(out.Kind), out.VaultID, out.Actor, out.Recipient, asset, out.Amount, out.Message, out.LockDeadline, out.CreationTime)
	if err != nil {
		return nil, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out.Seq = seq
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
		var (
			out      model.Event
			kind     string
			asset    string
			deadline *time.Time
		)
		if err := rows.Scan(&out.Seq, &out.EventID, &kind, &out.VaultID, &out.Actor,
			&out.Recipient, &asset, &out.Amount, &out.Message, &deadline, &out.CreationTime); err != nil {
			return err
		}
		out.Kind = model.EventKind(kind)
		if asset != "" {
			a, err := model.ParseAsset(asset)
			if err != nil {
				return fmt.Errorf("journal seq %d: %w", out.Seq, err)
			}
			out.Asset = a
		}
		out.LockDeadline = deadline
		if err := fn(&out); err != nil {
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
