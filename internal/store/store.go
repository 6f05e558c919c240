package store

import (
	"context"

	"github.com/custodia/escrowd/internal/model"
)

// Store exposes the append-only event journal required by the engine.
// Implementations live under internal/store/<driver>/ (postgres, sqlite,
// memstore).
type Store interface {
	Events() Events
}

// Events is the journal itself. Append assigns the sequence number and,
// when absent, the event id and creation time. Replay visits events in
// sequence order; journal rows are never updated or deleted.
type Events interface {
	Append(ctx context.Context, e *model.Event) (*model.Event, error)
	Replay(ctx context.Context, fn func(*model.Event) error) error
	Count(ctx context.Context) (int64, error)
}

// HealthPinger is implemented by stores that can probe their backend.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
