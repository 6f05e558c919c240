// Package memstore is an in-memory journal used by tests and the local
// build target when no database is configured.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia/escrowd/internal/model"
	"github.com/custodia/escrowd/internal/store"
)

func New() store.Store { return &memStore{} }

type memStore struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *memStore) Events() store.Events { return (*memEvents)(s) }

func (s *memStore) HealthPing(ctx context.Context) error { return nil }

type memEvents memStore

func (e *memEvents) Append(ctx context.Context, evt *model.Event) (*model.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := *evt
	out.Seq = int64(len(e.events)) + 1
	if out.EventID == "" {
		out.EventID = uuid.New().String()
	}
	if out.CreationTime.IsZero() {
		out.CreationTime = time.Now().UTC()
	}
	e.events = append(e.events, out)
	return &out, nil
}

func (e *memEvents) Replay(ctx context.Context, fn func(*model.Event) error) error {
	e.mu.Lock()
	snapshot := make([]model.Event, len(e.events))
	copy(snapshot, e.events)
	e.mu.Unlock()

	for i := range snapshot {
		if err := fn(&snapshot[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *memEvents) Count(ctx context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(len(e.events)), nil
}
