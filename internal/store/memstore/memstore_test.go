package memstore

import (
	"testing"

	"github.com/custodia/escrowd/internal/store"
	"github.com/custodia/escrowd/internal/store/storetest"
)

func TestMemStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}
