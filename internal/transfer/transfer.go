// Package transfer abstracts moving value between external accounts and the
// escrow custody account. Implementations are atomic: a call either moves
// exactly the requested amount or fails with no effect.
package transfer

import (
	"context"

	"github.com/custodia/escrowd/internal/model"
)

// Mover is the transfer capability consumed by the vault engine. Both asset
// kinds (native currency and fungible tokens) satisfy it identically from
// the engine's perspective.
type Mover interface {
	// TransferIn pulls amount of asset from the given account into custody.
	TransferIn(ctx context.Context, asset model.Asset, from string, amount int64) error
	// TransferOut pays amount of asset from custody to the given account.
	TransferOut(ctx context.Context, asset model.Asset, to string, amount int64) error
}
