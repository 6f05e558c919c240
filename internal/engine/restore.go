package engine

import (
	"context"
	"fmt"

	"github.com/custodia/escrowd/internal/model"
)

// Restore rebuilds ledger state by replaying the journal. It must run before
// the engine serves requests; replay applies state transitions only and
// never re-executes external transfers or re-appends events.
func (e *Engine) Restore(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.vaults) > 0 {
		return fmt.Errorf("restore: engine already has state")
	}

	var replayed int64
	err := e.store.Events().Replay(ctx, func(evt *model.Event) error {
		replayed++
		return e.apply(evt)
	})
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	if replayed > 0 {
		e.log.Info().Int64("events", replayed).Int("vaults", len(e.vaults)).
			Bool("emergency", e.emergency).Msg("ledger restored from journal")
	}
	return nil
}

func (e *Engine) apply(evt *model.Event) error {
	switch evt.Kind {
	case model.EventVaultCreated:
		if want := int64(len(e.vaults)) + 1; evt.VaultID != want {
			return fmt.Errorf("journal seq %d: vault id %d, expected %d", evt.Seq, evt.VaultID, want)
		}
		if evt.LockDeadline == nil {
			return fmt.Errorf("journal seq %d: vault_created without lock deadline", evt.Seq)
		}
		e.vaults = append(e.vaults, &model.Vault{
			VaultID:      evt.VaultID,
			Creator:      evt.Actor,
			Asset:        evt.Asset,
			Message:      evt.Message,
			CreationTime: evt.CreationTime,
			LockDeadline: *evt.LockDeadline,
		})

	case model.EventFundsDonated:
		v, err := e.vault(evt.VaultID)
		if err != nil {
			return fmt.Errorf("journal seq %d: %w", evt.Seq, err)
		}
		v.PoolTotal += evt.Amount
		v.TotalDonated += evt.Amount

	case model.EventFundsSettled:
		v, err := e.vault(evt.VaultID)
		if err != nil {
			return fmt.Errorf("journal seq %d: %w", evt.Seq, err)
		}
		v.PoolTotal -= evt.Amount
		v.TotalSettled += evt.Amount
		e.entitlement(evt.VaultID, evt.Recipient).SettledAmount += evt.Amount

	case model.EventFundsClaimed:
		v, err := e.vault(evt.VaultID)
		if err != nil {
			return fmt.Errorf("journal seq %d: %w", evt.Seq, err)
		}
		v.TotalClaimed += evt.Amount
		e.entitlement(evt.VaultID, evt.Recipient).ClaimedAmount += evt.Amount

	case model.EventFundsWithdrawn, model.EventEmergencyWithdrawn:
		v, err := e.vault(evt.VaultID)
		if err != nil {
			return fmt.Errorf("journal seq %d: %w", evt.Seq, err)
		}
		v.PoolTotal -= evt.Amount

	case model.EventEmergencyToggled:
		e.emergency = !e.emergency

	case model.EventAuthorityTransferred:
		e.operator = evt.Recipient

	case model.EventAssetAllowed:
		e.allowed.Add(evt.Asset)

	case model.EventAssetRemoved:
		e.allowed.Remove(evt.Asset)

	default:
		return fmt.Errorf("journal seq %d: unknown event kind %q", evt.Seq, evt.Kind)
	}
	return nil
}
