// Package engine implements the custodial escrow ledger: vault creation,
// donations, operator settlements, recipient claims, time-locked creator
// withdrawals and the emergency override.
//
// Every state-mutating operation runs under one mutex, giving the ledger the
// serialized single-writer semantics the accounting depends on: no operation
// ever observes a partially applied effect of another. External transfers are
// ordered so that a transfer-out can never observe a balance the ledger has
// not yet reduced.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/custodia/escrowd/internal/allowlist"
	"github.com/custodia/escrowd/internal/events"
	"github.com/custodia/escrowd/internal/model"
	"github.com/custodia/escrowd/internal/store"
	"github.com/custodia/escrowd/internal/transfer"
)

// DefaultMinLockTime is the minimum lock duration accepted at vault creation.
const DefaultMinLockTime = 14 * 24 * time.Hour

// Config wires the engine's collaborators.
type Config struct {
	// Operator is the privileged identity at startup. A journal replay may
	// move authority past it.
	Operator string

	MinLockTime time.Duration // defaults to DefaultMinLockTime
	Mover       transfer.Mover
	AllowList   *allowlist.Set
	Store       store.Store
	Bus         *events.Bus // optional
	Logger      zerolog.Logger
	Now         func() time.Time // defaults to time.Now
}

type entitlementKey struct {
	vaultID   int64
	recipient string
}

type Engine struct {
	mu sync.Mutex

	operator  string
	emergency bool

	// Arena storage: vaults indexed by id-1, entitlements keyed by
	// (vault, recipient). Both are append-only; nothing is ever deleted.
	vaults       []*model.Vault
	entitlements map[entitlementKey]*model.Entitlement

	minLock time.Duration
	mover   transfer.Mover
	allowed *allowlist.Set
	store   store.Store
	bus     *events.Bus
	log     zerolog.Logger
	now     func() time.Time
}

func New(cfg Config) (*Engine, error) {
	if cfg.Operator == "" {
		return nil, fmt.Errorf("engine: operator identity is required")
	}
	if cfg.Mover == nil {
		return nil, fmt.Errorf("engine: transfer mover is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if cfg.AllowList == nil {
		cfg.AllowList = allowlist.New()
	}
	if cfg.MinLockTime <= 0 {
		cfg.MinLockTime = DefaultMinLockTime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		operator:     cfg.Operator,
		entitlements: make(map[entitlementKey]*model.Entitlement),
		minLock:      cfg.MinLockTime,
		mover:        cfg.Mover,
		allowed:      cfg.AllowList,
		store:        cfg.Store,
		bus:          cfg.Bus,
		log:          cfg.Logger,
		now:          cfg.Now,
	}, nil
}

// CreateVault opens a new vault for the calling actor. The asset must be on
// the allow-list at creation time; later removal does not affect the vault.
func (e *Engine) CreateVault(ctx context.Context, actor, message string, asset model.Asset, lockDuration time.Duration) (*model.Vault, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.emergency {
		return nil, model.ErrEmergencyModeActive
	}
	if !e.allowed.Contains(asset) {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidTokenAddress, asset)
	}
	if lockDuration < e.minLock {
		return nil, fmt.Errorf("%w: %s < %s", model.ErrInvalidLockDuration, lockDuration, e.minLock)
	}

	now := e.now().UTC()
	v := &model.Vault{
		VaultID:      int64(len(e.vaults)) + 1,
		Creator:      actor,
		Asset:        asset,
		Message:      message,
		CreationTime: now,
		LockDeadline: now.Add(lockDuration),
	}
	deadline := v.LockDeadline
	if err := e.record(ctx, model.Event{
		Kind:         model.EventVaultCreated,
		VaultID:      v.VaultID,
		Actor:        actor,
		Asset:        asset,
		Message:      message,
		LockDeadline: &deadline,
	}); err != nil {
		return nil, err
	}
	e.vaults = append(e.vaults, v)

	e.log.Info().Int64("vault_id", v.VaultID).Str("creator", actor).
		Str("asset", asset.String()).Time("lock_deadline", v.LockDeadline).
		Msg("vault created")
	out := *v
	return &out, nil
}

// Donate pulls amount from the donor into custody and credits the pool.
// Any party may donate to any open vault, not only the creator.
func (e *Engine) Donate(ctx context.Context, actor string, vaultID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.emergency {
		return model.ErrEmergencyModeActive
	}
	v, err := e.vault(vaultID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", model.ErrInvalidAmount, amount)
	}

	// Pull first: the pool is credited only with funds custody actually holds.
	if err := e.mover.TransferIn(ctx, v.Asset, actor, amount); err != nil {
		return err
	}
	v.PoolTotal += amount
	v.TotalDonated += amount

	e.journal(ctx, model.Event{
		Kind:    model.EventFundsDonated,
		VaultID: vaultID,
		Actor:   actor,
		Asset:   v.Asset,
		Amount:  amount,
	})
	e.log.Info().Int64("vault_id", vaultID).Str("donor", actor).
		Int64("amount", amount).Int64("pool_total", v.PoolTotal).
		Msg("funds donated")
	return nil
}

// Settle reserves pooled funds for a recipient. Operator-only; no value
// moves until the recipient claims. The pool cap is the anti-double-spend
// guard: cumulative settlements can never exceed cumulative donations.
func (e *Engine) Settle(ctx context.Context, actor string, vaultID int64, recipient string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if actor != e.operator {
		return model.ErrUnauthorizedAccess
	}
	if e.emergency {
		return model.ErrEmergencyModeActive
	}
	v, err := e.vault(vaultID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", model.ErrInvalidAmount, amount)
	}
	if amount > v.PoolTotal {
		return fmt.Errorf("%w: settle %d > pool %d", model.ErrInsufficientPoolFunds, amount, v.PoolTotal)
	}

	if err := e.record(ctx, model.Event{
		Kind:      model.EventFundsSettled,
		VaultID:   vaultID,
		Actor:     actor,
		Recipient: recipient,
		Asset:     v.Asset,
		Amount:    amount,
	}); err != nil {
		return err
	}
	v.PoolTotal -= amount
	v.TotalSettled += amount
	e.entitlement(vaultID, recipient).SettledAmount += amount

	e.log.Info().Int64("vault_id", vaultID).Str("recipient", recipient).
		Int64("amount", amount).Int64("pool_total", v.PoolTotal).
		Msg("funds settled")
	return nil
}

// Claim pays the caller's full outstanding entitlement on the vault and
// returns the amount paid. A claim with nothing outstanding fails with
// ErrNoFundsToClaim rather than silently paying zero.
func (e *Engine) Claim(ctx context.Context, actor string, vaultID int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.emergency {
		return 0, model.ErrEmergencyModeActive
	}
	v, err := e.vault(vaultID)
	if err != nil {
		return 0, err
	}
	ent, ok := e.entitlements[entitlementKey{vaultID, actor}]
	if !ok || ent.Claimable() <= 0 {
		return 0, model.ErrNoFundsToClaim
	}
	claimable := ent.Claimable()

	// Ledger first, payout last: the entitlement is marked claimed before
	// the external transfer runs, and restored only if the transfer fails.
	ent.ClaimedAmount += claimable
	v.TotalClaimed += claimable
	if err := e.mover.TransferOut(ctx, v.Asset, actor, claimable); err != nil {
		ent.ClaimedAmount -= claimable
		v.TotalClaimed -= claimable
		return 0, err
	}

	e.journal(ctx, model.Event{
		Kind:      model.EventFundsClaimed,
		VaultID:   vaultID,
		Actor:     actor,
		Recipient: actor,
		Asset:     v.Asset,
		Amount:    claimable,
	})
	e.log.Info().Int64("vault_id", vaultID).Str("recipient", actor).
		Int64("amount", claimable).Msg("funds claimed")
	return claimable, nil
}

// Withdraw returns unsettled pool funds to the creator once the lock
// deadline has passed.
func (e *Engine) Withdraw(ctx context.Context, actor string, vaultID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.emergency {
		return model.ErrEmergencyModeActive
	}
	v, err := e.vault(vaultID)
	if err != nil {
		return err
	}
	if actor != v.Creator {
		return model.ErrUnauthorizedAccess
	}
	if e.now().Before(v.LockDeadline) {
		return fmt.Errorf("%w: deadline %s", model.ErrLockPeriodNotExpired, v.LockDeadline.Format(time.RFC3339))
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", model.ErrInvalidAmount, amount)
	}
	if amount > v.PoolTotal {
		return fmt.Errorf("%w: withdraw %d > pool %d", model.ErrInsufficientPoolFunds, amount, v.PoolTotal)
	}

	v.PoolTotal -= amount
	if err := e.mover.TransferOut(ctx, v.Asset, actor, amount); err != nil {
		v.PoolTotal += amount
		return err
	}

	e.journal(ctx, model.Event{
		Kind:    model.EventFundsWithdrawn,
		VaultID: vaultID,
		Actor:   actor,
		Asset:   v.Asset,
		Amount:  amount,
	})
	e.log.Info().Int64("vault_id", vaultID).Str("creator", actor).
		Int64("amount", amount).Int64("pool_total", v.PoolTotal).
		Msg("funds withdrawn")
	return nil
}

// ToggleEmergencyMode flips the global emergency flag. While the flag is on,
// every normal operation is rejected and only EmergencyWithdraw is permitted.
func (e *Engine) ToggleEmergencyMode(ctx context.Context, actor string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if actor != e.operator {
		return false, model.ErrUnauthorizedAccess
	}
	if err := e.record(ctx, model.Event{
		Kind:  model.EventEmergencyToggled,
		Actor: actor,
	}); err != nil {
		return false, err
	}
	e.emergency = !e.emergency

	e.log.Warn().Bool("emergency", e.emergency).Msg("emergency mode toggled")
	return e.emergency, nil
}

// EmergencyWithdraw pulls funds out of a vault to the operator, bypassing
// the lock deadline. Valid only while emergency mode is on.
func (e *Engine) EmergencyWithdraw(ctx context.Context, actor string, vaultID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if actor != e.operator {
		return model.ErrUnauthorizedAccess
	}
	if !e.emergency {
		return model.ErrEmergencyModeNotActive
	}
	v, err := e.vault(vaultID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", model.ErrInvalidAmount, amount)
	}
	if amount > v.PoolTotal {
		return fmt.Errorf("%w: withdraw %d > pool %d", model.ErrInsufficientPoolFunds, amount, v.PoolTotal)
	}

	v.PoolTotal -= amount
	if err := e.mover.TransferOut(ctx, v.Asset, actor, amount); err != nil {
		v.PoolTotal += amount
		return err
	}

	e.journal(ctx, model.Event{
		Kind:    model.EventEmergencyWithdrawn,
		VaultID: vaultID,
		Actor:   actor,
		Asset:   v.Asset,
		Amount:  amount,
	})
	e.log.Warn().Int64("vault_id", vaultID).Int64("amount", amount).
		Msg("emergency withdrawal")
	return nil
}

// TransferAuthority hands the operator role to a new identity. Only the
// current holder may call it.
func (e *Engine) TransferAuthority(ctx context.Context, actor, newOperator string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if actor != e.operator {
		return model.ErrUnauthorizedAccess
	}
	if newOperator == "" {
		return fmt.Errorf("%w: empty operator identity", model.ErrUnauthorizedAccess)
	}
	if err := e.record(ctx, model.Event{
		Kind:      model.EventAuthorityTransferred,
		Actor:     actor,
		Recipient: newOperator,
	}); err != nil {
		return err
	}
	e.operator = newOperator

	e.log.Warn().Str("from", actor).Str("to", newOperator).Msg("authority transferred")
	return nil
}

// AddAllowedToken puts an asset on the allow-list. Operator-only; adding an
// already-present asset is a no-op.
func (e *Engine) AddAllowedToken(ctx context.Context, actor string, asset model.Asset) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if actor != e.operator {
		return model.ErrUnauthorizedAccess
	}
	if e.allowed.Contains(asset) {
		return nil
	}
	if err := e.record(ctx, model.Event{
		Kind:  model.EventAssetAllowed,
		Actor: actor,
		Asset: asset,
	}); err != nil {
		return err
	}
	e.allowed.Add(asset)
	return nil
}

// RemoveAllowedToken takes an asset off the allow-list. Operator-only;
// removing an absent asset is a no-op. Existing vaults keep their asset.
func (e *Engine) RemoveAllowedToken(ctx context.Context, actor string, asset model.Asset) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if actor != e.operator {
		return model.ErrUnauthorizedAccess
	}
	if !e.allowed.Contains(asset) {
		return nil
	}
	if err := e.record(ctx, model.Event{
		Kind:  model.EventAssetRemoved,
		Actor: actor,
		Asset: asset,
	}); err != nil {
		return err
	}
	e.allowed.Remove(asset)
	return nil
}

// --- Queries ---

// Vault returns a copy of the vault record.
func (e *Engine) Vault(vaultID int64) (*model.Vault, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vault(vaultID)
	if err != nil {
		return nil, err
	}
	out := *v
	return &out, nil
}

// Vaults returns copies of all vault records in id order.
func (e *Engine) Vaults() []*model.Vault {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*model.Vault, len(e.vaults))
	for i, v := range e.vaults {
		c := *v
		out[i] = &c
	}
	return out
}

// VaultCount returns the number of vaults ever created.
func (e *Engine) VaultCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(len(e.vaults))
}

// Entitlement returns the recipient's entitlement on the vault. Recipients
// with no settlement history get a zero-valued record.
func (e *Engine) Entitlement(vaultID int64, recipient string) (model.Entitlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.vault(vaultID); err != nil {
		return model.Entitlement{}, err
	}
	if ent, ok := e.entitlements[entitlementKey{vaultID, recipient}]; ok {
		return *ent, nil
	}
	return model.Entitlement{VaultID: vaultID, Recipient: recipient}, nil
}

// ClaimedAmount returns the cumulative amount paid to the recipient.
func (e *Engine) ClaimedAmount(vaultID int64, recipient string) (int64, error) {
	ent, err := e.Entitlement(vaultID, recipient)
	if err != nil {
		return 0, err
	}
	return ent.ClaimedAmount, nil
}

// MaxClaimableAmount returns the cumulative amount ever settled to the
// recipient on the vault.
func (e *Engine) MaxClaimableAmount(vaultID int64, recipient string) (int64, error) {
	ent, err := e.Entitlement(vaultID, recipient)
	if err != nil {
		return 0, err
	}
	return ent.SettledAmount, nil
}

// IsAllowedToken reports allow-list membership.
func (e *Engine) IsAllowedToken(asset model.Asset) bool {
	return e.allowed.Contains(asset)
}

// EmergencyMode reports the global emergency flag.
func (e *Engine) EmergencyMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emergency
}

// Operator returns the current privileged identity.
func (e *Engine) Operator() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.operator
}

// --- Internal helpers (callers hold e.mu) ---

func (e *Engine) vault(vaultID int64) (*model.Vault, error) {
	if vaultID < 1 || vaultID > int64(len(e.vaults)) {
		return nil, fmt.Errorf("%w: %d", model.ErrVaultNotFound, vaultID)
	}
	return e.vaults[vaultID-1], nil
}

func (e *Engine) entitlement(vaultID int64, recipient string) *model.Entitlement {
	key := entitlementKey{vaultID, recipient}
	ent, ok := e.entitlements[key]
	if !ok {
		ent = &model.Entitlement{VaultID: vaultID, Recipient: recipient}
		e.entitlements[key] = ent
	}
	return ent
}

// record appends a journal event before the ledger mutation it describes.
// Used by operations with no external transfer: an append failure aborts the
// operation cleanly, keeping journal and ledger in lockstep.
func (e *Engine) record(ctx context.Context, evt model.Event) error {
	stored, err := e.store.Events().Append(ctx, &evt)
	if err != nil {
		e.log.Error().Err(err).Str("kind", string(evt.Kind)).Msg("journal append failed")
		return fmt.Errorf("journal append: %w", err)
	}
	if e.bus != nil {
		e.bus.Publish(*stored)
	}
	return nil
}

// journal appends after an external transfer has already moved funds. The
// ledger stays committed even if the append fails: value has moved, so the
// funds-consistent state wins and the gap is surfaced through the error log
// and the store health checker.
func (e *Engine) journal(ctx context.Context, evt model.Event) {
	stored, err := e.store.Events().Append(ctx, &evt)
	if err != nil {
		e.log.Error().Err(err).Str("kind", string(evt.Kind)).
			Int64("vault_id", evt.VaultID).Int64("amount", evt.Amount).
			Msg("journal append failed after transfer; journal diverges from ledger")
		return
	}
	if e.bus != nil {
		e.bus.Publish(*stored)
	}
}
