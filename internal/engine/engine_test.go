package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/escrowd/internal/allowlist"
	"github.com/custodia/escrowd/internal/events"
	"github.com/custodia/escrowd/internal/model"
	"github.com/custodia/escrowd/internal/store/memstore"
	"github.com/custodia/escrowd/internal/transfer"
)

const operator = "operator-root"

var usdc = model.TokenAsset("usdc")

// fakeClock lets tests advance past lock deadlines.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testRig struct {
	eng   *Engine
	bank  *transfer.MemoryBank
	clock *fakeClock
	bus   *events.Bus
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	bank := transfer.NewMemoryBank()
	bus := events.NewBus(64)
	eng, err := New(Config{
		Operator:  operator,
		Mover:     bank,
		AllowList: allowlist.New(model.NativeAsset(), usdc),
		Store:     memstore.New(),
		Bus:       bus,
		Logger:    zerolog.Nop(),
		Now:       clock.Now,
	})
	require.NoError(t, err)
	return &testRig{eng: eng, bank: bank, clock: clock, bus: bus}
}

// checkInvariants asserts the ledger invariants that must hold after every
// operation, for the given recipients.
func checkInvariants(t *testing.T, eng *Engine, vaultID int64, recipients ...string) {
	t.Helper()
	v, err := eng.Vault(vaultID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.PoolTotal, int64(0), "pool total must never go negative")
	assert.LessOrEqual(t, v.TotalClaimed, v.TotalSettled, "claimed must not exceed settled")
	assert.LessOrEqual(t, v.TotalSettled, v.TotalDonated, "settled must not exceed donations")

	var sumClaimed int64
	for _, r := range recipients {
		ent, err := eng.Entitlement(vaultID, r)
		require.NoError(t, err)
		assert.LessOrEqual(t, ent.ClaimedAmount, ent.SettledAmount,
			"recipient %s claimed must not exceed settled", r)
		sumClaimed += ent.ClaimedAmount
	}
	assert.Equal(t, v.TotalClaimed, sumClaimed, "vault totalClaimed must equal sum of entitlements")
}

func TestCreateVault(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	v, err := rig.eng.CreateVault(ctx, "alice", "happy birthday", usdc, 14*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.VaultID)
	assert.Equal(t, "alice", v.Creator)
	assert.Equal(t, int64(0), v.PoolTotal)
	assert.Equal(t, rig.clock.Now().Add(14*24*time.Hour), v.LockDeadline)
	assert.Equal(t, int64(1), rig.eng.VaultCount())

	// Sequential ids, never reused.
	v2, err := rig.eng.CreateVault(ctx, "bob", "grant pool", model.NativeAsset(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2.VaultID)
}

func TestCreateVaultRejectsUnlistedAsset(t *testing.T) {
	rig := newRig(t)
	_, err := rig.eng.CreateVault(context.Background(), "alice", "m", model.TokenAsset("shady"), 14*24*time.Hour)
	assert.ErrorIs(t, err, model.ErrInvalidTokenAddress)
	assert.Equal(t, int64(0), rig.eng.VaultCount())
}

func TestCreateVaultRejectsShortLock(t *testing.T) {
	rig := newRig(t)
	_, err := rig.eng.CreateVault(context.Background(), "alice", "m", usdc, 13*24*time.Hour)
	assert.ErrorIs(t, err, model.ErrInvalidLockDuration)
}

func TestAllowListRemovalDoesNotInvalidateExistingVault(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)

	require.NoError(t, rig.eng.RemoveAllowedToken(ctx, operator, usdc))
	assert.False(t, rig.eng.IsAllowedToken(usdc))

	// Donations to the existing vault still work.
	rig.bank.Credit("bob", usdc, 50)
	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 50))

	// New vaults on the removed asset do not.
	_, err = rig.eng.CreateVault(ctx, "carol", "m", usdc, 14*24*time.Hour)
	assert.ErrorIs(t, err, model.ErrInvalidTokenAddress)
}

func TestAllowListOperatorOnlyAndIdempotent(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	dai := model.TokenAsset("dai")

	assert.ErrorIs(t, rig.eng.AddAllowedToken(ctx, "mallory", dai), model.ErrUnauthorizedAccess)
	assert.ErrorIs(t, rig.eng.RemoveAllowedToken(ctx, "mallory", usdc), model.ErrUnauthorizedAccess)

	require.NoError(t, rig.eng.AddAllowedToken(ctx, operator, dai))
	require.NoError(t, rig.eng.AddAllowedToken(ctx, operator, dai)) // no-op
	assert.True(t, rig.eng.IsAllowedToken(dai))

	require.NoError(t, rig.eng.RemoveAllowedToken(ctx, operator, dai))
	require.NoError(t, rig.eng.RemoveAllowedToken(ctx, operator, dai)) // no-op
	assert.False(t, rig.eng.IsAllowedToken(dai))
}

func TestDonateValidation(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, rig.eng.Donate(ctx, "bob", v.VaultID, 0), model.ErrInvalidAmount)
	assert.ErrorIs(t, rig.eng.Donate(ctx, "bob", v.VaultID, -5), model.ErrInvalidAmount)
	assert.ErrorIs(t, rig.eng.Donate(ctx, "bob", 99, 10), model.ErrVaultNotFound)
}

func TestDonateTransferFailureLeavesStateUntouched(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)

	// bob has no funds: the pull fails and the pool must not change.
	err = rig.eng.Donate(ctx, "bob", v.VaultID, 100)
	assert.ErrorIs(t, err, model.ErrTransferFailed)

	got, err := rig.eng.Vault(v.VaultID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.PoolTotal)
	assert.Equal(t, int64(0), got.TotalDonated)
}

// Scenario A: donate 100, settle 100, claim, then claim again.
func TestSettleClaimFullCycle(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	v, err := rig.eng.CreateVault(ctx, "alice", "happy birthday", usdc, 14*24*time.Hour)
	require.NoError(t, err)

	rig.bank.Credit("bob", usdc, 100)
	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 100))
	checkInvariants(t, rig.eng, v.VaultID, "rita")

	require.NoError(t, rig.eng.Settle(ctx, operator, v.VaultID, "rita", 100))
	checkInvariants(t, rig.eng, v.VaultID, "rita")

	paid, err := rig.eng.Claim(ctx, "rita", v.VaultID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), paid)
	assert.Equal(t, int64(100), rig.bank.BalanceOf("rita", usdc))

	got, err := rig.eng.Vault(v.VaultID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.PoolTotal)
	claimed, err := rig.eng.ClaimedAmount(v.VaultID, "rita")
	require.NoError(t, err)
	assert.Equal(t, int64(100), claimed)
	checkInvariants(t, rig.eng, v.VaultID, "rita")

	// A second claim after full payout must fail, not silently no-op.
	_, err = rig.eng.Claim(ctx, "rita", v.VaultID)
	assert.ErrorIs(t, err, model.ErrNoFundsToClaim)
}

// Scenario B: interleaved donations and settlements accumulate.
func TestInterleavedDonationsAndSettlements(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)

	rig.bank.Credit("bob", usdc, 70)
	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 30))
	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 40))

	require.NoError(t, rig.eng.Settle(ctx, operator, v.VaultID, "rita", 30))
	paid, err := rig.eng.Claim(ctx, "rita", v.VaultID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), paid)

	got, _ := rig.eng.Vault(v.VaultID)
	assert.Equal(t, int64(40), got.PoolTotal)
	assert.Equal(t, int64(30), got.TotalClaimed)

	require.NoError(t, rig.eng.Settle(ctx, operator, v.VaultID, "rita", 40))
	paid, err = rig.eng.Claim(ctx, "rita", v.VaultID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), paid)

	got, _ = rig.eng.Vault(v.VaultID)
	assert.Equal(t, int64(0), got.PoolTotal)
	assert.Equal(t, int64(70), got.TotalClaimed)
	assert.Equal(t, int64(70), rig.bank.BalanceOf("rita", usdc))
	checkInvariants(t, rig.eng, v.VaultID, "rita")
}

// Scenario C: withdraw is gated by the lock deadline.
func TestWithdrawLockDeadline(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)
	rig.bank.Credit("bob", usdc, 80)
	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 80))

	err = rig.eng.Withdraw(ctx, "alice", v.VaultID, 80)
	assert.ErrorIs(t, err, model.ErrLockPeriodNotExpired)

	rig.clock.Advance(14*24*time.Hour + time.Minute)
	require.NoError(t, rig.eng.Withdraw(ctx, "alice", v.VaultID, 80))
	assert.Equal(t, int64(80), rig.bank.BalanceOf("alice", usdc))

	got, _ := rig.eng.Vault(v.VaultID)
	assert.Equal(t, int64(0), got.PoolTotal)
	checkInvariants(t, rig.eng, v.VaultID)
}

func TestWithdrawCreatorOnly(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)
	rig.bank.Credit("bob", usdc, 50)
	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 50))
	rig.clock.Advance(15 * 24 * time.Hour)

	assert.ErrorIs(t, rig.eng.Withdraw(ctx, "bob", v.VaultID, 50), model.ErrUnauthorizedAccess)
	assert.ErrorIs(t, rig.eng.Withdraw(ctx, "alice", v.VaultID, 51), model.ErrInsufficientPoolFunds)
	require.NoError(t, rig.eng.Withdraw(ctx, "alice", v.VaultID, 50))
}

// Scenario D: emergency mode freezes normal operations.
func TestEmergencyMode(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)
	rig.bank.Credit("bob", usdc, 100)
	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 100))
	require.NoError(t, rig.eng.Settle(ctx, operator, v.VaultID, "rita", 10))

	assert.ErrorIs(t, func() error {
		_, err := rig.eng.ToggleEmergencyMode(ctx, "mallory")
		return err
	}(), model.ErrUnauthorizedAccess)

	on, err := rig.eng.ToggleEmergencyMode(ctx, operator)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, rig.eng.EmergencyMode())

	_, err = rig.eng.CreateVault(ctx, "carol", "m", usdc, 14*24*time.Hour)
	assert.ErrorIs(t, err, model.ErrEmergencyModeActive)
	assert.ErrorIs(t, rig.eng.Donate(ctx, "bob", v.VaultID, 1), model.ErrEmergencyModeActive)
	assert.ErrorIs(t, rig.eng.Settle(ctx, operator, v.VaultID, "rita", 1), model.ErrEmergencyModeActive)
	_, err = rig.eng.Claim(ctx, "rita", v.VaultID)
	assert.ErrorIs(t, err, model.ErrEmergencyModeActive)
	rig.clock.Advance(20 * 24 * time.Hour)
	assert.ErrorIs(t, rig.eng.Withdraw(ctx, "alice", v.VaultID, 10), model.ErrEmergencyModeActive)

	// Emergency withdrawal bypasses the lock deadline entirely.
	require.NoError(t, rig.eng.EmergencyWithdraw(ctx, operator, v.VaultID, 90))
	assert.Equal(t, int64(90), rig.bank.BalanceOf(operator, usdc))

	off, err := rig.eng.ToggleEmergencyMode(ctx, operator)
	require.NoError(t, err)
	assert.False(t, off)
	assert.ErrorIs(t, rig.eng.EmergencyWithdraw(ctx, operator, v.VaultID, 1), model.ErrEmergencyModeNotActive)
}

// Scenario E: settlement can never over-commit the pool.
func TestSettleCannotExceedPool(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)
	rig.bank.Credit("bob", usdc, 60)
	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 60))

	assert.ErrorIs(t, rig.eng.Settle(ctx, operator, v.VaultID, "rita", 61), model.ErrInsufficientPoolFunds)
	assert.ErrorIs(t, rig.eng.Settle(ctx, operator, v.VaultID, "rita", 0), model.ErrInvalidAmount)
	assert.ErrorIs(t, rig.eng.Settle(ctx, "mallory", v.VaultID, "rita", 10), model.ErrUnauthorizedAccess)

	require.NoError(t, rig.eng.Settle(ctx, operator, v.VaultID, "rita", 60))
	// Pool is drained; nothing more to settle even though donations totalled 60.
	assert.ErrorIs(t, rig.eng.Settle(ctx, operator, v.VaultID, "sam", 1), model.ErrInsufficientPoolFunds)
	checkInvariants(t, rig.eng, v.VaultID, "rita", "sam")
}

func TestClaimWithoutEntitlement(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)

	_, err = rig.eng.Claim(ctx, "nobody", v.VaultID)
	assert.ErrorIs(t, err, model.ErrNoFundsToClaim)
}

// failingMover fails every transfer-out, to prove claims roll back.
type failingMover struct{ transfer.Mover }

func (f failingMover) TransferOut(ctx context.Context, asset model.Asset, to string, amount int64) error {
	return errors.New("wire unplugged")
}

func TestClaimRollsBackOnTransferFailure(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	bank := transfer.NewMemoryBank()
	eng, err := New(Config{
		Operator:  operator,
		Mover:     failingMover{bank},
		AllowList: allowlist.New(usdc),
		Store:     memstore.New(),
		Logger:    zerolog.Nop(),
		Now:       clock.Now,
	})
	require.NoError(t, err)
	ctx := context.Background()

	v, err := eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)
	bank.Credit("bob", usdc, 100)
	require.NoError(t, eng.Donate(ctx, "bob", v.VaultID, 100))
	require.NoError(t, eng.Settle(ctx, operator, v.VaultID, "rita", 100))

	_, err = eng.Claim(ctx, "rita", v.VaultID)
	require.Error(t, err)

	// The entitlement must be fully restored: a later claim pays everything.
	ent, err := eng.Entitlement(v.VaultID, "rita")
	require.NoError(t, err)
	assert.Equal(t, int64(100), ent.SettledAmount)
	assert.Equal(t, int64(0), ent.ClaimedAmount)
	got, _ := eng.Vault(v.VaultID)
	assert.Equal(t, int64(0), got.TotalClaimed)
}

func TestMonotonicCounters(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)
	rig.bank.Credit("bob", usdc, 1000)

	type snapshot struct{ donated, settled, claimed, entSettled, entClaimed int64 }
	take := func() snapshot {
		got, err := rig.eng.Vault(v.VaultID)
		require.NoError(t, err)
		ent, err := rig.eng.Entitlement(v.VaultID, "rita")
		require.NoError(t, err)
		return snapshot{got.TotalDonated, got.TotalSettled, got.TotalClaimed, ent.SettledAmount, ent.ClaimedAmount}
	}

	prev := take()
	step := func() {
		cur := take()
		assert.GreaterOrEqual(t, cur.donated, prev.donated)
		assert.GreaterOrEqual(t, cur.settled, prev.settled)
		assert.GreaterOrEqual(t, cur.claimed, prev.claimed)
		assert.GreaterOrEqual(t, cur.entSettled, prev.entSettled)
		assert.GreaterOrEqual(t, cur.entClaimed, prev.entClaimed)
		prev = cur
	}

	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 500))
	step()
	require.NoError(t, rig.eng.Settle(ctx, operator, v.VaultID, "rita", 200))
	step()
	if _, err := rig.eng.Claim(ctx, "rita", v.VaultID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	step()
	require.NoError(t, rig.eng.Settle(ctx, operator, v.VaultID, "rita", 300))
	step()
	rig.clock.Advance(15 * 24 * time.Hour)
	// Withdraw drains the pool but cumulative counters never decrease.
	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 100))
	step()
	require.NoError(t, rig.eng.Withdraw(ctx, "alice", v.VaultID, 100))
	step()
}

func TestTransferAuthority(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	assert.ErrorIs(t, rig.eng.TransferAuthority(ctx, "mallory", "mallory"), model.ErrUnauthorizedAccess)

	require.NoError(t, rig.eng.TransferAuthority(ctx, operator, "operator-next"))
	assert.Equal(t, "operator-next", rig.eng.Operator())

	// The old operator loses every privileged surface.
	assert.ErrorIs(t, rig.eng.AddAllowedToken(ctx, operator, model.TokenAsset("dai")), model.ErrUnauthorizedAccess)
	require.NoError(t, rig.eng.AddAllowedToken(ctx, "operator-next", model.TokenAsset("dai")))
}

func TestEventsPublishedToBus(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	v, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)
	rig.bank.Credit("bob", usdc, 10)
	require.NoError(t, rig.eng.Donate(ctx, "bob", v.VaultID, 10))

	created := <-rig.bus.Subscribe()
	assert.Equal(t, model.EventVaultCreated, created.Kind)
	assert.Equal(t, int64(1), created.Seq)
	donated := <-rig.bus.Subscribe()
	assert.Equal(t, model.EventFundsDonated, donated.Kind)
	assert.Equal(t, "bob", donated.Actor)
	assert.Equal(t, int64(10), donated.Amount)
}

func TestRestoreRebuildsLedgerFromJournal(t *testing.T) {
	st := memstore.New()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	bank := transfer.NewMemoryBank()
	newEngine := func() *Engine {
		eng, err := New(Config{
			Operator:  operator,
			Mover:     bank,
			AllowList: allowlist.New(usdc),
			Store:     st,
			Logger:    zerolog.Nop(),
			Now:       clock.Now,
		})
		require.NoError(t, err)
		return eng
	}
	ctx := context.Background()

	eng := newEngine()
	v, err := eng.CreateVault(ctx, "alice", "happy birthday", usdc, 14*24*time.Hour)
	require.NoError(t, err)
	bank.Credit("bob", usdc, 100)
	require.NoError(t, eng.Donate(ctx, "bob", v.VaultID, 100))
	require.NoError(t, eng.Settle(ctx, operator, v.VaultID, "rita", 60))
	paid, err := eng.Claim(ctx, "rita", v.VaultID)
	require.NoError(t, err)
	require.Equal(t, int64(60), paid)
	require.NoError(t, eng.TransferAuthority(ctx, operator, "operator-next"))
	_, err = eng.ToggleEmergencyMode(ctx, "operator-next")
	require.NoError(t, err)

	// A fresh engine over the same journal converges to the same state.
	restored := newEngine()
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, int64(1), restored.VaultCount())
	got, err := restored.Vault(v.VaultID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Creator)
	assert.Equal(t, "happy birthday", got.Message)
	assert.Equal(t, usdc, got.Asset)
	assert.Equal(t, int64(40), got.PoolTotal)
	assert.Equal(t, int64(100), got.TotalDonated)
	assert.Equal(t, int64(60), got.TotalSettled)
	assert.Equal(t, int64(60), got.TotalClaimed)

	ent, err := restored.Entitlement(v.VaultID, "rita")
	require.NoError(t, err)
	assert.Equal(t, int64(60), ent.SettledAmount)
	assert.Equal(t, int64(60), ent.ClaimedAmount)

	assert.Equal(t, "operator-next", restored.Operator())
	assert.True(t, restored.EmergencyMode())
}

func TestRestoreRejectsSecondRun(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	_, err := rig.eng.CreateVault(ctx, "alice", "m", usdc, 14*24*time.Hour)
	require.NoError(t, err)

	err = rig.eng.Restore(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has state")
}
