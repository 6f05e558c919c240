package model

import "time"

// Vault is a single locked, creator-owned fund pool tied to one asset and one
// lock deadline. Vaults are permanent records: once created they are never
// deleted, even after the pool drains to zero.
type Vault struct {
	VaultID      int64     `json:"vaultId"`
	Creator      string    `json:"creator"`
	Asset        Asset     `json:"asset"`
	Message      string    `json:"message"`
	CreationTime time.Time `json:"creationTime"`
	LockDeadline time.Time `json:"lockDeadline"`

	// PoolTotal holds funds available for settlement or creator withdrawal.
	// The remaining counters are cumulative and never decrease.
	PoolTotal    int64 `json:"poolTotal"`
	TotalDonated int64 `json:"totalDonated"`
	TotalSettled int64 `json:"totalSettled"`
	TotalClaimed int64 `json:"totalClaimed"`
}

// Entitlement tracks one recipient's cumulative settled vs. claimed amounts
// on a vault. ClaimedAmount never exceeds SettledAmount.
type Entitlement struct {
	VaultID       int64  `json:"vaultId"`
	Recipient     string `json:"recipient"`
	SettledAmount int64  `json:"settledAmount"`
	ClaimedAmount int64  `json:"claimedAmount"`
}

// Claimable is the outstanding amount a claim would pay out.
func (e Entitlement) Claimable() int64 { return e.SettledAmount - e.ClaimedAmount }

// EventKind names the journal record types emitted by the engine.
type EventKind string

const (
	EventVaultCreated         EventKind = "vault_created"
	EventFundsDonated         EventKind = "funds_donated"
	EventFundsSettled         EventKind = "funds_settled"
	EventFundsClaimed         EventKind = "funds_claimed"
	EventFundsWithdrawn       EventKind = "funds_withdrawn"
	EventEmergencyToggled     EventKind = "emergency_toggled"
	EventEmergencyWithdrawn   EventKind = "emergency_withdrawn"
	EventAssetAllowed         EventKind = "asset_allowed"
	EventAssetRemoved         EventKind = "asset_removed"
	EventAuthorityTransferred EventKind = "authority_transferred"
)

// Event is one append-only journal record. The journal is both the audit
// stream consumed by external indexers and the source the engine replays at
// startup to rebuild ledger state.
type Event struct {
	Seq          int64      `json:"seq"`
	EventID      string     `json:"eventId"`
	Kind         EventKind  `json:"kind"`
	VaultID      int64      `json:"vaultId,omitempty"`
	Actor        string     `json:"actor"`
	Recipient    string     `json:"recipient,omitempty"`
	Asset        Asset      `json:"asset,omitzero"`
	Amount       int64      `json:"amount,omitempty"`
	Message      string     `json:"message,omitempty"`
	LockDeadline *time.Time `json:"lockDeadline,omitempty"`
	CreationTime time.Time  `json:"creationTime"`
}
