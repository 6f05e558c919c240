package model

import "errors"

// Named failure conditions surfaced by the vault engine. Callers distinguish
// them with errors.Is; the HTTP layer maps each to a stable machine code.
var (
	ErrInvalidTokenAddress    = errors.New("asset is not on the allow-list")
	ErrInvalidLockDuration    = errors.New("lock duration shorter than minimum")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInsufficientPoolFunds  = errors.New("amount exceeds pooled funds")
	ErrEmergencyModeActive    = errors.New("emergency mode is active")
	ErrEmergencyModeNotActive = errors.New("emergency mode is not active")
	ErrLockPeriodNotExpired   = errors.New("lock period has not expired")
	ErrNoFundsToClaim         = errors.New("no funds to claim")
	ErrUnauthorizedAccess     = errors.New("caller is not authorized")
	ErrVaultNotFound          = errors.New("vault not found")
	ErrTransferFailed         = errors.New("transfer failed")
)
