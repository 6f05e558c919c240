package validate

import (
	"fmt"
	"regexp"
)

// actorRx keeps ledger identities simple: lowercase letters, digits, hyphen,
// underscore, 1-64 chars.
var actorRx = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Actor validates a ledger identity (creator, donor, recipient, operator).
func Actor(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !actorRx.MatchString(v) {
		return fmt.Errorf("%s must match %s", field, actorRx.String())
	}
	return nil
}

// Message validates the vault message: required, at most 500 bytes.
func Message(v string) error {
	if v == "" {
		return fmt.Errorf("message is required")
	}
	if len(v) > 500 {
		return fmt.Errorf("message exceeds 500 characters")
	}
	return nil
}

// Amount validates a transfer amount.
func Amount(v int64) error {
	if v <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// LockSeconds validates the requested lock duration before the engine
// compares it against the configured minimum.
func LockSeconds(v int64) error {
	if v <= 0 {
		return fmt.Errorf("lockSeconds must be positive")
	}
	return nil
}

func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}
