package auth

import "context"

// ActorInfo identifies an authenticated caller. ActorID is the ledger
// identity donations, claims and withdrawals are booked against; whether an
// actor holds operator authority is decided by the engine, not here.
type ActorInfo struct {
	ActorID string `json:"actorId"`
	KeyName string `json:"keyName"`
}

// Authorizer resolves an API key to the acting identity.
type Authorizer interface {
	Authorize(ctx context.Context, apiKey string) (*ActorInfo, error)
}
