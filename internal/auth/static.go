package auth

import (
	"context"
	"strings"
)

// StaticAuthorizer resolves keys from a fixed table, typically loaded from
// configuration at startup.
type StaticAuthorizer struct {
	keys map[string]ActorInfo // apiKey -> actor
}

func NewStaticAuthorizer(keys map[string]ActorInfo) *StaticAuthorizer {
	cp := make(map[string]ActorInfo, len(keys))
	for k, v := range keys {
		cp[k] = v
	}
	return &StaticAuthorizer{keys: cp}
}

func (a *StaticAuthorizer) Authorize(ctx context.Context, apiKey string) (*ActorInfo, error) {
	info, ok := a.keys[apiKey]
	if !ok {
		return nil, ErrInvalidAPIKey
	}
	out := info
	return &out, nil
}

// DevKeyPrefix prefixes self-identifying development keys.
const DevKeyPrefix = "sk_dev_"

// DevAuthorizer accepts any key of the form "sk_dev_<actor>" and resolves it
// to that actor. It layers over a static table so configured keys (the
// operator's, usually) still work. Local development only.
type DevAuthorizer struct {
	static *StaticAuthorizer
}

func NewDevAuthorizer(static *StaticAuthorizer) *DevAuthorizer {
	return &DevAuthorizer{static: static}
}

func (a *DevAuthorizer) Authorize(ctx context.Context, apiKey string) (*ActorInfo, error) {
	if a.static != nil {
		if info, err := a.static.Authorize(ctx, apiKey); err == nil {
			return info, nil
		}
	}
	if actor, ok := strings.CutPrefix(apiKey, DevKeyPrefix); ok && actor != "" {
		return &ActorInfo{ActorID: actor, KeyName: "dev key"}, nil
	}
	return nil, ErrInvalidAPIKey
}
