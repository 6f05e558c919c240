package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AssetKind discriminates the two transferable asset families.
type AssetKind string

const (
	AssetNative AssetKind = "native"
	AssetToken  AssetKind = "token"
)

// Asset is a tagged variant: the native currency, or a fungible token
// reference. Wire format is "native" or "token:<identifier>".
type Asset struct {
	Kind  AssetKind
	Token string
}

func NativeAsset() Asset { return Asset{Kind: AssetNative} }

func TokenAsset(identifier string) Asset {
	return Asset{Kind: AssetToken, Token: identifier}
}

// ParseAsset parses the wire format. The token identifier must be non-empty.
func ParseAsset(s string) (Asset, error) {
	if s == string(AssetNative) {
		return NativeAsset(), nil
	}
	if id, ok := strings.CutPrefix(s, string(AssetToken)+":"); ok {
		if id == "" {
			return Asset{}, fmt.Errorf("%w: empty token identifier", ErrInvalidTokenAddress)
		}
		return TokenAsset(id), nil
	}
	return Asset{}, fmt.Errorf("%w: %q", ErrInvalidTokenAddress, s)
}

func (a Asset) IsNative() bool { return a.Kind == AssetNative }

func (a Asset) IsZero() bool { return a.Kind == "" }

func (a Asset) String() string {
	if a.Kind == AssetToken {
		return string(AssetToken) + ":" + a.Token
	}
	return string(AssetNative)
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Asset) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAsset(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
