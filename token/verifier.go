package token

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var (
	// ErrMalformed indicates the token structure could not even be parsed.
	ErrMalformed = errors.New("malformed token")
	// ErrInvalidSignature indicates the token parsed but its signature did
	// not verify against the resolved key.
	ErrInvalidSignature = errors.New("invalid token signature")
)

// ParseLaunch verifies a launch token's structure and signature with the
// given signer and returns its claims. Expiry is deliberately not validated
// here: the exchanger checks it as its own ordered step so an expired token
// reports Expired rather than a generic parse failure.
func ParseLaunch(raw string, signer Signer) (*LaunchClaims, error) {
	claims := &LaunchClaims{}
	if err := parseInto(raw, claims, signer); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRuntime verifies a runtime token's structure and signature with the
// given signer and returns its claims. Expiry is checked by the caller.
func ParseRuntime(raw string, signer Signer) (*RuntimeClaims, error) {
	claims := &RuntimeClaims{}
	if err := parseInto(raw, claims, signer); err != nil {
		return nil, err
	}
	return claims, nil
}

func parseInto(raw string, claims jwt.Claims, signer Signer) error {
	if strings.Count(raw, ".") != 2 {
		return ErrMalformed
	}
	// Signature comparison inside jwt.Parse is constant-time for HMAC.
	tok, err := jwt.ParseWithClaims(raw, claims, signer.GetVerificationKey, jwt.WithoutClaimsValidation())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return ErrMalformed
		}
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if !tok.Valid {
		return ErrInvalidSignature
	}
	return nil
}

// DecodeLaunchPayload unmarshals a launch payload whose signature was
// already verified externally (a provider's remote key set).
func DecodeLaunchPayload(payload []byte) (*LaunchClaims, error) {
	claims := &LaunchClaims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

// UnverifiedLaunch decodes launch claims without checking the signature.
// Used only to learn which provider's key to resolve; callers must verify
// before trusting anything in the result.
func UnverifiedLaunch(raw string) (*LaunchClaims, error) {
	claims := &LaunchClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, ErrMalformed
	}
	return claims, nil
}
