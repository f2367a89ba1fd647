package signing

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-marketplace/internal/model"
)

const DefaultMaxSkew = 5 * time.Minute

// Reasons a signature is rejected. They are logged and counted, never returned
// to the client.
const (
	ReasonMissingTimestamp   = "missing_timestamp"
	ReasonMalformedTimestamp = "malformed_timestamp"
	ReasonStaleTimestamp     = "stale_timestamp"
	ReasonMissingSignature   = "missing_signature"
	ReasonMalformedSignature = "malformed_signature"
	ReasonMalformedQuery     = "malformed_query"
	ReasonNoSigningKey       = "no_signing_key"
	ReasonMismatch           = "mismatch"
)

// KeyLookup returns the stored secret for an identity, or
// model.ErrSigningKeyNotFound.
type KeyLookup interface {
	GetSigningKey(ctx context.Context, identityID string) (string, error)
}

type Input struct {
	Method     string
	URL        string
	Body       []byte
	Timestamp  string
	Signature  string
	IdentityID string
}

type Result struct {
	Valid  bool
	Reason string
}

type Verifier struct {
	keys    KeyLookup
	maxSkew time.Duration
	nowFn   func() time.Time
}

func NewVerifier(keys KeyLookup, maxSkew time.Duration, nowFn func() time.Time) *Verifier {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Verifier{keys: keys, maxSkew: maxSkew, nowFn: nowFn}
}

func invalid(reason string) Result {
	return Result{Reason: reason}
}

// Verify checks freshness and the HMAC of a request as it was received. The
// returned error is reserved for key store failures.
func (v *Verifier) Verify(ctx context.Context, in Input) (Result, error) {
	timestamp := strings.TrimSpace(in.Timestamp)
	if timestamp == "" {
		return invalid(ReasonMissingTimestamp), nil
	}
	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || ms <= 0 {
		return invalid(ReasonMalformedTimestamp), nil
	}
	skew := v.nowFn().Sub(time.UnixMilli(ms))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return invalid(ReasonStaleTimestamp), nil
	}

	provided := strings.TrimSpace(in.Signature)
	if provided == "" {
		return invalid(ReasonMissingSignature), nil
	}
	providedBytes, err := hex.DecodeString(provided)
	if err != nil {
		return invalid(ReasonMalformedSignature), nil
	}

	if !QueryWellFormed(in.URL) {
		return invalid(ReasonMalformedQuery), nil
	}

	secret, err := v.keys.GetSigningKey(ctx, in.IdentityID)
	if errors.Is(err, model.ErrSigningKeyNotFound) {
		return invalid(ReasonNoSigningKey), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load signing key: %w", err)
	}

	canonical := BuildCanonical(in.Method, in.URL, in.Body, timestamp)
	expected, _ := hex.DecodeString(Sign(secret, canonical))
	if !hmac.Equal(providedBytes, expected) {
		return invalid(ReasonMismatch), nil
	}
	return Result{Valid: true}, nil
}
