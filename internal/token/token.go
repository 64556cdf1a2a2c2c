package token

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMalformed means the token value or expiry is absent or unusable.
	ErrMalformed = errors.New("token malformed")
	// ErrExpired means the token's expiry timestamp has passed.
	ErrExpired = errors.New("token expired")
)

// Token is one issuance of the rotating QR bearer token. Timestamps are
// milliseconds since epoch. Immutable once issued; validity is computed,
// never stored.
type Token struct {
	Value     string `json:"value"`
	IssuedAt  int64  `json:"issuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Codec issues and validates tokens for a fixed rotation interval.
type Codec struct {
	rotationInterval time.Duration
}

func NewCodec(rotationInterval time.Duration) *Codec {
	return &Codec{rotationInterval: rotationInterval}
}

// Issue produces a token with a fresh unique value, valid for one rotation
// interval from now.
func (c *Codec) Issue(now time.Time) Token {
	issuedAt := now.UnixMilli()
	return Token{
		Value:     uuid.NewString(),
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt + c.rotationInterval.Milliseconds(),
	}
}

// Validate checks a token against the given clock. The expiry comparison is
// strict: now == ExpiresAt is still valid, now > ExpiresAt is not.
func (c *Codec) Validate(tok Token, now time.Time) error {
	if tok.Value == "" || tok.ExpiresAt <= 0 {
		return ErrMalformed
	}
	if now.UnixMilli() > tok.ExpiresAt {
		return ErrExpired
	}
	return nil
}
