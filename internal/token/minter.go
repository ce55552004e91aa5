// Package token issues and verifies the signed credentials behind the
// rotating QR code. A token is a base64url JSON payload plus an HMAC-SHA256
// signature; each issuance carries a fresh nonce so a displayed QR invalidates
// the one before it.
package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/classmark/attendance-server/internal/errors"
	"github.com/classmark/attendance-server/internal/model"
	"github.com/classmark/attendance-server/internal/store"
	"github.com/classmark/attendance-server/internal/util"
)

// Claims is the signed payload embedded in a QR code. Timestamps are unix
// milliseconds.
type Claims struct {
	SessionID string `json:"sessionId"`
	Nonce     string `json:"nonce"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// NonceMetadata is what the ephemeral store remembers about an issuance. It
// outlives the token itself so late-window scans can still be cross-checked.
type NonceMetadata struct {
	SessionID string `json:"sessionId"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// SessionMarker mirrors the durable session into the ephemeral store for the
// fast-path activity check.
type SessionMarker struct {
	TeacherID string    `json:"teacherId"`
	CourseID  string    `json:"courseId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// IssuedToken is the result of minting one rotating token.
type IssuedToken struct {
	Token     string `json:"qrToken"`
	Nonce     string `json:"-"`
	ValidFrom int64  `json:"validFrom"`
	ValidTo   int64  `json:"validTo"`
}

type Minter struct {
	secret   string
	validity time.Duration
	nonceTTL time.Duration
	store    store.EphemeralStore
	now      func() time.Time
}

// NewMinter fails if no signing key is configured; minting without one would
// produce forgeable tokens.
func NewMinter(secret string, validity, nonceTTL time.Duration, ephemeral store.EphemeralStore) (*Minter, error) {
	if secret == "" {
		return nil, fmt.Errorf("token: signing key is unavailable")
	}
	return &Minter{
		secret:   secret,
		validity: validity,
		nonceTTL: nonceTTL,
		store:    ephemeral,
		now:      time.Now,
	}, nil
}

// SetClock replaces the minter's time source.
func (m *Minter) SetClock(now func() time.Time) {
	m.now = now
}

// IssueRotatingToken mints a signed token bound to sessionID and registers
// its nonce metadata in the ephemeral store.
func (m *Minter) IssueRotatingToken(ctx context.Context, sessionID string) (*IssuedToken, error) {
	now := m.now()
	claims := Claims{
		SessionID: sessionID,
		Nonce:     uuid.NewString(),
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(m.validity).UnixMilli(),
	}

	token, err := m.sign(claims)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	meta, err := json.Marshal(NonceMetadata{
		SessionID: claims.SessionID,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal nonce metadata: %w", err)
	}
	if err := m.store.Set(ctx, store.NonceKey(claims.Nonce), string(meta), m.nonceTTL); err != nil {
		return nil, apperrors.Cache(err)
	}

	return &IssuedToken{
		Token:     token,
		Nonce:     claims.Nonce,
		ValidFrom: claims.IssuedAt,
		ValidTo:   claims.ExpiresAt,
	}, nil
}

// IssueSessionWindow writes the session's active marker with a TTL equal to
// the session's remaining duration, so the marker expires with the session.
func (m *Minter) IssueSessionWindow(ctx context.Context, session *model.Session) error {
	remaining := session.Remaining(m.now())
	if remaining <= 0 {
		return fmt.Errorf("session %s has no remaining duration", session.ID)
	}

	marker, err := json.Marshal(SessionMarker{
		TeacherID: session.TeacherID,
		CourseID:  session.CourseID,
		StartTime: session.StartTime,
		EndTime:   session.EndTime,
	})
	if err != nil {
		return fmt.Errorf("marshal session marker: %w", err)
	}
	if err := m.store.Set(ctx, store.ActiveSessionKey(session.ID), string(marker), remaining); err != nil {
		return apperrors.Cache(err)
	}
	return nil
}

// Verify checks the token's signature and structure and returns its claims.
func (m *Minter) Verify(token string) (*Claims, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, apperrors.InvalidToken("Malformed QR token")
	}

	expected := util.HmacSHA256(m.secret, payload)
	if !util.ConstantTimeEqual(sig, expected) {
		return nil, apperrors.InvalidToken("Invalid QR token signature")
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperrors.InvalidToken("Malformed QR token payload")
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, apperrors.InvalidToken("Malformed QR token payload")
	}
	if claims.SessionID == "" || claims.Nonce == "" || claims.IssuedAt <= 0 || claims.ExpiresAt <= 0 {
		return nil, apperrors.InvalidToken("Incomplete QR token claims")
	}

	return &claims, nil
}

func (m *Minter) sign(claims Claims) (string, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + util.HmacSHA256(m.secret, payload), nil
}
