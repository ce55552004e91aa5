package token

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/classmark/attendance-server/internal/errors"
	"github.com/classmark/attendance-server/internal/model"
	"github.com/classmark/attendance-server/internal/store"
)

const testSecret = "test-signing-secret"

func newTestMinter(t *testing.T) (*Minter, *store.MemoryStore) {
	t.Helper()
	ephemeral := store.NewMemoryStore()
	minter, err := NewMinter(testSecret, 5*time.Second, 155*time.Second, ephemeral)
	require.NoError(t, err)
	return minter, ephemeral
}

func TestNewMinter(t *testing.T) {
	t.Run("fails without a signing key", func(t *testing.T) {
		_, err := NewMinter("", 5*time.Second, time.Minute, store.NewMemoryStore())
		assert.Error(t, err)
	})
}

func TestIssueRotatingToken(t *testing.T) {
	ctx := context.Background()

	t.Run("issued token verifies and carries the session id", func(t *testing.T) {
		minter, _ := newTestMinter(t)

		issued, err := minter.IssueRotatingToken(ctx, "session-1")
		require.NoError(t, err)

		claims, err := minter.Verify(issued.Token)
		require.NoError(t, err)
		assert.Equal(t, "session-1", claims.SessionID)
		assert.Equal(t, issued.Nonce, claims.Nonce)
		assert.Equal(t, issued.ValidFrom, claims.IssuedAt)
		assert.Equal(t, issued.ValidTo, claims.ExpiresAt)
	})

	t.Run("validity window spans the configured duration", func(t *testing.T) {
		minter, _ := newTestMinter(t)
		now := time.Now()
		minter.SetClock(func() time.Time { return now })

		issued, err := minter.IssueRotatingToken(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, now.UnixMilli(), issued.ValidFrom)
		assert.Equal(t, now.Add(5*time.Second).UnixMilli(), issued.ValidTo)
	})

	t.Run("each issuance gets a fresh nonce", func(t *testing.T) {
		minter, _ := newTestMinter(t)
		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			issued, err := minter.IssueRotatingToken(ctx, "session-1")
			require.NoError(t, err)
			assert.False(t, seen[issued.Nonce], "nonce reused: %s", issued.Nonce)
			seen[issued.Nonce] = true
		}
	})

	t.Run("registers nonce metadata in the store", func(t *testing.T) {
		minter, ephemeral := newTestMinter(t)

		issued, err := minter.IssueRotatingToken(ctx, "session-1")
		require.NoError(t, err)

		raw, err := ephemeral.Get(ctx, store.NonceKey(issued.Nonce))
		require.NoError(t, err)

		var meta NonceMetadata
		require.NoError(t, json.Unmarshal([]byte(raw), &meta))
		assert.Equal(t, "session-1", meta.SessionID)
		assert.Equal(t, issued.ValidFrom, meta.IssuedAt)
		assert.Equal(t, issued.ValidTo, meta.ExpiresAt)
	})

	t.Run("nonce metadata outlives the token validity", func(t *testing.T) {
		minter, ephemeral := newTestMinter(t)
		now := time.Now()
		minter.SetClock(func() time.Time { return now })
		ephemeral.SetClock(func() time.Time { return now })

		issued, err := minter.IssueRotatingToken(ctx, "session-1")
		require.NoError(t, err)

		// Well past token expiry, inside the metadata TTL.
		ephemeral.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
		_, err = ephemeral.Get(ctx, store.NonceKey(issued.Nonce))
		assert.NoError(t, err)

		ephemeral.SetClock(func() time.Time { return now.Add(156 * time.Second) })
		_, err = ephemeral.Get(ctx, store.NonceKey(issued.Nonce))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestIssueSessionWindow(t *testing.T) {
	ctx := context.Background()

	t.Run("writes marker with TTL equal to remaining duration", func(t *testing.T) {
		minter, ephemeral := newTestMinter(t)
		now := time.Now()
		minter.SetClock(func() time.Time { return now })
		ephemeral.SetClock(func() time.Time { return now })

		session := &model.Session{
			ID:        "session-1",
			CourseID:  "course-1",
			TeacherID: "teacher-1",
			StartTime: now,
			EndTime:   now.Add(3 * time.Minute),
		}
		require.NoError(t, minter.IssueSessionWindow(ctx, session))

		raw, err := ephemeral.Get(ctx, store.ActiveSessionKey("session-1"))
		require.NoError(t, err)

		var marker SessionMarker
		require.NoError(t, json.Unmarshal([]byte(raw), &marker))
		assert.Equal(t, "teacher-1", marker.TeacherID)
		assert.Equal(t, "course-1", marker.CourseID)

		ephemeral.SetClock(func() time.Time { return now.Add(3*time.Minute + time.Second) })
		_, err = ephemeral.Get(ctx, store.ActiveSessionKey("session-1"))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("refuses a session with no remaining duration", func(t *testing.T) {
		minter, _ := newTestMinter(t)
		now := time.Now()
		minter.SetClock(func() time.Time { return now })

		session := &model.Session{
			ID:      "session-1",
			EndTime: now.Add(-time.Second),
		}
		assert.Error(t, minter.IssueSessionWindow(ctx, session))
	})
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects token without separator", func(t *testing.T) {
		minter, _ := newTestMinter(t)
		_, err := minter.Verify("garbage")
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInvalidToken, appErr.Code)
	})

	t.Run("rejects tampered payload", func(t *testing.T) {
		minter, _ := newTestMinter(t)
		issued, err := minter.IssueRotatingToken(ctx, "session-1")
		require.NoError(t, err)

		tampered := "x" + issued.Token
		_, err = minter.Verify(tampered)
		assert.Equal(t, apperrors.ErrCodeInvalidToken, apperrors.GetCode(err))
	})

	t.Run("rejects token signed with a different key", func(t *testing.T) {
		minter, _ := newTestMinter(t)
		other, err := NewMinter("another-secret", 5*time.Second, time.Minute, store.NewMemoryStore())
		require.NoError(t, err)

		issued, err := other.IssueRotatingToken(ctx, "session-1")
		require.NoError(t, err)

		_, err = minter.Verify(issued.Token)
		assert.Equal(t, apperrors.ErrCodeInvalidToken, apperrors.GetCode(err))
	})

	t.Run("rejects structurally incomplete claims", func(t *testing.T) {
		minter, _ := newTestMinter(t)
		incomplete, err := minter.sign(Claims{SessionID: "session-1"})
		require.NoError(t, err)

		_, err = minter.Verify(incomplete)
		assert.Equal(t, apperrors.ErrCodeInvalidToken, apperrors.GetCode(err))
	})
}
