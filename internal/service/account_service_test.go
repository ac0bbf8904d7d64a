package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/enrollment-portal/internal/domain"
)

func TestAuthService(t *testing.T) {
	ctx := context.Background()
	in := RegisterInput{Email: " Ana@Example.com ", Password: "secret-123", FirstName: "Ana", LastNamePaterno: "García"}

	t.Run("Should register a student and issue a session", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.auth.Register(ctx, in)
		require.NoError(t, err)
		assert.NotEmpty(t, session.Token)
		assert.Equal(t, "ana@example.com", session.User.Email)
		assert.Equal(t, domain.RoleStudent, session.User.Role)

		claims, err := h.auth.TokenManager().ParseToken(session.Token)
		require.NoError(t, err)
		assert.Equal(t, session.User.ID, claims.Subject)

		_, err = h.auth.Register(ctx, in)
		assert.Equal(t, http.StatusConflict, statusOf(err))
	})

	t.Run("Should answer unknown e-mails and wrong passwords alike", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.auth.Register(ctx, in)
		require.NoError(t, err)

		_, err = h.auth.Login(ctx, "ana@example.com", "wrong")
		assert.Equal(t, http.StatusUnauthorized, statusOf(err))
		_, err = h.auth.Login(ctx, "nobody@example.com", "secret-123")
		assert.Equal(t, http.StatusUnauthorized, statusOf(err))

		session, err := h.auth.Login(ctx, "ANA@example.com", "secret-123")
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", session.User.Email)
	})

	t.Run("Should reset a password once with the mailed token", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.auth.Register(ctx, in)
		require.NoError(t, err)

		require.NoError(t, h.auth.RequestPasswordReset(ctx, "ana@example.com"))
		require.Len(t, h.mailer.sent, 1)
		require.Len(t, h.db.resets, 1)
		var token string
		for k := range h.db.resets {
			token = k
		}
		assert.Contains(t, h.mailer.sent[0].HTML, "https://portal.test/reset-password?token="+token)

		require.NoError(t, h.auth.ResetPassword(ctx, token, "new-secret-456"))
		assert.Equal(t, http.StatusBadRequest, statusOf(h.auth.ResetPassword(ctx, token, "again-789")))

		_, err = h.auth.Login(ctx, "ana@example.com", "new-secret-456")
		require.NoError(t, err)
	})

	t.Run("Should not reveal unknown e-mails on reset", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.auth.RequestPasswordReset(ctx, "nobody@example.com"))
		assert.Empty(t, h.mailer.sent)
		assert.Equal(t, http.StatusBadRequest, statusOf(h.auth.ResetPassword(ctx, "bogus", "x")))
	})

	t.Run("Should verify the current password on change", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.auth.Register(ctx, in)
		require.NoError(t, err)
		actor := domain.Actor{UserID: session.User.ID, Role: session.User.Role}

		assert.Equal(t, http.StatusBadRequest, statusOf(h.auth.ChangePassword(ctx, actor, "wrong", "n3w-pass")))
		require.NoError(t, h.auth.ChangePassword(ctx, actor, "secret-123", "n3w-pass"))
		_, err = h.auth.Login(ctx, "ana@example.com", "n3w-pass")
		require.NoError(t, err)
	})

	t.Run("Should promote an existing account", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.auth.Register(ctx, in)
		require.NoError(t, err)

		u, err := h.auth.Promote(ctx, "ana@example.com", domain.RoleAuditor)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAuditor, h.db.user(u.ID).Role)

		_, err = h.auth.Promote(ctx, "nobody@example.com", domain.RoleAuditor)
		assert.Equal(t, http.StatusNotFound, statusOf(err))
	})
}

func TestProfileService(t *testing.T) {
	ctx := context.Background()

	t.Run("Should merge changes and recompute completion", func(t *testing.T) {
		h := newHarness(t)
		u := h.db.addUser(domain.User{Email: "ana@example.com"})
		actor := domain.Actor{UserID: u.ID, Role: domain.RoleStudent}

		updated, err := h.profiles.Update(ctx, actor, domain.Profile{FirstName: strPtr("Ana")})
		require.NoError(t, err)
		assert.False(t, updated.ProfileCompleted)

		updated, err = h.profiles.Update(ctx, actor, completeProfile("Ana", "García"))
		require.NoError(t, err)
		assert.True(t, updated.ProfileCompleted)
		assert.True(t, h.db.user(u.ID).ProfileCompleted)

		updated, err = h.profiles.Update(ctx, actor, domain.Profile{Phone: strPtr("  ")})
		require.NoError(t, err)
		assert.Nil(t, updated.Phone)
		assert.False(t, updated.ProfileCompleted)
		require.NotNil(t, updated.FirstName)
		assert.Equal(t, "Ana", *updated.FirstName)
		assert.Equal(t, 3, h.invalidator.count())
	})

	t.Run("Should return not found for a deleted account", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.profiles.Get(ctx, domain.Actor{UserID: "gone"})
		assert.Equal(t, http.StatusNotFound, statusOf(err))
	})
}
