package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chineduokotu/chris-market-place/internal/domain"
	"github.com/chineduokotu/chris-market-place/internal/security"
	"github.com/chineduokotu/chris-market-place/internal/store/sqlite"
)

func newTestRepo(t *testing.T) *sqlite.CredentialRepo {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	enc, err := security.NewEncryptor([]byte("test-secret"))
	require.NoError(t, err)
	return sqlite.NewCredentialRepo(db, enc)
}

func TestCredentialRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("SaveLoadRoundtrip", func(t *testing.T) {
		repo := newTestRepo(t)
		cred := &domain.Credential{Token: "bearer-abc", UserID: 5, UserName: "me"}
		require.NoError(t, repo.Save(ctx, cred))

		loaded, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "bearer-abc", loaded.Token)
		assert.Equal(t, int64(5), loaded.UserID)
		assert.Equal(t, "me", loaded.UserName)
	})

	t.Run("SaveReplacesExisting", func(t *testing.T) {
		repo := newTestRepo(t)
		require.NoError(t, repo.Save(ctx, &domain.Credential{Token: "old", UserID: 5}))
		require.NoError(t, repo.Save(ctx, &domain.Credential{Token: "new", UserID: 6, UserName: "other"}))

		loaded, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "new", loaded.Token)
		assert.Equal(t, int64(6), loaded.UserID)
	})

	t.Run("LoadWithoutSave", func(t *testing.T) {
		repo := newTestRepo(t)
		_, err := repo.Load(ctx)
		assert.ErrorIs(t, err, domain.ErrNoCredential)
	})

	t.Run("ClearRemovesCredential", func(t *testing.T) {
		repo := newTestRepo(t)
		require.NoError(t, repo.Save(ctx, &domain.Credential{Token: "bearer-abc", UserID: 5}))
		require.NoError(t, repo.Clear(ctx))

		_, err := repo.Load(ctx)
		assert.ErrorIs(t, err, domain.ErrNoCredential)
	})

	t.Run("ClearIsIdempotent", func(t *testing.T) {
		repo := newTestRepo(t)
		assert.NoError(t, repo.Clear(ctx))
	})

	t.Run("RejectsEmptyToken", func(t *testing.T) {
		repo := newTestRepo(t)
		assert.ErrorIs(t, repo.Save(ctx, &domain.Credential{Token: ""}), domain.ErrInvalidInput)
		assert.ErrorIs(t, repo.Save(ctx, nil), domain.ErrInvalidInput)
	})
}

func TestTokenIsEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	enc, err := security.NewEncryptor([]byte("test-secret"))
	require.NoError(t, err)
	repo := sqlite.NewCredentialRepo(db, enc)

	require.NoError(t, repo.Save(ctx, &domain.Credential{Token: "bearer-plaintext", UserID: 5}))

	var stored string
	require.NoError(t, db.QueryRow(`SELECT token FROM credentials WHERE id = 1`).Scan(&stored))
	assert.NotEqual(t, "bearer-plaintext", stored)
	assert.NotContains(t, stored, "plaintext")
}
