package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chineduokotu/chris-market-place/internal/domain"
	"github.com/chineduokotu/chris-market-place/internal/security"
)

// CredentialRepo persists the single bearer credential. The token column is
// encrypted with the injected Encryptor before it touches disk.
type CredentialRepo struct {
	db  *sql.DB
	enc *security.Encryptor
}

func NewCredentialRepo(db *sql.DB, enc *security.Encryptor) *CredentialRepo {
	return &CredentialRepo{db: db, enc: enc}
}

var _ domain.CredentialRepository = (*CredentialRepo)(nil)

func (r *CredentialRepo) Save(ctx context.Context, cred *domain.Credential) error {
	if cred == nil || cred.Token == "" {
		return domain.ErrInvalidInput
	}
	encToken, err := r.enc.Encrypt(cred.Token)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO credentials (id, token, user_id, user_name, saved_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			saved_at = CURRENT_TIMESTAMP
	`, encToken, cred.UserID, cred.UserName)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (r *CredentialRepo) Load(ctx context.Context) (*domain.Credential, error) {
	var (
		encToken string
		cred     domain.Credential
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT token, user_id, user_name FROM credentials WHERE id = 1
	`).Scan(&encToken, &cred.UserID, &cred.UserName)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	token, err := r.enc.Decrypt(encToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt token: %w", err)
	}
	cred.Token = token
	return &cred, nil
}

func (r *CredentialRepo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
