package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/token-service/internal/domain"
)

// CredentialRepository manages the append-only password history.
type CredentialRepository interface {
	Create(ctx context.Context, credential *domain.UserCredential) error
	GetLatestByUser(ctx context.Context, userID string) (*domain.UserCredential, error)
	DeleteAllByUser(ctx context.Context, userID string) error
}

type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository constructs repository.
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepository{pool: pool}
}

const insertCredential = `
        INSERT INTO user_credentials (user_id, hashed_password)
        VALUES ($1, $2)
        RETURNING id, created_at`

func (r *credentialRepository) Create(ctx context.Context, credential *domain.UserCredential) error {
	return r.pool.QueryRow(ctx, insertCredential,
		credential.UserID,
		credential.HashedPassword,
	).Scan(&credential.ID, &credential.CreatedAt)
}

func (r *credentialRepository) GetLatestByUser(ctx context.Context, userID string) (*domain.UserCredential, error) {
	const query = `
        SELECT id, user_id, hashed_password, created_at
        FROM user_credentials WHERE user_id=$1
        ORDER BY created_at DESC, seq DESC
        LIMIT 1`
	var credential domain.UserCredential
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&credential.ID,
		&credential.UserID,
		&credential.HashedPassword,
		&credential.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &credential, nil
}

func (r *credentialRepository) DeleteAllByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_credentials WHERE user_id=$1`, userID)
	return err
}
