package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/token-service/internal/domain"
)

// UserTokenRepository queries tokens owned by registered users.
type UserTokenRepository interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.AuthToken, error)
	ListByUserAndRole(ctx context.Context, userID string, role domain.Role) ([]*domain.AuthToken, error)
}

// SubjectTokenRepository queries tokens owned by free-text subjects.
type SubjectTokenRepository interface {
	ListBySubject(ctx context.Context, subject string) ([]*domain.AuthToken, error)
	ListBySubjectAndRole(ctx context.Context, subject string, role domain.Role) ([]*domain.AuthToken, error)
}

// TokenRepository persists tokens of both owner kinds. Listings are ordered
// by creation time, oldest first.
type TokenRepository interface {
	UserTokenRepository
	SubjectTokenRepository
	Save(ctx context.Context, token *domain.AuthToken) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.AuthToken, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository constructs repository.
func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

const selectTokens = `
        SELECT t.id, t.owner_kind, t.user_id, t.owner, t.roles, t.valid, t.created_at,
               u.id, u.username, u.active, u.roles, u.created_at, u.updated_at
        FROM auth_tokens t
        LEFT JOIN users u ON u.id = t.user_id`

// Save inserts the token or updates its validity. The valid flag can only
// be cleared, never set again.
func (r *tokenRepository) Save(ctx context.Context, token *domain.AuthToken) error {
	const query = `
        INSERT INTO auth_tokens (id, owner_kind, user_id, owner, roles, valid, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET valid = auth_tokens.valid AND EXCLUDED.valid`

	var userID *string
	if user := token.User(); user != nil {
		userID = &user.ID
	}
	_, err := r.pool.Exec(ctx, query,
		token.ID().String(),
		string(token.Kind()),
		userID,
		token.Owner(),
		roleStrings(token.Roles()),
		token.Valid(),
		token.CreatedAt(),
	)
	return err
}

func (r *tokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.AuthToken, error) {
	return scanToken(r.pool.QueryRow(ctx, selectTokens+` WHERE t.id=$1`, id.String()))
}

func (r *tokenRepository) ListByUser(ctx context.Context, userID string) ([]*domain.AuthToken, error) {
	return r.list(ctx, selectTokens+`
        WHERE t.owner_kind='USER' AND t.user_id=$1
        ORDER BY t.created_at ASC, t.id ASC`, userID)
}

func (r *tokenRepository) ListByUserAndRole(ctx context.Context, userID string, role domain.Role) ([]*domain.AuthToken, error) {
	return r.list(ctx, selectTokens+`
        WHERE t.owner_kind='USER' AND t.user_id=$1 AND $2 = ANY(t.roles)
        ORDER BY t.created_at ASC, t.id ASC`, userID, string(role))
}

func (r *tokenRepository) ListBySubject(ctx context.Context, subject string) ([]*domain.AuthToken, error) {
	return r.list(ctx, selectTokens+`
        WHERE t.owner_kind='SUBJECT' AND t.owner=$1
        ORDER BY t.created_at ASC, t.id ASC`, subject)
}

func (r *tokenRepository) ListBySubjectAndRole(ctx context.Context, subject string, role domain.Role) ([]*domain.AuthToken, error) {
	return r.list(ctx, selectTokens+`
        WHERE t.owner_kind='SUBJECT' AND t.owner=$1 AND $2 = ANY(t.roles)
        ORDER BY t.created_at ASC, t.id ASC`, subject, string(role))
}

func (r *tokenRepository) list(ctx context.Context, query string, args ...any) ([]*domain.AuthToken, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.AuthToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, token)
	}
	return result, rows.Err()
}

func scanToken(row pgx.Row) (*domain.AuthToken, error) {
	var (
		id        string
		kind      string
		userID    *string
		owner     string
		roles     []string
		valid     bool
		createdAt time.Time

		uID        *string
		uUsername  *string
		uActive    *bool
		uRoles     []string
		uCreatedAt *time.Time
		uUpdatedAt *time.Time
	)
	if err := row.Scan(
		&id, &kind, &userID, &owner, &roles, &valid, &createdAt,
		&uID, &uUsername, &uActive, &uRoles, &uCreatedAt, &uUpdatedAt,
	); err != nil {
		return nil, err
	}

	tokenID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse token id %q: %w", id, err)
	}

	var (
		user    *domain.User
		subject string
	)
	switch domain.OwnerKind(kind) {
	case domain.OwnerKindUser:
		if uID != nil {
			user = &domain.User{
				ID:        *uID,
				Username:  *uUsername,
				Active:    *uActive,
				Roles:     parseRoles(uRoles),
				CreatedAt: *uCreatedAt,
				UpdatedAt: *uUpdatedAt,
			}
		} else {
			// owner row deleted; keep the token readable with an inactive owner
			user = &domain.User{Username: owner}
			if userID != nil {
				user.ID = *userID
			}
		}
	case domain.OwnerKindSubject:
		subject = owner
	default:
		return nil, fmt.Errorf("unknown owner kind %q", kind)
	}

	return domain.RestoreAuthToken(tokenID, domain.OwnerKind(kind), user, subject, parseRoles(roles), createdAt, valid), nil
}
