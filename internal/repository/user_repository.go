package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/token-service/internal/domain"
)

// UserRepository defines persistence access for platform users.
type UserRepository interface {
	CreateWithCredential(ctx context.Context, user *domain.User, credential *domain.UserCredential) error
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByRole(ctx context.Context, role domain.Role) (bool, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const insertUser = `
        INSERT INTO users (username, active, roles)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`

// CreateWithCredential inserts the user and its first credential in one
// transaction; neither row exists unless both do.
func (r *userRepository) CreateWithCredential(ctx context.Context, user *domain.User, credential *domain.UserCredential) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.QueryRow(ctx, insertUser,
		user.Username,
		user.Active,
		roleStrings(user.Roles),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return err
	}

	credential.UserID = user.ID
	if err := tx.QueryRow(ctx, insertCredential,
		credential.UserID,
		credential.HashedPassword,
	).Scan(&credential.ID, &credential.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET username=$1, active=$2, roles=$3, updated_at=NOW()
        WHERE id=$4
        RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.Username,
		user.Active,
		roleStrings(user.Roles),
		user.ID,
	).Scan(&user.UpdatedAt)
	return err
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `
        SELECT id, username, active, roles, created_at, updated_at
        FROM users WHERE username=$1`
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1)`, username).Scan(&exists)
	return exists, err
}

func (r *userRepository) ExistsByRole(ctx context.Context, role domain.Role) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE $1 = ANY(roles))`, string(role)).Scan(&exists)
	return exists, err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user  domain.User
		roles []string
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Active,
		&roles,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Roles = parseRoles(roles)
	return &user, nil
}

func roleStrings(roles []domain.Role) []string {
	return domain.RoleNames(roles)
}

// parseRoles drops names that are no longer known roles.
func parseRoles(names []string) []domain.Role {
	roles := make([]domain.Role, 0, len(names))
	for _, name := range names {
		if role, ok := domain.ParseRole(name); ok {
			roles = append(roles, role)
		}
	}
	return roles
}
