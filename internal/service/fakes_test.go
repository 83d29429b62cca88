package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/token-service/internal/auth"
	"github.com/spec-kit/token-service/internal/domain"
)

var baseTime = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

// recorder keeps the ordered list of collaborator calls across fakes.
type recorder struct {
	calls []string
}

func (r *recorder) add(call string) { r.calls = append(r.calls, call) }

func (r *recorder) count(prefix string) int {
	n := 0
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type fakeUserRepo struct {
	rec            *recorder
	users          map[string]*domain.User
	credentials    *fakeCredentialRepo
	failCredential error
	nextID         int
}

func newFakeUserRepo(rec *recorder, credentials *fakeCredentialRepo) *fakeUserRepo {
	return &fakeUserRepo{rec: rec, users: map[string]*domain.User{}, credentials: credentials}
}

func (r *fakeUserRepo) put(username string, active bool, roles ...domain.Role) *domain.User {
	r.nextID++
	user := &domain.User{ID: fmt.Sprintf("user-%d", r.nextID), Username: username, Active: active, Roles: roles}
	r.users[username] = user
	return user
}

// CreateWithCredential stores both rows or neither.
func (r *fakeUserRepo) CreateWithCredential(ctx context.Context, user *domain.User, credential *domain.UserCredential) error {
	r.rec.add("users.CreateWithCredential")
	if r.failCredential != nil {
		return r.failCredential
	}
	r.nextID++
	user.ID = fmt.Sprintf("user-%d", r.nextID)
	user.CreatedAt = baseTime
	r.users[user.Username] = user
	credential.UserID = user.ID
	stored := r.credentials.put(credential.UserID, credential.HashedPassword)
	credential.ID = stored.ID
	credential.CreatedAt = stored.CreatedAt
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.rec.add("users.Update")
	for name, u := range r.users {
		if u.ID == user.ID {
			delete(r.users, name)
			r.users[user.Username] = user
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	r.rec.add("users.Delete")
	for name, u := range r.users {
		if u.ID == id {
			delete(r.users, name)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.rec.add("users.GetByUsername")
	if u, ok := r.users[username]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.rec.add("users.ExistsByUsername")
	_, ok := r.users[username]
	return ok, nil
}

func (r *fakeUserRepo) ExistsByRole(_ context.Context, role domain.Role) (bool, error) {
	r.rec.add("users.ExistsByRole")
	for _, u := range r.users {
		if u.HasRole(role) {
			return true, nil
		}
	}
	return false, nil
}

type fakeCredentialRepo struct {
	rec  *recorder
	rows []*domain.UserCredential
}

func (r *fakeCredentialRepo) put(userID, hashed string) *domain.UserCredential {
	c := &domain.UserCredential{
		ID:             fmt.Sprintf("cred-%d", len(r.rows)+1),
		UserID:         userID,
		HashedPassword: hashed,
		CreatedAt:      baseTime.Add(time.Duration(len(r.rows)) * time.Minute),
	}
	r.rows = append(r.rows, c)
	return c
}

func (r *fakeCredentialRepo) Create(_ context.Context, credential *domain.UserCredential) error {
	r.rec.add("credentials.Create")
	stored := r.put(credential.UserID, credential.HashedPassword)
	credential.ID = stored.ID
	credential.CreatedAt = stored.CreatedAt
	return nil
}

func (r *fakeCredentialRepo) GetLatestByUser(_ context.Context, userID string) (*domain.UserCredential, error) {
	r.rec.add("credentials.GetLatestByUser")
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].UserID == userID {
			return r.rows[i], nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCredentialRepo) DeleteAllByUser(_ context.Context, userID string) error {
	r.rec.add("credentials.DeleteAllByUser")
	kept := r.rows[:0]
	for _, c := range r.rows {
		if c.UserID != userID {
			kept = append(kept, c)
		}
	}
	r.rows = kept
	return nil
}

func (r *fakeCredentialRepo) forUser(userID string) []*domain.UserCredential {
	var out []*domain.UserCredential
	for _, c := range r.rows {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

type fakeTokenRepo struct {
	rec    *recorder
	tokens []*domain.AuthToken
}

func (r *fakeTokenRepo) put(token *domain.AuthToken) *domain.AuthToken {
	r.tokens = append(r.tokens, token)
	return token
}

func (r *fakeTokenRepo) Save(_ context.Context, token *domain.AuthToken) error {
	r.rec.add("tokens.Save")
	for _, t := range r.tokens {
		if t.ID() == token.ID() {
			return nil
		}
	}
	r.tokens = append(r.tokens, token)
	return nil
}

func (r *fakeTokenRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.AuthToken, error) {
	r.rec.add("tokens.GetByID")
	for _, t := range r.tokens {
		if t.ID() == id {
			return t, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTokenRepo) ListByUser(_ context.Context, userID string) ([]*domain.AuthToken, error) {
	r.rec.add("tokens.ListByUser")
	return r.filter(func(t *domain.AuthToken) bool {
		return t.Kind() == domain.OwnerKindUser && t.User().ID == userID
	}), nil
}

func (r *fakeTokenRepo) ListByUserAndRole(_ context.Context, userID string, role domain.Role) ([]*domain.AuthToken, error) {
	r.rec.add("tokens.ListByUserAndRole")
	return r.filter(func(t *domain.AuthToken) bool {
		return t.Kind() == domain.OwnerKindUser && t.User().ID == userID && t.HasRole(role)
	}), nil
}

func (r *fakeTokenRepo) ListBySubject(_ context.Context, subject string) ([]*domain.AuthToken, error) {
	r.rec.add("tokens.ListBySubject")
	return r.filter(func(t *domain.AuthToken) bool {
		return t.Kind() == domain.OwnerKindSubject && t.Subject() == subject
	}), nil
}

func (r *fakeTokenRepo) ListBySubjectAndRole(_ context.Context, subject string, role domain.Role) ([]*domain.AuthToken, error) {
	r.rec.add("tokens.ListBySubjectAndRole")
	return r.filter(func(t *domain.AuthToken) bool {
		return t.Kind() == domain.OwnerKindSubject && t.Subject() == subject && t.HasRole(role)
	}), nil
}

func (r *fakeTokenRepo) filter(keep func(*domain.AuthToken) bool) []*domain.AuthToken {
	var out []*domain.AuthToken
	for _, t := range r.tokens {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out
}

type fakeCache struct {
	rec     *recorder
	revoked map[uuid.UUID]time.Duration
	err     error
}

func (c *fakeCache) MarkRevoked(_ context.Context, id uuid.UUID, ttl time.Duration) error {
	c.rec.add("cache.MarkRevoked")
	if c.err != nil {
		return c.err
	}
	c.revoked[id] = ttl
	return nil
}

func (c *fakeCache) IsRevoked(_ context.Context, id uuid.UUID) (bool, error) {
	c.rec.add("cache.IsRevoked")
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.revoked[id]
	return ok, nil
}

type fakeHasher struct {
	rec *recorder
}

func (h *fakeHasher) Hash(plain string) (string, error) {
	h.rec.add("hasher.Hash")
	return "hashed:" + plain, nil
}

func (h *fakeHasher) Verify(hashed, plain string) bool {
	h.rec.add("hasher.Verify")
	return hashed == "hashed:"+plain
}

type fakeEncoder struct {
	rec *recorder
}

func (e *fakeEncoder) Encode(token *domain.AuthToken) (auth.TokenPair, error) {
	e.rec.add("encoder.Encode")
	return auth.TokenPair{
		AccessToken:  "access-" + token.ID().String(),
		RefreshToken: "refresh-" + token.ID().String(),
	}, nil
}
