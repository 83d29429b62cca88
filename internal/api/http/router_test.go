package http

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/token-service/internal/api/http/handlers"
	"github.com/spec-kit/token-service/internal/auth"
	"github.com/spec-kit/token-service/internal/domain"
	"github.com/spec-kit/token-service/internal/observability"
	"github.com/spec-kit/token-service/internal/service"
	apperrors "github.com/spec-kit/token-service/pkg/util/errorutil"
)

type stubTokens struct {
	owners      map[uuid.UUID]string
	refreshed   []uuid.UUID
	blacklisted []uuid.UUID
	roleQueries []domain.Role
}

func (s *stubTokens) issued() *service.IssuedToken {
	id := uuid.New()
	return &service.IssuedToken{TokenID: id, TokenPair: auth.TokenPair{AccessToken: "a." + id.String(), RefreshToken: "r." + id.String()}}
}

func (s *stubTokens) IssueTokenForUser(_ context.Context, username, password string) (*service.IssuedToken, error) {
	if password != "Correct Horse 1!" {
		return nil, apperrors.NewUnauthenticated("invalid credentials")
	}
	return s.issued(), nil
}

func (s *stubTokens) IssueTokenForSubject(context.Context, string, []domain.Role) (*service.IssuedToken, error) {
	return s.issued(), nil
}

func (s *stubTokens) RefreshToken(_ context.Context, id uuid.UUID) (*service.IssuedToken, error) {
	s.refreshed = append(s.refreshed, id)
	return s.issued(), nil
}

func (s *stubTokens) BlacklistToken(_ context.Context, id uuid.UUID) error {
	s.blacklisted = append(s.blacklisted, id)
	return nil
}

func (s *stubTokens) ListUserTokens(context.Context, string) ([]*domain.AuthToken, error) {
	return []*domain.AuthToken{}, nil
}

func (s *stubTokens) ListSubjectTokens(context.Context, string) ([]*domain.AuthToken, error) {
	return []*domain.AuthToken{}, nil
}

func (s *stubTokens) ListUserTokensWithRole(_ context.Context, _ string, role domain.Role) ([]*domain.AuthToken, error) {
	s.roleQueries = append(s.roleQueries, role)
	return []*domain.AuthToken{}, nil
}

func (s *stubTokens) ListSubjectTokensWithRole(_ context.Context, _ string, role domain.Role) ([]*domain.AuthToken, error) {
	s.roleQueries = append(s.roleQueries, role)
	return []*domain.AuthToken{}, nil
}

// owners holds user-owned tokens only.
func (s *stubTokens) IsOwnedBy(_ context.Context, id uuid.UUID, kind domain.OwnerKind, owner string) (bool, error) {
	return kind == domain.OwnerKindUser && s.owners[id] == owner, nil
}

type stubUsers struct{}

func (stubUsers) Register(_ context.Context, username, _ string) (*domain.User, error) {
	if username == "taken" {
		return nil, apperrors.NewUniqueViolation("username already taken", nil)
	}
	return &domain.User{ID: "user-1", Username: username, Active: true}, nil
}

func (stubUsers) ChangePassword(context.Context, string, string, string) error { return nil }

func (stubUsers) GetUser(_ context.Context, username string) (*domain.User, error) {
	return &domain.User{ID: "user-1", Username: username, Active: true}, nil
}

func (stubUsers) Activate(_ context.Context, username string) (*domain.User, error) {
	return &domain.User{ID: "user-1", Username: username, Active: true}, nil
}

func (stubUsers) Deactivate(_ context.Context, username string) (*domain.User, error) {
	return &domain.User{ID: "user-1", Username: username}, nil
}

func (stubUsers) AddRole(_ context.Context, username string, role domain.Role) (*domain.User, error) {
	return &domain.User{ID: "user-1", Username: username, Roles: []domain.Role{role}}, nil
}

func (stubUsers) RemoveRole(_ context.Context, username string, _ domain.Role) (*domain.User, error) {
	return &domain.User{ID: "user-1", Username: username}, nil
}

func (stubUsers) Delete(context.Context, string) error { return nil }

type testServer struct {
	app     *fiber.App
	tokens  *stubTokens
	encoder *auth.TokenEncoder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	encoder, err := auth.NewTokenEncoder(privPEM, time.Hour, 2*time.Hour)
	require.NoError(t, err)
	decoder, err := auth.NewTokenDecoder(pubPEM)
	require.NoError(t, err)

	tokens := &stubTokens{owners: map[uuid.UUID]string{}}
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), time.Second)
	RegisterRoutes(app, RouteConfig{
		Users:          handlers.NewUsersHandler(stubUsers{}),
		Tokens:         handlers.NewTokensHandler(tokens),
		AuthMiddleware: auth.NewAuthMiddleware(decoder, nil),
	})
	return &testServer{app: app, tokens: tokens, encoder: encoder}
}

// sign returns the token id with access and refresh strings for username.
func (s *testServer) sign(t *testing.T, username string, roles ...domain.Role) (uuid.UUID, auth.TokenPair) {
	t.Helper()
	token := domain.NewUserAuthToken(&domain.User{ID: "id-" + username, Username: username, Active: true, Roles: roles}, time.Now())
	pair, err := s.encoder.Encode(token)
	require.NoError(t, err)
	return token.ID(), pair
}

func (s *testServer) signSubject(t *testing.T, subject string, roles ...domain.Role) auth.TokenPair {
	t.Helper()
	pair, err := s.encoder.Encode(domain.NewSubjectAuthToken(subject, roles, time.Now()))
	require.NoError(t, err)
	return pair
}

func (s *testServer) do(t *testing.T, method, path, bearer, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestRouteAccessControl(t *testing.T) {
	srv := newTestServer(t)
	_, alice := srv.sign(t, "alice", domain.RoleTeacher)
	_, bob := srv.sign(t, "bob")
	_, admin := srv.sign(t, "root", domain.RoleAdmin)

	tests := []struct {
		name       string
		method     string
		path       string
		bearer     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "issue user token", method: "POST", path: "/auth/tokens/user", body: `{"username":"alice","password":"Correct Horse 1!"}`, wantStatus: 201},
		{name: "issue user token bad password", method: "POST", path: "/auth/tokens/user", body: `{"username":"alice","password":"nope"}`, wantStatus: 401, wantCode: apperrors.CodeUnauthenticated},
		{name: "issue user token missing fields", method: "POST", path: "/auth/tokens/user", body: `{"username":"alice"}`, wantStatus: 400, wantCode: apperrors.CodeIllegalArgument},
		{name: "register duplicate", method: "POST", path: "/auth/users/register", body: `{"username":"taken","password":"Correct Horse 1!"}`, wantStatus: 409, wantCode: apperrors.CodeUniqueViolation},
		{name: "subject token without auth", method: "POST", path: "/auth/tokens/subject", body: `{"subject":"billing"}`, wantStatus: 401, wantCode: apperrors.CodeUnauthenticated},
		{name: "subject token as teacher", method: "POST", path: "/auth/tokens/subject", bearer: alice.AccessToken, body: `{"subject":"billing"}`, wantStatus: 403, wantCode: apperrors.CodeUnauthorized},
		{name: "subject token as admin", method: "POST", path: "/auth/tokens/subject", bearer: admin.AccessToken, body: `{"subject":"billing","roles":["TEACHER"]}`, wantStatus: 201},
		{name: "own token list", method: "GET", path: "/auth/users/alice/tokens", bearer: alice.AccessToken, wantStatus: 200},
		{name: "foreign token list", method: "GET", path: "/auth/users/alice/tokens", bearer: bob.AccessToken, wantStatus: 403, wantCode: apperrors.CodeUnauthorized},
		{name: "subject named like the user", method: "GET", path: "/auth/users/alice/tokens", bearer: srv.signSubject(t, "alice").AccessToken, wantStatus: 403, wantCode: apperrors.CodeUnauthorized},
		{name: "admin lists any user", method: "GET", path: "/auth/users/alice/tokens", bearer: admin.AccessToken, wantStatus: 200},
		{name: "subject list as teacher", method: "GET", path: "/auth/subjects/billing/tokens", bearer: alice.AccessToken, wantStatus: 403, wantCode: apperrors.CodeUnauthorized},
		{name: "refresh token rejected as access", method: "GET", path: "/auth/users/alice/tokens", bearer: alice.RefreshToken, wantStatus: 401, wantCode: apperrors.CodeUnauthenticated},
		{name: "access token rejected for refresh", method: "POST", path: "/auth/tokens/refresh", bearer: alice.AccessToken, wantStatus: 401, wantCode: apperrors.CodeUnauthenticated},
		{name: "deactivate as teacher", method: "POST", path: "/users/bob/deactivate", bearer: alice.AccessToken, wantStatus: 403, wantCode: apperrors.CodeUnauthorized},
		{name: "deactivate as admin", method: "POST", path: "/users/bob/deactivate", bearer: admin.AccessToken, wantStatus: 200},
		{name: "add role as admin", method: "POST", path: "/users/bob/roles/TEACHER", bearer: admin.AccessToken, wantStatus: 200},
		{name: "delete user as admin", method: "DELETE", path: "/users/bob", bearer: admin.AccessToken, wantStatus: 204},
		{name: "read self", method: "GET", path: "/users/bob", bearer: bob.AccessToken, wantStatus: 200},
		{name: "change password", method: "POST", path: "/auth/password/change", bearer: bob.AccessToken, body: `{"current_password":"a","new_password":"b"}`, wantStatus: 204},
		{name: "garbage bearer", method: "GET", path: "/users/bob", bearer: "not-a-jwt", wantStatus: 401, wantCode: apperrors.CodeUnauthenticated},
		{name: "unknown route", method: "GET", path: "/nope", wantStatus: 404, wantCode: apperrors.CodeNoSuchEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := srv.do(t, tt.method, tt.path, tt.bearer, tt.body)
			assert.Equal(t, tt.wantStatus, status, body)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(body))
			}
		})
	}
}

func TestRefreshUsesTokenID(t *testing.T) {
	srv := newTestServer(t)
	id, pair := srv.sign(t, "alice")

	status, body := srv.do(t, "POST", "/auth/tokens/refresh", pair.RefreshToken, "")
	require.Equal(t, 200, status, body)
	assert.Equal(t, []uuid.UUID{id}, srv.tokens.refreshed)
}

func TestRevokeRequiresOwnerOrAdmin(t *testing.T) {
	srv := newTestServer(t)
	_, alice := srv.sign(t, "alice")
	_, bob := srv.sign(t, "bob")
	_, admin := srv.sign(t, "root", domain.RoleAdmin)
	target := uuid.New()
	srv.tokens.owners[target] = "alice"

	status, body := srv.do(t, "DELETE", "/auth/tokens/"+target.String(), bob.AccessToken, "")
	assert.Equal(t, 403, status)
	assert.Equal(t, apperrors.CodeUnauthorized, errorCode(body))
	assert.Empty(t, srv.tokens.blacklisted)

	lookalike := srv.signSubject(t, "alice", domain.RoleTeacher)
	status, body = srv.do(t, "DELETE", "/auth/tokens/"+target.String(), lookalike.AccessToken, "")
	assert.Equal(t, 403, status)
	assert.Equal(t, apperrors.CodeUnauthorized, errorCode(body))
	assert.Empty(t, srv.tokens.blacklisted)

	status, _ = srv.do(t, "DELETE", "/auth/tokens/"+target.String(), alice.AccessToken, "")
	assert.Equal(t, 204, status)

	status, _ = srv.do(t, "DELETE", "/auth/tokens/"+target.String(), admin.AccessToken, "")
	assert.Equal(t, 204, status)
	assert.Equal(t, []uuid.UUID{target, target}, srv.tokens.blacklisted)

	status, body = srv.do(t, "DELETE", "/auth/tokens/not-a-uuid", admin.AccessToken, "")
	assert.Equal(t, 400, status)
	assert.Equal(t, apperrors.CodeIllegalArgument, errorCode(body))
}

func TestListTokensRoleFilter(t *testing.T) {
	srv := newTestServer(t)
	_, admin := srv.sign(t, "root", domain.RoleAdmin)

	status, _ := srv.do(t, "GET", "/auth/users/alice/tokens?role=TEACHER", admin.AccessToken, "")
	assert.Equal(t, 200, status)
	status, _ = srv.do(t, "GET", "/auth/subjects/billing/tokens?role=ADMIN", admin.AccessToken, "")
	assert.Equal(t, 200, status)
	status, _ = srv.do(t, "GET", "/auth/subjects/billing/tokens", admin.AccessToken, "")
	assert.Equal(t, 200, status)

	assert.Equal(t, []domain.Role{domain.RoleTeacher, domain.RoleAdmin}, srv.tokens.roleQueries)
}
