package auth

import (
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/token-service/internal/domain"
)

// RefreshCapability replaces business roles in refresh tokens.
const RefreshCapability = "REFRESH"

var signingMethod = jwt.SigningMethodRS512

// TokenPair is the signed form of an AuthToken.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type tokenClaims struct {
	Roles     []string `json:"roles"`
	OwnerKind string   `json:"owner_kind"`
	jwt.RegisteredClaims
}

// TokenEncoder signs AuthTokens.
type TokenEncoder struct {
	key        *rsa.PrivateKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenEncoder builds an encoder from PEM key material. It fails with
// *InvalidKeyError when the key cannot be loaded.
func NewTokenEncoder(privateKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*TokenEncoder, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token durations must be positive")
	}
	return &TokenEncoder{key: key, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}, nil
}

// Encode signs an access and a refresh token for token. Both share the
// token id, subject and issued-at; the refresh token carries only the
// refresh capability.
func (e *TokenEncoder) Encode(token *domain.AuthToken) (TokenPair, error) {
	issuedAt := e.now().UTC().Truncate(time.Second)
	accessExp := issuedAt.Add(e.accessTTL)
	refreshExp := issuedAt.Add(e.refreshTTL)

	access, err := e.sign(token, domain.RoleNames(token.Roles()), issuedAt, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.sign(token, []string{RefreshCapability}, issuedAt, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *TokenEncoder) sign(token *domain.AuthToken, roles []string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &tokenClaims{
		Roles:     roles,
		OwnerKind: string(token.Kind()),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        token.ID().String(),
			Subject:   token.Owner(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(signingMethod, claims).SignedString(e.key)
}

// Principal is the verified content of a signed token. Kind is empty when
// the token carries no recognized owner kind.
type Principal struct {
	TokenID uuid.UUID
	Kind    domain.OwnerKind
	Owner   string
	Roles   []string
}

// IsUser reports whether the principal is a platform user.
func (p *Principal) IsUser() bool {
	return p.Kind == domain.OwnerKindUser
}

// HasRole reports whether the principal was granted role.
func (p *Principal) HasRole(role domain.Role) bool {
	for _, r := range p.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

// IsRefresh reports whether the principal came from a refresh token.
func (p *Principal) IsRefresh() bool {
	for _, r := range p.Roles {
		if r == RefreshCapability {
			return true
		}
	}
	return false
}

type decodedClaims struct {
	Roles     []any  `json:"roles"`
	OwnerKind string `json:"owner_kind"`
	jwt.RegisteredClaims
}

// TokenDecoder verifies signed tokens.
type TokenDecoder struct {
	key *rsa.PublicKey
	now func() time.Time
}

// NewTokenDecoder builds a decoder from PEM key material.
func NewTokenDecoder(publicKeyPEM []byte) (*TokenDecoder, error) {
	key, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	return &TokenDecoder{key: key, now: time.Now}, nil
}

// Decode verifies raw and returns its principal. Any failure (malformed,
// forged, expired, missing claims) yields false.
func (d *TokenDecoder) Decode(raw string) (*Principal, bool) {
	var claims decodedClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return d.key, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(d.now),
	)
	if err != nil {
		return nil, false
	}

	tokenID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, false
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, false
	}
	if claims.Roles == nil {
		return nil, false
	}

	roles := make([]string, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		if name, ok := r.(string); ok {
			roles = append(roles, name)
		}
	}
	var kind domain.OwnerKind
	switch k := domain.OwnerKind(claims.OwnerKind); k {
	case domain.OwnerKindUser, domain.OwnerKindSubject:
		kind = k
	}
	return &Principal{TokenID: tokenID, Kind: kind, Owner: claims.Subject, Roles: roles}, true
}
