package http

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/alem-hub/learnhub/internal/application/query"
	"github.com/alem-hub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEARER TOKENS
// Identity is issued by the external auth service; this side only verifies
// HS256 tokens and reads the subject and role claims.
// ══════════════════════════════════════════════════════════════════════════════

// Claims is the token payload.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   string
	Admin  bool
}

// Viewer converts the identity for read authorization.
func (i Identity) Viewer() query.Viewer {
	return query.Viewer{UserID: i.UserID, Admin: i.Admin}
}

// Authenticator verifies bearer tokens.
type Authenticator struct {
	secret    []byte
	issuer    string
	adminRole string
	leeway    time.Duration
	now       func() time.Time
}

// AuthConfig configures an Authenticator.
type AuthConfig struct {
	Secret    string
	Issuer    string
	AdminRole string
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	if cfg.AdminRole == "" {
		cfg.AdminRole = "admin"
	}
	return &Authenticator{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		adminRole: cfg.AdminRole,
		leeway:    30 * time.Second,
		now:       time.Now,
	}, nil
}

// Verify parses a raw token into an Identity.
func (a *Authenticator) Verify(raw string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, shared.ErrUnauthenticated.WithMessage("invalid token").Wrap(err)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return Identity{}, shared.ErrUnauthenticated.WithMessage("token has no subject")
	}
	return Identity{UserID: sub, Role: claims.Role, Admin: claims.Role == a.adminRole}, nil
}

// Issue signs a token for userID. Used by tooling and tests.
func (a *Authenticator) Issue(userID, role string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

const identityKey = "identity"

// requireAuth rejects requests without a valid bearer token.
func requireAuth(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			abortWithError(c, shared.ErrUnauthenticated.WithMessage("missing bearer token"))
			return
		}
		id, err := a.Verify(raw)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// requireAdmin must run after requireAuth.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityOf(c).Admin {
			abortWithError(c, shared.ErrAccessForbidden.WithMessage("admin role required"))
			return
		}
		c.Next()
	}
}

func identityOf(c *gin.Context) Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Identity{}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
