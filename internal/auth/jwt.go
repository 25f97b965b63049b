package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Admin sessions
//
// Admin endpoints accept either HTTP basic credentials or a bearer token
// obtained from POST /v1/admin/token. Tokens are HS256 JWTs that expire after
// AdminTokenExpiry and are not refreshable; a client simply exchanges its
// credentials again. There is no revocation list, so rotating the signing key
// is the way to invalidate every outstanding token.

// AdminTokenExpiry is how long admin tokens are valid.
const AdminTokenExpiry = 15 * time.Minute

// Predefined token errors.
var (
	ErrInvalidAdminToken = errors.New("invalid admin token")
	ErrAdminTokenExpired = errors.New("admin token has expired")
)

// AdminClaims represents the claims in an admin token.
type AdminClaims struct {
	jwt.RegisteredClaims

	// Username is the admin the token was issued to.
	Username string `json:"usr"`
}

// JWTService handles admin token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the secret key used to sign tokens.
	SigningKey string

	// Issuer is the issuer claim for tokens (e.g., "supportdesk").
	Issuer string

	// Audience is the audience claim for tokens (e.g., "supportdesk-admin").
	Audience string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        now,
	}
}

// GenerateAdminToken creates a new admin token for username.
func (s *JWTService) GenerateAdminToken(username string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(AdminTokenExpiry)

	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing admin token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateAdminToken validates an admin token and returns its claims.
func (s *JWTService) ValidateAdminToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAdminTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidAdminToken, err.Error())
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid || claims.Username == "" {
		return nil, ErrInvalidAdminToken
	}

	return claims, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
