package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims mirrors the access-token claims issued by the identity provider.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig configures verification and issuance of HS256 access tokens.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Verifier validates bearer tokens.
type Verifier struct {
	cfg    TokenConfig
	parser *jwt.Parser
}

// NewVerifier returns a Verifier for the given configuration.
func NewVerifier(cfg TokenConfig) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: token secret is not configured")
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 5 * time.Second
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

// Verify checks signature and registered claims and returns the caller identity.
func (v *Verifier) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}
	var claims Claims
	parsed, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		UserID:    claims.Subject,
		Email:     strings.ToLower(strings.TrimSpace(claims.Email)),
		TokenRole: claims.Role,
	}, nil
}

// Issuer signs access tokens with the same secret the Verifier checks. It backs
// the demo driver and tests.
type Issuer struct {
	cfg TokenConfig
}

func NewIssuer(cfg TokenConfig) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: token secret is not configured")
	}
	return &Issuer{cfg: cfg}, nil
}

// Issue signs a token for userID valid for ttl.
func (i *Issuer) Issue(userID, email string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("userID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	now := time.Now().UTC()
	claims := Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
