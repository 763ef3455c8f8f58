package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var ErrNoSecret = errors.New("jwt secret is not configured")

// JWTDefaults is built once at startup and handed to everything that signs or
// verifies tokens.
type JWTDefaults struct {
	Secret        string
	Audience      string
	Issuer        string
	DefaultUserID string
}

type JWTService struct {
	defaults   JWTDefaults
	signingKey jwk.Key
}

// TokenClaims is what a verified token tells about its bearer.
type TokenClaims struct {
	Subject string
	Claims  map[string]any
}

func NewJWTService(defaults JWTDefaults) (*JWTService, error) {
	s := &JWTService{defaults: defaults}
	if defaults.Secret == "" {
		return s, nil
	}

	key, err := jwk.FromRaw([]byte(defaults.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK: %w", err)
	}

	if err := key.Set(jwk.AlgorithmKey, jwa.HS256); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}

	s.signingKey = key
	return s, nil
}

func (s *JWTService) Defaults() JWTDefaults {
	return s.defaults
}

// GenerateToken signs a token for userID, or for the default user id when
// userID is empty.
func (s *JWTService) GenerateToken(ctx context.Context, userID string, expiresIn time.Duration, claims map[string]any) (string, error) {
	if s.signingKey == nil {
		return "", ErrNoSecret
	}
	if userID == "" {
		userID = s.defaults.DefaultUserID
	}
	if userID == "" {
		return "", fmt.Errorf("no user id given and no default user id configured")
	}

	now := time.Now()
	builder := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(now).
		Expiration(now.Add(expiresIn))
	if s.defaults.Issuer != "" {
		builder = builder.Issuer(s.defaults.Issuer)
	}
	if s.defaults.Audience != "" {
		builder = builder.Audience([]string{s.defaults.Audience})
	}
	for k, v := range claims {
		builder = builder.Claim(k, v)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.signingKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), nil
}

func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	if s.signingKey == nil {
		return nil, ErrNoSecret
	}

	opts := []jwt.ParseOption{jwt.WithKey(jwa.HS256, s.signingKey), jwt.WithValidate(true)}
	if s.defaults.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.defaults.Issuer))
	}
	if s.defaults.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.defaults.Audience))
	}

	parsedToken, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, err := parsedToken.AsMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read claims: %w", err)
	}

	return &TokenClaims{
		Subject: parsedToken.Subject(),
		Claims:  claims,
	}, nil
}
