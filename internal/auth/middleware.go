package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
)

type contextKey string

const UserClaimsKey contextKey = "user_claims"

type Authenticator struct {
	jwtService *JWTService
}

func NewAuthenticator(jwtService *JWTService) *Authenticator {
	return &Authenticator{jwtService: jwtService}
}

// Authenticate checks bearer tokens for any http/bearer or apiKey-in-header
// security scheme declared by a spec.
func (a *Authenticator) Authenticate(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	header := "Authorization"
	if scheme := input.SecurityScheme; scheme != nil {
		switch {
		case scheme.Type == "http" && strings.EqualFold(scheme.Scheme, "bearer"):
		case scheme.Type == "apiKey" && scheme.In == openapi3.ParameterInHeader:
			header = scheme.Name
		default:
			return fmt.Errorf("security scheme %s is not supported", input.SecuritySchemeName)
		}
	}

	req := input.RequestValidationInput.Request
	authHeader := req.Header.Get(header)
	if authHeader == "" {
		return fmt.Errorf("authorization header missing")
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return fmt.Errorf("invalid authorization header format")
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	claims, err := a.jwtService.ValidateToken(ctx, token)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	*req = *req.WithContext(context.WithValue(req.Context(), UserClaimsKey, claims))

	return nil
}

func GetAuthenticatedUser(ctx context.Context) (*TokenClaims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*TokenClaims)
	return claims, ok
}

// ContextWithUser stores claims the way Authenticate does.
func ContextWithUser(ctx context.Context, claims *TokenClaims) context.Context {
	return context.WithValue(ctx, UserClaimsKey, claims)
}
