package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/QualityUnit/flowbatch/pkg/auth"
	"github.com/QualityUnit/flowbatch/pkg/config"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token on every request and stores the
// resulting claims in the gin context. A nil validator means auth is disabled
// (dev only); requests pass through with an anonymous admin identity.
func AuthMiddleware(validator auth.Validator, cfg *config.Config) gin.HandlerFunc {
	if validator == nil {
		return func(c *gin.Context) {
			c.Set("userEmail", "anonymous")
			c.Set("userRole", "ADMIN")
			c.Next()
		}
	}
	return func(c *gin.Context) {
		claims, err := validateBearer(validator, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		setUserContext(c, cfg, claims)
		c.Next()
	}
}

// NewValidatorFromConfig builds the token validator named by the config, via
// the auth provider registry. Returns nil when auth is disabled.
func NewValidatorFromConfig(cfg *config.Config) (auth.Validator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.AuthProvider))
	switch provider {
	case "", "none":
		return nil, nil
	case "static":
		raw, _ := json.Marshal(map[string]any{"token": cfg.AuthStaticToken})
		return auth.NewValidator(auth.ProviderConfig{Type: "static", Config: raw})
	case "jwks":
		raw, _ := json.Marshal(map[string]any{
			"jwksUrl":          cfg.AuthJwksURL,
			"issuer":           cfg.AuthIssuer,
			"audience":         cfg.AuthAudience,
			"clockSkewSeconds": cfg.AllowedClockSkewSeconds,
		})
		return auth.NewValidator(auth.ProviderConfig{Type: "jwks", Config: raw})
	default:
		return auth.NewValidator(auth.ProviderConfig{Type: provider})
	}
}

func validateBearer(validator auth.Validator, authHeader string) (*auth.Claims, error) {
	if strings.TrimSpace(authHeader) == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fmt.Errorf("invalid Authorization format")
	}
	return validator.Validate(parts[1])
}

func setUserContext(c *gin.Context, cfg *config.Config, claims *auth.Claims) {
	c.Set("userClaims", claims)
	email := strings.TrimSpace(claims.Email)
	if email == "" {
		email = strings.TrimSpace(claims.Subject)
	}
	c.Set("userEmail", email)

	role := ""
	if v, ok := claims.Raw["role"].(string); ok {
		role = strings.ToUpper(strings.TrimSpace(v))
	}
	if role == "" && cfg != nil && cfg.Env == "dev" {
		role = strings.ToUpper(strings.TrimSpace(c.GetHeader("X-Role")))
	}
	if role == "" {
		role = "USER"
	}
	c.Set("userRole", role)
}
