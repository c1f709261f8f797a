// Package admingrant verifies the EdDSA-signed admin grants protecting
// governance endpoints.
package admingrant

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	"github.com/stakehaus/fairplane/internal/api/httpx"
	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
	"github.com/stakehaus/fairplane/internal/platform/requestctx"
)

// RoleOperator is the claim role allowed to vote on governance actions.
const RoleOperator = "operator"

// grantEnv holds raw env values before post-parse validation.
type grantEnv struct {
	Issuer    string `env:"FAIRPLANE_ADMIN_GRANT_ISSUER"`
	Audience  string `env:"FAIRPLANE_ADMIN_GRANT_AUDIENCE"`
	PublicKey string `env:"FAIRPLANE_ADMIN_GRANT_PUBLIC_KEY"`
}

// Config defines how admin grants are verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Claims captures validated admin grant claims.
type Claims struct {
	AdminID   string
	Role      string
	Issuer    string
	ExpiresAt time.Time
}

// grantClaims is the internal claims type used for JWT parsing.
type grantClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// LoadConfigFromEnv reads admin grant verification configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw grantEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse admin grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return Config{}, fmt.Errorf("FAIRPLANE_ADMIN_GRANT_ISSUER is required")
	}
	if audience == "" {
		return Config{}, fmt.Errorf("FAIRPLANE_ADMIN_GRANT_AUDIENCE is required")
	}
	if publicKey == "" {
		return Config{}, fmt.Errorf("FAIRPLANE_ADMIN_GRANT_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode admin grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return Config{}, fmt.Errorf("admin grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// Validate verifies an admin grant token and returns its claims.
func Validate(grant string, cfg Config) (Claims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return Claims{}, apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Claims{}, errors.New("admin grant verifier is not configured")
	}

	var parsed grantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeAdminGrantMismatch,
			"admin grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeAdminGrantMismatch,
			"admin grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant sub is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodeAdminGrantExpired, "admin grant is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Claims{}, apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant not active yet")
	}
	if strings.TrimSpace(parsed.Role) == "" {
		return Claims{}, apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant role is required")
	}

	return Claims{
		AdminID:   parsed.Subject,
		Role:      parsed.Role,
		Issuer:    parsed.Issuer,
		ExpiresAt: exp,
	}, nil
}

// Middleware authenticates requests via a Bearer admin grant and stores the
// verified identity in the request context. Requests with a role other than
// requiredRole are rejected.
func Middleware(cfg Config, requiredRole string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := Validate(bearerToken(r), cfg)
			if err != nil {
				httpx.WriteError(w, r, err)
				return
			}
			if requiredRole != "" && claims.Role != requiredRole {
				httpx.WriteError(w, r, apperrors.WithMetadata(
					apperrors.CodeAdminRoleForbidden,
					"admin role not allowed",
					map[string]string{"Role": claims.Role},
				))
				return
			}
			ctx := requestctx.WithAdmin(r.Context(), requestctx.AdminIdentity{
				AdminID: claims.AdminID,
				Role:    claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant is invalid")
}

// audienceContains reports whether the audience list contains the value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

// decodeBase64 accepts std and raw-url encodings for operator convenience.
func decodeBase64(value string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(value)
}
