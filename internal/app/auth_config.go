package app

import (
	"fmt"
	"strings"

	"github.com/consultportal/portal/internal/auth"
)

// minJWTSecretBytes is the shortest shared secret accepted for HS256 tokens.
const minJWTSecretBytes = 32

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         strings.TrimSpace(c.JWT.Secret),
		Issuer:         strings.TrimSpace(c.JWT.Issuer),
		AccessTokenTTL: ttl,
	}
}

// ValidateSecret rejects missing or short JWT secrets. Hex and base64 secrets
// are measured by their decoded length.
func (c AuthConfig) ValidateSecret() error {
	secret := strings.TrimSpace(c.JWT.Secret)
	if secret == "" {
		return fmt.Errorf("auth.jwt.secret must be configured")
	}
	length, err := KeyByteLength(secret)
	if err != nil {
		return fmt.Errorf("auth.jwt.secret: %w", err)
	}
	if length < minJWTSecretBytes {
		return fmt.Errorf("auth.jwt.secret must decode to at least %d bytes (current: %d)", minJWTSecretBytes, length)
	}
	return nil
}
