// Package jwt signs and validates the bearer tokens handed out at login.
// Tokens are stateless: validity comes from the HMAC signature and expiry
// alone, never from a server-side session table.
package jwt

import (
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/quickmart/quickmart-auth/internal/domain"
)

// Generator is responsible for signing and validating access tokens.
type Generator struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewGenerator constructs a token generator. An empty signing secret is a
// configuration fault and refuses construction.
func NewGenerator(secret, issuer, audience string, ttl time.Duration) (*Generator, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt: signing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Generator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}, nil
}

// AccessTokenClaims carry the identity payload alongside the registered set.
type AccessTokenClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TTL reports the configured token lifetime.
func (g *Generator) TTL() time.Duration {
	return g.ttl
}

// Generate produces a signed HS256 token for the user.
func (g *Generator) Generate(user domain.User) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: g.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:   strconv.FormatInt(user.ID, 10),
		Issuer:    g.issuer,
		Audience:  gojwt.Audience{g.audience},
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(g.ttl)),
	}

	custom := AccessTokenClaims{
		Name:  user.FullName(),
		Email: user.Email,
		Role:  user.Role,
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}

	return token, nil
}

// Validate checks signature, issuer, audience, and expiry, and returns the
// claims on success.
func (g *Generator) Validate(token string) (*gojwt.Claims, *AccessTokenClaims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	var std gojwt.Claims
	var custom AccessTokenClaims
	if err := parsed.Claims(g.secret, &std, &custom); err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}

	expected := gojwt.Expected{
		Issuer:      g.issuer,
		AnyAudience: gojwt.Audience{g.audience},
		Time:        time.Now().UTC(),
	}
	// Zero leeway: a token is good until its expiry instant and never after.
	if err := std.ValidateWithLeeway(expected, 0); err != nil {
		return nil, nil, fmt.Errorf("validate claims: %w", err)
	}

	return &std, &custom, nil
}
