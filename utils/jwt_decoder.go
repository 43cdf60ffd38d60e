package utils

import (
	"errors"
	"fmt"
	"time"

	"clipflow/models"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrInvalidToken      = errors.New("invalid token format")
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenNotYetValid  = errors.New("token not yet valid")
	ErrInvalidSignature  = errors.New("invalid token signature")
	ErrInvalidIssuer     = errors.New("invalid issuer")
	ErrNoVerificationKey = errors.New("no verification key configured")
	ErrStageNotAllowed   = errors.New("token not valid for stage")
)

// WebhookVerifier checks the bearer tokens presented on the event endpoints.
// HS256 is accepted when Secret is set, RS256 when PublicKey is.
type WebhookVerifier struct {
	Secret    []byte
	PublicKey any    // *rsa.PublicKey
	Issuer    string // empty accepts any issuer
	Leeway    time.Duration
}

// Verify checks the signature, the issuer and the token's time window, then
// that the token is scoped to stage. An empty stage skips the scope check.
func (v WebhookVerifier) Verify(token, stage string) (*models.WebhookClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	key, algs := v.keyAndAlgorithms()
	if key == nil {
		return nil, ErrNoVerificationKey
	}

	tok, err := jwt.ParseSigned(token, algs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var registered jwt.Claims
	claims := &models.WebhookClaims{}
	if err := tok.Claims(key, &registered, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := v.validate(registered); err != nil {
		return nil, err
	}

	if stage != "" && !claims.Allows(stage) {
		return nil, fmt.Errorf("%w %s (scoped to %v)", ErrStageNotAllowed, stage, claims.Stages)
	}
	return claims, nil
}

func (v WebhookVerifier) keyAndAlgorithms() (any, []jose.SignatureAlgorithm) {
	switch {
	case len(v.Secret) > 0:
		return v.Secret, []jose.SignatureAlgorithm{jose.HS256}
	case v.PublicKey != nil:
		return v.PublicKey, []jose.SignatureAlgorithm{jose.RS256}
	}
	return nil, nil
}

// validate maps the registered claim checks onto this package's errors.
func (v WebhookVerifier) validate(registered jwt.Claims) error {
	leeway := v.Leeway
	if leeway <= 0 {
		leeway = jwt.DefaultLeeway
	}
	err := registered.ValidateWithLeeway(jwt.Expected{Issuer: v.Issuer, Time: time.Now()}, leeway)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrIssuedInTheFuture), errors.Is(err, jwt.ErrNotValidYet):
		return ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrInvalidIssuer):
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidIssuer, v.Issuer, registered.Issuer)
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

// SignWebhookJWT mints an HS256 token for the event endpoints.
func SignWebhookJWT(claims *models.WebhookClaims, secret []byte) (string, error) {
	if claims == nil {
		return "", errors.New("claims cannot be nil")
	}
	if len(secret) == 0 {
		return "", ErrNoVerificationKey
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	return jwt.Signed(signer).Claims(claims).Serialize()
}
