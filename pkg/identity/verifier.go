package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// TokenVerifier checks a bearer token and returns the stable subject
// identifier the provider assigned to the caller.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (subject string, err error)
}

// OIDCVerifier verifies ID tokens against a discovered OpenID Connect
// provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider at issuerURL and builds a
// verifier for tokens issued to clientID.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Verify validates the token's signature, issuer, audience and expiry,
// and returns its subject claim.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", fmt.Errorf("verify ID token: %w", err)
	}
	if idToken.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return idToken.Subject, nil
}

// StaticVerifier maps fixed tokens to subjects. Meant for local
// development and tests, never production.
type StaticVerifier map[string]string

// Verify looks the token up in the static map.
func (v StaticVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	subject, ok := v[rawToken]
	if !ok {
		return "", fmt.Errorf("unknown token")
	}
	return subject, nil
}
