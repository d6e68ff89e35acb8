package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/guildhall-io/guildhall/pkg/contextkeys"
	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/observability"
	"github.com/guildhall-io/guildhall/pkg/storage/postgres"
)

// Authenticator turns a bearer token into an authenticated caller on
// the request context.
type Authenticator struct {
	verifier TokenVerifier
	members  *directory.Store
	logger   *observability.Logger
}

// NewAuthenticator builds an authenticator reading members through db.
func NewAuthenticator(verifier TokenVerifier, db postgres.DBTX, logger *observability.Logger) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		members:  directory.NewStore(db),
		logger:   logger,
	}
}

// Middleware verifies the Authorization header, resolves the subject to
// a member and stores the member as the caller. A valid token whose
// subject is not linked to any member is still a 401: authentication
// proves identity, membership is a separate fact.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "missing bearer token")
			return
		}

		subject, err := a.verifier.Verify(r.Context(), token)
		if err != nil {
			a.logger.WithError(err).Debug("token rejected")
			httputil.WriteUnauthorized(w, "invalid token")
			return
		}

		member, err := a.members.GetByExternalIdentity(r.Context(), subject)
		if errors.Is(err, governance.ErrNotFound) {
			httputil.WriteUnauthorized(w, "identity not linked to a member")
			return
		}
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithCaller(r.Context(), member)))
	})
}

// CallerFromContext returns the authenticated member, if any.
func CallerFromContext(ctx context.Context) (*directory.Member, bool) {
	member, ok := ctx.Value(contextkeys.CallerKey).(*directory.Member)
	return member, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
