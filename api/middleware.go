package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"disputeflow/auth"
)

type subjectKey struct{}

// RequireAuth verifies the bearer token on every protected route and places
// the verified subject in the request context. The three auth failure modes
// stay distinguishable: missing header, malformed scheme, invalid token.
func RequireAuth(tokens *auth.TokenService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := auth.ParseBearer(r.Header.Get("Authorization"))
			if err != nil {
				FailErr(w, r, logger, err)
				return
			}

			sub, err := tokens.Verify(raw)
			if err != nil {
				FailErr(w, r, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFrom returns the verified subject placed by RequireAuth.
func SubjectFrom(ctx context.Context) (auth.Subject, bool) {
	sub, ok := ctx.Value(subjectKey{}).(auth.Subject)
	return sub, ok
}
