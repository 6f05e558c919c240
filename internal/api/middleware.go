package api

import (
	"context"
	"net/http"

	"github.com/custodia/escrowd/internal/api/respond"
	"github.com/custodia/escrowd/internal/auth"
)

type ctxKey int

const actorKey ctxKey = iota

// ActorFrom returns the authenticated actor stored by RequireActor.
func ActorFrom(ctx context.Context) (*auth.ActorInfo, bool) {
	info, ok := ctx.Value(actorKey).(*auth.ActorInfo)
	return info, ok
}

// RequireActor authenticates the request with the Authorizer and stores the
// resolved actor in the request context. Requests without a valid key get 401.
func RequireActor(authorizer auth.Authorizer, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := auth.ExtractAPIKey(r)
		if err != nil {
			respond.WriteUnauthorized(w, err.Error())
			return
		}
		info, err := authorizer.Authorize(r.Context(), apiKey)
		if err != nil {
			respond.WriteUnauthorized(w, err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), actorKey, info)))
	}
}
