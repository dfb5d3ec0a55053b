package middlewares

import (
	"context"
	"net/http"

	httperrors "github.com/dropDatabas3/tokencore/internal/http/errors"
	"github.com/dropDatabas3/tokencore/internal/oauth"
)

// BearerValidator es la parte del oauth.Server que usa RequireBearer.
type BearerValidator interface {
	ValidateBearer(ctx context.Context, raw string) (*oauth.AccessContext, error)
}

// RequireBearer valida el Authorization: Bearer en cada request y deja el AccessContext
// en el contexto. Cualquier falla es 401.
func RequireBearer(v BearerValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := oauth.BearerToken(r.Header.Get("Authorization"))
			ac, err := v.ValidateBearer(r.Context(), raw)
			if err != nil {
				httperrors.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccess(r.Context(), ac)))
		})
	}
}

// RequireScope exige un scope en el AccessContext; corre después de RequireBearer.
func RequireScope(scope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := GetAccess(r.Context())
			if ac == nil || !ac.HasScope(scope) {
				httperrors.WriteError(w, &oauth.Error{
					Code:       "insufficient_scope",
					Message:    "The request requires higher privileges than provided by the access token.",
					Hint:       "Scope `" + scope + "` is required",
					HTTPStatus: http.StatusForbidden,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
