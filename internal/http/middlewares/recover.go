package middlewares

import (
	"errors"
	"fmt"
	"net/http"

	httperrors "github.com/dropDatabas3/tokencore/internal/http/errors"
	"github.com/dropDatabas3/tokencore/internal/oauth"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
)

// WithRecover convierte un panic en server_error.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.From(r.Context()).Error("panic recovered",
						logger.Op("recover"),
						logger.Any("panic", rec),
					)
					httperrors.WriteError(w, oauth.ServerError(errors.New(fmt.Sprint(rec))))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
