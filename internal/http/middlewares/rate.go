package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	httperrors "github.com/dropDatabas3/tokencore/internal/http/errors"
	"github.com/dropDatabas3/tokencore/internal/oauth"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
	"github.com/dropDatabas3/tokencore/internal/rate"
)

// maxFormBytes acota el body de los endpoints OAuth (form-urlencoded).
const maxFormBytes = 64 << 10

// clientIP toma el primer X-Forwarded-For o el RemoteAddr.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		return strings.TrimSpace(strings.Split(xf, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateKeyFunc arma la clave del bucket.
type RateKeyFunc func(r *http.Request) string

// ClientRateKey: ip|path|client_id. El client_id sale de Basic auth, del form o de la query.
func ClientRateKey(r *http.Request) string {
	clientID, _, ok := r.BasicAuth()
	if !ok {
		if r.Method == http.MethodPost {
			_ = r.ParseForm()
		}
		clientID = r.FormValue("client_id")
	}
	if clientID == "" {
		clientID = "-"
	}
	return clientIP(r) + "|" + r.URL.Path + "|" + clientID
}

// IPRateKey: sólo ip|path.
func IPRateKey(r *http.Request) string {
	return clientIP(r) + "|" + r.URL.Path
}

var errRateLimited = &oauth.Error{
	Code:       "too_many_requests",
	Message:    "Too many requests.",
	Hint:       "Retry after the rate limit window resets",
	HTTPStatus: http.StatusTooManyRequests,
}

// WithRateLimit aplica un limiter por clave. Si el limiter falla el request pasa.
func WithRateLimit(l rate.Limiter, key RateKeyFunc) Middleware {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if key == nil {
		key = ClientRateKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
			}
			res, err := l.Allow(r.Context(), key(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if res.WindowTTL > 0 {
				resetAt := time.Now().Add(res.WindowTTL).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				httperrors.WriteError(w, errRateLimited)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
