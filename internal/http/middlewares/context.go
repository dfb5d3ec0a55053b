package middlewares

import (
	"context"

	"github.com/dropDatabas3/tokencore/internal/oauth"
)

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxAccessKey    ctxKey = "access"
)

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID devuelve "" si WithRequestID no corrió.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithAccess inyecta el AccessContext validado.
func WithAccess(ctx context.Context, ac *oauth.AccessContext) context.Context {
	return context.WithValue(ctx, ctxAccessKey, ac)
}

// GetAccess devuelve el AccessContext de RequireBearer, o nil.
func GetAccess(ctx context.Context) *oauth.AccessContext {
	ac, _ := ctx.Value(ctxAccessKey).(*oauth.AccessContext)
	return ac
}
