// Package audit despacha eventos del ciclo de vida de tokens (emisión, login, revocación)
// hacia sinks externos: log estructurado y métricas.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/metrics"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
)

// Kind es el tipo de evento.
type Kind string

const (
	TokenIssued     Kind = "token_issued"
	TokenRevoked    Kind = "token_revoked"
	LoginSucceeded  Kind = "login_succeeded"
	LoginFailed     Kind = "login_failed"
	VisitorUpgraded Kind = "visitor_upgraded"
)

// Event es un hecho ya ocurrido. Los campos vacíos se omiten en los sinks.
type Event struct {
	Kind      Kind
	Realm     types.Realm
	GrantType types.GrantType
	ClientID  string
	Principal types.PrincipalRef
	Username  string
	JTI       string
	TokenType string // access_token | refresh_token (revocaciones)
	Reason    string
	At        time.Time
}

// Sink consume eventos. No debe bloquear.
type Sink interface {
	Handle(ctx context.Context, e Event)
}

// SinkFunc adapta una función a Sink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Handle(ctx context.Context, e Event) { f(ctx, e) }

// Dispatcher reparte cada evento a todos los sinks, en orden y de forma síncrona.
// Un sink que paniquea no afecta al resto ni al request.
type Dispatcher struct {
	sinks []Sink
	now   func() time.Time
}

// NewDispatcher crea un dispatcher con los sinks dados.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, now: time.Now}
}

// Emit completa At y despacha. Dispatcher nil es no-op.
func (d *Dispatcher) Emit(ctx context.Context, e Event) {
	if d == nil {
		return
	}
	if e.At.IsZero() {
		e.At = d.now().UTC()
	}
	for _, s := range d.sinks {
		d.safeHandle(ctx, s, e)
	}
}

func (d *Dispatcher) safeHandle(ctx context.Context, s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.From(ctx).Error("audit sink panic", logger.Any("panic", r), logger.String("event", string(e.Kind)))
		}
	}()
	s.Handle(ctx, e)
}

// NewLogSink escribe cada evento como línea estructurada.
func NewLogSink(l *zap.Logger) Sink {
	l = l.Named("audit")
	return SinkFunc(func(_ context.Context, e Event) {
		fields := []zap.Field{
			logger.String("event", string(e.Kind)),
			logger.Realm(string(e.Realm)),
			zap.Time("ts", e.At),
		}
		if e.GrantType != "" {
			fields = append(fields, logger.GrantType(string(e.GrantType)))
		}
		if e.ClientID != "" {
			fields = append(fields, logger.ClientID(e.ClientID))
		}
		if !e.Principal.IsZero() {
			fields = append(fields, logger.Principal(e.Principal.String()))
		}
		if e.Username != "" {
			fields = append(fields, logger.String("username", e.Username))
		}
		if e.JTI != "" {
			fields = append(fields, logger.JTI(e.JTI))
		}
		if e.TokenType != "" {
			fields = append(fields, logger.String("token_type", e.TokenType))
		}
		if e.Reason != "" {
			fields = append(fields, logger.Reason(e.Reason))
		}
		l.Info("audit", fields...)
	})
}

// NewMetricsSink traduce eventos a contadores Prometheus.
func NewMetricsSink() Sink {
	return SinkFunc(func(_ context.Context, e Event) {
		realm := string(e.Realm)
		switch e.Kind {
		case TokenIssued:
			metrics.TokensIssued.WithLabelValues(realm, string(e.GrantType)).Inc()
		case TokenRevoked:
			metrics.TokensRevoked.WithLabelValues(realm, e.TokenType).Inc()
		case LoginSucceeded:
			metrics.LoginAttempts.WithLabelValues(realm, "success").Inc()
		case LoginFailed:
			metrics.LoginAttempts.WithLabelValues(realm, "failure").Inc()
		}
	})
}
