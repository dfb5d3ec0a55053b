package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del ciclo de vida de tokens. Paquete aparte para evitar ciclos entre oauth, audit y http.

var (
	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokencore_tokens_issued_total",
		Help: "Access tokens emitidos por realm y grant",
	}, []string{"realm", "grant_type"})

	TokensRevoked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokencore_tokens_revoked_total",
		Help: "Revocaciones efectivas por realm y tipo de token",
	}, []string{"realm", "token_type"})

	GrantFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokencore_grant_failures_total",
		Help: "Fallos de grant por realm, grant y código OAuth",
	}, []string{"realm", "grant_type", "error"})

	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokencore_login_attempts_total",
		Help: "Intentos de login (password grant) por resultado",
	}, []string{"realm", "outcome"})

	ResourceValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokencore_resource_validations_total",
		Help: "Validaciones de bearer tokens por resultado",
	}, []string{"realm", "result"})

	IdentifierCollisions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokencore_identifier_collisions_total",
		Help: "Colisiones de identificador detectadas al persistir",
	})
)

// Register registra las métricas OAuth en el registry dado (o el default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		TokensIssued, TokensRevoked, GrantFailures, LoginAttempts, ResourceValidations, IdentifierCollisions,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
