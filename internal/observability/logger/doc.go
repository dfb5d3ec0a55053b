// Package logger provee un logger Zap singleton con scoping por contexto.
//
// # Uso
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{
//	    Env:   cfg.App.Env,   // "dev" o "prod"
//	    Level: cfg.Log.Level, // "debug", "info", "warn", "error"
//	})
//	defer logger.Sync()
//
// En grants/validadores (con contexto):
//
//	log := logger.From(ctx).With(logger.Realm(realm), logger.GrantType(grant))
//	log.Debug("client rejected", logger.ClientID(id), logger.Reason(reason))
//
// El middleware HTTP inyecta un logger con request_id en el contexto; fuera de un
// request, From(ctx) devuelve el singleton.
package logger
