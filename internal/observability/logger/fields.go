package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// =================================================================================
// CAMPOS OAUTH
// =================================================================================

// Realm identifica el realm (backend|frontend) que procesa la operación.
func Realm(v string) zap.Field { return zap.String("realm", v) }

// GrantType identifica el grant OAuth2 en curso.
func GrantType(v string) zap.Field { return zap.String("grant_type", v) }

// ClientID es el client_id público del cliente OAuth.
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// Principal serializa un PrincipalRef ("user:42", "visitor:<uuid>").
func Principal(v string) zap.Field { return zap.String("principal", v) }

// JTI es el identificador del access token.
func JTI(v string) zap.Field { return zap.String("jti", v) }

// Reason describe el motivo interno de un rechazo. Nunca se expone al cliente.
func Reason(v string) zap.Field { return zap.String("reason", v) }

// =================================================================================
// CAMPOS SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

// Layer indica la capa (handler, service, repository).
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }
