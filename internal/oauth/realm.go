package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/tokencore/internal/audit"
	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/jwt"
	"github.com/dropDatabas3/tokencore/internal/oauth/identity"
	"github.com/dropDatabas3/tokencore/internal/oauth/registry"
	"github.com/dropDatabas3/tokencore/internal/security/secretbox"
)

// TTLs por defecto.
const (
	DefaultAccessTTL   = time.Hour
	DefaultRefreshTTL  = 30 * 24 * time.Hour
	DefaultAuthCodeTTL = 10 * time.Minute
)

// TTLs de emisión de un realm. PerGrantAccess pisa Access para un grant puntual.
type TTLs struct {
	Access         time.Duration
	Refresh        time.Duration
	AuthCode       time.Duration
	PerGrantAccess map[types.GrantType]time.Duration
}

func (t TTLs) accessFor(g types.GrantType) time.Duration {
	if d, ok := t.PerGrantAccess[g]; ok && d > 0 {
		return d
	}
	if t.Access > 0 {
		return t.Access
	}
	return DefaultAccessTTL
}

func (t TTLs) refresh() time.Duration {
	if t.Refresh > 0 {
		return t.Refresh
	}
	return DefaultRefreshTTL
}

func (t TTLs) authCode() time.Duration {
	if t.AuthCode > 0 {
		return t.AuthCode
	}
	return DefaultAuthCodeTTL
}

// VisitorUpgrader migra los datos de un visitante al usuario recién autenticado.
type VisitorUpgrader interface {
	UpgradeVisitor(ctx context.Context, realm types.Realm, visitorID string, user types.PrincipalRef) error
}

// VisitorUpgraderFunc adapta una función a VisitorUpgrader.
type VisitorUpgraderFunc func(ctx context.Context, realm types.Realm, visitorID string, user types.PrincipalRef) error

func (f VisitorUpgraderFunc) UpgradeVisitor(ctx context.Context, realm types.Realm, visitorID string, user types.PrincipalRef) error {
	return f(ctx, realm, visitorID, user)
}

// Realm agrupa los colaboradores de una instancia del core. Backend y frontend son dos
// valores de este tipo; sólo comparten Codec y el par de claves detrás de Signer/Verifier.
type Realm struct {
	Name     types.Realm
	Store    repository.Store
	Clients  *registry.Registry
	Identity *identity.Verifier
	Signer   *jwt.Signer
	Verifier *jwt.Verifier
	Codec    *secretbox.Box
	TTLs     TTLs

	// Opcionales.
	Upgrader VisitorUpgrader
	Events   *audit.Dispatcher
}

func (r Realm) validate() error {
	switch {
	case !r.Name.IsValid():
		return errors.New("oauth: invalid realm name")
	case r.Store == nil:
		return errors.New("oauth: realm store is required")
	case r.Store.Realm() != r.Name:
		return errors.New("oauth: store belongs to another realm")
	case r.Clients == nil:
		return errors.New("oauth: client registry is required")
	case r.Identity == nil:
		return errors.New("oauth: identity verifier is required")
	case r.Identity.Realm() != r.Name:
		return errors.New("oauth: identity verifier belongs to another realm")
	case r.Signer == nil || r.Verifier == nil:
		return errors.New("oauth: jwt signer and verifier are required")
	case r.Codec == nil:
		return errors.New("oauth: payload codec is required")
	}
	return nil
}
