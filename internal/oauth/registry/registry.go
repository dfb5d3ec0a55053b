// Package registry resuelve y valida clients OAuth2 de un realm.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
	"github.com/dropDatabas3/tokencore/internal/security/password"
)

// Reason identifica (sólo internamente) por qué se rechazó un client.
type Reason string

const (
	ReasonNotFound         Reason = "client_not_found"
	ReasonDisabled         Reason = "client_disabled"
	ReasonGrantUnsupported Reason = "grant_unsupported"
	ReasonBadSecret        Reason = "bad_secret"
)

// ErrClientRejected es el error uniforme de ValidateClient. Usar errors.As con *Rejection
// para obtener el motivo; al caller externo siempre se le responde invalid_client.
var ErrClientRejected = errors.New("client rejected")

// Rejection envuelve ErrClientRejected con el motivo interno.
type Rejection struct {
	ClientID string
	Reason   Reason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("client %q rejected: %s", r.ClientID, r.Reason)
}

func (r *Rejection) Unwrap() error { return ErrClientRejected }

// FeatureOracle indica si la API está habilitada para un client del realm.
type FeatureOracle interface {
	FeatureEnabled(ctx context.Context, realm types.Realm, clientID string) bool
}

// OrganizationOracle indica si la organización dueña del client está habilitada.
type OrganizationOracle interface {
	OrganizationEnabled(ctx context.Context, organizationID string) bool
}

// Registry es la vista de clients de un realm.
type Registry struct {
	realm    types.Realm
	clients  repository.ClientRepository
	features FeatureOracle
	orgs     OrganizationOracle
	group    singleflight.Group
	now      func() time.Time
	// lookupTimeout acota el lookup compartido, que no hereda la cancelación de ningún caller.
	lookupTimeout time.Duration
}

// DefaultLookupTimeout es el tope del lookup coalescido en el repositorio.
const DefaultLookupTimeout = 5 * time.Second

// Option configura un Registry.
type Option func(*Registry)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLookupTimeout reemplaza DefaultLookupTimeout.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// New crea un Registry. Oráculos nil se consideran "siempre habilitado".
func New(realm types.Realm, clients repository.ClientRepository, features FeatureOracle, orgs OrganizationOracle, opts ...Option) *Registry {
	r := &Registry{
		realm:    realm,
		clients:  clients,
		features: features,
		orgs:     orgs,
		now:      time.Now,

		lookupTimeout: DefaultLookupTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve obtiene el client. Lookups concurrentes del mismo id se coalescen; el lookup
// compartido corre sin la cancelación del primer caller y cada caller espera con su propio ctx.
func (r *Registry) Resolve(ctx context.Context, clientID string) (*types.Client, error) {
	if clientID == "" {
		return nil, repository.ErrNotFound
	}
	ch := r.group.DoChan(clientID, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupTimeout)
		defer cancel()
		return r.clients.Get(lctx, clientID)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	c := res.Val.(*types.Client)
	if c.Realm != r.realm {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

// IsEnabled = active && feature habilitada && organización habilitada.
func (r *Registry) IsEnabled(ctx context.Context, c *types.Client) bool {
	if c == nil || !c.Active {
		return false
	}
	if r.features != nil && !r.features.FeatureEnabled(ctx, r.realm, c.ID) {
		return false
	}
	if c.OrganizationID != "" && r.orgs != nil && !r.orgs.OrganizationEnabled(ctx, c.OrganizationID) {
		return false
	}
	return true
}

// IsGrantSupported aplica la regla de grants:
// listado, o lista vacía (legacy: todos), o refresh_token implícito con password/authorization_code.
func (r *Registry) IsGrantSupported(c *types.Client, g types.GrantType) bool {
	if len(c.GrantTypes) == 0 {
		return true
	}
	if c.HasGrant(g) {
		return true
	}
	if g == types.GrantRefreshToken {
		return c.HasGrant(types.GrantPassword) || c.HasGrant(types.GrantAuthorizationCode)
	}
	return false
}

// ValidateSecret compara en tiempo constante. Clients públicos no llevan secreto.
func (r *Registry) ValidateSecret(c *types.Client, secret string) bool {
	if !c.Confidential {
		return true
	}
	if secret == "" || c.SecretDigest == "" {
		return false
	}
	return password.VerifySecret(secret, c.SecretSalt, c.SecretDigest)
}

// ValidateClient corta en el primer fallo: no existe → deshabilitado → grant no soportado → secreto.
// Errores de store distintos de not-found se devuelven tal cual (fail closed, server_error).
func (r *Registry) ValidateClient(ctx context.Context, clientID, secret string, grant types.GrantType) (*types.Client, error) {
	log := logger.From(ctx).With(logger.Realm(string(r.realm)), logger.ClientID(clientID), logger.GrantType(string(grant)))

	c, err := r.Resolve(ctx, clientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, r.reject(log, clientID, ReasonNotFound)
		}
		log.Error("client lookup failed", logger.Err(err))
		return nil, err
	}
	if !r.IsEnabled(ctx, c) {
		return nil, r.reject(log, clientID, ReasonDisabled)
	}
	if !r.IsGrantSupported(c, grant) {
		return nil, r.reject(log, clientID, ReasonGrantUnsupported)
	}
	if !r.ValidateSecret(c, secret) {
		return nil, r.reject(log, clientID, ReasonBadSecret)
	}
	return c, nil
}

// MarkUsed actualiza last_used_at. Lo llaman los grants sólo tras emitir tokens.
func (r *Registry) MarkUsed(ctx context.Context, clientID string) error {
	return r.clients.MarkUsed(ctx, clientID, r.now().UTC())
}

func (r *Registry) reject(log *zap.Logger, clientID string, reason Reason) error {
	log.Debug("client rejected", logger.Reason(string(reason)))
	return &Rejection{ClientID: clientID, Reason: reason}
}

// ─── oráculos estáticos (config) ───

// StaticFeatures habilita la API por realm con una lista de clients bloqueados.
type StaticFeatures struct {
	Disabled        map[types.Realm]bool
	DisabledClients map[string]bool
}

func (f StaticFeatures) FeatureEnabled(_ context.Context, realm types.Realm, clientID string) bool {
	if f.Disabled[realm] {
		return false
	}
	return !f.DisabledClients[clientID]
}

// StaticOrganizations deshabilita organizaciones listadas.
type StaticOrganizations map[string]bool

func (o StaticOrganizations) OrganizationEnabled(_ context.Context, organizationID string) bool {
	return !o[organizationID]
}
