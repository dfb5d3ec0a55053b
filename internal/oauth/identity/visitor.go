package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/tokencore/internal/cache"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
)

// DefaultVisitorTTL es la vida de una sesión de visitante sin configuración explícita.
const DefaultVisitorTTL = 24 * time.Hour

// VisitorSessions registra sesiones anónimas. Un visitante está "habilitado" mientras su sesión exista.
type VisitorSessions struct {
	cache cache.Client
	realm types.Realm
	ttl   time.Duration
}

// NewVisitorSessions crea el registro de sesiones sobre un cache.Client (memory o redis).
func NewVisitorSessions(c cache.Client, realm types.Realm, ttl time.Duration) *VisitorSessions {
	if ttl <= 0 {
		ttl = DefaultVisitorTTL
	}
	return &VisitorSessions{cache: c, realm: realm, ttl: ttl}
}

func (s *VisitorSessions) key(id string) string {
	return fmt.Sprintf("visitor:%s:%s", s.realm, id)
}

// Start acuña un visitante nuevo. Nunca reutiliza sesiones.
func (s *VisitorSessions) Start(ctx context.Context) (types.PrincipalRef, error) {
	id := uuid.NewString()
	if err := s.cache.Set(ctx, s.key(id), time.Now().UTC().Format(time.RFC3339), s.ttl); err != nil {
		return types.PrincipalRef{}, fmt.Errorf("identity: start visitor session: %w", err)
	}
	return types.VisitorRef(id), nil
}

// Active indica si la sesión del visitante sigue viva.
func (s *VisitorSessions) Active(ctx context.Context, id string) (bool, error) {
	return s.cache.Exists(ctx, s.key(id))
}

// End termina la sesión (p.ej. tras upgrade a usuario registrado).
func (s *VisitorSessions) End(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, s.key(id))
}

// TTL expone la vida configurada de la sesión.
func (s *VisitorSessions) TTL() time.Duration { return s.ttl }
