package oauth

import (
	"context"

	"github.com/dropDatabas3/tokencore/internal/audit"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
)

// upgradeVisitor migra los datos del visitante previo al usuario autenticado y descarta
// su access token. Un visitor_token inválido o un fallo del hook no afectan la emisión.
func (s *Server) upgradeVisitor(ctx context.Context, user types.PrincipalRef, visitorToken string) {
	if visitorToken == "" || !user.IsUser() || s.realm.Name != types.RealmFrontend {
		return
	}
	log := logger.From(ctx).With(logger.Op("visitor_upgrade"), logger.Principal(user.String()))

	claims, err := s.realm.Verifier.ParseAccess(visitorToken)
	if err != nil {
		log.Debug("visitor token ignored", logger.Err(err))
		return
	}
	visitor, err := claims.Principal()
	if err != nil || !visitor.IsVisitor() {
		log.Debug("visitor token ignored", logger.Reason("not_a_visitor"))
		return
	}
	repo := s.realm.Store.AccessTokens()
	if revoked, err := repo.IsRevoked(ctx, claims.ID); err != nil || revoked {
		log.Debug("visitor token ignored", logger.Reason("revoked"), logger.JTI(claims.ID))
		return
	}

	if s.realm.Upgrader != nil {
		if err := s.realm.Upgrader.UpgradeVisitor(ctx, s.realm.Name, visitor.ID(), user); err != nil {
			log.Warn("visitor upgrade hook failed", logger.Err(err))
			return
		}
	}
	if _, err := repo.Revoke(ctx, claims.ID); err != nil {
		log.Warn("revoke visitor token failed", logger.Err(err))
	}
	if err := s.realm.Identity.EndVisitor(ctx, visitor); err != nil {
		log.Warn("end visitor session failed", logger.Err(err))
	}
	s.emit(ctx, audit.Event{Kind: audit.VisitorUpgraded, ClientID: claims.ClientID(), Principal: user, JTI: claims.ID, Reason: visitor.String()})
}
