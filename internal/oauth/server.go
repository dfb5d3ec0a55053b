package oauth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/tokencore/internal/audit"
	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/metrics"
	"github.com/dropDatabas3/tokencore/internal/oauth/registry"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
	tokens "github.com/dropDatabas3/tokencore/internal/security/token"
)

// MaxIdentifierAttempts acota los reintentos ante colisión de identificador.
const MaxIdentifierAttempts = 10

// TokenRequest son los parámetros del token endpoint.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Scope        string

	// authorization_code
	Code         string
	RedirectURI  string
	CodeVerifier string

	// password
	Username string
	Password string

	// refresh_token
	RefreshToken string

	// VisitorToken es el access token previo de un visitante a migrar (frontend).
	VisitorToken string
}

// ParseTokenRequest arma el request desde el form. Credenciales Basic (si hay) ganan sobre el body.
func ParseTokenRequest(form url.Values, basicUser, basicPass string, hasBasic bool) TokenRequest {
	req := TokenRequest{
		GrantType:    form.Get("grant_type"),
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
		Scope:        form.Get("scope"),
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		CodeVerifier: form.Get("code_verifier"),
		Username:     form.Get("username"),
		Password:     form.Get("password"),
		RefreshToken: form.Get("refresh_token"),
		VisitorToken: form.Get("visitor_token"),
	}
	if hasBasic {
		req.ClientID = basicUser
		req.ClientSecret = basicPass
	}
	return req
}

// TokenResponse es el cuerpo 200 del token endpoint.
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Server es la fachada del authorization server para un realm.
type Server struct {
	realm Realm
	now   func() time.Time
	newID tokens.Generator
}

// Option configura un Server.
type Option func(*Server)

// WithClock reemplaza el reloj.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithIdentifierGenerator reemplaza el generador de identificadores.
func WithIdentifierGenerator(g tokens.Generator) Option {
	return func(s *Server) { s.newID = g }
}

// NewServer valida el realm y construye la fachada.
func NewServer(r Realm, opts ...Option) (*Server, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	s := &Server{realm: r, now: time.Now, newID: tokens.NewIdentifier}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Realm devuelve el nombre del realm servido.
func (s *Server) Realm() types.Realm { return s.realm.Name }

// Ping verifica el store del realm.
func (s *Server) Ping(ctx context.Context) error { return s.realm.Store.Ping(ctx) }

// JWKS devuelve las claves públicas del realm (JSON).
func (s *Server) JWKS() []byte { return s.realm.Signer.JWKS() }

// Token despacha por grant. El conjunto de grants es cerrado.
func (s *Server) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("oauth"),
		logger.Realm(string(s.realm.Name)),
		logger.GrantType(req.GrantType),
		logger.ClientID(req.ClientID),
	)
	ctx = logger.ToContext(ctx, log)

	var (
		resp *TokenResponse
		err  error
	)
	g, _ := types.ParseGrantType(req.GrantType)
	switch g {
	case types.GrantAuthorizationCode:
		resp, err = s.grantAuthorizationCode(ctx, req)
	case types.GrantClientCredentials:
		resp, err = s.grantClientCredentials(ctx, req)
	case types.GrantPassword:
		resp, err = s.grantPassword(ctx, req)
	case types.GrantRefreshToken:
		resp, err = s.grantRefreshToken(ctx, req)
	default:
		err = UnsupportedGrantType()
	}
	if err != nil {
		oe := AsError(err)
		s.logFailure(log, oe)
		label := string(g)
		if label == "" {
			label = "unsupported"
		}
		metrics.GrantFailures.WithLabelValues(string(s.realm.Name), label, oe.Code).Inc()
		return nil, oe
	}
	return resp, nil
}

func (s *Server) logFailure(log *zap.Logger, oe *Error) {
	fields := []zap.Field{logger.String("error", oe.Code), logger.String("hint", oe.Hint)}
	if oe.Err != nil {
		fields = append(fields, logger.Err(oe.Err))
	}
	if oe.Code == CodeServerError {
		log.Error("token request failed", fields...)
		return
	}
	log.Debug("token request rejected", fields...)
}

// authenticateClient traduce el rechazo del registry al invalid_client uniforme.
func (s *Server) authenticateClient(ctx context.Context, clientID, secret string, g types.GrantType) (*types.Client, error) {
	if clientID == "" {
		return nil, InvalidRequest("client_id")
	}
	c, err := s.realm.Clients.ValidateClient(ctx, clientID, secret, g)
	if err != nil {
		if errors.Is(err, registry.ErrClientRejected) {
			return nil, InvalidClient().WithCause(err)
		}
		return nil, ServerError(err)
	}
	return c, nil
}

// validateScopes resuelve cada scope solicitado contra el repositorio del realm.
func (s *Server) validateScopes(ctx context.Context, raw string) ([]string, error) {
	out := []string{}
	for _, sc := range splitScopes(raw) {
		got, err := s.realm.Store.Scopes().Get(ctx, sc)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, InvalidScope(sc)
			}
			return nil, ServerError(err)
		}
		out = append(out, string(got))
	}
	return out, nil
}

// splitScopes separa por espacios y elimina duplicados conservando el orden.
func splitScopes(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, sc := range strings.Fields(raw) {
		if !seen[sc] {
			seen[sc] = true
			out = append(out, sc)
		}
	}
	return out
}

// persistWithRetry reintenta con identificadores nuevos mientras persist informe colisión.
func (s *Server) persistWithRetry(ctx context.Context, kind string, persist func(id string) error) error {
	for attempt := 1; attempt <= MaxIdentifierAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return ServerError(err)
		}
		err = persist(id)
		if err == nil {
			return nil
		}
		if !repository.IsCollision(err) {
			return ServerError(err)
		}
		metrics.IdentifierCollisions.Inc()
		logger.From(ctx).Warn("identifier collision", logger.String("kind", kind), logger.Int("attempt", attempt))
	}
	return ServerError(repository.ErrIdentifierCollision)
}

func (s *Server) issueAccessToken(ctx context.Context, g types.GrantType, client *types.Client, principal types.PrincipalRef, scopes []string) (*types.AccessToken, time.Duration, error) {
	now := s.now().UTC()
	ttl := s.realm.TTLs.accessFor(g)
	var at *types.AccessToken
	err := s.persistWithRetry(ctx, "access_token", func(id string) error {
		at = &types.AccessToken{
			ID:        id,
			ClientID:  client.ID,
			Principal: principal,
			Scopes:    scopes,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}
		return s.realm.Store.AccessTokens().Persist(ctx, at)
	})
	if err != nil {
		return nil, 0, err
	}
	return at, ttl, nil
}

func (s *Server) issueRefreshToken(ctx context.Context, at *types.AccessToken) (string, error) {
	now := s.now().UTC()
	var rt *types.RefreshToken
	err := s.persistWithRetry(ctx, "refresh_token", func(id string) error {
		rt = &types.RefreshToken{
			ID:            id,
			AccessTokenID: at.ID,
			ExpiresAt:     now.Add(s.realm.TTLs.refresh()),
			CreatedAt:     now,
		}
		return s.realm.Store.RefreshTokens().Persist(ctx, rt)
	})
	if err != nil {
		return "", err
	}
	p := newRefreshPayload(rt, at)
	sealed, err := seal(s.realm.Codec, &p)
	if err != nil {
		return "", ServerError(err)
	}
	return sealed, nil
}

// respond emite access (+ refresh) y registra el uso del client.
func (s *Server) respond(ctx context.Context, g types.GrantType, client *types.Client, principal types.PrincipalRef, scopes []string, withRefresh bool) (*TokenResponse, error) {
	at, ttl, err := s.issueAccessToken(ctx, g, client, principal, scopes)
	if err != nil {
		return nil, err
	}
	signed, err := s.realm.Signer.SignAccess(at, at.CreatedAt)
	if err != nil {
		return nil, ServerError(err)
	}
	resp := &TokenResponse{TokenType: "Bearer", ExpiresIn: int64(ttl / time.Second), AccessToken: signed}
	if withRefresh {
		if resp.RefreshToken, err = s.issueRefreshToken(ctx, at); err != nil {
			return nil, err
		}
	}

	if err := s.realm.Clients.MarkUsed(ctx, client.ID); err != nil {
		logger.From(ctx).Warn("mark client used failed", logger.Err(err))
	}
	s.emit(ctx, audit.Event{
		Kind:      audit.TokenIssued,
		GrantType: g,
		ClientID:  client.ID,
		Principal: principal,
		JTI:       at.ID,
	})
	return resp, nil
}

func (s *Server) emit(ctx context.Context, e audit.Event) {
	e.Realm = s.realm.Name
	s.realm.Events.Emit(ctx, e)
}
