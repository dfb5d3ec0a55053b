// Package app arma el proceso: stores, cache, claves, un oauth.Server por realm y el handler HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/tokencore/internal/audit"
	"github.com/dropDatabas3/tokencore/internal/cache"
	"github.com/dropDatabas3/tokencore/internal/config"
	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	httpx "github.com/dropDatabas3/tokencore/internal/http"
	healthctrl "github.com/dropDatabas3/tokencore/internal/http/controllers/health"
	oauthctrl "github.com/dropDatabas3/tokencore/internal/http/controllers/oauth"
	"github.com/dropDatabas3/tokencore/internal/http/router"
	"github.com/dropDatabas3/tokencore/internal/jwt"
	"github.com/dropDatabas3/tokencore/internal/metrics"
	"github.com/dropDatabas3/tokencore/internal/oauth"
	"github.com/dropDatabas3/tokencore/internal/oauth/identity"
	"github.com/dropDatabas3/tokencore/internal/oauth/registry"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
	"github.com/dropDatabas3/tokencore/internal/rate"
	"github.com/dropDatabas3/tokencore/internal/security/secretbox"
	"github.com/dropDatabas3/tokencore/internal/store/memory"
	"github.com/dropDatabas3/tokencore/internal/store/pg"
	"github.com/dropDatabas3/tokencore/internal/util"
)

// App es el proceso armado.
type App struct {
	Config  *config.Config
	Realms  map[types.Realm]*oauth.Server
	Stores  map[types.Realm]repository.Store
	Cache   cache.Client
	Handler http.Handler

	pool  *pgxpool.Pool
	redis *rdb.Client
	log   *zap.Logger
}

type options struct {
	upgrader   oauth.VisitorUpgrader
	sessions   map[types.Realm]oauthctrl.SessionResolver
	sinks      []audit.Sink
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	withHTTP   bool
}

// Option personaliza New.
type Option func(*options)

// WithVisitorUpgrader registra el hook de migración visitante -> usuario.
func WithVisitorUpgrader(u oauth.VisitorUpgrader) Option {
	return func(o *options) { o.upgrader = u }
}

// WithSessionResolver reemplaza BearerSession en /authorize para un realm.
func WithSessionResolver(realm types.Realm, s oauthctrl.SessionResolver) Option {
	return func(o *options) { o.sessions[realm] = s }
}

// WithAuditSink agrega un sink de eventos además del log y las métricas.
func WithAuditSink(s audit.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithPrometheus usa un registry propio (tests).
func WithPrometheus(reg prometheus.Registerer, g prometheus.Gatherer) Option {
	return func(o *options) { o.registerer, o.gatherer = reg, g }
}

// WithoutHTTP arma sólo el core (CLI).
func WithoutHTTP() Option {
	return func(o *options) { o.withHTTP = false }
}

// New arma el proceso. Ante error libera lo que ya abrió.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := options{
		sessions:   map[types.Realm]oauthctrl.SessionResolver{},
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		withHTTP:   true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config: cfg,
		Realms: make(map[types.Realm]*oauth.Server, len(types.Realms)),
		Stores: make(map[types.Realm]repository.Store, len(types.Realms)),
		log:    logger.Named("app"),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := metrics.Register(o.registerer); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	keys, err := loadKeys(cfg)
	if err != nil {
		return nil, err
	}
	codec, err := loadCodec(cfg)
	if err != nil {
		return nil, err
	}

	if err := a.openCache(ctx); err != nil {
		return nil, err
	}
	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	events := audit.NewDispatcher(append([]audit.Sink{
		audit.NewLogSink(logger.Named("audit")),
		audit.NewMetricsSink(),
	}, o.sinks...)...)

	for _, name := range types.Realms {
		rc := cfg.Realm(name)
		if rc.Disabled {
			continue
		}
		srv, err := a.buildRealm(name, rc, keys, codec, events, o.upgrader)
		if err != nil {
			return nil, fmt.Errorf("realm %s: %w", name, err)
		}
		a.Realms[name] = srv
	}

	if cfg.SeedFile != "" {
		if err := a.SeedFromFile(ctx, cfg.SeedFile); err != nil {
			return nil, err
		}
	}

	if o.withHTTP {
		if err := a.buildHandler(o); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) openCache(ctx context.Context) error {
	c := a.Config.Cache
	switch c.Kind {
	case "redis":
		a.redis = rdb.NewClient(&rdb.Options{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("cache: redis ping failed: %w", err)
		}
		a.Cache = cache.NewRedisFromClient(a.redis, c.Redis.Prefix)
	default:
		a.Cache = cache.NewMemory(c.Redis.Prefix, config.Duration(c.Memory.DefaultTTL))
	}
	return nil
}

func (a *App) openStores(ctx context.Context) error {
	s := a.Config.Storage
	if s.Driver == "postgres" {
		pool, err := pg.Connect(ctx, pg.PoolConfig{
			DSN:             s.DSN,
			MaxConns:        int32(s.Postgres.MaxOpenConns),
			MinConns:        int32(s.Postgres.MinConns),
			MaxConnLifetime: config.Duration(s.Postgres.ConnMaxLifetime),
		})
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		a.pool = pool
		a.log.Info("storage connected", logger.String("dsn", util.MaskDSN(s.DSN)))
		if s.Postgres.AutoMigrate {
			n, err := pg.Migrate(ctx, pool)
			if err != nil {
				return fmt.Errorf("storage: migrate: %w", err)
			}
			a.log.Info("migrations applied", logger.Int("count", n))
		}
	}

	for _, name := range types.Realms {
		scopes := a.Config.Realm(name).Scopes
		if a.pool == nil {
			a.Stores[name] = memory.New(name, scopes)
			continue
		}
		st := pg.New(a.pool, name)
		if err := st.SeedScopes(ctx, scopes); err != nil {
			return fmt.Errorf("storage: seed scopes %s: %w", name, err)
		}
		a.Stores[name] = st
	}
	return nil
}

func (a *App) buildRealm(name types.Realm, rc *config.RealmConfig, keys *jwt.KeyPair, codec *secretbox.Box, events *audit.Dispatcher, upgrader oauth.VisitorUpgrader) (*oauth.Server, error) {
	st := a.Stores[name]
	ttl := rc.TTLs()

	features := registry.StaticFeatures{DisabledClients: toSet(rc.DisabledClients)}
	orgs := registry.StaticOrganizations(toSet(rc.DisabledOrganizations))

	var (
		visitor  identity.VisitorBootstrap
		sessions *identity.VisitorSessions
	)
	if rc.Visitor.Enabled {
		visitor = identity.VisitorBootstrap{Enabled: true, Username: rc.Visitor.Username, Password: rc.Visitor.Password}
		sessions = identity.NewVisitorSessions(a.Cache, name, ttl.VisitorSession)
	}
	verifier, err := identity.New(name, st.Users(), visitor, sessions)
	if err != nil {
		return nil, err
	}

	issuer := rc.Issuer
	if issuer == "" {
		issuer = a.Config.App.Name + "/" + name.String()
	}
	return oauth.NewServer(oauth.Realm{
		Name:     name,
		Store:    st,
		Clients:  registry.New(name, st.Clients(), features, orgs),
		Identity: verifier,
		Signer:   jwt.NewSigner(keys, issuer, name),
		Verifier: jwt.NewVerifier(keys, issuer, name),
		Codec:    codec,
		TTLs: oauth.TTLs{
			Access:         ttl.Access,
			Refresh:        ttl.Refresh,
			AuthCode:       ttl.AuthCode,
			PerGrantAccess: ttl.PerGrantAccess,
		},
		Upgrader: upgrader,
		Events:   events,
	})
}

func (a *App) buildHandler(o options) error {
	metricsHandler, err := httpx.RegisterMetrics(httpx.MetricsConfig{
		Registry: o.registerer,
		Gatherer: o.gatherer,
		Pool:     func() *pgxpool.Pool { return a.pool },
	})
	if err != nil {
		return fmt.Errorf("http metrics: %w", err)
	}

	checks := []healthctrl.Check{{Name: "cache", Ping: a.Cache.Ping}}
	deps := router.Deps{
		CORSOrigins: a.Config.Server.CORSAllowedOrigins,
		Metrics:     metricsHandler,
	}
	for _, name := range types.Realms {
		srv, ok := a.Realms[name]
		if !ok {
			continue
		}
		checks = append(checks, healthctrl.Check{Name: "store_" + name.String(), Ping: srv.Ping})
		deps.Realms = append(deps.Realms, router.RealmDeps{Server: srv, Sessions: o.sessions[name]})
	}
	deps.Health = healthctrl.NewController(a.Config.App.Version, checks...)

	if rc := a.Config.Rate; rc.Enabled {
		deps.TokenLimiter = a.newLimiter("rl:token:", rc.Token)
		deps.AuthorizeLimiter = a.newLimiter("rl:authorize:", rc.Authorize)
	}
	a.Handler = router.New(deps)
	return nil
}

func (a *App) newLimiter(prefix string, b config.RateBucket) rate.Limiter {
	if a.redis != nil {
		return rate.NewRedisLimiter(a.redis, a.Config.Cache.Redis.Prefix+prefix, b.Limit, b.WindowDur())
	}
	return rate.NewMemoryLimiter(b.Limit, b.WindowDur())
}

// SeedFromFile carga el YAML de seed en los realms habilitados.
func (a *App) SeedFromFile(ctx context.Context, path string) error {
	f, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	for name, seed := range f.Realms {
		st, ok := a.Stores[types.Realm(name)]
		if !ok {
			continue
		}
		nc, nu, err := SeedRealm(ctx, st, seed)
		if err != nil {
			return fmt.Errorf("seed realm %s: %w", name, err)
		}
		a.log.Info("seed applied", logger.Realm(name), logger.Int("clients", nc), logger.Int("users", nu))
	}
	return nil
}

// Purge borra tokens y codes expirados de todos los realms.
func (a *App) Purge(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, name := range types.Realms {
		st, ok := a.Stores[name]
		if !ok {
			continue
		}
		n, err := st.PurgeExpired(ctx, before)
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", name, err)
		}
		total += n
	}
	return total, nil
}

// Close libera stores, pool y cache.
func (a *App) Close() error {
	var errs []error
	for _, st := range a.Stores {
		if st != nil {
			errs = append(errs, st.Close())
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	} else if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

func toSet(xs []string) map[string]bool {
	if len(xs) == 0 {
		return nil
	}
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}
