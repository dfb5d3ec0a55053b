package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/validation"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"env"`
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Log struct {
		// debug | info | warn | error
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ReadTimeout        string   `yaml:"read_timeout"`
		WriteTimeout       string   `yaml:"write_timeout"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
			// Aplica migrations/postgres al arrancar.
			AutoMigrate bool `yaml:"auto_migrate"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Keys struct {
		// PEM inline o path a un archivo PEM (PKCS#1 o PKCS#8).
		PrivateKey string `yaml:"private_key"`
		// Base64 de 32 bytes; cifra authorization codes y refresh tokens.
		EncryptionKey string `yaml:"encryption_key"`
	} `yaml:"keys"`

	Rate struct {
		Enabled   bool       `yaml:"enabled"`
		Token     RateBucket `yaml:"token"`
		Authorize RateBucket `yaml:"authorize"`
	} `yaml:"rate"`

	Realms struct {
		Backend  RealmConfig `yaml:"backend"`
		Frontend RealmConfig `yaml:"frontend"`
	} `yaml:"realms"`

	// YAML con clients y usuarios a sembrar al arrancar (opcional).
	SeedFile string `yaml:"seed_file"`
}

type RateBucket struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

type RealmConfig struct {
	Disabled    bool   `yaml:"disabled"`
	Issuer      string `yaml:"issuer"`
	AccessTTL   string `yaml:"access_ttl"`
	RefreshTTL  string `yaml:"refresh_ttl"`
	AuthCodeTTL string `yaml:"auth_code_ttl"`
	// grant_type -> ttl del access token; pisa AccessTTL.
	GrantAccessTTL map[string]string `yaml:"grant_access_ttl"`

	Scopes                []string `yaml:"scopes"`
	DisabledClients       []string `yaml:"disabled_clients"`
	DisabledOrganizations []string `yaml:"disabled_organizations"`

	Visitor struct {
		Enabled    bool   `yaml:"enabled"`
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		SessionTTL string `yaml:"session_ttl"`
	} `yaml:"visitor"`
}

// RealmTTLs son los TTL ya parseados de un realm. Cero = default del core.
type RealmTTLs struct {
	Access         time.Duration
	Refresh        time.Duration
	AuthCode       time.Duration
	PerGrantAccess map[types.GrantType]time.Duration
	VisitorSession time.Duration
}

// Load lee el YAML en path (vacío = sólo defaults), aplica defaults, env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "tokencore"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "15s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 10
	}
	if c.Storage.Postgres.ConnMaxLifetime == "" {
		c.Storage.Postgres.ConnMaxLifetime = "30m"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "tokencore:"
	}
	if c.Rate.Token.Limit == 0 {
		c.Rate.Token.Limit = 30
	}
	if c.Rate.Token.Window == "" {
		c.Rate.Token.Window = "1m"
	}
	if c.Rate.Authorize.Limit == 0 {
		c.Rate.Authorize.Limit = 60
	}
	if c.Rate.Authorize.Window == "" {
		c.Rate.Authorize.Window = "1m"
	}
	for _, r := range []*RealmConfig{&c.Realms.Backend, &c.Realms.Frontend} {
		if r.AccessTTL == "" {
			r.AccessTTL = "1h"
		}
		if r.RefreshTTL == "" {
			r.RefreshTTL = "720h" // 30d
		}
		if r.AuthCodeTTL == "" {
			r.AuthCodeTTL = "10m"
		}
		if r.Visitor.SessionTTL == "" {
			r.Visitor.SessionTTL = "24h"
		}
	}
}

// Realm devuelve la config del realm pedido.
func (c *Config) Realm(r types.Realm) *RealmConfig {
	if r == types.RealmFrontend {
		return &c.Realms.Frontend
	}
	return &c.Realms.Backend
}

// IsProd es true si App.Env es prod/production.
func (c *Config) IsProd() bool {
	return c.App.Env == "prod" || c.App.Env == "production"
}

// TTLs parsea los TTL del realm. Asume Validate previo.
func (r *RealmConfig) TTLs() RealmTTLs {
	out := RealmTTLs{
		Access:         mustDur(r.AccessTTL),
		Refresh:        mustDur(r.RefreshTTL),
		AuthCode:       mustDur(r.AuthCodeTTL),
		VisitorSession: mustDur(r.Visitor.SessionTTL),
	}
	if len(r.GrantAccessTTL) > 0 {
		out.PerGrantAccess = make(map[types.GrantType]time.Duration, len(r.GrantAccessTTL))
		for g, d := range r.GrantAccessTTL {
			gt, _ := types.ParseGrantType(g)
			out.PerGrantAccess[gt] = mustDur(d)
		}
	}
	return out
}

// WindowDur parsea la ventana del bucket. Asume Validate previo.
func (b RateBucket) WindowDur() time.Duration { return mustDur(b.Window) }

// Duration parsea una duración ya validada; vacío o inválido = 0.
func Duration(s string) time.Duration { return mustDur(s) }

func mustDur(s string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (string, bool) {
	if s, ok := getEnvStr(key); ok {
		if _, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvDur("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MIN_CONNS"); ok {
		c.Storage.Postgres.MinConns = v
	}
	if v, ok := getEnvDur("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}
	if v, ok := getEnvBool("POSTGRES_AUTO_MIGRATE"); ok {
		c.Storage.Postgres.AutoMigrate = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// KEYS
	if v, ok := getEnvStr("SIGNING_PRIVATE_KEY"); ok {
		c.Keys.PrivateKey = v
	}
	if v, ok := getEnvStr("ENCRYPTION_KEY"); ok {
		c.Keys.EncryptionKey = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_TOKEN_LIMIT"); ok {
		c.Rate.Token.Limit = v
	}
	if v, ok := getEnvDur("RATE_TOKEN_WINDOW"); ok {
		c.Rate.Token.Window = v
	}
	if v, ok := getEnvInt("RATE_AUTHORIZE_LIMIT"); ok {
		c.Rate.Authorize.Limit = v
	}
	if v, ok := getEnvDur("RATE_AUTHORIZE_WINDOW"); ok {
		c.Rate.Authorize.Window = v
	}

	// REALMS: BACKEND_* / FRONTEND_*
	c.Realms.Backend.applyEnv("BACKEND_")
	c.Realms.Frontend.applyEnv("FRONTEND_")

	if v, ok := getEnvStr("SEED_FILE"); ok {
		c.SeedFile = v
	}
}

func (r *RealmConfig) applyEnv(prefix string) {
	if v, ok := getEnvBool(prefix + "DISABLED"); ok {
		r.Disabled = v
	}
	if v, ok := getEnvStr(prefix + "ISSUER"); ok {
		r.Issuer = v
	}
	if v, ok := getEnvDur(prefix + "ACCESS_TTL"); ok {
		r.AccessTTL = v
	}
	if v, ok := getEnvDur(prefix + "REFRESH_TTL"); ok {
		r.RefreshTTL = v
	}
	if v, ok := getEnvDur(prefix + "AUTH_CODE_TTL"); ok {
		r.AuthCodeTTL = v
	}
	if v, ok := getEnvKVList(prefix+"GRANT_ACCESS_TTL", ","); ok {
		r.GrantAccessTTL = v
	}
	if v, ok := getEnvCSV(prefix + "SCOPES"); ok {
		r.Scopes = v
	}
	if v, ok := getEnvCSV(prefix + "DISABLED_CLIENTS"); ok {
		r.DisabledClients = v
	}
	if v, ok := getEnvCSV(prefix + "DISABLED_ORGANIZATIONS"); ok {
		r.DisabledOrganizations = v
	}
	if v, ok := getEnvBool(prefix + "VISITOR_ENABLED"); ok {
		r.Visitor.Enabled = v
	}
	if v, ok := getEnvStr(prefix + "VISITOR_USERNAME"); ok {
		r.Visitor.Username = v
	}
	if v, ok := getEnvStr(prefix + "VISITOR_PASSWORD"); ok {
		r.Visitor.Password = v
	}
	if v, ok := getEnvDur(prefix + "VISITOR_SESSION_TTL"); ok {
		r.Visitor.SessionTTL = v
	}
}

// Validate revisa valores críticos; devuelve todos los problemas juntos.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level: unknown level %q", c.Log.Level)
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			add("storage.dsn: required for driver postgres")
		}
	default:
		add("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			add("cache.redis.addr: required for kind redis")
		}
	default:
		add("cache.kind: unknown kind %q", c.Cache.Kind)
	}

	durs := map[string]string{
		"server.read_timeout":                c.Server.ReadTimeout,
		"server.write_timeout":               c.Server.WriteTimeout,
		"server.shutdown_timeout":            c.Server.ShutdownTimeout,
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
		"cache.memory.default_ttl":           c.Cache.Memory.DefaultTTL,
		"rate.token.window":                  c.Rate.Token.Window,
		"rate.authorize.window":              c.Rate.Authorize.Window,
	}
	for field, v := range durs {
		if err := checkPositiveDur(v); err != nil {
			add("%s: %v", field, err)
		}
	}

	if c.IsProd() {
		if strings.TrimSpace(c.Keys.PrivateKey) == "" {
			add("keys.private_key: required in prod")
		}
		if strings.TrimSpace(c.Keys.EncryptionKey) == "" {
			add("keys.encryption_key: required in prod")
		}
	}

	if c.Realms.Backend.Disabled && c.Realms.Frontend.Disabled {
		add("realms: at least one realm must be enabled")
	}
	for _, realm := range types.Realms {
		errs = append(errs, c.Realm(realm).validate(realm)...)
	}

	return errors.Join(errs...)
}

func (r *RealmConfig) validate(realm types.Realm) []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("realms.%s.%s", realm, fmt.Sprintf(format, args...)))
	}

	for field, v := range map[string]string{
		"access_ttl":          r.AccessTTL,
		"refresh_ttl":         r.RefreshTTL,
		"auth_code_ttl":       r.AuthCodeTTL,
		"visitor.session_ttl": r.Visitor.SessionTTL,
	} {
		if err := checkPositiveDur(v); err != nil {
			add("%s: %v", field, err)
		}
	}
	for g, v := range r.GrantAccessTTL {
		if _, ok := types.ParseGrantType(g); !ok {
			add("grant_access_ttl: unsupported grant %q", g)
			continue
		}
		if err := checkPositiveDur(v); err != nil {
			add("grant_access_ttl.%s: %v", g, err)
		}
	}
	for _, s := range r.Scopes {
		if !validation.ValidScopeName(s) {
			add("scopes: invalid scope name %q", s)
		}
	}
	for _, id := range r.DisabledClients {
		if !validation.ValidClientID(id) {
			add("disabled_clients: invalid client id %q", id)
		}
	}
	if r.Visitor.Enabled {
		if realm != types.RealmFrontend {
			add("visitor: visitors are only supported in the frontend realm")
		}
		if r.Visitor.Username == "" || r.Visitor.Password == "" {
			add("visitor: username and password are required when enabled")
		}
	}
	return errs
}

func checkPositiveDur(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", s)
	}
	return nil
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		// split at first '='
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}
