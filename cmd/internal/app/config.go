package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"credd/cmd/identity"
	authapi "credd/cmd/internal/auth/api"
	"credd/cmd/internal/auth/authn"
	"credd/cmd/internal/auth/session"
	"credd/cmd/internal/auth/throttle"
	"credd/cmd/security/password"
	"credd/cmd/security/token"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP     HTTPConfig      `koanf:"http"`
	Log      LogConfig       `koanf:"log"`
	DB       DBConfig        `koanf:"db"`
	Token    TokenConfig     `koanf:"token"`
	Session  session.Config  `koanf:"session"`
	Password password.Config `koanf:"password"`
	Hasher   HasherConfig    `koanf:"hasher"`
	Throttle throttle.Config `koanf:"throttle"`
	API      authapi.Config  `koanf:"api"`
	Authn    authn.Config    `koanf:"authn"`
}

// HTTPConfig tunes the listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	MaxHeaderBytes    int           `koanf:"max_header_bytes"`
}

// LogConfig selects level and output format ("json" or "pretty").
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DBConfig selects the credential store. An empty URL means in-memory.
type DBConfig struct {
	URL             string `koanf:"url"`
	Schema          string `koanf:"schema"`
	MaxConns        int32  `koanf:"max_conns"`
	MinConns        int32  `koanf:"min_conns"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
	AutoMigrate     bool   `koanf:"auto_migrate"`

	// ReadinessRequireDB makes /readyz fail unless a database is configured.
	ReadinessRequireDB bool `koanf:"readiness_require_db"`
}

// TokenConfig holds the signing keys as "kid:hex[,kid:hex...]".
type TokenConfig struct {
	Keys string `koanf:"keys"`

	// AllowEphemeral signs with a random per-process key when Keys is
	// empty. Tokens do not survive a restart. Development only.
	AllowEphemeral bool `koanf:"allow_ephemeral"`
}

// HasherConfig bounds concurrent key derivations.
type HasherConfig struct {
	MaxInFlight int `koanf:"max_in_flight"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              "0.0.0.0:8080",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		DB: DBConfig{
			Schema:          identity.DefaultSchema,
			MaxConns:        10,
			ConnectAttempts: 5,
		},
		Session:  session.DefaultConfig(),
		Password: password.DefaultConfig(),
		Hasher:   HasherConfig{MaxInFlight: 4},
		Throttle: throttle.DefaultConfig(),
		API:      authapi.DefaultConfig(),
		Authn:    authn.DefaultConfig(),
	}
}

// BindFlags registers the command-line overrides. Flag names are koanf keys.
func BindFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("http.addr", d.HTTP.Addr, "listen address")
	fs.String("log.level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log.format", d.Log.Format, "log format (json, pretty)")
	fs.String("db.url", "", "postgres URL; empty uses the in-memory store")
	fs.Bool("db.auto_migrate", d.DB.AutoMigrate, "apply migrations on startup")
	fs.String("throttle.backend", d.Throttle.Backend, "limiter backend (memory, redis, off)")
	fs.String("throttle.redis_addr", "", "redis address for the redis limiter")
	fs.Bool("token.allow_ephemeral", d.Token.AllowEphemeral, "sign with a throwaway key when none is configured")
}

// Load layers defaults, the optional YAML file at path, CREDD_* environment
// variables and changed flags in fs, then validates the result.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	cfg, err := applyEnv(cfg)
	if err != nil {
		return Config{}, err
	}

	if fs != nil {
		k := koanf.New(".")
		changed := func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return f.Name, posflag.FlagVal(fs, f)
		}
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", nil, changed), nil); err != nil {
			return Config{}, fmt.Errorf("config: flags: %w", err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return Config{}, fmt.Errorf("config: flags: %w", err)
		}
	}

	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays CREDD_* variables.
func applyEnv(cfg Config) (Config, error) {
	cfg.HTTP.Addr = EnvString("CREDD_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ReadHeaderTimeout = EnvDuration("CREDD_HTTP_READ_HEADER_TIMEOUT", cfg.HTTP.ReadHeaderTimeout)
	cfg.HTTP.ReadTimeout = EnvDuration("CREDD_HTTP_READ_TIMEOUT", cfg.HTTP.ReadTimeout)
	cfg.HTTP.WriteTimeout = EnvDuration("CREDD_HTTP_WRITE_TIMEOUT", cfg.HTTP.WriteTimeout)
	cfg.HTTP.IdleTimeout = EnvDuration("CREDD_HTTP_IDLE_TIMEOUT", cfg.HTTP.IdleTimeout)
	cfg.HTTP.ShutdownTimeout = EnvDuration("CREDD_HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout)
	cfg.HTTP.MaxHeaderBytes = EnvInt("CREDD_HTTP_MAX_HEADER_BYTES", cfg.HTTP.MaxHeaderBytes)

	cfg.Log.Level = EnvString("CREDD_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = EnvString("CREDD_LOG_FORMAT", cfg.Log.Format)

	cfg.DB.URL = EnvString("CREDD_DATABASE_URL", cfg.DB.URL)
	cfg.DB.Schema = EnvString("CREDD_DB_SCHEMA", cfg.DB.Schema)
	cfg.DB.MaxConns = EnvInt32("CREDD_DB_MAX_CONNS", cfg.DB.MaxConns)
	cfg.DB.MinConns = EnvInt32("CREDD_DB_MIN_CONNS", cfg.DB.MinConns)
	cfg.DB.ConnectAttempts = uint64(EnvInt("CREDD_DB_CONNECT_ATTEMPTS", int(cfg.DB.ConnectAttempts))) // #nosec G115 -- EnvInt is positive.
	cfg.DB.AutoMigrate = EnvBool("CREDD_DB_AUTO_MIGRATE", cfg.DB.AutoMigrate)
	cfg.DB.ReadinessRequireDB = EnvBool("CREDD_READINESS_REQUIRE_DB", cfg.DB.ReadinessRequireDB)

	cfg.Token.Keys = EnvString(token.KeysEnv, cfg.Token.Keys)
	cfg.Token.AllowEphemeral = EnvBool("CREDD_TOKEN_ALLOW_EPHEMERAL", cfg.Token.AllowEphemeral)

	cfg.Hasher.MaxInFlight = EnvInt("CREDD_HASHER_MAX_IN_FLIGHT", cfg.Hasher.MaxInFlight)

	cfg.Throttle.Backend = EnvString("CREDD_THROTTLE_BACKEND", cfg.Throttle.Backend)
	cfg.Throttle.Limit = EnvInt("CREDD_THROTTLE_LIMIT", cfg.Throttle.Limit)
	cfg.Throttle.Window = EnvDuration("CREDD_THROTTLE_WINDOW", cfg.Throttle.Window)
	cfg.Throttle.RedisAddr = EnvString("CREDD_THROTTLE_REDIS_ADDR", cfg.Throttle.RedisAddr)
	cfg.Throttle.MaxKeys = EnvInt("CREDD_THROTTLE_MAX_KEYS", cfg.Throttle.MaxKeys)

	cfg.Authn.StorageTimeout = EnvDuration("CREDD_AUTHN_STORAGE_TIMEOUT", cfg.Authn.StorageTimeout)
	cfg.API = authapi.LoadConfigFromEnv(cfg.API)

	var err error
	if cfg.Session, err = session.LoadConfigFromEnv(cfg.Session); err != nil {
		return Config{}, fmt.Errorf("config: session: %w", err)
	}
	if cfg.Password, err = password.FromEnv(cfg.Password); err != nil {
		return Config{}, fmt.Errorf("config: password: %w", err)
	}
	return cfg, nil
}

// Check validates cross-field constraints.
func (c Config) Check() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or pretty, got %q", c.Log.Format))
	}
	if c.Hasher.MaxInFlight < 1 {
		errs = append(errs, errors.New("hasher.max_in_flight must be at least 1"))
	}
	// The embedded migrations create their table in the default schema only.
	if c.DB.AutoMigrate && c.DB.Schema != identity.DefaultSchema {
		errs = append(errs, fmt.Errorf("db.auto_migrate requires db.schema %q, got %q", identity.DefaultSchema, c.DB.Schema))
	}
	if c.Authn.StorageTimeout <= 0 {
		errs = append(errs, errors.New("authn.storage_timeout must be positive"))
	}
	if err := c.Session.Check(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	if err := c.Password.Check(); err != nil {
		errs = append(errs, fmt.Errorf("password: %w", err))
	}
	if err := c.Throttle.Check(); err != nil {
		errs = append(errs, fmt.Errorf("throttle: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
