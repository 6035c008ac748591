package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Event delivery modes.
const (
	EventBusLocal = "local"
	EventBusRedis = "redis"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"quizmaster"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres    Postgres
	Redis       Redis
	Security    Security
	Session     Session
	Leaderboard Leaderboard
	Quiz        Quiz
	Events      Events
}

// Postgres captures connection info for the SQL database. Leaving PG_HOST
// empty runs without durable storage.
type Postgres struct {
	Host     string `env:"PG_HOST"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER"`
	Password string `env:"PG_PASSWORD"`
	Database string `env:"PG_DATABASE"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// Enabled reports whether Postgres is configured.
func (p Postgres) Enabled() bool { return p.Host != "" }

// ConnString is the keyword/value connection string for a single connection.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// DSN adds pool settings understood by pgxpool.
func (p Postgres) DSN() string {
	return fmt.Sprintf("%s pool_max_conns=%d", p.ConnString(), p.MaxConns)
}

// Redis holds cache, leaderboard and event bus configuration. Optional.
type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Enabled reports whether Redis is configured.
func (r Redis) Enabled() bool { return r.Addr != "" }

// Security stores secrets for signing and auth.
type Security struct {
	JWTSecret         string        `env:"JWT_SECRET,notEmpty"`
	AdminUsername     string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	AdminTokenTTL     time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"12h"`
	SessionTokenTTL   time.Duration `env:"SESSION_TOKEN_TTL" envDefault:"24h"`
	AllowedOrigins    []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
}

// Session groups live session runtime settings.
type Session struct {
	Countdown      time.Duration `env:"COUNTDOWN_SECONDS" envDefault:"5s"`
	TickInterval   time.Duration `env:"TICK_INTERVAL" envDefault:"100ms"`
	TimeBonusRatio float64       `env:"TIME_BONUS_RATIO" envDefault:"0.5"`
	Retention      time.Duration `env:"SESSION_RETENTION" envDefault:"10m"`
}

// Leaderboard governs the Redis leaderboard store.
type Leaderboard struct {
	SnapshotInterval time.Duration `env:"LEADERBOARD_SNAPSHOT_INTERVAL" envDefault:"5s"`
	ArchiveTTL       time.Duration `env:"LEADERBOARD_ARCHIVE_TTL" envDefault:"168h"`
	TopN             int           `env:"LEADERBOARD_TOP" envDefault:"100"`
}

// Quiz configures where quizzes come from.
type Quiz struct {
	SeedFile string        `env:"QUIZ_SEED_FILE"`
	CacheTTL time.Duration `env:"QUIZ_CACHE_TTL" envDefault:"10m"`
}

// Events selects how session events reach connections.
type Events struct {
	Bus           string `env:"EVENT_BUS" envDefault:"local"`
	ChannelPrefix string `env:"EVENT_CHANNEL_PREFIX" envDefault:"quiz:events:"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *App) Validate() error {
	var errs []error
	switch c.Events.Bus {
	case EventBusLocal:
	case EventBusRedis:
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("EVENT_BUS=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("EVENT_BUS must be %q or %q, got %q", EventBusLocal, EventBusRedis, c.Events.Bus))
	}
	if c.Postgres.Enabled() && (c.Postgres.User == "" || c.Postgres.Database == "") {
		errs = append(errs, errors.New("PG_USER and PG_DATABASE are required when PG_HOST is set"))
	}
	if c.Session.Countdown < 0 {
		errs = append(errs, errors.New("COUNTDOWN_SECONDS must not be negative"))
	}
	if c.Session.TickInterval <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL must be positive"))
	}
	if c.Session.TimeBonusRatio < 0 {
		errs = append(errs, errors.New("TIME_BONUS_RATIO must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
