package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "quizmaster", cfg.Name)
	assert.Equal(t, 5*time.Second, cfg.Session.Countdown)
	assert.Equal(t, 100*time.Millisecond, cfg.Session.TickInterval)
	assert.Equal(t, 0.5, cfg.Session.TimeBonusRatio)
	assert.Equal(t, 10*time.Minute, cfg.Session.Retention)
	assert.Equal(t, EventBusLocal, cfg.Events.Bus)
	assert.Equal(t, 168*time.Hour, cfg.Leaderboard.ArchiveTTL)
	assert.False(t, cfg.Postgres.Enabled())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("COUNTDOWN_SECONDS", "3s")
	t.Setenv("TIME_BONUS_RATIO", "1")
	t.Setenv("EVENT_BUS", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_USER", "quiz")
	t.Setenv("PG_DATABASE", "quiz")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Session.Countdown)
	assert.Equal(t, 1.0, cfg.Session.TimeBonusRatio)
	assert.Equal(t, EventBusRedis, cfg.Events.Bus)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Contains(t, cfg.Postgres.DSN(), "host=db port=5432 user=quiz")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*App)
		errMsg string
	}{
		{"redis bus without redis", func(c *App) { c.Events.Bus = EventBusRedis }, "REDIS_ADDR"},
		{"unknown bus", func(c *App) { c.Events.Bus = "kafka" }, "EVENT_BUS"},
		{"partial postgres", func(c *App) { c.Postgres.Host = "db" }, "PG_USER"},
		{"negative countdown", func(c *App) { c.Session.Countdown = -time.Second }, "COUNTDOWN_SECONDS"},
		{"zero tick", func(c *App) { c.Session.TickInterval = 0 }, "TICK_INTERVAL"},
		{"negative bonus", func(c *App) { c.Session.TimeBonusRatio = -1 }, "TIME_BONUS_RATIO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &App{
				Session: Session{TickInterval: time.Second},
				Events:  Events{Bus: EventBusLocal},
			}
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
