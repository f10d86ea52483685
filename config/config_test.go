package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "  s3cret  ")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("PORT", "")

	cfg := LoadConfig()

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/api", cfg.Server.APIPrefix)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.ExpiresIn)
	assert.Equal(t, "tasks.events", cfg.MQ.Channel)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.IsDev())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_EXPIRES_IN", "2d")
	t.Setenv("RATE_LIMIT_WINDOW", "90s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("DB_DRIVER", "MONGO")
	t.Setenv("DB_CONNECT_RETRIES", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 48*time.Hour, cfg.JWT.ExpiresIn)
	assert.Equal(t, 90*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, DriverMongo, cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Database.ConnectRetries)
}

func TestLoadConfig_ServerPortWinsOverPort(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("SERVER_PORT", "9090")

	assert.Equal(t, 9090, LoadConfig().Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: DriverPostgres},
			JWT:      JWTConfig{Secret: "secret", ExpiresIn: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "JWT_SECRET is required"},
		{name: "bad driver", mutate: func(c *Config) { c.Database.Driver = "sqlite" }, wantErr: `unsupported DB_DRIVER "sqlite"`},
		{name: "revocation without redis", mutate: func(c *Config) { c.JWT.Revocation = true }, wantErr: "AUTH_REVOCATION requires REDIS_ADDR"},
		{
			name: "rate limit without redis",
			mutate: func(c *Config) {
				c.RateLimit = RateLimitConfig{Enabled: true, Requests: 10, Window: time.Minute}
			},
			wantErr: "RATE_LIMIT_ENABLED requires REDIS_ADDR",
		},
		{
			name: "rate limit with redis",
			mutate: func(c *Config) {
				c.Redis.Addr = "localhost:6379"
				c.RateLimit = RateLimitConfig{Enabled: true, Requests: 10, Window: time.Minute}
			},
		},
		{name: "bad storage", mutate: func(c *Config) { c.Storage.Backend = "s3" }, wantErr: `unsupported STORAGE_BACKEND "s3"`},
		{name: "bad mq", mutate: func(c *Config) { c.MQ.Backend = "kafka" }, wantErr: `unsupported MQ_BACKEND "kafka"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
