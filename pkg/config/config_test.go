package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "canteen", cfg.Database.Database)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.Equal(t, 15*time.Minute, cfg.QR.Expiry)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("QR_EXPIRE_MINUTES", "5")
	t.Setenv("AUTH_SECRET", "prod-secret")

	cfg := Load()

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5*time.Minute, cfg.QR.Expiry)
	assert.Equal(t, "prod-secret", cfg.Auth.Secret)
}

func TestLoadIgnoresMalformedInt(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")
	assert.Equal(t, 3000, Load().HTTP.Port)
}
