package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 100, cfg.DB.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.DB.ConnMaxLifetime)
	assert.Equal(t, 5*time.Minute, cfg.VehicleCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_BACKEND", "MEMORY")
	t.Setenv("SEED_VEHICLES", "v1:Van, v2:Truck ,")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("VEHICLE_CACHE_TTL_SECONDS", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, []string{"v1:Van", "v2:Truck"}, cfg.SeedVehicles)
	assert.Equal(t, 100, cfg.DB.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.VehicleCacheTTL)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_BACKEND", "mongo")

	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: "5432", User: "fleet", Password: "pw", Name: "fleet", SSLMode: "disable"}
	assert.Equal(t, "host=db user=fleet password=pw dbname=fleet port=5432 sslmode=disable", c.DSN())
}
