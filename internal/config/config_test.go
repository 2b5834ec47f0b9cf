package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Catalog.PageSize)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.Catalog.FetchTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Session.PendingTimeout)
	assert.Equal(t, 10000, cfg.Session.MaxSessions)
	assert.Equal(t, []string{"/user", "/cart"}, cfg.Access.UserPrefixes)
	assert.Equal(t, []string{"/admin"}, cfg.Access.AdminPrefixes)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_SliceTrimming(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", " broker-1:9092, ,broker-2:9092 ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	cfg, err := Load()
	require.NoError(t, err)

	cfg.JWT.Secret = "short"
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Store.Driver = "sqlite"
	assert.ErrorContains(t, cfg.Validate(), "STORE_DRIVER")

	cfg.Store.Driver = "memory"
	cfg.Catalog.PageSize = 0
	assert.ErrorContains(t, cfg.Validate(), "CATALOG_PAGE_SIZE")
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable",
	}}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.GetDatabaseDSN())
}
