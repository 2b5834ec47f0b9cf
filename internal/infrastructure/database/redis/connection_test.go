package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-engine/internal/config"
	"github.com/your-org/storefront-engine/internal/pkg/logger"
)

func testConfig(host, port string) *config.Config {
	return &config.Config{Redis: config.RedisConfig{Host: host, Port: port, PoolSize: 2}}
}

func TestNewConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewConnection(testConfig(mr.Host(), mr.Port()), logger.Discard())
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.Health(context.Background()))

	mr.Close()
	assert.Error(t, c.Health(context.Background()))
}

func TestNewConnection_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err := NewConnection(testConfig(host, port), logger.Discard())
	assert.ErrorContains(t, err, "failed to connect to Redis")
}
