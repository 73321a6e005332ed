package di

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minuto/config"
	"minuto/internal/db"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Env = "production"
	cfg.App.Timezone = "America/Sao_Paulo"
	cfg.App.BaseURL = "http://localhost:8080"
	cfg.Log.Level = "error"
	cfg.Server.Port = "0"
	cfg.DB.Driver = "memory"
	cfg.Auth.JWTSecret = "secret"
	cfg.Limits.FreeMonthlyQuestions = 5
	cfg.Cache.Enabled = true
	cfg.Cache.SizeMB = 1
	cfg.Cache.TTL = time.Minute
	cfg.Metrics.Enabled = true
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestInitAppWithMemoryStore(t *testing.T) {
	application, cleanup, err := InitApp(memoryConfig())
	require.NoError(t, err)
	require.NotNil(t, application)
	cleanup()
}

func TestProvideStore(t *testing.T) {
	cfg := memoryConfig()
	l := ProvideLogger(cfg)

	store, cleanup, err := ProvideStore(cfg, l)
	require.NoError(t, err)
	_, ok := store.(*db.MemoryDB)
	assert.True(t, ok)
	cleanup()

	cfg.DB.Driver = "cassandra"
	_, _, err = ProvideStore(cfg, l)
	assert.Error(t, err)
}

func TestProvideGathererFollowsConfig(t *testing.T) {
	cfg := memoryConfig()
	reg := ProvideRegistry()
	assert.NotNil(t, ProvideGatherer(cfg, reg))

	cfg.Metrics.Enabled = false
	assert.Nil(t, ProvideGatherer(cfg, reg))
}
