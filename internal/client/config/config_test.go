package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "localhost:7400", c.ServerEndpointAddr)
	assert.Equal(t, 15*time.Second, c.CallTimeout)
	assert.Empty(t, c.Token)
}

func TestLoadConfig_EnvOverridesDefaults(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"ramctl", "status"}

	t.Setenv(AddrEnv, "db2.internal:7400")
	t.Setenv(TokenEnv, "tok-from-env")

	cfg := LoadConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "db2.internal:7400", cfg.ServerEndpointAddr)
	assert.Equal(t, "tok-from-env", cfg.Token)
	assert.Equal(t, 15*time.Second, cfg.CallTimeout)
}
