package config

import (
	"os"
	"time"
)

const (
	AddrEnv  = "RAMD_ADDR"
	TokenEnv = "RAMD_TOKEN"
)

// Config holds ramctl connection settings.
//
// Token wins over TokenFile when both are set. An empty CAFile means
// plaintext.
type Config struct {
	ServerEndpointAddr string
	Token              string
	TokenFile          string
	CAFile             string
	ServerName         string
	CallTimeout        time.Duration
}

// LoadDefaults points ramctl at a local daemon.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "localhost:7400"
	c.CallTimeout = 15 * time.Second
}

// LoadConfig applies defaults, then the JSON file, then the environment.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	return cfg
}

func parseEnv(cfg *Config) {
	if v := os.Getenv(AddrEnv); v != "" {
		cfg.ServerEndpointAddr = v
	}
	if v := os.Getenv(TokenEnv); v != "" {
		cfg.Token = v
	}
}
