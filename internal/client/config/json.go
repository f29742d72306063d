package config

import (
	"encoding/json"
	"os"

	"github.com/pgElephant/ramd/internal/flagx"
	"github.com/pgElephant/ramd/internal/timex"
)

// JsonConfig is the on-disk shape of a ramctl profile.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	TokenFile          string         `json:"token_file"`
	CAFile             string         `json:"ca_file"`
	ServerName         string         `json:"server_name"`
	CallTimeout        timex.Duration `json:"call_timeout"`
}

// parseJson overlays cfg with the file named by -c/-config. Keys absent
// from the file keep their current value. Read or decode errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	jc := JsonConfig{
		ServerEndpointAddr: cfg.ServerEndpointAddr,
		TokenFile:          cfg.TokenFile,
		CAFile:             cfg.CAFile,
		ServerName:         cfg.ServerName,
		CallTimeout:        timex.Duration{Duration: cfg.CallTimeout},
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	cfg.TokenFile = jc.TokenFile
	cfg.CAFile = jc.CAFile
	cfg.ServerName = jc.ServerName
	cfg.CallTimeout = jc.CallTimeout.Duration
}
