package config

import (
	"encoding/json"
	"os"

	"github.com/pgElephant/ramd/internal/flagx"
	"github.com/pgElephant/ramd/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so they may be written as "60s" or as nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	MetricsAddr      string `json:"metrics_addr"`
	LogLevel         string `json:"log_level"`

	EnableAuth     bool   `json:"enable_auth"`
	AdminToken     string `json:"admin_token"`
	AdminTokenFile string `json:"admin_token_file"`

	EnableSSL   bool   `json:"enable_ssl"`
	SSLCertFile string `json:"ssl_cert_file"`
	SSLKeyFile  string `json:"ssl_key_file"`
	SSLCAFile   string `json:"ssl_ca_file"`

	EnableRateLimiting     bool           `json:"enable_rate_limiting"`
	RateLimitMaxRequests   int            `json:"rate_limit_max_requests"`
	RateLimitWindow        timex.Duration `json:"rate_limit_window"`
	RateLimitBlockDuration timex.Duration `json:"rate_limit_block_duration"`

	EnableAudit      bool           `json:"enable_audit"`
	AuditLogFile     string         `json:"audit_log_file"`
	AuditDatabaseDSN string         `json:"audit_database_dsn"`
	AuditRetention   timex.Duration `json:"audit_retention"`

	EnableInputValidation   bool           `json:"enable_input_validation"`
	EnableSessionManagement bool           `json:"enable_session_management"`
	SessionTimeout          timex.Duration `json:"session_timeout"`

	MaxConnections int            `json:"max_connections"`
	MaxRequestSize int            `json:"max_request_size"`
	SweepInterval  timex.Duration `json:"sweep_interval"`

	S3RootUser      string         `json:"s3_root_user"`
	S3RootPassword  string         `json:"s3_root_password"`
	S3Bucket        string         `json:"s3_bucket"`
	S3Region        string         `json:"s3_region"`
	S3BaseEndpoint  string         `json:"s3_base_endpoint"`
	ArchiveInterval timex.Duration `json:"archive_interval"`
	ArchiveKey      string         `json:"archive_key"`
}

// parseJson overlays Config with values from the file named by -c/-config.
// Keys absent from the file keep their current value. Read or decode errors
// panic; the file is operator-supplied and a half-applied config is worse
// than no daemon.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := fromConfig(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func fromConfig(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrGRPC:        c.EndpointAddrGRPC,
		MetricsAddr:             c.MetricsAddr,
		LogLevel:                c.LogLevel,
		EnableAuth:              c.EnableAuth,
		AdminToken:              c.AdminToken,
		AdminTokenFile:          c.AdminTokenFile,
		EnableSSL:               c.EnableSSL,
		SSLCertFile:             c.SSLCertFile,
		SSLKeyFile:              c.SSLKeyFile,
		SSLCAFile:               c.SSLCAFile,
		EnableRateLimiting:      c.EnableRateLimiting,
		RateLimitMaxRequests:    c.RateLimitMaxRequests,
		RateLimitWindow:         timex.Duration{Duration: c.RateLimitWindow},
		RateLimitBlockDuration:  timex.Duration{Duration: c.RateLimitBlockDuration},
		EnableAudit:             c.EnableAudit,
		AuditLogFile:            c.AuditLogFile,
		AuditDatabaseDSN:        c.AuditDatabaseDSN,
		AuditRetention:          timex.Duration{Duration: c.AuditRetention},
		EnableInputValidation:   c.EnableInputValidation,
		EnableSessionManagement: c.EnableSessionManagement,
		SessionTimeout:          timex.Duration{Duration: c.SessionTimeout},
		MaxConnections:          c.MaxConnections,
		MaxRequestSize:          c.MaxRequestSize,
		SweepInterval:           timex.Duration{Duration: c.SweepInterval},
		S3RootUser:              c.S3RootUser,
		S3RootPassword:          c.S3RootPassword,
		S3Bucket:                c.S3Bucket,
		S3Region:                c.S3Region,
		S3BaseEndpoint:          c.S3BaseEndpoint,
		ArchiveInterval:         timex.Duration{Duration: c.ArchiveInterval},
		ArchiveKey:              c.ArchiveKey,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.EndpointAddrGRPC = j.EndpointAddrGRPC
	c.MetricsAddr = j.MetricsAddr
	c.LogLevel = j.LogLevel
	c.EnableAuth = j.EnableAuth
	c.AdminToken = j.AdminToken
	c.AdminTokenFile = j.AdminTokenFile
	c.EnableSSL = j.EnableSSL
	c.SSLCertFile = j.SSLCertFile
	c.SSLKeyFile = j.SSLKeyFile
	c.SSLCAFile = j.SSLCAFile
	c.EnableRateLimiting = j.EnableRateLimiting
	c.RateLimitMaxRequests = j.RateLimitMaxRequests
	c.RateLimitWindow = j.RateLimitWindow.Duration
	c.RateLimitBlockDuration = j.RateLimitBlockDuration.Duration
	c.EnableAudit = j.EnableAudit
	c.AuditLogFile = j.AuditLogFile
	c.AuditDatabaseDSN = j.AuditDatabaseDSN
	c.AuditRetention = j.AuditRetention.Duration
	c.EnableInputValidation = j.EnableInputValidation
	c.EnableSessionManagement = j.EnableSessionManagement
	c.SessionTimeout = j.SessionTimeout.Duration
	c.MaxConnections = j.MaxConnections
	c.MaxRequestSize = j.MaxRequestSize
	c.SweepInterval = j.SweepInterval.Duration
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.ArchiveInterval = j.ArchiveInterval.Duration
	c.ArchiveKey = j.ArchiveKey
}
