// Package config handles configuration for the ramd daemon,
// including defaults, JSON overlay, command-line flags and validation.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pgElephant/ramd/internal/common"
)

// Config holds runtime settings for the ramd control-plane daemon.
//
// Security fields configure the gatekeeper: each enable_*
// switch turns one concern on or off, and the remaining fields size it.
// S3* fields configure the optional audit archive; an empty S3Bucket
// disables archiving.
type Config struct {
	EndpointAddrGRPC string `validate:"required"`
	MetricsAddr      string
	LogLevel         string `validate:"omitempty,oneof=debug info warn warning error"`

	EnableAuth     bool
	AdminToken     string `validate:"omitempty,min=16"`
	AdminTokenFile string

	EnableSSL   bool
	SSLCertFile string `validate:"required_if=EnableSSL true"`
	SSLKeyFile  string `validate:"required_if=EnableSSL true"`
	SSLCAFile   string

	EnableRateLimiting     bool
	RateLimitMaxRequests   int           `validate:"gt=0"`
	RateLimitWindow        time.Duration `validate:"gt=0"`
	RateLimitBlockDuration time.Duration `validate:"gt=0"`

	EnableAudit      bool
	AuditLogFile     string
	AuditDatabaseDSN string
	AuditRetention   time.Duration `validate:"gte=0"`

	EnableInputValidation   bool
	EnableSessionManagement bool
	SessionTimeout          time.Duration `validate:"gt=0"`

	MaxConnections int           `validate:"gt=0"`
	MaxRequestSize int           `validate:"gt=0"`
	SweepInterval  time.Duration `validate:"gt=0"`

	S3RootUser      string
	S3RootPassword  string
	S3Bucket        string
	S3Region        string `validate:"required_with=S3Bucket"`
	S3BaseEndpoint  string
	ArchiveInterval time.Duration `validate:"gte=0"`
	ArchiveKey      string        `validate:"omitempty,hexadecimal,len=64"`
}

// LoadDefaults populates Config with the documented defaults: authentication,
// rate limiting (100 requests per 60s, 300s block), audit and input
// validation on; TLS and session management off.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":7400"
	c.MetricsAddr = ":9187"
	c.LogLevel = "info"

	c.EnableAuth = true

	c.EnableRateLimiting = true
	c.RateLimitMaxRequests = 100
	c.RateLimitWindow = 60 * time.Second
	c.RateLimitBlockDuration = 300 * time.Second

	c.EnableAudit = true
	c.EnableInputValidation = true
	c.SessionTimeout = time.Hour

	c.MaxConnections = 100
	c.MaxRequestSize = 1 << 20
	c.SweepInterval = time.Minute

	c.S3Region = "us-east-1"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value ranges and cross-field requirements. Errors wrap
// common.ErrConfiguration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	return nil
}
