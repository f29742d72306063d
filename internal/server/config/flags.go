package config

import (
	"flag"
	"os"

	"github.com/pgElephant/ramd/internal/flagx"
)

var boolFlags = []string{
	"-enable-auth", "-enable-ssl", "-enable-rate-limiting", "-enable-audit",
	"-enable-input-validation", "-enable-session-management",
}

var valueFlags = []string{
	"-a", "-m", "-l",
	"-admin-token-file",
	"-ssl-cert", "-ssl-key", "-ssl-ca",
	"-rate-limit-max", "-rate-limit-window", "-rate-limit-block",
	"-audit-log", "-audit-dsn", "-audit-retention",
	"-session-timeout",
	"-max-connections", "-max-request-size",
	"-sweep-interval",
	"-s3-user", "-s3-password", "-s3-bucket", "-s3-region", "-s3-endpoint",
	"-archive-interval",
}

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string                   gRPC bind address (e.g., ":7400")
//	-m string                   metrics bind address, empty disables
//	-l string                   log level
//	-enable-auth                token authentication
//	-admin-token-file string    where a generated admin token is written
//	-enable-ssl                 TLS on the gRPC endpoint
//	-ssl-cert/-ssl-key/-ssl-ca  TLS material paths
//	-enable-rate-limiting       per-IP rate limiting
//	-rate-limit-max int         requests per window
//	-rate-limit-window dur      window length (e.g., "60s")
//	-rate-limit-block dur       block duration (e.g., "5m")
//	-enable-audit               audit trail
//	-audit-log string           JSON-lines audit file
//	-audit-dsn string           PostgreSQL DSN for the durable audit table
//	-audit-retention dur        prune database audit rows older than this, 0 keeps all
//	-enable-input-validation    reject/sanitize control characters
//	-enable-session-management  issue expiring session tokens at login
//	-session-timeout dur        session token lifetime
//	-max-connections int        concurrent in-flight requests
//	-max-request-size int       max inbound message size in bytes
//	-sweep-interval dur         rate-limit table sweep period
//	-s3-*                       audit archive object storage
//	-archive-interval dur       periodic archive, 0 archives only at shutdown
//
// The admin token itself is deliberately not a flag: process arguments are
// visible to every local user.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], append(append([]string{}, valueFlags...), boolFlags...), boolFlags...)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run the control-plane API")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port for /metrics")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.BoolVar(&config.EnableAuth, "enable-auth", config.EnableAuth, "require tokens")
	fs.StringVar(&config.AdminTokenFile, "admin-token-file", config.AdminTokenFile, "admin token output file")

	fs.BoolVar(&config.EnableSSL, "enable-ssl", config.EnableSSL, "enable TLS")
	fs.StringVar(&config.SSLCertFile, "ssl-cert", config.SSLCertFile, "TLS certificate file")
	fs.StringVar(&config.SSLKeyFile, "ssl-key", config.SSLKeyFile, "TLS key file")
	fs.StringVar(&config.SSLCAFile, "ssl-ca", config.SSLCAFile, "TLS client CA file")

	fs.BoolVar(&config.EnableRateLimiting, "enable-rate-limiting", config.EnableRateLimiting, "per-IP rate limiting")
	fs.IntVar(&config.RateLimitMaxRequests, "rate-limit-max", config.RateLimitMaxRequests, "requests per window")
	fs.DurationVar(&config.RateLimitWindow, "rate-limit-window", config.RateLimitWindow, "rate limit window")
	fs.DurationVar(&config.RateLimitBlockDuration, "rate-limit-block", config.RateLimitBlockDuration, "block duration")

	fs.BoolVar(&config.EnableAudit, "enable-audit", config.EnableAudit, "audit trail")
	fs.StringVar(&config.AuditLogFile, "audit-log", config.AuditLogFile, "audit log file")
	fs.StringVar(&config.AuditDatabaseDSN, "audit-dsn", config.AuditDatabaseDSN, "audit database DSN")
	fs.DurationVar(&config.AuditRetention, "audit-retention", config.AuditRetention, "audit database retention")

	fs.BoolVar(&config.EnableInputValidation, "enable-input-validation", config.EnableInputValidation, "input validation")
	fs.BoolVar(&config.EnableSessionManagement, "enable-session-management", config.EnableSessionManagement, "session tokens")
	fs.DurationVar(&config.SessionTimeout, "session-timeout", config.SessionTimeout, "session timeout")

	fs.IntVar(&config.MaxConnections, "max-connections", config.MaxConnections, "max concurrent requests")
	fs.IntVar(&config.MaxRequestSize, "max-request-size", config.MaxRequestSize, "max request size in bytes")
	fs.DurationVar(&config.SweepInterval, "sweep-interval", config.SweepInterval, "rate limiter sweep interval")

	fs.StringVar(&config.S3RootUser, "s3-user", config.S3RootUser, "S3 access key")
	fs.StringVar(&config.S3RootPassword, "s3-password", config.S3RootPassword, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "s3-bucket", config.S3Bucket, "S3 bucket for audit archives")
	fs.StringVar(&config.S3Region, "s3-region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "s3-endpoint", config.S3BaseEndpoint, "S3 base endpoint")
	fs.DurationVar(&config.ArchiveInterval, "archive-interval", config.ArchiveInterval, "audit archive interval")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
