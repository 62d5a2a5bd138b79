package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/cloakvault/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string      HTTP bind address (e.g., ":8080")
//	-g string      gRPC health bind address (e.g., ":50051")
//	-d string      PostgreSQL DSN
//	-s string      JWT HMAC secret
//	-p string      authentication provider base URL
//	-k string      authentication provider API key
//	-m int         failed attempts before a lock
//	-l duration    base lockout duration (e.g., "10m")
//	-w int         failure window as a multiple of the base lockout
//	-x duration    lock dedupe window
//	-i int         PBKDF2 iterations
//	-b string      record backend: postgres or s3
//	-r float       auth route rate limit, requests per second per client
//	-log-level     debug, info, warn or error
//	-s3-user, -s3-password, -s3-bucket, -s3-region, -s3-endpoint
//
// Only the flags listed above are taken from os.Args (see flagx.FilterArgs).
// A malformed value panics.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"a", "g", "d", "s", "p", "k", "m", "l", "w", "x", "i", "b", "r", "log-level",
		"s3-user", "s3-password", "s3-bucket", "s3-region", "s3-endpoint",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port to run server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret")
	fs.StringVar(&config.ProviderURL, "p", config.ProviderURL, "authentication provider URL")
	fs.StringVar(&config.ProviderAPIKey, "k", config.ProviderAPIKey, "authentication provider API key")

	fs.IntVar(&config.MaxFailedAttempts, "m", config.MaxFailedAttempts, "failed attempts before lock")
	fs.DurationVar(&config.BaseLockout, "l", config.BaseLockout, "base lockout duration")
	fs.IntVar(&config.WindowMultiplier, "w", config.WindowMultiplier, "failure window multiplier")
	fs.DurationVar(&config.DedupeWindow, "x", config.DedupeWindow, "lock dedupe window")
	fs.IntVar(&config.KDFIterations, "i", config.KDFIterations, "PBKDF2 iterations")

	fs.StringVar(&config.RecordBackend, "b", config.RecordBackend, "record backend (postgres|s3)")
	fs.Float64Var(&config.RateLimitRPS, "r", config.RateLimitRPS, "rate limit, requests per second")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	fs.StringVar(&config.S3RootUser, "s3-user", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "s3-password", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "s3-bucket", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "s3-region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "s3-endpoint", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
