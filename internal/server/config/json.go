package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/cloakvault/internal/flagx"
	"github.com/dmitrijs2005/cloakvault/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration, so both "10m" and integer nanoseconds are accepted.
// Fields left out of the file keep their previous value.
type JsonConfig struct {
	HTTPAddr          string         `json:"http_addr"`
	GRPCAddr          string         `json:"grpc_addr"`
	DatabaseDSN       string         `json:"database_dsn"`
	JWTSecret         string         `json:"jwt_secret"`
	ProviderURL       string         `json:"provider_url"`
	ProviderAPIKey    string         `json:"provider_api_key"`
	ProviderTimeout   timex.Duration `json:"provider_timeout"`
	MaxFailedAttempts int            `json:"max_failed_attempts"`
	BaseLockout       timex.Duration `json:"base_lockout"`
	WindowMultiplier  int            `json:"window_multiplier"`
	DedupeWindow      timex.Duration `json:"dedupe_window"`
	KDFIterations     int            `json:"kdf_iterations"`
	RecordBackend     string         `json:"record_backend"`
	S3RootUser        string         `json:"s3_root_user"`
	S3RootPassword    string         `json:"s3_root_password"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	LogLevel          string         `json:"log_level"`
	RateLimitRPS      float64        `json:"rate_limit_rps"`
	RateLimitBurst    int            `json:"rate_limit_burst"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// CLOAKVAULT_CONFIG) onto config. Without a path nothing is loaded. An
// unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.JWTSecret, c.JWTSecret)
	setString(&config.ProviderURL, c.ProviderURL)
	setString(&config.ProviderAPIKey, c.ProviderAPIKey)
	setString(&config.RecordBackend, c.RecordBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)

	if c.ProviderTimeout.Duration > 0 {
		config.ProviderTimeout = c.ProviderTimeout.Duration
	}
	if c.BaseLockout.Duration > 0 {
		config.BaseLockout = c.BaseLockout.Duration
	}
	if c.DedupeWindow.Duration > 0 {
		config.DedupeWindow = c.DedupeWindow.Duration
	}
	if c.MaxFailedAttempts > 0 {
		config.MaxFailedAttempts = c.MaxFailedAttempts
	}
	if c.WindowMultiplier > 0 {
		config.WindowMultiplier = c.WindowMultiplier
	}
	if c.KDFIterations > 0 {
		config.KDFIterations = c.KDFIterations
	}
	if c.RateLimitRPS > 0 {
		config.RateLimitRPS = c.RateLimitRPS
	}
	if c.RateLimitBurst > 0 {
		config.RateLimitBurst = c.RateLimitBurst
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
