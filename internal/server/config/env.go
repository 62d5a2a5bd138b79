package config

import "os"

// parseEnv reads secrets from the environment. SUPABASE_URL and
// SUPABASE_ANON_KEY are accepted as fallbacks for the provider settings.
func parseEnv(config *Config) {
	config.DatabaseDSN = getenv("DATABASE_DSN", config.DatabaseDSN)
	config.JWTSecret = getenv("JWT_SECRET", config.JWTSecret)
	config.ProviderURL = getenv("PROVIDER_URL", getenv("SUPABASE_URL", config.ProviderURL))
	config.ProviderAPIKey = getenv("PROVIDER_API_KEY", getenv("SUPABASE_ANON_KEY", config.ProviderAPIKey))
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
