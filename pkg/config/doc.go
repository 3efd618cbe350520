// Package config loads application configuration from environment variables
// into typed structs, caching each successfully parsed type for the lifetime
// of the process.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: the
// default .env file is loaded once (missing files are fine), then env.Parse
// populates the struct from `env:` and `envDefault:` tags.
//
//	type Config struct {
//	    ConnURL string `env:"PG_CONN_URL,required"`
//	    Retries int    `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
//
// Each unique struct type is parsed at most once even under concurrent
// access; later calls are served from the cache.
package config
