// Package config loads the daemon's environment-variable driven
// configuration, grounded on the teacher's getEnv/getEnvInt helpers in
// api/cmd/main.go.
package config

import (
	"os"
	"strconv"

	"nanocld/internal/store"
)

// Config is everything cmd/nanocld needs to wire the daemon together.
type Config struct {
	Listen      string
	StateDir    string
	DockerHost  string
	HostGateway string

	TLSCertFile string
	TLSKeyFile  string
	TLSCAFile   string

	DB store.Config

	CacheEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel  string
	LogPretty bool
}

// Load reads the daemon's configuration from the process environment,
// applying the same defaults the teacher's CLI ships with.
func Load() Config {
	return Config{
		Listen:      getEnv("NANOCL_LISTEN", "0.0.0.0:6443"),
		StateDir:    getEnv("NANOCL_STATE_DIR", "/var/lib/nanocl"),
		DockerHost:  getEnv("NANOCL_DOCKER_HOST", "unix:///var/run/docker.sock"),
		HostGateway: getEnv("NANOCL_HOST_GATEWAY", "127.0.0.1"),

		TLSCertFile: os.Getenv("NANOCL_TLS_CERT"),
		TLSKeyFile:  os.Getenv("NANOCL_TLS_KEY"),
		TLSCAFile:   os.Getenv("NANOCL_TLS_CA"),

		DB: store.Config{
			Host:     getEnv("NANOCL_DB_HOST", "localhost"),
			Port:     getEnv("NANOCL_DB_PORT", "5432"),
			User:     getEnv("NANOCL_DB_USER", "nanocl"),
			Password: getEnv("NANOCL_DB_PASSWORD", "nanocl"),
			DBName:   getEnv("NANOCL_DB_NAME", "nanocl"),
			SSLMode:  getEnv("NANOCL_DB_SSLMODE", "disable"),
		},

		CacheEnabled:  getEnv("NANOCL_CACHE_ENABLED", "false") == "true",
		RedisAddr:     getEnv("NANOCL_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("NANOCL_REDIS_PASSWORD"),
		RedisDB:       getEnvInt("NANOCL_REDIS_DB", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnv("LOG_PRETTY", "false") == "true",
	}
}

// TLSEnabled reports whether both halves of a TLS keypair were
// configured.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
