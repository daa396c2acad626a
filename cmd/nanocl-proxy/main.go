// Command nanocl-proxy is the Proxy Rule Translator: a peer daemon that
// subscribes to nanocld's event stream over HTTP and keeps an nginx
// config tree in sync with every Resource targeting the proxy domain.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"nanocld/internal/api"
	"nanocld/internal/logger"
	"nanocld/internal/proxy"
)

type config struct {
	DaemonURL   string
	APIVersion  string
	ConfDir     string
	HostGateway string
	LogLevel    string
	LogPretty   bool
}

func loadConfig() config {
	return config{
		DaemonURL: getEnv("NANOCL_PROXY_DAEMON_URL", "http://localhost:6443"),
		// Defaults to the daemon's own version constant rather than a
		// second hardcoded literal: middleware.VersionGate rejects any
		// requested version numerically greater than api.Version, so a
		// drifted default here would silently 404 every request this
		// binary makes.
		APIVersion:  getEnv("NANOCL_PROXY_API_VERSION", api.Version),
		ConfDir:     getEnv("NANOCL_PROXY_CONF_DIR", "/etc/nginx/conf.d"),
		HostGateway: getEnv("NANOCL_HOST_GATEWAY", "127.0.0.1"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnv("LOG_PRETTY", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.Proxy()

	daemon := proxy.NewDaemonClient(cfg.DaemonURL)
	tr := proxy.New(daemon, cfg.APIVersion, cfg.ConfDir, cfg.HostGateway, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("daemon", cfg.DaemonURL).Str("conf_dir", cfg.ConfDir).Msg("starting proxy rule translator")
	if err := tr.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("proxy rule translator stopped unexpectedly")
	}
	log.Info().Msg("shutdown signal received")
}
