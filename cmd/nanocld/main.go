// Command nanocld is the daemon entrypoint: it loads configuration,
// opens the Store Gateway and Docker client, wires every Object Manager
// onto the Event Bus and Task Manager, starts the Reconciler, and serves
// the HTTP/WS Surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	"github.com/robfig/cron/v3"

	"nanocld/internal/api"
	"nanocld/internal/cache"
	"nanocld/internal/cargoes"
	"nanocld/internal/config"
	"nanocld/internal/jobs"
	"nanocld/internal/logger"
	"nanocld/internal/namespaces"
	"nanocld/internal/objstatus"
	"nanocld/internal/process"
	"nanocld/internal/reconciler"
	"nanocld/internal/resourcekinds"
	"nanocld/internal/resources"
	"nanocld/internal/secrets"
	"nanocld/internal/specs"
	"nanocld/internal/store"
	"nanocld/internal/tasks"
	"nanocld/internal/vmimage"
	"nanocld/internal/vms"

	"nanocld/internal/events"
)

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	gw, err := store.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store gateway")
	}

	dockerClient, err := client.NewClientWithOpts(
		client.WithHost(cfg.DockerHost),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create docker client")
	}
	if err := pingDocker(dockerClient); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to docker daemon")
	}

	redisCache, err := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Enabled:  cfg.CacheEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache")
	}
	defer redisCache.Close()

	node := nodeName()
	bus := events.New(gw, node)
	sp := specs.New(gw)
	st := objstatus.New(gw)
	images := vmimage.New(gw, cfg.StateDir)
	proc := process.New(dockerClient, gw, node)
	tm := tasks.New()

	cargoMgr := cargoes.New(gw, sp, st, bus)
	vmMgr := vms.New(gw, sp, st, bus, images)
	nsMgr := namespaces.New(dockerClient, gw, cargoMgr, vmMgr)
	jobMgr := jobs.New(gw, st, bus)
	secretMgr := secrets.New(gw, bus)
	kindMgr := resourcekinds.New(gw)
	resMgr := resources.New(gw, sp, kindMgr, bus)

	rec := reconciler.New(bus, tm, proc, cargoMgr, vmMgr, jobMgr, images, st)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go bus.Run(ctx)
	go rec.Run(ctx)

	purgeCron := cron.New()
	if err := events.SchedulePurge(purgeCron, bus); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule event history purge")
	}
	purgeCron.Start()
	defer purgeCron.Stop()

	srv := api.NewServer(*logger.HTTP(), api.Config{
		StateDir:    cfg.StateDir,
		DockerHost:  cfg.DockerHost,
		HostGateway: cfg.HostGateway,
	}, nsMgr, cargoMgr, vmMgr, jobMgr, secretMgr, kindMgr, resMgr, proc, images, st, bus)
	srv.WithCache(redisCache)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("listen", cfg.Listen).Bool("tls", cfg.TLSEnabled()).Msg("starting http server")
		var serveErr error
		if cfg.TLSEnabled() {
			serveErr = httpSrv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			serveErr = httpSrv.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Fatal().Err(serveErr).Msg("http server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
}

func pingDocker(c *client.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Ping(ctx)
	return err
}

func nodeName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fmt.Sprintf("node-%d", os.Getpid())
}
