package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/tokencore/internal/app"
	"github.com/dropDatabas3/tokencore/internal/config"
	httpx "github.com/dropDatabas3/tokencore/internal/http"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path al config.yaml (vacío = defaults + env)")
	purgeEvery := flag.Duration("purge-interval", time.Hour, "intervalo de purga de tokens expirados (0 = deshabilitada)")
	flag.Parse()

	// .env es opcional.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.L().Fatal("config inválida", logger.Err(err))
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("wiring failed", logger.Err(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("cleanup error", logger.Err(err))
		}
	}()

	srv := httpx.NewServer(httpx.ServerConfig{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
	}, a.Handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout))
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if *purgeEvery > 0 {
		g.Go(func() error {
			t := time.NewTicker(*purgeEvery)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case now := <-t.C:
					n, err := a.Purge(gctx, now)
					if err != nil {
						log.Warn("purge failed", logger.Err(err))
						continue
					}
					log.Debug("purge done", logger.Int("rows", int(n)))
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", logger.Err(err))
		os.Exit(1)
	}
}
