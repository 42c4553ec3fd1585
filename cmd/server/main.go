package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/identity"
	signaladapter "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
)

func setupLogger(cfg *config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	// JSON in release, human-friendly output otherwise.
	if cfg.Mode != "release" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	policy, err := app.PolicyByName(cfg.Admission)
	if err != nil {
		log.Fatal().Err(err).Msg("admission policy")
	}
	idp, err := identity.NewProvider(identity.Options{
		Issuer:   cfg.Identity.Issuer,
		Secret:   []byte(cfg.Identity.Secret),
		TokenTTL: cfg.Identity.TokenTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("identity provider")
	}

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Identity: idp,
		Policy:   policy,
		RoomTTL:  cfg.RoomTTL,
		Scopes:   cfg.Identity.Scopes,
	}
	sig := signaladapter.NewSignalWSController(o, func(token string) (domain.UserID, error) {
		claims, err := idp.Verify(token)
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}, cfg.Call.ICEServers)
	o.OnRoomEnded = sig.EndRoom
	limiter := router.NewJoinLimiter(cfg.RateLimit.Joins, cfg.RateLimit.Window)

	go o.RunJanitor(ctx, cfg.JanitorInterval)
	go func() {
		t := time.NewTicker(cfg.RateLimit.Window)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				limiter.Prune()
			}
		}
	}()

	r := router.SetupRouter(cfg, o, limiter, sig)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Hijacked signaling sockets are not closed by Shutdown.
	sig.Close()
	log.Info().Int("rooms_dropped", o.Registry.Len()).Msg("Server exited gracefully")
}
