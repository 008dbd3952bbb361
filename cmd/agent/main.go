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

	router "github.com/webconf/multicam/internal/adapters/http"
	rtcadapter "github.com/webconf/multicam/internal/adapters/rtc"
	signaladapter "github.com/webconf/multicam/internal/adapters/signal"
	"github.com/webconf/multicam/internal/app"
	"github.com/webconf/multicam/internal/config"
	"github.com/webconf/multicam/internal/domain"
	"github.com/webconf/multicam/internal/view"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	transport := signaladapter.NewTransport(cfg.SignalURL, rtcadapter.NewEngine())
	if cfg.PingPeriod > 0 {
		transport.PingPeriod = cfg.PingPeriod
	}
	stage := view.NewStage()
	store := app.NewFileStore(cfg.StorePath)

	conf := app.NewConference(transport, stage, store, cfg.UserName, domain.ConferenceID(cfg.Conference))
	if err := conf.Join(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to join conference")
	}

	r := router.SetupRouter(cfg, conf)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("multicam agent started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	conf.Leave()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Agent exited gracefully")
}
