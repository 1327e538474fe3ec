// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	internal_callstore "github.com/preporbit/voice-api/api/interview-api/internal/callstore"
	internal_feedback "github.com/preporbit/voice-api/api/interview-api/internal/feedback"
	internal_session "github.com/preporbit/voice-api/api/interview-api/internal/session"
	interview_routers "github.com/preporbit/voice-api/api/interview-api/router"
	"github.com/preporbit/voice-api/config"
	generator_client "github.com/preporbit/voice-api/pkg/clients/generator"
	"github.com/preporbit/voice-api/pkg/commons"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	var logger commons.Logger
	if cfg.LogPath != "" {
		logger = commons.NewRotatingLogger(cfg.LogPath, cfg.LogLevel)
	} else {
		logger = commons.NewApplicationLogger()
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Infof("shutdown signal received")
		cancel()
	}()

	store, err := internal_callstore.NewStore(logger, cfg.SqlitePath)
	if err != nil {
		logger.Fatalf("unable to open call store: %v", err)
	}

	generator := generator_client.NewGeneratorServiceClient(cfg, logger)
	controller := internal_session.NewController(ctx, logger, generator, store,
		func() *internal_feedback.Submitter {
			return internal_feedback.NewSubmitter(logger, cfg.FeedbackBaseURL, cfg.AuthToken, nil)
		}, nil)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	interview_routers.HealthCheckRoutes(cfg, engine, logger)
	interview_routers.LiveSessionApiRoute(ctx, cfg, engine, logger, controller, store)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: engine,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("interview api listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Fatalf("interview api exited: %v", err)
	}
	logger.Infof("interview api stopped")
}
