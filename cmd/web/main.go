package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"terroir/web/internal/api"
	"terroir/web/internal/app"
	"terroir/web/internal/config"
	"terroir/web/internal/media"
	"terroir/web/internal/session"
	"terroir/web/internal/suggest"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	client := api.New(cfg.UpstreamAPIURL, cfg.UpstreamTimeout)

	// Browser sessions live in Redis; Postgres is the fallback when no
	// Redis is configured.
	var sessionStore session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for browser sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessionStore = redisStore
	} else if strings.TrimSpace(cfg.DatabaseURL) != "" {
		log.Printf("Using PostgreSQL for browser sessions")
		pgStore, err := session.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("postgres connection failed: %v", err)
		}
		defer pgStore.Close()
		if err := pgStore.PurgeExpired(ctx); err != nil {
			log.Printf("WARNING: purge expired sessions: %v", err)
		}
		sessionStore = pgStore
	} else {
		log.Fatal("either REDIS_URL or DATABASE_URL must be set for session storage")
	}

	var meiliClient *suggest.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = suggest.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	suggestService := suggest.NewService(meiliClient, app.SuggestFallback(client))

	var uploader *media.Uploader
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		var err error
		uploader, err = media.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MediaBaseURL, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("object store connection failed: %v", err)
		}
	} else {
		log.Printf("WARNING: MINIO_ENDPOINT not set, media uploads disabled")
	}

	service := app.NewService(sessionStore, client, suggestService, uploader, cfg.PublicBaseURL)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.SessionTTL)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Terroir web listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
