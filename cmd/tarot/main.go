package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"tarotreader/internal/app"
	"tarotreader/internal/config"
	"tarotreader/internal/ratelimit"
	"tarotreader/internal/server"
	"tarotreader/internal/usertoken"
	"tarotreader/internal/util"
	"tarotreader/pkg/ai"
	"tarotreader/pkg/storage"
	"tarotreader/pkg/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	var dataStore store.Store
	if cfg.DatabaseURL != "" {
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init postgres store: %v", err)
		}
	} else {
		slog.Warn("no databaseURL configured, readings will not survive restarts")
		dataStore = store.NewMemoryStore()
	}

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.JWKSURL,
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:         dataStore,
		Generator:     ai.NewOpenAICompatGenerator(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel),
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var artwork storage.ArtworkStore
	if cfg.MinioEndpoint != "" {
		artwork, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init artwork store: %v", err)
		}
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		limit := cfg.LLMRateLimitPerMinute
		if limit <= 0 {
			limit = 20
		}
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", limit, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  verifier,
		Artwork:        artwork,
		LLMLimiter:     limiter,
		TrustedProxies: trustedProxies,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
