package main

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"weblog/internal/config"
	"weblog/internal/db"
	"weblog/internal/logger"
	"weblog/internal/router"
	"weblog/internal/search"
	"weblog/internal/services"
)

func main() {
	cfg := config.Load()
	logger.Set(logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.Debug}))

	if cfg.InsecureSecret() && !cfg.Debug {
		log.Warn().Msg("SECRET_KEY is the development default, set it before deploying")
	}

	// Initialize Database
	db.Init(cfg.DatabaseURL, cfg.Debug)

	// Background workers
	search.GetIndexer()
	services.GetBeatImporter().StartScheduledImports(cfg.BeatImportInterval, cfg.ImportSources)

	if cfg.CloudflareIPFile != "" {
		if err := services.LoadCloudflareRanges(cfg.CloudflareIPFile); err != nil {
			log.Warn().Err(err).Str("file", cfg.CloudflareIPFile).Msg("using built-in Cloudflare ranges")
		}
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r, err := router.Setup(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up router")
	}

	log.Info().Str("port", cfg.Port).Msg("weblog server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
