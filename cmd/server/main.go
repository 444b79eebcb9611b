package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"weblast/internal/api"
	"weblast/internal/config"
	"weblast/internal/database"
	"weblast/internal/dispatch"
	"weblast/internal/logging"
	"weblast/internal/media"
	"weblast/internal/session"
	"weblast/internal/whatsapp"
	"weblast/internal/ws"
)

func main() {
	cfg := config.LoadConfig()
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub()
	go hub.Run(ctx)

	service := dispatch.NewService(dispatch.Config{
		RecipientDelay:  cfg.RecipientDelay,
		AttachmentDelay: cfg.AttachmentDelay,
		PairingTimeout:  cfg.PairingTimeout,
	},
		whatsapp.NewFactory(cfg, db),
		media.NewFetcher(cfg.MediaFetchTimeout, cfg.MediaMaxBytes),
		session.Presenters{session.NewConsole(os.Stdout), hub},
	)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware())

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	blastHandler := api.NewBlastHandler(service)
	dashboardHandler := api.NewDashboardHandler(db)

	r.POST("/blast", blastHandler.Blast)
	r.GET("/healthz", api.Healthz)
	r.GET("/ws", gin.WrapF(hub.ServeWs))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/messages", dashboardHandler.GetMessages)
		apiGroup.GET("/media", dashboardHandler.ListMedia)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown")
	}
}
