package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/chatty/internal/api"
	"github.com/ammar1510/chatty/internal/auth"
	"github.com/ammar1510/chatty/internal/bot"
	"github.com/ammar1510/chatty/internal/config"
	"github.com/ammar1510/chatty/internal/database"
	"github.com/ammar1510/chatty/internal/logger"
	"github.com/ammar1510/chatty/internal/mailer"
	"github.com/ammar1510/chatty/internal/metrics"
	"github.com/ammar1510/chatty/internal/presence"
	"github.com/ammar1510/chatty/internal/services"
	"github.com/ammar1510/chatty/internal/storage"
	"github.com/ammar1510/chatty/internal/websocket"
)

var log = logger.New("main")

func fatal(format string, args ...interface{}) {
	log.Error(format, args...)
	logger.Sync()
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("Failed to load configuration: %v", err)
	}

	var logPaths []string
	if cfg.LogFile != "" {
		logPaths = append(logPaths, cfg.LogFile)
	}
	if err := logger.Init(cfg.Env, logPaths...); err != nil {
		fatal("Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Init()
	auth.InitJWTKey([]byte(cfg.JWTSecret))
	auth.SetTokenTTL(cfg.SessionTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(database.DatabaseType(cfg.DBType), cfg.DatabaseURL)
	if err != nil {
		fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if pg, ok := db.(*database.PostgresDB); ok {
		if err := pg.Migrate(ctx); err != nil {
			fatal("Failed to migrate database: %v", err)
		}
	}
	log.Info("Connected to %s database", cfg.DBType)

	wsOpts := []websocket.Option{websocket.WithAllowedOrigins(cfg.AllowedOrigins)}
	if cfg.Redis.Addr != "" {
		mirror, err := presence.NewRedisMirror(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			fatal("Failed to connect to redis: %v", err)
		}
		defer mirror.Close()
		go mirror.Run(ctx)
		wsOpts = append(wsOpts, websocket.WithMirror(mirror))
		log.Info("Mirroring presence to redis at %s", cfg.Redis.Addr)
	}

	var images storage.ImageStore = storage.InlineStore{}
	if cfg.S3.Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
		})
		if err != nil {
			fatal("Failed to configure S3: %v", err)
		}
		images = s3Store
	} else {
		log.Warn("S3_BUCKET not set; images are stored inline")
	}

	var mail mailer.Mailer = mailer.LogMailer{}
	if cfg.Mail.APIKey != "" {
		mail = mailer.NewBrevoMailer(mailer.BrevoConfig{
			APIKey:      cfg.Mail.APIKey,
			Endpoint:    cfg.Mail.Endpoint,
			SenderEmail: cfg.Mail.SenderEmail,
			SenderName:  cfg.Mail.SenderName,
		})
	} else {
		log.Warn("BREVO_API_KEY not set; emails are only logged")
	}

	var gen bot.Generator = bot.Unavailable{}
	if cfg.Bot.APIKey != "" {
		gemini, err := bot.NewGeminiGenerator(ctx, cfg.Bot.APIKey, cfg.Bot.Model)
		if err != nil {
			fatal("Failed to create bot generator: %v", err)
		}
		defer gemini.Close()
		gen = gemini
	} else {
		log.Warn("GEMINI_API_KEY not set; the bot answers with its fallback reply")
	}
	gen = bot.NewBreakerGenerator(gen, cfg.Bot.MaxFailures, cfg.Bot.Timeout, time.Minute)

	wsManager := websocket.NewManager(wsOpts...)
	go wsManager.Run(ctx)

	accounts := services.NewAccountService(db, mail, images, services.AccountConfig{
		VerificationTTL: cfg.VerificationTTL,
		ResetTTL:        cfg.ResetTTL,
		FrontendURL:     cfg.FrontendURL,
	})
	defer accounts.Stop()
	go accounts.RunSweeper(ctx, cfg.SweepInterval)

	messages := services.NewMessageService(db, images, wsManager)
	friends := services.NewFriendService(db, wsManager)
	bots := services.NewBotService(db, gen)

	router := api.NewRouter(cfg.AllowedOrigins, api.Handlers{
		Auth:      api.NewAuthHandler(accounts, cfg.IsProduction()),
		Messages:  api.NewMessageHandler(messages, bots),
		Bot:       api.NewBotHandler(bots),
		Friends:   api.NewFriendHandler(friends),
		WebSocket: wsManager,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	log.Info("Server starting on port %s", cfg.Port)
	if err := serve(ctx, server, 5*time.Second); err != nil {
		// Returning instead of exiting lets the deferred closers run
		log.Error("Server stopped: %v", err)
		return
	}
	log.Info("Server exited properly")
}

// serve runs server until ctx ends or it fails to listen. On ctx end it shuts
// down gracefully within timeout.
func serve(ctx context.Context, server *http.Server, timeout time.Duration) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}
