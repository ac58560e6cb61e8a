package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/video-transcriber/internal/apiclient"
	"github.com/codebuildervaibhav/video-transcriber/internal/cleanup"
	"github.com/codebuildervaibhav/video-transcriber/internal/config"
	"github.com/codebuildervaibhav/video-transcriber/internal/handlers"
	"github.com/codebuildervaibhav/video-transcriber/internal/logging"
	"github.com/codebuildervaibhav/video-transcriber/internal/queue"
	"github.com/codebuildervaibhav/video-transcriber/internal/session"
	"github.com/codebuildervaibhav/video-transcriber/internal/storage"
)

const shutdownTimeout = 30 * time.Second

type options struct {
	ConfigPath string `short:"c" long:"config" default:"config/config.yaml" description:"Path to the YAML config file"`
}

func parseOptions(args []string) (options, error) {
	var opts options
	_, err := flags.ParseArgs(&opts, args)
	return opts, err
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Custom logger setup
	logBuffer := logging.NewLogBuffer(cfg.Log.BufferSize)
	if err := logging.Setup(cfg.Log.Level, logBuffer); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	if err := cleanup.EnsureDirExists(cfg.Storage.OutputDir); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	log.Info("Initializing components...")
	ctx := context.Background()

	// Backend client
	var clientOpts []apiclient.Option
	clientOpts = append(clientOpts, apiclient.WithPrefix(cfg.Backend.Prefix))
	if t := cfg.BackendTimeout(); t > 0 {
		clientOpts = append(clientOpts, apiclient.WithHTTPClient(&http.Client{Timeout: t}))
	}
	backend := apiclient.New(cfg.Backend.BaseURL, clientOpts...)

	// Session store
	var store storage.SessionStore
	switch cfg.Sessions.Store {
	case "redis":
		rs, err := storage.NewRedisStore(ctx, storage.RedisConfig{
			Addr:     cfg.Sessions.Redis.Addr,
			Password: cfg.Sessions.Redis.Password,
			DB:       cfg.Sessions.Redis.DB,
		}, cfg.SessionTTL())
		if err != nil {
			log.WithError(err).Warn("Redis not available, using in-memory session store")
			store = storage.NewMemoryStore(cfg.SessionTTL())
		} else {
			defer rs.Close()
			store = rs
			log.Info("Redis session store connected")
		}
	default:
		store = storage.NewMemoryStore(cfg.SessionTTL())
	}

	// Database
	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Archive pipeline
	var (
		workerPool *queue.WorkerPool
		archive    handlers.Archiver
	)
	if cfg.Archive.Enabled {
		workerPool = queue.NewWorkerPool(
			cfg.Archive.Workers,
			cfg.Archive.QueueSize,
			backend,
			storage.NewLocalStorage(cfg.Storage.OutputDir),
			newDriveUploader(ctx, cfg),
			db,
		)
		workerPool.Start()
		archive = workerPool
	}

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		cfg.Storage.OutputDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		db,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	console := handlers.NewConsole(backend, store, archive, handlers.ConsoleConfig{
		Session: session.Config{
			PollInterval:  cfg.PollInterval(),
			DebounceDelay: cfg.DebounceDelay(),
			NotifyTTL:     cfg.NotifyTTL(),
			MaxFileSize:   cfg.MaxFileSize(),
		},
		CookieName:    cfg.Sessions.CookieName,
		SessionTTL:    cfg.SessionTTL(),
		ArchiveFormat: cfg.Archive.Format,
		EventBuffer:   cfg.Events.BufferSize,
	})
	defer console.Close()
	history := handlers.NewHistoryHandler(db)

	// Create Fiber app
	app := fiber.New(handlers.AppConfig(cfg.MaxFileSize()))

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: log.StandardLogger().Writer()}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Routes
	app.Get("/health", console.Health)
	console.Mount(app.Group("/ui", handlers.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)))
	app.Get(cfg.Backend.Prefix+"/transcribe/:id/download", console.ProxyDownload)
	app.Get("/platforms", console.Platforms)
	app.Get("/history", history.List)
	app.Get("/history/:id", history.Get)
	app.Get("/history/:id/text", history.Text)
	app.Get("/logs", handlers.Logs(logBuffer))
	app.Static("/", cfg.Server.StaticDir)

	addr := cfg.Addr()
	log.Infof("Server starting on %s (backend %s)", addr, backend.BaseURL())

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.WithError(err).Error("Server shutdown")
		}
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	console.Close()
	if workerPool != nil {
		stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		workerPool.Stop(stopCtx)
		cancel()
	}
}

// newDriveUploader returns nil when Drive is disabled or unavailable, so the
// pool keeps local copies only.
func newDriveUploader(ctx context.Context, cfg *config.Config) queue.DriveUploader {
	if !cfg.GoogleDrive.Enabled {
		return nil
	}
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err != nil {
		log.Info("Google Drive credentials not found - saving locally only")
		return nil
	}

	dc, err := storage.NewDriveClient(ctx, storage.DriveConfig{
		CredentialsFile: cfg.GoogleDrive.CredentialsFile,
		TokenFile:       cfg.GoogleDrive.TokenFile,
		FolderName:      cfg.GoogleDrive.FolderName,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNoToken) {
			log.Warn("No Drive token cached; run `transcribe --drive` once to authorize")
		}
		log.WithError(err).Warn("Google Drive not available, transcripts will only be saved locally")
		return nil
	}
	log.Info("Google Drive integration enabled")
	return dc
}
