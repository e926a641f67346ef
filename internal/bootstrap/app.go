package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"esign-backend/internal/audit"
	googleauth "esign-backend/internal/auth"
	"esign-backend/internal/envelopes"
	"esign-backend/internal/notify"
	"esign-backend/internal/render"
	"esign-backend/internal/scheduler"
	"esign-backend/internal/shared/config"
	"esign-backend/internal/shared/server"
	"esign-backend/internal/shared/storage/db"
	"esign-backend/internal/shared/storage/object"
	localstore "esign-backend/internal/shared/storage/object/local"
	s3store "esign-backend/internal/shared/storage/object/s3"
	"esign-backend/internal/signing"
	"esign-backend/internal/uploads"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore

	EnvelopeRepo    envelopes.Repo
	EnvelopeService *envelopes.Service
	EnvelopeHandler *envelopes.Handler
	UploadsHandler  *uploads.Handler
	Notifier        envelopes.Notifier
	Scheduler       *scheduler.Scheduler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		return nil, err
	}

	renderer, err := render.New(cfg.FontDir)
	if err != nil {
		return nil, fmt.Errorf("build renderer: %w", err)
	}

	composer, err := audit.New(cfg.FontDir)
	if err != nil {
		return nil, fmt.Errorf("build audit composer: %w", err)
	}

	signer, err := buildSigner(cfg)
	if err != nil {
		return nil, err
	}

	var repo envelopes.Repo
	if sqlDB != nil {
		repo = &envelopes.PGRepo{DB: sqlDB, LockTimeout: cfg.LockTimeout}
	} else {
		mem := envelopes.NewMemoryRepo()
		mem.LockTimeout = cfg.LockTimeout
		repo = mem
	}

	svc := &envelopes.Service{
		Repo:             repo,
		Store:            store,
		Notify:           notifier,
		Renderer:         renderer,
		Signer:           signer,
		Audit:            composer,
		SigningLocation:  cfg.SigningLocation,
		ReminderInterval: cfg.ReminderInterval,
		PurgeAfter:       cfg.PurgeAfter,
	}

	uploadsHandler, err := uploads.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	if err != nil {
		log.Printf("bootstrap: uploads presign unavailable: %v", err)
		uploadsHandler = nil
	}

	app := &App{
		Config:          cfg,
		DB:              sqlDB,
		Store:           store,
		EnvelopeRepo:    repo,
		EnvelopeService: svc,
		EnvelopeHandler: envelopes.NewHandler(svc),
		UploadsHandler:  uploadsHandler,
		Notifier:        notifier,
		Scheduler:       scheduler.New(svc, cfg.JobInterval),
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		EnvelopeHandler: app.EnvelopeHandler,
		UploadsHandler:  app.UploadsHandler,
		GoogleAuth: googleauth.NewGoogleService(
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
			cfg.UIRedirectURL,
		),
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildNotifier(ctx context.Context, cfg config.Config) (envelopes.Notifier, error) {
	if strings.TrimSpace(cfg.NotifyQueueURL) == "" {
		log.Printf("bootstrap: NOTIFY_SQS_QUEUE_URL empty; notifications are logged only")
		return notify.Logger{}, nil
	}
	return notify.NewSQSNotifier(ctx, cfg.AWSRegion, cfg.NotifyQueueURL)
}

func buildSigner(cfg config.Config) (envelopes.SignatureApplier, error) {
	if strings.TrimSpace(cfg.SigningCertFile) == "" || strings.TrimSpace(cfg.SigningKeyFile) == "" {
		log.Printf("bootstrap: signing certificate not configured; digital signature fields unavailable")
		return nil, nil
	}
	signer, err := signing.New(cfg.SigningCertFile, cfg.SigningKeyFile, cfg.SigningTimeout)
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	return signer, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
