// Package app wires configuration into the stores, auth backend and domain
// services shared by the API server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/ruet-connect/connect/services/connect/config"
	"github.com/ruet-connect/connect/services/connect/internal/account"
	"github.com/ruet-connect/connect/services/connect/internal/auth"
	"github.com/ruet-connect/connect/services/connect/internal/cache"
	"github.com/ruet-connect/connect/services/connect/internal/catalog"
	"github.com/ruet-connect/connect/services/connect/internal/claims"
	"github.com/ruet-connect/connect/services/connect/internal/database"
	"github.com/ruet-connect/connect/services/connect/internal/firestore"
	"github.com/ruet-connect/connect/services/connect/internal/notify"
	"github.com/ruet-connect/connect/services/connect/internal/resolver"
	"github.com/ruet-connect/connect/services/connect/internal/session"
	"github.com/ruet-connect/connect/services/connect/internal/store"
	"github.com/ruet-connect/connect/services/connect/internal/token"
	"github.com/ruet-connect/connect/services/connect/internal/upload"
	"github.com/ruet-connect/connect/services/connect/internal/validator"
	"github.com/ruet-connect/connect/services/connect/internal/web/handlers"
)

// App holds the fully wired services.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Backend  auth.Backend
	Profiles store.ProfileStore
	Items    store.ItemStore
	Requests store.RequestStore
	Resolver *resolver.Resolver
	Catalog  *catalog.Catalog
	Claims   *claims.Engine
	Accounts *account.Service
	Tokens   *token.Service
	Uploader upload.Uploader // nil keeps the placeholder image

	closers []func() error
}

// NewLogger builds the process logger: JSON in production, text otherwise.
func NewLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// New wires every service for cfg.Backend. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	var err error
	switch cfg.Backend {
	case config.BackendSQLite:
		err = a.openSQLite()
	case config.BackendFirebase:
		err = a.openFirebase(ctx)
	default:
		err = fmt.Errorf("unknown BACKEND %q", cfg.Backend)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	rdb := a.openRedis(ctx)

	signingKey := cfg.JWT.SigningKey
	if signingKey == "" {
		if cfg.IsProduction() {
			a.Close()
			return nil, errors.New("JWT_SIGNING_KEY is required in production")
		}
		logger.Warn("JWT_SIGNING_KEY is empty, using a random key; tokens will not survive a restart")
		if signingKey, err = token.GenerateSigningKey(); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Tokens = token.New(signingKey, cfg.JWT.Issuer, cfg.JWT.TTL, rdb)

	a.Profiles = cache.NewProfiles(a.Profiles, rdb, cfg.Redis.ProfileTTL, logger.With("component", "profile-cache"))

	var events notify.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		events = notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.With("component", "kafka"))
	} else {
		events = notify.NewLogPublisher(logger.With("component", "events"))
	}
	a.closers = append(a.closers, events.Close)

	a.Resolver = resolver.New(a.Profiles, resolver.Options{
		AdminEmails:     cfg.Auth.AdminEmails,
		RequireVerified: cfg.Auth.RequireEmailVerification,
		Logger:          logger.With("component", "resolver"),
	})
	a.Catalog = catalog.New(a.Items, validator.New(), cfg.Upload.PlaceholderImageURL,
		catalog.WithLogger(logger.With("component", "catalog")))
	a.Claims = claims.New(a.Requests, a.Resolver, events,
		claims.WithLogger(logger.With("component", "claims")))
	a.Accounts = account.New(a.Profiles, a.Items, a.Requests, a.Backend, logger.With("component", "account"))

	return a, nil
}

func (a *App) openSQLite() error {
	db, err := database.New(a.Config.DB.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	ttl := time.Duration(a.Config.Auth.VerificationExpirationHours) * time.Hour
	if !a.Config.Auth.MockVerificationMode {
		a.Logger.Warn("the sqlite backend has no mailer; verification links are logged")
	}
	a.Backend = auth.NewLocal(db, ttl, a.Logger.With("component", "auth"),
		auth.WithLinkBase(a.Config.Server.PublicURL))
	a.Profiles, a.Items, a.Requests = db, db, db
	return nil
}

func (a *App) openFirebase(ctx context.Context) error {
	fb := a.Config.Firebase
	if fb.UseEmulator {
		// The admin SDKs pick emulators up from the environment.
		os.Setenv("FIREBASE_AUTH_EMULATOR_HOST", fb.EmulatorAuthHost)
		os.Setenv("FIRESTORE_EMULATOR_HOST", fb.EmulatorFirestoreHost)
	}

	var opts []option.ClientOption
	if fb.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(fb.CredentialsPath))
	}
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     fb.ProjectID,
		StorageBucket: fb.StorageBucket,
	}, opts...)
	if err != nil {
		return fmt.Errorf("initialize firebase: %w", err)
	}

	fs, err := firestore.Open(ctx, fbApp, fb.ProjectID, fb.FirestoreDatabase)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, fs.Close)
	a.Profiles, a.Items, a.Requests = fs, fs, fs

	emulatorHost := ""
	if fb.UseEmulator {
		emulatorHost = fb.EmulatorAuthHost
	}
	a.Backend, err = auth.NewFirebase(ctx, fbApp, auth.FirebaseOptions{
		APIKey:       fb.APIKey,
		EmulatorHost: emulatorHost,
	}, a.Logger.With("component", "auth"))
	if err != nil {
		return err
	}

	if fb.StorageBucket != "" && !fb.UseEmulator {
		a.Uploader, err = upload.NewFirebase(ctx, fbApp, fb.StorageBucket, int64(a.Config.Upload.MaxBytes), a.Logger.With("component", "upload"))
		if err != nil {
			return err
		}
	}
	return nil
}

// openRedis returns nil when Redis is not configured or not reachable.
func (a *App) openRedis(ctx context.Context) *redis.Client {
	if a.Config.Redis.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		a.Logger.Warn("invalid REDIS_URL, running without cache", "error", err)
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.Logger.Warn("redis unreachable, running without cache", "addr", opts.Addr, "error", err)
		client.Close()
		return nil
	}
	a.closers = append(a.closers, client.Close)
	a.Logger.Info("redis connected", "addr", opts.Addr)
	return client
}

// Handler builds the HTTP handlers over the wired services.
func (a *App) Handler() *handlers.Handler {
	return handlers.New(handlers.Deps{
		Config:   a.Config,
		Backend:  a.Backend,
		Resolver: a.Resolver,
		Catalog:  a.Catalog,
		Claims:   a.Claims,
		Accounts: a.Accounts,
		Tokens:   a.Tokens,
		Uploader: a.Uploader,
		Logger:   a.Logger.With("component", "http"),
	})
}

// ProvisionDemo creates the demo account if needed and resolves its
// profile. It is safe to run on every start.
func (a *App) ProvisionDemo(ctx context.Context) (session.Snapshot, error) {
	boot := session.New(auth.NewClient(a.Backend), a.Resolver, session.Options{
		Demo: session.Demo{
			Enabled:   a.Config.Demo.Enabled,
			StudentID: a.Config.Demo.StudentID,
			Password:  a.Config.Demo.Password,
		},
		Logger: a.Logger.With("component", "session"),
	})
	defer boot.Close()
	return boot.ProvisionDemo(ctx)
}

// PurgeExpiredTokens removes spent one-time tokens from backends that keep
// their own. Firebase manages its action codes, so it reports zero.
func (a *App) PurgeExpiredTokens(ctx context.Context) (int, error) {
	p, ok := a.Backend.(interface {
		PurgeExpiredTokens(ctx context.Context) (int, error)
	})
	if !ok {
		return 0, nil
	}
	return p.PurgeExpiredTokens(ctx)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
