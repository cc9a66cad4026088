package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/travion/travion-go/internal/store"
	"github.com/travion/travion-go/internal/store/sqlite"
	"github.com/travion/travion-go/pkg/apiclient"
	"github.com/travion/travion-go/pkg/slogx"
	"github.com/travion/travion-go/pkg/travion"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the credential store, the API client and the services
// into a ready-to-use session.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db    *sqlite.Store
	kv    store.KV
	creds *travion.Credentials
	api   *apiclient.Client

	// Services
	authService *travion.AuthService
	userService *travion.UserService
	session     *travion.Session
}

// New creates an Application with all dependencies initialized. The session
// is not rehydrated yet; call Session().InitializeAuth for that.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "travion",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initClient(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initServices()

	return app, nil
}

// Session returns the process-wide session store.
func (app *Application) Session() *travion.Session { return app.session }

// Auth returns the authentication service.
func (app *Application) Auth() *travion.AuthService { return app.authService }

// Users returns the user resource service.
func (app *Application) Users() *travion.UserService { return app.userService }

// Credentials returns the credential utility.
func (app *Application) Credentials() *travion.Credentials { return app.creds }

// API returns the configured HTTP client.
func (app *Application) API() *apiclient.Client { return app.api }

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Close releases the credential store.
func (app *Application) Close() error {
	if err := app.kv.Close(); err != nil {
		app.logger.Error("error closing credential store", "error", err)
		return err
	}
	return nil
}

// initStore opens the SQLite credential store, applies migrations and wraps
// it in the at-rest encryption layer.
func (app *Application) initStore() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", app.cfg.DatabaseFile)
	db, err := sqlite.New(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply store migrations: %w", err)
	}

	secret, err := store.LoadMasterSecret(app.cfg.MasterKeyPath)
	if err != nil {
		_ = db.Close()
		return err
	}
	sealed, err := store.NewSealed(db, secret)
	if err != nil {
		_ = db.Close()
		return err
	}
	app.kv = sealed

	app.logger.Info("credential store ready", "file", app.cfg.DatabaseFile)
	return nil
}

// initClient builds the shared API client from the resolved base URL.
func (app *Application) initClient() error {
	app.creds = travion.NewCredentials(app.kv,
		travion.WithCredentialLogger(app.logger),
	)

	var limiter *rate.Limiter
	if app.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(app.cfg.RateLimit), app.cfg.RateBurst)
	}

	api, err := apiclient.New(apiclient.Config{
		BaseURL:       app.cfg.BaseURL(),
		APIPrefix:     app.cfg.APIPrefix,
		Timeout:       app.cfg.Timeout,
		RetryAttempts: app.cfg.RetryAttempts,
		RetryDelay:    app.cfg.RetryDelay,
		UseCookies:    app.cfg.UseCookies,
		Credentials:   app.creds,
		Limiter:       limiter,
		Logger:        app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize API client: %w", err)
	}
	app.api = api

	app.logger.Info("api client ready", "base_url", app.cfg.BaseURL(), "prefix", app.cfg.APIPrefix)
	return nil
}

// initServices initializes the resource services and the session store.
func (app *Application) initServices() {
	app.authService = travion.NewAuthService(app.api, app.creds)
	app.userService = travion.NewUserService(app.api, app.creds)
	app.session = travion.NewSession(app.authService, app.userService, app.creds)
}

// Rehydrate restores the persisted session state at startup.
func (app *Application) Rehydrate(ctx context.Context) {
	app.session.InitializeAuth(ctx)

	state := app.session.State()
	app.logger.Info("session rehydrated",
		"authenticated", state.IsAuthenticated,
		"onboarded", state.HasSeenOnboarding,
	)
}
