package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/config"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/credential"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/gateway"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/issuer"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/logging"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/metrics"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/session"
)

// App is the wired client for one command invocation.
type App struct {
	Config   *config.AppConfig
	Logger   *slog.Logger
	Store    credential.Store
	Gateway  *gateway.Gateway
	Session  *session.Manager
	Registry *prometheus.Registry
	closers  []func() error
}

// NewApp validates cfg and wires store, issuer, refresh protocol, gateway and
// session manager. Logs go to logOut.
func NewApp(ctx context.Context, cfg *config.AppConfig, logOut io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.GetLogLevel(), cfg.GetLogFormat(), logOut)
	if err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	app.Store, err = app.openStore(ctx)
	if err != nil {
		return nil, err
	}

	collectors := metrics.New(app.Registry)
	iss := issuer.NewClient(cfg.GetAPIBase(), cfg.GetRequestTimeout())
	refresher := gateway.NewRefreshProtocol(iss, app.Store, gateway.RefreshConfig{
		Logger:  logger,
		Metrics: collectors,
		Timeout: cfg.GetRefreshTimeout(),
	})
	app.Gateway = gateway.New(app.Store, refresher, gateway.Config{
		BaseURL:    cfg.GetAPIBase(),
		HTTPClient: &http.Client{Timeout: cfg.GetRequestTimeout()},
		Logger:     logger,
		Metrics:    collectors,
	})
	app.Session = session.NewManager(iss, app.Gateway, app.Store, logger)

	return app, nil
}

func (a *App) openStore(ctx context.Context) (credential.Store, error) {
	switch a.Config.GetStore() {
	case config.StoreMemory:
		return credential.NewMemoryStore(), nil
	case config.StoreRedis:
		client, err := credential.NewRedisClient(ctx, a.Config.GetRedisURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return credential.NewRedisStore(client, a.Config.GetRedisPrefix(), a.Logger), nil
	default:
		store, err := credential.NewFileStore(a.Config.GetStorePath(), a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential file: %w", err)
		}
		return store, nil
	}
}

// Close releases backend connections.
func (a *App) Close() error {
	var firstErr error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// newApp builds an App from the command's flags, environment and config file.
func (o *rootOptions) newApp(cmd *cobra.Command) (*App, error) {
	cfg := config.Load(o.v)
	if o.verbose {
		o.v.Set(config.KeyLogLevel, "debug")
		cfg = config.Load(o.v)
	}
	return NewApp(cmd.Context(), cfg, cmd.ErrOrStderr())
}

// run wires an App, runs fn with it and prints metrics when asked.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	app, err := o.newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	runErr := fn(cmd.Context(), app)

	if o.showMetrics {
		if err := renderMetrics(cmd.OutOrStdout(), app.Registry); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func bootstrapLogger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
}
