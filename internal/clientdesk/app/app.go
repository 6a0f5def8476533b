package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/audit"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/service"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store/drivers/memory"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store/drivers/redis"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store/drivers/sqlite"
	"github.com/aussiebroadwan/clientdesk/pkg/clientsdk"
	"github.com/aussiebroadwan/clientdesk/pkg/cryptox"
	"github.com/aussiebroadwan/clientdesk/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	// AuthTokenKey is the local slot holding the bearer token.
	AuthTokenKey = "auth_token"
)

// Application holds the wired dependencies of one CLI invocation.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         store.Store // nil when the local store is disabled
	sdk        *clientsdk.Client
	amqp       *audit.AMQPSink
	dispatcher *audit.Dispatcher

	remote  *service.RemoteAPI
	clients *service.ClientRepository
}

// New wires the application. Logs go to logOut, stderr when nil.
func New(ctx context.Context, cfg Config, logOut io.Writer) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "clientdesk",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  logOut,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	if err := app.initAudit(); err != nil {
		_ = app.closeStore()
		return nil, err
	}

	app.initSDK(ctx)

	if err := app.initServices(); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	app.logger.Debug("clientdesk configured", slog.Any("config", cfg))
	return app, nil
}

func (app *Application) Logger() *slog.Logger               { return app.logger }
func (app *Application) Clients() *service.ClientRepository { return app.clients }

// Store returns the local store, or nil when it is disabled.
func (app *Application) Store() store.Store { return app.db }

// NewAdminReset builds a reset orchestrator asking confirmer before it runs.
// Progress is kept in the local store when there is one.
func (app *Application) NewAdminReset(confirmer service.Confirmer, form service.AdminForm) (*service.AdminReset, error) {
	var ledger service.ResetLedger
	if app.db != nil {
		ledger = service.SlotLedger{Slots: app.db.Slots()}
	}

	return service.NewAdminReset(service.AdminResetConfig{
		Users:     app.remote,
		Confirmer: confirmer,
		Ledger:    ledger,
		Form:      &form,
		Audit:     app.dispatcher,
	})
}

// Close flushes pending audit events and releases connections.
func (app *Application) Close(ctx context.Context) error {
	var errs []error

	if app.dispatcher != nil {
		if err := app.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush audit events: %w", err))
		}
	}
	if app.amqp != nil {
		if err := app.amqp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp: %w", err))
		}
	}
	if err := app.closeStore(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (app *Application) closeStore() error {
	if app.db == nil {
		return nil
	}
	if err := app.db.Close(); err != nil {
		return fmt.Errorf("close local store: %w", err)
	}
	app.db = nil
	return nil
}

// initStore opens the configured local store and applies its migrations
func (app *Application) initStore() error {
	var (
		db  store.Store
		err error
	)

	switch app.cfg.LocalStore {
	case StoreNone:
		app.logger.Info("local store disabled")
		return nil
	case StoreMemory:
		db = memory.NewStore()
	case StoreRedis:
		db, err = redis.NewStore(redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
	default:
		db, err = sqlite.NewStore(app.cfg.SQLiteFile)
	}
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply local store migrations: %w", err)
	}

	app.db = db
	app.logger.Debug("local store ready", slog.String("driver", app.cfg.LocalStore))
	return nil
}

func (app *Application) initAudit() error {
	var sink audit.Sink = audit.LogSink{Logger: app.logger}

	if app.cfg.AMQPURL != "" {
		amqpSink, err := audit.NewAMQPSink(app.cfg.AMQPURL, app.cfg.AuditQueue)
		if err != nil {
			return fmt.Errorf("failed to connect audit broker: %w", err)
		}
		app.amqp = amqpSink
		sink = amqpSink
	}

	app.dispatcher = audit.NewDispatcher(sink, app.logger, audit.DefaultQueueSize)
	return nil
}

// initSDK builds the HTTP client: bearer attachment on the outside, request
// logging underneath it.
func (app *Application) initSDK(ctx context.Context) {
	source := app.tokenSource()
	app.warnStaleToken(ctx, source)

	hc := &http.Client{
		Timeout: app.cfg.HTTPTimeout,
		Transport: &clientsdk.BearerTransport{
			Base:   slogx.NewTransport(nil, app.logger),
			Source: source,
		},
	}

	app.sdk = clientsdk.NewClient(app.cfg.APIURL, app.cfg.AuthAPIURL,
		clientsdk.WithHTTPClient(hc),
		clientsdk.WithRateLimit(app.cfg.RateLimit, app.cfg.RateBurst),
	)
	app.remote = service.NewRemoteAPI(app.sdk)
}

func (app *Application) initServices() error {
	routes, err := app.cfg.ParsedRoutes()
	if err != nil {
		return err
	}

	// A configured zero means no artificial latency.
	latency := app.cfg.LocalLatency
	if latency == 0 {
		latency = -1
	}

	var local store.Slots
	if app.db != nil {
		local = app.db.Slots()
	}

	app.clients, err = service.NewClientRepository(service.ClientRepositoryConfig{
		Remote:       app.remote,
		Local:        local,
		Routes:       routes,
		LocalLatency: latency,
		Audit:        app.dispatcher,
	})
	if err != nil {
		return fmt.Errorf("failed to build client repository: %w", err)
	}

	return nil
}

// tokenSource prefers the configured token and falls back to the token slot
// of the local store, read on every request so a refreshed token is picked
// up. It returns nil when there is no place a credential could come from.
func (app *Application) tokenSource() clientsdk.TokenSource {
	if app.cfg.AuthToken != "" {
		return clientsdk.StaticToken(app.cfg.AuthToken)
	}
	if app.db == nil {
		return nil
	}

	slots := app.db.Slots()
	logger := app.logger
	return clientsdk.TokenSourceFunc(func(ctx context.Context) (string, bool) {
		slot, err := slots.Get(ctx, AuthTokenKey)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logger.Warn("failed to read auth token", slog.Any("error", err))
			}
			return "", false
		}

		token := strings.TrimSpace(string(slot.Value))
		return token, token != ""
	})
}

func (app *Application) warnStaleToken(ctx context.Context, source clientsdk.TokenSource) {
	if source == nil {
		return
	}

	token, ok := source.Token(ctx)
	if !ok {
		app.logger.Debug("no bearer token configured")
		return
	}

	l := app.logger.With(slog.String("token_fp", cryptox.ShortFingerprint(token)))

	info, err := clientsdk.InspectToken(token)
	switch {
	case errors.Is(err, clientsdk.ErrOpaqueToken):
		l.Debug("bearer token is opaque")
	case err != nil:
		l.Warn("failed to inspect bearer token", slog.Any("error", err))
	case info.Expired(time.Now()):
		l.Warn("bearer token has expired, requests will likely be rejected",
			slog.Time("expires_at", info.ExpiresAt),
		)
	default:
		l.Debug("bearer token loaded", slog.String("subject", info.Subject))
	}
}
