// Package runtime wires configuration, storage, the drawing engine and
// the HTTP server into one runnable unit.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	redis "github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/drawpool-labs/jackpot-engine/internal/app"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/httpapi"
	"github.com/drawpool-labs/jackpot-engine/internal/app/metrics"
	"github.com/drawpool-labs/jackpot-engine/internal/app/services/drawings"
	"github.com/drawpool-labs/jackpot-engine/internal/app/services/entropy"
	"github.com/drawpool-labs/jackpot-engine/internal/app/storage/postgres"
	"github.com/drawpool-labs/jackpot-engine/internal/config"
	"github.com/drawpool-labs/jackpot-engine/internal/platform/migrations"
	"github.com/drawpool-labs/jackpot-engine/pkg/logger"
)

// Application owns every process-level dependency and manages the HTTP
// server lifecycle around the engine.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	events     *httpapi.EventHub
	httpServer *http.Server
	db         *sql.DB
	redis      *redis.Client
}

// NewApplication constructs an application from the environment.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig constructs an application from an already
// validated configuration.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	stores, db, err := buildStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}
	fail := func(err error) (*Application, error) {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	params, err := cfg.TierParams()
	if err != nil {
		return fail(fmt.Errorf("tier parameters: %w", err))
	}
	opts := app.Options{
		Drawing: drawings.Config{
			Drawing: drawing.Config{
				NormalMax:   cfg.Drawing.NormalMax,
				BonusMax:    cfg.Drawing.BonusMax,
				PickSize:    cfg.Drawing.PickSize,
				TicketPrice: cfg.Drawing.TicketPrice,
			},
			ProtocolFeeFraction: cfg.Drawing.FeeFraction,
			Params:              params,
		},
		PoolCap:  cfg.Pool.Cap,
		Schedule: cfg.Drawing.Schedule,
	}

	if cfg.Entropy.Source == "beacon" {
		client := &http.Client{Timeout: time.Duration(cfg.Entropy.BeaconTimeout) * time.Second}
		beacon, err := entropy.NewBeaconSource(client, cfg.Entropy.BeaconURL, cfg.Entropy.BeaconPath, log)
		if err != nil {
			return fail(fmt.Errorf("entropy beacon: %w", err))
		}
		opts.Entropy = beacon
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts.Lock = drawings.NewRedisLock(redisClient, time.Duration(cfg.Redis.LockTTL)*time.Second)
	}

	events := httpapi.NewEventHub(log)
	opts.Events = events

	application, err := app.New(stores, opts, log)
	if err != nil {
		return fail(err)
	}
	if err := application.Attach(events); err != nil {
		return fail(fmt.Errorf("attach event hub: %w", err))
	}

	handler := httpapi.NewHandler(application, events, httpapi.Config{
		AuthTokens:     cfg.Auth.TokenList(),
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		AllowedOrigins: cfg.Server.OriginList(),
		AuditFile:      cfg.Server.AuditFile,
	}, log)
	handler = metrics.InstrumentHandler(handler)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		events:     events,
		httpServer: httpSrv,
		db:         db,
		redis:      redisClient,
	}, nil
}

// App exposes the wired engine, mainly for tests and embedders.
func (a *Application) App() *app.Application {
	return a.app
}

// Run starts the engine services and the HTTP server, then blocks
// until the context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains the HTTP server, stops the engine services and
// closes external handles.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := time.Duration(a.cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.app.Stop(shutdownCtx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("stop engine: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return firstErr
}

// buildStores returns the configured persistence layer. A blank
// database URL runs the engine on memory.
func buildStores(cfg *config.Config) (app.Stores, *sql.DB, error) {
	if cfg.Database.URL == "" {
		return app.Stores{}, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return app.Stores{}, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := postgres.New(db)
	return app.Stores{Drawings: store, Tickets: store, Liquidity: store}, db, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
