package app

import (
	"context"
	"fmt"

	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/ledger"
	"github.com/drawpool-labs/jackpot-engine/internal/app/services/drawings"
	"github.com/drawpool-labs/jackpot-engine/internal/app/services/entropy"
	liquiditysvc "github.com/drawpool-labs/jackpot-engine/internal/app/services/liquidity"
	"github.com/drawpool-labs/jackpot-engine/internal/app/services/scheduler"
	"github.com/drawpool-labs/jackpot-engine/internal/app/storage"
	"github.com/drawpool-labs/jackpot-engine/internal/app/storage/memory"
	"github.com/drawpool-labs/jackpot-engine/internal/app/system"
	"github.com/drawpool-labs/jackpot-engine/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to
// the in-memory implementation.
type Stores struct {
	Drawings  storage.DrawingStore
	Tickets   storage.TicketStore
	Liquidity storage.LiquidityStore
}

// Options carries the tunable engine settings. Zero-value attachments
// keep the built-in defaults: crypto/rand entropy, in-process
// settlement lock, no event sink.
type Options struct {
	Drawing  drawings.Config
	PoolCap  uint64
	Schedule string

	Entropy entropy.Source
	Lock    drawings.SettleLock
	Events  drawings.EventSink
}

// Application ties the engine services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Liquidity *liquiditysvc.Service
	Drawings  *drawings.Service
	Scheduler *scheduler.Scheduler
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Drawings == nil {
		stores.Drawings = mem
	}
	if stores.Tickets == nil {
		stores.Tickets = mem
	}
	if stores.Liquidity == nil {
		stores.Liquidity = mem
	}

	pool := liquiditysvc.New(stores.Liquidity, ledger.Config{PoolCap: opts.PoolCap}, log)

	engine, err := drawings.New(stores.Drawings, stores.Tickets, pool, opts.Drawing, log)
	if err != nil {
		return nil, fmt.Errorf("build drawing engine: %w", err)
	}
	engine.AttachEntropy(opts.Entropy)
	engine.AttachLock(opts.Lock)
	engine.AttachEvents(opts.Events)

	sched, err := scheduler.New(engine, opts.Schedule, log)
	if err != nil {
		return nil, err
	}

	manager := system.NewManager()
	for _, name := range []string{"liquidity-pool", "drawing-engine"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	if err := manager.Register(sched); err != nil {
		return nil, fmt.Errorf("register %s: %w", sched.Name(), err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Liquidity: pool,
		Drawings:  engine,
		Scheduler: sched,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call
// before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start restores engine state from storage, opening the genesis
// drawing on a fresh store, then starts all registered services.
func (a *Application) Start(ctx context.Context) error {
	if err := a.Drawings.Restore(ctx); err != nil {
		return fmt.Errorf("restore engine state: %w", err)
	}
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
