package app

import (
	"context"
	"io"
	"testing"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/fixedpoint"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/payout"
	"github.com/drawpool-labs/jackpot-engine/internal/app/services/drawings"
	"github.com/drawpool-labs/jackpot-engine/pkg/logger"
)

func validDrawingConfig() drawings.Config {
	var params payout.Params
	params.PremiumWeight[11] = fixedpoint.Unit
	return drawings.Config{
		Drawing: drawing.Config{NormalMax: 20, BonusMax: 5, PickSize: 5, TicketPrice: 10_000000},
		Params:  params,
	}
}

func TestApplicationLifecycle(t *testing.T) {
	log := logger.NewDefault("app-test")
	log.SetOutput(io.Discard)

	application, err := New(Stores{}, Options{Drawing: validDrawingConfig()}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer application.Stop(ctx)

	current, err := application.Drawings.CurrentDrawing()
	if err != nil {
		t.Fatalf("CurrentDrawing: %v", err)
	}
	if current.ID != 0 || current.Status != drawing.StatusOpen {
		t.Fatalf("genesis drawing = %d %s", current.ID, current.Status)
	}

	if _, err := application.Liquidity.Deposit(ctx, "lp-1", 500_000000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := application.Drawings.PurchaseTicket(ctx, "alice", []int{1, 2, 3, 4, 5}, 2); err != nil {
		t.Fatalf("PurchaseTicket: %v", err)
	}

	if err := application.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestApplicationRejectsBadConfig(t *testing.T) {
	log := logger.NewDefault("app-test")
	log.SetOutput(io.Discard)

	_, err := New(Stores{}, Options{
		Drawing: drawings.Config{
			Drawing: drawing.Config{NormalMax: 10, BonusMax: 60, PickSize: 5, TicketPrice: 1},
		},
	}, log)
	if err == nil {
		t.Fatal("expected error for oversized number ranges")
	}

	_, err = New(Stores{}, Options{
		Drawing:  validDrawingConfig(),
		Schedule: "every leap year",
	}, log)
	if err == nil {
		t.Fatal("expected error for malformed schedule")
	}
}
