//go:build integration && postgres

package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/drawpool-labs/jackpot-engine/internal/app"
	"github.com/drawpool-labs/jackpot-engine/internal/app/storage/postgres"
	"github.com/drawpool-labs/jackpot-engine/internal/platform/migrations"
)

// Integration test against Postgres to ensure migrations plus the core
// drawing flow work with real persistence.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	ctx := context.Background()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	for _, table := range []string{
		"jackpot_tickets", "jackpot_accumulators", "jackpot_drawing_states",
		"jackpot_positions", "jackpot_drawings",
	} {
		if _, err := db.ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}

	store := postgres.New(db)
	application, err := app.New(app.Stores{
		Drawings:  store,
		Tickets:   store,
		Liquidity: store,
	}, app.Options{
		Drawing: testDrawingConfig(),
		Entropy: fixedSource{numbers: []int{1, 2, 3, 4, 5}, bonus: 2},
	}, testLogger())
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(ctx) })

	handler := NewHandler(application, nil, Config{
		AuthTokens:     []string{testAuthToken},
		AllowedOrigins: []string{"*"},
	}, testLogger())
	server := httptest.NewServer(handler)
	defer server.Close()
	client := server.Client()

	post := func(path, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, server.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+testAuthToken)
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		return resp
	}
	decode := func(resp *http.Response) map[string]any {
		t.Helper()
		defer resp.Body.Close()
		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out
	}

	resp := post("/pool/deposits", `{"provider":"pg-lp","amount":1000000000}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = post("/tickets", `{"account_id":"pg-alice","numbers":[1,2,3,4,5],"bonus":2}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("purchase status: %d", resp.StatusCode)
	}
	ticketID, _ := decode(resp)["ID"].(string)
	if ticketID == "" {
		t.Fatal("ticket ID missing")
	}

	resp = post("/admin/drawings/close", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = post("/admin/drawings/settle", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settle status: %d", resp.StatusCode)
	}
	settled := decode(resp)
	if settled["Status"] != "settled" {
		t.Fatalf("settle state: %v", settled["Status"])
	}

	resp = post("/tickets/"+ticketID+"/claim", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status: %d", resp.StatusCode)
	}
	claimed := decode(resp)
	if claimed["Claimed"] != true {
		t.Fatal("ticket not claimed")
	}

	// The claim must be visible through a second store built on the
	// same database.
	restoredTicket, err := postgres.New(db).GetTicket(ctx, ticketID)
	if err != nil {
		t.Fatalf("reload ticket: %v", err)
	}
	if !restoredTicket.Claimed || restoredTicket.ClaimedAmount == 0 {
		t.Fatalf("persisted ticket = %+v", restoredTicket)
	}

	if resp, err := client.Get(server.URL + "/healthz"); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz failed: %v", err)
	}
}
