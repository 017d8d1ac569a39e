// Package httpapi exposes the engine over REST: public reads for
// drawings, tickets and the pool, token-guarded mutations, an admin
// surface for lifecycle and parameter control, and a websocket stream
// of drawing events.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	app "github.com/drawpool-labs/jackpot-engine/internal/app"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/ledger"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/payout"
	"github.com/drawpool-labs/jackpot-engine/internal/app/metrics"
	"github.com/drawpool-labs/jackpot-engine/internal/app/services/drawings"
	"github.com/drawpool-labs/jackpot-engine/pkg/logger"
)

// Config tunes the HTTP surface.
type Config struct {
	// AuthTokens guard mutating and admin endpoints. Empty disables
	// the guard.
	AuthTokens []string
	// RateLimit is requests per second per client; zero disables
	// limiting. RateBurst is the bucket size.
	RateLimit float64
	RateBurst int
	// AllowedOrigins for CORS; "*" allows everything.
	AllowedOrigins []string
	// AuditFile appends admin audit entries as JSONL when set.
	AuditFile string
}

// handler bundles HTTP endpoints for the engine services.
type handler struct {
	app   *app.Application
	audit *auditLog
	log   *logger.Logger
}

// NewHandler returns the assembled REST handler: router, CORS, rate
// limiting, admin audit trail and bearer auth. events may be nil when
// no websocket stream is wanted.
func NewHandler(application *app.Application, events *EventHub, cfg Config, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	sink, err := newFileAuditSink(cfg.AuditFile)
	if err != nil {
		log.WithError(err).Warn("audit file sink disabled")
	}
	h := &handler{app: application, audit: newAuditLog(200, sink), log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/drawings", h.listDrawings).Methods(http.MethodGet)
	r.HandleFunc("/drawings/current", h.currentDrawing).Methods(http.MethodGet)
	r.HandleFunc("/drawings/{drawing}", h.getDrawing).Methods(http.MethodGet)
	r.HandleFunc("/drawings/{drawing}/tickets", h.drawingTickets).Methods(http.MethodGet)
	r.HandleFunc("/drawings/{drawing}/payouts", h.drawingPayouts).Methods(http.MethodGet)

	r.HandleFunc("/tickets", h.purchaseTicket).Methods(http.MethodPost)
	r.HandleFunc("/tickets/{ticket}", h.getTicket).Methods(http.MethodGet)
	r.HandleFunc("/tickets/{ticket}/claim", h.claimTicket).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{account}/tickets", h.accountTickets).Methods(http.MethodGet)

	r.HandleFunc("/pool", h.poolState).Methods(http.MethodGet)
	r.HandleFunc("/pool/positions", h.listPositions).Methods(http.MethodGet)
	r.HandleFunc("/pool/positions/{provider}", h.getPosition).Methods(http.MethodGet)
	r.HandleFunc("/pool/accumulators/{drawing}", h.getAccumulator).Methods(http.MethodGet)
	r.HandleFunc("/pool/deposits", h.deposit).Methods(http.MethodPost)
	r.HandleFunc("/pool/withdrawals", h.initiateWithdraw).Methods(http.MethodPost)
	r.HandleFunc("/pool/withdrawals/finalize", h.finalizeWithdraw).Methods(http.MethodPost)

	r.HandleFunc("/stats", h.stats).Methods(http.MethodGet)

	r.HandleFunc("/admin/drawings/open", h.openDrawing).Methods(http.MethodPost)
	r.HandleFunc("/admin/drawings/close", h.closeDrawing).Methods(http.MethodPost)
	r.HandleFunc("/admin/drawings/settle", h.settleDrawing).Methods(http.MethodPost)
	r.HandleFunc("/admin/halt", h.halt).Methods(http.MethodPost)
	r.HandleFunc("/admin/unwind/{provider}", h.unwind).Methods(http.MethodPost)
	r.HandleFunc("/admin/params/tiers", h.getTierParams).Methods(http.MethodGet)
	r.HandleFunc("/admin/params/tiers", h.putTierParams).Methods(http.MethodPut)
	r.HandleFunc("/admin/config/drawing", h.getDrawingConfig).Methods(http.MethodGet)
	r.HandleFunc("/admin/config/drawing", h.putDrawingConfig).Methods(http.MethodPut)
	r.HandleFunc("/admin/audit", h.auditEntries).Methods(http.MethodGet)

	if events != nil {
		r.Handle("/ws/events", events).Methods(http.MethodGet)
	}

	var out http.Handler = r
	out = requireAuth(cfg.AuthTokens, out)
	out = h.audit.record(out)
	if cfg.RateLimit > 0 {
		out = newRateLimiter(cfg.RateLimit, cfg.RateBurst).handler(out)
	}
	out = newCORSMiddleware(cfg.AllowedOrigins).handler(out)
	return out
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listDrawings(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Drawings.ListDrawings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) currentDrawing(w http.ResponseWriter, r *http.Request) {
	d, err := h.app.Drawings.CurrentDrawing()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) getDrawing(w http.ResponseWriter, r *http.Request) {
	id, err := drawingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := h.app.Drawings.GetDrawing(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) drawingTickets(w http.ResponseWriter, r *http.Request) {
	id, err := drawingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tickets, err := h.app.Drawings.ListDrawingTickets(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *handler) drawingPayouts(w http.ResponseWriter, r *http.Request) {
	id, err := drawingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payouts, err := h.app.Drawings.Payouts(r.Context(), id)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, drawings.ErrNotSettled) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, payouts)
}

func (h *handler) purchaseTicket(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccountID string `json:"account_id"`
		Numbers   []int  `json:"numbers"`
		Bonus     int    `json:"bonus"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tk, err := h.app.Drawings.PurchaseTicket(r.Context(), payload.AccountID, payload.Numbers, payload.Bonus)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, tk)
}

func (h *handler) getTicket(w http.ResponseWriter, r *http.Request) {
	tk, err := h.app.Drawings.GetTicket(r.Context(), mux.Vars(r)["ticket"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, tk)
}

func (h *handler) claimTicket(w http.ResponseWriter, r *http.Request) {
	tk, err := h.app.Drawings.ClaimPrize(r.Context(), mux.Vars(r)["ticket"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tk)
}

func (h *handler) accountTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.app.Drawings.ListAccountTickets(r.Context(), mux.Vars(r)["account"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *handler) poolState(w http.ResponseWriter, r *http.Request) {
	state, err := h.app.Liquidity.DrawingState(r.Context(), h.app.Liquidity.CurrentDrawing())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handler) listPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.app.Liquidity.Positions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *handler) getPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.app.Liquidity.Position(r.Context(), mux.Vars(r)["provider"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (h *handler) getAccumulator(w http.ResponseWriter, r *http.Request) {
	id, err := drawingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	acc, err := h.app.Liquidity.Accumulator(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Provider string `json:"provider"`
		Amount   uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pos, err := h.app.Liquidity.Deposit(r.Context(), payload.Provider, payload.Amount)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (h *handler) initiateWithdraw(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Provider string `json:"provider"`
		Shares   uint64 `json:"shares"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pos, err := h.app.Liquidity.InitiateWithdraw(r.Context(), payload.Provider, payload.Shares)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (h *handler) finalizeWithdraw(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Provider string `json:"provider"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	amount, err := h.app.Liquidity.FinalizeWithdraw(r.Context(), payload.Provider)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Drawings.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) openDrawing(w http.ResponseWriter, r *http.Request) {
	d, err := h.app.Drawings.OpenDrawing(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *handler) closeDrawing(w http.ResponseWriter, r *http.Request) {
	d, err := h.app.Drawings.CloseDrawing(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) settleDrawing(w http.ResponseWriter, r *http.Request) {
	d, err := h.app.Drawings.Settle(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) halt(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Drawings.Halt(r.Context()); err != nil {
		status := statusFor(err)
		if errors.Is(err, drawings.ErrHalted) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"halted": true})
}

func (h *handler) unwind(w http.ResponseWriter, r *http.Request) {
	amount, err := h.app.Drawings.EmergencyUnwind(r.Context(), mux.Vars(r)["provider"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

func (h *handler) getTierParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Drawings.TierParams())
}

func (h *handler) putTierParams(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MinPayout       uint64   `json:"min_payout"`
		ReserveFraction uint64   `json:"reserve_fraction"`
		Eligible        []int    `json:"eligible"`
		Weights         []uint64 `json:"weights"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(payload.Weights) != ticket.NumTiers {
		writeError(w, http.StatusBadRequest, fmt.Errorf("weights: got %d entries, want %d", len(payload.Weights), ticket.NumTiers))
		return
	}

	params := payout.Params{
		MinPayout:                    payload.MinPayout,
		PremiumMinAllocationFraction: payload.ReserveFraction,
	}
	copy(params.PremiumWeight[:], payload.Weights)
	for _, tier := range payload.Eligible {
		if tier < 0 || tier >= ticket.NumTiers {
			writeError(w, http.StatusBadRequest, fmt.Errorf("eligible tier %d out of range", tier))
			return
		}
		params.MinPayoutEligible[tier] = true
	}

	if err := h.app.Drawings.UpdateTierParams(params); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Drawings.TierParams())
}

func (h *handler) getDrawingConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Drawings.DrawingConfig())
}

func (h *handler) putDrawingConfig(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NormalMax   int    `json:"normal_max"`
		BonusMax    int    `json:"bonus_max"`
		PickSize    int    `json:"pick_size"`
		TicketPrice uint64 `json:"ticket_price"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg := drawing.Config{
		NormalMax:   payload.NormalMax,
		BonusMax:    payload.BonusMax,
		PickSize:    payload.PickSize,
		TicketPrice: payload.TicketPrice,
	}
	if err := h.app.Drawings.SetDrawingConfig(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Drawings.DrawingConfig())
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func drawingID(r *http.Request) (uint64, error) {
	raw := mux.Vars(r)["drawing"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid drawing id %q", raw)
	}
	return id, nil
}

// statusFor maps service errors onto HTTP statuses: halted engine is
// unavailable, missing records are 404, lifecycle violations conflict,
// anything else is a bad request.
func statusFor(err error) int {
	switch {
	case errors.Is(err, drawings.ErrHalted):
		return http.StatusServiceUnavailable
	case errors.Is(err, drawings.ErrNoDrawing),
		errors.Is(err, ledger.ErrNoPosition),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, drawings.ErrSalesClosed),
		errors.Is(err, drawings.ErrNotClosed),
		errors.Is(err, drawings.ErrNotSettled),
		errors.Is(err, drawings.ErrAlreadyClaimed),
		errors.Is(err, drawings.ErrSettlementLocked),
		errors.Is(err, drawings.ErrNotHalted),
		errors.Is(err, ledger.ErrAlreadySettled),
		errors.Is(err, payout.ErrAlreadySettled):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
