package metrics

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jackpot",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jackpot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jackpot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ticketsSold = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jackpot",
			Subsystem: "tickets",
			Name:      "sold_total",
			Help:      "Total number of tickets sold.",
		},
		[]string{"duplicate"},
	)

	ticketClaims = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jackpot",
			Subsystem: "tickets",
			Name:      "claims_total",
			Help:      "Total number of winning tickets claimed.",
		},
	)

	ticketClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jackpot",
			Subsystem: "tickets",
			Name:      "claimed_total",
			Help:      "Total amount paid out to claimed tickets.",
		},
	)

	drawingSettlements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jackpot",
			Subsystem: "drawings",
			Name:      "settlements_total",
			Help:      "Total number of settled drawings.",
		},
	)

	settlementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jackpot",
			Subsystem: "drawings",
			Name:      "settlement_duration_seconds",
			Help:      "Duration of drawing settlements.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	prizePool = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jackpot",
			Subsystem: "drawings",
			Name:      "prize_pool",
			Help:      "Prize pool of the most recently settled drawing.",
		},
	)

	userPayouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jackpot",
			Subsystem: "drawings",
			Name:      "payouts_total",
			Help:      "Total payout owed to winning tickets across all settlements.",
		},
	)

	poolValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jackpot",
			Subsystem: "pool",
			Name:      "value",
			Help:      "Current total value of the liquidity pool.",
		},
	)

	poolDeposits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jackpot",
			Subsystem: "pool",
			Name:      "deposits_total",
			Help:      "Total amount deposited by liquidity providers.",
		},
	)

	poolWithdrawals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jackpot",
			Subsystem: "pool",
			Name:      "withdrawals_total",
			Help:      "Total amount withdrawn by liquidity providers.",
		},
	)

	sharePrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jackpot",
			Subsystem: "pool",
			Name:      "share_price",
			Help:      "Share price accumulator of the most recently settled drawing, 1.0 at genesis.",
		},
	)

	schedulerCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jackpot",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Total number of scheduled drawing cycles.",
		},
		[]string{"success"},
	)

	schedulerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jackpot",
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of scheduled drawing cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ticketsSold,
		ticketClaims,
		ticketClaimed,
		drawingSettlements,
		settlementDuration,
		prizePool,
		userPayouts,
		poolValue,
		poolDeposits,
		poolWithdrawals,
		sharePrice,
		schedulerCycles,
		schedulerDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordTicketSale records a sold ticket.
func RecordTicketSale(duplicate bool) {
	label := "false"
	if duplicate {
		label = "true"
	}
	ticketsSold.WithLabelValues(label).Inc()
}

// RecordClaim records a successful prize claim.
func RecordClaim(amount uint64) {
	ticketClaims.Inc()
	ticketClaimed.Add(float64(amount))
}

// RecordSettlement records metrics for a settled drawing.
func RecordSettlement(duration time.Duration, pool, payout uint64) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	drawingSettlements.Inc()
	settlementDuration.Observe(duration.Seconds())
	prizePool.Set(float64(pool))
	userPayouts.Add(float64(payout))
}

// SetPoolValue updates the liquidity pool value gauge.
func SetPoolValue(value uint64) {
	poolValue.Set(float64(value))
}

// SetSharePrice updates the share price gauge from a settled
// accumulator in the 10^18 fraction scale.
func SetSharePrice(price *big.Int) {
	if price == nil {
		return
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(price), big.NewFloat(1e18)).Float64()
	sharePrice.Set(f)
}

// RecordPoolDeposit records an accepted liquidity deposit.
func RecordPoolDeposit(amount uint64) {
	poolDeposits.Add(float64(amount))
}

// RecordPoolWithdrawal records a paid-out liquidity withdrawal.
func RecordPoolWithdrawal(amount uint64) {
	poolWithdrawals.Add(float64(amount))
}

// RecordDrawingCycle records metrics for a scheduled close-and-settle cycle.
func RecordDrawingCycle(duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	result := "false"
	if success {
		result = "true"
	}
	schedulerCycles.WithLabelValues(result).Inc()
	schedulerDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "drawings":
		if len(parts) == 1 {
			return "/drawings"
		}
		if parts[1] == "current" {
			return "/drawings/current"
		}
		if len(parts) == 2 {
			return "/drawings/:drawing"
		}
		return "/drawings/:drawing/" + parts[2]
	case "tickets":
		if len(parts) == 1 {
			return "/tickets"
		}
		if len(parts) == 2 {
			return "/tickets/:ticket"
		}
		return "/tickets/:ticket/" + parts[2]
	case "accounts":
		if len(parts) == 1 {
			return "/accounts"
		}
		if len(parts) == 2 {
			return "/accounts/:account"
		}
		return "/accounts/:account/" + parts[2]
	case "pool":
		if len(parts) >= 3 && parts[1] == "positions" {
			return "/pool/positions/:provider"
		}
		if len(parts) >= 2 {
			return "/pool/" + parts[1]
		}
		return "/pool"
	case "admin":
		if len(parts) >= 2 && parts[1] == "unwind" {
			return "/admin/unwind/:provider"
		}
		return "/" + strings.Join(parts, "/")
	default:
		return "/" + parts[0]
	}
}
