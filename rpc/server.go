package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leverlend/core/events"
	"leverlend/exchange"
	"leverlend/native/liquidator"
	"leverlend/native/strategy"
	"leverlend/native/vault"
	"leverlend/observability/metrics"
	"leverlend/state"
)

// Server exposes the protocol engines over HTTP. All mutating handlers share
// a single mutex so enforcement actions and position updates apply in a
// strict global order.
type Server struct {
	vault      *vault.Engine
	strategy   *strategy.Engine
	liquidator *liquidator.Engine
	manager    *state.Manager
	dealer     *exchange.Dealer
	recorder   *events.Recorder
	log        *slog.Logger

	mu    sync.Mutex
	clock func() uint64
}

// NewServer wires the engines into an HTTP surface.
func NewServer(v *vault.Engine, s *strategy.Engine, l *liquidator.Engine, m *state.Manager, d *exchange.Dealer, rec *events.Recorder, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		vault:      v,
		strategy:   s,
		liquidator: l,
		manager:    m,
		dealer:     d,
		recorder:   rec,
		log:        log,
	}
}

// SetClock installs the wall-clock source the server stamps onto the
// engines before every operation. Tests leave it unset and drive engine
// time directly.
func (s *Server) SetClock(clock func() uint64) {
	s.clock = clock
}

// lock acquires the global operation mutex and syncs engine time. The
// returned func releases the mutex.
func (s *Server) lock() func() {
	s.mu.Lock()
	if s.clock != nil {
		now := s.clock()
		s.vault.SetTime(now)
		s.strategy.SetTime(now)
	}
	return s.mu.Unlock
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/vault", func(vr chi.Router) {
		vr.Use(instrument("vault"))
		vr.Get("/{token}", s.handleVaultState)
		vr.Get("/{token}/claimable/{address}", s.handleClaimable)
		vr.Post("/whitelist", s.handleWhitelist)
		vr.Post("/fees", s.handleSetFees)
		vr.Post("/insurance-ratio", s.handleSetInsuranceRatio)
		vr.Post("/unlock-time", s.handleSetUnlockTime)
		vr.Post("/lock", s.handleSetTokenLock)
		vr.Post("/stake", s.handleStake)
		vr.Post("/unstake", s.handleUnstake)
		vr.Post("/boost", s.handleBoost)
		vr.Post("/unboost", s.handleUnboost)
		vr.Post("/rebalance", s.handleRebalance)
		vr.Post("/strategies/add", s.handleAddStrategy)
		vr.Post("/strategies/remove", s.handleRemoveStrategy)
	})

	r.Route("/v1/positions", func(pr chi.Router) {
		pr.Use(instrument("strategy"))
		pr.Get("/{id}", s.handleGetPosition)
		pr.Post("/quote", s.handleQuote)
		pr.Post("/risk-factor", s.handleSetRiskFactor)
		pr.Post("/open", s.handleOpenPosition)
		pr.Post("/close", s.handleClosePosition)
		pr.Post("/edit", s.handleEditPosition)
	})

	r.Route("/v1/exchange", func(er chi.Router) {
		er.Use(instrument("exchange"))
		er.Get("/balance", s.handleBalance)
		er.Post("/price", s.handleSetPrice)
		er.Post("/faucet", s.handleFaucet)
	})

	r.Route("/v1/liquidations", func(lr chi.Router) {
		lr.Use(instrument("liquidator"))
		lr.Get("/score/{id}", s.handleScore)
		lr.Post("/single", s.handleLiquidateSingle)
		lr.Post("/margin-call", s.handleMarginCall)
		lr.Post("/purchase", s.handlePurchaseAssets)
	})

	return r
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// publishVaultGauges refreshes the exported gauges for a vault token after a
// balance-moving operation. The caller must hold the server mutex.
func (s *Server) publishVaultGauges(token string) {
	record, err := s.vault.State(token)
	if err != nil || record == nil {
		return
	}
	total, err := s.vault.TotalAssets(token)
	if err != nil {
		return
	}
	lending := metrics.Lending()
	lending.SetVaultAssets(token, total)
	lending.SetNetLoans(token, record.NetLoans)
	lending.SetInsuranceReserve(token, record.InsuranceReserveBalance)
}

// drainEvents collects the events emitted since the last call. The caller
// must hold the server mutex.
func (s *Server) drainEvents() []eventPayload {
	if s.recorder == nil {
		return nil
	}
	emitted := s.recorder.Events()
	s.recorder.Reset()
	payloads := make([]eventPayload, 0, len(emitted))
	for _, evt := range emitted {
		payloads = append(payloads, eventPayload{Type: evt.Type, Attributes: evt.Attributes})
	}
	return payloads
}
