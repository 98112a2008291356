package rpc

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"leverlend/observability/metrics"
)

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	score, err := s.liquidator.Score(s.strategy.Address(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           id,
		"score":        score.String(),
		"liquidatable": score.Sign() >= 0,
	})
}

type liquidateRequest struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

func (s *Server) handleLiquidateSingle(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	if err := s.liquidator.LiquidateSingle(caller, s.strategy.Address(), req.ID); err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Lending().ObserveLiquidation("liquidate")
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

type marginCallRequest struct {
	Caller      string `json:"caller"`
	ID          uint64 `json:"id"`
	ExtraMargin string `json:"extraMargin"`
}

func (s *Server) handleMarginCall(w http.ResponseWriter, r *http.Request) {
	var req marginCallRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	extraMargin, err := parseAmount("extraMargin", req.ExtraMargin)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	if err := s.liquidator.MarginCall(caller, s.strategy.Address(), req.ID, extraMargin); err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Lending().ObserveLiquidation("marginCall")
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

type purchaseRequest struct {
	Caller   string `json:"caller"`
	ID       uint64 `json:"id"`
	MaxPrice string `json:"maxPrice"`
}

func (s *Server) handlePurchaseAssets(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	maxPrice, err := parseAmount("maxPrice", req.MaxPrice)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	if err := s.liquidator.PurchaseAssets(caller, s.strategy.Address(), req.ID, maxPrice); err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Lending().ObserveLiquidation("purchase")
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}
