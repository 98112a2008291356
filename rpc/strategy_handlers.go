package rpc

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"leverlend/native/strategy"
	"leverlend/native/vault"
	"leverlend/observability/metrics"
)

type positionResponse struct {
	ID                     uint64 `json:"id"`
	Owner                  string `json:"owner"`
	OwedToken              string `json:"owedToken"`
	HeldToken              string `json:"heldToken"`
	Collateral             string `json:"collateral"`
	CollateralIsSpentToken bool   `json:"collateralIsSpentToken"`
	Principal              string `json:"principal"`
	Allowance              string `json:"allowance"`
	Fees                   string `json:"fees"`
	DueFees                string `json:"dueFees"`
	CreatedAt              uint64 `json:"createdAt"`
	Open                   bool   `json:"open"`
}

func parsePositionID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := parsePositionID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	position, err := s.strategy.Position(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dueFees, err := s.strategy.DueFees(position)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		ID:                     position.ID,
		Owner:                  position.Owner.String(),
		OwedToken:              position.OwedToken,
		HeldToken:              position.HeldToken,
		Collateral:             formatAmount(position.Collateral),
		CollateralIsSpentToken: position.CollateralIsSpentToken,
		Principal:              formatAmount(position.Principal),
		Allowance:              formatAmount(position.Allowance),
		Fees:                   formatAmount(position.Fees),
		DueFees:                formatAmount(dueFees),
		CreatedAt:              position.CreatedAt,
		Open:                   position.Open(),
	})
}

type quoteRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	obtained, spent, err := s.strategy.Quote(req.From, req.To, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"obtained": formatAmount(obtained),
		"spent":    formatAmount(spent),
	})
}

type setRiskFactorRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Bps    uint64 `json:"bps"`
}

func (s *Server) handleSetRiskFactor(w http.ResponseWriter, r *http.Request) {
	var req setRiskFactorRequest
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

	if err := s.strategy.SetRiskFactor(caller, req.Token, req.Bps); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

type openPositionRequest struct {
	Trader                 string `json:"trader"`
	SpentToken             string `json:"spentToken"`
	ObtainedToken          string `json:"obtainedToken"`
	Collateral             string `json:"collateral"`
	CollateralIsSpentToken bool   `json:"collateralIsSpentToken"`
	MinObtained            string `json:"minObtained"`
	MaxSpent               string `json:"maxSpent"`
	Deadline               uint64 `json:"deadline"`
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	trader, err := parseAddress("trader", req.Trader)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	collateral, err := parseAmount("collateral", req.Collateral)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	minObtained, err := parseOptionalAmount("minObtained", req.MinObtained)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	maxSpent, err := parseAmount("maxSpent", req.MaxSpent)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	id, err := s.strategy.OpenPosition(trader, strategy.Order{
		SpentToken:             req.SpentToken,
		ObtainedToken:          req.ObtainedToken,
		Collateral:             collateral,
		CollateralIsSpentToken: req.CollateralIsSpentToken,
		MinObtained:            minObtained,
		MaxSpent:               maxSpent,
		Deadline:               req.Deadline,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Lending().ObservePosition("opened")
	s.publishVaultGauges(vault.NormalizeToken(req.SpentToken))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"events": s.drainEvents(),
	})
}

type closePositionRequest struct {
	Owner    string `json:"owner"`
	ID       uint64 `json:"id"`
	Slippage string `json:"slippage"`
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closePositionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	slippage, err := parseOptionalAmount("slippage", req.Slippage)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	payout, err := s.strategy.ClosePosition(owner, req.ID, slippage)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Lending().ObservePosition("closed")
	if position, err := s.strategy.Position(req.ID); err == nil {
		s.publishVaultGauges(position.OwedToken)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payout": formatAmount(payout),
		"events": s.drainEvents(),
	})
}

type editPositionRequest struct {
	Owner string `json:"owner"`
	ID    uint64 `json:"id"`
	TopUp string `json:"topUp"`
}

func (s *Server) handleEditPosition(w http.ResponseWriter, r *http.Request) {
	var req editPositionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	topUp, err := parseAmount("topUp", req.TopUp)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	if err := s.strategy.EditPosition(owner, req.ID, topUp); err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Lending().ObservePosition("edited")
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}
