package rpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"leverlend/native/vault"
)

type vaultStateResponse struct {
	Token                    string `json:"token"`
	Supported                bool   `json:"supported"`
	Locked                   bool   `json:"locked"`
	BaseFeeBps               uint64 `json:"baseFeeBps"`
	FixedFeeBps              uint64 `json:"fixedFeeBps"`
	InsuranceReserveRatioBps uint64 `json:"insuranceReserveRatioBps"`
	MinimumMargin            string `json:"minimumMargin"`
	Cap                      string `json:"cap"`
	NetLoans                 string `json:"netLoans"`
	InsuranceReserveBalance  string `json:"insuranceReserveBalance"`
	CurrentProfits           string `json:"currentProfits"`
	BoostedAmount            string `json:"boostedAmount"`
	TotalShares              string `json:"totalShares"`
	OptimalRatioBps          uint64 `json:"optimalRatioBps"`
	LatestRepay              uint64 `json:"latestRepay"`
	UnlockTime               uint64 `json:"unlockTime"`
	TotalAssets              string `json:"totalAssets"`
	FreeLiquidity            string `json:"freeLiquidity"`
	LockedProfits            string `json:"lockedProfits"`
}

func (s *Server) handleVaultState(w http.ResponseWriter, r *http.Request) {
	token := vault.NormalizeToken(chi.URLParam(r, "token"))

	defer s.lock()()

	record, err := s.vault.State(token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	totalAssets, err := s.vault.TotalAssets(token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	freeLiquidity, err := s.vault.FreeLiquidity(token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	lockedProfits, err := s.vault.LockedProfits(token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vaultStateResponse{
		Token:                    token,
		Supported:                record.Supported,
		Locked:                   record.Locked,
		BaseFeeBps:               record.BaseFeeBps,
		FixedFeeBps:              record.FixedFeeBps,
		InsuranceReserveRatioBps: record.InsuranceReserveRatioBps,
		MinimumMargin:            formatAmount(record.MinimumMargin),
		Cap:                      formatAmount(record.Cap),
		NetLoans:                 formatAmount(record.NetLoans),
		InsuranceReserveBalance:  formatAmount(record.InsuranceReserveBalance),
		CurrentProfits:           formatAmount(record.CurrentProfits),
		BoostedAmount:            formatAmount(record.BoostedAmount),
		TotalShares:              formatAmount(record.TotalShares),
		OptimalRatioBps:          record.OptimalRatioBps,
		LatestRepay:              record.LatestRepay,
		UnlockTime:               record.UnlockTime,
		TotalAssets:              formatAmount(totalAssets),
		FreeLiquidity:            formatAmount(freeLiquidity),
		LockedProfits:            formatAmount(lockedProfits),
	})
}

func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	token := vault.NormalizeToken(chi.URLParam(r, "token"))
	staker, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	claimable, err := s.vault.ClaimableBalance(token, staker)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	shares, err := s.vault.SharesOf(token, staker)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":     token,
		"address":   staker.String(),
		"claimable": formatAmount(claimable),
		"shares":    formatAmount(shares),
	})
}

type whitelistRequest struct {
	Caller        string `json:"caller"`
	Token         string `json:"token"`
	BaseFeeBps    uint64 `json:"baseFeeBps"`
	FixedFeeBps   uint64 `json:"fixedFeeBps"`
	MinimumMargin string `json:"minimumMargin"`
	Cap           string `json:"cap"`
}

func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	minimumMargin, err := parseOptionalAmount("minimumMargin", req.MinimumMargin)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	cap, err := parseOptionalAmount("cap", req.Cap)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	if err := s.vault.WhitelistToken(caller, req.Token, req.BaseFeeBps, req.FixedFeeBps, minimumMargin, cap); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

type setFeesRequest struct {
	Caller      string `json:"caller"`
	Token       string `json:"token"`
	BaseFeeBps  uint64 `json:"baseFeeBps"`
	FixedFeeBps uint64 `json:"fixedFeeBps"`
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	var req setFeesRequest
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

	if err := s.vault.SetFees(caller, req.Token, req.BaseFeeBps, req.FixedFeeBps); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

type setInsuranceRatioRequest struct {
	Caller   string `json:"caller"`
	Token    string `json:"token"`
	RatioBps uint64 `json:"ratioBps"`
}

func (s *Server) handleSetInsuranceRatio(w http.ResponseWriter, r *http.Request) {
	var req setInsuranceRatioRequest
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

	if err := s.vault.SetInsuranceReserveRatio(caller, req.Token, req.RatioBps); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

type setUnlockTimeRequest struct {
	Caller  string `json:"caller"`
	Token   string `json:"token"`
	Seconds uint64 `json:"seconds"`
}

func (s *Server) handleSetUnlockTime(w http.ResponseWriter, r *http.Request) {
	var req setUnlockTimeRequest
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

	if err := s.vault.SetUnlockTime(caller, req.Token, req.Seconds); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

type setTokenLockRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Locked bool   `json:"locked"`
}

func (s *Server) handleSetTokenLock(w http.ResponseWriter, r *http.Request) {
	var req setTokenLockRequest
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

	if err := s.vault.SetTokenLock(caller, req.Token, req.Locked); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

type strategyRegistryRequest struct {
	Caller   string `json:"caller"`
	Strategy string `json:"strategy"`
}

func (s *Server) handleAddStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRegistryRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	strategyAddr, err := parseAddress("strategy", req.Strategy)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	if err := s.vault.AddStrategy(caller, strategyAddr); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

func (s *Server) handleRemoveStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRegistryRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	strategyAddr, err := parseAddress("strategy", req.Strategy)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	if err := s.vault.RemoveStrategy(caller, strategyAddr); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

type stakeRequest struct {
	Staker string `json:"staker"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	staker, err := parseAddress("staker", req.Staker)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	shares, err := s.vault.Stake(staker, req.Token, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.publishVaultGauges(vault.NormalizeToken(req.Token))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"shares": formatAmount(shares),
		"events": s.drainEvents(),
	})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	staker, err := parseAddress("staker", req.Staker)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	burned, err := s.vault.Unstake(staker, req.Token, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.publishVaultGauges(vault.NormalizeToken(req.Token))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sharesBurned": formatAmount(burned),
		"events":       s.drainEvents(),
	})
}

type boostRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleBoost(w http.ResponseWriter, r *http.Request) {
	var req boostRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	if err := s.vault.Boost(caller, req.Token, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	s.publishVaultGauges(vault.NormalizeToken(req.Token))
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.drainEvents()})
}

func (s *Server) handleUnboost(w http.ResponseWriter, r *http.Request) {
	var req boostRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	returned, err := s.vault.Unboost(caller, req.Token, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.publishVaultGauges(vault.NormalizeToken(req.Token))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"returned": formatAmount(returned),
		"events":   s.drainEvents(),
	})
}

type rebalanceRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
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

	surplus, err := s.vault.Rebalance(caller, req.Token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.publishVaultGauges(vault.NormalizeToken(req.Token))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"surplus": formatAmount(surplus),
		"events":  s.drainEvents(),
	})
}
