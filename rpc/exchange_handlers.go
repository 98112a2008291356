package rpc

import (
	"net/http"

	"leverlend/native/vault"
)

type setPriceRequest struct {
	Token string `json:"token"`
	Price string `json:"price"`
}

// handleSetPrice updates the dealer's reference price for a token. The
// dealer only serves local networks; production deployments swap in a real
// exchange adapter.
func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req setPriceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	defer s.lock()()

	s.dealer.SetPrice(vault.NormalizeToken(req.Token), price)
	writeJSON(w, http.StatusOK, map[string]string{
		"token": vault.NormalizeToken(req.Token),
		"price": price.String(),
	})
}

type faucetRequest struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

// handleFaucet mints tokens into an account on local networks.
func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	addr, err := parseAddress("address", req.Address)
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

	token := vault.NormalizeToken(req.Token)
	if err := s.manager.Credit(addr, token, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	balance, err := s.manager.BalanceOf(addr, token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": addr.String(),
		"token":   token,
		"balance": formatAmount(balance),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.URL.Query().Get("address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	token := vault.NormalizeToken(r.URL.Query().Get("token"))

	defer s.lock()()

	if token == "" {
		account, err := s.manager.Account(addr)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		balances := make(map[string]string, len(account.Balances))
		for name, amount := range account.Balances {
			balances[name] = formatAmount(amount)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"address":  addr.String(),
			"nonce":    account.Nonce,
			"balances": balances,
		})
		return
	}
	balance, err := s.manager.BalanceOf(addr, token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": addr.String(),
		"token":   token,
		"balance": formatAmount(balance),
	})
}
