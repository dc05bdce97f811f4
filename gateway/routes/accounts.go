package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type accountResponse struct {
	Address    string `json:"address"`
	Nonce      uint64 `json:"nonce"`
	BalanceUSD string `json:"balanceUsd"`
	BalanceRWD string `json:"balanceRwd"`
}

type faucetRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddressParam(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	acc, err := h.node.Account(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		Address:    addressString(addr),
		Nonce:      acc.Nonce,
		BalanceUSD: amountString(acc.BalanceUSD),
		BalanceRWD: amountString(acc.BalanceRWD),
	})
}

func (h *handlers) faucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	addr, err := parseAddressParam(req.Address)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.node.CreditSettlement(addr, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	acc, err := h.node.Account(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		Address:    addressString(addr),
		Nonce:      acc.Nonce,
		BalanceUSD: amountString(acc.BalanceUSD),
		BalanceRWD: amountString(acc.BalanceRWD),
	})
}
