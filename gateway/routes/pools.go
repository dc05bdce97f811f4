package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradefin/native/pool"
)

type createPoolRequest struct {
	Caller        string `json:"caller"`
	ReceivableID  string `json:"receivableId"`
	PoolType      string `json:"poolType"`
	TargetAmount  string `json:"targetAmount"`
	MinInvestment string `json:"minInvestment"`
	MaxInvestment string `json:"maxInvestment"`
	MaturityDate  int64  `json:"maturityDate"`
	RewardBudget  string `json:"rewardBudget"`
}

type investRequest struct {
	Investor string `json:"investor"`
	Amount   string `json:"amount"`
}

type recordPaymentRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type markDefaultedRequest struct {
	Caller string `json:"caller"`
}

type poolResponse struct {
	ID             string `json:"id"`
	PoolType       string `json:"poolType"`
	ReceivableID   string `json:"receivableId"`
	Exporter       string `json:"exporter"`
	TargetAmount   string `json:"targetAmount"`
	MinInvestment  string `json:"minInvestment"`
	MaxInvestment  string `json:"maxInvestment"`
	APRBps         uint32 `json:"aprBps"`
	MaturityDate   int64  `json:"maturityDate"`
	PlatformFeeBps uint32 `json:"platformFeeBps"`
	AMCFeeBps      uint32 `json:"amcFeeBps"`
	RewardBudget   string `json:"rewardBudget"`
	TotalInvested  string `json:"totalInvested"`
	TotalPaid      string `json:"totalPaid"`
	PaymentStatus  string `json:"paymentStatus"`
	Status         string `json:"status"`
	Disbursed      bool   `json:"disbursed"`
	CreatedAt      int64  `json:"createdAt"`
}

type investResponse struct {
	Accepted string       `json:"accepted"`
	Pool     poolResponse `json:"pool"`
}

type positionResponse struct {
	Pool         string `json:"pool"`
	Investor     string `json:"investor"`
	Investment   string `json:"investment"`
	ClaimBalance string `json:"claimBalance"`
}

func renderPool(p *pool.Pool) poolResponse {
	return poolResponse{
		ID:             hashString(p.ID),
		PoolType:       p.PoolType,
		ReceivableID:   hashString(p.Receivable),
		Exporter:       addressString(p.Exporter),
		TargetAmount:   amountString(p.TargetAmount),
		MinInvestment:  amountString(p.MinInvestment),
		MaxInvestment:  amountString(p.MaxInvestment),
		APRBps:         p.APRBps,
		MaturityDate:   p.MaturityDate,
		PlatformFeeBps: p.Fees.PlatformFeeBps,
		AMCFeeBps:      p.Fees.AMCFeeBps,
		RewardBudget:   amountString(p.RewardBudget),
		TotalInvested:  amountString(p.TotalInvested),
		TotalPaid:      amountString(p.TotalPaid),
		PaymentStatus:  p.PaymentStatus.String(),
		Status:         p.Status.String(),
		Disbursed:      p.Disbursed,
		CreatedAt:      p.CreatedAt,
	}
}

func (h *handlers) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddressParam(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	receivableID, err := parseHash32(req.ReceivableID)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	target, err := parseAmount(req.TargetAmount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	minInvestment, err := parseAmount(req.MinInvestment)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	maxInvestment, err := parseAmount(req.MaxInvestment)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	rewardBudget, err := parseAmount(req.RewardBudget)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	created, err := h.node.CreatePool(caller, receivableID, req.PoolType, target, minInvestment, maxInvestment, req.MaturityDate, rewardBudget)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderPool(created))
}

func (h *handlers) invest(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseHash32(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req investRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	investor, err := parseAddressParam(req.Investor)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	accepted, err := h.node.Invest(investor, poolID, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	p, err := h.node.Pool(poolID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, investResponse{Accepted: amountString(accepted), Pool: renderPool(p)})
}

func (h *handlers) updateMaturity(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseHash32(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.node.UpdateMaturity(poolID); err != nil {
		writeEngineError(w, err)
		return
	}
	h.respondPool(w, poolID)
}

func (h *handlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseHash32(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req recordPaymentRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddressParam(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.node.RecordPayment(caller, poolID, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	h.respondPool(w, poolID)
}

func (h *handlers) distributeYield(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseHash32(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.node.DistributeYield(poolID); err != nil {
		writeEngineError(w, err)
		return
	}
	h.respondPool(w, poolID)
}

func (h *handlers) markDefaulted(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseHash32(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req markDefaultedRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddressParam(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.node.MarkDefaulted(caller, poolID); err != nil {
		writeEngineError(w, err)
		return
	}
	h.respondPool(w, poolID)
}

func (h *handlers) getPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseHash32(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	h.respondPool(w, poolID)
}

func (h *handlers) getPosition(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseHash32(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	investor, err := parseAddressParam(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	investment, err := h.node.InvestmentOf(poolID, investor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	claims, err := h.node.ClaimBalanceOf(poolID, investor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Pool:         hashString(poolID),
		Investor:     addressString(investor),
		Investment:   amountString(investment),
		ClaimBalance: amountString(claims),
	})
}

func (h *handlers) respondPool(w http.ResponseWriter, poolID [32]byte) {
	p, err := h.node.Pool(poolID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderPool(p))
}
