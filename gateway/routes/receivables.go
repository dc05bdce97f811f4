package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradefin/native/receivable"
)

type createReceivableRequest struct {
	Exporter  string `json:"exporter"`
	Importer  string `json:"importer"`
	AmountUSD string `json:"amountUsd"`
	DueDate   int64  `json:"dueDate"`
	MetaRef   string `json:"metaRef"`
	Nonce     uint64 `json:"nonce"`
}

type verifyReceivableRequest struct {
	Caller    string `json:"caller"`
	RiskScore uint32 `json:"riskScore"`
	APRBps    uint32 `json:"aprBps"`
}

type receivableResponse struct {
	ID         string `json:"id"`
	Exporter   string `json:"exporter"`
	Importer   string `json:"importer"`
	AmountUSD  string `json:"amountUsd"`
	DueDate    int64  `json:"dueDate"`
	MetaRef    string `json:"metaRef"`
	Status     string `json:"status"`
	RiskScore  uint32 `json:"riskScore"`
	APRBps     uint32 `json:"aprBps"`
	Nonce      uint64 `json:"nonce"`
	CreatedAt  int64  `json:"createdAt"`
	VerifiedAt int64  `json:"verifiedAt,omitempty"`
}

func renderReceivable(rec *receivable.Receivable) receivableResponse {
	return receivableResponse{
		ID:         hashString(rec.ID),
		Exporter:   addressString(rec.Exporter),
		Importer:   addressString(rec.Importer),
		AmountUSD:  amountString(rec.AmountUSD),
		DueDate:    rec.DueDate,
		MetaRef:    hashString(rec.MetaRef),
		Status:     rec.Status.String(),
		RiskScore:  rec.RiskScore,
		APRBps:     rec.APRBps,
		Nonce:      rec.Nonce,
		CreatedAt:  rec.CreatedAt,
		VerifiedAt: rec.VerifiedAt,
	}
}

func (h *handlers) createReceivable(w http.ResponseWriter, r *http.Request) {
	var req createReceivableRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	exporter, err := parseAddressParam(req.Exporter)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	importer, err := parseAddressParam(req.Importer)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.AmountUSD)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	metaRef, err := parseHash32(req.MetaRef)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	rec, err := h.node.CreateReceivable(exporter, importer, amount, req.DueDate, metaRef, req.Nonce)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderReceivable(rec))
}

func (h *handlers) verifyReceivable(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash32(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req verifyReceivableRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddressParam(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.node.VerifyReceivable(caller, id, req.RiskScore, req.APRBps); err != nil {
		writeEngineError(w, err)
		return
	}
	rec, err := h.node.Receivable(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderReceivable(rec))
}

func (h *handlers) getReceivable(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash32(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	rec, err := h.node.Receivable(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderReceivable(rec))
}
