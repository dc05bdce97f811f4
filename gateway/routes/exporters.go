package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradefin/core"
	"tradefin/native/directory"
)

type handlers struct {
	node *core.Node
}

func newHandlers(node *core.Node) (*handlers, error) {
	if node == nil {
		return nil, errors.New("routes: node required")
	}
	return &handlers{node: node}, nil
}

type approveExporterRequest struct {
	Caller       string `json:"caller"`
	Exporter     string `json:"exporter"`
	BusinessName string `json:"businessName"`
	Country      string `json:"country"`
	KYCHash      string `json:"kycHash"`
	CACHash      string `json:"cacHash"`
	BankHash     string `json:"bankHash"`
}

type exporterResponse struct {
	Exporter     string `json:"exporter"`
	BusinessName string `json:"businessName"`
	Country      string `json:"country"`
	KYCHash      string `json:"kycHash"`
	CACHash      string `json:"cacHash"`
	BankHash     string `json:"bankHash"`
	Approved     bool   `json:"approved"`
	ApprovedAt   int64  `json:"approvedAt"`
}

func renderExporter(p *directory.ExporterProfile) exporterResponse {
	return exporterResponse{
		Exporter:     addressString(p.Exporter),
		BusinessName: p.BusinessName,
		Country:      p.Country,
		KYCHash:      hashString(p.KYCHash),
		CACHash:      hashString(p.CACHash),
		BankHash:     hashString(p.BankHash),
		Approved:     p.Approved,
		ApprovedAt:   p.ApprovedAt,
	}
}

func (h *handlers) approveExporter(w http.ResponseWriter, r *http.Request) {
	var req approveExporterRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddressParam(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	exporter, err := parseAddressParam(req.Exporter)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	kyc, err := parseHash32(req.KYCHash)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	cac, err := parseHash32(req.CACHash)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	bank, err := parseHash32(req.BankHash)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	profile, err := h.node.ApproveExporter(caller, &directory.ExporterProfile{
		Exporter:     exporter,
		KYCHash:      kyc,
		CACHash:      cac,
		BankHash:     bank,
		BusinessName: req.BusinessName,
		Country:      req.Country,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderExporter(profile))
}

func (h *handlers) getExporter(w http.ResponseWriter, r *http.Request) {
	exporter, err := parseAddressParam(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	profile, err := h.node.ExporterProfile(exporter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderExporter(profile))
}
