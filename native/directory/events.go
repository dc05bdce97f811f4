package directory

import (
	"encoding/hex"
	"strconv"

	"tradefin/core/types"
)

// EventTypeExporterApproved marks a new or overwritten exporter approval.
const EventTypeExporterApproved = "directory.exporter_approved"

// NewExporterApprovedEvent returns the canonical event payload for an exporter
// approval.
func NewExporterApprovedEvent(p *ExporterProfile) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: EventTypeExporterApproved, Attributes: attrs}
	}
	attrs["exporter"] = hex.EncodeToString(p.Exporter[:])
	attrs["businessName"] = p.BusinessName
	attrs["country"] = p.Country
	attrs["kycHash"] = hex.EncodeToString(p.KYCHash[:])
	attrs["cacHash"] = hex.EncodeToString(p.CACHash[:])
	attrs["bankHash"] = hex.EncodeToString(p.BankHash[:])
	attrs["approvedAt"] = strconv.FormatInt(p.ApprovedAt, 10)
	return &types.Event{Type: EventTypeExporterApproved, Attributes: attrs}
}
