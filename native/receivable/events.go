package receivable

import (
	"encoding/hex"
	"strconv"

	"tradefin/core/types"
)

const (
	EventTypeReceivableCreated  = "receivable.created"
	EventTypeReceivableVerified = "receivable.verified"
)

// NewCreatedEvent returns the canonical event payload for a newly registered
// receivable.
func NewCreatedEvent(r *Receivable) *types.Event {
	return newReceivableEvent(EventTypeReceivableCreated, r)
}

// NewVerifiedEvent returns the canonical event payload emitted when the
// verifying authority scores a receivable.
func NewVerifiedEvent(r *Receivable) *types.Event {
	return newReceivableEvent(EventTypeReceivableVerified, r)
}

func newReceivableEvent(eventType string, r *Receivable) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := Sanitize(r)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["exporter"] = hex.EncodeToString(sanitized.Exporter[:])
	attrs["importer"] = hex.EncodeToString(sanitized.Importer[:])
	attrs["amountUSD"] = sanitized.AmountUSD.String()
	attrs["dueDate"] = strconv.FormatInt(sanitized.DueDate, 10)
	attrs["status"] = sanitized.Status.String()
	if sanitized.Status == StatusVerified {
		attrs["riskScore"] = strconv.FormatUint(uint64(sanitized.RiskScore), 10)
		attrs["aprBps"] = strconv.FormatUint(uint64(sanitized.APRBps), 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
