package types

// Event represents a structured state change emitted by the settlement engine
// for indexers and observers. Emission is observability-only; the ledger state
// itself stays authoritative.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
