package receivable

import (
	"fmt"
	"math/big"
)

// Status tracks the verification lifecycle of a receivable. Records are
// created pending and mutated exactly once by the verifying authority.
type Status uint8

const (
	StatusPendingVerification Status = iota
	StatusVerified
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingVerification, StatusVerified:
		return true
	default:
		return false
	}
}

// String renders the status for event payloads and API responses.
func (s Status) String() string {
	switch s {
	case StatusPendingVerification:
		return "PENDING_VERIFICATION"
	case StatusVerified:
		return "VERIFIED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// MaxRiskScore bounds the verifier-assigned risk score.
const MaxRiskScore = 100

// Receivable is a tokenized claim on a future payment owed to an exporter by
// an importer. AmountUSD is denominated in the settlement currency scaled by
// 10^6. The identifier is the keccak256 hash of the counterparties, metadata
// reference and a caller-supplied nonce, ensuring deterministic IDs.
type Receivable struct {
	ID         [32]byte
	Exporter   [20]byte
	Importer   [20]byte
	AmountUSD  *big.Int
	DueDate    int64
	MetaRef    [32]byte
	Status     Status
	RiskScore  uint32
	APRBps     uint32
	Nonce      uint64
	CreatedAt  int64
	VerifiedAt int64
}

// Clone returns a deep copy of the receivable so callers can safely mutate the
// copy without affecting the stored instance.
func (r *Receivable) Clone() *Receivable {
	if r == nil {
		return nil
	}
	clone := *r
	if r.AmountUSD != nil {
		clone.AmountUSD = new(big.Int).Set(r.AmountUSD)
	} else {
		clone.AmountUSD = big.NewInt(0)
	}
	return &clone
}

// Sanitize validates and normalises a receivable record, returning a cloned
// instance with a non-nil amount. The original value is not mutated.
func Sanitize(r *Receivable) (*Receivable, error) {
	if r == nil {
		return nil, fmt.Errorf("nil receivable")
	}
	clone := r.Clone()
	if clone.Exporter == ([20]byte{}) {
		return nil, fmt.Errorf("receivable exporter required")
	}
	if clone.Importer == ([20]byte{}) {
		return nil, fmt.Errorf("receivable importer required")
	}
	if clone.AmountUSD.Sign() < 0 {
		return nil, fmt.Errorf("receivable amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid receivable status: %d", clone.Status)
	}
	if clone.RiskScore > MaxRiskScore {
		return nil, fmt.Errorf("receivable risk score out of range: %d", clone.RiskScore)
	}
	return clone, nil
}
