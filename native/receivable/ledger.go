package receivable

import (
	"encoding/binary"
	"errors"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tradefin/core/events"
	"tradefin/core/types"
	"tradefin/native/common"
)

const moduleName = "receivable"

var (
	errNilState  = errors.New("receivable ledger: state not configured")
	errZeroNonce = errors.New("receivable ledger: nonce must be non-zero")

	// ErrUnauthorized is returned when the caller lacks the required capability.
	ErrUnauthorized = errors.New("receivable ledger: unauthorized caller")
	// ErrNotFound is returned for unknown receivable identifiers.
	ErrNotFound = errors.New("receivable ledger: receivable not found")
	// ErrInvalidAmount is returned when the face amount is not positive.
	ErrInvalidAmount = errors.New("receivable ledger: amount must be positive")
	// ErrInvalidDueDate is returned when the due date is not strictly in the future.
	ErrInvalidDueDate = errors.New("receivable ledger: due date must be in the future")
	// ErrInvalidRiskScore is returned when the verifier score exceeds the 0-100 range.
	ErrInvalidRiskScore = errors.New("receivable ledger: risk score out of range")
	// ErrAlreadyVerified is returned when verification is attempted twice.
	ErrAlreadyVerified = errors.New("receivable ledger: receivable already verified")
	// ErrDuplicate is returned when an identical identifier already exists with a
	// different definition.
	ErrDuplicate = errors.New("receivable ledger: identifier already exists with different definition")
)

type ledgerState interface {
	ReceivablePut(*Receivable) error
	ReceivableGet(id [32]byte) (*Receivable, bool, error)
}

// ApprovalView is the slice of the exporter directory consulted on creation.
type ApprovalView interface {
	IsApproved(exporter [20]byte) (bool, error)
}

// Authorizer answers whether a caller holds the verifying-authority role.
type Authorizer interface {
	IsVerifier(addr [20]byte) bool
}

type receivableEvent struct {
	evt *types.Event
}

func (e receivableEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e receivableEvent) Event() *types.Event { return e.evt }

// Ledger creates and verifies trade-receivable records. Eligibility is checked
// against the exporter directory; verification is restricted to the verifying
// authority.
type Ledger struct {
	state     ledgerState
	approvals ApprovalView
	auth      Authorizer
	emitter   events.Emitter
	pauses    common.PauseView
	nowFn     func() int64
}

// NewLedger creates a receivable ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetApprovals wires the exporter directory view consulted on creation.
func (l *Ledger) SetApprovals(view ApprovalView) { l.approvals = view }

// SetAuthorizer configures the verifier capability check.
func (l *Ledger) SetAuthorizer(auth Authorizer) { l.auth = auth }

// SetPauses wires the administrative pause switches.
func (l *Ledger) SetPauses(p common.PauseView) { l.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) emit(event *types.Event) {
	if l == nil || l.emitter == nil || event == nil {
		return
	}
	l.emitter.Emit(receivableEvent{evt: event})
}

// ComputeID derives the deterministic identifier for a receivable definition.
func ComputeID(exporter, importer [20]byte, metaRef [32]byte, nonce uint64) [32]byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	return ethcrypto.Keccak256Hash(exporter[:], importer[:], metaRef[:], nonceBytes[:])
}

// Create registers a new receivable in PENDING_VERIFICATION status. The caller
// must be an approved exporter, the amount positive and the due date strictly
// in the future. Re-submitting an identical definition is idempotent.
func (l *Ledger) Create(exporter, importer [20]byte, amountUSD *big.Int, dueDate int64, metaRef [32]byte, nonce uint64) (*Receivable, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	if l.approvals == nil {
		return nil, ErrUnauthorized
	}
	approved, err := l.approvals.IsApproved(exporter)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, ErrUnauthorized
	}
	if amountUSD == nil || amountUSD.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	now := l.nowFn()
	if dueDate <= now {
		return nil, ErrInvalidDueDate
	}
	if nonce == 0 {
		return nil, errZeroNonce
	}
	id := ComputeID(exporter, importer, metaRef, nonce)
	existing, ok, err := l.state.ReceivableGet(id)
	if err != nil {
		return nil, err
	}
	if ok {
		if existing.Exporter != exporter || existing.Importer != importer ||
			existing.AmountUSD.Cmp(amountUSD) != 0 || existing.DueDate != dueDate ||
			existing.MetaRef != metaRef {
			return nil, ErrDuplicate
		}
		return existing.Clone(), nil
	}
	rec := &Receivable{
		ID:        id,
		Exporter:  exporter,
		Importer:  importer,
		AmountUSD: new(big.Int).Set(amountUSD),
		DueDate:   dueDate,
		MetaRef:   metaRef,
		Status:    StatusPendingVerification,
		Nonce:     nonce,
		CreatedAt: now,
	}
	if err := l.state.ReceivablePut(rec); err != nil {
		return nil, err
	}
	l.emit(NewCreatedEvent(rec))
	return rec.Clone(), nil
}

// Verify sets the risk score and APR and advances the receivable to VERIFIED.
// Only the verifying authority may verify, and only once per receivable.
func (l *Ledger) Verify(caller [20]byte, id [32]byte, riskScore uint32, aprBps uint32) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := common.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if l.auth == nil || !l.auth.IsVerifier(caller) {
		return ErrUnauthorized
	}
	rec, ok, err := l.state.ReceivableGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if rec.Status == StatusVerified {
		return ErrAlreadyVerified
	}
	if riskScore > MaxRiskScore {
		return ErrInvalidRiskScore
	}
	rec.RiskScore = riskScore
	rec.APRBps = aprBps
	rec.Status = StatusVerified
	rec.VerifiedAt = l.nowFn()
	if err := l.state.ReceivablePut(rec); err != nil {
		return err
	}
	l.emit(NewVerifiedEvent(rec))
	return nil
}

// Get returns a copy of the stored receivable.
func (l *Ledger) Get(id [32]byte) (*Receivable, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	rec, ok, err := l.state.ReceivableGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}
