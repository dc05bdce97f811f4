package pool

import (
	"errors"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tradefin/core/events"
	"tradefin/core/types"
	"tradefin/native/claimtoken"
	"tradefin/native/common"
	"tradefin/native/receivable"
	"tradefin/native/reward"
)

const moduleName = "pool"

var (
	errNilState       = errors.New("pool engine: state not configured")
	errNilClaims      = errors.New("pool engine: claim ledger not configured")
	errNilReceivables = errors.New("pool engine: receivable source not configured")
	errNilTreasury    = errors.New("pool engine: treasuries not configured")
	errSelfTransfer   = errors.New("pool engine: transfer endpoints must be distinct")

	// ErrNotFound is returned for unknown pool identifiers.
	ErrNotFound = errors.New("pool engine: pool not found")
	// ErrUnauthorized is returned when the caller lacks the required capability.
	ErrUnauthorized = errors.New("pool engine: unauthorized caller")
	// ErrInvalidAmount is returned when a monetary input fails a static precondition.
	ErrInvalidAmount = errors.New("pool engine: amount must be positive")
	// ErrInvalidMaturity is returned when the maturity date is not in the future.
	ErrInvalidMaturity = errors.New("pool engine: maturity date must be in the future")
	// ErrWrongState is returned when the pool is not in a state permitting the operation.
	ErrWrongState = errors.New("pool engine: operation not permitted in current status")
	// ErrBelowMinimum is returned when the accepted (possibly clipped) investment
	// would fall below the pool minimum.
	ErrBelowMinimum = errors.New("pool engine: investment below pool minimum")
	// ErrCapacityExceeded is returned when no investment capacity remains.
	ErrCapacityExceeded = errors.New("pool engine: investment capacity exceeded")
	// ErrAlreadyDisbursed is returned on a duplicate of the exactly-once disbursement.
	ErrAlreadyDisbursed = errors.New("pool engine: exporter disbursement already performed")
	// ErrDuplicatePool is returned when the receivable is already financed by a pool.
	ErrDuplicatePool = errors.New("pool engine: receivable already has a pool")
	// ErrInsufficientBalance is returned when the paying account cannot cover a leg.
	ErrInsufficientBalance = errors.New("pool engine: insufficient balance")
)

// usdToClaimScale converts 10^6 settlement units into 10^18 claim units, the
// fixed token price set at pool creation (1 unit of capital = 1 claim token).
var usdToClaimScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

type engineState interface {
	PoolPut(*Pool) error
	PoolGet(id [32]byte) (*Pool, bool, error)
	PoolIndexReceivable(recv [32]byte, pool [32]byte) error
	PoolLookupByReceivable(recv [32]byte) ([32]byte, bool, error)
	PoolCredit(id [32]byte, amt *big.Int) error
	PoolDebit(id [32]byte, amt *big.Int) error
	PoolEscrowBalance(id [32]byte) (*big.Int, error)
	PoolVaultAddress() ([20]byte, error)
	InvestmentGet(pool [32]byte, investor [20]byte) (*big.Int, error)
	InvestmentPut(pool [32]byte, investor [20]byte, amount *big.Int) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// ReceivableSource is the slice of the receivable ledger consulted at pool
// creation.
type ReceivableSource interface {
	Get(id [32]byte) (*receivable.Receivable, error)
}

// Authorizer answers whether a caller holds the administrator/servicer
// capability. The policy lives outside the engine so it can be tested
// independently of the accounting logic.
type Authorizer interface {
	IsAdmin(addr [20]byte) bool
}

type poolEvent struct {
	evt *types.Event
}

func (e poolEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e poolEvent) Event() *types.Event { return e.evt }

// Engine is the pool settlement and accounting core. It creates pools bound to
// verified receivables, accepts capital against per-investor and aggregate
// caps, performs the exactly-once exporter disbursement the moment the target
// is met, records repayment, and distributes repaid funds plus incentives
// while burning claim tokens.
//
// The engine assumes its host serializes all calls touching a given pool; the
// node wraps every operation in a single mutex so the read-check-write
// sequence in Invest is atomic with respect to concurrent callers.
type Engine struct {
	state            engineState
	claims           *claimtoken.Ledger
	receivables      ReceivableSource
	auth             Authorizer
	emitter          events.Emitter
	pauses           common.PauseView
	feePolicy        FeePolicy
	platformTreasury [20]byte
	amcTreasury      [20]byte
	nowFn            func() int64
}

// NewEngine creates a pool settlement engine with a no-op emitter. Callers
// wire state, the claim ledger and treasuries before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetClaimLedger wires the claim token ledger. The engine is the sole writer.
func (e *Engine) SetClaimLedger(claims *claimtoken.Ledger) { e.claims = claims }

// SetReceivables wires the receivable ledger consulted at pool creation.
func (e *Engine) SetReceivables(src ReceivableSource) { e.receivables = src }

// SetAuthorizer configures the administrator capability check.
func (e *Engine) SetAuthorizer(auth Authorizer) { e.auth = auth }

// SetPauses wires the administrative pause switches.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetFeePolicy configures the fee and incentive rates stamped onto new pools.
// Existing pools keep the policy frozen at their creation.
func (e *Engine) SetFeePolicy(policy FeePolicy) { e.feePolicy = policy }

// SetTreasuries configures the platform and verifying-authority treasuries
// receiving the disbursement fee legs.
func (e *Engine) SetTreasuries(platform, amc [20]byte) {
	e.platformTreasury = platform
	e.amcTreasury = amc
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(poolEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadPool(id [32]byte) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, ok, err := e.state.PoolGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (e *Engine) ensureTreasuries() error {
	if e == nil || e.platformTreasury == ([20]byte{}) || e.amcTreasury == ([20]byte{}) {
		return errNilTreasury
	}
	return nil
}

func (e *Engine) isAdmin(addr [20]byte) bool {
	return e != nil && e.auth != nil && e.auth.IsAdmin(addr)
}

// transferUSD moves settlement funds between accounts, guarding against
// overdrafts. A zero amount is a no-op.
func (e *Engine) transferUSD(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	// The two independent account writes below would double-apply the amount
	// when both sides name the same account, minting funds out of nothing.
	if from == to {
		return errSelfTransfer
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Clone()
	toAcc = toAcc.Clone()
	if fromAcc.BalanceUSD.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.BalanceUSD = new(big.Int).Sub(fromAcc.BalanceUSD, amount)
	toAcc.BalanceUSD = new(big.Int).Add(toAcc.BalanceUSD, amount)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// ComputePoolID derives the deterministic pool identifier for a receivable.
// Pools and receivables are 1:1.
func ComputePoolID(receivableID [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(receivableID[:], []byte("pool"))
}

// CreatePool allocates a pool bound to a verified receivable and seeds its
// incentive budget. Only an administrator may create pools.
func (e *Engine) CreatePool(caller [20]byte, receivableID [32]byte, poolType string, target, minInvestment, maxInvestment *big.Int, maturityDate int64, rewardBudget *big.Int) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.receivables == nil {
		return nil, errNilReceivables
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.isAdmin(caller) {
		return nil, ErrUnauthorized
	}
	rec, err := e.receivables.Get(receivableID)
	if err != nil {
		return nil, err
	}
	if rec.Status != receivable.StatusVerified {
		return nil, ErrWrongState
	}
	if _, exists, err := e.state.PoolLookupByReceivable(receivableID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrDuplicatePool
	}
	if target == nil || target.Sign() <= 0 || minInvestment == nil || minInvestment.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if maxInvestment == nil || maxInvestment.Cmp(minInvestment) < 0 {
		return nil, ErrInvalidAmount
	}
	if minInvestment.Cmp(target) > 0 {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	if maturityDate <= now {
		return nil, ErrInvalidMaturity
	}
	p := &Pool{
		ID:            ComputePoolID(receivableID),
		PoolType:      strings.TrimSpace(poolType),
		Receivable:    receivableID,
		Exporter:      rec.Exporter,
		TargetAmount:  new(big.Int).Set(target),
		MinInvestment: new(big.Int).Set(minInvestment),
		MaxInvestment: new(big.Int).Set(maxInvestment),
		APRBps:        rec.APRBps,
		MaturityDate:  maturityDate,
		Fees:          e.feePolicy,
		RewardBudget:  cloneOrZero(rewardBudget),
		TotalInvested: big.NewInt(0),
		TotalPaid:     big.NewInt(0),
		PaymentStatus: PaymentNone,
		Status:        StatusActive,
		CreatedAt:     now,
	}
	if _, err := SanitizePool(p); err != nil {
		return nil, err
	}
	if err := e.state.PoolPut(p); err != nil {
		return nil, err
	}
	if err := e.state.PoolIndexReceivable(receivableID, p.ID); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(p))
	return p.Clone(), nil
}

// Invest accepts capital into an active pool. The accepted amount is clipped
// to min(requested, remaining pool capacity, remaining per-investor
// allowance); the clipped amount is returned. When the accepted amount brings
// totalInvested to the target, the exporter disbursement runs inline, exactly
// once, inside the same operation.
func (e *Engine) Invest(investor [20]byte, poolID [32]byte, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.claims == nil {
		return nil, errNilClaims
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	p, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusActive {
		if p.Status == StatusFunded {
			return nil, ErrCapacityExceeded
		}
		return nil, ErrWrongState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	capacity := new(big.Int).Sub(p.TargetAmount, p.TotalInvested)
	if capacity.Sign() <= 0 {
		return nil, ErrCapacityExceeded
	}
	invested, err := e.state.InvestmentGet(poolID, investor)
	if err != nil {
		return nil, err
	}
	allowance := new(big.Int).Sub(p.MaxInvestment, invested)
	if allowance.Sign() <= 0 {
		return nil, ErrCapacityExceeded
	}
	accepted := new(big.Int).Set(amount)
	if accepted.Cmp(capacity) > 0 {
		accepted.Set(capacity)
	}
	if accepted.Cmp(allowance) > 0 {
		accepted.Set(allowance)
	}
	if accepted.Cmp(p.MinInvestment) < 0 {
		return nil, ErrBelowMinimum
	}

	vault, err := e.state.PoolVaultAddress()
	if err != nil {
		return nil, err
	}
	// The vault holds escrowed funds on behalf of investors; it cannot take a
	// position with them.
	if investor == vault {
		return nil, ErrUnauthorized
	}
	investorAcc, err := e.state.GetAccount(investor[:])
	if err != nil {
		return nil, err
	}
	if investorAcc.BalanceUSD == nil || investorAcc.BalanceUSD.Cmp(accepted) < 0 {
		return nil, ErrInsufficientBalance
	}

	// The crossing check runs against the pre-write total so the disbursement
	// fires in the same operation that reaches the target, and only in it.
	crossing := new(big.Int).Add(p.TotalInvested, accepted).Cmp(p.TargetAmount) == 0
	if crossing {
		if p.Disbursed {
			return nil, ErrAlreadyDisbursed
		}
		if err := e.ensureTreasuries(); err != nil {
			return nil, err
		}
	}

	// All guards passed: apply the transition.
	if err := e.transferUSD(investor, vault, accepted); err != nil {
		return nil, err
	}
	if err := e.state.PoolCredit(poolID, accepted); err != nil {
		return nil, err
	}
	minted := new(big.Int).Mul(accepted, usdToClaimScale)
	if err := e.claims.Mint(poolID, investor, minted); err != nil {
		return nil, err
	}
	if err := e.state.InvestmentPut(poolID, investor, new(big.Int).Add(invested, accepted)); err != nil {
		return nil, err
	}
	if err := e.mintIncentive(p, investor, accepted); err != nil {
		return nil, err
	}
	p.TotalInvested = new(big.Int).Add(p.TotalInvested, accepted)

	if crossing {
		if err := e.disburse(p, vault); err != nil {
			return nil, err
		}
	}
	if err := e.state.PoolPut(p); err != nil {
		return nil, err
	}
	e.emit(NewInvestedEvent(p, investor, accepted, minted))
	return accepted, nil
}

// mintIncentive credits the fixed-ratio reward token for an accepted
// investment, drawing down the pool's incentive budget. Budget exhaustion
// skips the mint without failing the investment.
func (e *Engine) mintIncentive(p *Pool, investor [20]byte, accepted *big.Int) error {
	if p.Fees.RewardBps == 0 {
		return nil
	}
	amount := reward.Compute(accepted, p.Fees.RewardBps, p.RewardBudget)
	if amount.Sign() <= 0 {
		e.emit(reward.NewSkippedEvent(p.ID, investor, "budget_exhausted"))
		return nil
	}
	acc, err := e.state.GetAccount(investor[:])
	if err != nil {
		return err
	}
	acc = acc.Clone()
	acc.BalanceRWD = new(big.Int).Add(acc.BalanceRWD, amount)
	if err := e.state.PutAccount(investor[:], acc); err != nil {
		return err
	}
	p.RewardBudget = new(big.Int).Sub(p.RewardBudget, amount)
	e.emit(reward.NewMintedEvent(p.ID, investor, p.Fees.RewardBps, amount))
	return nil
}

// disburse performs the exactly-once three-way split of the funding target and
// advances the pool to FUNDED. All fee legs are floored and the exporter
// amount derived as the remainder, so the split sums exactly to the target.
func (e *Engine) disburse(p *Pool, vault [20]byte) error {
	if p.Disbursed {
		return ErrAlreadyDisbursed
	}
	split := SplitTarget(p.TargetAmount, p.Fees)
	if err := e.transferUSD(vault, p.Exporter, split.ExporterAmount); err != nil {
		return err
	}
	if err := e.transferUSD(vault, e.platformTreasury, split.PlatformFee); err != nil {
		return err
	}
	if err := e.transferUSD(vault, e.amcTreasury, split.AMCFee); err != nil {
		return err
	}
	if err := e.state.PoolDebit(p.ID, p.TargetAmount); err != nil {
		return err
	}
	p.Status = StatusFunded
	p.Disbursed = true
	e.emit(NewDisbursedEvent(p, split))
	return nil
}

// UpdateMaturity advances a funded pool to MATURED once the maturity date has
// elapsed. The operation is a no-op, not an error, when called early or when
// the pool is already past FUNDED.
func (e *Engine) UpdateMaturity(poolID [32]byte, now int64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	p, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if p.Status != StatusFunded || now < p.MaturityDate {
		return nil
	}
	p.Status = StatusMatured
	if err := e.state.PoolPut(p); err != nil {
		return err
	}
	e.emit(NewMaturedEvent(p))
	return nil
}

// RecordPayment registers a repayment instalment from the servicer. Accepted
// only while the pool is FUNDED or MATURED; once cumulative payments reach the
// target the pool advances to PAID with payment status FULL.
func (e *Engine) RecordPayment(caller [20]byte, poolID [32]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.isAdmin(caller) {
		return ErrUnauthorized
	}
	p, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if p.Status != StatusFunded && p.Status != StatusMatured {
		return ErrWrongState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	vault, err := e.state.PoolVaultAddress()
	if err != nil {
		return err
	}
	if err := e.transferUSD(caller, vault, amount); err != nil {
		return err
	}
	if err := e.state.PoolCredit(poolID, amount); err != nil {
		return err
	}
	p.TotalPaid = new(big.Int).Add(p.TotalPaid, amount)
	if p.TotalPaid.Cmp(p.TargetAmount) >= 0 {
		p.PaymentStatus = PaymentFull
		p.Status = StatusPaid
	} else {
		p.PaymentStatus = PaymentPartial
	}
	if err := e.state.PoolPut(p); err != nil {
		return err
	}
	e.emit(NewPaymentRecordedEvent(p, amount))
	return nil
}

// DistributeYield pays out repaid principal plus yield pro rata to claim
// holders, burns every claim balance to zero, sweeps the rounding remainder to
// the platform treasury and closes the pool. Anyone may trigger it once the
// pool is PAID.
func (e *Engine) DistributeYield(poolID [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.claims == nil {
		return errNilClaims
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.ensureTreasuries(); err != nil {
		return err
	}
	p, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if p.Status != StatusPaid {
		return ErrWrongState
	}
	supply, err := e.claims.TotalSupply(poolID)
	if err != nil {
		return err
	}
	if supply.Sign() <= 0 {
		return ErrWrongState
	}
	holders, err := e.claims.Holders(poolID)
	if err != nil {
		return err
	}
	vault, err := e.state.PoolVaultAddress()
	if err != nil {
		return err
	}
	escrowed, err := e.state.PoolEscrowBalance(poolID)
	if err != nil {
		return err
	}
	if escrowed.Cmp(p.TotalPaid) < 0 {
		return ErrInsufficientBalance
	}

	distributed := big.NewInt(0)
	for _, holder := range holders {
		claim, err := e.claims.BalanceOf(poolID, holder)
		if err != nil {
			return err
		}
		if claim.Sign() == 0 {
			continue
		}
		payout := new(big.Int).Mul(claim, p.TotalPaid)
		payout.Quo(payout, supply)
		if err := e.transferUSD(vault, holder, payout); err != nil {
			return err
		}
		if err := e.claims.Burn(poolID, holder, claim); err != nil {
			return err
		}
		if err := e.state.InvestmentPut(poolID, holder, big.NewInt(0)); err != nil {
			return err
		}
		distributed.Add(distributed, payout)
	}
	// Floor division cannot leave holders overpaid, but the remainder must not
	// be stranded in the vault: sweep it to the platform treasury.
	remainder := new(big.Int).Sub(p.TotalPaid, distributed)
	if remainder.Sign() > 0 {
		if err := e.transferUSD(vault, e.platformTreasury, remainder); err != nil {
			return err
		}
	}
	if err := e.state.PoolDebit(poolID, p.TotalPaid); err != nil {
		return err
	}
	p.Status = StatusClosed
	if err := e.state.PoolPut(p); err != nil {
		return err
	}
	e.emit(NewYieldDistributedEvent(p, distributed, remainder))
	return nil
}

// MarkDefaulted declares the pool defaulted. Administrative and terminal; no
// further value movement is defined for a defaulted pool.
func (e *Engine) MarkDefaulted(caller [20]byte, poolID [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.isAdmin(caller) {
		return ErrUnauthorized
	}
	p, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	switch p.Status {
	case StatusActive, StatusFunded, StatusMatured:
	default:
		return ErrWrongState
	}
	p.Status = StatusDefaulted
	if err := e.state.PoolPut(p); err != nil {
		return err
	}
	e.emit(NewDefaultedEvent(p))
	return nil
}

// Get returns a copy of the stored pool.
func (e *Engine) Get(poolID [32]byte) (*Pool, error) {
	p, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// InvestmentOf returns the investor's cumulative contribution to the pool.
func (e *Engine) InvestmentOf(poolID [32]byte, investor [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	invested, err := e.state.InvestmentGet(poolID, investor)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(invested), nil
}

// ClaimBalanceOf returns the investor's claim token balance for the pool.
func (e *Engine) ClaimBalanceOf(poolID [32]byte, investor [20]byte) (*big.Int, error) {
	if e == nil || e.claims == nil {
		return nil, errNilClaims
	}
	return e.claims.BalanceOf(poolID, investor)
}
