package core

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"tradefin/core/events"
	"tradefin/core/types"
	"tradefin/native/claimtoken"
	"tradefin/native/common"
	"tradefin/native/directory"
	"tradefin/native/pool"
	"tradefin/native/receivable"
	"tradefin/state"
	"tradefin/storage"
)

// ErrFaucetDisabled is returned when the dev faucet is invoked on a node
// configured without it.
var ErrFaucetDisabled = errors.New("node: dev faucet disabled")

// RoleSet is the capability policy injected into the engines: a static set of
// administrator and verifier addresses resolved from configuration.
type RoleSet struct {
	admins    map[[20]byte]bool
	verifiers map[[20]byte]bool
}

// NewRoleSet builds the policy from explicit address lists.
func NewRoleSet(admins, verifiers [][20]byte) *RoleSet {
	rs := &RoleSet{
		admins:    make(map[[20]byte]bool, len(admins)),
		verifiers: make(map[[20]byte]bool, len(verifiers)),
	}
	for _, addr := range admins {
		rs.admins[addr] = true
	}
	for _, addr := range verifiers {
		rs.verifiers[addr] = true
	}
	return rs
}

// IsAdmin reports whether the address holds the administrator capability.
func (r *RoleSet) IsAdmin(addr [20]byte) bool { return r != nil && r.admins[addr] }

// IsVerifier reports whether the address holds the verifying-authority role.
func (r *RoleSet) IsVerifier(addr [20]byte) bool { return r != nil && r.verifiers[addr] }

// NodeConfig carries the wiring a node needs beyond its database.
type NodeConfig struct {
	Roles            *RoleSet
	PlatformTreasury [20]byte
	AMCTreasury      [20]byte
	Fees             pool.FeePolicy
	Emitter          events.Emitter
	Pauses           common.PauseView
	DevFaucet        bool
}

// Node is the central controller wiring storage, the state manager and the
// native engines together. Every state-changing operation runs under a single
// mutex: the engines assume a serialized, single-writer host, and the node is
// that mutual-exclusion boundary. Reads share the same lock to observe only
// fully applied transitions.
type Node struct {
	db          storage.Database
	state       *state.Manager
	directory   *directory.Directory
	receivables *receivable.Ledger
	pools       *pool.Engine
	claims      *claimtoken.Ledger
	devFaucet   bool

	stateMu sync.Mutex
}

// NewNode assembles a node over the supplied database.
func NewNode(db storage.Database, cfg NodeConfig) (*Node, error) {
	if db == nil {
		return nil, errors.New("node: database required")
	}
	manager := state.NewManager(db)
	emitter := cfg.Emitter

	dir := directory.NewDirectory()
	dir.SetState(manager)
	dir.SetAuthorizer(cfg.Roles)
	dir.SetEmitter(emitter)

	ledger := receivable.NewLedger()
	ledger.SetState(manager)
	ledger.SetApprovals(dir)
	ledger.SetAuthorizer(cfg.Roles)
	ledger.SetEmitter(emitter)
	ledger.SetPauses(cfg.Pauses)

	claims := claimtoken.NewLedger(manager)

	engine := pool.NewEngine()
	engine.SetState(manager)
	engine.SetClaimLedger(claims)
	engine.SetReceivables(ledger)
	engine.SetAuthorizer(cfg.Roles)
	engine.SetEmitter(emitter)
	engine.SetPauses(cfg.Pauses)
	engine.SetFeePolicy(cfg.Fees)
	engine.SetTreasuries(cfg.PlatformTreasury, cfg.AMCTreasury)

	return &Node{
		db:          db,
		state:       manager,
		directory:   dir,
		receivables: ledger,
		pools:       engine,
		claims:      claims,
		devFaucet:   cfg.DevFaucet,
	}, nil
}

// SetNowFunc overrides the time source of every engine, for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.directory.SetNowFunc(now)
	n.receivables.SetNowFunc(now)
	n.pools.SetNowFunc(now)
}

// --- Exporter directory ---

func (n *Node) ApproveExporter(caller [20]byte, profile *directory.ExporterProfile) (*directory.ExporterProfile, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.directory.Approve(caller, profile)
}

func (n *Node) ExporterProfile(exporter [20]byte) (*directory.ExporterProfile, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.directory.GetProfile(exporter)
}

// --- Receivable ledger ---

func (n *Node) CreateReceivable(exporter, importer [20]byte, amountUSD *big.Int, dueDate int64, metaRef [32]byte, nonce uint64) (*receivable.Receivable, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.receivables.Create(exporter, importer, amountUSD, dueDate, metaRef, nonce)
}

func (n *Node) VerifyReceivable(caller [20]byte, id [32]byte, riskScore, aprBps uint32) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.receivables.Verify(caller, id, riskScore, aprBps)
}

func (n *Node) Receivable(id [32]byte) (*receivable.Receivable, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.receivables.Get(id)
}

// --- Pool settlement engine ---

func (n *Node) CreatePool(caller [20]byte, receivableID [32]byte, poolType string, target, minInvestment, maxInvestment *big.Int, maturityDate int64, rewardBudget *big.Int) (*pool.Pool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.pools.CreatePool(caller, receivableID, poolType, target, minInvestment, maxInvestment, maturityDate, rewardBudget)
}

func (n *Node) Invest(investor [20]byte, poolID [32]byte, amount *big.Int) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.pools.Invest(investor, poolID, amount)
}

func (n *Node) UpdateMaturity(poolID [32]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.pools.UpdateMaturity(poolID, time.Now().Unix())
}

func (n *Node) RecordPayment(caller [20]byte, poolID [32]byte, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.pools.RecordPayment(caller, poolID, amount)
}

func (n *Node) DistributeYield(poolID [32]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.pools.DistributeYield(poolID)
}

func (n *Node) MarkDefaulted(caller [20]byte, poolID [32]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.pools.MarkDefaulted(caller, poolID)
}

func (n *Node) Pool(poolID [32]byte) (*pool.Pool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.pools.Get(poolID)
}

func (n *Node) InvestmentOf(poolID [32]byte, investor [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.pools.InvestmentOf(poolID, investor)
}

func (n *Node) ClaimBalanceOf(poolID [32]byte, investor [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.pools.ClaimBalanceOf(poolID, investor)
}

// --- Accounts ---

func (n *Node) Account(addr [20]byte) (*types.Account, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.GetAccount(addr[:])
}

// CreditSettlement mints settlement balance to an account. Available only on
// nodes started with the dev faucet so local flows can be exercised end to
// end; production deployments keep it disabled.
func (n *Node) CreditSettlement(addr [20]byte, amount *big.Int) error {
	if !n.devFaucet {
		return ErrFaucetDisabled
	}
	if amount == nil || amount.Sign() <= 0 {
		return pool.ErrInvalidAmount
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	acc, err := n.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc = acc.Clone()
	acc.BalanceUSD = new(big.Int).Add(acc.BalanceUSD, amount)
	return n.state.PutAccount(addr[:], acc)
}
