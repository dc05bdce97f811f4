package pool

import (
	"errors"
	"math/big"
	"testing"

	"tradefin/core/events"
	"tradefin/core/types"
	"tradefin/native/claimtoken"
	"tradefin/native/receivable"
)

type investmentKey struct {
	pool     [32]byte
	investor [20]byte
}

type mockState struct {
	pools       map[[32]byte]*Pool
	byRecv      map[[32]byte][32]byte
	escrow      map[[32]byte]*big.Int
	investments map[investmentKey]*big.Int
	accounts    map[[20]byte]*types.Account
	claims      map[investmentKey]*big.Int
	supplies    map[[32]byte]*big.Int
	holderOrder map[[32]byte][][20]byte
	vault       [20]byte
}

func newMockState() *mockState {
	return &mockState{
		pools:       make(map[[32]byte]*Pool),
		byRecv:      make(map[[32]byte][32]byte),
		escrow:      make(map[[32]byte]*big.Int),
		investments: make(map[investmentKey]*big.Int),
		accounts:    make(map[[20]byte]*types.Account),
		claims:      make(map[investmentKey]*big.Int),
		supplies:    make(map[[32]byte]*big.Int),
		holderOrder: make(map[[32]byte][][20]byte),
		vault:       addr(0xEE),
	}
}

func (m *mockState) PoolPut(p *Pool) error {
	m.pools[p.ID] = p.Clone()
	return nil
}

func (m *mockState) PoolGet(id [32]byte) (*Pool, bool, error) {
	p, ok := m.pools[id]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) PoolIndexReceivable(recv [32]byte, pool [32]byte) error {
	m.byRecv[recv] = pool
	return nil
}

func (m *mockState) PoolLookupByReceivable(recv [32]byte) ([32]byte, bool, error) {
	id, ok := m.byRecv[recv]
	return id, ok, nil
}

func (m *mockState) PoolCredit(id [32]byte, amt *big.Int) error {
	current := m.escrowOf(id)
	m.escrow[id] = new(big.Int).Add(current, amt)
	return nil
}

func (m *mockState) PoolDebit(id [32]byte, amt *big.Int) error {
	current := m.escrowOf(id)
	if current.Cmp(amt) < 0 {
		return errors.New("mock: escrow overdraft")
	}
	m.escrow[id] = new(big.Int).Sub(current, amt)
	return nil
}

func (m *mockState) PoolEscrowBalance(id [32]byte) (*big.Int, error) {
	return new(big.Int).Set(m.escrowOf(id)), nil
}

func (m *mockState) escrowOf(id [32]byte) *big.Int {
	if bal, ok := m.escrow[id]; ok {
		return bal
	}
	return big.NewInt(0)
}

func (m *mockState) PoolVaultAddress() ([20]byte, error) { return m.vault, nil }

func (m *mockState) InvestmentGet(pool [32]byte, investor [20]byte) (*big.Int, error) {
	if v, ok := m.investments[investmentKey{pool, investor}]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) InvestmentPut(pool [32]byte, investor [20]byte, amount *big.Int) error {
	m.investments[investmentKey{pool, investor}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	if acc, ok := m.accounts[key]; ok {
		return acc.Clone(), nil
	}
	return (&types.Account{}).Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	m.accounts[key] = account.Clone()
	return nil
}

func (m *mockState) ClaimBalance(pool [32]byte, holder [20]byte) (*big.Int, error) {
	if v, ok := m.claims[investmentKey{pool, holder}]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetClaimBalance(pool [32]byte, holder [20]byte, amount *big.Int) error {
	key := investmentKey{pool, holder}
	if _, seen := m.claims[key]; !seen && amount.Sign() > 0 {
		m.holderOrder[pool] = append(m.holderOrder[pool], holder)
	}
	m.claims[key] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) ClaimTotalSupply(pool [32]byte) (*big.Int, error) {
	if v, ok := m.supplies[pool]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetClaimTotalSupply(pool [32]byte, amount *big.Int) error {
	m.supplies[pool] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) ClaimHolders(pool [32]byte) ([][20]byte, error) {
	var out [][20]byte
	for _, holder := range m.holderOrder[pool] {
		if bal, ok := m.claims[investmentKey{pool, holder}]; ok && bal.Sign() > 0 {
			out = append(out, holder)
		}
	}
	return out, nil
}

func (m *mockState) balanceUSD(a [20]byte) *big.Int {
	if acc, ok := m.accounts[a]; ok && acc.BalanceUSD != nil {
		return new(big.Int).Set(acc.BalanceUSD)
	}
	return big.NewInt(0)
}

func (m *mockState) balanceRWD(a [20]byte) *big.Int {
	if acc, ok := m.accounts[a]; ok && acc.BalanceRWD != nil {
		return new(big.Int).Set(acc.BalanceRWD)
	}
	return big.NewInt(0)
}

func (m *mockState) fund(a [20]byte, amount *big.Int) {
	m.accounts[a] = &types.Account{BalanceUSD: new(big.Int).Set(amount), BalanceRWD: big.NewInt(0)}
}

type stubReceivables struct {
	recs map[[32]byte]*receivable.Receivable
}

func (s *stubReceivables) Get(id [32]byte) (*receivable.Receivable, error) {
	rec, ok := s.recs[id]
	if !ok {
		return nil, receivable.ErrNotFound
	}
	return rec.Clone(), nil
}

type stubAuth struct {
	admins map[[20]byte]bool
}

func (s *stubAuth) IsAdmin(a [20]byte) bool { return s.admins[a] }

type capturingEmitter struct {
	events []*types.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	typed, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	c.events = append(c.events, typed.Event())
}

func (c *capturingEmitter) count(eventType string) int {
	n := 0
	for _, evt := range c.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func hashOf(b byte) [32]byte {
	var out [32]byte
	out[31] = b
	return out
}

// usd converts whole settlement dollars into 10^6-scaled units.
func usd(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), big.NewInt(1_000_000))
}

var (
	adminAddr    = addr(0x01)
	exporterAddr = addr(0x02)
	importerAddr = addr(0x03)
	platformAddr = addr(0x04)
	amcAddr      = addr(0x05)
	investorA    = addr(0x0A)
	investorB    = addr(0x0B)
	investorC    = addr(0x0C)
	recvID       = hashOf(0x10)
)

type testEnv struct {
	engine  *Engine
	state   *mockState
	emitter *capturingEmitter
	recs    *stubReceivables
	now     int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	state := newMockState()
	emitter := &capturingEmitter{}
	recs := &stubReceivables{recs: map[[32]byte]*receivable.Receivable{
		recvID: {
			ID:       recvID,
			Exporter: exporterAddr,
			Importer: importerAddr,
			AmountUSD: usd(12_000),
			DueDate:  5_000,
			Status:   receivable.StatusVerified,
			APRBps:   1_200,
		},
	}}

	engine := NewEngine()
	engine.SetState(state)
	engine.SetClaimLedger(claimtoken.NewLedger(state))
	engine.SetReceivables(recs)
	engine.SetAuthorizer(&stubAuth{admins: map[[20]byte]bool{adminAddr: true}})
	engine.SetEmitter(emitter)
	engine.SetFeePolicy(FeePolicy{PlatformFeeBps: 100, AMCFeeBps: 200, RewardBps: 50})
	engine.SetTreasuries(platformAddr, amcAddr)

	env := &testEnv{engine: engine, state: state, emitter: emitter, recs: recs, now: 1_000}
	engine.SetNowFunc(func() int64 { return env.now })
	return env
}

func (env *testEnv) createPool(t *testing.T, target, minInv, maxInv *big.Int) *Pool {
	t.Helper()
	p, err := env.engine.CreatePool(adminAddr, recvID, "receivable", target, minInv, maxInv, 2_000, new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil))
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	return p
}

func TestCreatePoolRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.CreatePool(investorA, recvID, "receivable", usd(10_000), usd(100), usd(10_000), 2_000, big.NewInt(0)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreatePoolRequiresVerifiedReceivable(t *testing.T) {
	env := newTestEnv(t)
	env.recs.recs[recvID].Status = receivable.StatusPendingVerification
	if _, err := env.engine.CreatePool(adminAddr, recvID, "receivable", usd(10_000), usd(100), usd(10_000), 2_000, big.NewInt(0)); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
}

func TestCreatePoolRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(t, usd(10_000), usd(100), usd(10_000))
	if _, err := env.engine.CreatePool(adminAddr, recvID, "receivable", usd(10_000), usd(100), usd(10_000), 2_000, big.NewInt(0)); !errors.Is(err, ErrDuplicatePool) {
		t.Fatalf("expected ErrDuplicatePool, got %v", err)
	}
}

func TestCreatePoolRejectsPastMaturity(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.CreatePool(adminAddr, recvID, "receivable", usd(10_000), usd(100), usd(10_000), 999, big.NewInt(0)); !errors.Is(err, ErrInvalidMaturity) {
		t.Fatalf("expected ErrInvalidMaturity, got %v", err)
	}
}

func TestCreatePoolSnapshotsFeePolicy(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(10_000), usd(100), usd(10_000))
	if p.Fees.PlatformFeeBps != 100 || p.Fees.AMCFeeBps != 200 || p.Fees.RewardBps != 50 {
		t.Fatalf("unexpected fee snapshot: %+v", p.Fees)
	}
	// Later policy changes must not affect the created pool.
	env.engine.SetFeePolicy(FeePolicy{PlatformFeeBps: 500, AMCFeeBps: 500})
	stored, err := env.engine.Get(p.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if stored.Fees.PlatformFeeBps != 100 {
		t.Fatalf("fee policy not frozen: %+v", stored.Fees)
	}
}

func TestInvestSingleInvestorFundsAndDisburses(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(10_000), usd(100), usd(10_000))
	env.state.fund(investorA, usd(10_000))

	accepted, err := env.engine.Invest(investorA, p.ID, usd(10_000))
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	if accepted.Cmp(usd(10_000)) != 0 {
		t.Fatalf("accepted = %s, want %s", accepted, usd(10_000))
	}

	stored, err := env.engine.Get(p.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if stored.Status != StatusFunded {
		t.Fatalf("status = %s, want FUNDED", stored.Status)
	}
	if !stored.Disbursed {
		t.Fatal("pool not marked disbursed")
	}
	if stored.TotalInvested.Cmp(usd(10_000)) != 0 {
		t.Fatalf("totalInvested = %s", stored.TotalInvested)
	}

	// 100 bps platform, 200 bps AMC: exporter receives the remainder.
	if got := env.state.balanceUSD(exporterAddr); got.Cmp(usd(9_700)) != 0 {
		t.Fatalf("exporter balance = %s, want %s", got, usd(9_700))
	}
	if got := env.state.balanceUSD(platformAddr); got.Cmp(usd(100)) != 0 {
		t.Fatalf("platform balance = %s, want %s", got, usd(100))
	}
	if got := env.state.balanceUSD(amcAddr); got.Cmp(usd(200)) != 0 {
		t.Fatalf("amc balance = %s, want %s", got, usd(200))
	}
	if got := env.state.balanceUSD(investorA); got.Sign() != 0 {
		t.Fatalf("investor balance = %s, want 0", got)
	}
	escrow, _ := env.state.PoolEscrowBalance(p.ID)
	if escrow.Sign() != 0 {
		t.Fatalf("escrow after disbursement = %s, want 0", escrow)
	}

	// Claims: 1 settlement unit mints 10^12 claim units.
	claims, err := env.engine.ClaimBalanceOf(p.ID, investorA)
	if err != nil {
		t.Fatalf("claim balance: %v", err)
	}
	wantClaims := new(big.Int).Mul(usd(10_000), usdToClaimScale)
	if claims.Cmp(wantClaims) != 0 {
		t.Fatalf("claims = %s, want %s", claims, wantClaims)
	}

	// 50 bps incentive on $10,000 = $50, rescaled to the 18-digit reward token.
	wantReward := new(big.Int).Mul(usd(50), usdToClaimScale)
	if got := env.state.balanceRWD(investorA); got.Cmp(wantReward) != 0 {
		t.Fatalf("reward balance = %s, want %s", got, wantReward)
	}

	if n := env.emitter.count(EventTypePoolDisbursed); n != 1 {
		t.Fatalf("disbursed events = %d, want exactly 1", n)
	}
}

func TestInvestClipsToRemainingCapacity(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(10_000), usd(100), usd(4_000))
	for _, investor := range [][20]byte{investorA, investorB, investorC} {
		env.state.fund(investor, usd(4_000))
	}

	for _, investor := range [][20]byte{investorA, investorB} {
		accepted, err := env.engine.Invest(investor, p.ID, usd(4_000))
		if err != nil {
			t.Fatalf("invest: %v", err)
		}
		if accepted.Cmp(usd(4_000)) != 0 {
			t.Fatalf("accepted = %s, want %s", accepted, usd(4_000))
		}
	}

	// Only $2,000 of capacity remains: the request is clipped, not rejected.
	accepted, err := env.engine.Invest(investorC, p.ID, usd(4_000))
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	if accepted.Cmp(usd(2_000)) != 0 {
		t.Fatalf("accepted = %s, want %s", accepted, usd(2_000))
	}
	if got := env.state.balanceUSD(investorC); got.Cmp(usd(2_000)) != 0 {
		t.Fatalf("investorC balance = %s, want %s", got, usd(2_000))
	}

	stored, _ := env.engine.Get(p.ID)
	if stored.Status != StatusFunded {
		t.Fatalf("status = %s, want FUNDED", stored.Status)
	}

	// Crossing the target over three calls still disburses exactly once.
	if n := env.emitter.count(EventTypePoolDisbursed); n != 1 {
		t.Fatalf("disbursed events = %d, want exactly 1", n)
	}
	if got := env.state.balanceUSD(exporterAddr); got.Cmp(usd(9_700)) != 0 {
		t.Fatalf("exporter balance = %s, want %s", got, usd(9_700))
	}

	env.state.fund(addr(0x0D), usd(1_000))
	if _, err := env.engine.Invest(addr(0x0D), p.ID, usd(1_000)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded on funded pool, got %v", err)
	}
}

func TestInvestClipsToPerInvestorAllowance(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(20_000), usd(100), usd(5_000))
	env.state.fund(investorA, usd(10_000))

	accepted, err := env.engine.Invest(investorA, p.ID, usd(8_000))
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	if accepted.Cmp(usd(5_000)) != 0 {
		t.Fatalf("accepted = %s, want cap %s", accepted, usd(5_000))
	}
	if _, err := env.engine.Invest(investorA, p.ID, usd(100)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded once cap is reached, got %v", err)
	}
	invested, err := env.engine.InvestmentOf(p.ID, investorA)
	if err != nil {
		t.Fatalf("investment of: %v", err)
	}
	if invested.Cmp(usd(5_000)) != 0 {
		t.Fatalf("cumulative investment = %s, want %s", invested, usd(5_000))
	}
}

func TestInvestRejectsClippedBelowMinimum(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(10_000), usd(500), usd(10_000))
	env.state.fund(investorA, usd(9_900))
	env.state.fund(investorB, usd(500))

	if _, err := env.engine.Invest(investorA, p.ID, usd(9_900)); err != nil {
		t.Fatalf("invest: %v", err)
	}
	// $100 of capacity remains; the clipped acceptance falls below the minimum.
	if _, err := env.engine.Invest(investorB, p.ID, usd(500)); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
}

func TestInvestRejectsInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(10_000), usd(100), usd(10_000))
	env.state.fund(investorA, usd(50))
	if _, err := env.engine.Invest(investorA, p.ID, usd(1_000)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestInvestRejectsEscrowVault(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(10_000), usd(100), usd(10_000))
	env.state.fund(investorA, usd(5_000))
	if _, err := env.engine.Invest(investorA, p.ID, usd(5_000)); err != nil {
		t.Fatalf("invest: %v", err)
	}

	// The vault now holds escrowed funds; investing them back into the pool
	// would count the same units twice.
	if _, err := env.engine.Invest(env.state.vault, p.ID, usd(1_000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := env.state.balanceUSD(env.state.vault); got.Cmp(usd(5_000)) != 0 {
		t.Fatalf("vault balance = %s, want %s", got, usd(5_000))
	}
	escrow, _ := env.state.PoolEscrowBalance(p.ID)
	if escrow.Cmp(usd(5_000)) != 0 {
		t.Fatalf("escrow = %s, want %s", escrow, usd(5_000))
	}
	claims, err := env.engine.ClaimBalanceOf(p.ID, env.state.vault)
	if err != nil {
		t.Fatalf("claim balance: %v", err)
	}
	if claims.Sign() != 0 {
		t.Fatalf("claims minted for the vault: %s", claims)
	}
}

func TestTransferRejectsIdenticalEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.state.fund(investorA, usd(5_000))
	if err := env.engine.transferUSD(investorA, investorA, usd(1_000)); !errors.Is(err, errSelfTransfer) {
		t.Fatalf("expected errSelfTransfer, got %v", err)
	}
	if got := env.state.balanceUSD(investorA); got.Cmp(usd(5_000)) != 0 {
		t.Fatalf("balance changed on rejected self-transfer: %s", got)
	}
}

func TestInvestUnknownPool(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Invest(investorA, hashOf(0x99), usd(1_000)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRewardBudgetCapsIncentive(t *testing.T) {
	env := newTestEnv(t)
	// Budget covers only $10 of the $50 incentive the rate implies.
	budget := new(big.Int).Mul(usd(10), usdToClaimScale)
	p, err := env.engine.CreatePool(adminAddr, recvID, "receivable", usd(10_000), usd(100), usd(10_000), 2_000, budget)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	env.state.fund(investorA, usd(10_000))
	if _, err := env.engine.Invest(investorA, p.ID, usd(10_000)); err != nil {
		t.Fatalf("invest: %v", err)
	}
	if got := env.state.balanceRWD(investorA); got.Cmp(budget) != 0 {
		t.Fatalf("reward = %s, want budget cap %s", got, budget)
	}
	stored, _ := env.engine.Get(p.ID)
	if stored.RewardBudget.Sign() != 0 {
		t.Fatalf("remaining budget = %s, want 0", stored.RewardBudget)
	}
}

func TestRewardBudgetExhaustionSkipsMintWithoutFailing(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.engine.CreatePool(adminAddr, recvID, "receivable", usd(10_000), usd(100), usd(10_000), 2_000, big.NewInt(0))
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	env.state.fund(investorA, usd(1_000))
	accepted, err := env.engine.Invest(investorA, p.ID, usd(1_000))
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	if accepted.Cmp(usd(1_000)) != 0 {
		t.Fatalf("accepted = %s", accepted)
	}
	if got := env.state.balanceRWD(investorA); got.Sign() != 0 {
		t.Fatalf("reward minted despite empty budget: %s", got)
	}
	if n := env.emitter.count("reward.skipped"); n != 1 {
		t.Fatalf("skipped events = %d, want 1", n)
	}
}

func fundPool(t *testing.T, env *testEnv, p *Pool) {
	t.Helper()
	env.state.fund(investorA, usd(10_000))
	if _, err := env.engine.Invest(investorA, p.ID, usd(10_000)); err != nil {
		t.Fatalf("fund pool: %v", err)
	}
}

func TestUpdateMaturity(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(10_000), usd(100), usd(10_000))

	// ACTIVE pools never mature, regardless of the clock.
	if err := env.engine.UpdateMaturity(p.ID, 3_000); err != nil {
		t.Fatalf("update maturity: %v", err)
	}
	stored, _ := env.engine.Get(p.ID)
	if stored.Status != StatusActive {
		t.Fatalf("status = %s, want ACTIVE", stored.Status)
	}

	fundPool(t, env, p)

	// Early calls on a funded pool are a no-op, not an error.
	if err := env.engine.UpdateMaturity(p.ID, 1_500); err != nil {
		t.Fatalf("update maturity: %v", err)
	}
	stored, _ = env.engine.Get(p.ID)
	if stored.Status != StatusFunded {
		t.Fatalf("status = %s, want FUNDED", stored.Status)
	}

	if err := env.engine.UpdateMaturity(p.ID, 2_000); err != nil {
		t.Fatalf("update maturity: %v", err)
	}
	stored, _ = env.engine.Get(p.ID)
	if stored.Status != StatusMatured {
		t.Fatalf("status = %s, want MATURED", stored.Status)
	}
}

func TestRecordPaymentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(10_000), usd(100), usd(10_000))

	env.state.fund(adminAddr, usd(11_000))
	if err := env.engine.RecordPayment(adminAddr, p.ID, usd(1_000)); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState before funding, got %v", err)
	}

	fundPool(t, env, p)

	if err := env.engine.RecordPayment(investorA, p.ID, usd(1_000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if err := env.engine.RecordPayment(adminAddr, p.ID, usd(4_000)); err != nil {
		t.Fatalf("record payment: %v", err)
	}
	stored, _ := env.engine.Get(p.ID)
	if stored.PaymentStatus != PaymentPartial || stored.Status != StatusFunded {
		t.Fatalf("after partial: payment=%s status=%s", stored.PaymentStatus, stored.Status)
	}

	if err := env.engine.RecordPayment(adminAddr, p.ID, usd(6_300)); err != nil {
		t.Fatalf("record payment: %v", err)
	}
	stored, _ = env.engine.Get(p.ID)
	if stored.PaymentStatus != PaymentFull || stored.Status != StatusPaid {
		t.Fatalf("after full: payment=%s status=%s", stored.PaymentStatus, stored.Status)
	}
	if stored.TotalPaid.Cmp(usd(10_300)) != 0 {
		t.Fatalf("totalPaid = %s, want %s", stored.TotalPaid, usd(10_300))
	}
	escrow, _ := env.state.PoolEscrowBalance(p.ID)
	if escrow.Cmp(usd(10_300)) != 0 {
		t.Fatalf("escrow = %s, want %s", escrow, usd(10_300))
	}
}

func TestDistributeYieldProRataWithRemainderSweep(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(9_000), usd(100), usd(9_000))
	env.state.fund(investorA, usd(4_000))
	env.state.fund(investorB, usd(3_000))
	env.state.fund(investorC, usd(2_000))
	for investor, amount := range map[[20]byte]*big.Int{
		investorA: usd(4_000),
		investorB: usd(3_000),
		investorC: usd(2_000),
	} {
		if _, err := env.engine.Invest(investor, p.ID, amount); err != nil {
			t.Fatalf("invest: %v", err)
		}
	}

	if err := env.engine.DistributeYield(p.ID); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState before repayment, got %v", err)
	}

	env.state.fund(adminAddr, usd(10_000))
	if err := env.engine.RecordPayment(adminAddr, p.ID, usd(10_000)); err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if err := env.engine.DistributeYield(p.ID); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// floor(4/9 * 10,000e6) + floor(3/9 * 10,000e6) + floor(2/9 * 10,000e6)
	// leaves one smallest unit, swept to the platform treasury.
	wantA := big.NewInt(4_444_444_444)
	wantB := big.NewInt(3_333_333_333)
	wantC := big.NewInt(2_222_222_222)
	if got := env.state.balanceUSD(investorA); got.Cmp(wantA) != 0 {
		t.Fatalf("investorA payout = %s, want %s", got, wantA)
	}
	if got := env.state.balanceUSD(investorB); got.Cmp(wantB) != 0 {
		t.Fatalf("investorB payout = %s, want %s", got, wantB)
	}
	if got := env.state.balanceUSD(investorC); got.Cmp(wantC) != 0 {
		t.Fatalf("investorC payout = %s, want %s", got, wantC)
	}

	// Platform holds its disbursement fee (90e6) plus the swept remainder.
	wantPlatform := new(big.Int).Add(usd(90), big.NewInt(1))
	if got := env.state.balanceUSD(platformAddr); got.Cmp(wantPlatform) != 0 {
		t.Fatalf("platform balance = %s, want %s", got, wantPlatform)
	}

	stored, _ := env.engine.Get(p.ID)
	if stored.Status != StatusClosed {
		t.Fatalf("status = %s, want CLOSED", stored.Status)
	}
	escrow, _ := env.state.PoolEscrowBalance(p.ID)
	if escrow.Sign() != 0 {
		t.Fatalf("escrow = %s, want 0", escrow)
	}
	for _, investor := range [][20]byte{investorA, investorB, investorC} {
		claims, err := env.engine.ClaimBalanceOf(p.ID, investor)
		if err != nil {
			t.Fatalf("claim balance: %v", err)
		}
		if claims.Sign() != 0 {
			t.Fatalf("claims not burned for %x: %s", investor, claims)
		}
		invested, _ := env.engine.InvestmentOf(p.ID, investor)
		if invested.Sign() != 0 {
			t.Fatalf("investment not cleared for %x: %s", investor, invested)
		}
	}
	supply, _ := env.state.ClaimTotalSupply(p.ID)
	if supply.Sign() != 0 {
		t.Fatalf("claim supply = %s, want 0", supply)
	}

	// A second distribution on the closed pool must fail.
	if err := env.engine.DistributeYield(p.ID); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState on closed pool, got %v", err)
	}
}

func TestMarkDefaulted(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(10_000), usd(100), usd(10_000))

	if err := env.engine.MarkDefaulted(investorA, p.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.MarkDefaulted(adminAddr, p.ID); err != nil {
		t.Fatalf("mark defaulted: %v", err)
	}
	stored, _ := env.engine.Get(p.ID)
	if stored.Status != StatusDefaulted {
		t.Fatalf("status = %s, want DEFAULTED", stored.Status)
	}
	if err := env.engine.MarkDefaulted(adminAddr, p.ID); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState on defaulted pool, got %v", err)
	}
	env.state.fund(investorA, usd(1_000))
	if _, err := env.engine.Invest(investorA, p.ID, usd(1_000)); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState investing into defaulted pool, got %v", err)
	}
}

func TestConservationAcrossFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPool(t, usd(10_000), usd(100), usd(10_000))
	env.state.fund(investorA, usd(10_000))
	env.state.fund(adminAddr, usd(10_300))

	total := func() *big.Int {
		sum := big.NewInt(0)
		for _, a := range [][20]byte{investorA, adminAddr, exporterAddr, platformAddr, amcAddr, env.state.vault} {
			sum.Add(sum, env.state.balanceUSD(a))
		}
		return sum
	}
	before := total()

	if _, err := env.engine.Invest(investorA, p.ID, usd(10_000)); err != nil {
		t.Fatalf("invest: %v", err)
	}
	if err := env.engine.UpdateMaturity(p.ID, 2_000); err != nil {
		t.Fatalf("mature: %v", err)
	}
	if err := env.engine.RecordPayment(adminAddr, p.ID, usd(10_300)); err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if err := env.engine.DistributeYield(p.ID); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	if after := total(); after.Cmp(before) != 0 {
		t.Fatalf("settlement units not conserved: before=%s after=%s", before, after)
	}
	// Sole investor receives the full repayment.
	if got := env.state.balanceUSD(investorA); got.Cmp(usd(10_300)) != 0 {
		t.Fatalf("investor payout = %s, want %s", got, usd(10_300))
	}
}
