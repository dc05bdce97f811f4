package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tradefin/core/types"
	"tradefin/native/directory"
	"tradefin/native/pool"
	"tradefin/native/receivable"
	"tradefin/storage"
)

// Key prefixes for the state manager's keyed store. Every mutation of ledger
// state is routed through the engine operations; there is no ambient global
// state outside the backing database.
const (
	prefixProfile      = "directory/profile/"
	prefixReceivable   = "receivable/"
	prefixPool         = "pool/"
	prefixPoolByRecv   = "pool/byrecv/"
	prefixPoolEscrow   = "pool/escrow/"
	prefixInvestment   = "pool/investment/"
	prefixClaimBalance = "claim/balance/"
	prefixClaimSupply  = "claim/supply/"
	prefixClaimHolders = "claim/holders/"
	prefixAccount      = "account/"
)

var errNegativeAmount = errors.New("state: amount must be non-negative")

// Manager persists the settlement ledger (profiles, receivables, pools,
// investments, claim balances, accounts) over a key-value database with a JSON
// codec. It implements the state interfaces of every native engine.
type Manager struct {
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) putJSON(key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put([]byte(key), payload)
}

func (m *Manager) getJSON(key string, out any) (bool, error) {
	payload, err := m.db.Get([]byte(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) getBigInt(key string) (*big.Int, error) {
	var value big.Int
	ok, err := m.getJSON(key, &value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &value, nil
}

func (m *Manager) putBigInt(key string, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return errNegativeAmount
	}
	return m.putJSON(key, value)
}

// --- Exporter directory ---

func (m *Manager) ProfilePut(p *directory.ExporterProfile) error {
	sanitized, err := directory.SanitizeProfile(p)
	if err != nil {
		return err
	}
	return m.putJSON(prefixProfile+hex.EncodeToString(sanitized.Exporter[:]), sanitized)
}

func (m *Manager) ProfileGet(exporter [20]byte) (*directory.ExporterProfile, bool, error) {
	var profile directory.ExporterProfile
	ok, err := m.getJSON(prefixProfile+hex.EncodeToString(exporter[:]), &profile)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &profile, true, nil
}

// --- Receivable ledger ---

func (m *Manager) ReceivablePut(r *receivable.Receivable) error {
	sanitized, err := receivable.Sanitize(r)
	if err != nil {
		return err
	}
	return m.putJSON(prefixReceivable+hex.EncodeToString(sanitized.ID[:]), sanitized)
}

func (m *Manager) ReceivableGet(id [32]byte) (*receivable.Receivable, bool, error) {
	var rec receivable.Receivable
	ok, err := m.getJSON(prefixReceivable+hex.EncodeToString(id[:]), &rec)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

// --- Pool settlement engine ---

func (m *Manager) PoolPut(p *pool.Pool) error {
	sanitized, err := pool.SanitizePool(p)
	if err != nil {
		return err
	}
	return m.putJSON(prefixPool+hex.EncodeToString(sanitized.ID[:]), sanitized)
}

func (m *Manager) PoolGet(id [32]byte) (*pool.Pool, bool, error) {
	var p pool.Pool
	ok, err := m.getJSON(prefixPool+hex.EncodeToString(id[:]), &p)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (m *Manager) PoolIndexReceivable(recv [32]byte, poolID [32]byte) error {
	return m.putJSON(prefixPoolByRecv+hex.EncodeToString(recv[:]), hex.EncodeToString(poolID[:]))
}

func (m *Manager) PoolLookupByReceivable(recv [32]byte) ([32]byte, bool, error) {
	var encoded string
	ok, err := m.getJSON(prefixPoolByRecv+hex.EncodeToString(recv[:]), &encoded)
	if err != nil || !ok {
		return [32]byte{}, false, err
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, false, fmt.Errorf("state: corrupt pool index for %x", recv)
	}
	var id [32]byte
	copy(id[:], raw)
	return id, true, nil
}

func (m *Manager) PoolCredit(id [32]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return errNegativeAmount
	}
	key := prefixPoolEscrow + hex.EncodeToString(id[:])
	current, err := m.getBigInt(key)
	if err != nil {
		return err
	}
	return m.putBigInt(key, new(big.Int).Add(current, amt))
}

func (m *Manager) PoolDebit(id [32]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return errNegativeAmount
	}
	key := prefixPoolEscrow + hex.EncodeToString(id[:])
	current, err := m.getBigInt(key)
	if err != nil {
		return err
	}
	if current.Cmp(amt) < 0 {
		return fmt.Errorf("state: pool escrow underflow for %x", id)
	}
	return m.putBigInt(key, new(big.Int).Sub(current, amt))
}

func (m *Manager) PoolEscrowBalance(id [32]byte) (*big.Int, error) {
	return m.getBigInt(prefixPoolEscrow + hex.EncodeToString(id[:]))
}

// PoolVaultAddress returns the module vault holding escrowed settlement funds.
// The address is derived from a fixed label so it cannot collide with a
// participant key.
func (m *Manager) PoolVaultAddress() ([20]byte, error) {
	digest := ethcrypto.Keccak256([]byte("tradefin/pool-vault"))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr, nil
}

func (m *Manager) InvestmentGet(poolID [32]byte, investor [20]byte) (*big.Int, error) {
	return m.getBigInt(prefixInvestment + hex.EncodeToString(poolID[:]) + "/" + hex.EncodeToString(investor[:]))
}

func (m *Manager) InvestmentPut(poolID [32]byte, investor [20]byte, amount *big.Int) error {
	return m.putBigInt(prefixInvestment+hex.EncodeToString(poolID[:])+"/"+hex.EncodeToString(investor[:]), amount)
}

// --- Claim token ledger ---

func (m *Manager) ClaimBalance(poolID [32]byte, holder [20]byte) (*big.Int, error) {
	return m.getBigInt(prefixClaimBalance + hex.EncodeToString(poolID[:]) + "/" + hex.EncodeToString(holder[:]))
}

func (m *Manager) SetClaimBalance(poolID [32]byte, holder [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errNegativeAmount
	}
	key := prefixClaimBalance + hex.EncodeToString(poolID[:]) + "/" + hex.EncodeToString(holder[:])
	if err := m.putBigInt(key, amount); err != nil {
		return err
	}
	return m.updateHolderIndex(poolID, holder, amount.Sign() > 0)
}

func (m *Manager) ClaimTotalSupply(poolID [32]byte) (*big.Int, error) {
	return m.getBigInt(prefixClaimSupply + hex.EncodeToString(poolID[:]))
}

func (m *Manager) SetClaimTotalSupply(poolID [32]byte, amount *big.Int) error {
	return m.putBigInt(prefixClaimSupply+hex.EncodeToString(poolID[:]), amount)
}

// ClaimHolders returns the addresses with a nonzero claim balance for the
// pool, sorted for deterministic distribution order.
func (m *Manager) ClaimHolders(poolID [32]byte) ([][20]byte, error) {
	encoded, err := m.holderIndex(poolID)
	if err != nil {
		return nil, err
	}
	holders := make([][20]byte, 0, len(encoded))
	for _, entry := range encoded {
		raw, err := hex.DecodeString(entry)
		if err != nil || len(raw) != 20 {
			return nil, fmt.Errorf("state: corrupt holder index for %x", poolID)
		}
		var holder [20]byte
		copy(holder[:], raw)
		holders = append(holders, holder)
	}
	return holders, nil
}

func (m *Manager) holderIndex(poolID [32]byte) ([]string, error) {
	var encoded []string
	if _, err := m.getJSON(prefixClaimHolders+hex.EncodeToString(poolID[:]), &encoded); err != nil {
		return nil, err
	}
	return encoded, nil
}

func (m *Manager) updateHolderIndex(poolID [32]byte, holder [20]byte, present bool) error {
	encoded, err := m.holderIndex(poolID)
	if err != nil {
		return err
	}
	entry := hex.EncodeToString(holder[:])
	idx := sort.SearchStrings(encoded, entry)
	found := idx < len(encoded) && encoded[idx] == entry
	switch {
	case present && !found:
		encoded = append(encoded, "")
		copy(encoded[idx+1:], encoded[idx:])
		encoded[idx] = entry
	case !present && found:
		encoded = append(encoded[:idx], encoded[idx+1:]...)
	default:
		return nil
	}
	return m.putJSON(prefixClaimHolders+hex.EncodeToString(poolID[:]), encoded)
}

// --- Accounts ---

func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	var acc types.Account
	ok, err := m.getJSON(prefixAccount+hex.EncodeToString(addr), &acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{BalanceUSD: big.NewInt(0), BalanceRWD: big.NewInt(0)}, nil
	}
	return acc.Clone(), nil
}

func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	return m.putJSON(prefixAccount+hex.EncodeToString(addr), account.Clone())
}
