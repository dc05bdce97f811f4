package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"tradefin/native/directory"
	"tradefin/native/pool"
	"tradefin/native/receivable"
	"tradefin/storage"
)

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

func usd(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), big.NewInt(1_000_000))
}

var (
	adminAddr    = addr(0x01)
	verifierAddr = addr(0x02)
	exporterAddr = addr(0x03)
	importerAddr = addr(0x04)
	platformAddr = addr(0x05)
	amcAddr      = addr(0x06)
	investorAddr = addr(0x0A)
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	node, err := NewNode(storage.NewMemDB(), NodeConfig{
		Roles:            NewRoleSet([][20]byte{adminAddr}, [][20]byte{verifierAddr}),
		PlatformTreasury: platformAddr,
		AMCTreasury:      amcAddr,
		Fees:             pool.FeePolicy{PlatformFeeBps: 100, AMCFeeBps: 200, RewardBps: 50},
		DevFaucet:        true,
	})
	require.NoError(t, err)
	node.SetNowFunc(func() int64 { return 1_000 })
	return node
}

// approveAndVerify walks a receivable through directory approval, creation and
// verification, returning its identifier.
func approveAndVerify(t *testing.T, node *Node) [32]byte {
	t.Helper()
	_, err := node.ApproveExporter(adminAddr, &directory.ExporterProfile{
		Exporter:     exporterAddr,
		BusinessName: "Mombasa Coffee Exports Ltd",
		Country:      "KE",
		KYCHash:      hashOf(0xA1),
		CACHash:      hashOf(0xA2),
		BankHash:     hashOf(0xA3),
	})
	require.NoError(t, err)

	rec, err := node.CreateReceivable(exporterAddr, importerAddr, usd(12_000), 5_000, hashOf(0x11), 1)
	require.NoError(t, err)
	require.NoError(t, node.VerifyReceivable(verifierAddr, rec.ID, 35, 1_200))
	return rec.ID
}

func TestNodeFullSettlementLifecycle(t *testing.T) {
	node := newTestNode(t)
	recID := approveAndVerify(t, node)

	// Maturity is in the engine's fake future but the wall clock's past, so
	// UpdateMaturity below fires immediately.
	p, err := node.CreatePool(adminAddr, recID, "receivable", usd(10_000), usd(100), usd(10_000), 2_000, new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil))
	require.NoError(t, err)
	require.Equal(t, pool.StatusActive, p.Status)

	require.NoError(t, node.CreditSettlement(investorAddr, usd(10_000)))
	accepted, err := node.Invest(investorAddr, p.ID, usd(10_000))
	require.NoError(t, err)
	require.Zero(t, accepted.Cmp(usd(10_000)))

	stored, err := node.Pool(p.ID)
	require.NoError(t, err)
	require.Equal(t, pool.StatusFunded, stored.Status)
	require.True(t, stored.Disbursed)

	exporterAcc, err := node.Account(exporterAddr)
	require.NoError(t, err)
	require.Zero(t, exporterAcc.BalanceUSD.Cmp(usd(9_700)))

	claims, err := node.ClaimBalanceOf(p.ID, investorAddr)
	require.NoError(t, err)
	require.Positive(t, claims.Sign())

	require.NoError(t, node.UpdateMaturity(p.ID))
	stored, err = node.Pool(p.ID)
	require.NoError(t, err)
	require.Equal(t, pool.StatusMatured, stored.Status)

	require.NoError(t, node.CreditSettlement(adminAddr, usd(10_300)))
	require.NoError(t, node.RecordPayment(adminAddr, p.ID, usd(10_300)))
	stored, err = node.Pool(p.ID)
	require.NoError(t, err)
	require.Equal(t, pool.StatusPaid, stored.Status)

	require.NoError(t, node.DistributeYield(p.ID))
	stored, err = node.Pool(p.ID)
	require.NoError(t, err)
	require.Equal(t, pool.StatusClosed, stored.Status)

	investorAcc, err := node.Account(investorAddr)
	require.NoError(t, err)
	require.Zero(t, investorAcc.BalanceUSD.Cmp(usd(10_300)))
	require.Positive(t, investorAcc.BalanceRWD.Sign(), "incentive tokens should have been minted")

	claims, err = node.ClaimBalanceOf(p.ID, investorAddr)
	require.NoError(t, err)
	require.Zero(t, claims.Sign())
}

func TestNodeRoleEnforcement(t *testing.T) {
	node := newTestNode(t)

	_, err := node.ApproveExporter(investorAddr, &directory.ExporterProfile{
		Exporter:     exporterAddr,
		BusinessName: "Mombasa Coffee Exports Ltd",
	})
	require.ErrorIs(t, err, directory.ErrUnauthorized)

	recID := approveAndVerify(t, node)
	require.ErrorIs(t, node.VerifyReceivable(adminAddr, recID, 10, 1_000), receivable.ErrUnauthorized)

	_, err = node.CreatePool(verifierAddr, recID, "receivable", usd(10_000), usd(100), usd(10_000), 2_000, big.NewInt(0))
	require.ErrorIs(t, err, pool.ErrUnauthorized)
}

func TestNodeFaucetDisabled(t *testing.T) {
	node, err := NewNode(storage.NewMemDB(), NodeConfig{
		Roles: NewRoleSet(nil, nil),
	})
	require.NoError(t, err)
	require.ErrorIs(t, node.CreditSettlement(investorAddr, usd(100)), ErrFaucetDisabled)
}

func TestNodeCreateReceivableRequiresApproval(t *testing.T) {
	node := newTestNode(t)
	_, err := node.CreateReceivable(exporterAddr, importerAddr, usd(1_000), 5_000, hashOf(0x11), 1)
	require.ErrorIs(t, err, receivable.ErrUnauthorized)
}
