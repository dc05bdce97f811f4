package reward

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"tradefin/core/types"
)

const (
	EventTypeRewardMinted  = "reward.minted"
	EventTypeRewardSkipped = "reward.skipped"
)

// BpsDenominator is the basis-point scale shared with the settlement engine.
const BpsDenominator = 10_000

// usdToRewardScale bridges the settlement currency (10^6) to the incentive
// token (10^18).
var usdToRewardScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

// Compute returns the incentive amount minted for an accepted investment:
// amount x rewardBps / 10000, rescaled to the 18-digit reward token, capped by
// the pool's remaining reward budget. A zero result means no mint.
func Compute(amountUSD *big.Int, rewardBps uint32, remainingBudget *big.Int) *big.Int {
	if amountUSD == nil || amountUSD.Sign() <= 0 || rewardBps == 0 {
		return big.NewInt(0)
	}
	reward := new(big.Int).Mul(amountUSD, new(big.Int).SetUint64(uint64(rewardBps)))
	reward.Quo(reward, big.NewInt(BpsDenominator))
	reward.Mul(reward, usdToRewardScale)
	if reward.Sign() <= 0 {
		return big.NewInt(0)
	}
	if remainingBudget == nil || remainingBudget.Sign() <= 0 {
		return big.NewInt(0)
	}
	if reward.Cmp(remainingBudget) > 0 {
		return new(big.Int).Set(remainingBudget)
	}
	return reward
}

// NewMintedEvent returns the canonical payload emitted when an incentive mint
// lands in the investor account.
func NewMintedEvent(pool [32]byte, investor [20]byte, rewardBps uint32, amount *big.Int) *types.Event {
	attrs := map[string]string{
		"pool":      hex.EncodeToString(pool[:]),
		"investor":  hex.EncodeToString(investor[:]),
		"rewardBps": strconv.FormatUint(uint64(rewardBps), 10),
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	} else {
		attrs["amount"] = "0"
	}
	return &types.Event{Type: EventTypeRewardMinted, Attributes: attrs}
}

// NewSkippedEvent returns the payload emitted when the incentive mint is
// skipped (e.g. exhausted budget or a zero reward rate). The investment itself
// is unaffected.
func NewSkippedEvent(pool [32]byte, investor [20]byte, reason string) *types.Event {
	return &types.Event{Type: EventTypeRewardSkipped, Attributes: map[string]string{
		"pool":     hex.EncodeToString(pool[:]),
		"investor": hex.EncodeToString(investor[:]),
		"reason":   reason,
	}}
}
