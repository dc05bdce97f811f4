package pool

import (
	"fmt"
	"math/big"
	"strings"
)

// Status tracks the pool lifecycle. Transitions only move forward along
// ACTIVE -> FUNDED -> MATURED -> PAID -> CLOSED, with DEFAULTED reachable from
// any pre-PAID state as a terminal alternative.
type Status uint8

const (
	StatusActive Status = iota
	StatusFunded
	StatusMatured
	StatusPaid
	StatusClosed
	StatusDefaulted
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusFunded, StatusMatured, StatusPaid, StatusClosed, StatusDefaulted:
		return true
	default:
		return false
	}
}

// String renders the status for event payloads and API responses.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusFunded:
		return "FUNDED"
	case StatusMatured:
		return "MATURED"
	case StatusPaid:
		return "PAID"
	case StatusClosed:
		return "CLOSED"
	case StatusDefaulted:
		return "DEFAULTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// PaymentStatus tracks cumulative repayment progress against the target.
type PaymentStatus uint8

const (
	PaymentNone PaymentStatus = iota
	PaymentPartial
	PaymentFull
)

// String renders the payment status for event payloads and API responses.
func (s PaymentStatus) String() string {
	switch s {
	case PaymentNone:
		return "NONE"
	case PaymentPartial:
		return "PARTIAL"
	case PaymentFull:
		return "FULL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// FeePolicy is the immutable fee and incentive configuration frozen onto a
// pool at creation time, so pools created under different policy versions stay
// internally consistent.
type FeePolicy struct {
	PlatformFeeBps uint32
	AMCFeeBps      uint32
	RewardBps      uint32
}

// Pool is an investment vehicle funding a single verified receivable. All
// monetary fields except RewardBudget are in the settlement currency scaled by
// 10^6; RewardBudget is the remaining incentive budget scaled by 10^18.
type Pool struct {
	ID            [32]byte
	PoolType      string
	Receivable    [32]byte
	Exporter      [20]byte
	TargetAmount  *big.Int
	MinInvestment *big.Int
	MaxInvestment *big.Int
	APRBps        uint32
	MaturityDate  int64
	Fees          FeePolicy
	RewardBudget  *big.Int
	TotalInvested *big.Int
	TotalPaid     *big.Int
	PaymentStatus PaymentStatus
	Status        Status
	Disbursed     bool
	CreatedAt     int64
}

// Clone returns a deep copy of the pool so callers can safely mutate the copy
// without affecting the stored instance.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TargetAmount = cloneOrZero(p.TargetAmount)
	clone.MinInvestment = cloneOrZero(p.MinInvestment)
	clone.MaxInvestment = cloneOrZero(p.MaxInvestment)
	clone.RewardBudget = cloneOrZero(p.RewardBudget)
	clone.TotalInvested = cloneOrZero(p.TotalInvested)
	clone.TotalPaid = cloneOrZero(p.TotalPaid)
	return &clone
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// SanitizePool validates and normalises the supplied pool record, returning a
// cloned instance with non-nil monetary fields. The original is not mutated.
func SanitizePool(p *Pool) (*Pool, error) {
	if p == nil {
		return nil, fmt.Errorf("nil pool")
	}
	clone := p.Clone()
	clone.PoolType = strings.TrimSpace(clone.PoolType)
	if clone.TargetAmount.Sign() <= 0 {
		return nil, fmt.Errorf("pool target must be positive")
	}
	if clone.MinInvestment.Sign() <= 0 {
		return nil, fmt.Errorf("pool minimum investment must be positive")
	}
	if clone.MaxInvestment.Cmp(clone.MinInvestment) < 0 {
		return nil, fmt.Errorf("pool per-investor cap below minimum investment")
	}
	if clone.TotalInvested.Sign() < 0 || clone.TotalInvested.Cmp(clone.TargetAmount) > 0 {
		return nil, fmt.Errorf("pool invested total out of range")
	}
	if uint64(clone.Fees.PlatformFeeBps)+uint64(clone.Fees.AMCFeeBps) > 10_000 {
		return nil, fmt.Errorf("pool fee bps out of range")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid pool status: %d", clone.Status)
	}
	return clone, nil
}

// DisbursementSplit is the three-way division of the funding target performed
// exactly once when the target is reached. All components are floored to the
// settlement currency's smallest unit and sum exactly to the target.
type DisbursementSplit struct {
	ExporterAmount *big.Int
	PlatformFee    *big.Int
	AMCFee         *big.Int
}

// SplitTarget computes the disbursement split with a single rounding rule:
// both fees are floored independently and the exporter amount is derived as
// the remainder, so the three legs always sum exactly to target.
func SplitTarget(target *big.Int, fees FeePolicy) DisbursementSplit {
	bps := big.NewInt(10_000)
	platform := new(big.Int).Mul(target, new(big.Int).SetUint64(uint64(fees.PlatformFeeBps)))
	platform.Quo(platform, bps)
	amc := new(big.Int).Mul(target, new(big.Int).SetUint64(uint64(fees.AMCFeeBps)))
	amc.Quo(amc, bps)
	exporter := new(big.Int).Sub(target, platform)
	exporter.Sub(exporter, amc)
	return DisbursementSplit{ExporterAmount: exporter, PlatformFee: platform, AMCFee: amc}
}
