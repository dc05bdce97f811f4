package pool

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"tradefin/core/types"
)

const (
	EventTypePoolCreated      = "pool.created"
	EventTypePoolInvested     = "pool.invested"
	EventTypePoolDisbursed    = "pool.disbursed"
	EventTypePoolMatured      = "pool.matured"
	EventTypePaymentRecorded  = "pool.payment_recorded"
	EventTypeYieldDistributed = "pool.yield_distributed"
	EventTypePoolDefaulted    = "pool.defaulted"
)

// NewCreatedEvent returns the canonical payload for a newly allocated pool.
func NewCreatedEvent(p *Pool) *types.Event {
	evt := newPoolEvent(EventTypePoolCreated, p)
	if p != nil {
		evt.Attributes["receivable"] = hex.EncodeToString(p.Receivable[:])
		evt.Attributes["minInvestment"] = p.MinInvestment.String()
		evt.Attributes["maxInvestment"] = p.MaxInvestment.String()
		evt.Attributes["maturityDate"] = strconv.FormatInt(p.MaturityDate, 10)
		evt.Attributes["rewardBudget"] = p.RewardBudget.String()
	}
	return evt
}

// NewInvestedEvent returns the payload for an accepted investment, carrying
// the clipped settlement amount and the claim tokens minted for it.
func NewInvestedEvent(p *Pool, investor [20]byte, accepted, minted *big.Int) *types.Event {
	evt := newPoolEvent(EventTypePoolInvested, p)
	evt.Attributes["investor"] = hex.EncodeToString(investor[:])
	evt.Attributes["amount"] = accepted.String()
	evt.Attributes["claimMinted"] = minted.String()
	return evt
}

// NewDisbursedEvent returns the payload for the exactly-once exporter
// disbursement, carrying the full three-way split.
func NewDisbursedEvent(p *Pool, split DisbursementSplit) *types.Event {
	evt := newPoolEvent(EventTypePoolDisbursed, p)
	evt.Attributes["exporter"] = hex.EncodeToString(p.Exporter[:])
	evt.Attributes["exporterAmount"] = split.ExporterAmount.String()
	evt.Attributes["platformFee"] = split.PlatformFee.String()
	evt.Attributes["amcFee"] = split.AMCFee.String()
	return evt
}

// NewMaturedEvent returns the payload emitted when a funded pool matures.
func NewMaturedEvent(p *Pool) *types.Event {
	return newPoolEvent(EventTypePoolMatured, p)
}

// NewPaymentRecordedEvent returns the payload for a repayment instalment.
func NewPaymentRecordedEvent(p *Pool, amount *big.Int) *types.Event {
	evt := newPoolEvent(EventTypePaymentRecorded, p)
	evt.Attributes["amount"] = amount.String()
	evt.Attributes["totalPaid"] = p.TotalPaid.String()
	evt.Attributes["paymentStatus"] = p.PaymentStatus.String()
	return evt
}

// NewYieldDistributedEvent returns the payload for the final distribution,
// carrying the total paid out to holders and the swept rounding remainder.
func NewYieldDistributedEvent(p *Pool, distributed, remainder *big.Int) *types.Event {
	evt := newPoolEvent(EventTypeYieldDistributed, p)
	evt.Attributes["distributed"] = distributed.String()
	evt.Attributes["remainder"] = remainder.String()
	return evt
}

// NewDefaultedEvent returns the payload for an administrative default.
func NewDefaultedEvent(p *Pool) *types.Event {
	return newPoolEvent(EventTypePoolDefaulted, p)
}

func newPoolEvent(eventType string, p *Pool) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["pool"] = hex.EncodeToString(p.ID[:])
	attrs["status"] = p.Status.String()
	attrs["targetAmount"] = p.TargetAmount.String()
	attrs["totalInvested"] = p.TotalInvested.String()
	attrs["totalPaid"] = p.TotalPaid.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
