package types

import (
	"time"
)

// RollupTimeout is a publish deadline together with the index of the publish
// window that ends at it.
type RollupTimeout struct {
	Timeout      time.Time
	RollupNumber int64
}

type RollupTimeouts struct {
	// Nil when no publish interval is configured.
	BaseTimeout    *RollupTimeout
	BridgeTimeouts map[BridgeCallData]RollupTimeout
}

// BridgeTimeout returns the deadline of bc, if the bridge has one.
func (t *RollupTimeouts) BridgeTimeout(bc BridgeCallData) *RollupTimeout {
	if t == nil || t.BridgeTimeouts == nil {
		return nil
	}
	timeout, ok := t.BridgeTimeouts[bc]
	if !ok {
		return nil
	}
	return &timeout
}

type BridgeProfile struct {
	BridgeCallData BridgeCallData
	NumTxs         int
	GasAccrued     int64
	GasSubsidy     int64
	GasThreshold   int64
	EarliestTx     time.Time
	LatestTx       time.Time
}

// RollupProfile summarises a candidate batch. A new one is produced for every
// evaluation.
type RollupProfile struct {
	Published     bool
	RollupSize    int
	TotalTxs      int
	TotalGas      int64
	TotalCallData int64
	// Fees collected minus the estimated L1 gas cost, in gas units.
	GasBalance     int64
	InnerChains    int
	OuterChains    int
	EarliestTx     time.Time
	LatestTx       time.Time
	BridgeProfiles []BridgeProfile

	Deadlined     bool
	Profitable    bool
	OutOfGas      bool
	OutOfCallData bool
	OutOfSlots    bool
}

// EmptyProfile is returned for interrupted runs.
func EmptyProfile(rollupSize int) *RollupProfile {
	return &RollupProfile{RollupSize: rollupSize}
}

// BridgeProfile returns the profile of bc, if it is part of the batch.
func (p *RollupProfile) BridgeProfile(bc BridgeCallData) (BridgeProfile, bool) {
	for _, bp := range p.BridgeProfiles {
		if bp.BridgeCallData == bc {
			return bp, true
		}
	}
	return BridgeProfile{}, false
}
