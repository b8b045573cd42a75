package coordinator

import (
	"math/bits"
	"time"

	"github.com/celer-network/go-sequencer/types"
)

// PublishTimeManager derives publish deadlines from epoch aligned windows.
// Window k of length d covers [k*d, (k+1)*d). The deadline of a run is the
// start of the window containing now: a tx created before it has already
// waited through a full publish window.
type PublishTimeManager struct {
	publishInterval time.Duration
	bridges         BridgeResolver
	clock           Clock
}

func NewPublishTimeManager(publishInterval time.Duration, bridges BridgeResolver, clock Clock) *PublishTimeManager {
	if clock == nil {
		clock = SystemClock
	}
	return &PublishTimeManager{
		publishInterval: publishInterval,
		bridges:         bridges,
		clock:           clock,
	}
}

// bridgePeriods is the number of publish windows a bridge queue may wait.
// Small batches and subsidised bridges wait less.
func bridgePeriods(cfg *BridgeConfig) int64 {
	periods := int64(cfg.RollupFrequency)
	if periods <= 0 {
		periods = 1
		if cfg.NumTxs > 1 {
			periods = int64(bits.Len(uint(cfg.NumTxs - 1)))
		}
	}
	if cfg.Subsidy > 0 && periods > 1 {
		periods--
	}
	return periods
}

func window(now time.Time, d time.Duration, next bool) types.RollupTimeout {
	k := now.UnixNano() / int64(d)
	if next {
		k++
	}
	return types.RollupTimeout{
		Timeout:      time.Unix(0, k*int64(d)),
		RollupNumber: k,
	}
}

func (m *PublishTimeManager) timeouts(next bool) types.RollupTimeouts {
	timeouts := types.RollupTimeouts{
		BridgeTimeouts: make(map[types.BridgeCallData]types.RollupTimeout),
	}
	if m.publishInterval <= 0 {
		return timeouts
	}
	now := m.clock.Now()
	base := window(now, m.publishInterval, next)
	timeouts.BaseTimeout = &base

	if m.bridges == nil {
		return timeouts
	}
	for _, cfg := range m.bridges.GetBridgeConfigs() {
		d := m.publishInterval * time.Duration(bridgePeriods(&cfg))
		timeouts.BridgeTimeouts[cfg.BridgeCallData] = window(now, d, next)
	}
	return timeouts
}

// CalculateTimeouts returns the deadlines that have most recently passed.
func (m *PublishTimeManager) CalculateTimeouts() types.RollupTimeouts {
	return m.timeouts(false)
}

// CalculateNextTimeouts returns the upcoming deadlines.
func (m *PublishTimeManager) CalculateNextTimeouts() types.RollupTimeouts {
	return m.timeouts(true)
}
