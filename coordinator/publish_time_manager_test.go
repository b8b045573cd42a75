package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(now time.Time) Clock {
	return ClockFunc(func() time.Time { return now })
}

func TestBridgePeriods(t *testing.T) {
	tests := []struct {
		name string
		cfg  BridgeConfig
		want int64
	}{
		{"single tx", BridgeConfig{NumTxs: 1}, 1},
		{"unset batch size", BridgeConfig{}, 1},
		{"two txs", BridgeConfig{NumTxs: 2}, 1},
		{"four txs", BridgeConfig{NumTxs: 4}, 2},
		{"five txs", BridgeConfig{NumTxs: 5}, 3},
		{"thirty two txs", BridgeConfig{NumTxs: 32}, 5},
		{"subsidised", BridgeConfig{NumTxs: 32, Subsidy: 1}, 4},
		{"subsidised single window", BridgeConfig{NumTxs: 2, Subsidy: 1}, 1},
		{"explicit frequency", BridgeConfig{NumTxs: 32, RollupFrequency: 3}, 3},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, bridgePeriods(&test.cfg))
		})
	}
}

func TestNoPublishInterval(t *testing.T) {
	m := NewPublishTimeManager(0, newFakeBridges(BridgeConfig{BridgeCallData: bridgeID(1), NumTxs: 4}), fixedClock(t0))
	timeouts := m.CalculateTimeouts()
	assert.Nil(t, timeouts.BaseTimeout)
	assert.Empty(t, timeouts.BridgeTimeouts)
	assert.Nil(t, timeouts.BridgeTimeout(bridgeID(1)))
}

func TestBaseTimeoutIsWindowStart(t *testing.T) {
	m := NewPublishTimeManager(time.Minute, nil, fixedClock(t0.Add(90*time.Second)))

	timeouts := m.CalculateTimeouts()
	require.NotNil(t, timeouts.BaseTimeout)
	assert.True(t, timeouts.BaseTimeout.Timeout.Equal(t0.Add(time.Minute)))
	assert.Equal(t, t0.Add(time.Minute).Unix()/60, timeouts.BaseTimeout.RollupNumber)

	next := m.CalculateNextTimeouts()
	require.NotNil(t, next.BaseTimeout)
	assert.True(t, next.BaseTimeout.Timeout.Equal(t0.Add(2*time.Minute)))
	assert.Equal(t, timeouts.BaseTimeout.RollupNumber+1, next.BaseTimeout.RollupNumber)
}

func TestBridgeTimeouts(t *testing.T) {
	single, four, subsidised, every3 := bridgeID(1), bridgeID(2), bridgeID(3), bridgeID(4)
	bridges := newFakeBridges(
		BridgeConfig{BridgeCallData: single, NumTxs: 1},
		BridgeConfig{BridgeCallData: four, NumTxs: 4},
		BridgeConfig{BridgeCallData: subsidised, NumTxs: 4, Subsidy: 100},
		BridgeConfig{BridgeCallData: every3, NumTxs: 32, RollupFrequency: 3},
	)
	m := NewPublishTimeManager(time.Minute, bridges, fixedClock(t0.Add(90*time.Second)))
	timeouts := m.CalculateTimeouts()

	require.Len(t, timeouts.BridgeTimeouts, 4)
	assert.True(t, timeouts.BridgeTimeout(single).Timeout.Equal(t0.Add(time.Minute)))
	assert.True(t, timeouts.BridgeTimeout(four).Timeout.Equal(t0))
	assert.True(t, timeouts.BridgeTimeout(subsidised).Timeout.Equal(t0.Add(time.Minute)))
	assert.True(t, timeouts.BridgeTimeout(every3).Timeout.Equal(t0))
	assert.Nil(t, timeouts.BridgeTimeout(bridgeID(5)))

	next := m.CalculateNextTimeouts()
	assert.True(t, next.BridgeTimeout(four).Timeout.Equal(t0.Add(2*time.Minute)))
	assert.True(t, next.BridgeTimeout(every3).Timeout.Equal(t0.Add(3*time.Minute)))
}

func TestCalculateTimeoutsIsIdempotent(t *testing.T) {
	bridges := newFakeBridges(
		BridgeConfig{BridgeCallData: bridgeID(1), NumTxs: 8},
		BridgeConfig{BridgeCallData: bridgeID(2), NumTxs: 2, Subsidy: 5},
	)
	for _, offset := range []time.Duration{0, time.Second, 59 * time.Second, 17 * time.Minute} {
		m := NewPublishTimeManager(time.Minute, bridges, fixedClock(t0.Add(offset)))
		first := m.CalculateTimeouts()
		second := m.CalculateTimeouts()
		assert.Equal(t, first, second)
		assert.Equal(t, m.CalculateNextTimeouts(), m.CalculateNextTimeouts())
	}
}
