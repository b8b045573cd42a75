package coordinator

import (
	"fmt"
	"testing"
	"time"

	"github.com/celer-network/go-sequencer/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unlimited = int64(1 << 40)

// a deposit paying exactly its own gas
const depositFee = 11000

func queueWith(cfg BridgeConfig, timeout *types.RollupTimeout, txs ...*types.PendingTx) *BridgeTxQueue {
	q := NewBridgeTxQueue(cfg.BridgeCallData, cfg, timeout, newFakeFees())
	for _, tx := range txs {
		q.AddDefiTx(types.NewRollupTx(tx))
	}
	return q
}

func TestQueueReleasesWhenFull(t *testing.T) {
	bc := bridgeID(1)
	cfg := BridgeConfig{BridgeCallData: bc, NumTxs: 2, Gas: 50000}
	q := queueWith(cfg, nil, deposit(bc, depositFee))

	txs, usage := q.GetTxsToRollup(4, AssetSet{}, 2, unlimited, unlimited)
	assert.Empty(t, txs)
	assert.Equal(t, ResourceUsage{}, usage)
	assert.Equal(t, 1, q.Len())

	second := deposit(bc, depositFee)
	q.AddDefiTx(types.NewRollupTx(second))
	txs, usage = q.GetTxsToRollup(4, AssetSet{}, 2, unlimited, unlimited)
	require.Len(t, txs, 2)
	assert.Equal(t, second.ID, txs[1].Tx.ID, "arrival order is kept")
	assert.Equal(t, int64(50000+2*10000), usage.GasUsed)
	assert.Equal(t, int64(200), usage.CallDataUsed)
	assert.Equal(t, []uint32{0}, usage.NewAssetIDs)
	assert.Equal(t, 0, q.Len())
}

func TestQueueNeverReleasesPartially(t *testing.T) {
	bc := bridgeID(1)
	cfg := BridgeConfig{BridgeCallData: bc, NumTxs: 3, Gas: 50000}
	fullGas := int64(50000 + 3*10000)

	for _, slots := range []int{0, 1, 2, 3, 4} {
		for _, gas := range []int64{0, fullGas - 1, fullGas, unlimited} {
			for _, callData := range []int64{299, 300} {
				for _, maxAssets := range []int{0, 1} {
					name := fmt.Sprintf("slots=%d/gas=%d/calldata=%d/assets=%d", slots, gas, callData, maxAssets)
					t.Run(name, func(t *testing.T) {
						q := queueWith(cfg, nil, deposit(bc, depositFee), deposit(bc, depositFee), deposit(bc, depositFee))
						txs, usage := q.GetTxsToRollup(slots, AssetSet{}, maxAssets, gas, callData)

						fits := slots >= 3 && gas >= fullGas && callData >= 300 && maxAssets >= 1
						if fits {
							assert.Len(t, txs, 3)
							assert.Equal(t, fullGas, usage.GasUsed)
							assert.Equal(t, 0, q.Len())
						} else {
							assert.Empty(t, txs)
							assert.Equal(t, ResourceUsage{}, usage)
							assert.Equal(t, 3, q.Len())
						}
					})
				}
			}
		}
	}
}

func TestQueueAssetAlreadyInBatch(t *testing.T) {
	bc := bridgeID(1)
	q := queueWith(BridgeConfig{BridgeCallData: bc, NumTxs: 1, Gas: 1000}, nil, deposit(bc, depositFee))

	txs, usage := q.GetTxsToRollup(4, AssetSet{0: {}}, 1, unlimited, unlimited)
	require.Len(t, txs, 1)
	assert.Empty(t, usage.NewAssetIDs)
}

func TestQueueNonFeePayingAssetTakesNoSlot(t *testing.T) {
	bc := bridgeID(1)
	tx := deposit(bc, 0)
	tx.FeeAssetID = nonFeePayingAssetID
	q := queueWith(BridgeConfig{BridgeCallData: bc, NumTxs: 1, Gas: 1000}, nil, tx)

	txs, usage := q.GetTxsToRollup(4, AssetSet{1: {}}, 1, unlimited, unlimited)
	require.Len(t, txs, 1)
	assert.Empty(t, usage.NewAssetIDs)
}

func TestQueueReleasesWhenFeesCoverBridge(t *testing.T) {
	bc := bridgeID(1)
	cfg := BridgeConfig{BridgeCallData: bc, NumTxs: 10, Gas: 50000, Subsidy: 20000}

	q := queueWith(cfg, nil, deposit(bc, depositFee+15000))
	txs, _ := q.GetTxsToRollup(4, AssetSet{}, 2, unlimited, unlimited)
	assert.Empty(t, txs)
	profile := q.Profile()
	assert.Equal(t, int64(15000), profile.GasAccrued)
	assert.Equal(t, int64(20000), profile.GasSubsidy)
	assert.Equal(t, int64(50000), profile.GasThreshold)

	q.AddDefiTx(types.NewRollupTx(deposit(bc, depositFee+15000)))
	txs, _ = q.GetTxsToRollup(4, AssetSet{}, 2, unlimited, unlimited)
	assert.Len(t, txs, 2)
}

func TestQueueDeadline(t *testing.T) {
	bc := bridgeID(1)
	cfg := BridgeConfig{BridgeCallData: bc, NumTxs: 32, Gas: 50000}
	timeout := &types.RollupTimeout{Timeout: t0}

	fresh := deposit(bc, depositFee)
	fresh.CreatedAt = t0.Add(time.Second)
	q := queueWith(cfg, timeout, fresh)
	txs, _ := q.GetTxsToRollup(4, AssetSet{}, 2, unlimited, unlimited)
	assert.Empty(t, txs)

	// a straggler drags the whole queue out with it
	straggler := deposit(bc, depositFee)
	straggler.CreatedAt = t0.Add(-time.Second)
	q.AddDefiTx(types.NewRollupTx(straggler))
	txs, usage := q.GetTxsToRollup(4, AssetSet{}, 2, unlimited, unlimited)
	assert.Len(t, txs, 2)
	assert.Equal(t, int64(50000+2*10000), usage.GasUsed)

	noDeadline := queueWith(cfg, nil, straggler)
	txs, _ = noDeadline.GetTxsToRollup(4, AssetSet{}, 2, unlimited, unlimited)
	assert.Empty(t, txs)
}

func TestQueueProfileTimes(t *testing.T) {
	bc := bridgeID(1)
	early, late := deposit(bc, depositFee), deposit(bc, depositFee)
	early.CreatedAt = t0
	late.CreatedAt = t0.Add(time.Minute)
	q := queueWith(BridgeConfig{BridgeCallData: bc, NumTxs: 10}, nil, late, early)

	profile := q.Profile()
	assert.Equal(t, bc, profile.BridgeCallData)
	assert.Equal(t, 2, profile.NumTxs)
	assert.True(t, profile.EarliestTx.Equal(t0))
	assert.True(t, profile.LatestTx.Equal(t0.Add(time.Minute)))
}
