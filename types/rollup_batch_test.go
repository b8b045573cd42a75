package types

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollupBatchStorage(t *testing.T) {
	batch := &RollupBatch{
		RollupID:     12,
		InnerRollups: []common.Hash{common.HexToHash("0x01")},
		BridgeSlots:  []BridgeCallData{NewBridgeCallData(1, 0, 1, 0, 0, 0, 0)},
		AssetSlots:   []uint32{0, InvalidAssetID},
		CreatedAt:    time.Unix(1600000000, 0).UTC(),
	}
	data, err := batch.SerializeForStorage()
	require.NoError(t, err)
	restored, err := DeserializeRollupBatchFromStorage(data)
	require.NoError(t, err)
	assert.Equal(t, batch.BridgeSlots, restored.BridgeSlots)
	assert.Equal(t, batch.AssetSlots, restored.AssetSlots)
	assert.True(t, batch.CreatedAt.Equal(restored.CreatedAt))
}

func TestSerializeForSubmission(t *testing.T) {
	s, err := NewSerializer()
	require.NoError(t, err)
	batch := &RollupBatch{
		RollupID:     5,
		InnerRollups: []common.Hash{common.HexToHash("0xaa"), common.HexToHash("0xbb")},
		BridgeSlots:  []BridgeCallData{NewBridgeCallData(1, 0, 1, 0, 0, 0, 0)},
		AssetSlots:   []uint32{0},
	}
	data, err := batch.SerializeForSubmission(s)
	require.NoError(t, err)
	rollupID, err := s.DeserializeRollupIDFromSubmission(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), rollupID)
}

func TestInnerRollupHasTxs(t *testing.T) {
	ids := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}
	r := &InnerRollup{TxIDs: ids}
	assert.True(t, r.HasTxs([]common.Hash{ids[0], ids[1]}))
	assert.False(t, r.HasTxs([]common.Hash{ids[1], ids[0]}))
	assert.False(t, r.HasTxs(ids[:1]))
}

func TestInnerRollupHasSlots(t *testing.T) {
	bc := NewBridgeCallData(1, 0, 1, 0, 0, 0, 0)
	r := &InnerRollup{BridgeCallDatas: []BridgeCallData{bc}, AssetIDs: []uint32{0}}
	assert.True(t, r.HasSlots([]BridgeCallData{bc}, []uint32{0}))
	assert.False(t, r.HasSlots([]BridgeCallData{bc}, []uint32{0, 5}))
	assert.False(t, r.HasSlots(nil, []uint32{0}))
	assert.False(t, r.HasSlots([]BridgeCallData{NewBridgeCallData(2, 0, 1, 0, 0, 0, 0)}, []uint32{0}))
	assert.True(t, (&InnerRollup{}).HasSlots(nil, []uint32{}))
}
