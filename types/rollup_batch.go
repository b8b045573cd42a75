package types

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// InvalidAssetID pads unused asset slots of a batch.
const InvalidAssetID uint32 = 1 << 30

// InnerRollup is the handle of one built inner rollup.
type InnerRollup struct {
	ID              common.Hash
	RollupSize      int
	TxIDs           []common.Hash
	BridgeCallDatas []BridgeCallData
	AssetIDs        []uint32
	DataHash        common.Hash
	CreatedAt       time.Time
}

// HasTxs reports whether the inner rollup was built from exactly ids, in order.
func (r *InnerRollup) HasTxs(ids []common.Hash) bool {
	if len(r.TxIDs) != len(ids) {
		return false
	}
	for i := range ids {
		if r.TxIDs[i] != ids[i] {
			return false
		}
	}
	return true
}

// HasSlots reports whether the inner rollup was built against exactly these
// bridge and asset slots.
func (r *InnerRollup) HasSlots(bridgeCallDatas []BridgeCallData, assetIDs []uint32) bool {
	if len(r.BridgeCallDatas) != len(bridgeCallDatas) || len(r.AssetIDs) != len(assetIDs) {
		return false
	}
	for i := range bridgeCallDatas {
		if r.BridgeCallDatas[i] != bridgeCallDatas[i] {
			return false
		}
	}
	for i := range assetIDs {
		if r.AssetIDs[i] != assetIDs[i] {
			return false
		}
	}
	return true
}

// DefiState is the part of the world state the aggregator needs.
type DefiState struct {
	Root             common.Hash
	Path             [][]byte
	InteractionNotes [][]byte
}

// RollupBatch is an aggregated rollup ready to be published.
type RollupBatch struct {
	RollupID         uint64
	InnerRollups     []common.Hash
	BridgeSlots      []BridgeCallData
	AssetSlots       []uint32
	OldDefiRoot      common.Hash
	NewDefiRoot      common.Hash
	InteractionNotes [][]byte
	DataHash         common.Hash
	TxHash           common.Hash
	Settled          bool
	CreatedAt        time.Time
}

func (batch *RollupBatch) SerializeForStorage() ([]byte, error) {
	return json.Marshal(batch)
}

func DeserializeRollupBatchFromStorage(data []byte) (*RollupBatch, error) {
	var batch RollupBatch
	err := json.Unmarshal(data, &batch)
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *InnerRollup) SerializeForStorage() ([]byte, error) {
	return json.Marshal(r)
}

func DeserializeInnerRollupFromStorage(data []byte) (*InnerRollup, error) {
	var rollup InnerRollup
	err := json.Unmarshal(data, &rollup)
	if err != nil {
		return nil, err
	}
	return &rollup, nil
}

func (tx *PendingTx) SerializeForStorage() ([]byte, error) {
	return json.Marshal(tx)
}

func DeserializePendingTxFromStorage(data []byte) (*PendingTx, error) {
	var tx PendingTx
	err := json.Unmarshal(data, &tx)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
