package coordinator

import (
	"sort"

	"github.com/celer-network/go-sequencer/types"
)

type AssetSet map[uint32]struct{}

func (s AssetSet) Has(assetID uint32) bool {
	_, ok := s[assetID]
	return ok
}

// Sorted returns the members in ascending order.
func (s AssetSet) Sorted() []uint32 {
	ids := make([]uint32, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ResourceUsage is what a set of txs adds to a batch.
type ResourceUsage struct {
	GasUsed      int64
	CallDataUsed int64
	// Fee assets not yet in the batch.
	NewAssetIDs []uint32
}

// RollupResources accumulates what a batch has consumed. Within one run its
// fields only grow.
type RollupResources struct {
	GasUsed         int64
	CallDataUsed    int64
	BridgeCallDatas []types.BridgeCallData
	AssetIDs        AssetSet
}

func newRollupResources(seedGas int64) *RollupResources {
	return &RollupResources{
		GasUsed:  seedGas,
		AssetIDs: make(AssetSet),
	}
}

func (r *RollupResources) HasBridge(bc types.BridgeCallData) bool {
	for _, existing := range r.BridgeCallDatas {
		if existing == bc {
			return true
		}
	}
	return false
}

func (r *RollupResources) addBridge(bc types.BridgeCallData) {
	if !r.HasBridge(bc) {
		r.BridgeCallDatas = append(r.BridgeCallDatas, bc)
	}
}

func (r *RollupResources) apply(usage ResourceUsage) {
	r.GasUsed += usage.GasUsed
	r.CallDataUsed += usage.CallDataUsed
	for _, id := range usage.NewAssetIDs {
		r.AssetIDs[id] = struct{}{}
	}
}
