package coordinator

import (
	"context"
	"math/big"
	"time"

	"github.com/celer-network/go-sequencer/types"
	"github.com/ethereum/go-ethereum/common"
)

// BridgeConfig holds the batching economics of one bridge.
type BridgeConfig struct {
	BridgeCallData types.BridgeCallData
	// Txs needed to fill one interaction.
	NumTxs int
	// L1 gas of one interaction.
	Gas int64
	// Input assets allowed into the bridge. Empty means any.
	PermittedAssets []uint32
	// Gas the operator pays towards the interaction.
	Subsidy int64
	// Publish windows a queue may wait before it is forced out. Zero derives it from NumTxs.
	RollupFrequency int
}

// IsPermitted reports whether deposits of assetID may enter the bridge.
func (c *BridgeConfig) IsPermitted(assetID uint32) bool {
	if len(c.PermittedAssets) == 0 {
		return true
	}
	for _, id := range c.PermittedAssets {
		if id == assetID {
			return true
		}
	}
	return false
}

// BridgeResolver returns bridge configs. Unknown bridges get the defaults.
type BridgeResolver interface {
	GetBridgeConfig(bc types.BridgeCallData) BridgeConfig
	GetBridgeConfigs() []BridgeConfig
}

// FeeResolver prices txs in L1 gas.
type FeeResolver interface {
	IsFeePayingAsset(assetID uint32) bool
	// GetUnadjustedTxGas includes the tx's share of the base verification gas.
	GetUnadjustedTxGas(assetID uint32, txType types.TxType) int64
	GetUnadjustedBaseVerificationGas() int64
	GetTxCallData(txType types.TxType) int64
	GetMaxUnadjustedGas() int64
	GetMaxTxCallData() int64
	GetGasPaidForByFee(assetID uint32, fee *big.Int) int64
}

type RollupCreator interface {
	Create(ctx context.Context, txs []*types.RollupTx, bridgeCallDatas []types.BridgeCallData, assetIDs []uint32) (*types.InnerRollup, error)
}

type RollupAggregator interface {
	Aggregate(
		ctx context.Context,
		innerRollups []*types.InnerRollup,
		oldDefiRoot common.Hash,
		oldDefiPath [][]byte,
		interactionNotes [][]byte,
		bridgeSlots []types.BridgeCallData,
		assetSlots []uint32,
	) (*types.RollupBatch, error)
}

type DefiStateReader interface {
	GetDefiState(ctx context.Context) (*types.DefiState, error)
}

type RollupPublisher interface {
	// PublishRollup returns false when interrupted. The batch may still land
	// on chain in that case.
	PublishRollup(ctx context.Context, batch *types.RollupBatch) (bool, error)
	Interrupt()
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}
