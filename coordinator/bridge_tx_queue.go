package coordinator

import (
	"time"

	"github.com/celer-network/go-sequencer/types"
)

// BridgeTxQueue holds the DEFI_DEPOSIT txs of one bridge until they can enter
// a batch together. Txs leave in arrival order and never partially.
type BridgeTxQueue struct {
	bridgeCallData types.BridgeCallData
	config         BridgeConfig
	timeout        *types.RollupTimeout
	fees           FeeResolver
	txs            []*types.RollupTx
}

func NewBridgeTxQueue(bc types.BridgeCallData, cfg BridgeConfig, timeout *types.RollupTimeout, fees FeeResolver) *BridgeTxQueue {
	return &BridgeTxQueue{
		bridgeCallData: bc,
		config:         cfg,
		timeout:        timeout,
		fees:           fees,
	}
}

func (q *BridgeTxQueue) AddDefiTx(tx *types.RollupTx) {
	q.txs = append(q.txs, tx)
}

func (q *BridgeTxQueue) Len() int {
	return len(q.txs)
}

func (q *BridgeTxQueue) BridgeCallData() types.BridgeCallData {
	return q.bridgeCallData
}

// Txs returns the queued txs in arrival order.
func (q *BridgeTxQueue) Txs() []*types.RollupTx {
	return q.txs
}

// txGas is the gas a deposit adds on top of the slot it fills.
func (q *BridgeTxQueue) txGas(tx *types.RollupTx) int64 {
	return q.fees.GetUnadjustedTxGas(tx.Fee.AssetID, types.TxTypeDefiDeposit) - q.fees.GetUnadjustedBaseVerificationGas()
}

// gasAccrued sums what the queued fees pay beyond each tx's own gas. That
// excess goes towards the bridge interaction.
func (q *BridgeTxQueue) gasAccrued() int64 {
	var accrued int64
	for _, tx := range q.txs {
		excess := q.fees.GetGasPaidForByFee(tx.Fee.AssetID, tx.Fee.Value) -
			q.fees.GetUnadjustedTxGas(tx.Fee.AssetID, types.TxTypeDefiDeposit)
		if excess > 0 {
			accrued += excess
		}
	}
	return accrued
}

func (q *BridgeTxQueue) isFull() bool {
	numTxs := q.config.NumTxs
	if numTxs < 1 {
		numTxs = 1
	}
	if len(q.txs) >= numTxs {
		return true
	}
	return q.config.Gas > 0 && q.gasAccrued()+q.config.Subsidy >= q.config.Gas
}

// isDeadlined reports whether a queued tx has waited past the bridge deadline.
func (q *BridgeTxQueue) isDeadlined() bool {
	if q.timeout == nil {
		return false
	}
	for _, tx := range q.txs {
		if tx.Tx.CreatedAt.Before(q.timeout.Timeout) {
			return true
		}
	}
	return false
}

// GetTxsToRollup releases the whole queue when the bridge is full or its
// deadline has passed, provided everything fits the given budgets. Otherwise
// it releases nothing and the txs stay queued. The bridge gas is charged once.
func (q *BridgeTxQueue) GetTxsToRollup(
	remainingSlots int,
	currentAssetIDs AssetSet,
	maxAssetSlots int,
	gasRemaining int64,
	callDataRemaining int64,
) ([]*types.RollupTx, ResourceUsage) {
	if len(q.txs) == 0 || len(q.txs) > remainingSlots {
		return nil, ResourceUsage{}
	}
	if !q.isFull() && !q.isDeadlined() {
		return nil, ResourceUsage{}
	}

	usage := ResourceUsage{GasUsed: q.config.Gas}
	newAssets := make(AssetSet)
	for _, tx := range q.txs {
		usage.GasUsed += q.txGas(tx)
		usage.CallDataUsed += q.fees.GetTxCallData(types.TxTypeDefiDeposit)
		assetID := tx.Fee.AssetID
		if q.fees.IsFeePayingAsset(assetID) && !currentAssetIDs.Has(assetID) && !newAssets.Has(assetID) {
			newAssets[assetID] = struct{}{}
			usage.NewAssetIDs = append(usage.NewAssetIDs, assetID)
		}
	}
	if len(currentAssetIDs)+len(usage.NewAssetIDs) > maxAssetSlots ||
		usage.GasUsed > gasRemaining ||
		usage.CallDataUsed > callDataRemaining {
		return nil, ResourceUsage{}
	}

	released := q.txs
	q.txs = nil
	return released, usage
}

// Profile summarises the queued txs.
func (q *BridgeTxQueue) Profile() types.BridgeProfile {
	profile := types.BridgeProfile{
		BridgeCallData: q.bridgeCallData,
		NumTxs:         len(q.txs),
		GasAccrued:     q.gasAccrued(),
		GasSubsidy:     q.config.Subsidy,
		GasThreshold:   q.config.Gas,
	}
	for _, tx := range q.txs {
		updateTxTimes(&profile.EarliestTx, &profile.LatestTx, tx.Tx.CreatedAt)
	}
	return profile
}

func updateTxTimes(earliest, latest *time.Time, createdAt time.Time) {
	if earliest.IsZero() || createdAt.Before(*earliest) {
		*earliest = createdAt
	}
	if createdAt.After(*latest) {
		*latest = createdAt
	}
}
