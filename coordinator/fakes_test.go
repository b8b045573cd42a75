package coordinator

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/celer-network/go-sequencer/log"
	"github.com/celer-network/go-sequencer/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	testBaseGas         = int64(1000)
	nonFeePayingAssetID = uint32(999)
)

// t0 is aligned to every publish interval used in the tests.
var t0 = time.Unix(1_700_000_000-1_700_000_000%3600, 0)

var testTxGas = map[types.TxType]int64{
	types.TxTypeDeposit:          5000,
	types.TxTypeTransfer:         5000,
	types.TxTypeWithdrawToWallet: 20000,
	types.TxTypeWithdrawHighGas:  30000,
	types.TxTypeAccount:          3000,
	types.TxTypeDefiDeposit:      10000,
	types.TxTypeDefiClaim:        2000,
}

type fakeFees struct {
	maxGas      int64
	maxCallData int64
	// drift is added to every tx gas read after the first driftAfter reads.
	drift      int64
	driftAfter int
	reads      int
	// onFeePaid runs on every fee to gas conversion, i.e. while profiling.
	onFeePaid func()
}

func newFakeFees() *fakeFees {
	return &fakeFees{maxGas: 1 << 40, maxCallData: 1 << 40}
}

func (f *fakeFees) IsFeePayingAsset(assetID uint32) bool {
	return assetID != nonFeePayingAssetID
}

func (f *fakeFees) GetUnadjustedTxGas(assetID uint32, txType types.TxType) int64 {
	f.reads++
	gas := testBaseGas + testTxGas[txType]
	if f.drift != 0 && f.reads > f.driftAfter {
		gas += f.drift
	}
	return gas
}

func (f *fakeFees) GetUnadjustedBaseVerificationGas() int64 {
	return testBaseGas
}

func (f *fakeFees) GetTxCallData(txType types.TxType) int64 {
	return 100
}

func (f *fakeFees) GetMaxUnadjustedGas() int64 {
	return f.maxGas
}

func (f *fakeFees) GetMaxTxCallData() int64 {
	return f.maxCallData
}

func (f *fakeFees) GetGasPaidForByFee(assetID uint32, fee *big.Int) int64 {
	if f.onFeePaid != nil {
		f.onFeePaid()
	}
	if !f.IsFeePayingAsset(assetID) || fee == nil {
		return 0
	}
	return fee.Int64()
}

type fakeBridges struct {
	configs map[types.BridgeCallData]BridgeConfig
	order   []types.BridgeCallData
}

func newFakeBridges(configs ...BridgeConfig) *fakeBridges {
	b := &fakeBridges{configs: make(map[types.BridgeCallData]BridgeConfig)}
	for _, cfg := range configs {
		b.configs[cfg.BridgeCallData] = cfg
		b.order = append(b.order, cfg.BridgeCallData)
	}
	return b
}

func (b *fakeBridges) GetBridgeConfig(bc types.BridgeCallData) BridgeConfig {
	if cfg, ok := b.configs[bc]; ok {
		return cfg
	}
	return BridgeConfig{BridgeCallData: bc, NumTxs: 10, Gas: 100000}
}

func (b *fakeBridges) GetBridgeConfigs() []BridgeConfig {
	configs := make([]BridgeConfig, 0, len(b.order))
	for _, bc := range b.order {
		configs = append(configs, b.configs[bc])
	}
	return configs
}

type fakeCreator struct {
	lock    sync.Mutex
	created [][]common.Hash
	err     error
	onBuild func()
}

func (c *fakeCreator) Create(ctx context.Context, txs []*types.RollupTx, bridgeCallDatas []types.BridgeCallData, assetIDs []uint32) (*types.InnerRollup, error) {
	if c.onBuild != nil {
		c.onBuild()
	}
	if c.err != nil {
		return nil, c.err
	}
	ids := make([]common.Hash, len(txs))
	var data []byte
	for i, tx := range txs {
		ids[i] = tx.Tx.ID
		data = append(data, tx.Tx.ID.Bytes()...)
	}
	c.lock.Lock()
	c.created = append(c.created, ids)
	c.lock.Unlock()
	return &types.InnerRollup{
		ID:              crypto.Keccak256Hash(data),
		RollupSize:      len(txs),
		TxIDs:           ids,
		BridgeCallDatas: bridgeCallDatas,
		AssetIDs:        assetIDs,
	}, nil
}

func (c *fakeCreator) numCreated() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.created)
}

type fakeAggregator struct {
	innerRollups []*types.InnerRollup
	bridgeSlots  []types.BridgeCallData
	assetSlots   []uint32
	oldDefiRoot  common.Hash
}

func (a *fakeAggregator) Aggregate(
	ctx context.Context,
	innerRollups []*types.InnerRollup,
	oldDefiRoot common.Hash,
	oldDefiPath [][]byte,
	interactionNotes [][]byte,
	bridgeSlots []types.BridgeCallData,
	assetSlots []uint32,
) (*types.RollupBatch, error) {
	a.innerRollups = innerRollups
	a.bridgeSlots = bridgeSlots
	a.assetSlots = assetSlots
	a.oldDefiRoot = oldDefiRoot
	batch := &types.RollupBatch{RollupID: 1, BridgeSlots: bridgeSlots, AssetSlots: assetSlots}
	for _, r := range innerRollups {
		batch.InnerRollups = append(batch.InnerRollups, r.ID)
	}
	return batch, nil
}

type fakeDefiState struct {
	root common.Hash
}

func (s *fakeDefiState) GetDefiState(ctx context.Context) (*types.DefiState, error) {
	return &types.DefiState{Root: s.root}, nil
}

type fakePublisher struct {
	result    bool
	published []*types.RollupBatch
	onPublish func()
}

func (p *fakePublisher) PublishRollup(ctx context.Context, batch *types.RollupBatch) (bool, error) {
	if p.onPublish != nil {
		p.onPublish()
	}
	p.published = append(p.published, batch)
	return p.result, nil
}

func (p *fakePublisher) Interrupt() {}

type harness struct {
	cfg        Config
	fees       *fakeFees
	bridges    *fakeBridges
	creator    *fakeCreator
	aggregator *fakeAggregator
	defiState  *fakeDefiState
	publisher  *fakePublisher
	now        time.Time
	carryOver  []*types.InnerRollup
}

func newHarness(bridges ...BridgeConfig) *harness {
	return &harness{
		cfg: Config{
			NumInnerRollupTxs:    2,
			NumOuterRollupProofs: 2,
			NumBridgeSlots:       2,
			NumAssetSlots:        2,
			MaxParallelBuilds:    2,
		},
		fees:       newFakeFees(),
		bridges:    newFakeBridges(bridges...),
		creator:    &fakeCreator{},
		aggregator: &fakeAggregator{},
		defiState:  &fakeDefiState{root: common.Hash{0xd0}},
		publisher:  &fakePublisher{result: true},
		now:        t0.Add(time.Minute),
	}
}

func (h *harness) coordinator() *RollupCoordinator {
	return NewRollupCoordinator(h.cfg, Deps{
		Bridges:      h.bridges,
		Fees:         h.fees,
		Creator:      h.creator,
		Aggregator:   h.aggregator,
		DefiState:    h.defiState,
		Publisher:    h.publisher,
		Clock:        ClockFunc(func() time.Time { return h.now }),
		InnerRollups: h.carryOver,
		Log:          log.Nop(),
	})
}

func (h *harness) process(txs []*types.PendingTx, flush bool) (*types.RollupProfile, error) {
	return h.coordinator().ProcessPendingTxs(context.Background(), txs, flush)
}

var txCounter byte

func newTx(txType types.TxType, assetID uint32, fee int64) *types.PendingTx {
	txCounter++
	id := common.Hash{0x01, txCounter}
	return &types.PendingTx{
		ID:              id,
		TxType:          txType,
		FeeAssetID:      assetID,
		FeeValue:        big.NewInt(fee),
		NoteCommitments: [2]common.Hash{{0x0c, txCounter, 1}, {0x0c, txCounter, 2}},
		CreatedAt:       t0.Add(time.Minute),
	}
}

func transfer(fee int64) *types.PendingTx {
	return newTx(types.TxTypeTransfer, 0, fee)
}

func deposit(bc types.BridgeCallData, fee int64) *types.PendingTx {
	tx := newTx(types.TxTypeDefiDeposit, 0, fee)
	tx.BridgeCallData = &bc
	return tx
}

func chainedTo(parent *types.PendingTx, tx *types.PendingTx) *types.PendingTx {
	tx.BackwardLink = parent.NoteCommitments[0]
	return tx
}

func bridgeID(addressID uint32) types.BridgeCallData {
	return types.NewBridgeCallData(addressID, 0, 1, 0, 0, 0, 0)
}

func ids(txs ...*types.PendingTx) []common.Hash {
	out := make([]common.Hash, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

// batchTxIDs returns the tx ids of the last aggregated batch, in batch order.
func batchTxIDs(a *fakeAggregator) []common.Hash {
	var out []common.Hash
	for _, r := range a.innerRollups {
		out = append(out, r.TxIDs...)
	}
	return out
}
