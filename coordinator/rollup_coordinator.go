package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/celer-network/go-sequencer/log"
	"github.com/celer-network/go-sequencer/types"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/celer-network/go-sequencer/coordinator"

type State int

const (
	StateBuilding State = iota
	StatePublishing
	StatePublished
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "BUILDING"
	case StatePublishing:
		return "PUBLISHING"
	case StatePublished:
		return "PUBLISHED"
	case StateInterrupted:
		return "INTERRUPTED"
	}
	return "UNKNOWN"
}

// Deps are the collaborators of a coordinator.
type Deps struct {
	Bridges    BridgeResolver
	Fees       FeeResolver
	Creator    RollupCreator
	Aggregator RollupAggregator
	DefiState  DefiStateReader
	Publisher  RollupPublisher
	Clock      Clock
	// Inner rollups built by an earlier coordinator that did not publish.
	// Chunks with the same txs reuse them instead of building again.
	InnerRollups []*types.InnerRollup
	Log          *log.Logger
}

// RollupCoordinator decides which pending txs go into the next batch and when
// to publish it. It is single use: it makes at most one publish attempt.
type RollupCoordinator struct {
	cfg         Config
	bridges     BridgeResolver
	fees        FeeResolver
	creator     RollupCreator
	aggregator  RollupAggregator
	defiState   DefiStateReader
	publisher   RollupPublisher
	timeManager *PublishTimeManager
	carriedOver []*types.InnerRollup
	log         *log.Logger
	tracer      trace.Tracer

	lock         sync.Mutex
	state        State
	started      bool
	innerRollups []*types.InnerRollup
}

func NewRollupCoordinator(cfg Config, deps Deps) *RollupCoordinator {
	logger := deps.Log
	if logger == nil {
		logger = log.NewLogger("coordinator")
	}
	return &RollupCoordinator{
		cfg:         cfg,
		bridges:     deps.Bridges,
		fees:        deps.Fees,
		creator:     deps.Creator,
		aggregator:  deps.Aggregator,
		defiState:   deps.DefiState,
		publisher:   deps.Publisher,
		timeManager: NewPublishTimeManager(cfg.PublishInterval, deps.Bridges, deps.Clock),
		carriedOver: deps.InnerRollups,
		log:         logger,
		tracer:      otel.Tracer(tracerName),
		state:       StateBuilding,
	}
}

func (rc *RollupCoordinator) State() State {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	return rc.state
}

// InnerRollups returns the inner rollups built so far, for carrying over.
func (rc *RollupCoordinator) InnerRollups() []*types.InnerRollup {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	return append([]*types.InnerRollup(nil), rc.innerRollups...)
}

// Interrupt stops a coordinator that has not started publishing. The pending
// ProcessPendingTxs call returns an empty profile at its next checkpoint.
func (rc *RollupCoordinator) Interrupt() error {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	switch rc.state {
	case StatePublishing, StatePublished:
		return ErrAlreadyPublishing
	}
	rc.state = StateInterrupted
	return nil
}

func (rc *RollupCoordinator) interrupted() bool {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	return rc.state == StateInterrupted
}

// startPublishing moves BUILDING to PUBLISHING. It fails if interrupted.
func (rc *RollupCoordinator) startPublishing() bool {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if rc.state != StateBuilding {
		return false
	}
	rc.state = StatePublishing
	return true
}

func (rc *RollupCoordinator) finish(published bool) {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if published {
		rc.state = StatePublished
	} else {
		rc.state = StateInterrupted
	}
}

// rollupRun is the working set of one ProcessPendingTxs call.
type rollupRun struct {
	flush     bool
	timeouts  types.RollupTimeouts
	resources *RollupResources
	txs       []*types.RollupTx
	queues    map[types.BridgeCallData]*BridgeTxQueue
	// Note commitments of txs that cannot be in the batch (discarded), that
	// may still join it later in the run (queued, second class).
	discarded   map[common.Hash]struct{}
	queued      map[common.Hash]struct{}
	secondClass []*types.PendingTx

	outOfGas      bool
	outOfCallData bool
}

func markOutputs(set map[common.Hash]struct{}, tx *types.PendingTx) {
	for _, c := range tx.NoteCommitments {
		if c != (common.Hash{}) {
			set[c] = struct{}{}
		}
	}
}

func unmarkOutputs(set map[common.Hash]struct{}, tx *types.PendingTx) {
	for _, c := range tx.NoteCommitments {
		delete(set, c)
	}
}

// chainedToExcluded reports whether tx spends an output that is not, or not
// yet, in the batch.
func (run *rollupRun) chainedToExcluded(tx *types.PendingTx) bool {
	if !tx.IsChained() {
		return false
	}
	_, discarded := run.discarded[tx.BackwardLink]
	_, queued := run.queued[tx.BackwardLink]
	return discarded || queued
}

// ProcessPendingTxs selects txs from pendingTxs and, once the batch is ready,
// builds, aggregates and publishes it. pendingTxs is never modified.
func (rc *RollupCoordinator) ProcessPendingTxs(ctx context.Context, pendingTxs []*types.PendingTx, flush bool) (*types.RollupProfile, error) {
	rc.lock.Lock()
	if rc.started {
		rc.lock.Unlock()
		return nil, ErrCoordinatorUsed
	}
	rc.started = true
	rc.lock.Unlock()

	totalSlots := rc.cfg.TotalSlots()
	if rc.interrupted() {
		return types.EmptyProfile(totalSlots), nil
	}

	ctx, span := rc.tracer.Start(ctx, "ProcessPendingTxs", trace.WithAttributes(
		attribute.Int("pendingTxs", len(pendingTxs)),
		attribute.Bool("flush", flush),
	))
	defer span.End()

	base := rc.fees.GetUnadjustedBaseVerificationGas()
	run := &rollupRun{
		flush:     flush,
		timeouts:  rc.timeManager.CalculateTimeouts(),
		resources: newRollupResources(int64(totalSlots) * base),
		queues:    make(map[types.BridgeCallData]*BridgeTxQueue),
		discarded: make(map[common.Hash]struct{}),
		queued:    make(map[common.Hash]struct{}),
	}

	if !rc.selectTxs(run, sortClaimsFirst(pendingTxs)) {
		return types.EmptyProfile(totalSlots), nil
	}
	profile, err := rc.profile(run)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if rc.interrupted() {
		return types.EmptyProfile(totalSlots), nil
	}
	if !rc.shouldPublish(profile, flush) {
		rc.log.Debug().Int("totalTxs", profile.TotalTxs).Int64("gasBalance", profile.GasBalance).
			Int("queuedBridges", len(run.queues)).Stringer("nextDeadline", log.LazyEval(rc.nextDeadline)).
			Msg("Rollup not ready to publish")
		return profile, nil
	}

	if len(run.secondClass) > 0 {
		before := len(run.txs)
		rc.topUp(run)
		final, err := rc.profile(run)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		final.Deadlined = profile.Deadlined
		final.Profitable = profile.Profitable
		final.OutOfGas = profile.OutOfGas
		final.OutOfCallData = profile.OutOfCallData
		final.OutOfSlots = profile.OutOfSlots
		profile = final
		rc.log.Debug().Int("added", len(run.txs)-before).Int("candidates", len(run.secondClass)).Msg("Topped up with second class txs")
	}

	rc.log.Info().
		Int("totalTxs", profile.TotalTxs).Int64("totalGas", profile.TotalGas).Int64("totalCallData", profile.TotalCallData).
		Int64("gasBalance", profile.GasBalance).Int("bridges", len(profile.BridgeProfiles)).
		Bool("flush", flush).Bool("deadlined", profile.Deadlined).Bool("profitable", profile.Profitable).
		Bool("outOfGas", profile.OutOfGas).Bool("outOfCallData", profile.OutOfCallData).Bool("outOfSlots", profile.OutOfSlots).
		Msg("Publishing rollup")

	published, started, err := rc.publish(ctx, run)
	if !started {
		return types.EmptyProfile(totalSlots), nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	profile.Published = published
	span.SetAttributes(attribute.Int("totalTxs", profile.TotalTxs), attribute.Bool("published", published))
	return profile, nil
}

// nextDeadline describes when the base publish deadline next passes.
func (rc *RollupCoordinator) nextDeadline() string {
	next := rc.timeManager.CalculateNextTimeouts()
	if next.BaseTimeout == nil {
		return "none"
	}
	return next.BaseTimeout.Timeout.UTC().Format(time.RFC3339)
}

// sortClaimsFirst moves DEFI_CLAIM txs to the front, keeping arrival order
// otherwise. It sorts a copy.
func sortClaimsFirst(pendingTxs []*types.PendingTx) []*types.PendingTx {
	txs := append([]*types.PendingTx(nil), pendingTxs...)
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].TxType == types.TxTypeDefiClaim && txs[j].TxType != types.TxTypeDefiClaim
	})
	return txs
}

// selectTxs runs the selection pass. It returns false if interrupted.
func (rc *RollupCoordinator) selectTxs(run *rollupRun, pendingTxs []*types.PendingTx) bool {
	totalSlots := rc.cfg.TotalSlots()
	for _, tx := range pendingTxs {
		if rc.interrupted() {
			return false
		}
		if len(run.txs) >= totalSlots {
			break
		}
		if tx.SecondClass {
			run.secondClass = append(run.secondClass, tx)
			markOutputs(run.queued, tx)
			continue
		}
		if run.chainedToExcluded(tx) {
			rc.discard(run, tx, "chained to excluded tx")
			continue
		}
		if tx.TxType == types.TxTypeDefiDeposit {
			rc.addDefiDeposit(run, tx)
		} else {
			rc.addTx(run, tx, 0)
		}
	}
	return !rc.interrupted()
}

func (rc *RollupCoordinator) discard(run *rollupRun, tx *types.PendingTx, reason string) {
	markOutputs(run.discarded, tx)
	if rc.log.IsDebugEnabled() {
		rc.log.Debug().Str("tx", tx.ID.Hex()).Str("txType", tx.TxType.String()).Str("reason", reason).Msg("Discarded tx")
	}
}

// usesAssetSlot reports whether the tx fee needs one of the batch asset slots.
func (rc *RollupCoordinator) usesAssetSlot(tx *types.PendingTx) bool {
	if !tx.TxType.IsPayment() && tx.TxType != types.TxTypeDefiDeposit {
		return false
	}
	return rc.fees.IsFeePayingAsset(tx.FeeAssetID)
}

func (rc *RollupCoordinator) marginalGas(tx *types.PendingTx) int64 {
	return rc.fees.GetUnadjustedTxGas(tx.FeeAssetID, tx.TxType) - rc.fees.GetUnadjustedBaseVerificationGas()
}

// fits checks usage against the remaining gas and calldata, recording which
// budget ran out.
func (rc *RollupCoordinator) fits(run *rollupRun, usage ResourceUsage) bool {
	ok := true
	if run.resources.GasUsed+usage.GasUsed > rc.fees.GetMaxUnadjustedGas() {
		run.outOfGas = true
		ok = false
	}
	if run.resources.CallDataUsed+usage.CallDataUsed > rc.fees.GetMaxTxCallData() {
		run.outOfCallData = true
		ok = false
	}
	return ok
}

// addTx adds tx on its own, charging extraGas on top of its marginal gas.
func (rc *RollupCoordinator) addTx(run *rollupRun, tx *types.PendingTx, extraGas int64) bool {
	usage := ResourceUsage{
		GasUsed:      rc.marginalGas(tx) + extraGas,
		CallDataUsed: rc.fees.GetTxCallData(tx.TxType),
	}
	if rc.usesAssetSlot(tx) && !run.resources.AssetIDs.Has(tx.FeeAssetID) {
		if len(run.resources.AssetIDs) >= rc.cfg.NumAssetSlots {
			rc.discard(run, tx, "asset slots full")
			return false
		}
		usage.NewAssetIDs = []uint32{tx.FeeAssetID}
	}
	if !rc.fits(run, usage) {
		rc.discard(run, tx, "over budget")
		return false
	}
	run.resources.apply(usage)
	run.txs = append(run.txs, types.NewRollupTx(tx))
	return true
}

func (rc *RollupCoordinator) addDefiDeposit(run *rollupRun, tx *types.PendingTx) {
	if tx.BridgeCallData == nil {
		rc.discard(run, tx, "missing bridge call data")
		return
	}
	bc := *tx.BridgeCallData
	cfg := rc.bridges.GetBridgeConfig(bc)
	if !cfg.IsPermitted(bc.InputAssetIDA()) {
		rc.discard(run, tx, "asset not permitted by bridge")
		return
	}
	if run.resources.HasBridge(bc) {
		rc.addTx(run, tx, 0)
		return
	}
	bridgeSlotFree := len(run.resources.BridgeCallDatas) < rc.cfg.NumBridgeSlots
	if run.flush && bridgeSlotFree {
		if rc.addTx(run, tx, cfg.Gas) {
			run.resources.addBridge(bc)
		}
		return
	}

	queue, ok := run.queues[bc]
	if !ok {
		timeout := run.timeouts.BridgeTimeout(bc)
		if timeout == nil {
			timeout = run.timeouts.BaseTimeout
		}
		queue = NewBridgeTxQueue(bc, cfg, timeout, rc.fees)
		run.queues[bc] = queue
	}
	queue.AddDefiTx(types.NewRollupTx(tx))
	markOutputs(run.queued, tx)
	if !bridgeSlotFree {
		return
	}

	resources := run.resources
	released, usage := queue.GetTxsToRollup(
		rc.cfg.TotalSlots()-len(run.txs),
		resources.AssetIDs,
		rc.cfg.NumAssetSlots,
		rc.fees.GetMaxUnadjustedGas()-resources.GasUsed,
		rc.fees.GetMaxTxCallData()-resources.CallDataUsed,
	)
	if len(released) == 0 {
		return
	}
	resources.addBridge(bc)
	resources.apply(usage)
	for _, rtx := range released {
		unmarkOutputs(run.queued, rtx.Tx)
	}
	run.txs = append(run.txs, released...)
	rc.log.Debug().Str("bridge", bc.Hex()).Int("txs", len(released)).Msg("Released bridge queue")
}

// topUp fills slack capacity with second class txs. It never opens a new
// bridge slot.
func (rc *RollupCoordinator) topUp(run *rollupRun) {
	totalSlots := rc.cfg.TotalSlots()
	for _, tx := range run.secondClass {
		if len(run.txs) >= totalSlots {
			return
		}
		unmarkOutputs(run.queued, tx)
		if run.chainedToExcluded(tx) {
			rc.discard(run, tx, "chained to excluded tx")
			continue
		}
		if tx.TxType == types.TxTypeDefiDeposit {
			if tx.BridgeCallData == nil || !run.resources.HasBridge(*tx.BridgeCallData) {
				rc.discard(run, tx, "second class deposit without bridge slot")
				continue
			}
		}
		rc.addTx(run, tx, 0)
	}
}

// profile summarises the selected txs and cross checks the resource accounting.
func (rc *RollupCoordinator) profile(run *rollupRun) (*types.RollupProfile, error) {
	totalSlots := rc.cfg.TotalSlots()
	resources := run.resources
	if len(run.txs) > totalSlots {
		return nil, fmt.Errorf("%w: %d txs selected for %d slots", ErrInvariantViolation, len(run.txs), totalSlots)
	}
	if len(resources.BridgeCallDatas) > rc.cfg.NumBridgeSlots || len(resources.AssetIDs) > rc.cfg.NumAssetSlots {
		return nil, fmt.Errorf("%w: %d bridges, %d assets", ErrInvariantViolation, len(resources.BridgeCallDatas), len(resources.AssetIDs))
	}

	base := rc.fees.GetUnadjustedBaseVerificationGas()
	profile := &types.RollupProfile{
		RollupSize:    totalSlots,
		TotalTxs:      len(run.txs),
		TotalGas:      resources.GasUsed,
		TotalCallData: resources.CallDataUsed,
		OutOfGas:      run.outOfGas,
		OutOfCallData: run.outOfCallData,
		OutOfSlots:    len(run.txs) >= totalSlots,
	}

	bridgeIndex := make(map[types.BridgeCallData]int, len(resources.BridgeCallDatas))
	expectedGas := int64(totalSlots) * base
	var bridgeCost int64
	for i, bc := range resources.BridgeCallDatas {
		cfg := rc.bridges.GetBridgeConfig(bc)
		bridgeIndex[bc] = i
		expectedGas += cfg.Gas
		subsidy := cfg.Subsidy
		if subsidy > cfg.Gas {
			subsidy = cfg.Gas
		}
		bridgeCost += cfg.Gas - subsidy
		profile.BridgeProfiles = append(profile.BridgeProfiles, types.BridgeProfile{
			BridgeCallData: bc,
			GasSubsidy:     cfg.Subsidy,
			GasThreshold:   cfg.Gas,
		})
	}

	var gasPaid, txGas, callData int64
	positions := make(map[common.Hash]int)
	for i, rtx := range run.txs {
		tx := rtx.Tx
		gas := rc.fees.GetUnadjustedTxGas(rtx.Fee.AssetID, tx.TxType)
		paid := gas
		if tx.TxType != types.TxTypeDefiClaim {
			// claims were paid for by their deposit
			paid = rc.fees.GetGasPaidForByFee(rtx.Fee.AssetID, rtx.Fee.Value)
		}
		txGas += gas
		gasPaid += paid
		expectedGas += gas - base
		callData += rc.fees.GetTxCallData(tx.TxType)
		updateTxTimes(&profile.EarliestTx, &profile.LatestTx, tx.CreatedAt)

		if tx.IsChained() {
			if j, ok := positions[tx.BackwardLink]; ok {
				if j/rc.cfg.NumInnerRollupTxs == i/rc.cfg.NumInnerRollupTxs {
					profile.InnerChains++
				} else {
					profile.OuterChains++
				}
			}
		}
		for _, c := range tx.NoteCommitments {
			if c != (common.Hash{}) {
				positions[c] = i
			}
		}

		if deadline := run.timeouts.BaseTimeout; deadline != nil && tx.CreatedAt.Before(deadline.Timeout) {
			profile.Deadlined = true
		}
		if rtx.BridgeCallData != nil {
			idx, ok := bridgeIndex[*rtx.BridgeCallData]
			if !ok {
				return nil, fmt.Errorf("%w: tx %s uses bridge %s without a slot", ErrInvariantViolation, tx.ID.Hex(), rtx.BridgeCallData.Hex())
			}
			bp := &profile.BridgeProfiles[idx]
			bp.NumTxs++
			if excess := paid - gas; excess > 0 {
				bp.GasAccrued += excess
			}
			updateTxTimes(&bp.EarliestTx, &bp.LatestTx, tx.CreatedAt)
			if timeout := run.timeouts.BridgeTimeout(*rtx.BridgeCallData); timeout != nil && tx.CreatedAt.Before(timeout.Timeout) {
				profile.Deadlined = true
			}
		}
	}

	if expectedGas != resources.GasUsed || callData != resources.CallDataUsed {
		return nil, fmt.Errorf("%w: accounted gas %d calldata %d, recomputed gas %d calldata %d",
			ErrInvariantViolation, resources.GasUsed, resources.CallDataUsed, expectedGas, callData)
	}

	emptySlots := int64(totalSlots - len(run.txs))
	profile.GasBalance = gasPaid - txGas - bridgeCost - emptySlots*base
	profile.Profitable = profile.TotalTxs > 0 && profile.GasBalance >= 0
	return profile, nil
}

func (rc *RollupCoordinator) shouldPublish(profile *types.RollupProfile, flush bool) bool {
	if profile.TotalTxs == 0 {
		return false
	}
	return flush ||
		(profile.Profitable && rc.cfg.PublishProfitable) ||
		profile.Deadlined ||
		profile.OutOfGas ||
		profile.OutOfCallData ||
		profile.OutOfSlots
}

// publish builds, aggregates and publishes the batch. started is false if the
// coordinator was interrupted before anything was built.
func (rc *RollupCoordinator) publish(ctx context.Context, run *rollupRun) (published bool, started bool, err error) {
	if !rc.startPublishing() {
		return false, false, nil
	}
	defer func() { rc.finish(published) }()

	innerRollups, err := rc.buildInnerRollups(ctx, run)
	if err != nil {
		return false, true, err
	}

	defiState, err := rc.defiState.GetDefiState(ctx)
	if err != nil {
		return false, true, fmt.Errorf("read defi state: %w", err)
	}

	bridgeSlots := make([]types.BridgeCallData, rc.cfg.NumBridgeSlots)
	copy(bridgeSlots, run.resources.BridgeCallDatas)
	assetSlots := make([]uint32, rc.cfg.NumAssetSlots)
	for i := range assetSlots {
		assetSlots[i] = types.InvalidAssetID
	}
	copy(assetSlots, run.resources.AssetIDs.Sorted())

	aggCtx, span := rc.tracer.Start(ctx, "Aggregate", trace.WithAttributes(attribute.Int("innerRollups", len(innerRollups))))
	batch, err := rc.aggregator.Aggregate(aggCtx, innerRollups, defiState.Root, defiState.Path, defiState.InteractionNotes, bridgeSlots, assetSlots)
	span.End()
	if err != nil {
		return false, true, fmt.Errorf("aggregate: %w", err)
	}

	pubCtx, span := rc.tracer.Start(ctx, "PublishRollup", trace.WithAttributes(attribute.Int64("rollupId", int64(batch.RollupID))))
	published, err = rc.publisher.PublishRollup(pubCtx, batch)
	span.End()
	if err != nil {
		return false, true, fmt.Errorf("publish rollup %d: %w", batch.RollupID, err)
	}
	if published {
		rc.log.Info().Uint64("rollupId", batch.RollupID).Int("innerRollups", len(innerRollups)).Msg("Published rollup")
	} else {
		rc.log.Warn().Uint64("rollupId", batch.RollupID).Msg("Rollup publish interrupted")
	}
	return published, true, nil
}

// findCarriedOver returns a carried-over inner rollup built from the same txs
// against the same bridge and asset slots, if there is one.
func (rc *RollupCoordinator) findCarriedOver(ids []common.Hash, bridgeCallDatas []types.BridgeCallData, assetIDs []uint32) *types.InnerRollup {
	for _, r := range rc.carriedOver {
		if r.HasTxs(ids) && r.HasSlots(bridgeCallDatas, assetIDs) {
			return r
		}
	}
	return nil
}

// buildInnerRollups splits the batch into inner rollup sized chunks and builds
// them in parallel.
func (rc *RollupCoordinator) buildInnerRollups(ctx context.Context, run *rollupRun) ([]*types.InnerRollup, error) {
	ctx, span := rc.tracer.Start(ctx, "BuildInnerRollups")
	defer span.End()

	size := rc.cfg.NumInnerRollupTxs
	var chunks [][]*types.RollupTx
	for i := 0; i < len(run.txs); i += size {
		end := i + size
		if end > len(run.txs) {
			end = len(run.txs)
		}
		chunks = append(chunks, run.txs[i:end])
	}

	bridgeCallDatas := append([]types.BridgeCallData(nil), run.resources.BridgeCallDatas...)
	assetIDs := run.resources.AssetIDs.Sorted()
	results := make([]*types.InnerRollup, len(chunks))

	limit := rc.cfg.MaxParallelBuilds
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	var reused int
	for i, chunk := range chunks {
		i, chunk := i, chunk
		ids := make([]common.Hash, len(chunk))
		for j, rtx := range chunk {
			ids[j] = rtx.Tx.ID
		}
		if r := rc.findCarriedOver(ids, bridgeCallDatas, assetIDs); r != nil {
			results[i] = r
			reused++
			continue
		}
		g.Go(func() error {
			r, err := rc.creator.Create(gctx, chunk, bridgeCallDatas, assetIDs)
			if err != nil {
				return fmt.Errorf("create inner rollup %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	err := g.Wait()

	built := make([]*types.InnerRollup, 0, len(results))
	for _, r := range results {
		if r != nil {
			built = append(built, r)
		}
	}
	rc.lock.Lock()
	rc.innerRollups = built
	rc.lock.Unlock()

	span.SetAttributes(attribute.Int("chunks", len(chunks)), attribute.Int("reused", reused))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return results, nil
}
