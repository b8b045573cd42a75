// Package builder provides proverless inner rollup creation and batch
// aggregation. Commitments are Sparse Merkle roots, nothing is proven.
package builder

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash"
	"math/bits"
	"time"

	"github.com/celer-network/go-sequencer/db"
	"github.com/celer-network/go-sequencer/db/memorydb"
	"github.com/celer-network/go-sequencer/log"
	"github.com/celer-network/go-sequencer/smt"
	"github.com/celer-network/go-sequencer/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/sha3"
)

// Store persists what the builder produces.
type Store interface {
	AddInnerRollup(rollup *types.InnerRollup) error
	AddRollupBatch(batch *types.RollupBatch) error
	LastSettledRollupID() (uint64, bool, error)
	AdvanceSettledRollupID(rollupID uint64) error
}

// RollupIDReader reports the rollup id the chain expects next.
type RollupIDReader interface {
	NextRollupID(ctx context.Context) (uint64, error)
}

func treeHeight(numLeaves int) int {
	if numLeaves < 2 {
		return 2
	}
	return bits.Len(uint(numLeaves-1)) + 1
}

func leafKey(i int) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], uint32(i))
	return key[:]
}

// dataTree commits to leaves by position in a transient tree.
func dataTree(hasher hash.Hash, height int, leaves [][]byte) (*smt.SparseMerkleTree, error) {
	tree, err := smt.NewSparseMerkleTree(memorydb.NewDB(), db.NamespaceSMT, hasher, nil, height)
	if err != nil {
		return nil, err
	}
	for i, leaf := range leaves {
		if _, err := tree.Update(leafKey(i), leaf); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func merkleRoot(hasher hash.Hash, height int, leaves [][]byte) (common.Hash, error) {
	tree, err := dataTree(hasher, height, leaves)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(tree.Root()), nil
}

func keccak(data ...[]byte) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hasher.Write(d)
	}
	return common.BytesToHash(hasher.Sum(nil))
}

// Creator builds inner rollups of up to size txs.
type Creator struct {
	store  Store
	height int
	log    *log.Logger
}

func NewCreator(store Store, size int) *Creator {
	return &Creator{
		store:  store,
		height: treeHeight(size),
		log:    log.NewLogger("builder"),
	}
}

func txLeaf(tx *types.RollupTx) []byte {
	leaf := make([]byte, 0, common.HashLength*4+len(tx.Tx.ProofData))
	leaf = append(leaf, tx.Tx.ID.Bytes()...)
	leaf = append(leaf, tx.Tx.NoteCommitments[0].Bytes()...)
	leaf = append(leaf, tx.Tx.NoteCommitments[1].Bytes()...)
	leaf = append(leaf, tx.Tx.BackwardLink.Bytes()...)
	return append(leaf, tx.Tx.ProofData...)
}

func (c *Creator) Create(ctx context.Context, txs []*types.RollupTx, bridgeCallDatas []types.BridgeCallData, assetIDs []uint32) (*types.InnerRollup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(txs) == 0 || len(txs) > 1<<(c.height-1) {
		return nil, fmt.Errorf("builder: cannot build inner rollup of %d txs", len(txs))
	}

	leaves := make([][]byte, len(txs))
	ids := make([]common.Hash, len(txs))
	for i, tx := range txs {
		leaves[i] = txLeaf(tx)
		ids[i] = tx.Tx.ID
	}
	dataHash, err := merkleRoot(sha256.New(), c.height, leaves)
	if err != nil {
		return nil, err
	}

	slots := make([][]byte, 0, len(bridgeCallDatas)+len(assetIDs)+1)
	slots = append(slots, dataHash.Bytes())
	for _, bc := range bridgeCallDatas {
		slots = append(slots, bc.Hash().Bytes())
	}
	for _, id := range assetIDs {
		slots = append(slots, leafKey(int(id)))
	}
	rollup := &types.InnerRollup{
		ID:              keccak(slots...),
		RollupSize:      len(txs),
		TxIDs:           ids,
		BridgeCallDatas: bridgeCallDatas,
		AssetIDs:        assetIDs,
		DataHash:        dataHash,
		CreatedAt:       time.Now(),
	}
	if err := c.store.AddInnerRollup(rollup); err != nil {
		return nil, fmt.Errorf("store inner rollup: %w", err)
	}
	c.log.Debug().Str("id", rollup.ID.Hex()).Int("txs", len(txs)).Str("dataHash", dataHash.Hex()).Msg("Built inner rollup")
	return rollup, nil
}

// ProveTx returns the proof that txs[index] is leaf index of the data tree
// Create builds from txs.
func (c *Creator) ProveTx(txs []*types.RollupTx, index int) ([][]byte, error) {
	if index < 0 || index >= len(txs) || len(txs) > 1<<(c.height-1) {
		return nil, fmt.Errorf("builder: no tx %d in inner rollup of %d txs", index, len(txs))
	}
	leaves := make([][]byte, len(txs))
	for i, tx := range txs {
		leaves[i] = txLeaf(tx)
	}
	tree, err := dataTree(sha256.New(), c.height, leaves)
	if err != nil {
		return nil, err
	}
	return tree.Prove(leafKey(index))
}

// VerifyTx checks that proof places tx at index under rollup's DataHash.
func (c *Creator) VerifyTx(rollup *types.InnerRollup, index int, tx *types.RollupTx, proof [][]byte) bool {
	if index < 0 || index >= rollup.RollupSize {
		return false
	}
	return smt.VerifyProof(proof, rollup.DataHash.Bytes(), leafKey(index), txLeaf(tx), sha256.New(), c.height)
}

// Aggregator combines inner rollups into the next batch.
type Aggregator struct {
	store  Store
	chain  RollupIDReader
	height int
	log    *log.Logger
}

// NewAggregator returns an aggregator numbering batches from the store alone
// when chain is nil.
func NewAggregator(store Store, chain RollupIDReader, numOuterRollupProofs int) *Aggregator {
	return &Aggregator{
		store:  store,
		chain:  chain,
		height: treeHeight(numOuterRollupProofs),
		log:    log.NewLogger("builder"),
	}
}

// nextRollupID is the id after the last settled one. The chain wins when it
// is ahead, i.e. another publisher took ids, and the store catches up.
// A chain behind the store is a misconfiguration.
func (a *Aggregator) nextRollupID(ctx context.Context) (uint64, error) {
	last, ok, err := a.store.LastSettledRollupID()
	if err != nil {
		return 0, err
	}
	var next uint64
	if ok {
		next = last + 1
	}
	if a.chain == nil {
		return next, nil
	}
	onChain, err := a.chain.NextRollupID(ctx)
	if err != nil {
		return 0, fmt.Errorf("read next rollup id: %w", err)
	}
	if onChain == next {
		return next, nil
	}
	if onChain < next {
		return 0, fmt.Errorf("builder: chain expects rollup %d but %d is already settled", onChain, next-1)
	}
	a.log.Warn().Uint64("local", next).Uint64("chain", onChain).Msg("Rollup ids taken by another publisher")
	if err := a.store.AdvanceSettledRollupID(onChain - 1); err != nil {
		return 0, err
	}
	return onChain, nil
}

// Aggregate numbers the batch after the last settled one. The new defi root
// commits to the old one, the batch data and its bridge slots.
func (a *Aggregator) Aggregate(
	ctx context.Context,
	innerRollups []*types.InnerRollup,
	oldDefiRoot common.Hash,
	oldDefiPath [][]byte,
	interactionNotes [][]byte,
	bridgeSlots []types.BridgeCallData,
	assetSlots []uint32,
) (*types.RollupBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(innerRollups) == 0 || len(innerRollups) > 1<<(a.height-1) {
		return nil, fmt.Errorf("builder: cannot aggregate %d inner rollups", len(innerRollups))
	}
	rollupID, err := a.nextRollupID(ctx)
	if err != nil {
		return nil, err
	}

	leaves := make([][]byte, len(innerRollups))
	ids := make([]common.Hash, len(innerRollups))
	for i, r := range innerRollups {
		leaves[i] = r.DataHash.Bytes()
		ids[i] = r.ID
	}
	dataHash, err := merkleRoot(sha3.NewLegacyKeccak256(), a.height, leaves)
	if err != nil {
		return nil, err
	}

	parts := [][]byte{oldDefiRoot.Bytes(), dataHash.Bytes()}
	for _, bc := range bridgeSlots {
		parts = append(parts, bc.Hash().Bytes())
	}
	batch := &types.RollupBatch{
		RollupID:         rollupID,
		InnerRollups:     ids,
		BridgeSlots:      bridgeSlots,
		AssetSlots:       assetSlots,
		OldDefiRoot:      oldDefiRoot,
		NewDefiRoot:      keccak(parts...),
		InteractionNotes: interactionNotes,
		DataHash:         dataHash,
		CreatedAt:        time.Now(),
	}
	if err := a.store.AddRollupBatch(batch); err != nil {
		return nil, fmt.Errorf("store rollup %d: %w", rollupID, err)
	}
	a.log.Info().Uint64("rollupId", rollupID).Int("innerRollups", len(ids)).Int("defiPath", len(oldDefiPath)).
		Str("dataHash", dataHash.Hex()).Msg("Aggregated rollup")
	return batch, nil
}
