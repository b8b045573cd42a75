// Package rollupdb persists pending txs, inner rollups and rollup batches on
// top of a namespaced db.DB.
package rollupdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/celer-network/go-sequencer/db"
	"github.com/celer-network/go-sequencer/log"
	"github.com/celer-network/go-sequencer/types"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotFound = errors.New("rollupdb: not found")

	keyDefiState       = []byte("state")
	keyLastSettledID   = []byte("lastSettledRollupId")
	unsettledInnerMark = []byte("i")
	unsettledBatchMark = []byte("b")
)

type Store struct {
	db  db.DB
	log *log.Logger
}

func NewStore(database db.DB) *Store {
	return &Store{
		db:  database,
		log: log.NewLogger("rollupdb"),
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func rollupIDKey(rollupID uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], rollupID)
	return key[:]
}

func pendingTxKey(tx *types.PendingTx) []byte {
	key := make([]byte, 8, 8+common.HashLength)
	binary.BigEndian.PutUint64(key, uint64(tx.CreatedAt.UnixNano()))
	return append(key, tx.ID.Bytes()...)
}

func unsettledKey(mark []byte, id []byte) []byte {
	return append(append([]byte{}, mark...), id...)
}

// PutPendingTx stores tx in the pending pool.
func (s *Store) PutPendingTx(tx *types.PendingTx) error {
	data, err := tx.SerializeForStorage()
	if err != nil {
		return err
	}
	key := pendingTxKey(tx)
	dbTx := s.db.NewTx()
	if err = dbTx.Set(db.NamespacePendingTx, key, data); err != nil {
		dbTx.Discard()
		return err
	}
	if err = dbTx.Set(db.NamespacePendingTxIndex, tx.ID.Bytes(), key); err != nil {
		dbTx.Discard()
		return err
	}
	return dbTx.Commit()
}

// GetPendingTxs returns a snapshot of the pending pool in arrival order.
func (s *Store) GetPendingTxs(ctx context.Context) ([]*types.PendingTx, error) {
	iter := s.db.Iterator(db.NamespaceRange(db.NamespacePendingTx))
	defer iter.Close()

	var txs []*types.PendingTx
	for ; iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := iter.Value()
		if err != nil {
			return nil, err
		}
		tx, err := types.DeserializePendingTxFromStorage(data)
		if err != nil {
			return nil, fmt.Errorf("rollupdb: decode pending tx: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *Store) deletePendingTx(dbTx db.Transaction, id common.Hash) error {
	key, ok, err := s.db.Get(db.NamespacePendingTxIndex, id.Bytes())
	if err != nil || !ok {
		return err
	}
	if err = dbTx.Delete(db.NamespacePendingTx, key); err != nil {
		return err
	}
	return dbTx.Delete(db.NamespacePendingTxIndex, id.Bytes())
}

// AddInnerRollup records a built inner rollup. It stays unsettled until the
// batch containing it is settled.
func (s *Store) AddInnerRollup(rollup *types.InnerRollup) error {
	data, err := rollup.SerializeForStorage()
	if err != nil {
		return err
	}
	dbTx := s.db.NewTx()
	if err = dbTx.Set(db.NamespaceInnerRollup, rollup.ID.Bytes(), data); err != nil {
		dbTx.Discard()
		return err
	}
	if err = dbTx.Set(db.NamespaceUnsettled, unsettledKey(unsettledInnerMark, rollup.ID.Bytes()), nil); err != nil {
		dbTx.Discard()
		return err
	}
	return dbTx.Commit()
}

func (s *Store) GetInnerRollup(id common.Hash) (*types.InnerRollup, error) {
	data, ok, err := s.db.Get(db.NamespaceInnerRollup, id.Bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("inner rollup %s: %w", id.Hex(), ErrNotFound)
	}
	return types.DeserializeInnerRollupFromStorage(data)
}

// AddRollupBatch records an aggregated batch before it is published.
func (s *Store) AddRollupBatch(batch *types.RollupBatch) error {
	data, err := batch.SerializeForStorage()
	if err != nil {
		return err
	}
	key := rollupIDKey(batch.RollupID)
	dbTx := s.db.NewTx()
	if err = dbTx.Set(db.NamespaceRollupBatch, key, data); err != nil {
		dbTx.Discard()
		return err
	}
	if !batch.Settled {
		if err = dbTx.Set(db.NamespaceUnsettled, unsettledKey(unsettledBatchMark, key), nil); err != nil {
			dbTx.Discard()
			return err
		}
	}
	return dbTx.Commit()
}

func (s *Store) GetRollupBatch(rollupID uint64) (*types.RollupBatch, error) {
	data, ok, err := s.db.Get(db.NamespaceRollupBatch, rollupIDKey(rollupID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("rollup %d: %w", rollupID, ErrNotFound)
	}
	return types.DeserializeRollupBatchFromStorage(data)
}

// SetBatchTxHash records the hash of the latest submission of a batch.
func (s *Store) SetBatchTxHash(rollupID uint64, txHash common.Hash) error {
	batch, err := s.GetRollupBatch(rollupID)
	if err != nil {
		return err
	}
	batch.TxHash = txHash
	data, err := batch.SerializeForStorage()
	if err != nil {
		return err
	}
	return s.db.Set(db.NamespaceRollupBatch, rollupIDKey(rollupID), data)
}

// MarkSettled finalises a published batch: its txs leave the pending pool,
// its records lose their unsettled markers and the defi root advances.
func (s *Store) MarkSettled(rollupID uint64) error {
	batch, err := s.GetRollupBatch(rollupID)
	if err != nil {
		return err
	}
	batch.Settled = true
	data, err := batch.SerializeForStorage()
	if err != nil {
		return err
	}

	dbTx := s.db.NewTx()
	err = func() error {
		key := rollupIDKey(rollupID)
		if err := dbTx.Set(db.NamespaceRollupBatch, key, data); err != nil {
			return err
		}
		if err := dbTx.Delete(db.NamespaceUnsettled, unsettledKey(unsettledBatchMark, key)); err != nil {
			return err
		}
		for _, id := range batch.InnerRollups {
			inner, err := s.GetInnerRollup(id)
			if err != nil {
				return err
			}
			for _, txID := range inner.TxIDs {
				if err := s.deletePendingTx(dbTx, txID); err != nil {
					return err
				}
			}
			if err := dbTx.Delete(db.NamespaceUnsettled, unsettledKey(unsettledInnerMark, id.Bytes())); err != nil {
				return err
			}
		}
		state, err := json.Marshal(&types.DefiState{Root: batch.NewDefiRoot, InteractionNotes: batch.InteractionNotes})
		if err != nil {
			return err
		}
		if err := dbTx.Set(db.NamespaceDefiState, keyDefiState, state); err != nil {
			return err
		}
		return dbTx.Set(db.NamespaceLastKey, keyLastSettledID, key)
	}()
	if err != nil {
		dbTx.Discard()
		return err
	}
	if err = dbTx.Commit(); err != nil {
		return err
	}
	s.log.Info().Uint64("rollupId", rollupID).Int("innerRollups", len(batch.InnerRollups)).Msg("Settled rollup")
	return nil
}

// DeleteUnsettledRollups removes every inner rollup and batch that was never
// settled. Their txs remain in the pending pool.
func (s *Store) DeleteUnsettledRollups() error {
	iter := s.db.Iterator(db.NamespaceRange(db.NamespaceUnsettled))
	var markers [][]byte
	for ; iter.Valid(); iter.Next() {
		key, err := iter.Key()
		if err != nil {
			iter.Close()
			return err
		}
		markers = append(markers, db.TrimNamespace(db.NamespaceUnsettled, key))
	}
	iter.Close()

	bulk := s.db.NewBulk()
	var inner, batches int
	for _, marker := range markers {
		id := marker[1:]
		switch marker[0] {
		case unsettledInnerMark[0]:
			inner++
			if err := bulk.Delete(db.NamespaceInnerRollup, id); err != nil {
				bulk.DiscardLast()
				return err
			}
		case unsettledBatchMark[0]:
			batches++
			if err := bulk.Delete(db.NamespaceRollupBatch, id); err != nil {
				bulk.DiscardLast()
				return err
			}
		}
		if err := bulk.Delete(db.NamespaceUnsettled, marker); err != nil {
			bulk.DiscardLast()
			return err
		}
	}
	if err := bulk.Flush(); err != nil {
		return err
	}
	if inner+batches > 0 {
		s.log.Info().Int("innerRollups", inner).Int("batches", batches).Msg("Deleted unsettled rollups")
	}
	return nil
}

// LastSettledRollupID returns the id of the newest settled batch, if any.
func (s *Store) LastSettledRollupID() (uint64, bool, error) {
	value, ok, err := s.db.Get(db.NamespaceLastKey, keyLastSettledID)
	if err != nil || !ok {
		return 0, false, err
	}
	return binary.BigEndian.Uint64(value), true, nil
}

// AdvanceSettledRollupID records rollupID as settled without a local batch,
// for ids another publisher took. It never moves the marker backwards.
func (s *Store) AdvanceSettledRollupID(rollupID uint64) error {
	last, ok, err := s.LastSettledRollupID()
	if err != nil {
		return err
	}
	if ok && last >= rollupID {
		return nil
	}
	if err := s.db.Set(db.NamespaceLastKey, keyLastSettledID, rollupIDKey(rollupID)); err != nil {
		return err
	}
	s.log.Info().Uint64("rollupId", rollupID).Msg("Advanced settled rollup id")
	return nil
}

// GetDefiState returns the defi state left by the last settled batch.
func (s *Store) GetDefiState(ctx context.Context) (*types.DefiState, error) {
	value, ok, err := s.db.Get(db.NamespaceDefiState, keyDefiState)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.DefiState{}, nil
	}
	var state types.DefiState
	if err = json.Unmarshal(value, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
