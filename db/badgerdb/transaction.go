package badgerdb

import (
	"errors"
	"time"

	seqdb "github.com/celer-network/go-sequencer/db"
	"github.com/celer-network/go-sequencer/log"
	"github.com/dgraph-io/badger/v2"
)

// writeStats tracks what a write batch carried, for the slow write warning.
type writeStats struct {
	setCount  uint
	delCount  uint
	keySize   uint64
	valueSize uint64
}

func (s *writeStats) set(key, value []byte) {
	s.setCount++
	s.keySize += uint64(len(key))
	s.valueSize += uint64(len(value))
}

func (s *writeStats) warnSlow(name, what string, createT, writeStartT time.Time) {
	writeEndT := time.Now()
	if writeEndT.Sub(writeStartT) <= slowWriteThreshold {
		return
	}
	logger.Warn().Str("name", name).Str("callstack1", log.SkipCaller(3)).Str("callstack2", log.SkipCaller(4)).
		Dur("prepareTime", writeStartT.Sub(createT)).
		Dur("takenTime", writeEndT.Sub(writeStartT)).
		Uint("delCount", s.delCount).Uint("setCount", s.setCount).
		Uint64("setKeySize", s.keySize).Uint64("setValueSize", s.valueSize).
		Msg(what + " takes long time")
}

type Transaction struct {
	db      *DB
	tx      *badger.Txn
	createT time.Time
	stats   writeStats
}

func (transaction *Transaction) Set(namespace []byte, key []byte, value []byte) error {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	value = seqdb.ConvNilToBytes(value)

	if err := transaction.tx.Set(key, value); err != nil {
		if errors.Is(err, badger.ErrTxnTooBig) {
			logger.Error().Str("name", transaction.db.name).Uint("setCount", transaction.stats.setCount).
				Msg("transaction too big, use a bulk instead")
		}
		return err
	}
	transaction.stats.set(key, value)
	return nil
}

func (transaction *Transaction) Delete(namespace []byte, key []byte) error {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))

	if err := transaction.tx.Delete(key); err != nil {
		return err
	}
	transaction.stats.delCount++
	return nil
}

func (transaction *Transaction) Commit() error {
	writeStartT := time.Now()
	err := transaction.tx.Commit()
	transaction.stats.warnSlow(transaction.db.name, "commit", transaction.createT, writeStartT)
	return err
}

func (transaction *Transaction) Discard() {
	transaction.tx.Discard()
}

// Bulk wraps a badger write batch, which commits internally as it grows.
type Bulk struct {
	db      *DB
	bulk    *badger.WriteBatch
	createT time.Time
	stats   writeStats
}

func (bulk *Bulk) Set(namespace []byte, key []byte, value []byte) error {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	value = seqdb.ConvNilToBytes(value)

	if err := bulk.bulk.Set(key, value); err != nil {
		return err
	}
	bulk.stats.set(key, value)
	return nil
}

func (bulk *Bulk) Delete(namespace []byte, key []byte) error {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))

	if err := bulk.bulk.Delete(key); err != nil {
		return err
	}
	bulk.stats.delCount++
	return nil
}

func (bulk *Bulk) Flush() error {
	writeStartT := time.Now()
	err := bulk.bulk.Flush()
	bulk.stats.warnSlow(bulk.db.name, "flush", bulk.createT, writeStartT)
	return err
}

func (bulk *Bulk) DiscardLast() {
	bulk.bulk.Cancel()
}
