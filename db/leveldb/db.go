// Package leveldb implements db.DB on goleveldb.
package leveldb

import (
	"bytes"
	"errors"

	seqdb "github.com/celer-network/go-sequencer/db"
	"github.com/celer-network/go-sequencer/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const bulkFlushSize = 1024

var (
	logger             = log.NewLogger("db")
	errInvalidIterator = errors.New("leveldb: invalid iterator")
	errClosedBatch     = errors.New("leveldb: batch already written or discarded")
)

// Enforce database and transaction implements interfaces
var _ seqdb.DB = (*DB)(nil)

type DB struct {
	db   *leveldb.DB
	name string
}

// NewDB opens, or creates, the database in dir.
func NewDB(dir string) (*DB, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, err
	}
	logger.Info().Str("name", dir).Msg("Opened leveldb")
	return &DB{db: db, name: dir}, nil
}

func (db *DB) Type() string {
	return seqdb.TypeLevelDB
}

func (db *DB) Set(namespace []byte, key []byte, value []byte) error {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	return db.db.Put(key, seqdb.ConvNilToBytes(value), nil)
}

func (db *DB) Delete(namespace []byte, key []byte) error {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	return db.db.Delete(key, nil)
}

func (db *DB) Get(namespace []byte, key []byte) ([]byte, bool, error) {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	value, err := db.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (db *DB) Exist(namespace []byte, key []byte) (bool, error) {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	return db.db.Has(key, nil)
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) NewTx() seqdb.Transaction {
	return &Transaction{db: db, batch: new(leveldb.Batch)}
}

func (db *DB) NewBulk() seqdb.Bulk {
	return &Bulk{db: db, batch: new(leveldb.Batch)}
}

// Transaction is a leveldb batch written atomically on Commit.
type Transaction struct {
	db     *DB
	batch  *leveldb.Batch
	closed bool
}

func (transaction *Transaction) Set(namespace []byte, key []byte, value []byte) error {
	if transaction.closed {
		return errClosedBatch
	}
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	transaction.batch.Put(key, seqdb.ConvNilToBytes(value))
	return nil
}

func (transaction *Transaction) Delete(namespace []byte, key []byte) error {
	if transaction.closed {
		return errClosedBatch
	}
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	transaction.batch.Delete(key)
	return nil
}

func (transaction *Transaction) Commit() error {
	if transaction.closed {
		return errClosedBatch
	}
	transaction.closed = true
	return transaction.db.db.Write(transaction.batch, nil)
}

func (transaction *Transaction) Discard() {
	transaction.closed = true
	transaction.batch.Reset()
}

// Bulk writes its batch out every bulkFlushSize operations.
type Bulk struct {
	db    *DB
	batch *leveldb.Batch
}

func (bulk *Bulk) writeIfFull() error {
	if bulk.batch.Len() < bulkFlushSize {
		return nil
	}
	return bulk.Flush()
}

func (bulk *Bulk) Set(namespace []byte, key []byte, value []byte) error {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	bulk.batch.Put(key, seqdb.ConvNilToBytes(value))
	return bulk.writeIfFull()
}

func (bulk *Bulk) Delete(namespace []byte, key []byte) error {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	bulk.batch.Delete(key)
	return bulk.writeIfFull()
}

func (bulk *Bulk) Flush() error {
	if err := bulk.db.db.Write(bulk.batch, nil); err != nil {
		return err
	}
	bulk.batch.Reset()
	return nil
}

// DiscardLast drops the operations not yet written out.
func (bulk *Bulk) DiscardLast() {
	bulk.batch.Reset()
}

type Iterator struct {
	end     []byte
	reverse bool
	iter    iterator.Iterator
}

func (db *DB) Iterator(start []byte, end []byte) seqdb.Iterator {
	reverse := seqdb.IsReverse(start, end)

	var iter iterator.Iterator
	if reverse {
		// (end, start]: the range limit is exclusive, so extend start by a zero byte
		limit := append(append([]byte{}, start...), 0)
		iter = db.db.NewIterator(&util.Range{Start: end, Limit: limit}, nil)
		iter.Last()
	} else {
		iter = db.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
		iter.First()
	}
	return &Iterator{end: end, reverse: reverse, iter: iter}
}

func (iter *Iterator) Valid() bool {
	if !iter.iter.Valid() {
		return false
	}
	if iter.reverse {
		return !bytes.Equal(iter.iter.Key(), iter.end)
	}
	return true
}

func (iter *Iterator) Next() error {
	if !iter.Valid() {
		return errInvalidIterator
	}
	if iter.reverse {
		iter.iter.Prev()
	} else {
		iter.iter.Next()
	}
	return iter.iter.Error()
}

func (iter *Iterator) Key() ([]byte, error) {
	if !iter.Valid() {
		return nil, errInvalidIterator
	}
	return append([]byte{}, iter.iter.Key()...), nil
}

func (iter *Iterator) Value() ([]byte, error) {
	if !iter.Valid() {
		return nil, errInvalidIterator
	}
	return append([]byte{}, iter.iter.Value()...), nil
}

func (iter *Iterator) Close() {
	iter.iter.Release()
}
