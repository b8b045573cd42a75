package memorydb

import (
	"container/list"
	"errors"
	"sync"

	seqdb "github.com/celer-network/go-sequencer/db"
)

var (
	errCommitAfterDiscard = errors.New("memorydb: commit after discard")
	errDoubleCommit       = errors.New("memorydb: already committed")
)

type txOp struct {
	isSet bool
	key   []byte
	value []byte
}

// writeBatch buffers operations and applies them under the db lock.
type writeBatch struct {
	lock      sync.Mutex
	db        *DB
	opList    *list.List
	isDiscard bool
	isCommit  bool
}

func newWriteBatch(db *DB) *writeBatch {
	return &writeBatch{db: db, opList: list.New()}
}

func (b *writeBatch) set(namespace []byte, key []byte, value []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	b.opList.PushBack(&txOp{isSet: true, key: key, value: copyBytes(seqdb.ConvNilToBytes(value))})
	return nil
}

func (b *writeBatch) delete(namespace []byte, key []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	b.opList.PushBack(&txOp{isSet: false, key: key})
	return nil
}

func (b *writeBatch) apply() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.isDiscard {
		return errCommitAfterDiscard
	} else if b.isCommit {
		return errDoubleCommit
	}

	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	for e := b.opList.Front(); e != nil; e = e.Next() {
		op := e.Value.(*txOp)
		if op.isSet {
			b.db.db[string(op.key)] = op.value
		} else {
			delete(b.db.db, string(op.key))
		}
	}
	b.isCommit = true
	return nil
}

func (b *writeBatch) discard() {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.isDiscard = true
}

type Transaction struct {
	batch *writeBatch
}

func (transaction *Transaction) Set(namespace []byte, key []byte, value []byte) error {
	return transaction.batch.set(namespace, key, value)
}

func (transaction *Transaction) Delete(namespace []byte, key []byte) error {
	return transaction.batch.delete(namespace, key)
}

func (transaction *Transaction) Commit() error {
	return transaction.batch.apply()
}

func (transaction *Transaction) Discard() {
	transaction.batch.discard()
}

// Bulk shares the transaction buffer; the map never needs intermediate flushes.
type Bulk struct {
	batch *writeBatch
}

func (bulk *Bulk) Set(namespace []byte, key []byte, value []byte) error {
	return bulk.batch.set(namespace, key, value)
}

func (bulk *Bulk) Delete(namespace []byte, key []byte) error {
	return bulk.batch.delete(namespace, key)
}

func (bulk *Bulk) Flush() error {
	return bulk.batch.apply()
}

func (bulk *Bulk) DiscardLast() {
	bulk.batch.discard()
}
