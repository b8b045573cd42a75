package badgerdb

import (
	"bytes"
	"errors"

	seqdb "github.com/celer-network/go-sequencer/db"
	"github.com/dgraph-io/badger/v2"
)

var errInvalidIterator = errors.New("badgerdb: invalid iterator")

// Iterator runs inside its own read-only badger transaction, released by Close.
type Iterator struct {
	end     []byte
	reverse bool
	txn     *badger.Txn
	iter    *badger.Iterator
}

func (db *DB) Iterator(start, end []byte) seqdb.Iterator {
	reverse := seqdb.IsReverse(start, end)

	opt := badger.DefaultIteratorOptions
	opt.PrefetchValues = false
	opt.Reverse = reverse

	txn := db.db.NewTransaction(false)
	iter := txn.NewIterator(opt)
	iter.Seek(start)

	return &Iterator{
		end:     end,
		reverse: reverse,
		txn:     txn,
		iter:    iter,
	}
}

func (iter *Iterator) Next() error {
	if !iter.Valid() {
		return errInvalidIterator
	}
	iter.iter.Next()
	return nil
}

func (iter *Iterator) Valid() bool {
	if !iter.iter.Valid() {
		return false
	}
	if iter.end == nil {
		return true
	}
	key := iter.iter.Item().Key()
	if iter.reverse {
		return bytes.Compare(iter.end, key) < 0
	}
	return bytes.Compare(key, iter.end) < 0
}

func (iter *Iterator) Key() ([]byte, error) {
	if !iter.Valid() {
		return nil, errInvalidIterator
	}
	return iter.iter.Item().KeyCopy(nil), nil
}

func (iter *Iterator) Value() ([]byte, error) {
	if !iter.Valid() {
		return nil, errInvalidIterator
	}
	return iter.iter.Item().ValueCopy(nil)
}

func (iter *Iterator) Close() {
	iter.iter.Close()
	iter.txn.Discard()
}
