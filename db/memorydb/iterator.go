package memorydb

import (
	"bytes"
	"errors"
	"sort"

	seqdb "github.com/celer-network/go-sequencer/db"
)

var errInvalidIterator = errors.New("memorydb: invalid iterator")

// Iterator walks a snapshot of the keys taken when it was created.
type Iterator struct {
	keys   []string
	cursor int
	closed bool
	db     *DB
}

func isKeyInRange(key []byte, start []byte, end []byte, reverse bool) bool {
	if reverse {
		return bytes.Compare(key, start) <= 0 && bytes.Compare(end, key) < 0
	}
	if bytes.Compare(key, start) < 0 {
		return false
	}
	return end == nil || bytes.Compare(key, end) < 0
}

func (db *DB) Iterator(start []byte, end []byte) seqdb.Iterator {
	db.lock.Lock()
	defer db.lock.Unlock()

	reverse := seqdb.IsReverse(start, end)

	var keys sort.StringSlice
	for key := range db.db {
		if isKeyInRange([]byte(key), start, end, reverse) {
			keys = append(keys, key)
		}
	}
	if reverse {
		sort.Sort(sort.Reverse(keys))
	} else {
		sort.Strings(keys)
	}

	return &Iterator{
		keys: keys,
		db:   db,
	}
}

func (iter *Iterator) Next() error {
	if !iter.Valid() {
		return errInvalidIterator
	}
	iter.cursor++
	return nil
}

func (iter *Iterator) Valid() bool {
	return !iter.closed && iter.cursor < len(iter.keys)
}

func (iter *Iterator) Key() ([]byte, error) {
	if !iter.Valid() {
		return nil, errInvalidIterator
	}
	return []byte(iter.keys[iter.cursor]), nil
}

// Value reads the current value; a key deleted after the snapshot yields nil.
func (iter *Iterator) Value() ([]byte, error) {
	if !iter.Valid() {
		return nil, errInvalidIterator
	}
	value, _, err := iter.db.Get(nil, []byte(iter.keys[iter.cursor]))
	return value, err
}

func (iter *Iterator) Close() {
	iter.closed = true
}
