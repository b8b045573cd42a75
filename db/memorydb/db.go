package memorydb

import (
	"sync"

	seqdb "github.com/celer-network/go-sequencer/db"
)

// Enforce database and transaction implements interfaces
var _ seqdb.DB = (*DB)(nil)

// DB keeps everything in a map. Used by tests and by the memorydb storage type.
type DB struct {
	lock sync.Mutex
	db   map[string][]byte
}

func NewDB() *DB {
	return &DB{
		db: make(map[string][]byte),
	}
}

func (db *DB) Type() string {
	return seqdb.TypeMemoryDB
}

func (db *DB) Set(namespace []byte, key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	db.db[string(key)] = copyBytes(seqdb.ConvNilToBytes(value))
	return nil
}

func (db *DB) Delete(namespace []byte, key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	delete(db.db, string(key))
	return nil
}

func (db *DB) Get(namespace []byte, key []byte) ([]byte, bool, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	value, exists := db.db[string(key)]
	if !exists {
		return nil, false, nil
	}
	return copyBytes(value), true, nil
}

func (db *DB) Exist(namespace []byte, key []byte) (bool, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	_, ok := db.db[string(key)]
	return ok, nil
}

func (db *DB) Close() error {
	return nil
}

func (db *DB) NewTx() seqdb.Transaction {
	return &Transaction{batch: newWriteBatch(db)}
}

func (db *DB) NewBulk() seqdb.Bulk {
	return &Bulk{batch: newWriteBatch(db)}
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
