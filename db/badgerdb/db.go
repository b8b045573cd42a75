package badgerdb

import (
	"context"
	"errors"
	"time"

	seqdb "github.com/celer-network/go-sequencer/db"
	"github.com/celer-network/go-sequencer/log"
	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
)

const (
	badgerDbDiscardRatio   = 0.5 // run gc when 50% of samples can be collected
	badgerDbGcInterval     = 10 * time.Minute
	badgerDbGcSize         = 1 << 20 // 1 MB
	badgerValueLogFileSize = 1<<26 - 1

	slowWriteThreshold = 100 * time.Millisecond
)

var logger = &extendedLog{Logger: log.NewLogger("db")}

// Enforce database and transaction implements interfaces
var _ seqdb.DB = (*DB)(nil)

type DB struct {
	db         *badger.DB
	ctx        context.Context
	cancelFunc context.CancelFunc
	gcDone     chan struct{}
	name       string
}

// NewDB creates a new database or loads the existing one in dir.
func NewDB(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir)

	// keep RAM usage flat; the sequencer writes few, small records
	opts.ValueLogLoadingMode = options.FileIO
	opts.TableLoadingMode = options.FileIO
	opts.ValueThreshold = 1024
	opts.ValueLogFileSize = badgerValueLogFileSize
	opts.Logger = logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	database := &DB{
		db:         db,
		ctx:        ctx,
		cancelFunc: cancelFunc,
		gcDone:     make(chan struct{}),
		name:       dir,
	}
	go database.runBadgerGC()

	return database, nil
}

func (db *DB) runBadgerGC() {
	defer close(db.gcDone)
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	lastGcT := time.Now()
	_, lastDbVlogSize := db.db.Size()
	for {
		select {
		case <-ticker.C:
			lsmSize, vlogSize := db.db.Size()
			// gc when the interval has passed or the value log grows slowly, meaning the db is idle
			if time.Since(lastGcT) <= badgerDbGcInterval && lastDbVlogSize+badgerDbGcSize <= vlogSize {
				continue
			}
			startGcT := time.Now()
			logger.Debug().Str("name", db.name).Int64("lsmSize", lsmSize).Int64("vlogSize", vlogSize).Msg("Start to GC at badger")
			err := db.db.RunValueLogGC(badgerDbDiscardRatio)
			switch {
			case errors.Is(err, badger.ErrNoRewrite):
				logger.Debug().Str("name", db.name).Msg("Nothing to GC at badger")
				lastDbVlogSize = vlogSize
			case err != nil:
				logger.Error().Str("name", db.name).Err(err).Msg("Fail to GC at badger")
				lastDbVlogSize = vlogSize
			default:
				_, lastDbVlogSize = db.db.Size()
				logger.Debug().Str("name", db.name).Int64("vlogSize", lastDbVlogSize).
					Dur("takenTime", time.Since(startGcT)).Msg("Finish to GC at badger")
			}
			lastGcT = time.Now()

		case <-db.ctx.Done():
			return
		}
	}
}

func (db *DB) Type() string {
	return seqdb.TypeBadgerDB
}

func (db *DB) Set(namespace []byte, key []byte, value []byte) error {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))
	value = seqdb.ConvNilToBytes(value)

	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (db *DB) Delete(namespace []byte, key []byte) error {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))

	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (db *DB) Get(namespace []byte, key []byte) ([]byte, bool, error) {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))

	var val []byte
	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (db *DB) Exist(namespace []byte, key []byte) (bool, error) {
	key = seqdb.ConvNilToBytes(seqdb.PrependNamespace(namespace, key))

	err := db.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close stops the gc goroutine and closes badger.
func (db *DB) Close() error {
	db.cancelFunc()
	<-db.gcDone
	return db.db.Close()
}

func (db *DB) NewTx() seqdb.Transaction {
	return &Transaction{
		db:      db,
		tx:      db.db.NewTransaction(true),
		createT: time.Now(),
	}
}

func (db *DB) NewBulk() seqdb.Bulk {
	return &Bulk{
		db:      db,
		bulk:    db.db.NewWriteBatch(),
		createT: time.Now(),
	}
}
