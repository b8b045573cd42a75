package rollupdb

import (
	"fmt"

	"github.com/celer-network/go-sequencer/db"
	"github.com/celer-network/go-sequencer/db/badgerdb"
	"github.com/celer-network/go-sequencer/db/leveldb"
	"github.com/celer-network/go-sequencer/db/memorydb"
)

// OpenDB opens the backend named by dbType in dir.
func OpenDB(dbType string, dir string) (db.DB, error) {
	switch dbType {
	case db.TypeMemoryDB:
		return memorydb.NewDB(), nil
	case db.TypeBadgerDB, "":
		return badgerdb.NewDB(dir)
	case db.TypeLevelDB:
		return leveldb.NewDB(dir)
	default:
		return nil, fmt.Errorf("rollupdb: unknown db type %q", dbType)
	}
}
