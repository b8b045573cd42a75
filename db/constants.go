package db

const (
	TypeMemoryDB = "memorydb"
	TypeBadgerDB = "badgerdb"
	TypeLevelDB  = "leveldb"
)

var (
	// creation time | tx id -> PendingTx, so iteration follows arrival order
	NamespacePendingTx = []byte("ptx")
	// tx id -> key in NamespacePendingTx
	NamespacePendingTxIndex = []byte("ptxi")
	// inner rollup id -> InnerRollup
	NamespaceInnerRollup = []byte("ir")
	// rollup id -> RollupBatch
	NamespaceRollupBatch = []byte("rb")
	// markers of inner rollups and batches written but not yet settled on chain
	NamespaceUnsettled = []byte("us")
	NamespaceDefiState = []byte("ds")
	NamespaceLastKey   = []byte("lk")
	// node hash -> preimage of Sparse Merkle tree nodes
	NamespaceSMT = []byte("smt")
	EmptyKey     = []byte{}
	Separator    = []byte("|")
)
