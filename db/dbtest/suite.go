// Package dbtest holds the behaviour every db.DB backend must share.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/celer-network/go-sequencer/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNamespace = []byte("test")

// RunDBTests runs the shared backend tests against databases built by newDB.
func RunDBTests(t *testing.T, newDB func(t *testing.T) db.DB) {
	t.Run("SetGetDelete", func(t *testing.T) { testSetGetDelete(t, newDB(t)) })
	t.Run("NamespacesAreDisjoint", func(t *testing.T) { testNamespaces(t, newDB(t)) })
	t.Run("Transaction", func(t *testing.T) { testTransaction(t, newDB(t)) })
	t.Run("Bulk", func(t *testing.T) { testBulk(t, newDB(t)) })
	t.Run("Iterator", func(t *testing.T) { testIterator(t, newDB(t)) })
	t.Run("ReverseIterator", func(t *testing.T) { testReverseIterator(t, newDB(t)) })
}

func testSetGetDelete(t *testing.T, database db.DB) {
	defer database.Close()

	_, ok, err := database.Get(testNamespace, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, database.Set(testNamespace, []byte("k"), []byte("v")))
	value, ok, err := database.Get(testNamespace, []byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	exist, err := database.Exist(testNamespace, []byte("k"))
	require.NoError(t, err)
	assert.True(t, exist)

	require.NoError(t, database.Delete(testNamespace, []byte("k")))
	exist, err = database.Exist(testNamespace, []byte("k"))
	require.NoError(t, err)
	assert.False(t, exist)
}

func testNamespaces(t *testing.T, database db.DB) {
	defer database.Close()

	require.NoError(t, database.Set(db.NamespacePendingTx, []byte("k"), []byte("tx")))
	require.NoError(t, database.Set(db.NamespaceRollupBatch, []byte("k"), []byte("batch")))

	value, _, err := database.Get(db.NamespacePendingTx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("tx"), value)
	value, _, err = database.Get(db.NamespaceRollupBatch, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("batch"), value)
}

func testTransaction(t *testing.T, database db.DB) {
	defer database.Close()

	require.NoError(t, database.Set(testNamespace, []byte("old"), []byte("1")))

	tx := database.NewTx()
	require.NoError(t, tx.Set(testNamespace, []byte("a"), []byte("1")))
	require.NoError(t, tx.Delete(testNamespace, []byte("old")))
	exist, err := database.Exist(testNamespace, []byte("a"))
	require.NoError(t, err)
	assert.False(t, exist, "writes are invisible before commit")
	require.NoError(t, tx.Commit())

	exist, err = database.Exist(testNamespace, []byte("a"))
	require.NoError(t, err)
	assert.True(t, exist)
	exist, err = database.Exist(testNamespace, []byte("old"))
	require.NoError(t, err)
	assert.False(t, exist)

	discarded := database.NewTx()
	require.NoError(t, discarded.Set(testNamespace, []byte("b"), []byte("1")))
	discarded.Discard()
	exist, err = database.Exist(testNamespace, []byte("b"))
	require.NoError(t, err)
	assert.False(t, exist)
}

func testBulk(t *testing.T, database db.DB) {
	defer database.Close()

	bulk := database.NewBulk()
	for i := 0; i < 100; i++ {
		require.NoError(t, bulk.Set(testNamespace, []byte(fmt.Sprintf("k%03d", i)), []byte{byte(i)}))
	}
	require.NoError(t, bulk.Flush())

	value, ok, err := database.Get(testNamespace, []byte("k042"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{42}, value)
}

func fill(t *testing.T, database db.DB) {
	for _, k := range []string{"c", "a", "b", "d"} {
		require.NoError(t, database.Set(testNamespace, []byte(k), []byte("v"+k)))
	}
	require.NoError(t, database.Set([]byte("other"), []byte("z"), []byte("z")))
}

func collect(t *testing.T, iter db.Iterator) (keys []string, values []string) {
	defer iter.Close()
	for ; iter.Valid(); require.NoError(t, iter.Next()) {
		key, err := iter.Key()
		require.NoError(t, err)
		value, err := iter.Value()
		require.NoError(t, err)
		keys = append(keys, string(db.TrimNamespace(testNamespace, key)))
		values = append(values, string(value))
	}
	assert.Error(t, iter.Next())
	return keys, values
}

func testIterator(t *testing.T, database db.DB) {
	defer database.Close()
	fill(t, database)

	keys, values := collect(t, database.Iterator(db.NamespaceRange(testNamespace)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys)
	assert.Equal(t, []string{"va", "vb", "vc", "vd"}, values)

	keys, _ = collect(t, database.Iterator(
		db.PrependNamespace(testNamespace, []byte("b")),
		db.PrependNamespace(testNamespace, []byte("d")),
	))
	assert.Equal(t, []string{"b", "c"}, keys)
}

func testReverseIterator(t *testing.T, database db.DB) {
	defer database.Close()
	fill(t, database)

	keys, _ := collect(t, database.Iterator(
		db.PrependNamespace(testNamespace, []byte("c")),
		db.PrependNamespace(testNamespace, []byte("a")),
	))
	assert.Equal(t, []string{"c", "b"}, keys)
}
