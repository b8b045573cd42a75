package memorydb

import (
	"testing"

	seqdb "github.com/celer-network/go-sequencer/db"
	"github.com/celer-network/go-sequencer/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDB(t *testing.T) {
	dbtest.RunDBTests(t, func(t *testing.T) seqdb.DB {
		return NewDB()
	})
}

func TestCommitTwice(t *testing.T) {
	database := NewDB()
	tx := database.NewTx()
	require.NoError(t, tx.Set(nil, []byte("k"), []byte("v")))
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), errDoubleCommit)

	discarded := database.NewTx()
	discarded.Discard()
	assert.ErrorIs(t, discarded.Commit(), errCommitAfterDiscard)
}

func TestValueIsCopied(t *testing.T) {
	database := NewDB()
	value := []byte("abc")
	require.NoError(t, database.Set(nil, []byte("k"), value))
	value[0] = 'x'

	got, _, err := database.Get(nil, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}
