package ethchain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/celer-network/go-sequencer/utils"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var processorCode = []byte{0x60, 0x80, 0x60, 0x40}

type fakeBackend struct {
	nonce     uint64
	estimated uint64
	noCode    bool
	sent      []*ethtypes.Transaction
	calls     []ethereum.CallMsg
	blocks    []*big.Int
	output    []byte
	callErr   error
	receipt   *ethtypes.Receipt
}

func (b *fakeBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return b.PendingCodeAt(ctx, contract)
}

func (b *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	if b.noCode || account != processor {
		return nil, nil
	}
	return processorCode, nil
}

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Number: big.NewInt(1)}, nil
}

func (b *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (b *fakeBackend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return nil, nil
}

func (b *fakeBackend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(30), nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return b.estimated, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if b.receipt == nil {
		return nil, ethereum.NotFound
	}
	return b.receipt, nil
}

func (b *fakeBackend) TransactionByHash(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error) {
	for _, tx := range b.sent {
		if tx.Hash() == txHash {
			return tx, false, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func (b *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.calls = append(b.calls, msg)
	b.blocks = append(b.blocks, blockNumber)
	if b.callErr != nil {
		return nil, b.callErr
	}
	return b.output, nil
}

type revertError struct {
	data string
}

func (e *revertError) Error() string          { return "execution reverted" }
func (e *revertError) ErrorData() interface{} { return e.data }

func revertPayload(t *testing.T, reason string) []byte {
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return append(crypto.Keccak256([]byte("Error(string)"))[:4], packed...)
}

var processor = common.HexToAddress("0x00000000000000000000000000000000000000e5")

func newTestClient(t *testing.T, backend *fakeBackend, gasLimit uint64) *Client {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	auth, err := utils.NewTransactor(key, big.NewInt(1337))
	require.NoError(t, err)
	c, err := NewClient(backend, Config{RollupProcessor: processor, ChainID: big.NewInt(1337), GasLimit: gasLimit}, auth, key)
	require.NoError(t, err)
	return c
}

func TestSendRollup(t *testing.T) {
	backend := &fakeBackend{nonce: 4, estimated: 250000}
	c := newTestClient(t, backend, 0)
	proofData := []byte{0x01, 0x02, 0x03}

	txHash, err := c.SendRollup(context.Background(), proofData, big.NewInt(42))
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, txHash, tx.Hash())
	assert.Equal(t, uint64(4), tx.Nonce())
	assert.Equal(t, uint64(250000), tx.Gas())
	assert.Equal(t, int64(42), tx.GasPrice().Int64())
	assert.Equal(t, processor, *tx.To())

	sender, err := ethtypes.Sender(ethtypes.NewEIP155Signer(big.NewInt(1337)), tx)
	require.NoError(t, err)
	assert.Equal(t, c.From(), sender)

	method, err := c.abi.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "processRollup", method.Name)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, proofData, args[0])
	assert.True(t, utils.SigIsValid(c.From(), proofData, args[1].([]byte)))
}

func TestSendRollupFixedGasLimit(t *testing.T) {
	backend := &fakeBackend{estimated: 1}
	c := newTestClient(t, backend, 900000)

	_, err := c.SendRollup(context.Background(), []byte{0xff}, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(900000), backend.sent[0].Gas())
}

func TestSendRollupWithoutContractCode(t *testing.T) {
	backend := &fakeBackend{noCode: true}
	c := newTestClient(t, backend, 0)

	_, err := c.SendRollup(context.Background(), []byte{0x01}, big.NewInt(1))
	assert.ErrorIs(t, err, bind.ErrNoCode)
	assert.Empty(t, backend.sent)
}

func TestNextRollupID(t *testing.T) {
	backend := &fakeBackend{output: common.LeftPadBytes(big.NewInt(12).Bytes(), 32)}
	c := newTestClient(t, backend, 0)

	next, err := c.NextRollupID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12), next)
	require.Len(t, backend.calls, 1)
	assert.Equal(t, processor, *backend.calls[0].To)
	assert.Equal(t, c.abi.Methods["nextRollupId"].ID, backend.calls[0].Data)
}

func TestReceiptNotFoundPassesThrough(t *testing.T) {
	c := newTestClient(t, &fakeBackend{}, 0)
	_, err := c.TransactionReceipt(context.Background(), common.Hash{0x01})
	assert.ErrorIs(t, err, ethereum.NotFound)
}

func TestMissingChainID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	auth, err := utils.NewTransactor(key, big.NewInt(1337))
	require.NoError(t, err)
	_, err = NewClient(&fakeBackend{}, Config{RollupProcessor: processor}, auth, key)
	assert.Error(t, err)
}

func TestTransactorMustMatchKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	auth, err := utils.NewTransactor(other, big.NewInt(1337))
	require.NoError(t, err)
	cfg := Config{RollupProcessor: processor, ChainID: big.NewInt(1337)}

	_, err = NewClient(&fakeBackend{}, cfg, auth, key)
	assert.Error(t, err)
	_, err = NewClient(&fakeBackend{}, cfg, nil, key)
	assert.Error(t, err)
}

func TestRevertReason(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(t, backend, 500000)
	txHash, err := c.SendRollup(context.Background(), []byte{0x01}, big.NewInt(1))
	require.NoError(t, err)
	backend.receipt = &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(5)}
	payload := revertPayload(t, "Rollup id mismatch")

	t.Run("returned output", func(t *testing.T) {
		backend.output, backend.callErr = payload, nil
		reason, err := c.RevertReason(context.Background(), txHash)
		require.NoError(t, err)
		assert.Equal(t, "Rollup id mismatch", reason)

		call := backend.calls[len(backend.calls)-1]
		assert.Equal(t, c.From(), call.From)
		assert.Equal(t, processor, *call.To)
		assert.Equal(t, backend.sent[0].Data(), call.Data)
		assert.Equal(t, int64(5), backend.blocks[len(backend.blocks)-1].Int64())
	})

	t.Run("error data", func(t *testing.T) {
		backend.output, backend.callErr = nil, &revertError{data: hexutil.Encode(payload)}
		reason, err := c.RevertReason(context.Background(), txHash)
		require.NoError(t, err)
		assert.Equal(t, "Rollup id mismatch", reason)
	})

	t.Run("no reason", func(t *testing.T) {
		backend.output, backend.callErr = nil, nil
		_, err := c.RevertReason(context.Background(), txHash)
		assert.ErrorIs(t, err, ErrNoRevertReason)
	})

	t.Run("unknown tx", func(t *testing.T) {
		_, err := c.RevertReason(context.Background(), common.Hash{0x77})
		assert.ErrorIs(t, err, ethereum.NotFound)
	})
}
