package ethchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/celer-network/go-sequencer/log"
	"github.com/celer-network/go-sequencer/utils"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrNoRevertReason is returned when a replayed tx reverts without a reason
// string, or does not revert at all.
var ErrNoRevertReason = errors.New("ethchain: no revert reason")

const rollupProcessorABI = `[
	{"type":"function","name":"processRollup","stateMutability":"nonpayable",
	 "inputs":[{"name":"_encodedProofData","type":"bytes"},{"name":"_signatures","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"nextRollupId","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// Backend is the contract backend plus the receipt and tx lookups the client
// needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error)
}

type Config struct {
	Endpoint        string
	RollupProcessor common.Address
	ChainID         *big.Int
	// Zero estimates the gas of every submission.
	GasLimit uint64
}

// Client talks to the rollup processor contract.
type Client struct {
	backend   Backend
	contract  *bind.BoundContract
	abi       abi.ABI
	processor common.Address
	gasLimit  uint64
	auth      *bind.TransactOpts
	key       *ecdsa.PrivateKey
	log       *log.Logger
}

// Dial connects to cfg.Endpoint.
func Dial(ctx context.Context, cfg Config, auth *bind.TransactOpts, key *ecdsa.PrivateKey) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
	}
	return NewClient(backend, cfg, auth, key)
}

// NewClient sends txs with auth. key signs the proof data and must be the key
// behind auth.
func NewClient(backend Backend, cfg Config, auth *bind.TransactOpts, key *ecdsa.PrivateKey) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(rollupProcessorABI))
	if err != nil {
		return nil, err
	}
	if cfg.ChainID == nil {
		return nil, fmt.Errorf("ethchain: missing chain id")
	}
	if auth == nil || key == nil || auth.From != crypto.PubkeyToAddress(key.PublicKey) {
		return nil, fmt.Errorf("ethchain: transactor does not match signing key")
	}
	return &Client{
		backend:   backend,
		contract:  bind.NewBoundContract(cfg.RollupProcessor, parsed, backend, backend, backend),
		abi:       parsed,
		processor: cfg.RollupProcessor,
		gasLimit:  cfg.GasLimit,
		auth:      auth,
		key:       key,
		log:       log.NewLogger("ethchain"),
	}, nil
}

func (c *Client) From() common.Address {
	return c.auth.From
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.backend.SuggestGasPrice(ctx)
}

// SendRollup signs and submits processRollup(proofData, signature) at
// gasPrice. The signature is the sender's signature over the proof data.
func (c *Client) SendRollup(ctx context.Context, proofData []byte, gasPrice *big.Int) (common.Hash, error) {
	signature, err := utils.SignData(c.key, proofData)
	if err != nil {
		return common.Hash{}, err
	}
	opts := *c.auth
	opts.Context = ctx
	opts.GasPrice = gasPrice
	opts.GasLimit = c.gasLimit
	tx, err := c.contract.Transact(&opts, "processRollup", proofData, signature)
	if err != nil {
		return common.Hash{}, fmt.Errorf("processRollup: %w", err)
	}
	c.log.Debug().Str("txHash", tx.Hash().Hex()).Uint64("nonce", tx.Nonce()).Uint64("gas", tx.Gas()).
		Str("gasPrice", tx.GasPrice().String()).Int("proofData", len(proofData)).Msg("Submitted processRollup")
	return tx.Hash(), nil
}

// TransactionReceipt returns ethereum.NotFound while the tx is pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return c.backend.TransactionReceipt(ctx, txHash)
}

func (c *Client) NextRollupID(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx, From: c.auth.From}, &out, "nextRollupId"); err != nil {
		return 0, err
	}
	next := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return next.Uint64(), nil
}

// RevertReason replays a mined tx as a call at its block and decodes the
// Error(string) payload it reverts with.
func (c *Client) RevertReason(ctx context.Context, txHash common.Hash) (string, error) {
	tx, pending, err := c.backend.TransactionByHash(ctx, txHash)
	if err != nil {
		return "", err
	}
	if pending {
		return "", ethereum.NotFound
	}
	receipt, err := c.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		return "", err
	}
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", err
	}
	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	output, err := c.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if err != nil {
		// Nodes return the revert payload as the error data.
		var dataErr rpc.DataError
		if !errors.As(err, &dataErr) {
			return "", err
		}
		data, ok := dataErr.ErrorData().(string)
		if !ok {
			return "", err
		}
		output = common.FromHex(data)
	}
	reason, err := abi.UnpackRevert(output)
	if err != nil {
		return "", ErrNoRevertReason
	}
	return reason, nil
}
