package publisher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/celer-network/go-sequencer/log"
	"github.com/celer-network/go-sequencer/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Blockchain is the L1 side of publishing.
type Blockchain interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	SendRollup(ctx context.Context, proofData []byte, gasPrice *big.Int) (common.Hash, error)
	// TransactionReceipt returns ethereum.NotFound while the tx is not mined.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	NextRollupID(ctx context.Context) (uint64, error)
	RevertReason(ctx context.Context, txHash common.Hash) (string, error)
}

// BatchStore records submissions and settles published batches.
type BatchStore interface {
	SetBatchTxHash(rollupID uint64, txHash common.Hash) error
	MarkSettled(rollupID uint64) error
}

type Config struct {
	// Nil means no cap.
	MaxGasPrice         *big.Int
	RetryInterval       time.Duration
	ReceiptPollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		RetryInterval:       10 * time.Second,
		ReceiptPollInterval: 5 * time.Second,
	}
}

// RollupPublisher submits batches to the rollup processor until one lands,
// someone else publishes the same rollup id, or it is interrupted.
type RollupPublisher struct {
	chain      Blockchain
	store      BatchStore
	cfg        Config
	serializer *types.Serializer
	log        *log.Logger

	lock        sync.Mutex
	interruptCh chan struct{}
}

func NewRollupPublisher(chain Blockchain, store BatchStore, cfg Config) (*RollupPublisher, error) {
	serializer, err := types.NewSerializer()
	if err != nil {
		return nil, err
	}
	return &RollupPublisher{
		chain:       chain,
		store:       store,
		cfg:         cfg,
		serializer:  serializer,
		log:         log.NewLogger("publisher"),
		interruptCh: make(chan struct{}),
	}, nil
}

// Interrupt makes the running and every later PublishRollup return false until
// Reset. A tx already sent may still be mined.
func (p *RollupPublisher) Interrupt() {
	p.lock.Lock()
	defer p.lock.Unlock()
	select {
	case <-p.interruptCh:
	default:
		close(p.interruptCh)
	}
}

// Reset re-arms the publisher after an interrupt.
func (p *RollupPublisher) Reset() {
	p.lock.Lock()
	defer p.lock.Unlock()
	select {
	case <-p.interruptCh:
		p.interruptCh = make(chan struct{})
	default:
	}
}

func (p *RollupPublisher) interrupted() <-chan struct{} {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.interruptCh
}

// sleep waits d. It returns false if interrupted first.
func sleep(ctx context.Context, interrupt <-chan struct{}, d time.Duration) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true, nil
	case <-interrupt:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// PublishRollup returns true once the batch is mined successfully. False
// without an error means interrupted or superseded, and the outcome on chain
// is uncertain.
func (p *RollupPublisher) PublishRollup(ctx context.Context, batch *types.RollupBatch) (bool, error) {
	proofData, err := batch.SerializeForSubmission(p.serializer)
	if err != nil {
		return false, fmt.Errorf("serialize rollup %d: %w", batch.RollupID, err)
	}
	interrupt := p.interrupted()
	logger := p.log.With().Uint64("rollupId", batch.RollupID).Logger()

	for attempt := 1; ; attempt++ {
		if isClosed(interrupt) {
			logger.Info().Msg("Publish interrupted")
			return false, nil
		}

		txHash, err := p.send(ctx, proofData)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Dur("retryIn", p.cfg.RetryInterval).Msg("Failed to send rollup")
			if ok, err := sleep(ctx, interrupt, p.cfg.RetryInterval); !ok {
				return false, err
			}
			continue
		}
		logger.Info().Str("txHash", txHash.Hex()).Int("attempt", attempt).Msg("Sent rollup")
		if err := p.store.SetBatchTxHash(batch.RollupID, txHash); err != nil {
			logger.Warn().Err(err).Str("txHash", txHash.Hex()).Msg("Failed to record rollup tx hash")
		}

		receipt, err := p.waitForReceipt(ctx, interrupt, txHash)
		if err != nil {
			if errors.Is(err, errInterrupted) {
				logger.Info().Str("txHash", txHash.Hex()).Msg("Publish interrupted while waiting for receipt")
				return false, nil
			}
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logger.Warn().Err(err).Str("txHash", txHash.Hex()).Msg("Failed to get rollup receipt")
			if ok, err := sleep(ctx, interrupt, p.cfg.RetryInterval); !ok {
				return false, err
			}
			continue
		}

		if receipt.Status == ethtypes.ReceiptStatusSuccessful {
			logger.Info().Str("txHash", txHash.Hex()).Uint64("gasUsed", receipt.GasUsed).Msg("Rollup mined")
			if err := p.store.MarkSettled(batch.RollupID); err != nil {
				logger.Error().Err(err).Msg("Failed to settle published rollup")
			}
			return true, nil
		}

		reason, err := p.chain.RevertReason(ctx, txHash)
		if err != nil {
			reason = "unknown: " + err.Error()
		}
		logger.Warn().Str("txHash", txHash.Hex()).Str("reason", reason).Msg("Rollup tx reverted")
		next, err := p.chain.NextRollupID(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to read next rollup id")
		} else if next > batch.RollupID {
			logger.Warn().Uint64("nextRollupId", next).Msg("Rollup id already published, aborting")
			return false, nil
		}
		if ok, err := sleep(ctx, interrupt, p.cfg.RetryInterval); !ok {
			return false, err
		}
	}
}

func (p *RollupPublisher) send(ctx context.Context, proofData []byte) (common.Hash, error) {
	gasPrice, err := p.chain.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}
	if p.cfg.MaxGasPrice != nil && gasPrice.Cmp(p.cfg.MaxGasPrice) > 0 {
		gasPrice = new(big.Int).Set(p.cfg.MaxGasPrice)
	}
	return p.chain.SendRollup(ctx, proofData, gasPrice)
}

var errInterrupted = errors.New("publisher: interrupted")

func (p *RollupPublisher) waitForReceipt(ctx context.Context, interrupt <-chan struct{}, txHash common.Hash) (*ethtypes.Receipt, error) {
	for {
		receipt, err := p.chain.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		ok, err := sleep(ctx, interrupt, p.cfg.ReceiptPollInterval)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errInterrupted
		}
	}
}
