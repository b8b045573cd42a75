package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/celer-network/go-sequencer/coordinator"
	"github.com/celer-network/go-sequencer/log"
	"github.com/celer-network/go-sequencer/types"
	"github.com/google/uuid"
)

var (
	ErrAlreadyRunning = errors.New("pipeline: already running")
	ErrNotRunning     = errors.New("pipeline: not running")
)

const DefaultPollInterval = 10 * time.Second

type TxPool interface {
	GetPendingTxs(ctx context.Context) ([]*types.PendingTx, error)
}

// RollupStore drops batches and inner rollups left over by an earlier run.
type RollupStore interface {
	DeleteUnsettledRollups() error
}

// Publisher is a coordinator publisher that can be re-armed after Interrupt.
type Publisher interface {
	coordinator.RollupPublisher
	Reset()
}

type Config struct {
	Coordinator  coordinator.Config
	PollInterval time.Duration
}

type Deps struct {
	TxPool     TxPool
	Store      RollupStore
	Publisher  Publisher
	Bridges    coordinator.BridgeResolver
	Fees       coordinator.FeeResolver
	Creator    coordinator.RollupCreator
	Aggregator coordinator.RollupAggregator
	DefiState  coordinator.DefiStateReader
	Clock      coordinator.Clock
	Log        *log.Logger
}

// PipelineCoordinator runs rollup coordinators back to back until one of them
// publishes.
type PipelineCoordinator struct {
	cfg  Config
	deps Deps
	log  *log.Logger

	lock    sync.Mutex
	running bool
	flush   bool
	current *coordinator.RollupCoordinator
	cancel  context.CancelFunc
	stopCh  chan struct{}
	done    chan struct{}
}

func NewPipelineCoordinator(deps Deps, cfg Config) *PipelineCoordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if deps.Clock == nil {
		deps.Clock = coordinator.SystemClock
	}
	logger := deps.Log
	if logger == nil {
		logger = log.NewLogger("pipeline")
	}
	done := make(chan struct{})
	close(done)
	return &PipelineCoordinator{
		cfg:  cfg,
		deps: deps,
		log:  logger,
		done: done,
	}
}

// Start launches the loop in the background. Unsettled rollups of earlier runs
// are deleted and the publisher is re-armed first.
func (p *PipelineCoordinator) Start(ctx context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}
	if err := p.deps.Store.DeleteUnsettledRollups(); err != nil {
		return fmt.Errorf("pipeline: delete unsettled rollups: %w", err)
	}
	p.deps.Publisher.Reset()

	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(ctx, cancel, p.stopCh, p.done)
	p.log.Info().Dur("pollInterval", p.cfg.PollInterval).Msg("Pipeline started")
	return nil
}

// Stop interrupts the live coordinator and the publisher, then waits for the
// loop to exit. No iteration runs once Stop returns.
func (p *PipelineCoordinator) Stop() error {
	p.lock.Lock()
	if !p.running {
		p.lock.Unlock()
		return ErrNotRunning
	}
	p.running = false
	close(p.stopCh)
	if p.current != nil {
		if err := p.current.Interrupt(); err != nil {
			p.log.Debug().Err(err).Msg("Coordinator not interruptible")
		}
	}
	p.deps.Publisher.Interrupt()
	p.cancel()
	done := p.done
	p.lock.Unlock()

	<-done
	p.log.Info().Msg("Pipeline stopped")
	return nil
}

// FlushTxs makes the next iteration publish whatever it selects. An iteration
// in progress is not affected.
func (p *PipelineCoordinator) FlushTxs() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.flush = true
}

// Done is closed when the loop exits, either on its own or through Stop.
func (p *PipelineCoordinator) Done() <-chan struct{} {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.done
}

func (p *PipelineCoordinator) Running() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.running
}

func (p *PipelineCoordinator) loop(ctx context.Context, cancel context.CancelFunc, stopCh <-chan struct{}, done chan<- struct{}) {
	defer func() {
		cancel()
		p.lock.Lock()
		p.running = false
		p.current = nil
		p.lock.Unlock()
		close(done)
	}()

	var carried []*types.InnerRollup
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		exit, built := p.iterate(ctx, stopCh, carried)
		if exit {
			return
		}
		if len(built) > 0 {
			carried = built
		}
		if !sleep(ctx, stopCh, p.cfg.PollInterval) {
			return
		}
	}
}

// iterate runs one coordinator. It returns whether the loop is finished and
// the inner rollups the coordinator built.
func (p *PipelineCoordinator) iterate(ctx context.Context, stopCh <-chan struct{}, carried []*types.InnerRollup) (bool, []*types.InnerRollup) {
	logger := p.log.WithField("run", uuid.New().String())

	txs, err := p.deps.TxPool.GetPendingTxs(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get pending txs")
		return false, nil
	}

	rc := coordinator.NewRollupCoordinator(p.cfg.Coordinator, coordinator.Deps{
		Bridges:      p.deps.Bridges,
		Fees:         p.deps.Fees,
		Creator:      p.deps.Creator,
		Aggregator:   p.deps.Aggregator,
		DefiState:    p.deps.DefiState,
		Publisher:    p.deps.Publisher,
		Clock:        p.deps.Clock,
		InnerRollups: carried,
		Log:          logger,
	})

	p.lock.Lock()
	select {
	case <-stopCh:
		p.lock.Unlock()
		return true, nil
	default:
	}
	p.current = rc
	flush := p.flush
	p.lock.Unlock()

	profile, err := rc.ProcessPendingTxs(ctx, txs, flush)

	p.lock.Lock()
	p.current = nil
	p.lock.Unlock()

	select {
	case <-stopCh:
		return true, nil
	default:
	}
	if err != nil {
		logger.Error().Err(err).Int("pendingTxs", len(txs)).Msg("Rollup coordinator failed")
		return false, rc.InnerRollups()
	}
	if profile.Published {
		p.clearFlush()
		logger.Info().Int("totalTxs", profile.TotalTxs).Int64("gasBalance", profile.GasBalance).Msg("Pipeline published rollup")
		return true, nil
	}
	if flush && profile.TotalTxs == 0 {
		p.clearFlush()
		logger.Info().Msg("Flushed with no txs")
		return true, nil
	}
	logger.Debug().Int("pendingTxs", len(txs)).Int("totalTxs", profile.TotalTxs).Str("state", rc.State().String()).
		Msg("No rollup published")
	return false, rc.InnerRollups()
}

func (p *PipelineCoordinator) clearFlush() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.flush = false
}

// sleep returns false if the wait was cut short by a stop or ctx.
func sleep(ctx context.Context, stopCh <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
