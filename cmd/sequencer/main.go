package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/celer-network/go-sequencer/bridge"
	"github.com/celer-network/go-sequencer/builder"
	"github.com/celer-network/go-sequencer/config"
	"github.com/celer-network/go-sequencer/coordinator"
	"github.com/celer-network/go-sequencer/ethchain"
	"github.com/celer-network/go-sequencer/fees"
	"github.com/celer-network/go-sequencer/log"
	"github.com/celer-network/go-sequencer/pipeline"
	"github.com/celer-network/go-sequencer/publisher"
	"github.com/celer-network/go-sequencer/rollupdb"
	"github.com/celer-network/go-sequencer/telemetry"
	"github.com/celer-network/go-sequencer/utils"
	"github.com/spf13/cobra"
)

const (
	flagConfig = "config"
	flagFlush  = "flush"
)

var logger = log.NewLogger("sequencer")

func main() {
	rootCmd := &cobra.Command{
		Use:          "sequencer",
		Short:        "rollup sequencer: batches pending txs and publishes rollups",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flush, err := cmd.Flags().GetBool(flagFlush)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, flush)
		},
	}
	rootCmd.PersistentFlags().String(flagConfig, "./config", "config directory")
	rootCmd.Flags().Bool(flagFlush, false, "publish whatever is pending on the first run")
	rootCmd.AddCommand(
		seedCommand(),
		revertReasonCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal().Err(err).Send()
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

func dialChain(ctx context.Context, cfg *config.Config) (*ethchain.Client, error) {
	auth, key, err := utils.GetAuthFromKeystore(cfg.Chain.Keystore, cfg.Chain.KeystorePassword, cfg.Chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("load keystore: %w", err)
	}
	return ethchain.Dial(ctx, cfg.Chain.Config, auth, key)
}

func run(ctx context.Context, cfg *config.Config, flush bool) error {
	tp, err := telemetry.Setup(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	database, err := rollupdb.OpenDB(cfg.Storage.DBType, cfg.Storage.DBDir)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	store := rollupdb.NewStore(database)
	defer store.Close()

	bridges, err := bridge.NewResolverFromViper(cfg.Viper)
	if err != nil {
		return err
	}
	feeResolver, err := fees.NewResolverFromViper(cfg.Viper)
	if err != nil {
		return err
	}

	chain, err := dialChain(ctx, cfg)
	if err != nil {
		return err
	}
	pub, err := publisher.NewRollupPublisher(chain, store, cfg.Publisher)
	if err != nil {
		return err
	}

	p := pipeline.NewPipelineCoordinator(pipeline.Deps{
		TxPool:     store,
		Store:      store,
		Publisher:  pub,
		Bridges:    bridges,
		Fees:       feeResolver,
		Creator:    builder.NewCreator(store, cfg.Coordinator.NumInnerRollupTxs),
		Aggregator: builder.NewAggregator(store, chain, cfg.Coordinator.NumOuterRollupProofs),
		DefiState:  store,
		Clock:      coordinator.SystemClock,
	}, pipeline.Config{
		Coordinator:  cfg.Coordinator,
		PollInterval: cfg.PollInterval,
	})

	logger.Info().Str("from", chain.From().Hex()).Str("rollupProcessor", cfg.Chain.RollupProcessor.Hex()).
		Int("totalSlots", cfg.Coordinator.TotalSlots()).Msg("Sequencer started")
	if flush {
		p.FlushTxs()
	}

	// Each pipeline run ends after one publish. Start the next one right away.
	for {
		if err := p.Start(ctx); err != nil {
			return err
		}
		select {
		case <-p.Done():
			if ctx.Err() != nil {
				return nil
			}
		case <-ctx.Done():
			if err := p.Stop(); err != nil && !errors.Is(err, pipeline.ErrNotRunning) {
				return err
			}
			logger.Info().Msg("Sequencer stopped")
			return nil
		}
	}
}
