package main

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/celer-network/go-sequencer/rollupdb"
	"github.com/celer-network/go-sequencer/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const (
	flagTxType = "type"
	flagCount  = "count"
	flagFee    = "fee"
	flagAsset  = "asset"
	flagBridge = "bridge"
	flagTx     = "tx"
)

// demoTxs builds count pending txs of one type, spread one second apart.
func demoTxs(count int, txTypeName string, assetID uint32, fee string, bridge string, now time.Time) ([]*types.PendingTx, error) {
	txType, ok := types.TxTypeFromString(strings.ToUpper(txTypeName))
	if !ok {
		return nil, fmt.Errorf("unknown tx type %q", txTypeName)
	}
	feeValue, ok := new(big.Int).SetString(fee, 10)
	if !ok || feeValue.Sign() < 0 {
		return nil, fmt.Errorf("invalid fee %q", fee)
	}
	var bc *types.BridgeCallData
	if txType == types.TxTypeDefiDeposit {
		if bridge == "" {
			return nil, errors.New("defi deposits need --bridge")
		}
		parsed, err := types.BridgeCallDataFromHex(bridge)
		if err != nil {
			return nil, err
		}
		bc = &parsed
	}

	txs := make([]*types.PendingTx, count)
	for i := range txs {
		seed := uuid.New()
		txs[i] = &types.PendingTx{
			ID:             crypto.Keccak256Hash(seed[:]),
			TxType:         txType,
			FeeAssetID:     assetID,
			FeeValue:       new(big.Int).Set(feeValue),
			BridgeCallData: bc,
			NoteCommitments: [2]common.Hash{
				crypto.Keccak256Hash(seed[:], []byte{0}),
				crypto.Keccak256Hash(seed[:], []byte{1}),
			},
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
	}
	return txs, nil
}

func seedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "write demo pending txs into the store, while the sequencer is stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			txType, _ := flags.GetString(flagTxType)
			count, _ := flags.GetInt(flagCount)
			fee, _ := flags.GetString(flagFee)
			assetID, _ := flags.GetUint32(flagAsset)
			bridge, _ := flags.GetString(flagBridge)

			txs, err := demoTxs(count, txType, assetID, fee, bridge, time.Now())
			if err != nil {
				return err
			}
			database, err := rollupdb.OpenDB(cfg.Storage.DBType, cfg.Storage.DBDir)
			if err != nil {
				return err
			}
			store := rollupdb.NewStore(database)
			defer store.Close()
			for _, tx := range txs {
				if err := store.PutPendingTx(tx); err != nil {
					return err
				}
				logger.Info().Str("id", tx.ID.Hex()).Str("type", tx.TxType.String()).Msg("Added pending tx")
			}
			return nil
		},
	}
	cmd.Flags().String(flagTxType, "TRANSFER", "tx type, e.g. TRANSFER or DEFI_DEPOSIT")
	cmd.Flags().Int(flagCount, 1, "number of txs")
	cmd.Flags().String(flagFee, "0", "fee per tx, in the fee asset's base unit")
	cmd.Flags().Uint32(flagAsset, 0, "fee asset id")
	cmd.Flags().String(flagBridge, "", "bridge call data hex, for DEFI_DEPOSIT")
	return cmd
}

func revertReasonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revert-reason",
		Short: "print why a mined rollup tx reverted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			txHash, _ := cmd.Flags().GetString(flagTx)
			if txHash == "" {
				return errors.New("missing --tx")
			}
			chain, err := dialChain(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			reason, err := chain.RevertReason(cmd.Context(), common.HexToHash(txHash))
			if err != nil {
				return err
			}
			logger.Info().Str("tx", txHash).Str("reason", reason).Send()
			return nil
		},
	}
	cmd.Flags().String(flagTx, "", "transaction hash")
	return cmd
}
