package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type TxType int

const (
	TxTypeDeposit TxType = iota
	TxTypeTransfer
	TxTypeWithdrawToWallet
	TxTypeWithdrawHighGas
	TxTypeAccount
	TxTypeDefiDeposit
	TxTypeDefiClaim
)

// NumTxTypes is the number of distinct tx types, used to size per-type gas tables.
const NumTxTypes = int(TxTypeDefiClaim) + 1

var txTypeNames = [NumTxTypes]string{
	"DEPOSIT",
	"TRANSFER",
	"WITHDRAW_TO_WALLET",
	"WITHDRAW_HIGH_GAS",
	"ACCOUNT",
	"DEFI_DEPOSIT",
	"DEFI_CLAIM",
}

func (t TxType) String() string {
	if t < 0 || int(t) >= NumTxTypes {
		return "UNKNOWN"
	}
	return txTypeNames[t]
}

// TxTypeFromString is the inverse of String. It is used when reading gas tables from config.
func TxTypeFromString(s string) (TxType, bool) {
	for i, name := range txTypeNames {
		if name == s {
			return TxType(i), true
		}
	}
	return 0, false
}

// IsPayment reports whether the tx moves value and pays its fee in a fee asset.
func (t TxType) IsPayment() bool {
	switch t {
	case TxTypeDeposit, TxTypeTransfer, TxTypeWithdrawToWallet, TxTypeWithdrawHighGas:
		return true
	}
	return false
}

// PendingTx is a validated tx sitting in the pending pool. The batching logic
// only ever reads it.
type PendingTx struct {
	ID         common.Hash
	TxType     TxType
	FeeAssetID uint32
	FeeValue   *big.Int
	// Set only for TxTypeDefiDeposit.
	BridgeCallData *BridgeCallData
	// Output note this tx spends from another pending tx. Zero if not chained.
	BackwardLink    common.Hash
	NoteCommitments [2]common.Hash
	CreatedAt       time.Time
	// SecondClass txs pay a reduced fee and only ever fill slack capacity.
	SecondClass bool
	ProofData   []byte
}

// IsChained reports whether the tx spends an output of another tx.
func (tx *PendingTx) IsChained() bool {
	return tx.BackwardLink != (common.Hash{})
}

type Fee struct {
	AssetID uint32
	Value   *big.Int
}

// RollupTx is a pending tx accepted into the working set of a coordinator run.
type RollupTx struct {
	Tx             *PendingTx
	Fee            Fee
	BridgeCallData *BridgeCallData
}

func NewRollupTx(tx *PendingTx) *RollupTx {
	value := tx.FeeValue
	if value == nil {
		value = new(big.Int)
	}
	return &RollupTx{
		Tx:             tx,
		Fee:            Fee{AssetID: tx.FeeAssetID, Value: value},
		BridgeCallData: tx.BridgeCallData,
	}
}
