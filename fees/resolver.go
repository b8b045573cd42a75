// Package fees prices txs in L1 gas from configured gas tables.
package fees

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/celer-network/go-sequencer/types"
	"github.com/spf13/viper"
)

// Asset is one fee asset. GasPriceInAsset is the asset amount that buys one
// unit of L1 gas.
type Asset struct {
	ID              uint32           `mapstructure:"id" yaml:"id"`
	GasPriceInAsset string           `mapstructure:"gasPriceInAsset" yaml:"gasPriceInAsset"`
	FeePaying       bool             `mapstructure:"feePaying" yaml:"feePaying"`
	ExtraGas        map[string]int64 `mapstructure:"extraGas" yaml:"extraGas,omitempty"`
}

type Config struct {
	BaseVerificationGas int64            `mapstructure:"baseVerificationGas" yaml:"baseVerificationGas"`
	MaxUnadjustedGas    int64            `mapstructure:"maxUnadjustedGas" yaml:"maxUnadjustedGas"`
	MaxTxCallData       int64            `mapstructure:"maxTxCallData" yaml:"maxTxCallData"`
	TxGas               map[string]int64 `mapstructure:"txGas" yaml:"txGas"`
	TxCallData          map[string]int64 `mapstructure:"txCallData" yaml:"txCallData"`
	Assets              []Asset          `mapstructure:"assets" yaml:"assets"`
}

type asset struct {
	feePaying bool
	gasPrice  *big.Int
	extraGas  [types.NumTxTypes]int64
}

// Resolver implements coordinator.FeeResolver.
type Resolver struct {
	baseGas     int64
	maxGas      int64
	maxCallData int64
	txGas       [types.NumTxTypes]int64
	txCallData  [types.NumTxTypes]int64
	assets      map[uint32]*asset
}

func parseTxTable(table map[string]int64, out *[types.NumTxTypes]int64) error {
	for name, value := range table {
		txType, ok := types.TxTypeFromString(strings.ToUpper(name))
		if !ok {
			return fmt.Errorf("unknown tx type %q", name)
		}
		if value < 0 {
			return fmt.Errorf("negative value %d for %s", value, txType)
		}
		out[txType] = value
	}
	return nil
}

func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.BaseVerificationGas < 0 || cfg.MaxUnadjustedGas <= 0 || cfg.MaxTxCallData <= 0 {
		return nil, fmt.Errorf("fees: invalid limits base=%d maxGas=%d maxCallData=%d",
			cfg.BaseVerificationGas, cfg.MaxUnadjustedGas, cfg.MaxTxCallData)
	}
	r := &Resolver{
		baseGas:     cfg.BaseVerificationGas,
		maxGas:      cfg.MaxUnadjustedGas,
		maxCallData: cfg.MaxTxCallData,
		assets:      make(map[uint32]*asset, len(cfg.Assets)),
	}
	if err := parseTxTable(cfg.TxGas, &r.txGas); err != nil {
		return nil, fmt.Errorf("fees: txGas: %w", err)
	}
	if err := parseTxTable(cfg.TxCallData, &r.txCallData); err != nil {
		return nil, fmt.Errorf("fees: txCallData: %w", err)
	}
	for _, a := range cfg.Assets {
		if _, dup := r.assets[a.ID]; dup {
			return nil, fmt.Errorf("fees: duplicate asset %d", a.ID)
		}
		parsed := &asset{feePaying: a.FeePaying}
		if a.FeePaying {
			price, ok := new(big.Int).SetString(a.GasPriceInAsset, 10)
			if !ok || price.Sign() <= 0 {
				return nil, fmt.Errorf("fees: asset %d: invalid gasPriceInAsset %q", a.ID, a.GasPriceInAsset)
			}
			parsed.gasPrice = price
		}
		if err := parseTxTable(a.ExtraGas, &parsed.extraGas); err != nil {
			return nil, fmt.Errorf("fees: asset %d extraGas: %w", a.ID, err)
		}
		r.assets[a.ID] = parsed
	}
	return r, nil
}

// NewResolverFromViper reads the fees section.
func NewResolverFromViper(v *viper.Viper) (*Resolver, error) {
	var cfg Config
	if err := v.UnmarshalKey("fees", &cfg); err != nil {
		return nil, fmt.Errorf("read fees: %w", err)
	}
	return NewResolver(cfg)
}

func (r *Resolver) IsFeePayingAsset(assetID uint32) bool {
	a, ok := r.assets[assetID]
	return ok && a.feePaying
}

// GetUnadjustedTxGas is the L1 gas of a tx including its slot of the base
// verification gas.
func (r *Resolver) GetUnadjustedTxGas(assetID uint32, txType types.TxType) int64 {
	if txType < 0 || int(txType) >= types.NumTxTypes {
		return r.baseGas
	}
	gas := r.baseGas + r.txGas[txType]
	if a, ok := r.assets[assetID]; ok {
		gas += a.extraGas[txType]
	}
	return gas
}

func (r *Resolver) GetUnadjustedBaseVerificationGas() int64 {
	return r.baseGas
}

func (r *Resolver) GetTxCallData(txType types.TxType) int64 {
	if txType < 0 || int(txType) >= types.NumTxTypes {
		return 0
	}
	return r.txCallData[txType]
}

func (r *Resolver) GetMaxUnadjustedGas() int64 {
	return r.maxGas
}

func (r *Resolver) GetMaxTxCallData() int64 {
	return r.maxCallData
}

// GetGasPaidForByFee converts a fee into the gas it buys, rounding down.
func (r *Resolver) GetGasPaidForByFee(assetID uint32, fee *big.Int) int64 {
	a, ok := r.assets[assetID]
	if !ok || !a.feePaying || fee == nil || fee.Sign() <= 0 {
		return 0
	}
	gas := new(big.Int).Quo(fee, a.gasPrice)
	if !gas.IsInt64() {
		return math.MaxInt64
	}
	return gas.Int64()
}
