// Package bridge resolves the batching economics of DeFi bridges from config.
package bridge

import (
	"fmt"

	"github.com/celer-network/go-sequencer/coordinator"
	"github.com/celer-network/go-sequencer/log"
	"github.com/celer-network/go-sequencer/types"
	"github.com/spf13/viper"
)

const (
	keyBridges        = "bridges"
	keyDefaultNumTxs  = "bridgeDefaults.numTxs"
	keyDefaultGas     = "bridgeDefaults.gas"
	defaultBridgeGas  = 300000
	defaultBridgeSize = 10
)

// Entry is one bridge in the bridges config. A bridge is named either by its
// encoded call data or by its fields.
type Entry struct {
	BridgeCallData  string   `mapstructure:"bridgeCallData" yaml:"bridgeCallData,omitempty"`
	AddressID       uint32   `mapstructure:"addressId" yaml:"addressId,omitempty"`
	InputAssetIDA   uint32   `mapstructure:"inputAssetIdA" yaml:"inputAssetIdA,omitempty"`
	InputAssetIDB   uint32   `mapstructure:"inputAssetIdB" yaml:"inputAssetIdB,omitempty"`
	OutputAssetIDA  uint32   `mapstructure:"outputAssetIdA" yaml:"outputAssetIdA,omitempty"`
	OutputAssetIDB  uint32   `mapstructure:"outputAssetIdB" yaml:"outputAssetIdB,omitempty"`
	BitConfig       uint32   `mapstructure:"bitConfig" yaml:"bitConfig,omitempty"`
	AuxData         uint64   `mapstructure:"auxData" yaml:"auxData,omitempty"`
	NumTxs          int      `mapstructure:"numTxs" yaml:"numTxs"`
	Gas             int64    `mapstructure:"gas" yaml:"gas"`
	PermittedAssets []uint32 `mapstructure:"permittedAssets" yaml:"permittedAssets,omitempty"`
	Subsidy         int64    `mapstructure:"subsidy" yaml:"subsidy,omitempty"`
	RollupFrequency int      `mapstructure:"rollupFrequency" yaml:"rollupFrequency,omitempty"`
}

func (e *Entry) callData() (types.BridgeCallData, error) {
	if e.BridgeCallData != "" {
		return types.BridgeCallDataFromHex(e.BridgeCallData)
	}
	if e.AddressID == 0 {
		return types.BridgeCallData{}, fmt.Errorf("bridge entry needs bridgeCallData or addressId")
	}
	return types.NewBridgeCallData(
		e.AddressID,
		e.InputAssetIDA, e.OutputAssetIDA, e.InputAssetIDB, e.OutputAssetIDB,
		e.BitConfig,
		e.AuxData,
	), nil
}

// Resolver implements coordinator.BridgeResolver over a fixed set of bridges.
type Resolver struct {
	configs  map[types.BridgeCallData]coordinator.BridgeConfig
	order    []types.BridgeCallData
	defaults coordinator.BridgeConfig
}

var logger = log.NewLogger("bridge")

func NewResolver(defaults coordinator.BridgeConfig, entries []Entry) (*Resolver, error) {
	r := &Resolver{
		configs:  make(map[types.BridgeCallData]coordinator.BridgeConfig, len(entries)),
		defaults: defaults,
	}
	for i := range entries {
		e := &entries[i]
		bc, err := e.callData()
		if err != nil {
			return nil, fmt.Errorf("bridge %d: %w", i, err)
		}
		if _, dup := r.configs[bc]; dup {
			return nil, fmt.Errorf("bridge %d: duplicate bridge %s", i, bc.Hex())
		}
		if e.NumTxs <= 0 || e.Gas < 0 || e.Subsidy < 0 {
			return nil, fmt.Errorf("bridge %s: invalid numTxs=%d gas=%d subsidy=%d", bc.Hex(), e.NumTxs, e.Gas, e.Subsidy)
		}
		r.configs[bc] = coordinator.BridgeConfig{
			BridgeCallData:  bc,
			NumTxs:          e.NumTxs,
			Gas:             e.Gas,
			PermittedAssets: e.PermittedAssets,
			Subsidy:         e.Subsidy,
			RollupFrequency: e.RollupFrequency,
		}
		r.order = append(r.order, bc)
		logger.Debug().Str("bridge", bc.Hex()).Uint32("addressId", bc.AddressID()).Int("numTxs", e.NumTxs).
			Int64("gas", e.Gas).Int64("subsidy", e.Subsidy).Msg("Loaded bridge config")
	}
	return r, nil
}

// NewResolverFromViper reads the bridges and bridgeDefaults sections.
func NewResolverFromViper(v *viper.Viper) (*Resolver, error) {
	v.SetDefault(keyDefaultNumTxs, defaultBridgeSize)
	v.SetDefault(keyDefaultGas, defaultBridgeGas)
	var entries []Entry
	if err := v.UnmarshalKey(keyBridges, &entries); err != nil {
		return nil, fmt.Errorf("read bridges: %w", err)
	}
	defaults := coordinator.BridgeConfig{
		NumTxs: v.GetInt(keyDefaultNumTxs),
		Gas:    v.GetInt64(keyDefaultGas),
	}
	return NewResolver(defaults, entries)
}

// GetBridgeConfig returns the config of bc, or the defaults for unknown bridges.
func (r *Resolver) GetBridgeConfig(bc types.BridgeCallData) coordinator.BridgeConfig {
	if cfg, ok := r.configs[bc]; ok {
		return cfg
	}
	cfg := r.defaults
	cfg.BridgeCallData = bc
	return cfg
}

func (r *Resolver) GetBridgeConfigs() []coordinator.BridgeConfig {
	configs := make([]coordinator.BridgeConfig, 0, len(r.order))
	for _, bc := range r.order {
		configs = append(configs, r.configs[bc])
	}
	return configs
}
