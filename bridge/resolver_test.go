package bridge

import (
	"bytes"
	"testing"

	"github.com/celer-network/go-sequencer/coordinator"
	"github.com/celer-network/go-sequencer/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func viperFromYaml(t *testing.T, doc interface{}) *viper.Viper {
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(data)))
	return v
}

func TestResolverFromViper(t *testing.T) {
	byFields := types.NewBridgeCallData(3, 1, 2, 0, 0, 0, 7)
	byHex := types.NewBridgeCallData(5, 0, 1, 0, 0, 0, 0)
	v := viperFromYaml(t, map[string]interface{}{
		"bridgeDefaults": map[string]interface{}{"numTxs": 4, "gas": 120000},
		"bridges": []Entry{
			{AddressID: 3, InputAssetIDA: 1, OutputAssetIDA: 2, AuxData: 7, NumTxs: 8, Gas: 200000, Subsidy: 50000, PermittedAssets: []uint32{1}},
			{BridgeCallData: byHex.Hex(), NumTxs: 32, Gas: 500000, RollupFrequency: 3},
		},
	})

	r, err := NewResolverFromViper(v)
	require.NoError(t, err)

	configs := r.GetBridgeConfigs()
	require.Len(t, configs, 2)
	assert.Equal(t, coordinator.BridgeConfig{
		BridgeCallData:  byFields,
		NumTxs:          8,
		Gas:             200000,
		PermittedAssets: []uint32{1},
		Subsidy:         50000,
	}, configs[0])
	assert.Equal(t, byHex, configs[1].BridgeCallData)
	assert.Equal(t, 3, configs[1].RollupFrequency)
	assert.Equal(t, configs[1], r.GetBridgeConfig(byHex))

	unknown := types.NewBridgeCallData(9, 0, 0, 0, 0, 0, 0)
	assert.Equal(t, coordinator.BridgeConfig{BridgeCallData: unknown, NumTxs: 4, Gas: 120000}, r.GetBridgeConfig(unknown))
}

func TestResolverDefaults(t *testing.T) {
	r, err := NewResolverFromViper(viper.New())
	require.NoError(t, err)
	assert.Empty(t, r.GetBridgeConfigs())
	cfg := r.GetBridgeConfig(types.BridgeCallData{0x01})
	assert.Equal(t, defaultBridgeSize, cfg.NumTxs)
	assert.Equal(t, int64(defaultBridgeGas), cfg.Gas)
}

func TestResolverRejectsBadEntries(t *testing.T) {
	for name, entries := range map[string][]Entry{
		"unnamed":     {{NumTxs: 1, Gas: 1}},
		"bad hex":     {{BridgeCallData: "0xzz", NumTxs: 1}},
		"zero numTxs": {{AddressID: 1, Gas: 1}},
		"negative":    {{AddressID: 1, NumTxs: 1, Subsidy: -1}},
		"duplicate":   {{AddressID: 1, NumTxs: 1}, {AddressID: 1, NumTxs: 2}},
	} {
		_, err := NewResolver(coordinator.BridgeConfig{}, entries)
		assert.Error(t, err, name)
	}
}
