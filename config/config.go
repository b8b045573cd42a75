// Package config loads the sequencer configuration from a directory of yaml
// files: parameters, ethereum_networks, bridges and fees.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/celer-network/go-sequencer/coordinator"
	"github.com/celer-network/go-sequencer/ethchain"
	"github.com/celer-network/go-sequencer/publisher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

var configNames = []string{"parameters", "ethereum_networks", "bridges", "fees"}

type Chain struct {
	ethchain.Config
	Keystore         string
	KeystorePassword string
}

type Storage struct {
	DBType string
	DBDir  string
}

type Config struct {
	Coordinator  coordinator.Config
	Publisher    publisher.Config
	PollInterval time.Duration
	Chain        Chain
	Storage      Storage
	OTLPEndpoint string
	// Viper holds the merged files, for the bridge and fee resolvers.
	Viper *viper.Viper
}

func setDefaults(v *viper.Viper) {
	c := coordinator.DefaultConfig()
	v.SetDefault("coordinator.numInnerRollupTxs", c.NumInnerRollupTxs)
	v.SetDefault("coordinator.numOuterRollupProofs", c.NumOuterRollupProofs)
	v.SetDefault("coordinator.numBridgeSlots", c.NumBridgeSlots)
	v.SetDefault("coordinator.numAssetSlots", c.NumAssetSlots)
	v.SetDefault("coordinator.publishInterval", c.PublishInterval)
	v.SetDefault("coordinator.publishProfitable", c.PublishProfitable)
	v.SetDefault("coordinator.maxParallelBuilds", c.MaxParallelBuilds)

	p := publisher.DefaultConfig()
	v.SetDefault("publisher.retryInterval", p.RetryInterval)
	v.SetDefault("publisher.receiptPollInterval", p.ReceiptPollInterval)

	v.SetDefault("pipeline.pollInterval", 10*time.Second)
	v.SetDefault("storage.dbType", "badgerdb")
	v.SetDefault("storage.dbDir", "/tmp/sequencer/db")
}

// Load merges the config files found in dir. Missing files are skipped.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigType("yaml")
	setDefaults(v)
	for _, name := range configNames {
		v.SetConfigName(name)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, fmt.Errorf("config %s: %w", name, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Coordinator: coordinator.Config{
			NumInnerRollupTxs:    v.GetInt("coordinator.numInnerRollupTxs"),
			NumOuterRollupProofs: v.GetInt("coordinator.numOuterRollupProofs"),
			NumBridgeSlots:       v.GetInt("coordinator.numBridgeSlots"),
			NumAssetSlots:        v.GetInt("coordinator.numAssetSlots"),
			PublishInterval:      v.GetDuration("coordinator.publishInterval"),
			PublishProfitable:    v.GetBool("coordinator.publishProfitable"),
			MaxParallelBuilds:    v.GetInt("coordinator.maxParallelBuilds"),
		},
		Publisher: publisher.Config{
			RetryInterval:       v.GetDuration("publisher.retryInterval"),
			ReceiptPollInterval: v.GetDuration("publisher.receiptPollInterval"),
		},
		PollInterval: v.GetDuration("pipeline.pollInterval"),
		Chain: Chain{
			Config: ethchain.Config{
				Endpoint:        v.GetString("mainchain.endpoint"),
				RollupProcessor: common.HexToAddress(v.GetString("mainchain.rollupProcessor")),
				GasLimit:        v.GetUint64("mainchain.gasLimit"),
			},
			Keystore:         v.GetString("mainchain.keystore"),
			KeystorePassword: v.GetString("mainchain.keystorePassword"),
		},
		Storage: Storage{
			DBType: v.GetString("storage.dbType"),
			DBDir:  v.GetString("storage.dbDir"),
		},
		OTLPEndpoint: v.GetString("telemetry.otlpEndpoint"),
		Viper:        v,
	}
	if err := cfg.Coordinator.Validate(); err != nil {
		return nil, err
	}

	if s := v.GetString("publisher.maxGasPrice"); s != "" {
		price, ok := new(big.Int).SetString(s, 10)
		if !ok || price.Sign() <= 0 {
			return nil, fmt.Errorf("config: invalid publisher.maxGasPrice %q", s)
		}
		cfg.Publisher.MaxGasPrice = price
	}
	if id := v.GetInt64("mainchain.chainId"); id > 0 {
		cfg.Chain.ChainID = big.NewInt(id)
	}
	return cfg, nil
}
