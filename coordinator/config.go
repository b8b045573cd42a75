package coordinator

import (
	"fmt"
	"time"
)

type Config struct {
	NumInnerRollupTxs    int
	NumOuterRollupProofs int
	NumBridgeSlots       int
	NumAssetSlots        int
	// Zero disables the publish deadline.
	PublishInterval time.Duration
	// Publish as soon as the batch pays for itself.
	PublishProfitable bool
	MaxParallelBuilds int
}

func DefaultConfig() Config {
	return Config{
		NumInnerRollupTxs:    28,
		NumOuterRollupProofs: 32,
		NumBridgeSlots:       32,
		NumAssetSlots:        16,
		PublishInterval:      0,
		PublishProfitable:    false,
		MaxParallelBuilds:    4,
	}
}

// TotalSlots is the tx capacity of one batch.
func (c *Config) TotalSlots() int {
	return c.NumInnerRollupTxs * c.NumOuterRollupProofs
}

func (c *Config) Validate() error {
	if c.NumInnerRollupTxs <= 0 || c.NumOuterRollupProofs <= 0 {
		return fmt.Errorf("coordinator: invalid rollup shape %dx%d", c.NumInnerRollupTxs, c.NumOuterRollupProofs)
	}
	if c.NumBridgeSlots <= 0 || c.NumAssetSlots <= 0 {
		return fmt.Errorf("coordinator: invalid slots bridges=%d assets=%d", c.NumBridgeSlots, c.NumAssetSlots)
	}
	if c.PublishInterval < 0 {
		return fmt.Errorf("coordinator: negative publish interval %s", c.PublishInterval)
	}
	return nil
}
