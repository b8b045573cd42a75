package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Serializer abi-encodes batches into the proof data accepted by the rollup
// processor contract.
type Serializer struct {
	typeRegistry       *typeRegistry
	proofDataArguments abi.Arguments
}

func NewSerializer() (*Serializer, error) {
	typeRegistry, err := newTypeRegistry()
	if err != nil {
		return nil, err
	}
	return &Serializer{
		typeRegistry:       typeRegistry,
		proofDataArguments: createProofDataArguments(typeRegistry),
	}, nil
}

func createProofDataArguments(r *typeRegistry) abi.Arguments {
	return abi.Arguments([]abi.Argument{
		{Name: "rollupId", Type: r.uint256Ty},
		{Name: "dataHash", Type: r.bytes32Ty},
		{Name: "oldDefiRoot", Type: r.bytes32Ty},
		{Name: "newDefiRoot", Type: r.bytes32Ty},
		{Name: "innerRollups", Type: r.bytes32SliceTy},
		{Name: "bridgeCallDatas", Type: r.bytes32SliceTy},
		{Name: "assetIds", Type: r.uint256SliceTy},
		{Name: "interactionNotes", Type: r.bytesSliceTy},
	})
}

// SerializeForSubmission encodes the batch as the processor's proof data.
func (batch *RollupBatch) SerializeForSubmission(s *Serializer) ([]byte, error) {
	innerRollups := make([][32]byte, len(batch.InnerRollups))
	for i, id := range batch.InnerRollups {
		innerRollups[i] = id
	}
	bridgeSlots := make([][32]byte, len(batch.BridgeSlots))
	for i, bc := range batch.BridgeSlots {
		bridgeSlots[i] = bc
	}
	assetSlots := make([]*big.Int, len(batch.AssetSlots))
	for i, assetID := range batch.AssetSlots {
		assetSlots[i] = new(big.Int).SetUint64(uint64(assetID))
	}
	notes := batch.InteractionNotes
	if notes == nil {
		notes = [][]byte{}
	}
	return s.proofDataArguments.Pack(
		new(big.Int).SetUint64(batch.RollupID),
		[32]byte(batch.DataHash),
		[32]byte(batch.OldDefiRoot),
		[32]byte(batch.NewDefiRoot),
		innerRollups,
		bridgeSlots,
		assetSlots,
		notes,
	)
}

// DeserializeRollupIDFromSubmission reads the rollup id back out of encoded proof data.
func (s *Serializer) DeserializeRollupIDFromSubmission(data []byte) (uint64, error) {
	values, err := s.proofDataArguments.Unpack(data)
	if err != nil {
		return 0, err
	}
	return values[0].(*big.Int).Uint64(), nil
}
