package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Bit layout of a bridge call, least significant bits first.
const (
	bridgeAddressIDLen = 32
	bridgeAssetIDLen   = 30
	bridgeBitConfigLen = 32
	bridgeAuxDataLen   = 64

	inputAssetIDAOffset  = bridgeAddressIDLen
	inputAssetIDBOffset  = inputAssetIDAOffset + bridgeAssetIDLen
	outputAssetIDAOffset = inputAssetIDBOffset + bridgeAssetIDLen
	outputAssetIDBOffset = outputAssetIDAOffset + bridgeAssetIDLen
	bitConfigOffset      = outputAssetIDBOffset + bridgeAssetIDLen
	auxDataOffset        = bitConfigOffset + bridgeBitConfigLen
)

// BridgeCallData identifies a bridge contract together with the asset routing of
// the interaction. It is compared by value and can be used as a map key.
type BridgeCallData [32]byte

// NewBridgeCallData packs the bridge call fields into their 256-bit encoding.
func NewBridgeCallData(
	addressID uint32,
	inputAssetIDA, outputAssetIDA, inputAssetIDB, outputAssetIDB uint32,
	bitConfig uint32,
	auxData uint64,
) BridgeCallData {
	v := new(uint256.Int).SetUint64(uint64(addressID))
	pack := func(value uint64, offset uint) {
		v.Or(v, new(uint256.Int).Lsh(new(uint256.Int).SetUint64(value), offset))
	}
	mask := uint32(1)<<bridgeAssetIDLen - 1
	pack(uint64(inputAssetIDA&mask), inputAssetIDAOffset)
	pack(uint64(inputAssetIDB&mask), inputAssetIDBOffset)
	pack(uint64(outputAssetIDA&mask), outputAssetIDAOffset)
	pack(uint64(outputAssetIDB&mask), outputAssetIDBOffset)
	pack(uint64(bitConfig), bitConfigOffset)
	pack(auxData, auxDataOffset)
	return BridgeCallData(v.Bytes32())
}

// BridgeCallDataFromHex parses a 0x-prefixed, at most 32 byte, hex string.
func BridgeCallDataFromHex(s string) (BridgeCallData, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return BridgeCallData{}, fmt.Errorf("invalid bridge call data %q: %w", s, err)
	}
	if len(b) > 32 {
		return BridgeCallData{}, fmt.Errorf("invalid bridge call data %q: %d bytes", s, len(b))
	}
	return BridgeCallData(common.BytesToHash(b)), nil
}

func (bc BridgeCallData) field(offset, length uint) uint64 {
	v := new(uint256.Int).SetBytes32(bc[:])
	v.Rsh(v, offset)
	mask := new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), length), 1)
	return v.And(v, mask).Uint64()
}

func (bc BridgeCallData) AddressID() uint32 {
	return uint32(bc.field(0, bridgeAddressIDLen))
}

func (bc BridgeCallData) InputAssetIDA() uint32 {
	return uint32(bc.field(inputAssetIDAOffset, bridgeAssetIDLen))
}

func (bc BridgeCallData) InputAssetIDB() uint32 {
	return uint32(bc.field(inputAssetIDBOffset, bridgeAssetIDLen))
}

func (bc BridgeCallData) OutputAssetIDA() uint32 {
	return uint32(bc.field(outputAssetIDAOffset, bridgeAssetIDLen))
}

func (bc BridgeCallData) OutputAssetIDB() uint32 {
	return uint32(bc.field(outputAssetIDBOffset, bridgeAssetIDLen))
}

func (bc BridgeCallData) BitConfig() uint32 {
	return uint32(bc.field(bitConfigOffset, bridgeBitConfigLen))
}

func (bc BridgeCallData) AuxData() uint64 {
	return bc.field(auxDataOffset, bridgeAuxDataLen)
}

func (bc BridgeCallData) Hash() common.Hash {
	return common.Hash(bc)
}

func (bc BridgeCallData) Hex() string {
	return common.Hash(bc).Hex()
}

func (bc BridgeCallData) String() string {
	return bc.Hex()
}

func (bc BridgeCallData) MarshalText() ([]byte, error) {
	return []byte(bc.Hex()), nil
}

func (bc *BridgeCallData) UnmarshalText(text []byte) error {
	parsed, err := BridgeCallDataFromHex(string(text))
	if err != nil {
		return err
	}
	*bc = parsed
	return nil
}
