package types

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
)

type typeRegistry struct {
	bytesTy        abi.Type
	bytes32Ty      abi.Type
	uint256Ty      abi.Type
	bytesSliceTy   abi.Type
	bytes32SliceTy abi.Type
	uint256SliceTy abi.Type
}

func newTypeRegistry() (*typeRegistry, error) {
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	bytes32Ty, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		return nil, err
	}
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	bytesSliceTy, err := abi.NewType("bytes[]", "", nil)
	if err != nil {
		return nil, err
	}
	bytes32SliceTy, err := abi.NewType("bytes32[]", "", nil)
	if err != nil {
		return nil, err
	}
	uint256SliceTy, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		return nil, err
	}
	return &typeRegistry{
		bytesTy:        bytesTy,
		bytes32Ty:      bytes32Ty,
		uint256Ty:      uint256Ty,
		bytesSliceTy:   bytesSliceTy,
		bytes32SliceTy: bytes32SliceTy,
		uint256SliceTy: uint256SliceTy,
	}, nil
}
