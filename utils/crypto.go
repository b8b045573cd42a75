package utils

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"

	"github.com/celer-network/go-sequencer/log"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var logger = log.NewLogger("utils")

// SigIsValid reports whether sig is signer's SignData signature over data.
func SigIsValid(signer common.Address, data []byte, sig []byte) bool {
	recoveredAddr := RecoverSigner(data, sig)
	return recoveredAddr == signer
}

func RecoverSigner(data []byte, sig []byte) common.Address {
	pubKey, err := crypto.SigToPub(generatePrefixedHash(data), sig)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to recover signer")
		return common.Address{}
	}
	return crypto.PubkeyToAddress(*pubKey)
}

// GetPrivateKeyFromKeystore decrypts a geth keystore file.
func GetPrivateKeyFromKeystore(path string, password string) (*ecdsa.PrivateKey, error) {
	ksBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptKey(ksBytes, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore %s: %w", path, err)
	}
	return key.PrivateKey, nil
}

// NewTransactor returns transact opts that sign with key for chainID.
func NewTransactor(key *ecdsa.PrivateKey, chainID *big.Int) (*bind.TransactOpts, error) {
	if chainID == nil {
		return nil, fmt.Errorf("missing chain id")
	}
	return bind.NewKeyedTransactorWithChainID(key, chainID)
}

// GetAuthFromKeystore decrypts a geth keystore file into transact opts.
func GetAuthFromKeystore(path string, password string, chainID *big.Int) (*bind.TransactOpts, *ecdsa.PrivateKey, error) {
	key, err := GetPrivateKeyFromKeystore(path, password)
	if err != nil {
		return nil, nil, err
	}
	auth, err := NewTransactor(key, chainID)
	if err != nil {
		return nil, nil, err
	}
	return auth, key, nil
}

// SignData signs the keccak hash of data with the eth_sign message prefix.
func SignData(privateKey *ecdsa.PrivateKey, data ...[]byte) ([]byte, error) {
	hash := crypto.Keccak256Hash(data...)
	prefixedHash := crypto.Keccak256Hash(
		[]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%v", len(hash))),
		hash.Bytes(),
	)
	return crypto.Sign(prefixedHash.Bytes(), privateKey)
}

func generatePrefixedHash(data []byte) []byte {
	return crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), crypto.Keccak256(data))
}
