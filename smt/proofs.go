package smt

import (
	"bytes"
	"hash"
)

func (smt *SparseMerkleTree) VerifyProof(proof [][]byte, key []byte, value []byte) bool {
	return VerifyProof(proof, smt.root, key, value, smt.hasher, smt.height)
}

// VerifyProof checks a leaf-up proof that key holds value under root.
func VerifyProof(proof [][]byte, root []byte, key []byte, value []byte, hasher hash.Hash, height int) bool {
	if len(proof) != height-1 {
		return false
	}
	path, err := padKey(key, hasher.Size())
	if err != nil {
		return false
	}

	currentHash := digest(hasher, value)
	for i := height - 2; i >= 0; i-- {
		node := proof[height-2-i]
		if len(node) != hasher.Size() {
			return false
		}
		if isLeft(path, i, height) {
			currentHash = digest(hasher, append(append([]byte{}, currentHash...), node...))
		} else {
			currentHash = digest(hasher, append(append([]byte{}, node...), currentHash...))
		}
	}
	return bytes.Equal(currentHash, root)
}
