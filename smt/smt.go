// Package smt implements a Sparse Merkle tree over a namespaced db.DB.
package smt

import (
	"errors"
	"hash"

	"github.com/celer-network/go-sequencer/db"
)

var (
	DefaultValue = make([]byte, 32)
	initMarker   = []byte("init")

	ErrCorruptDB   = errors.New("smt: corrupt db")
	ErrKeyTooLong  = errors.New("smt: key too long")
	ErrInvalidTree = errors.New("smt: height must be between 2 and the hash size in bits + 1")
)

// SparseMerkleTree is a Sparse Merkle tree of the given height. Nodes are
// stored as hash -> preimage, so every root ever produced stays readable.
type SparseMerkleTree struct {
	hasher    hash.Hash
	db        db.DB
	namespace []byte
	root      []byte
	height    int
	// defaults[i] is the root of an empty subtree at depth i.
	defaults [][]byte
}

// NewSparseMerkleTree creates or restores a Sparse Merkle tree. A nil root
// starts from the empty tree.
func NewSparseMerkleTree(database db.DB, namespace []byte, hasher hash.Hash, root []byte, height int) (*SparseMerkleTree, error) {
	if height < 2 || height-1 > hasher.Size()*8 {
		return nil, ErrInvalidTree
	}
	smt := &SparseMerkleTree{
		hasher:    hasher,
		db:        database,
		namespace: namespace,
		height:    height,
	}

	smt.defaults = make([][]byte, height)
	smt.defaults[height-1] = smt.digest(DefaultValue)
	for i := height - 2; i >= 0; i-- {
		smt.defaults[i] = smt.digest(append(append([]byte{}, smt.defaults[i+1]...), smt.defaults[i+1]...))
	}

	_, exists, err := database.Get(namespace, initMarker)
	if err != nil {
		return nil, err
	}
	if !exists {
		bulk := database.NewBulk()
		for i := 0; i < height-1; i++ {
			err := bulk.Set(namespace, smt.defaults[i], append(append([]byte{}, smt.defaults[i+1]...), smt.defaults[i+1]...))
			if err != nil {
				return nil, err
			}
		}
		if err := bulk.Set(namespace, smt.defaults[height-1], DefaultValue); err != nil {
			return nil, err
		}
		if err := bulk.Set(namespace, initMarker, []byte{}); err != nil {
			return nil, err
		}
		if err := bulk.Flush(); err != nil {
			return nil, err
		}
	}

	if root != nil {
		smt.SetRoot(root)
	} else {
		smt.SetRoot(smt.defaults[0])
	}
	return smt, nil
}

// Root gets the root of the tree.
func (smt *SparseMerkleTree) Root() []byte {
	return smt.root
}

// SetRoot sets the root of the tree.
func (smt *SparseMerkleTree) SetRoot(root []byte) {
	smt.root = root
}

func (smt *SparseMerkleTree) Height() int {
	return smt.height
}

func (smt *SparseMerkleTree) keySize() int {
	return smt.hasher.Size()
}

func (smt *SparseMerkleTree) digest(data []byte) []byte {
	return digest(smt.hasher, data)
}

func digest(hasher hash.Hash, data []byte) []byte {
	hasher.Write(data)
	sum := hasher.Sum(nil)
	hasher.Reset()
	return sum
}

func (smt *SparseMerkleTree) node(h []byte) ([]byte, error) {
	value, exists, err := smt.db.Get(smt.namespace, h)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCorruptDB
	}
	return value, nil
}

// Get gets a key from the tree.
func (smt *SparseMerkleTree) Get(key []byte) ([]byte, error) {
	return smt.GetForRoot(key, smt.Root())
}

// GetForRoot gets a key from the tree at a specific root.
func (smt *SparseMerkleTree) GetForRoot(key []byte, root []byte) ([]byte, error) {
	path, err := smt.padKey(key)
	if err != nil {
		return nil, err
	}
	currentHash := root
	for i := 0; i < smt.height-1; i++ {
		currentValue, err := smt.node(currentHash)
		if err != nil {
			return nil, err
		}
		if isLeft(path, i, smt.height) {
			currentHash = currentValue[:smt.keySize()]
		} else {
			currentHash = currentValue[smt.keySize():]
		}
	}
	return smt.node(currentHash)
}

// Update sets a new value for a key in the tree, returns the new root, and sets the new current root of the tree.
func (smt *SparseMerkleTree) Update(key []byte, value []byte) ([]byte, error) {
	newRoot, err := smt.UpdateForRoot(key, value, smt.Root())
	if err == nil {
		smt.SetRoot(newRoot)
	}
	return newRoot, err
}

// UpdateForRoot sets a new value for a key in the tree at a specific root, and returns the new root.
func (smt *SparseMerkleTree) UpdateForRoot(key []byte, value []byte, root []byte) ([]byte, error) {
	path, err := smt.padKey(key)
	if err != nil {
		return nil, err
	}
	sideNodes, err := smt.sideNodesForRoot(path, root)
	if err != nil {
		return nil, err
	}
	return smt.updateWithSideNodes(path, value, sideNodes)
}

func (smt *SparseMerkleTree) updateWithSideNodes(path []byte, value []byte, sideNodes [][]byte) ([]byte, error) {
	bulk := smt.db.NewBulk()
	currentHash := smt.digest(value)
	if err := bulk.Set(smt.namespace, currentHash, value); err != nil {
		return nil, err
	}

	for i := smt.height - 2; i >= 0; i-- {
		currentValue := make([]byte, 0, 2*smt.keySize())
		if isLeft(path, i, smt.height) {
			currentValue = append(append(currentValue, currentHash...), sideNodes[i]...)
		} else {
			currentValue = append(append(currentValue, sideNodes[i]...), currentHash...)
		}
		currentHash = smt.digest(currentValue)
		if err := bulk.Set(smt.namespace, currentHash, currentValue); err != nil {
			return nil, err
		}
	}
	if err := bulk.Flush(); err != nil {
		return nil, err
	}
	return currentHash, nil
}

// sideNodesForRoot returns the siblings along path, from the top of the tree down.
func (smt *SparseMerkleTree) sideNodesForRoot(path []byte, root []byte) ([][]byte, error) {
	currentValue, err := smt.node(root)
	if err != nil {
		return nil, err
	}
	sideNodes := make([][]byte, smt.height-1)
	for i := 0; i < smt.height-1; i++ {
		if len(currentValue) != 2*smt.keySize() {
			return nil, ErrCorruptDB
		}
		left, right := currentValue[:smt.keySize()], currentValue[smt.keySize():]
		next := right
		sideNodes[i] = left
		if isLeft(path, i, smt.height) {
			next = left
			sideNodes[i] = right
		}
		if i < smt.height-2 {
			if currentValue, err = smt.node(next); err != nil {
				return nil, err
			}
		}
	}
	return sideNodes, nil
}

// Prove generates a Merkle proof for a key.
func (smt *SparseMerkleTree) Prove(key []byte) ([][]byte, error) {
	return smt.ProveForRoot(key, smt.Root())
}

// ProveForRoot generates a Merkle proof for a key, at a specific root. Side
// nodes are ordered from the leaf up.
func (smt *SparseMerkleTree) ProveForRoot(key []byte, root []byte) ([][]byte, error) {
	path, err := smt.padKey(key)
	if err != nil {
		return nil, err
	}
	sideNodes, err := smt.sideNodesForRoot(path, root)
	if err != nil {
		return nil, err
	}
	return reverseProof(sideNodes), nil
}

func (smt *SparseMerkleTree) padKey(key []byte) ([]byte, error) {
	return padKey(key, smt.keySize())
}

func padKey(key []byte, size int) ([]byte, error) {
	if len(key) > size {
		return nil, ErrKeyTooLong
	}
	padded := make([]byte, size)
	copy(padded[size-len(key):], key)
	return padded, nil
}
