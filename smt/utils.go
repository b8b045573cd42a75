package smt

func bitIsSet(bits []byte, i int) bool {
	return bits[i/8]&(1<<uint(7-i%8)) != 0
}

// isLeft reports whether path goes left below depth. Only the low height-1
// bits of the path are used.
func isLeft(path []byte, depth int, height int) bool {
	return !bitIsSet(path, len(path)*8-(height-1)+depth)
}

func reverseProof(proof [][]byte) [][]byte {
	reversed := make([][]byte, len(proof))
	for i := range proof {
		reversed[len(proof)-1-i] = proof[i]
	}
	return reversed
}
