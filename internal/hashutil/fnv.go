// Package hashutil provides the exact FNV-1a hashing used by the Merkle
// trie. The constants below are part of the
// wire contract between replicas: two peers only agree on a root hash if
// both compute it with this offset, this prime, and this combine rule.
package hashutil

const (
	offsetBasis uint32 = 0x811c9dc5
	prime       uint32 = 0x01000193
)

// HashString returns the 32-bit FNV-1a hash of s.
func HashString(s string) uint32 {
	h := offsetBasis
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// HashBytes is HashString for raw bytes, avoiding a string copy at call
// sites that already hold a []byte.
func HashBytes(b []byte) uint32 {
	h := offsetBasis
	for _, c := range b {
		h ^= uint32(c)
		h *= prime
	}
	return h
}

// CombineHashes folds a slice of child hashes into one parent hash: the
// sum of all inputs modulo 2^32. Go's uint32 addition already wraps at
// 2^32, so this is a plain summation.
func CombineHashes(hs []uint32) uint32 {
	var sum uint32
	for _, h := range hs {
		sum += h
	}
	return sum
}
