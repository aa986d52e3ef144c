package ir

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Hash is a 64-bit structural hash.
type Hash uint64

func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// DefaultHashSeed is the seed used when a node does not specify one.
const DefaultHashSeed Hash = 0x5a2d296e9

// deferredShapeHash stands in for the shape of nodes built with a shape
// function; the shape is then a function of the other hashed inputs.
var deferredShapeHash = HashString("graphir.deferred_shape")

// HashCombine mixes b into a. The result depends on argument order.
func HashCombine(a, b Hash) Hash {
	return a ^ (b + 0x9e3779b97f4a7c15 + (a << 6) + (a >> 2))
}

// HashString hashes a string.
func HashString(s string) Hash {
	return Hash(xxhash.Sum64String(s))
}

// HashUint hashes an unsigned integer.
func HashUint(v uint64) Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return Hash(xxhash.Sum64(buf[:]))
}

// HashInts hashes a list of integers, length included.
func HashInts[T ~int | ~int64 | ~int32](xs []T) Hash {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(xs)))
	_, _ = d.Write(buf[:])
	for _, x := range xs {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(x)))
		_, _ = d.Write(buf[:])
	}
	return Hash(d.Sum64())
}

// HashValues folds a list of hashes into a seed, in order.
func HashValues(seed Hash, hs ...Hash) Hash {
	out := seed
	for _, h := range hs {
		out = HashCombine(out, h)
	}
	return out
}
