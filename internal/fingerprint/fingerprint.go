// Package fingerprint derives the stable content hash that drives every
// deterministic classification and scoring decision.
//
// The digest is the 128-bit FNV-1a hash of the raw UTF-8 bytes of the text,
// read as an unsigned big-endian integer. It must never change: stored
// deterministic results are only reproducible while the algorithm is frozen.
package fingerprint

import (
	"hash/fnv"
	"math/big"
)

// Of returns the fingerprint of text.
func Of(text string) *big.Int {
	h := fnv.New128a()
	_, _ = h.Write([]byte(text))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// Mod returns Of(text) mod n. n must be positive.
func Mod(text string, n int64) int {
	return int(new(big.Int).Mod(Of(text), big.NewInt(n)).Int64())
}

// DivMod returns (Of(text) / d) mod n using floor division.
func DivMod(text string, d, n int64) int {
	q := new(big.Int).Quo(Of(text), big.NewInt(d))
	return int(q.Mod(q, big.NewInt(n)).Int64())
}
