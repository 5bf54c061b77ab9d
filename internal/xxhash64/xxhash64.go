// Package xxhash64 implements the seeded 64-bit XXH64 hash used to bind
// a transaction's compressed payload to its TransactionId (see §4.3 and
// §8/P3 of the recovery engine specification).
//
// The ecosystem's cespare/xxhash/v2 package (pulled in transitively by
// the wider dependency graph this module descends from) only exposes
// the unseeded form of XXH64; there is no third-party package in reach
// that exposes seed customisation for the XXH64 (as opposed to XXH3)
// variant. This package is the one deliberately hand-rolled piece of
// the module for exactly that reason — it implements the published
// XXH64 algorithm, seed included, in about eighty lines.
package xxhash64

import "encoding/binary"

const (
	prime1 uint64 = 11400714785074694791
	prime2 uint64 = 14029467366897019727
	prime3 uint64 = 1609587929392839161
	prime4 uint64 = 9650029242287828579
	prime5 uint64 = 2870177450012600261
)

// Sum computes XXH64(input, seed).
func Sum(input []byte, seed uint64) uint64 {
	var h64 uint64
	n := len(input)

	if n >= 32 {
		v1 := seed + prime1 + prime2
		v2 := seed + prime2
		v3 := seed
		v4 := seed - prime1
		for len(input) >= 32 {
			v1 = round(v1, binary.LittleEndian.Uint64(input[0:8]))
			v2 = round(v2, binary.LittleEndian.Uint64(input[8:16]))
			v3 = round(v3, binary.LittleEndian.Uint64(input[16:24]))
			v4 = round(v4, binary.LittleEndian.Uint64(input[24:32]))
			input = input[32:]
		}
		h64 = rotl64(v1, 1) + rotl64(v2, 7) + rotl64(v3, 12) + rotl64(v4, 18)
		h64 = mergeRound(h64, v1)
		h64 = mergeRound(h64, v2)
		h64 = mergeRound(h64, v3)
		h64 = mergeRound(h64, v4)
	} else {
		h64 = seed + prime5
	}

	h64 += uint64(n)

	for len(input) >= 8 {
		k1 := round(0, binary.LittleEndian.Uint64(input[0:8]))
		h64 ^= k1
		h64 = rotl64(h64, 27)*prime1 + prime4
		input = input[8:]
	}
	if len(input) >= 4 {
		h64 ^= uint64(binary.LittleEndian.Uint32(input[0:4])) * prime1
		h64 = rotl64(h64, 23)*prime2 + prime3
		input = input[4:]
	}
	for len(input) > 0 {
		h64 ^= uint64(input[0]) * prime5
		h64 = rotl64(h64, 11) * prime1
		input = input[1:]
	}

	h64 ^= h64 >> 33
	h64 *= prime2
	h64 ^= h64 >> 29
	h64 *= prime3
	h64 ^= h64 >> 32

	return h64
}

func round(acc, input uint64) uint64 {
	acc += input * prime2
	acc = rotl64(acc, 31)
	acc *= prime1
	return acc
}

func mergeRound(acc, val uint64) uint64 {
	val = round(0, val)
	acc ^= val
	acc = acc*prime1 + prime4
	return acc
}

func rotl64(x uint64, r uint) uint64 {
	return (x << r) | (x >> (64 - r))
}
