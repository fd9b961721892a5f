// Package util provides shared utility functions.
package util

import (
	"encoding/binary"
	"hash/fnv"
)

// Checksum computes a 4-byte FNV-1a hash over a sequence of int32 values.
// Participants compare checksums of their simulation state to detect a
// desync; the hash does not need to be reversible.
func Checksum(values ...int32) uint32 {
	h := fnv.New32a()
	var b [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		h.Write(b[:])
	}
	return h.Sum32()
}
