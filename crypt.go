// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"encoding/binary"
	"fmt"
)

// Hash variants for hashName. The variant selects a 256-word window of the
// scrambling table.
const (
	hashTableIndex = 0 // slot index into the hash table
	hashNameA      = 1 // first verification hash
	hashNameB      = 2 // second verification hash
	hashFileKey    = 3 // encryption key derivation
	hashKey2Mix    = 4 // second key mix window, used by the cipher seed
)

// cryptTable is the 1280-word scrambling table shared by the stream cipher and
// the filename hashes. It is fully deterministic: a linear-congruential schedule
// seeded at 0x00100001, five passes over 256 slots.
var cryptTable = func() [0x500]uint32 {
	var table [0x500]uint32
	seed := uint32(0x00100001)

	for index1 := 0; index1 < 0x100; index1++ {
		index2 := index1
		for i := 0; i < 5; i++ {
			seed = (seed*125 + 3) % 0x2AAAAB
			temp1 := (seed & 0xFFFF) << 0x10

			seed = (seed*125 + 3) % 0x2AAAAB
			temp2 := seed & 0xFFFF

			table[index2] = temp1 | temp2
			index2 += 0x100
		}
	}

	return table
}()

// asciiUpper maps a byte to upper case, identity outside a-z.
var asciiUpper = func() [256]byte {
	var t [256]byte
	for i := range t {
		c := byte(i)
		if c >= 'a' && c <= 'z' {
			c -= 0x20
		}
		t[i] = c
	}
	return t
}()

// asciiLower maps a byte to lower case, identity outside A-Z.
var asciiLower = func() [256]byte {
	var t [256]byte
	for i := range t {
		c := byte(i)
		if c >= 'A' && c <= 'Z' {
			c += 0x20
		}
		t[i] = c
	}
	return t
}()

// hashName computes the MPQ hash of an archive path. Forward slashes fold to
// backslashes before the case fold; both transforms happen per byte, in that
// order.
func hashName(name string, variant uint32) uint32 {
	seed1 := uint32(0x7FED7FED)
	seed2 := uint32(0xEEEEEEEE)

	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch == '/' {
			ch = '\\'
		}
		ch = asciiUpper[ch]

		seed1 = cryptTable[variant*0x100+uint32(ch)] ^ (seed1 + seed2)
		seed2 = uint32(ch) + seed1 + seed2 + (seed2 << 5) + 3
	}

	return seed1
}

// Table encryption keys are fixed hashes of the literal table names.
var (
	hashTableKey  = hashName("(hash table)", hashFileKey)
	blockTableKey = hashName("(block table)", hashFileKey)
)

// encryptBlock encrypts a block of 32-bit words in place.
func encryptBlock(data []uint32, key uint32) {
	seed := uint32(0xEEEEEEEE)

	for i := range data {
		seed += cryptTable[0x400+(key&0xFF)]
		plain := data[i]
		data[i] = plain ^ (key + seed)
		key = ((^key << 0x15) + 0x11111111) | (key >> 0x0B)
		seed = plain + seed + (seed << 5) + 3
	}
}

// decryptBlock decrypts a block of 32-bit words in place.
//
// The seed update uses the decrypted word, which makes the routine the exact
// inverse of encryptBlock under the same key.
func decryptBlock(data []uint32, key uint32) {
	seed := uint32(0xEEEEEEEE)

	for i := range data {
		seed += cryptTable[0x400+(key&0xFF)]
		plain := data[i] ^ (key + seed)
		data[i] = plain
		key = ((^key << 0x15) + 0x11111111) | (key >> 0x0B)
		seed = plain + seed + (seed << 5) + 3
	}
}

// encryptBytes encrypts a byte slice in place as little-endian 32-bit words.
// A tail shorter than 4 bytes is processed as a zero-padded final word; only
// the real bytes are written back.
func encryptBytes(data []byte, key uint32) {
	cryptBytes(data, key, encryptBlock)
}

// decryptBytes decrypts a byte slice in place as little-endian 32-bit words.
func decryptBytes(data []byte, key uint32) {
	cryptBytes(data, key, decryptBlock)
}

// decryptBytesStrict decrypts and fails when the payload length is not a
// multiple of 4, for callers that demanded strict framing.
func decryptBytesStrict(data []byte, key uint32) error {
	if len(data)%4 != 0 {
		return fmt.Errorf("%w: %d bytes", ErrDecryptSize, len(data))
	}

	decryptBytes(data, key)
	return nil
}

// cryptBytes runs one cipher direction over a byte slice in place.
func cryptBytes(data []byte, key uint32, dir func([]uint32, uint32)) {
	full := len(data) / 4
	words := make([]uint32, full, full+1)
	for i := 0; i < full; i++ {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}

	tail := len(data) - full*4
	if tail > 0 {
		var last [4]byte
		copy(last[:], data[full*4:])
		words = append(words, binary.LittleEndian.Uint32(last[:]))
	}

	dir(words, key)

	for i := 0; i < full; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], words[i])
	}
	if tail > 0 {
		var last [4]byte
		binary.LittleEndian.PutUint32(last[:], words[full])
		copy(data[full*4:], last[:tail])
	}
}

// fileKey derives the encryption key for a file from its base name. With
// fix-key the key is adjusted by the low 32 bits of the file position even
// when the full position is 48 bits.
func fileKey(name string, filePos uint64, fileSize uint32, flags uint32) uint32 {
	key := hashName(baseName(name), hashFileKey)

	if flags&FlagFixKey != 0 {
		key = (key + uint32(filePos)) ^ fileSize
	}

	return key
}
