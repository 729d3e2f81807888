// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"encoding/binary"
	"fmt"
)

// extTableHeaderSize is the 12-byte prefix shared by HET and BET tables:
// magic, version, uncompressed body size. The prefix is stored in the clear;
// the body after it may be zlib-compressed and is always encrypted.
const extTableHeaderSize = 12

// hetHeaderSize is the fixed header inside the HET body.
const hetHeaderSize = 32

// hetTable is the extended hash table: a bucket array of truncated Jenkins
// hashes and a parallel bit-packed file index array. Open addressing with
// linear probing; an all-ones bucket is empty.
type hetTable struct {
	// maxFileCount bounds valid file indices.
	maxFileCount uint32
	// hashEntrySize is the truncated hash width in bits.
	hashEntrySize uint32
	// indexSize is the file index width in bits.
	indexSize uint32
	// buckets holds one truncated hash per slot, byte-addressed.
	buckets []byte
	// indexes is the bit-packed file index array, one entry per bucket.
	indexes *bitArray
}

// hetBucketBytes is the byte width of one bucket for the configured hash size.
func (t *hetTable) hetBucketBytes() uint32 {
	return (t.hashEntrySize + 7) / 8
}

// bucketCount returns the number of hash slots.
func (t *hetTable) bucketCount() uint32 {
	return uint32(len(t.buckets)) / t.hetBucketBytes()
}

// hashMask is the all-ones value of hashEntrySize bits, which also marks an
// empty bucket.
func (t *hetTable) hashMask() uint64 {
	if t.hashEntrySize >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<t.hashEntrySize - 1
}

// indexEmpty is the all-ones sentinel of indexSize bits.
func (t *hetTable) indexEmpty() uint64 {
	if t.indexSize >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<t.indexSize - 1
}

// nameHash truncates a Jenkins hash to the bucket width, stepping off the
// empty marker so a stored hash can never read as a free slot.
func (t *hetTable) nameHash(hash uint64) uint64 {
	truncated := hash & t.hashMask()
	if truncated == t.hashMask() {
		truncated--
	}
	return truncated
}

// bucket returns the truncated hash stored in slot i.
func (t *hetTable) bucket(i uint32) uint64 {
	width := t.hetBucketBytes()
	var v uint64
	for b := uint32(0); b < width; b++ {
		v |= uint64(t.buckets[i*width+b]) << (8 * b)
	}
	return v & t.hashMask()
}

// setBucket stores a truncated hash into slot i.
func (t *hetTable) setBucket(i uint32, v uint64) {
	width := t.hetBucketBytes()
	for b := uint32(0); b < width; b++ {
		t.buckets[i*width+b] = byte(v >> (8 * b))
	}
}

// lookup probes for a name and returns its file index. Probing stops at an
// empty bucket or after one full revolution. A non-nil verify callback
// rejects candidates whose truncated hash collides with another name's, and
// the probe continues past them.
func (t *hetTable) lookup(name string, verify func(uint32) bool) (uint32, bool) {
	count := t.bucketCount()
	if count == 0 {
		return 0, false
	}

	hash := t.nameHash(hashJenkins(name))
	start := uint32(hash % uint64(count))

	for i := uint32(0); i < count; i++ {
		slot := (start + i) % count

		stored := t.bucket(slot)
		if stored == t.hashMask() {
			return 0, false
		}
		if stored != hash {
			continue
		}

		index := t.indexes.extract(uint64(slot)*uint64(t.indexSize), uint64(t.indexSize))
		if index == t.indexEmpty() || index >= uint64(t.maxFileCount) {
			continue
		}
		if verify != nil && !verify(uint32(index)) {
			continue
		}
		return uint32(index), true
	}

	return 0, false
}

// insert places a name's file index by linear probing from its natural slot.
func (t *hetTable) insert(name string, fileIndex uint32) error {
	count := t.bucketCount()
	hash := t.nameHash(hashJenkins(name))
	start := uint32(hash % uint64(count))

	for i := uint32(0); i < count; i++ {
		slot := (start + i) % count
		if t.bucket(slot) != t.hashMask() {
			continue
		}

		t.setBucket(slot, hash)
		t.indexes.put(uint64(slot)*uint64(t.indexSize), uint64(t.indexSize), uint64(fileIndex))
		return nil
	}

	return fmt.Errorf("%w: HET bucket array full", ErrHashTableFull)
}

// newHetTable sizes an empty table for fileCount members. Buckets hold
// 32-bit truncated hashes; the index width is the smallest that keeps the
// all-ones sentinel distinct from every valid index.
func newHetTable(fileCount uint32) *hetTable {
	bucketCount := nextPowerOf2(fileCount + fileCount/3)
	if bucketCount < minHashCapacity {
		bucketCount = minHashCapacity
	}

	t := &hetTable{
		maxFileCount:  fileCount,
		hashEntrySize: 32,
		indexSize:     uint32(bitsFor(uint64(fileCount))),
	}
	t.buckets = make([]byte, bucketCount*t.hetBucketBytes())
	for i := range t.buckets {
		t.buckets[i] = 0xFF
	}
	t.indexes = newBitArray(uint64(bucketCount) * uint64(t.indexSize))
	for i := uint32(0); i < bucketCount; i++ {
		t.indexes.put(uint64(i)*uint64(t.indexSize), uint64(t.indexSize), t.indexEmpty())
	}

	return t
}

// marshal serializes, optionally compresses, and encrypts the table.
func (t *hetTable) marshal() []byte {
	indexBytes := t.indexes.data
	body := make([]byte, hetHeaderSize+len(t.buckets)+len(indexBytes))

	binary.LittleEndian.PutUint32(body[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(body[4:8], t.maxFileCount)
	binary.LittleEndian.PutUint32(body[8:12], uint32(len(t.buckets)))
	binary.LittleEndian.PutUint32(body[12:16], t.hashEntrySize)
	binary.LittleEndian.PutUint32(body[16:20], uint32(t.bucketCount())*t.indexSize)
	binary.LittleEndian.PutUint32(body[20:24], 0)
	binary.LittleEndian.PutUint32(body[24:28], t.indexSize)
	binary.LittleEndian.PutUint32(body[28:32], uint32(len(indexBytes)))
	copy(body[hetHeaderSize:], t.buckets)
	copy(body[hetHeaderSize+len(t.buckets):], indexBytes)

	return marshalExtTable(magicHet, body, hashTableKey)
}

// parseHetTable decodes a HET table read from disk.
func parseHetTable(raw []byte) (*hetTable, error) {
	body, err := openExtTable(raw, magicHet, hashTableKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHetTable, err)
	}
	if len(body) < hetHeaderSize {
		return nil, fmt.Errorf("%w: body %d bytes", ErrCorruptHetTable, len(body))
	}

	t := &hetTable{
		maxFileCount:  binary.LittleEndian.Uint32(body[4:8]),
		hashEntrySize: binary.LittleEndian.Uint32(body[12:16]),
		indexSize:     binary.LittleEndian.Uint32(body[24:28]),
	}

	hashBytes := binary.LittleEndian.Uint32(body[8:12])
	indexBytes := binary.LittleEndian.Uint32(body[28:32])

	if t.hashEntrySize == 0 || t.hashEntrySize > 64 || t.indexSize == 0 || t.indexSize > 64 {
		return nil, fmt.Errorf("%w: hash width %d, index width %d", ErrCorruptHetTable, t.hashEntrySize, t.indexSize)
	}
	if uint64(hetHeaderSize)+uint64(hashBytes)+uint64(indexBytes) > uint64(len(body)) {
		return nil, fmt.Errorf("%w: declared %d+%d bytes in %d byte body",
			ErrCorruptHetTable, hashBytes, indexBytes, len(body))
	}
	if width := (t.hashEntrySize + 7) / 8; width == 0 || hashBytes%width != 0 {
		return nil, fmt.Errorf("%w: bucket array %d bytes for %d-bit entries", ErrCorruptHetTable, hashBytes, t.hashEntrySize)
	}

	t.buckets = body[hetHeaderSize : hetHeaderSize+hashBytes]
	t.indexes = &bitArray{data: body[hetHeaderSize+hashBytes : hetHeaderSize+hashBytes+indexBytes]}

	return t, nil
}

// marshalExtTable wraps a table body with the clear 12-byte prefix,
// compressing the body with zlib when that shrinks it and encrypting the
// result under the table key. The prefix records the uncompressed body size;
// readers detect compression by comparing it with the stored size.
func marshalExtTable(magic uint32, body []byte, key uint32) []byte {
	stored := body
	if packed, err := zlibCompress(body); err == nil && len(packed)+1 < len(body) {
		stored = append([]byte{CompressZlib}, packed...)
	}

	out := make([]byte, extTableHeaderSize+len(stored))
	binary.LittleEndian.PutUint32(out[0:4], magic)
	binary.LittleEndian.PutUint32(out[4:8], 1)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(body)))
	copy(out[extTableHeaderSize:], stored)

	encryptBytes(out[extTableHeaderSize:], key)
	return out
}

// openExtTable validates the prefix, decrypts the body, and inflates it when
// the declared size exceeds the stored size.
func openExtTable(raw []byte, magic uint32, key uint32) ([]byte, error) {
	if len(raw) < extTableHeaderSize {
		return nil, fmt.Errorf("table shorter than its header: %d bytes", len(raw))
	}
	if binary.LittleEndian.Uint32(raw[0:4]) != magic {
		return nil, fmt.Errorf("bad table magic 0x%08X", binary.LittleEndian.Uint32(raw[0:4]))
	}
	if v := binary.LittleEndian.Uint32(raw[4:8]); v != 1 {
		return nil, fmt.Errorf("unsupported table version %d", v)
	}

	dataSize := binary.LittleEndian.Uint32(raw[8:12])
	body := make([]byte, len(raw)-extTableHeaderSize)
	copy(body, raw[extTableHeaderSize:])
	decryptBytes(body, key)

	if uint32(len(body)) >= dataSize {
		return body[:dataSize], nil
	}

	if len(body) < 2 {
		return nil, fmt.Errorf("compressed body truncated")
	}
	out, err := decodeMask(body[0], body[1:], int(dataSize))
	if err != nil {
		return nil, err
	}
	if uint32(len(out)) != dataSize {
		return nil, fmt.Errorf("inflated body %d bytes, want %d", len(out), dataSize)
	}

	return out, nil
}

// nextPowerOf2 returns the smallest power of 2 >= n.
func nextPowerOf2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}
