// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"container/heap"
	"encoding/binary"
	"fmt"
)

// Huffman stream layout: a 1024-byte little-endian symbol frequency table,
// a 32-bit compressed byte count, a 32-bit original byte count, then the
// LSB-first code bitstream. The decoder rebuilds the identical tree from the
// frequency table; tree construction ties break on insertion order so that
// encode and decode agree bit-exactly.
const huffmanHeaderSize = 256*4 + 8

type huffNode struct {
	symbol      byte
	leaf        bool
	left, right *huffNode
}

type huffItem struct {
	weight uint64
	order  int
	node   *huffNode
}

type huffHeap []huffItem

func (h huffHeap) Len() int { return len(h) }
func (h huffHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}
	return h[i].order < h[j].order
}
func (h huffHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *huffHeap) Push(x any)   { *h = append(*h, x.(huffItem)) }
func (h *huffHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// buildHuffmanTree builds the prefix tree from a frequency table. Leaves
// enter in symbol order; internal nodes take increasing orders after 255.
func buildHuffmanTree(freq *[256]uint32) (*huffNode, error) {
	h := make(huffHeap, 0, 256)
	for sym, f := range freq {
		if f > 0 {
			h = append(h, huffItem{
				weight: uint64(f),
				order:  sym,
				node:   &huffNode{symbol: byte(sym), leaf: true},
			})
		}
	}

	if len(h) == 0 {
		return nil, fmt.Errorf("%w: empty Huffman frequency table", ErrCorruptData)
	}

	heap.Init(&h)
	order := 256

	for h.Len() > 1 {
		left := heap.Pop(&h).(huffItem)
		right := heap.Pop(&h).(huffItem)

		heap.Push(&h, huffItem{
			weight: left.weight + right.weight,
			order:  order,
			node:   &huffNode{left: left.node, right: right.node},
		})
		order++
	}

	return h[0].node, nil
}

// huffmanCodes flattens the tree into per-symbol bit sequences; left is 0.
func huffmanCodes(root *huffNode) [256][]bool {
	var table [256][]bool
	var walk func(n *huffNode, code []bool)

	walk = func(n *huffNode, code []bool) {
		if n.leaf {
			table[n.symbol] = append([]bool(nil), code...)
			return
		}
		walk(n.left, append(code, false))
		walk(n.right, append(code, true))
	}

	walk(root, nil)
	return table
}

// huffmanCompress encodes data as a frequency-table Huffman stream.
func huffmanCompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty Huffman input", ErrCorruptData)
	}

	var freq [256]uint32
	for _, b := range data {
		freq[b]++
	}

	root, err := buildHuffmanTree(&freq)
	if err != nil {
		return nil, err
	}
	codes := huffmanCodes(root)

	var bitCount uint64
	for _, b := range data {
		bitCount += uint64(len(codes[b]))
	}
	byteCount := (bitCount + 7) / 8

	out := make([]byte, huffmanHeaderSize, huffmanHeaderSize+byteCount)
	for sym, f := range freq {
		binary.LittleEndian.PutUint32(out[sym*4:], f)
	}
	binary.LittleEndian.PutUint32(out[1024:], uint32(byteCount))
	binary.LittleEndian.PutUint32(out[1028:], uint32(len(data)))

	var cur byte
	var used uint
	for _, b := range data {
		for _, bit := range codes[b] {
			if bit {
				cur |= 1 << used
			}
			used++
			if used == 8 {
				out = append(out, cur)
				cur, used = 0, 0
			}
		}
	}
	if used > 0 {
		out = append(out, cur)
	}

	return out, nil
}

// huffmanDecompress decodes a frequency-table Huffman stream.
func huffmanDecompress(data []byte) ([]byte, error) {
	if len(data) < huffmanHeaderSize {
		return nil, fmt.Errorf("%w: Huffman header truncated at %d bytes", ErrCorruptData, len(data))
	}

	var freq [256]uint32
	for sym := range freq {
		freq[sym] = binary.LittleEndian.Uint32(data[sym*4:])
	}
	originalSize := int(binary.LittleEndian.Uint32(data[1028:]))

	root, err := buildHuffmanTree(&freq)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, originalSize)

	// Single-symbol stream: the root is a leaf and codes are zero bits wide.
	if root.leaf {
		for len(out) < originalSize {
			out = append(out, root.symbol)
		}
		return out, nil
	}

	node := root
	for _, b := range data[huffmanHeaderSize:] {
		for bit := 0; bit < 8 && len(out) < originalSize; bit++ {
			if b&(1<<bit) != 0 {
				node = node.right
			} else {
				node = node.left
			}

			if node.leaf {
				out = append(out, node.symbol)
				node = root
			}
		}
		if len(out) >= originalSize {
			break
		}
	}

	if len(out) != originalSize {
		return nil, fmt.Errorf("%w: Huffman stream ended at %d of %d bytes", ErrCorruptData, len(out), originalSize)
	}

	return out, nil
}
