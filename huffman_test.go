// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"bytes"
	"testing"
)

func TestHuffmanRoundTrip(t *testing.T) {
	t.Parallel()

	cases := [][]byte{
		[]byte("This is a test of Huffman coding. It should decode back to the original."),
		bytes.Repeat([]byte("aaaaabbbbcccdde"), 100),
		bytes.Repeat([]byte{0}, 99),
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{42},
	}

	for i, original := range cases {
		compressed, err := huffmanCompress(original)
		if err != nil {
			t.Fatalf("case %d: compress: %v", i, err)
		}

		decompressed, err := huffmanDecompress(compressed)
		if err != nil {
			t.Fatalf("case %d: decompress: %v", i, err)
		}
		if !bytes.Equal(decompressed, original) {
			t.Fatalf("case %d: round trip mismatch", i)
		}
	}
}

func TestHuffmanSingleSymbol(t *testing.T) {
	t.Parallel()

	original := bytes.Repeat([]byte{'x'}, 1000)

	compressed, err := huffmanCompress(original)
	if err != nil {
		t.Fatal(err)
	}

	// One symbol has a zero-width code; the stream is just the header.
	if len(compressed) != huffmanHeaderSize {
		t.Fatalf("single-symbol stream is %d bytes, want %d", len(compressed), huffmanHeaderSize)
	}

	decompressed, err := huffmanDecompress(compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Fatal("round trip mismatch")
	}
}

func TestHuffmanDeterministic(t *testing.T) {
	t.Parallel()

	data := []byte("deterministic tie-breaking: equal weights resolve by symbol order")

	a, err := huffmanCompress(data)
	if err != nil {
		t.Fatal(err)
	}
	b, err := huffmanCompress(data)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("two encodings of the same input differ")
	}
}

func TestHuffmanTruncated(t *testing.T) {
	t.Parallel()

	if _, err := huffmanDecompress(make([]byte, 100)); err == nil {
		t.Fatal("expected error for truncated header")
	}

	if _, err := huffmanCompress(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
