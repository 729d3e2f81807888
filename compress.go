// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"bytes"
	"fmt"
	"io"

	"github.com/JoshVarga/blast"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"
	"github.com/ulikunitz/xz/lzma"
)

// compressKnownMask is every codec bit the dispatcher understands.
const compressKnownMask = CompressHuffman | CompressZlib | CompressPKWare |
	CompressBzip2 | CompressSparse | CompressADPCMMono | CompressADPCMStereo

// decompressPayload decodes one compressed sector or single unit whose first
// byte is the compression mask. The decoders run in reverse of the apply
// order: sparse, then the primary codec, then Huffman, then ADPCM. The result
// must be exactly expected bytes long.
func decompressPayload(raw []byte, expected int) ([]byte, error) {
	if len(raw) == 0 {
		if expected == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: empty payload", ErrCorruptData)
	}

	mask := raw[0]
	out, err := decodeMask(mask, raw[1:], expected)
	if err != nil {
		return nil, err
	}

	if len(out) != expected {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrCorruptData, len(out), expected)
	}

	return out, nil
}

// decodeMask runs the decoder stack named by mask over body.
func decodeMask(mask byte, body []byte, expected int) ([]byte, error) {
	if mask == 0 {
		return body, nil
	}

	// LZMA's byte is a sentinel, not a bit combination.
	if mask == CompressLZMA {
		return lzmaDecompress(body, expected)
	}

	if mask&^byte(compressKnownMask) != 0 {
		return nil, fmt.Errorf("%w: mask 0x%02X", ErrUnsupportedCompression, mask)
	}

	out := body
	var err error

	if mask&CompressSparse != 0 {
		if out, err = sparseDecompress(out); err != nil {
			return nil, err
		}
	}
	if mask&CompressBzip2 != 0 {
		if out, err = bzip2Decompress(out, expected); err != nil {
			return nil, err
		}
	}
	if mask&CompressPKWare != 0 {
		if out, err = pkwareDecompress(out, expected); err != nil {
			return nil, err
		}
	}
	if mask&CompressZlib != 0 {
		if out, err = zlibDecompress(out, expected); err != nil {
			return nil, err
		}
	}
	if mask&CompressHuffman != 0 {
		if out, err = huffmanDecompress(out); err != nil {
			return nil, err
		}
	}
	switch {
	case mask&CompressADPCMStereo != 0:
		if out, err = adpcmDecompress(out, expected, 2); err != nil {
			return nil, err
		}
	case mask&CompressADPCMMono != 0:
		if out, err = adpcmDecompress(out, expected, 1); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// encodeMask runs the encoder stack named by mask over data, innermost codec
// first: ADPCM, then Huffman, then the primary codec, then sparse. The mask
// byte is NOT prepended; the write path decides verbatim-vs-compressed by
// length and owns the prefix.
func encodeMask(mask byte, data []byte) ([]byte, error) {
	if err := validateCompressionMask(mask); err != nil {
		return nil, err
	}

	if mask == 0 {
		return data, nil
	}
	if mask == CompressLZMA {
		return lzmaCompress(data)
	}

	out := data
	var err error

	switch {
	case mask&CompressADPCMStereo != 0:
		if out, err = adpcmCompress(out, 2); err != nil {
			return nil, err
		}
	case mask&CompressADPCMMono != 0:
		if out, err = adpcmCompress(out, 1); err != nil {
			return nil, err
		}
	}
	if mask&CompressHuffman != 0 {
		if out, err = huffmanCompress(out); err != nil {
			return nil, err
		}
	}
	if mask&CompressZlib != 0 {
		if out, err = zlibCompress(out); err != nil {
			return nil, err
		}
	}
	if mask&CompressPKWare != 0 {
		if out, err = pkwareCompress(out); err != nil {
			return nil, err
		}
	}
	if mask&CompressBzip2 != 0 {
		if out, err = bzip2Compress(out); err != nil {
			return nil, err
		}
	}
	if mask&CompressSparse != 0 {
		if out, err = sparseCompress(out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// validateCompressionMask enforces the producible codec stacks: one primary
// codec alone, ADPCM paired with zlib, PKWARE or Huffman, and sparse wrapping
// any of those. Everything else is rejected at build time.
func validateCompressionMask(mask byte) error {
	if mask == 0 || mask == CompressLZMA {
		return nil
	}

	if mask&^byte(compressKnownMask) != 0 {
		return fmt.Errorf("%w: mask 0x%02X", ErrUnsupportedCompression, mask)
	}

	adpcm := mask & (CompressADPCMMono | CompressADPCMStereo)
	if adpcm == CompressADPCMMono|CompressADPCMStereo {
		return fmt.Errorf("%w: both ADPCM variants in mask 0x%02X", ErrUnsupportedCompression, mask)
	}

	inner := mask &^ byte(CompressSparse|CompressADPCMMono|CompressADPCMStereo)

	if adpcm != 0 {
		switch inner {
		case CompressZlib, CompressPKWare, CompressHuffman:
			return nil
		default:
			return fmt.Errorf("%w: ADPCM pairs only with zlib, PKWARE or Huffman (mask 0x%02X)",
				ErrUnsupportedCompression, mask)
		}
	}

	switch inner {
	case 0:
		// Only sparse remains; bare sparse is a valid single codec.
		return nil
	case CompressZlib, CompressPKWare, CompressBzip2, CompressHuffman:
		return nil
	default:
		return fmt.Errorf("%w: codec stack 0x%02X", ErrUnsupportedCompression, mask)
	}
}

// zlibCompress encodes a zlib stream at the best level.
func zlibCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("zlib write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}

	return buf.Bytes(), nil
}

// zlibDecompress decodes a zlib stream.
func zlibDecompress(data []byte, sizeHint int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrCorruptData, err)
	}
	defer func() { _ = r.Close() }()

	return readAllHint(r, sizeHint)
}

// bzip2Compress encodes a bzip2 stream at the best level.
func bzip2Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return nil, fmt.Errorf("bzip2 writer: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("bzip2 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("bzip2 close: %w", err)
	}

	return buf.Bytes(), nil
}

// bzip2Decompress decodes a bzip2 stream.
func bzip2Decompress(data []byte, sizeHint int) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2: %v", ErrCorruptData, err)
	}
	defer func() { _ = r.Close() }()

	return readAllHint(r, sizeHint)
}

// lzmaCompress encodes a classic .lzma stream.
func lzmaCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("lzma writer: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lzma write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lzma close: %w", err)
	}

	return buf.Bytes(), nil
}

// lzmaDecompress decodes a classic .lzma stream.
func lzmaDecompress(data []byte, sizeHint int) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: lzma: %v", ErrCorruptData, err)
	}

	return readAllHint(r, sizeHint)
}

// pkwareCompress encodes a PKWARE DCL imploded stream (binary mode, 4 KiB
// dictionary).
func pkwareCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := blast.NewWriter(&buf, blast.Binary, blast.DictionarySize4096)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("implode write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("implode close: %w", err)
	}

	return buf.Bytes(), nil
}

// pkwareDecompress decodes a PKWARE DCL imploded stream.
func pkwareDecompress(data []byte, sizeHint int) ([]byte, error) {
	r, err := blast.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: explode: %v", ErrCorruptData, err)
	}
	defer func() { _ = r.Close() }()

	return readAllHint(r, sizeHint)
}

// readAllHint drains a decoder with a preallocation hint and classifies
// stream errors as corrupt data.
func readAllHint(r io.Reader, sizeHint int) ([]byte, error) {
	if sizeHint < 0 {
		sizeHint = 0
	}

	buf := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	return buf.Bytes(), nil
}
