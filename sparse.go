// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import "fmt"

// Sparse/RLE stream: a control byte either names a literal run (0x01..0x7F,
// bytes follow), a zero-fill run (0x80 | count), or ends the stream (0xFF).
const (
	sparseEndMarker  = 0xFF
	sparseZeroFlag   = 0x80
	sparseMaxLiteral = 0x7F
	// sparseMaxZeroRun stays below 0x7F so a zero-run control can never
	// collide with the end marker.
	sparseMaxZeroRun = 0x7E
)

// sparseCompress encodes alternating literal and zero-fill runs.
func sparseCompress(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data)/2+2)
	pos := 0

	for pos < len(data) {
		zeroStart := pos
		for pos < len(data) && data[pos] == 0 {
			pos++
		}

		zeroCount := pos - zeroStart
		for zeroCount > 0 {
			chunk := zeroCount
			if chunk > sparseMaxZeroRun {
				chunk = sparseMaxZeroRun
			}
			out = append(out, byte(sparseZeroFlag|chunk))
			zeroCount -= chunk
		}

		litStart := pos
		for pos < len(data) && data[pos] != 0 && pos-litStart < sparseMaxLiteral {
			pos++
		}

		if pos > litStart {
			out = append(out, byte(pos-litStart))
			out = append(out, data[litStart:pos]...)
		}
	}

	return append(out, sparseEndMarker), nil
}

// sparseDecompress decodes a sparse stream up to its end marker or the end of
// input. The caller validates the final length.
func sparseDecompress(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data)*2)
	pos := 0

	for pos < len(data) {
		control := data[pos]
		pos++

		if control == sparseEndMarker {
			break
		}

		if control&sparseZeroFlag != 0 {
			count := int(control & 0x7F)
			out = append(out, make([]byte, count)...)
			continue
		}

		count := int(control)
		if pos+count > len(data) {
			return nil, fmt.Errorf("%w: sparse literal run past end of input", ErrCorruptData)
		}
		out = append(out, data[pos:pos+count]...)
		pos += count
	}

	return out, nil
}
