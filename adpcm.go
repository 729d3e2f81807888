// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"encoding/binary"
	"fmt"
)

// IMA ADPCM for 16-bit PCM audio. Lossy: each sample after the first is a
// 4-bit delta against an adaptive predictor. The stereo variant interleaves
// per-sample nibbles between the two channels.
//
// Stream layout: per channel a 4-byte state record (initial sample as
// little-endian int16, step index byte, reserved zero byte), then the nibble
// stream, two nibbles per byte, low nibble first.

var adpcmIndexTable = [16]int{
	-1, -1, -1, -1, 2, 4, 6, 8,
	-1, -1, -1, -1, 2, 4, 6, 8,
}

var adpcmStepTable = [89]int32{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17,
	19, 21, 23, 25, 28, 31, 34, 37, 41, 45,
	50, 55, 60, 66, 73, 80, 88, 97, 107, 118,
	130, 143, 157, 173, 190, 209, 230, 253, 279, 307,
	337, 371, 408, 449, 494, 544, 598, 658, 724, 796,
	876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066,
	2272, 2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358,
	5894, 6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899,
	15289, 16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

// adpcmChannel is the codec state of one audio channel.
type adpcmChannel struct {
	predictor int32
	stepIndex int
}

// encodeNibble quantizes one sample delta and advances the channel state the
// same way the decoder will, keeping both sides in lockstep.
func (c *adpcmChannel) encodeNibble(sample int32) byte {
	step := adpcmStepTable[c.stepIndex]
	diff := sample - c.predictor

	var nibble byte
	if diff < 0 {
		nibble = 8
		diff = -diff
	}

	if diff >= step {
		nibble |= 4
		diff -= step
	}
	if diff >= step>>1 {
		nibble |= 2
		diff -= step >> 1
	}
	if diff >= step>>2 {
		nibble |= 1
	}

	c.decodeNibble(nibble)
	return nibble
}

// decodeNibble reconstructs one sample from a 4-bit delta.
func (c *adpcmChannel) decodeNibble(nibble byte) int32 {
	step := adpcmStepTable[c.stepIndex]

	diff := step >> 3
	if nibble&4 != 0 {
		diff += step
	}
	if nibble&2 != 0 {
		diff += step >> 1
	}
	if nibble&1 != 0 {
		diff += step >> 2
	}
	if nibble&8 != 0 {
		diff = -diff
	}

	c.predictor += diff
	if c.predictor > 32767 {
		c.predictor = 32767
	} else if c.predictor < -32768 {
		c.predictor = -32768
	}

	c.stepIndex += adpcmIndexTable[nibble]
	if c.stepIndex < 0 {
		c.stepIndex = 0
	} else if c.stepIndex >= len(adpcmStepTable) {
		c.stepIndex = len(adpcmStepTable) - 1
	}

	return c.predictor
}

// adpcmCompress encodes 16-bit little-endian PCM samples.
func adpcmCompress(data []byte, channels int) ([]byte, error) {
	frame := 2 * channels
	if len(data) == 0 || len(data)%frame != 0 {
		return nil, fmt.Errorf("%w: ADPCM needs whole 16-bit frames, got %d bytes for %d channels",
			ErrUnsupportedCompression, len(data), channels)
	}

	total := len(data) / 2
	state := make([]adpcmChannel, channels)
	out := make([]byte, 4*channels, 4*channels+(total-channels+1)/2)

	for ch := 0; ch < channels; ch++ {
		first := int16(binary.LittleEndian.Uint16(data[ch*2:]))
		state[ch] = adpcmChannel{predictor: int32(first)}
		binary.LittleEndian.PutUint16(out[ch*4:], uint16(first))
		out[ch*4+2] = 0
		out[ch*4+3] = 0
	}

	var cur byte
	var half bool
	for i := channels; i < total; i++ {
		ch := i % channels
		sample := int32(int16(binary.LittleEndian.Uint16(data[i*2:])))
		nibble := state[ch].encodeNibble(sample)

		if !half {
			cur = nibble
			half = true
		} else {
			out = append(out, cur|nibble<<4)
			half = false
		}
	}
	if half {
		out = append(out, cur)
	}

	return out, nil
}

// adpcmDecompress decodes to exactly expected bytes of 16-bit PCM.
func adpcmDecompress(data []byte, expected, channels int) ([]byte, error) {
	frame := 2 * channels
	if expected == 0 {
		return nil, nil
	}
	if expected%frame != 0 {
		return nil, fmt.Errorf("%w: ADPCM output size %d is not whole frames", ErrCorruptData, expected)
	}
	if len(data) < 4*channels {
		return nil, fmt.Errorf("%w: ADPCM header truncated", ErrCorruptData)
	}

	total := expected / 2
	state := make([]adpcmChannel, channels)
	out := make([]byte, expected)

	for ch := 0; ch < channels; ch++ {
		first := int16(binary.LittleEndian.Uint16(data[ch*4:]))
		state[ch] = adpcmChannel{
			predictor: int32(first),
			stepIndex: int(data[ch*4+2]),
		}
		if state[ch].stepIndex >= len(adpcmStepTable) {
			return nil, fmt.Errorf("%w: ADPCM step index %d", ErrCorruptData, state[ch].stepIndex)
		}
		binary.LittleEndian.PutUint16(out[ch*2:], uint16(first))
	}

	nibbles := data[4*channels:]
	for i := channels; i < total; i++ {
		pos := i - channels
		if pos/2 >= len(nibbles) {
			return nil, fmt.Errorf("%w: ADPCM stream ended at sample %d of %d", ErrCorruptData, i, total)
		}

		nibble := nibbles[pos/2]
		if pos%2 != 0 {
			nibble >>= 4
		}
		nibble &= 0x0F

		sample := state[i%channels].decodeNibble(nibble)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sample)))
	}

	return out, nil
}
