// https://github.com/Sewer56/dlang-prs
package prs

import "errors"

var ErrCorrupt = errors.New("prs: corrupt input")

type decompressor struct {
	// bitPos is the position we are reading from the controlByte.
	bitPos      int
	controlByte byte

	srcPos int
	src    []byte

	dst []byte

	// dstSize is incremented every time dst would be added to
	dstSize int

	// disabled for size-only scans so the output is never materialized
	copy bool
}

// newDecompressor is a type built to support decompressing a PRS file.
// The controlByte starts at the first byte, and bitPos starts at 8,
// indicating we can shift the controlByte 8 times before we need a new one.
//
// The srcPos starts at 1 because we exclude the first control byte.
func newDecompressor(src []byte, size int, copy bool) *decompressor {
	return &decompressor{
		controlByte: src[0],
		bitPos:      8,
		src:         src,
		srcPos:      1,
		copy:        copy,
		dst:         make([]byte, 0, size),
	}
}

// decompress expands a PRS compressed file
func (d *decompressor) decompress() ([]byte, error) {
	for {
		bit, err := d.getNextBit()
		if err != nil {
			return nil, err
		}
		if bit == 1 {
			if err := d.copyCurrentByte(); err != nil {
				return nil, err
			}
			continue
		}

		if bit, err = d.getNextBit(); err != nil {
			return nil, err
		}
		if bit == 1 {
			b0, err := d.getNextByte()
			if err != nil {
				return nil, err
			}
			b1, err := d.getNextByte()
			if err != nil {
				return nil, err
			}
			offset := int(b0) | (int(b1) << 8)
			if offset == 0 {
				return d.dst, nil
			}

			length := (offset & 0b111) + 2
			offset = (offset >> 3) | -0x2000

			if length == 2 {
				b, err := d.getNextByte()
				if err != nil {
					return nil, err
				}
				length = int(b) + 1
			}
			for i := 0; i < length; i++ {
				if err := d.copyFromOffset(offset); err != nil {
					return nil, err
				}
			}
		} else {
			// Length is encoded using 2 bits so the length will be between 0 and 3.
			// When it is encoded, 2 is subtracted from the length so the actual
			// length will be between 2 and 5 inclusive.
			hi, err := d.getNextBit()
			if err != nil {
				return nil, err
			}
			lo, err := d.getNextBit()
			if err != nil {
				return nil, err
			}
			length := int((hi<<1)|lo) + 2

			// The offset is encoded in the next byte, as 256 - positive offset.
			// ex: offset of 5
			// 256 - (-5 * -1) = 251
			// We'll decode that by:
			// 256 - 251 = 5
			// 5 * -1 = -5
			b, err := d.getNextByte()
			if err != nil {
				return nil, err
			}
			offset := int(b) | -0x100
			for i := 0; i < length; i++ {
				if err := d.copyFromOffset(offset); err != nil {
					return nil, err
				}
			}
		}
	}
}

// getNextBit gets the next bit from the controlByte. If the controlByte has been
// exhausted (eg the bitPos is 0), then getNextBit will get the next controlByte
// from src before returning the next bit.
func (d *decompressor) getNextBit() (byte, error) {
	if d.bitPos == 0 {
		// read another byte
		b, err := d.getNextByte()
		if err != nil {
			return 0, err
		}
		d.controlByte = b
		// max out the control byte position
		d.bitPos = 8
	}
	b := d.controlByte >> (8 - d.bitPos) & 1
	d.bitPos--
	return b, nil
}

func (d *decompressor) getNextByte() (byte, error) {
	if d.srcPos >= len(d.src) {
		return 0, ErrCorrupt
	}
	b := d.src[d.srcPos]
	d.srcPos++
	return b, nil
}

func (d *decompressor) copyCurrentByte() error {
	b, err := d.getNextByte()
	if err != nil {
		return err
	}
	d.dstSize++
	if d.copy {
		d.dst = append(d.dst, b)
	}
	return nil
}

func (d *decompressor) copyFromOffset(offset int) error {
	d.dstSize++
	if !d.copy {
		return nil
	}
	if len(d.dst)+offset < 0 {
		return ErrCorrupt
	}
	d.dst = append(d.dst, d.dst[len(d.dst)+offset])
	return nil
}
