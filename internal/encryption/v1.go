package encryption

// The V1 cipher is a lagged-Fibonacci style generator over a 57-word table.
// Words 55 and 56 are filled with the seed, the rest by a subtractive walk,
// and the table is stirred five times before use.

const (
	v1StreamLength = 57
	v1BlockSize    = 4
)

type V1Cipher struct {
	stream [v1StreamLength]uint32
	offset int
}

func NewV1Cipher(seed uint32) *V1Cipher {
	c := &V1Cipher{offset: 1}

	esi := uint32(1)
	ebx := seed
	c.stream[56] = ebx
	c.stream[55] = ebx

	for edi := 0x15; edi <= 0x46E; edi += 0x15 {
		edx := edi % 55
		ebx -= esi
		c.stream[edx] = esi
		esi = ebx
		ebx = c.stream[edx]
	}

	for i := 0; i < 5; i++ {
		c.updateStream()
	}
	return c
}

func (c *V1Cipher) BlockSize() int { return v1BlockSize }

func (c *V1Cipher) updateStream() {
	// Two subtractive passes of widths 24 and 31.
	for i, n := 1, 0x18; n > 0; i, n = i+1, n-1 {
		c.stream[i] -= c.stream[i+0x1F]
	}
	for i, n := 0x19, 0x1F; n > 0; i, n = i+1, n-1 {
		c.stream[i] -= c.stream[i-0x18]
	}
}

func (c *V1Cipher) next(advance bool) uint32 {
	if c.offset == v1StreamLength {
		c.updateStream()
		c.offset = 1
	}
	ret := c.stream[c.offset]
	if advance {
		c.offset++
	}
	return ret
}

func (c *V1Cipher) process(data []byte, advance bool) error {
	if len(data)%v1BlockSize != 0 {
		return ErrBlockSize
	}
	if !advance && len(data) != v1BlockSize {
		return ErrPeekTooLarge
	}
	for x := 0; x < len(data); x += 4 {
		putUint32LE(data[x:], getUint32LE(data[x:])^c.next(advance))
	}
	return nil
}

func (c *V1Cipher) Encrypt(data []byte, advance bool) error { return c.process(data, advance) }
func (c *V1Cipher) Decrypt(data []byte, advance bool) error { return c.process(data, advance) }
