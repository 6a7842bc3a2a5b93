package prs

func Decompress(src []byte, size int) ([]byte, error) {
	if len(src) == 0 {
		return nil, ErrCorrupt
	}
	d := newDecompressor(src, size, true)
	return d.decompress()
}

func DecompressSize(src []byte) (int, error) {
	if len(src) == 0 {
		return 0, ErrCorrupt
	}
	d := newDecompressor(src, 0, false)
	if _, err := d.decompress(); err != nil {
		return 0, err
	}
	return d.dstSize, nil
}

func Compress(src []byte) []byte {
	c := newCompressor(src)
	return c.compress()
}
