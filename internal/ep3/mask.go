package ep3

import "fmt"

// Card battle subcommands (0xB3-0xB5) obscure their bodies with a one-byte
// rotating mask stored at offset 6 of the 8-byte card header. Everything
// past the header is XORed with a keystream derived from the mask byte, so
// applying the same key twice is a no-op.

const cardHeaderSize = 8

func maskStream(data []byte, key uint8) {
	k := key
	for i := cardHeaderSize; i < len(data); i++ {
		data[i] ^= k
		k = k*0x6D + 0x17
	}
}

// SetCommandMask re-keys a card battle subcommand in place: any existing
// mask is removed first, then maskKey (zero for "leave unmasked") is
// applied and recorded in the header.
func SetCommandMask(data []byte, maskKey uint8) error {
	if len(data) < cardHeaderSize {
		return fmt.Errorf("ep3: card command too short for masking (%d bytes)", len(data))
	}
	if sizeWords := data[1]; sizeWords != 0 && int(sizeWords)*4 != len(data) {
		return fmt.Errorf("ep3: card command size field %d does not match %d bytes", sizeWords, len(data))
	}

	if existing := data[6]; existing != 0 {
		maskStream(data, existing)
		data[6] = 0
	}
	if maskKey != 0 {
		maskStream(data, maskKey)
		data[6] = maskKey
	}
	return nil
}
