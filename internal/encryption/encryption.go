// Implementations of the stream ciphers spoken by each client generation.
// All of them are symmetric (encrypt == decrypt, XOR against a keystream)
// except the keyfile cipher's block mode, which runs its rounds in reverse
// for decryption.
//
// Implementation based on (and in some cases basically copied from) the
// customized cipher library this project's protocol family has always used.
package encryption

import "errors"

var (
	// ErrBlockSize is returned when a buffer is not a multiple of the
	// cipher's block alignment.
	ErrBlockSize = errors.New("encryption: buffer size must be a multiple of the cipher block size")
	// ErrPeekTooLarge is returned when a peek-mode operation exceeds the
	// cipher's peek window.
	ErrPeekTooLarge = errors.New("encryption: peek exceeds cipher peek limit")
	// ErrSeedSize is returned when a connection seed has an unusable length.
	ErrSeedSize = errors.New("encryption: invalid seed size")
	// ErrNoMatchingKey is returned by the detector when no key in the pool
	// decrypts the first command to the expected bytes.
	ErrNoMatchingKey = errors.New("encryption: none of the registered private keys are valid for this client")
	// ErrPeerNotReady is returned when an imitator (or a detector's encrypt
	// side) is used before the detector has committed to a key.
	ErrPeerNotReady = errors.New("encryption: peer cipher requires client input first")
)

// Cipher is the capability set shared by every cipher generation.
//
// The advance flag selects peek mode: when false, the cipher produces
// keystream for the buffer without (observably) advancing its internal
// state, so the caller can inspect framing before consuming a frame. Peek
// mode is limited to one 4-byte word for the rotor ciphers and 0x100 bytes
// for the keyfile cipher.
type Cipher interface {
	Encrypt(data []byte, advance bool) error
	Decrypt(data []byte, advance bool) error
	BlockSize() int
}

func getUint32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
