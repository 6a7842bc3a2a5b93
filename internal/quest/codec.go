package quest

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"

	"github.com/mvantor/ragol/internal/core/prs"
	"github.com/mvantor/ragol/internal/encryption"
)

const (
	// GCI files start with this much memory-card metadata before the
	// download header.
	gciMetadataSize = 0x2080
	// Both GCI and DLQ carry a {size, seed} pair of little-endian dwords.
	downloadHeaderSize = 8
	// The decrypted GCI header: four dwords of which only the third
	// (decompressed size) may be nonzero in the files we can read.
	gciInnerHeaderSize = 16
)

// DecodeDLQ unwraps a download-quest archive: {decompressed_size, key}
// followed by the payload encrypted with the V1 cipher. The result is the
// PRS-compressed blob.
func DecodeDLQ(data []byte) ([]byte, error) {
	if len(data) < downloadHeaderSize {
		return nil, fmt.Errorf("quest: dlq file truncated at %d bytes", len(data))
	}
	decompressedSize := binary.LittleEndian.Uint32(data[0:4])
	key := binary.LittleEndian.Uint32(data[4:8])

	payload := make([]byte, len(data)-downloadHeaderSize)
	copy(payload, data[downloadHeaderSize:])

	// The cipher needs 4-byte alignment but the compressed payload has no
	// such guarantee; pad for the decrypt and trim after.
	originalSize := len(payload)
	for len(payload)%4 != 0 {
		payload = append(payload, 0)
	}
	if err := encryption.NewV1Cipher(key).Decrypt(payload, true); err != nil {
		return nil, fmt.Errorf("quest: decrypting dlq payload: %w", err)
	}
	payload = payload[:originalSize]

	size, err := prs.DecompressSize(payload)
	if err != nil {
		return nil, fmt.Errorf("quest: dlq payload: %w", err)
	}
	if uint32(size) != decompressedSize {
		return nil, fmt.Errorf("%w: header %d, payload %d", ErrLengthMismatch, decompressedSize, size)
	}
	return payload, nil
}

// DecodeGCI unwraps a memory-card dump. Encrypted saves fail with
// ErrUnsupported; the layout of their keying is undocumented and guessing
// corrupts quests silently.
func DecodeGCI(data []byte) ([]byte, error) {
	if len(data) < gciMetadataSize+downloadHeaderSize {
		return nil, fmt.Errorf("quest: gci file truncated before download header (have %#x bytes)", len(data))
	}
	size := binary.LittleEndian.Uint32(data[gciMetadataSize : gciMetadataSize+4])

	body := data[gciMetadataSize+downloadHeaderSize:]
	if int(size) > len(body) {
		return nil, fmt.Errorf("quest: gci file declares %#x bytes, have %#x", size, len(body))
	}
	body = body[:size]

	if len(body) < gciInnerHeaderSize {
		return nil, fmt.Errorf("quest: gci compressed data truncated during header")
	}
	u1 := binary.LittleEndian.Uint32(body[0:4])
	u2 := binary.LittleEndian.Uint32(body[4:8])
	decompressedSize := binary.LittleEndian.Uint32(body[8:12])
	u4 := binary.LittleEndian.Uint32(body[12:16])
	if u1 != 0 || u2 != 0 || u4 != 0 {
		return nil, fmt.Errorf("%w: gci file appears to be encrypted", ErrUnsupported)
	}

	compressed := body[gciInnerHeaderSize:]
	actual, err := prs.DecompressSize(compressed)
	if err != nil {
		return nil, fmt.Errorf("quest: gci payload: %w", err)
	}
	// The inner size counts the 8-byte download header it was written with.
	if expected := int(decompressedSize) - 8; actual < expected {
		return nil, fmt.Errorf("%w: gci payload decompresses to %#x, expected at least %#x",
			ErrLengthMismatch, actual, expected)
	}

	out := make([]byte, len(compressed))
	copy(out, compressed)
	return out, nil
}

// EncodeDLQ builds a download-quest artifact from a PRS-compressed blob:
// the {size, seed} header in the clear, the payload encrypted under seed.
// A zero seed asks for a random one.
func EncodeDLQ(compressed []byte, decompressedSize uint32, seed uint32, rng *rand.Rand) []byte {
	if seed == 0 {
		for seed == 0 {
			seed = rng.Uint32()
		}
	}

	out := make([]byte, downloadHeaderSize, downloadHeaderSize+len(compressed)+3)
	binary.LittleEndian.PutUint32(out[0:4], decompressedSize)
	binary.LittleEndian.PutUint32(out[4:8], seed)
	out = append(out, compressed...)

	// Temporary padding so the cipher accepts the payload, dropped after.
	originalSize := len(out)
	for (len(out)-downloadHeaderSize)%4 != 0 {
		out = append(out, 0)
	}
	_ = encryption.NewV1Cipher(seed).Encrypt(out[downloadHeaderSize:], true)
	return out[:originalSize]
}

// loadFile is a test seam around os.ReadFile.
var loadFile = os.ReadFile
