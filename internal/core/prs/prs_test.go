package prs

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"single byte", []byte{0x42}},
		{"no repeats", []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"short run", []byte("aaaaa")},
		{"long run", bytes.Repeat([]byte{0xAB}, 1000)},
		{"repeated phrase", bytes.Repeat([]byte("quest data "), 64)},
		{"text", []byte("the server terminates one client per connection")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed := Compress(tt.data)

			size, err := DecompressSize(compressed)
			if err != nil {
				t.Fatalf("DecompressSize() error: %v", err)
			}
			if size != len(tt.data) {
				t.Fatalf("DecompressSize() want = %d, got = %d", len(tt.data), size)
			}

			decompressed, err := Decompress(compressed, size)
			if err != nil {
				t.Fatalf("Decompress() error: %v", err)
			}
			if !bytes.Equal(decompressed, tt.data) {
				t.Fatalf("round trip mismatch: want %v, got %v", tt.data, decompressed)
			}
		})
	}
}

func TestCompressRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(0x5D588B65))

	for i := 0; i < 25; i++ {
		data := make([]byte, rng.Intn(4096))
		// Low entropy so the matcher actually produces backreferences.
		for j := range data {
			data[j] = byte(rng.Intn(8))
		}

		compressed := Compress(data)
		decompressed, err := Decompress(compressed, len(data))
		if err != nil {
			t.Fatalf("Decompress() error: %v", err)
		}
		if !bytes.Equal(decompressed, data) {
			t.Fatalf("round trip mismatch for input %d", i)
		}
	}
}

func TestDecompressLiteralStream(t *testing.T) {
	// Hand-assembled stream: control byte with three literal bits then the
	// long-copy EOF marker (bits 0,1 + two zero bytes).
	src := []byte{
		0b00010111, // 1, 1, 1, 0, 1
		'a', 'b', 'c',
		0x00, 0x00,
	}

	out, err := Decompress(src, 3)
	if err != nil {
		t.Fatalf("Decompress() error: %v", err)
	}
	if !bytes.Equal(out, []byte("abc")) {
		t.Fatalf("Decompress() want = abc, got = %q", out)
	}
}

func TestDecompressTruncatedInput(t *testing.T) {
	if _, err := Decompress([]byte{0xFF, 'a'}, 8); err == nil {
		t.Fatal("expected error decompressing truncated stream")
	}
}
