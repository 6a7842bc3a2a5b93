package bytes

import (
	"testing"

	"github.com/go-test/deep"
)

type testHeader struct {
	Opcode uint8
	Flag   uint8
	Size   uint16
}

type testPacket struct {
	Header testHeader
	ID     uint32
	Name   [4]byte
}

func TestBytesFromStruct(t *testing.T) {
	pkt := &testPacket{
		Header: testHeader{Opcode: 0x60, Flag: 0x01, Size: 0x0C},
		ID:     0x11223344,
		Name:   [4]byte{'t', 'e', 's', 't'},
	}

	b, size := BytesFromStruct(pkt)
	if size != 12 {
		t.Fatalf("BytesFromStruct() size want = 12, got = %d", size)
	}

	want := []byte{0x60, 0x01, 0x0C, 0x00, 0x44, 0x33, 0x22, 0x11, 't', 'e', 's', 't'}
	if diff := deep.Equal(b, want); len(diff) > 0 {
		t.Fatal(diff)
	}

	var parsed testPacket
	StructFromBytes(b, &parsed)
	if diff := deep.Equal(&parsed, pkt); len(diff) > 0 {
		t.Fatal(diff)
	}
}

func TestBytesFromStructBE(t *testing.T) {
	pkt := &testHeader{Opcode: 0x01, Flag: 0x02, Size: 0x0304}

	b, _ := BytesFromStructBE(pkt)
	want := []byte{0x01, 0x02, 0x03, 0x04}
	if diff := deep.Equal(b, want); len(diff) > 0 {
		t.Fatal(diff)
	}

	var parsed testHeader
	StructFromBytesBE(b, &parsed)
	if diff := deep.Equal(&parsed, pkt); len(diff) > 0 {
		t.Fatal(diff)
	}
}

func TestStripPadding(t *testing.T) {
	b := []byte{0x01, 0x02, 0x00, 0x00}
	if diff := deep.Equal(StripPadding(b), []byte{0x01, 0x02}); len(diff) > 0 {
		t.Fatal(diff)
	}
	if len(StripPadding([]byte{0, 0})) != 0 {
		t.Fatal("StripPadding() should consume an all-zero slice")
	}
}

func TestUtf16RoundTrip(t *testing.T) {
	encoded := ConvertToUtf16("lobby one")
	if got := ConvertFromUtf16(encoded); got != "lobby one" {
		t.Fatalf("ConvertFromUtf16() want = %q, got = %q", "lobby one", got)
	}
}
