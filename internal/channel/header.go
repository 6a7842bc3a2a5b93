package channel

import (
	"encoding/binary"

	"github.com/mvantor/ragol/internal/dialect"
)

// Command is one framed protocol command. Flag is 8 bits on the wire for
// the legacy dialects and 16 bits for V4; it's carried as u32 here so
// handlers don't care.
type Command struct {
	Opcode  uint16
	Flag    uint32
	Payload []byte
}

func encodeHeader(d dialect.Dialect, buf []byte, opcode uint16, flag uint32, size int) {
	if d == dialect.V4 {
		binary.LittleEndian.PutUint16(buf[0:], opcode)
		binary.LittleEndian.PutUint16(buf[2:], uint16(flag))
		binary.LittleEndian.PutUint32(buf[4:], uint32(size))
		return
	}

	buf[0] = byte(opcode)
	buf[1] = byte(flag)
	if d.BigEndian() {
		binary.BigEndian.PutUint16(buf[2:], uint16(size))
	} else {
		binary.LittleEndian.PutUint16(buf[2:], uint16(size))
	}
}

func decodeHeader(d dialect.Dialect, buf []byte) (opcode uint16, flag uint32, size int) {
	if d == dialect.V4 {
		opcode = binary.LittleEndian.Uint16(buf[0:])
		flag = uint32(binary.LittleEndian.Uint16(buf[2:]))
		size = int(binary.LittleEndian.Uint32(buf[4:]))
		return
	}

	opcode = uint16(buf[0])
	flag = uint32(buf[1])
	if d.BigEndian() {
		size = int(binary.BigEndian.Uint16(buf[2:]))
	} else {
		size = int(binary.LittleEndian.Uint16(buf[2:]))
	}
	return
}

// setHeaderSize rewrites just the size field of an already-built header,
// used when a frame grows to satisfy cipher alignment.
func setHeaderSize(d dialect.Dialect, buf []byte, size int) {
	if d == dialect.V4 {
		binary.LittleEndian.PutUint32(buf[4:], uint32(size))
	} else if d.BigEndian() {
		binary.BigEndian.PutUint16(buf[2:], uint16(size))
	} else {
		binary.LittleEndian.PutUint16(buf[2:], uint16(size))
	}
}
