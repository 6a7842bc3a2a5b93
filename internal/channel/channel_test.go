package channel

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/encryption"
)

// memConn is a net.Conn stub backed by in-memory buffers so frames can be
// inspected without sockets.
type memConn struct {
	read  *bytes.Reader
	write bytes.Buffer
}

func newMemConn(readData []byte) *memConn {
	return &memConn{read: bytes.NewReader(readData)}
}

func (m *memConn) Read(b []byte) (int, error)       { return m.read.Read(b) }
func (m *memConn) Write(b []byte) (int, error)      { return m.write.Write(b) }
func (m *memConn) Close() error                     { return nil }
func (m *memConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (m *memConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (m *memConn) SetDeadline(time.Time) error      { return nil }
func (m *memConn) SetReadDeadline(time.Time) error  { return nil }
func (m *memConn) SetWriteDeadline(time.Time) error { return nil }

func TestSendProducesPaddedEncryptedFrame(t *testing.T) {
	conn := newMemConn(nil)
	ch := New(conn, dialect.V1)
	ch.SetCipher(encryption.NewV1Cipher(0x12345678), encryption.NewV1Cipher(0x12345678))

	if err := ch.Send(0x05, 0x00, []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	wire := conn.write.Bytes()
	if len(wire) != 12 {
		t.Fatalf("frame length want = 12, got = %d", len(wire))
	}

	// A fresh cipher with the same seed recovers the cleartext header.
	decrypted := make([]byte, len(wire))
	copy(decrypted, wire)
	if err := encryption.NewV1Cipher(0x12345678).Decrypt(decrypted, true); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(decrypted[:4], []byte{0x05, 0x00, 0x0C, 0x00}); len(diff) > 0 {
		t.Fatal(diff)
	}
}

func TestRoundTripThroughChannel(t *testing.T) {
	tests := []struct {
		name string
		dia  dialect.Dialect
	}{
		{"v1", dialect.V1},
		{"v2", dialect.V2},
		{"v3 console", dialect.V3Console},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := New(newMemConn(nil), tt.dia)
			sender.SetCipher(newCipherFor(tt.dia, 0xFEED), newCipherFor(tt.dia, 0xFEED))

			payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
			if err := sender.Send(0x60, 0x02, payload); err != nil {
				t.Fatalf("Send() error: %v", err)
			}

			wire := sender.conn.(*memConn).write.Bytes()
			receiver := New(newMemConn(wire), tt.dia)
			receiver.SetCipher(newCipherFor(tt.dia, 0xFEED), newCipherFor(tt.dia, 0xFEED))

			cmd, err := receiver.ReadCommand()
			if err != nil {
				t.Fatalf("ReadCommand() error: %v", err)
			}
			if cmd.Opcode != 0x60 || cmd.Flag != 0x02 {
				t.Fatalf("header mismatch: opcode %#x flag %#x", cmd.Opcode, cmd.Flag)
			}
			if diff := deep.Equal(cmd.Payload, payload); len(diff) > 0 {
				t.Fatal(diff)
			}
		})
	}
}

func newCipherFor(d dialect.Dialect, seed uint32) encryption.Cipher {
	if d == dialect.V1 {
		return encryption.NewV1Cipher(seed)
	}
	return encryption.NewV2Cipher(seed)
}

func TestRoundTripV4(t *testing.T) {
	key := &encryption.KeyFile{Subtype: encryption.SubtypeStandard}
	for i := range key.InitialKey {
		key.InitialKey[i] = byte(i * 7)
	}
	for i := range key.PrivateKey {
		key.PrivateKey[i] = byte(i * 13)
	}
	seed := []byte{1, 2, 3, 4, 5, 6}

	newCipher := func() encryption.Cipher {
		c, err := encryption.NewV4Cipher(key, seed)
		if err != nil {
			t.Fatal(err)
		}
		return c
	}

	sender := New(newMemConn(nil), dialect.V4)
	sender.SetCipher(newCipher(), newCipher())

	payload := []byte("twelve bytes")
	if err := sender.Send(0x6C, 0x01020304, payload); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	wire := sender.conn.(*memConn).write.Bytes()
	if len(wire)%8 != 0 {
		t.Fatalf("v4 frame should be 8-aligned, have %d", len(wire))
	}

	receiver := New(newMemConn(wire), dialect.V4)
	receiver.SetCipher(newCipher(), newCipher())

	cmd, err := receiver.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand() error: %v", err)
	}
	if cmd.Opcode != 0x6C {
		t.Fatalf("opcode want = 0x6C, got = %#x", cmd.Opcode)
	}
	// V4 promotes flag to 32 bits but only the low 16 survive the wire.
	if cmd.Flag != 0x0304 {
		t.Fatalf("flag want = 0x0304, got = %#x", cmd.Flag)
	}
	if !bytes.HasPrefix(cmd.Payload, payload) {
		t.Fatalf("payload mismatch: %q", cmd.Payload)
	}
}

func TestReadCommandRejectsBadLength(t *testing.T) {
	// Cleartext V1 header declaring a 2-byte frame.
	receiver := New(newMemConn([]byte{0x05, 0x00, 0x02, 0x00}), dialect.V1)
	_, err := receiver.ReadCommand()
	if !errors.Is(err, ErrBadFrame) {
		t.Fatalf("want ErrBadFrame, got %v", err)
	}
}

func TestReadCommandRejectsMisalignedLength(t *testing.T) {
	// Encrypted V1 channel: a declared size that isn't a multiple of the
	// cipher block is unrecoverable.
	raw := make([]byte, 4)
	encodeHeader(dialect.V1, raw, 0x05, 0, 0x0D)
	c := encryption.NewV1Cipher(77)
	if err := c.Encrypt(raw, true); err != nil {
		t.Fatal(err)
	}

	receiver := New(newMemConn(raw), dialect.V1)
	receiver.SetCipher(encryption.NewV1Cipher(77), encryption.NewV1Cipher(77))
	_, err := receiver.ReadCommand()
	if !errors.Is(err, ErrBadFrame) {
		t.Fatalf("want ErrBadFrame, got %v", err)
	}
}
