package proxy

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/encryption"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

const (
	serverKey = 0x11223344
	clientKey = 0x55667788
)

// handshakeFrame builds the cleartext 0x17 welcome a V2 server sends.
func handshakeFrame() []byte {
	frame := []byte{0x17, 0x00, 0x0C, 0x00}
	frame = append(frame, 0x44, 0x33, 0x22, 0x11) // server key LE
	frame = append(frame, 0x88, 0x77, 0x66, 0x55) // client key LE
	return frame
}

func mustWrite(t *testing.T, conn net.Conn, data []byte) {
	t.Helper()
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func mustRead(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return buf
}

func TestProxyRelaysHandshakeAndTraffic(t *testing.T) {
	clientProxy, clientEnd := net.Pipe()
	serverProxy, serverEnd := net.Pipe()

	session := NewSessionWithConns(clientProxy, serverProxy, dialect.V2, testLogger())
	go session.Run()
	defer session.Close()

	// The remote's handshake passes through in the clear.
	mustWrite(t, serverEnd, handshakeFrame())
	relayed := mustRead(t, clientEnd, 12)
	if relayed[0] != 0x17 {
		t.Fatalf("handshake opcode want = 0x17, got = %#x", relayed[0])
	}
	if !bytes.Equal(relayed[4:12], handshakeFrame()[4:12]) {
		t.Fatal("handshake keys must be relayed unmodified")
	}

	// Server to client: the remote encrypts with its server-key cipher;
	// after re-encryption the client decrypts with the same keystream.
	serverSend := encryption.NewV2Cipher(serverKey)
	frame := []byte{0x07, 0x01, 0x08, 0x00, 'p', 'i', 'n', 'g'}
	wire := make([]byte, len(frame))
	copy(wire, frame)
	if err := serverSend.Encrypt(wire, true); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, serverEnd, wire)

	got := mustRead(t, clientEnd, 8)
	if err := encryption.NewV2Cipher(serverKey).Decrypt(got, true); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("relayed frame mismatch: want %v, got %v", frame, got)
	}

	// Client to server, mirrored with the client key.
	clientSend := encryption.NewV2Cipher(clientKey)
	upFrame := []byte{0x09, 0x00, 0x08, 0x00, 'p', 'o', 'n', 'g'}
	upWire := make([]byte, len(upFrame))
	copy(upWire, upFrame)
	if err := clientSend.Encrypt(upWire, true); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, clientEnd, upWire)

	gotUp := mustRead(t, serverEnd, 8)
	if err := encryption.NewV2Cipher(clientKey).Decrypt(gotUp, true); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotUp, upFrame) {
		t.Fatalf("upstream frame mismatch: want %v, got %v", upFrame, gotUp)
	}
}

func TestProxyRejectsV4(t *testing.T) {
	clientProxy, _ := net.Pipe()
	if _, err := NewSession(clientProxy, "127.0.0.1:1", dialect.V4, testLogger()); err == nil {
		t.Fatal("v4 proxying should be rejected")
	}
}
