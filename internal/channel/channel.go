// Package channel implements the encrypted, length-prefixed command framing
// shared by every server and proxy connection. A channel owns exactly one
// socket and at most one cipher per direction; ciphers are installed
// mid-stream once the cleartext handshake has been sent.
package channel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/encryption"
)

// MaxFrameSize bounds the declared length of a single frame. Nothing in the
// protocol legitimately approaches this.
const MaxFrameSize = 0x10000

// ErrBadFrame indicates a frame whose declared length can't be honored. The
// connection is unrecoverable afterwards since framing is lost.
var ErrBadFrame = errors.New("channel: bad frame length")

type Channel struct {
	conn net.Conn
	dia  dialect.Dialect

	recvCipher encryption.Cipher
	sendCipher encryption.Cipher

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func New(conn net.Conn, d dialect.Dialect) *Channel {
	return &Channel{conn: conn, dia: d}
}

func (c *Channel) Dialect() dialect.Dialect { return c.dia }
func (c *Channel) RemoteAddr() net.Addr     { return c.conn.RemoteAddr() }
func (c *Channel) LocalAddr() net.Addr      { return c.conn.LocalAddr() }

// SetCipher installs the per-direction ciphers. Called exactly once per
// connection, after the handshake command has been sent in the clear.
func (c *Channel) SetCipher(recv, send encryption.Cipher) {
	c.recvCipher = recv
	c.sendCipher = send
}

// Disconnect closes the socket. The channel is never reused.
func (c *Channel) Disconnect() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// sendAlignment returns the padding multiple for outbound frames: the
// header size, or the cipher block size if that's stricter.
func (c *Channel) sendAlignment() int {
	align := c.dia.HeaderSize()
	if c.sendCipher != nil && c.sendCipher.BlockSize() > align {
		align = c.sendCipher.BlockSize()
	}
	return align
}

// Send frames, pads, encrypts, and writes one command.
func (c *Channel) Send(opcode uint16, flag uint32, payload []byte) error {
	headerSize := c.dia.HeaderSize()
	data := make([]byte, headerSize+len(payload))
	copy(data[headerSize:], payload)
	encodeHeader(c.dia, data, opcode, flag, len(data))
	return c.SendRaw(data)
}

// SendRaw writes a frame whose payload already carries a header. The frame
// is padded to the cipher alignment (with the size field adjusted to match)
// and encrypted if a cipher is installed.
func (c *Channel) SendRaw(data []byte) error {
	if len(data) < c.dia.HeaderSize() {
		return ErrBadFrame
	}

	align := c.sendAlignment()
	for len(data)%align != 0 {
		data = append(data, 0)
	}
	setHeaderSize(c.dia, data, len(data))

	if c.sendCipher != nil {
		if err := c.sendCipher.Encrypt(data, true); err != nil {
			return fmt.Errorf("channel: encrypting frame: %w", err)
		}
	}
	return c.transmit(data)
}

func (c *Channel) transmit(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	sent := 0
	for sent < len(data) {
		n, err := c.conn.Write(data[sent:])
		if err != nil {
			return fmt.Errorf("channel: writing to %v: %w", c.conn.RemoteAddr(), err)
		}
		sent += n
	}
	return nil
}

// ReadCommand blocks until a full frame has arrived, decrypts it, and
// returns the contained command. The header is peeked through the inbound
// cipher to learn the frame length before anything is consumed, then the
// whole frame is decrypted in one advancing pass.
func (c *Channel) ReadCommand() (*Command, error) {
	headerSize := c.dia.HeaderSize()

	frame := make([]byte, headerSize)
	if _, err := io.ReadFull(c.conn, frame); err != nil {
		return nil, err
	}

	peeked := make([]byte, headerSize)
	copy(peeked, frame)
	if c.recvCipher != nil {
		if err := c.recvCipher.Decrypt(peeked, false); err != nil {
			return nil, fmt.Errorf("channel: peeking header: %w", err)
		}
	}

	_, _, size := decodeHeader(c.dia, peeked)
	if err := c.checkFrameSize(size); err != nil {
		return nil, err
	}

	if size > headerSize {
		rest := make([]byte, size-headerSize)
		if _, err := io.ReadFull(c.conn, rest); err != nil {
			return nil, err
		}
		frame = append(frame, rest...)
	}

	if c.recvCipher != nil {
		if err := c.recvCipher.Decrypt(frame, true); err != nil {
			return nil, fmt.Errorf("channel: decrypting frame: %w", err)
		}
	}

	opcode, flag, _ := decodeHeader(c.dia, frame)
	return &Command{Opcode: opcode, Flag: flag, Payload: frame[headerSize:]}, nil
}

func (c *Channel) checkFrameSize(size int) error {
	if size < c.dia.HeaderSize() || size > MaxFrameSize {
		return fmt.Errorf("%w: %#x", ErrBadFrame, size)
	}
	if c.recvCipher != nil {
		if bs := c.recvCipher.BlockSize(); size%bs != 0 {
			return fmt.Errorf("%w: %#x not a multiple of %d", ErrBadFrame, size, bs)
		}
	}
	return nil
}
