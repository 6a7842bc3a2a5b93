// Package proxy implements the transparent relay mode: one local client,
// one connection to a remote server, and a decrypt/re-encrypt pipeline in
// both directions so traffic can be observed or rewritten mid-flight.
package proxy

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mvantor/ragol/internal/channel"
	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/encryption"
	"github.com/mvantor/ragol/internal/packets"
)

// CommandHook inspects (and may rewrite) one relayed command. Returning
// false drops the command instead of forwarding it.
type CommandHook func(cmd *channel.Command) bool

// Session is one proxied connection pair.
type Session struct {
	Logger *logrus.Logger

	dia        dialect.Dialect
	clientSide *channel.Channel
	serverSide *channel.Channel

	// Optional rewrite hooks, one per direction.
	OnClientCommand CommandHook
	OnServerCommand CommandHook

	handshakeDone bool
	// Deferred cipher install: the handshake must be forwarded in the
	// clear first.
	pendingInstall func()
	closeOnce      sync.Once
}

// NewSession connects to the remote server on behalf of one accepted
// client. V4 sessions can't be proxied: their cipher is keyed from a
// private key pool the remote owns.
func NewSession(clientConn net.Conn, remoteAddr string, d dialect.Dialect, logger *logrus.Logger) (*Session, error) {
	if d == dialect.V4 {
		return nil, fmt.Errorf("proxy: the v4 dialect cannot be proxied")
	}

	remoteConn, err := net.Dial("tcp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("proxy: connecting to %s: %w", remoteAddr, err)
	}
	return NewSessionWithConns(clientConn, remoteConn, d, logger), nil
}

// NewSessionWithConns wires a session over existing connections.
func NewSessionWithConns(clientConn, remoteConn net.Conn, d dialect.Dialect, logger *logrus.Logger) *Session {
	return &Session{
		Logger:     logger,
		dia:        d,
		clientSide: channel.New(clientConn, d),
		serverSide: channel.New(remoteConn, d),
	}
}

// Run relays both directions until either side disconnects.
func (s *Session) Run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pump(s.serverSide, s.clientSide, s.OnServerCommand, s.handleServerCommand)
	}()
	go func() {
		defer wg.Done()
		s.pump(s.clientSide, s.serverSide, s.OnClientCommand, nil)
	}()
	wg.Wait()
}

// Close tears down both legs.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.clientSide.Disconnect()
		s.serverSide.Disconnect()
	})
}

func (s *Session) pump(from, to *channel.Channel, hook CommandHook, observe func(*channel.Command)) {
	defer s.Close()
	for {
		cmd, err := from.ReadCommand()
		if err != nil {
			s.Logger.Infof("proxy: %v closed: %v", from.RemoteAddr(), err)
			return
		}
		if observe != nil {
			observe(cmd)
		}
		if hook != nil && !hook(cmd) {
			continue
		}
		if err := to.Send(cmd.Opcode, cmd.Flag, cmd.Payload); err != nil {
			s.Logger.Warnf("proxy: forwarding to %v: %v", to.RemoteAddr(), err)
			return
		}
		if observe != nil && s.pendingInstall != nil {
			s.pendingInstall()
			s.pendingInstall = nil
		}
	}
}

// handleServerCommand watches the server→client stream for the handshake
// and installs the mirror-image ciphers on both legs. The handshake itself
// is forwarded in the clear (the send happens before the client-side
// ciphers exist, exactly like a real server).
func (s *Session) handleServerCommand(cmd *channel.Command) {
	if s.handshakeDone {
		return
	}
	switch cmd.Opcode {
	case packets.WelcomeV1Type, packets.WelcomeV2Type, packets.WelcomeV3Type:
	default:
		return
	}
	if len(cmd.Payload) < 8 {
		s.Logger.Warnf("proxy: handshake payload too short (%d bytes)", len(cmd.Payload))
		return
	}

	serverKey := binary.LittleEndian.Uint32(cmd.Payload[0:4])
	clientKey := binary.LittleEndian.Uint32(cmd.Payload[4:8])

	newCipher := func(seed uint32) encryption.Cipher {
		if s.dia == dialect.V1 {
			return encryption.NewV1Cipher(seed)
		}
		return encryption.NewV2Cipher(seed)
	}

	// Toward the remote we speak as the client; toward the client we
	// speak as the server. The install waits until the handshake has been
	// forwarded in the clear.
	s.handshakeDone = true
	s.pendingInstall = func() {
		s.serverSide.SetCipher(newCipher(serverKey), newCipher(clientKey))
		s.clientSide.SetCipher(newCipher(clientKey), newCipher(serverKey))
		s.Logger.Infof("proxy: handshake relayed, ciphers installed (server key %08X, client key %08X)",
			serverKey, clientKey)
	}
}

// InjectToClient sends an arbitrary frame toward the local client. This is
// the hook the operator shell uses.
func (s *Session) InjectToClient(opcode uint16, flag uint32, payload []byte) error {
	return s.clientSide.Send(opcode, flag, payload)
}

// InjectToServer sends an arbitrary frame toward the remote server.
func (s *Session) InjectToServer(opcode uint16, flag uint32, payload []byte) error {
	return s.serverSide.Send(opcode, flag, payload)
}
