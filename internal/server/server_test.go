package server

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mvantor/ragol/internal/channel"
	"github.com/mvantor/ragol/internal/core"
	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/encryption"
	"github.com/mvantor/ragol/internal/packets"
	"github.com/mvantor/ragol/internal/subcmd"
)

type recordConn struct {
	buf bytes.Buffer
}

func (r *recordConn) Read([]byte) (int, error)         { return 0, io.EOF }
func (r *recordConn) Write(b []byte) (int, error)      { return r.buf.Write(b) }
func (r *recordConn) Close() error                     { return nil }
func (r *recordConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (r *recordConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (r *recordConn) SetDeadline(time.Time) error      { return nil }
func (r *recordConn) SetReadDeadline(time.Time) error  { return nil }
func (r *recordConn) SetWriteDeadline(time.Time) error { return nil }

func testState(t *testing.T) *State {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &core.Config{Hostname: "127.0.0.1"}
	cfg.GameServer.NumLobbies = 2
	cfg.GameServer.ItemTracking = true
	return NewState(cfg, logger, nil, &subcmd.Env{Logger: logger})
}

func TestSessionStartLegacyHandshake(t *testing.T) {
	state := testState(t)
	conn := &recordConn{}

	session := NewSession(state, conn, dialect.V1)
	if err := session.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	wire := conn.buf.Bytes()
	if len(wire) < 12 {
		t.Fatalf("handshake frame too short: %d bytes", len(wire))
	}
	// The welcome goes out in the clear.
	if wire[0] != 0x02 {
		t.Fatalf("v1 welcome opcode want = 0x02, got = %#x", wire[0])
	}
	size := int(binary.LittleEndian.Uint16(wire[2:4]))
	if size != len(wire) {
		t.Fatalf("declared size %d vs %d written", size, len(wire))
	}

	serverKey := binary.LittleEndian.Uint32(wire[4:8])
	conn.buf.Reset()

	// Everything after the handshake is encrypted under the announced
	// server key.
	if err := session.client.Send(0x07, 0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	encrypted := conn.buf.Bytes()
	if err := encryption.NewV1Cipher(serverKey).Decrypt(encrypted, true); err != nil {
		t.Fatal(err)
	}
	if encrypted[0] != 0x07 {
		t.Fatalf("decrypted opcode want = 0x07, got = %#x", encrypted[0])
	}
}

func TestSessionStartV4Handshake(t *testing.T) {
	state := testState(t)
	state.KeyPool = []*encryption.KeyFile{{Subtype: encryption.SubtypeStandard}}
	conn := &recordConn{}

	session := NewSession(state, conn, dialect.V4)
	if err := session.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	wire := conn.buf.Bytes()
	if wire[0] != 0x9B {
		t.Fatalf("v4 welcome opcode want = 0x9B, got = %#x", wire[0])
	}

	// The outbound imitator can't encrypt until the detector has seen the
	// client's first command.
	conn.buf.Reset()
	err := session.client.Send(0x07, 0, make([]byte, 8))
	if err == nil {
		t.Fatal("sending before key detection should fail")
	}
}

func TestLoginJoinsDefaultLobby(t *testing.T) {
	state := testState(t)
	conn := &recordConn{}
	session := NewSession(state, conn, dialect.V4)

	if err := session.handleLogin(&channel.Command{Opcode: packets.LoginType}); err != nil {
		t.Fatalf("handleLogin() error: %v", err)
	}

	c := session.client
	if c.LobbyID == 0 {
		t.Fatal("client should be placed in a lobby")
	}
	if c.Player == nil {
		t.Fatal("client should have a player record")
	}
	room := state.Room(c.LobbyID)
	if room == nil || room.Clients[c.SlotID] != c {
		t.Fatal("room slot should hold the client")
	}
}

func TestCreateAndLeaveGame(t *testing.T) {
	state := testState(t)
	conn := &recordConn{}
	session := NewSession(state, conn, dialect.V4)
	if err := session.handleLogin(&channel.Command{Opcode: packets.LoginType}); err != nil {
		t.Fatal(err)
	}

	payload := buildPacket(&packets.CreateGame{Difficulty: 1, Episode: 1})
	if err := session.handleCreateGame(&channel.Command{Opcode: packets.CreateGameType, Payload: payload}); err != nil {
		t.Fatalf("handleCreateGame() error: %v", err)
	}

	c := session.client
	game := state.Room(c.LobbyID)
	if game == nil || !game.IsGame() {
		t.Fatal("client should be in a game room")
	}
	gameID := game.ID

	// Teardown removes the client and garbage-collects the empty game.
	session.teardown()
	if state.Room(gameID) != nil {
		t.Fatal("empty game room should be removed")
	}
}
