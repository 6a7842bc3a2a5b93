package server

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/mvantor/ragol/internal/channel"
	"github.com/mvantor/ragol/internal/character"
	"github.com/mvantor/ragol/internal/client"
	corebytes "github.com/mvantor/ragol/internal/core/bytes"
	"github.com/mvantor/ragol/internal/data"
	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/encryption"
	"github.com/mvantor/ragol/internal/lobby"
	"github.com/mvantor/ragol/internal/packets"
	"github.com/mvantor/ragol/internal/subcmd"
)

// Session is one connected client's lifecycle: handshake, cipher install,
// command dispatch, and teardown.
type Session struct {
	state  *State
	client *client.Client
}

// NewSession wraps an accepted connection for one dialect.
func NewSession(state *State, conn net.Conn, d dialect.Dialect) *Session {
	ch := channel.New(conn, d)
	c := client.New(ch)
	if d == dialect.V1 {
		c.IsV1 = true
	}
	return &Session{state: state, client: c}
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

// Start sends the cleartext handshake and installs the ciphers.
func (s *Session) Start() error {
	c := s.client

	if c.Dialect == dialect.V4 {
		serverVector := randomBytes(48)
		clientVector := randomBytes(48)

		pkt := packets.ServerInitV4{}
		copy(pkt.Copyright[:], packets.Copyright)
		copy(pkt.ServerVector[:], serverVector)
		copy(pkt.ClientVector[:], clientVector)
		if err := c.Send(packets.WelcomeV4Type, 0, buildPacket(&pkt)); err != nil {
			return err
		}

		detector := encryption.NewMultiKeyDetector(
			s.state.KeyPool, s.expectedFirstCommand(), clientVector)
		imitator := encryption.NewMultiKeyImitator(detector, serverVector, true)
		c.Channel.SetCipher(detector, imitator)
		return nil
	}

	serverKey := binary.LittleEndian.Uint32(randomBytes(4))
	clientKey := binary.LittleEndian.Uint32(randomBytes(4))

	pkt := packets.ServerInit{ServerKey: serverKey, ClientKey: clientKey}
	copy(pkt.Message[:], packets.Copyright[:min(len(packets.Copyright), len(pkt.Message))])
	opcode := welcomeOpcode(c.Dialect)
	if err := c.Send(opcode, 0, buildPacket(&pkt)); err != nil {
		return err
	}

	// The second client generation onward keys the rotor cipher; the
	// original generation uses the lagged-Fibonacci cipher. Both builds
	// of V3 share V2's schedule, keyed from the same handshake fields.
	if c.Dialect == dialect.V1 {
		c.Channel.SetCipher(encryption.NewV1Cipher(clientKey), encryption.NewV1Cipher(serverKey))
	} else {
		c.Channel.SetCipher(encryption.NewV2Cipher(clientKey), encryption.NewV2Cipher(serverKey))
	}
	return nil
}

func welcomeOpcode(d dialect.Dialect) uint16 {
	switch d {
	case dialect.V1:
		return packets.WelcomeV1Type
	case dialect.V2:
		return packets.WelcomeV2Type
	default:
		return packets.WelcomeV3Type
	}
}

// expectedFirstCommand is the decrypted header the key detector matches:
// the login command with the deployment's configured size.
func (s *Session) expectedFirstCommand() []byte {
	size := s.state.Config.GameServer.ExpectedFirstCommandSize
	if size == 0 {
		size = 0xB4
	}
	expected := make([]byte, 8)
	binary.LittleEndian.PutUint16(expected[0:2], packets.LoginType)
	binary.LittleEndian.PutUint32(expected[4:8], uint32(size))
	return expected
}

func buildPacket(pkt interface{}) []byte {
	b, _ := corebytes.BytesFromStruct(pkt)
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Run processes commands until the connection drops, then tears the
// session down.
func (s *Session) Run() {
	c := s.client
	defer s.teardown()

	for {
		cmd, err := c.Channel.ReadCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.state.Logger.Warnf("client %d: %v", c.ID, err)
			}
			return
		}

		if err := s.handle(cmd); err != nil {
			if errors.Is(err, errDisconnected) {
				return
			}
			// Protocol-level errors kill the connection; state errors are
			// logged and the session continues.
			if errors.Is(err, subcmd.ErrBadSubcommand) || errors.Is(err, channel.ErrBadFrame) {
				s.state.Logger.Warnf("client %d: %v", c.ID, err)
				return
			}
			s.state.Logger.Infof("client %d: %v", c.ID, err)
		}
	}
}

var errDisconnected = errors.New("server: client requested disconnect")

func (s *Session) handle(cmd *channel.Command) error {
	c := s.client

	if packets.IsSubcommandEnvelope(cmd.Opcode) {
		room := s.state.Room(c.LobbyID)
		if room == nil {
			return fmt.Errorf("server: subcommand from client %d outside any room", c.ID)
		}
		return subcmd.Dispatch(s.state.Env, room, c, cmd.Opcode, cmd.Flag, cmd.Payload)
	}

	switch cmd.Opcode {
	case packets.LoginType:
		return s.handleLogin(cmd)
	case packets.DisconnectType:
		return errDisconnected
	case packets.PingType:
		return nil
	case packets.ChatType:
		return s.handleChat(cmd)
	case packets.CreateGameType:
		return s.handleCreateGame(cmd)
	case packets.DoneLoadingType:
		c.Loading = false
		return nil
	default:
		s.state.Logger.Infof("received unknown packet %02x from client %d", cmd.Opcode, c.ID)
		return nil
	}
}

// handleLogin records the account identity and restores the saved player,
// then drops the client into the first open chat lobby.
func (s *Session) handleLogin(cmd *channel.Command) error {
	c := s.client

	var login packets.Login
	if len(cmd.Payload) >= binarySize(&login) {
		corebytes.StructFromBytes(cmd.Payload, &login)
		c.AccountName = string(corebytes.StripPadding(login.Username[:]))
		c.SaveSlot = int(login.Slot)
	}

	if c.AccountName != "" && s.state.DB != nil {
		record, err := data.LoadPlayer(s.state.DB, c.AccountName, c.SaveSlot)
		if err != nil {
			return err
		}
		if record != nil {
			player, err := character.UnmarshalPlayer(record.Contents)
			if err != nil {
				return err
			}
			c.Player = player
		}
	}
	if c.Player == nil {
		c.Player = &character.Player{Name: c.AccountName}
	}

	return s.joinRoom(s.state.DefaultLobby())
}

func (s *Session) handleChat(cmd *channel.Command) error {
	c := s.client
	if !c.CanChat {
		return nil
	}
	room := s.state.Room(c.LobbyID)
	if room == nil {
		return nil
	}
	room.Lock()
	defer room.Unlock()
	room.Broadcast(packets.ChatType, uint32(c.SlotID), cmd.Payload, -1)
	return nil
}

func (s *Session) handleCreateGame(cmd *channel.Command) error {
	var create packets.CreateGame
	if len(cmd.Payload) < binarySize(&create) {
		return fmt.Errorf("server: short create game payload (%d bytes)", len(cmd.Payload))
	}
	corebytes.StructFromBytes(cmd.Payload, &create)

	c := s.client
	game := s.state.CreateGame(c.Dialect, create.Episode, create.Difficulty, create.SectionID,
		create.CardBattle != 0)
	if s.state.Config.GameServer.CheatsAllowed && create.AllowCheats != 0 {
		game.Lock()
		game.Flags |= lobby.FlagCheatsEnabled
		game.Unlock()
	}

	s.leaveCurrentRoom()
	c.Loading = true
	return s.joinRoom(game)
}

func (s *Session) joinRoom(room *lobby.Lobby) error {
	if room == nil {
		return fmt.Errorf("server: no room available for client %d", s.client.ID)
	}
	room.Lock()
	defer room.Unlock()

	slot, err := room.AddClient(s.client)
	if err != nil {
		return err
	}

	join := packets.RoomMembershipUpdate{
		ClientID: slot,
		LeaderID: room.LeaderID,
	}
	room.Broadcast(packets.JoinRoomType, uint32(slot), buildPacket(&join), int(slot))
	return nil
}

func (s *Session) leaveCurrentRoom() {
	c := s.client
	room := s.state.Room(c.LobbyID)
	if room == nil {
		return
	}
	room.Lock()
	slot := c.SlotID
	newLeader, changed := room.RemoveClient(slot)

	leave := packets.RoomMembershipUpdate{
		ClientID: slot,
		LeaderID: newLeader,
	}
	room.Broadcast(packets.LeaveRoomType, uint32(slot), buildPacket(&leave), -1)
	if changed {
		s.state.Logger.Infof("room %d: slot %d is the new leader", room.ID, newLeader)
	}
	empty := room.IsGame() && room.Leader() == nil
	room.Unlock()

	if empty {
		s.state.RemoveRoom(room.ID)
	}
}

// teardown flushes the player, leaves the room, and closes the socket.
// Save happens before the slot is released so a rejoin never races the
// write.
func (s *Session) teardown() {
	c := s.client

	if c.Player != nil && c.AccountName != "" && s.state.DB != nil {
		blob, err := c.Player.Marshal()
		if err == nil {
			err = data.SavePlayer(s.state.DB, c.AccountName, c.SaveSlot, c.Player.Name, blob)
		}
		if err != nil {
			s.state.Logger.Errorf("saving player for %s: %v", c.AccountName, err)
		}
	}

	s.leaveCurrentRoom()
	c.Disconnect()
	s.state.Logger.Infof("disconnected client %d (%s)", c.ID, c.AccountName)
}

func binarySize(v interface{}) int {
	return len(buildPacket(v))
}
