// Package client represents one connected game client: its channel, its
// dialect, and the per-session state the room handlers need. The room owns
// its slot array; a client only remembers which room it's in by id.
package client

import (
	"sync/atomic"

	"github.com/mvantor/ragol/internal/channel"
	"github.com/mvantor/ragol/internal/character"
	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/items"
)

var nextClientID uint64

type Client struct {
	// Monotonic connection id, for logging only.
	ID uint64

	Channel *channel.Channel
	Dialect dialect.Dialect

	// Account this connection authenticated as.
	AccountName string
	SaveSlot    int

	// Session flags.
	IsEp3Capable bool
	IsV1         bool
	CanChat      bool
	CheatsOn     bool
	InfiniteHP   bool
	InfiniteTP   bool
	SwitchAssist bool

	// Room membership. LobbyID 0 means not in a room; SlotID is the index
	// the room assigned, reused by the client as its identity on the wire.
	LobbyID uint32
	SlotID  uint8

	// Transient position within the current game.
	Area uint8
	X    float32
	Z    float32

	// Whether the client has finished loading into its current game.
	Loading bool

	// Cached 6x05 enable command for the switch-assist cheat.
	LastSwitchCommand []byte

	// Pending tekker result, if an identify is in flight.
	IdentifyResult *items.ItemData

	// Last shop inventory sent, kept so purchases can be validated.
	ShopContents []items.ItemData

	Player *character.Player
}

func New(ch *channel.Channel) *Client {
	return &Client{
		ID:      atomic.AddUint64(&nextClientID, 1),
		Channel: ch,
		Dialect: ch.Dialect(),
		CanChat: true,
	}
}

// Send frames and encrypts one command toward this client.
func (c *Client) Send(opcode uint16, flag uint32, payload []byte) error {
	return c.Channel.Send(opcode, flag, payload)
}

// SendRaw writes a frame that already carries a header.
func (c *Client) SendRaw(data []byte) error {
	return c.Channel.SendRaw(data)
}

// Disconnect closes the connection. Room removal happens at the session
// layer before the client is dropped.
func (c *Client) Disconnect() {
	c.Channel.Disconnect()
}
