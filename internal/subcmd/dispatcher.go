// Package subcmd implements the in-room subcommand dispatcher: a 256-entry
// table of handlers that validate payloads, mutate room state where the
// server is authoritative, and forward traffic to the right subset of
// peers. Subcommands arrive inside the broadcast/private envelope opcodes;
// the session layer routes those envelopes here.
package subcmd

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mvantor/ragol/internal/character"
	"github.com/mvantor/ragol/internal/client"
	corebytes "github.com/mvantor/ragol/internal/core/bytes"
	"github.com/mvantor/ragol/internal/ep3"
	"github.com/mvantor/ragol/internal/lobby"
	"github.com/mvantor/ragol/internal/packets"
)

var (
	// ErrBadSubcommand indicates a payload whose declared size doesn't
	// match the buffer. The connection is closed since framing trust is
	// gone.
	ErrBadSubcommand = errors.New("subcmd: subcommand size mismatch")
	// ErrUnsupported marks deliberately unimplemented legacy flows (shop
	// buy and sell pricing).
	ErrUnsupported = errors.New("subcmd: unsupported operation")
)

// Env bundles the immutable services handlers consult. One per process.
type Env struct {
	Logger     *logrus.Logger
	LevelTable *character.LevelTable
	Ep3        *ep3.DataIndex
}

type handlerFunc func(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error

// forwarding policies for table entries without custom handlers
type policy uint8

const (
	policyDrop policy = iota
	// forward verbatim
	policyForward
	// forward only inside games
	policyForwardGame
	// forward only while a game is loading (the 6B-72 quest sync window)
	policyForwardLoading
	// forward only when the embedded client id matches the sender
	policyForwardClient
	// forward only in card-capable lobbies / games
	policyForwardCardLobby
	policyForwardCardGame
	policyCustom
	policyInvalid
)

type entry struct {
	name   string
	policy policy
	fn     handlerFunc
}

var table [0x100]*entry

// Dispatch validates and executes one subcommand. The room lock is held
// for the whole invocation so peers never observe partial mutations.
func Dispatch(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadSubcommand)
	}

	l.Lock()
	defer l.Unlock()

	opcode := data[0]
	e := table[opcode]
	if e == nil {
		if packets.IsPrivateEnvelope(command) {
			env.Logger.Warnf("unknown subcommand %02X (private to %d)", opcode, flag)
		} else {
			env.Logger.Warnf("unknown subcommand %02X (public)", opcode)
		}
		return nil
	}

	if err := checkEnvelopeSize(data); err != nil {
		return err
	}

	switch e.policy {
	case policyDrop:
		return nil
	case policyForward:
		forwardSubcommand(env, l, c, command, flag, data)
		return nil
	case policyForwardGame:
		if l.IsGame() {
			forwardSubcommand(env, l, c, command, flag, data)
		}
		return nil
	case policyForwardLoading:
		if l.IsGame() && l.AnyClientLoading() {
			forwardSubcommand(env, l, c, command, flag, data)
		}
		return nil
	case policyForwardClient:
		if clientIDField(data) != uint16(c.SlotID) {
			return nil
		}
		forwardSubcommand(env, l, c, command, flag, data)
		return nil
	case policyForwardCardLobby:
		if !l.IsGame() && l.Flags&lobby.FlagCardOnly != 0 {
			forwardSubcommand(env, l, c, command, flag, data)
		}
		return nil
	case policyForwardCardGame:
		if l.IsGame() && l.Flags&lobby.FlagCardOnly != 0 {
			forwardSubcommand(env, l, c, command, flag, data)
		}
		return nil
	case policyInvalid:
		if packets.IsPrivateEnvelope(command) {
			env.Logger.Errorf("invalid subcommand %02X (private to %d)", opcode, flag)
		} else {
			env.Logger.Errorf("invalid subcommand %02X (public)", opcode)
		}
		return nil
	}
	return e.fn(env, l, c, command, flag, data)
}

// checkEnvelopeSize enforces the envelope header rule: the second byte is
// the payload size in 4-byte words, or zero with an extended 32-bit byte
// size at offset 4.
func checkEnvelopeSize(data []byte) error {
	if len(data) < packets.SubcommandHeaderSize {
		return fmt.Errorf("%w: %d bytes is too short for a header", ErrBadSubcommand, len(data))
	}
	if data[1] == 0 {
		if len(data) < 8 {
			return fmt.Errorf("%w: extended size with %d bytes", ErrBadSubcommand, len(data))
		}
		if ext := binary.LittleEndian.Uint32(data[4:8]); int(ext) != len(data) {
			return fmt.Errorf("%w: extended size %d vs %d bytes", ErrBadSubcommand, ext, len(data))
		}
		return nil
	}
	if int(data[1])*4 != len(data) {
		return fmt.Errorf("%w: declared %d words vs %d bytes", ErrBadSubcommand, data[1], len(data))
	}
	return nil
}

func clientIDField(data []byte) uint16 {
	return binary.LittleEndian.Uint16(data[2:4])
}

// The chat subcommands mirrored to watchers even before a battle starts.
var watcherSubcommands = map[uint8]bool{
	packets.SubSymbolChat: true,
	packets.SubWordSelect: true,
	0xBD:                  true, // word select during battle
}

// forwardSubcommand applies the forwarding policy shared by every handler:
// private envelopes go to one slot, broadcasts to everyone else in the
// room, card traffic only to card-capable peers, plus watcher mirroring
// and battle recording.
func forwardSubcommand(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) {
	isCard := packets.IsCardEnvelope(command)
	if isCard && !c.IsEp3Capable {
		return
	}

	if packets.IsPrivateEnvelope(command) {
		if flag >= uint32(l.MaxClients) {
			return
		}
		target := l.Clients[flag]
		if target == nil {
			return
		}
		if isCard && !target.IsEp3Capable {
			return
		}
		l.SendToSlot(uint8(flag), command, flag, data)
		return
	}

	if isCard {
		for slot := uint8(0); slot < l.MaxClients; slot++ {
			target := l.Clients[slot]
			if target == nil || target == c || !target.IsEp3Capable {
				continue
			}
			l.SendToSlot(slot, command, flag, data)
		}
	} else {
		l.Broadcast(command, flag, data, int(c.SlotID))
	}

	// Watchers get chat immediately and everything once the battle is
	// actually running. Private envelopes never reach watchers.
	if len(data) > 0 && (watcherSubcommands[data[0]] || l.Flags&lobby.FlagBattleInProgress != 0) {
		for _, watcher := range l.WatcherLobbies {
			watcher.Broadcast(command, flag, data, -1)
		}
	}

	if l.BattleRecord != nil && l.BattleRecord.BattleInProgress() {
		eventType := ep3.EventGameCommand
		if (command & 0xF0) == 0xC0 {
			eventType = ep3.EventCardGameCommand
		}
		l.BattleRecord.AddCommand(eventType, data)
	}
}

// parseSub length-checks and deserializes one subcommand struct.
func parseSub(data []byte, out interface{}) error {
	size := binary.Size(out)
	if size < 0 || len(data) < size {
		return fmt.Errorf("%w: %d bytes for %T", ErrBadSubcommand, len(data), out)
	}
	corebytes.StructFromBytes(data, out)
	return nil
}

// buildSub serializes a server-generated subcommand.
func buildSub(in interface{}) []byte {
	b, _ := corebytes.BytesFromStruct(in)
	return b
}
