package subcmd

import (
	"github.com/mvantor/ragol/internal/client"
	"github.com/mvantor/ragol/internal/ep3"
	"github.com/mvantor/ragol/internal/lobby"
	"github.com/mvantor/ragol/internal/packets"
)

// onCardBattleCommand handles the masked 0xB3-0xB5 card battle family:
// strip whatever mask the sender applied, then re-key with a fresh random
// mask (unless masking is disabled) before forwarding.
func onCardBattleCommand(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if len(data) < packets.CardBattleHeaderSize {
		return ErrBadSubcommand
	}
	if !l.IsGame() || l.Flags&lobby.FlagCardOnly == 0 {
		return nil
	}

	// Work on a copy; the caller's buffer may be logged afterwards.
	masked := make([]byte, len(data))
	copy(masked, data)
	if err := ep3.SetCommandMask(masked, 0); err != nil {
		return err
	}

	// 6xB5 subsubcommand 0x1A is a client-side echo that must never be
	// forwarded. 6xB5x36 carries a client id in its first body byte;
	// values past the slot range trap the receiver inside the Morgue, so
	// those are dropped too.
	if masked[0] == packets.SubShopRequest {
		switch masked[4] {
		case 0x1A:
			return nil
		case 0x36:
			if len(masked) < packets.CardBattleHeaderSize+4 {
				return ErrBadSubcommand
			}
			if masked[8] >= 4 {
				return nil
			}
		}
	}

	maskingDisabled := env.Ep3 != nil && env.Ep3.DisableMasking()
	if !maskingDisabled && l.Rand != nil {
		var maskKey uint8
		for maskKey == 0 {
			maskKey = uint8(l.Rand.Intn(0x100))
		}
		if err := ep3.SetCommandMask(masked, maskKey); err != nil {
			return err
		}
	}

	forwardSubcommand(env, l, c, command, flag, masked)
	return nil
}
