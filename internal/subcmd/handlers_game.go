package subcmd

import (
	"github.com/mvantor/ragol/internal/client"
	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/lobby"
	"github.com/mvantor/ragol/internal/packets"
)

// Player stat adjustments pushed by the cheat handlers via subcommand 0x9A.
const (
	statAddHP uint8 = 4
	statAddTP uint8 = 5
)

type changePlayerStat struct {
	Header   packets.SubcommandHeader
	StatType uint8
	Unused   uint8
	Amount   uint16
}

func sendPlayerStatsChange(l *lobby.Lobby, c *client.Client, statType uint8, amount uint16) {
	cmd := changePlayerStat{
		Header: packets.SubcommandHeader{
			Subcommand: 0x9A,
			SizeWords:  2,
			ClientID:   uint16(c.SlotID),
		},
		StatType: statType,
		Amount:   amount,
	}
	l.Broadcast(packets.SubcmdBroadcastType, 0, buildSub(&cmd), -1)
}

func onSwitchStateChanged(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.SwitchStateChanged
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() {
		return nil
	}
	forwardSubcommand(env, l, c, command, flag, data)

	if cmd.Flags != 0 && cmd.Header.ClientID != 0xFFFF {
		if l.Flags&lobby.FlagCheatsEnabled != 0 && c.SwitchAssist && c.LastSwitchCommand != nil {
			env.Logger.Infof("[Switch assist] replaying previous enable command for %s", c.AccountName)
			forwardSubcommand(env, l, c, command, flag, c.LastSwitchCommand)
			l.SendToSlot(c.SlotID, command, flag, c.LastSwitchCommand)
		}
		c.LastSwitchCommand = make([]byte, len(data))
		copy(c.LastSwitchCommand, data)
	}
	return nil
}

func onGuildCardSend(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	// Only meaningful as a private send to a live slot; the card contents
	// are client-generated on every dialect we serve.
	if !packets.IsPrivateEnvelope(command) || flag >= uint32(l.MaxClients) || l.Clients[flag] == nil {
		return nil
	}
	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onSymbolChat(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !c.CanChat || clientIDField(data) != uint16(c.SlotID) {
		return nil
	}
	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onWordSelect(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !c.CanChat || clientIDField(data) != uint16(c.SlotID) {
		return nil
	}
	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onSetPlayerVisibility(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if clientIDField(data) != uint16(c.SlotID) {
		return nil
	}
	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onChangeArea(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.InterLevelWarp
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() {
		return nil
	}
	c.Area = uint8(cmd.Area)
	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onMovement(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.Movement
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if cmd.Header.ClientID != uint16(c.SlotID) {
		return nil
	}
	c.X = cmd.X
	c.Z = cmd.Z
	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onHitByEnemy(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.IsGame() || clientIDField(data) != uint16(c.SlotID) {
		return nil
	}
	forwardSubcommand(env, l, c, command, flag, data)
	if l.Flags&lobby.FlagCheatsEnabled != 0 && c.InfiniteHP {
		sendPlayerStatsChange(l, c, statAddHP, 2550)
	}
	return nil
}

func onCastTechniqueFinished(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.IsGame() || clientIDField(data) != uint16(c.SlotID) {
		return nil
	}
	forwardSubcommand(env, l, c, command, flag, data)
	if l.Flags&lobby.FlagCheatsEnabled != 0 && c.InfiniteTP {
		sendPlayerStatsChange(l, c, statAddTP, 255)
	}
	return nil
}

// The three bounded-list commands carry an element count that must fit the
// declared payload size.
func checkBoundedCount(data []byte, headerBytes, countOffset, maxEntries int) error {
	if len(data) <= countOffset {
		return ErrBadSubcommand
	}
	allowed := int(data[1]) - headerBytes/4
	if allowed > maxEntries {
		allowed = maxEntries
	}
	if int(data[countOffset]) > allowed {
		return ErrBadSubcommand
	}
	return nil
}

func onAttackFinished(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if err := checkBoundedCount(data, 8, 4, 11); err != nil {
		return err
	}
	return forwardClientChecked(env, l, c, command, flag, data)
}

func onCastTechnique(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if err := checkBoundedCount(data, 8, 6, 10); err != nil {
		return err
	}
	return forwardClientChecked(env, l, c, command, flag, data)
}

func onSubtractPBEnergy(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if err := checkBoundedCount(data, 12, 7, 14); err != nil {
		return err
	}
	return forwardClientChecked(env, l, c, command, flag, data)
}

func forwardClientChecked(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if clientIDField(data) != uint16(c.SlotID) {
		return nil
	}
	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

// Boss phase numbers that complete an episode's final fight. When the
// matching phase setup arrives from the boss arena, the server synthesizes
// a drop request so the boss reward appears even though the boss entity
// never registers a normal kill.
func onPhaseSetup(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	// The first two client generations send a short form without the
	// difficulty field and never fight the scripted boss phases.
	if c.Dialect == dialect.V1 || c.Dialect == dialect.V2 {
		forwardSubcommand(env, l, c, command, flag, data)
		return nil
	}

	var cmd packets.PhaseSetup
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() {
		return nil
	}
	forwardSubcommand(env, l, c, command, flag, data)

	if uint8(cmd.Difficulty) != l.Difficulty {
		return nil
	}

	shouldSendBossDropReq := false
	switch {
	case l.Episode == 1 && c.Area == 0x0E:
		// On the lowest difficulty the final boss has no third phase, so
		// the drop request fires at the end of the second.
		if (l.Difficulty == 0 && cmd.Phase == 0x0035) || (l.Difficulty != 0 && cmd.Phase == 0x0037) {
			shouldSendBossDropReq = true
		}
	case l.Episode == 2 && c.Area == 0x0D && cmd.Phase == 0x0057:
		shouldSendBossDropReq = true
	}
	if !shouldSendBossDropReq {
		return nil
	}

	leader := l.Leader()
	if leader == nil {
		return nil
	}

	req := packets.EnemyDropItemRequest{
		Header: packets.SubcommandHeader{
			Subcommand: packets.SubEnemyDropItemRequest,
			SizeWords:  6,
		},
		Area:      c.Area,
		EnemyID:   0x2F,
		RequestID: 0x0B4F,
		X:         10160.58984375,
		Z:         0.0,
		Unknown1:  2,
		Unknown3:  0xE0AEDC01,
	}
	if l.Episode == 2 {
		req.EnemyID = 0x4E
		req.X = -9999.0
	}
	l.SendToSlot(l.LeaderID, packets.SubcmdPrivateType, uint32(l.LeaderID), buildSub(&req))
	return nil
}
