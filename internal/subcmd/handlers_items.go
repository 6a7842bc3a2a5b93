package subcmd

import (
	"fmt"

	"github.com/mvantor/ragol/internal/client"
	"github.com/mvantor/ragol/internal/items"
	"github.com/mvantor/ragol/internal/lobby"
	"github.com/mvantor/ragol/internal/packets"
)

func itemTracking(l *lobby.Lobby) bool {
	return l.Flags&lobby.FlagItemTracking != 0
}

func onPlayerDropItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.PlayerDropItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if cmd.Header.ClientID != uint16(c.SlotID) {
		return nil
	}

	if itemTracking(l) && c.Player != nil {
		item, err := c.Player.RemoveItem(cmd.ItemID, 0)
		if err != nil {
			return err
		}
		if err := l.AddGroundItem(item, uint8(cmd.Area), cmd.X, cmd.Z); err != nil {
			return err
		}
		env.Logger.Infof("player %d dropped item %08X at %d:(%g, %g)",
			cmd.Header.ClientID, cmd.ItemID, cmd.Area, cmd.X, cmd.Z)
	}

	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onCreateInventoryItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.CreateInventoryItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if cmd.Header.ClientID != uint16(c.SlotID) {
		return nil
	}
	// Where the server is item authority, inventory items only ever come
	// from the server (shop buys, bank withdrawals, tekker results).
	if c.Dialect.ServerIsItemAuthority() {
		return nil
	}

	if itemTracking(l) && c.Player != nil {
		if err := c.Player.AddItem(cmd.Item); err != nil {
			return err
		}
		env.Logger.Infof("player %d created inventory item %08X", cmd.Header.ClientID, cmd.Item.ID)
	}

	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

// onDropPartialStack covers the leader-authority dialects; the 0xC3 split
// handler covers the server-authority path.
func onDropPartialStack(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.DropStackedItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() || l.Dialect.ServerIsItemAuthority() {
		return nil
	}

	if itemTracking(l) {
		if err := l.AddGroundItem(cmd.Item, uint8(cmd.Area), cmd.X, cmd.Z); err != nil {
			return err
		}
		env.Logger.Infof("player %d split stack to create ground item %08X at %d:(%g, %g)",
			cmd.Header.ClientID, cmd.Item.ID, cmd.Area, cmd.X, cmd.Z)
	}

	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onSplitStackedItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.Dialect.ServerIsItemAuthority() {
		forwardSubcommand(env, l, c, command, flag, data)
		return nil
	}

	var cmd packets.SplitStackedItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() || cmd.Header.ClientID != uint16(c.SlotID) || c.Player == nil {
		return nil
	}
	if !itemTracking(l) {
		return errItemTrackingOff(l)
	}

	item, err := c.Player.RemoveItem(cmd.ItemID, cmd.Amount)
	if err != nil {
		return err
	}

	// If a stack was split the original item still exists, so the dropped
	// portion needs a fresh id before peers see it.
	if item.ID == items.SentinelID {
		item.ID = l.GenerateItemID(c.SlotID)
	}

	if err := l.AddGroundItem(item, uint8(cmd.Area), cmd.X, cmd.Z); err != nil {
		return err
	}

	env.Logger.Infof("player %d split stack %08X (%d of them) at %d:(%g, %g)",
		cmd.Header.ClientID, cmd.ItemID, cmd.Amount, cmd.Area, cmd.X, cmd.Z)

	drop := packets.DropStackedItem{
		Header: packets.SubcommandHeader{
			Subcommand: packets.SubDropStackedItem,
			ClientID:   uint16(c.SlotID),
		},
		Area: cmd.Area,
		X:    cmd.X,
		Z:    cmd.Z,
		Item: item,
	}
	payload := buildSub(&drop)
	payload[1] = uint8(len(payload) / 4)
	l.Broadcast(packets.SubcmdBroadcastType, 0, payload, -1)
	return nil
}

func errItemTrackingOff(l *lobby.Lobby) error {
	return fmt.Errorf("subcmd: item tracking not enabled in authoritative game %d", l.ID)
}

func onBuyShopItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.BuyShopItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() || cmd.Header.ClientID != uint16(c.SlotID) {
		return nil
	}
	if l.Dialect.ServerIsItemAuthority() {
		return nil
	}

	if itemTracking(l) && c.Player != nil {
		if err := c.Player.AddItem(cmd.Item); err != nil {
			return err
		}
		env.Logger.Infof("player %d bought item %08X from shop", cmd.Header.ClientID, cmd.Item.ID)
	}

	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onBoxOrEnemyItemDrop(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.BoxEnemyDropItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() || c.SlotID != l.LeaderID {
		return nil
	}
	if l.Dialect.ServerIsItemAuthority() {
		return nil
	}

	if itemTracking(l) {
		if err := l.AddGroundItem(cmd.Item, cmd.Area, cmd.X, cmd.Z); err != nil {
			return err
		}
	}
	env.Logger.Infof("leader created ground item %08X at %d:(%g, %g)", cmd.Item.ID, cmd.Area, cmd.X, cmd.Z)

	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onPickUpItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.PickUpItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() {
		return nil
	}
	// Server-authority games only ever see the server's own 6x59 echo.
	if l.Dialect.ServerIsItemAuthority() {
		return nil
	}

	if int(cmd.Header.ClientID) >= int(l.MaxClients) {
		return nil
	}
	target := l.Clients[cmd.Header.ClientID]
	if target == nil {
		return nil
	}

	if itemTracking(l) && target.Player != nil {
		item, err := l.RemoveGroundItem(cmd.ItemID)
		if err != nil {
			return err
		}
		if err := target.Player.AddItem(item); err != nil {
			return err
		}
		env.Logger.Infof("player %d picked up %08X", cmd.Header.ClientID, cmd.ItemID)
	}

	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onPickUpItemRequest(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.Dialect.ServerIsItemAuthority() {
		// The room leader performs the transfer and answers with 6x59.
		forwardSubcommand(env, l, c, command, flag, data)
		return nil
	}

	var cmd packets.PickUpItemRequest
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() || cmd.Header.ClientID != uint16(c.SlotID) || c.Player == nil {
		return nil
	}
	if !itemTracking(l) {
		return errItemTrackingOff(l)
	}

	item, err := l.RemoveGroundItem(cmd.ItemID)
	if err != nil {
		return err
	}
	if err := c.Player.AddItem(item); err != nil {
		// Put the item back so it isn't lost to the room.
		_ = l.AddGroundItem(item, uint8(cmd.Area), c.X, c.Z)
		return err
	}
	env.Logger.Infof("player %d picked up %08X", cmd.Header.ClientID, cmd.ItemID)

	pickup := packets.PickUpItem{
		Header: packets.SubcommandHeader{
			Subcommand: packets.SubPickUpItem,
			SizeWords:  3,
			ClientID:   uint16(c.SlotID),
		},
		ClientID2: uint16(c.SlotID),
		Area:      cmd.Area,
		ItemID:    cmd.ItemID,
	}
	l.Broadcast(packets.SubcmdBroadcastType, 0, buildSub(&pickup), -1)
	return nil
}

func onEquipUnequipItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.EquipOrUnequipItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if cmd.Header.ClientID != uint16(c.SlotID) {
		return nil
	}

	if itemTracking(l) && c.Player != nil {
		equip := cmd.Header.Subcommand == packets.SubEquipItem
		if err := c.Player.SetEquipped(cmd.ItemID, equip); err != nil {
			return err
		}
	} else if l.Dialect.ServerIsItemAuthority() {
		return errItemTrackingOff(l)
	}

	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onUseItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.UseItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if cmd.Header.ClientID != uint16(c.SlotID) {
		return nil
	}

	if itemTracking(l) && c.Player != nil {
		index, err := c.Player.Inventory.FindItem(cmd.ItemID)
		if err != nil {
			return err
		}
		// Consumables burn one of the stack; single items are destroyed
		// outright (tech disks, used tools).
		amount := uint32(0)
		if c.Player.Inventory.Items[index].Data.Stackable() {
			amount = 1
		}
		if _, err := c.Player.RemoveItem(cmd.ItemID, amount); err != nil {
			return err
		}
		env.Logger.Infof("player %d used item %08X", cmd.Header.ClientID, cmd.ItemID)
	}

	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onDestroyInventoryItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.DeleteInventoryItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() || cmd.Header.ClientID != uint16(c.SlotID) {
		return nil
	}

	if itemTracking(l) && c.Player != nil {
		if _, err := c.Player.RemoveItem(cmd.ItemID, cmd.Amount); err != nil {
			return err
		}
		env.Logger.Infof("inventory item %d:%08X destroyed (%d of them)",
			cmd.Header.ClientID, cmd.ItemID, cmd.Amount)
		forwardSubcommand(env, l, c, command, flag, data)
	}
	return nil
}

func onDestroyGroundItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	var cmd packets.DestroyGroundItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() {
		return nil
	}

	if itemTracking(l) {
		if _, err := l.RemoveGroundItem(cmd.ItemID); err != nil {
			return err
		}
		env.Logger.Infof("ground item %08X destroyed", cmd.ItemID)
		forwardSubcommand(env, l, c, command, flag, data)
	}
	return nil
}
