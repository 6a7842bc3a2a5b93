package subcmd

import (
	"fmt"

	"github.com/mvantor/ragol/internal/character"
	"github.com/mvantor/ragol/internal/client"
	corebytes "github.com/mvantor/ragol/internal/core/bytes"
	"github.com/mvantor/ragol/internal/items"
	"github.com/mvantor/ragol/internal/lobby"
	"github.com/mvantor/ragol/internal/packets"
)

// dropItem runs the authoritative drop pipeline: the rare table first,
// then the common generator. Returns false when this dialect leaves drops
// to the room leader (the caller forwards the request instead).
func dropItem(env *Env, l *lobby.Lobby, enemyID int, area uint8, x, z float32, requestID uint16) (bool, error) {
	if !l.Dialect.ServerIsItemAuthority() {
		return false, nil
	}
	if l.CommonItems == nil {
		return true, fmt.Errorf("subcmd: drop request in game %d without an item generator", l.ID)
	}

	var item items.ItemData
	var rare *items.RareDrop

	if l.RareItems != nil && l.Rand != nil {
		if table := l.RareItems.Table(l.Episode, l.Difficulty, l.SectionID); table != nil {
			if enemyID < 0 {
				for i := range table.BoxAreas {
					if table.BoxAreas[i] != area {
						continue
					}
					if items.Sample(l.Rand, table.BoxRares[i].Probability) {
						rare = &table.BoxRares[i]
						break
					}
				}
			} else if enemyID <= items.MaxMonsterType &&
				items.Sample(l.Rand, table.MonsterRares[enemyID].Probability) {
				rare = &table.MonsterRares[enemyID]
			}
		}
	}

	if rare != nil {
		copy(item.Data1[:3], rare.ItemCode[:])
		item.MarkUnidentified()
	} else {
		var err error
		item, err = l.CommonItems.CreateDropItem(l.Episode, l.Difficulty, area, l.SectionID)
		if err == items.ErrNothingDropped {
			return true, nil
		}
		if err != nil {
			return true, err
		}
	}

	item.ID = l.GenerateItemID(0xFF)
	if itemTracking(l) {
		if err := l.AddGroundItem(item, area, x, z); err != nil {
			return true, err
		}
	}

	fromEnemy := uint8(0)
	if enemyID >= 0 {
		fromEnemy = 1
	}
	drop := packets.BoxEnemyDropItem{
		Header:    packets.SubcommandHeader{Subcommand: packets.SubBoxEnemyDropItem},
		Area:      area,
		FromEnemy: fromEnemy,
		RequestID: requestID,
		X:         x,
		Z:         z,
		Item:      item,
	}
	payload := buildSub(&drop)
	payload[1] = uint8(len(payload) / 4)
	l.Broadcast(packets.SubcmdBroadcastType, 0, payload, -1)
	return true, nil
}

func onEnemyDropItemRequest(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.IsGame() {
		return nil
	}
	var cmd packets.EnemyDropItemRequest
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	handled, err := dropItem(env, l, int(cmd.EnemyID), cmd.Area, cmd.X, cmd.Z, cmd.RequestID)
	if err != nil {
		return err
	}
	if !handled {
		forwardSubcommand(env, l, c, command, flag, data)
	}
	return nil
}

func onBoxDropItemRequest(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.IsGame() {
		return nil
	}
	var cmd packets.BoxDropItemRequest
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	handled, err := dropItem(env, l, -1, cmd.Area, cmd.X, cmd.Z, cmd.RequestID)
	if err != nil {
		return err
	}
	if !handled {
		forwardSubcommand(env, l, c, command, flag, data)
	}
	return nil
}

func onEnemyHit(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if l.Dialect.ServerIsItemAuthority() {
		var cmd packets.EnemyHit
		if err := parseSub(data, &cmd); err != nil {
			return err
		}
		if !l.IsGame() {
			return nil
		}
		enemyID := int(cmd.Header.ClientID)
		if enemyID >= len(l.Enemies) {
			return nil
		}
		enemy := &l.Enemies[enemyID]
		if enemy.HitFlags&lobby.EnemyKilledFlag != 0 {
			return nil
		}
		enemy.HitFlags |= 1 << c.SlotID
		enemy.LastHit = c.SlotID
	}

	forwardSubcommand(env, l, c, command, flag, data)
	return nil
}

func onEnemyKilled(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	forwardSubcommand(env, l, c, command, flag, data)

	if !l.Dialect.ServerIsItemAuthority() {
		return nil
	}
	if !l.IsGame() {
		return fmt.Errorf("subcmd: enemy killed outside of a game")
	}

	var cmd packets.EnemyKilled
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	enemyID := int(cmd.Header.ClientID)
	if enemyID >= len(l.Enemies) {
		env.Logger.Warnf("kill reported for missing enemy %d", enemyID)
		return nil
	}

	enemy := &l.Enemies[enemyID]
	if enemy.HitFlags&lobby.EnemyKilledFlag != 0 {
		return nil // already dead; experience was awarded once
	}
	if enemy.Experience == lobby.UnknownExperience {
		env.Logger.Warnf("kill reported for enemy %d with unknown type", enemyID)
		return nil
	}
	enemy.HitFlags |= lobby.EnemyKilledFlag

	for slot := uint8(0); slot < l.MaxClients; slot++ {
		if (enemy.HitFlags>>slot)&1 == 0 {
			continue
		}
		target := l.Clients[slot]
		if target == nil || target.Player == nil {
			continue
		}
		player := target.Player
		if player.Level >= character.MaxLevel {
			continue
		}

		// The killing blow earns full experience; assists earn 77%.
		exp := enemy.Experience
		if enemy.LastHit != slot {
			exp = enemy.Experience * 77 / 100
		}
		player.Experience += exp
		sendGiveExperience(l, slot, exp)

		leveledUp := false
		for player.Level < character.MaxLevel {
			next, err := env.LevelTable.StatsForLevel(player.Class, player.Level+1)
			if err != nil {
				return err
			}
			if player.Experience < next.Experience {
				break
			}
			next.Apply(&player.Stats)
			player.Level++
			leveledUp = true
		}
		if leveledUp {
			sendLevelUp(l, slot, player)
		}
	}
	return nil
}

func sendGiveExperience(l *lobby.Lobby, slot uint8, amount uint32) {
	cmd := packets.GiveExperience{
		Header: packets.SubcommandHeader{
			Subcommand: packets.SubGiveExperience,
			SizeWords:  2,
			ClientID:   uint16(slot),
		},
		Amount: amount,
	}
	l.Broadcast(packets.SubcmdBroadcastType, 0, buildSub(&cmd), -1)
}

func sendLevelUp(l *lobby.Lobby, slot uint8, player *character.Player) {
	cmd := packets.LevelUp{
		Header: packets.SubcommandHeader{
			Subcommand: 0x30,
			SizeWords:  5,
			ClientID:   uint16(slot),
		},
		ATP:   player.Stats.ATP,
		MST:   player.Stats.MST,
		EVP:   player.Stats.EVP,
		HP:    player.Stats.HP,
		DFP:   player.Stats.DFP,
		ATA:   player.Stats.ATA,
		Level: uint16(player.Level),
	}
	l.Broadcast(packets.SubcmdBroadcastType, 0, buildSub(&cmd), -1)
}

func onShopRequest(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if l.Flags&lobby.FlagCardOnly != 0 {
		return onCardBattleCommand(env, l, c, command, flag, data)
	}
	if !l.Dialect.ServerIsItemAuthority() || !l.IsGame() {
		return nil
	}
	if l.CommonItems == nil || l.Rand == nil {
		return fmt.Errorf("subcmd: shop request in game %d without an item generator", l.ID)
	}

	var cmd packets.ShopContentsRequest
	if err := parseSub(data, &cmd); err != nil {
		return err
	}

	var itemClass uint8
	switch cmd.ShopType {
	case 0:
		itemClass = items.CategoryTool
	case 1:
		itemClass = items.CategoryWeapon
	case 2:
		itemClass = items.CategoryArmor
	default:
		// Unknown shop type: an empty inventory, not an error.
		c.ShopContents = nil
		return sendShopContents(l, c, uint8(cmd.ShopType))
	}

	numItems := 9 + l.Rand.Intn(4)
	c.ShopContents = c.ShopContents[:0]
	for len(c.ShopContents) < numItems {
		item := l.CommonItems.CreateShopItem(l.Difficulty, itemClass)
		item.ID = l.GenerateItemID(c.SlotID)
		c.ShopContents = append(c.ShopContents, item)
	}
	return sendShopContents(l, c, uint8(cmd.ShopType))
}

// sendShopContents pushes the generated inventory to the requesting client
// only: 6xB6 with an extended size header.
func sendShopContents(l *lobby.Lobby, c *client.Client, shopType uint8) error {
	payload := []byte{0xB6, 0, 0, 0, 0, 0, 0, 0}
	payload = append(payload, shopType, uint8(len(c.ShopContents)), 0, 0)
	for i := range c.ShopContents {
		b, _ := corebytes.BytesFromStruct(&c.ShopContents[i])
		payload = append(payload, b...)
	}
	setExtendedSize(payload)
	l.SendToSlot(c.SlotID, packets.SubcmdBroadcastType, 0, payload)
	return nil
}

// setExtendedSize writes the 32-bit byte size used when the word-size
// field can't express the payload.
func setExtendedSize(payload []byte) {
	size := uint32(len(payload))
	payload[1] = 0
	payload[4] = byte(size)
	payload[5] = byte(size >> 8)
	payload[6] = byte(size >> 16)
	payload[7] = byte(size >> 24)
}

func onBankRequest(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if l.Dialect.ServerIsItemAuthority() && l.IsGame() {
		return sendBankContents(l, c)
	}
	if l.Flags&lobby.FlagCardOnly != 0 {
		forwardSubcommand(env, l, c, command, flag, data)
	}
	return nil
}

func sendBankContents(l *lobby.Lobby, c *client.Client) error {
	if c.Player == nil {
		return nil
	}
	bank := &c.Player.Bank

	payload := []byte{packets.SubBankRequest + 1, 0, 0, 0, 0, 0, 0, 0}
	payload = appendUint32(payload, bank.Meseta)
	payload = appendUint32(payload, uint32(len(bank.Items)))
	for i := range bank.Items {
		b, _ := corebytes.BytesFromStruct(&bank.Items[i])
		payload = append(payload, b...)
	}
	setExtendedSize(payload)
	l.SendToSlot(c.SlotID, packets.SubcmdBroadcastType, 0, payload)
	return nil
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func onBankAction(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.Dialect.ServerIsItemAuthority() {
		// In card rooms the same opcode is word select during battle.
		if l.Flags&lobby.FlagCardOnly != 0 {
			forwardSubcommand(env, l, c, command, flag, data)
		}
		return nil
	}
	var cmd packets.BankAction
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() || c.Player == nil {
		return nil
	}
	if !itemTracking(l) {
		return errItemTrackingOff(l)
	}
	player := c.Player

	switch cmd.Action {
	case 0: // deposit
		if cmd.ItemID == items.MesetaID {
			if cmd.MesetaAmount > player.Meseta {
				return nil
			}
			if player.Bank.Meseta+cmd.MesetaAmount > items.MaxMeseta {
				return nil
			}
			player.Bank.Meseta += cmd.MesetaAmount
			player.Meseta -= cmd.MesetaAmount
		} else {
			item, err := player.RemoveItem(cmd.ItemID, uint32(cmd.ItemAmount))
			if err != nil {
				return err
			}
			player.Bank.AddItem(item)
			sendDestroyItem(l, c, cmd.ItemID, uint32(cmd.ItemAmount))
		}
	case 1: // take
		if cmd.ItemID == items.MesetaID {
			if cmd.MesetaAmount > player.Bank.Meseta {
				return nil
			}
			if player.Meseta+cmd.MesetaAmount > items.MaxMeseta {
				return nil
			}
			player.Bank.Meseta -= cmd.MesetaAmount
			player.Meseta += cmd.MesetaAmount
		} else {
			item, err := player.Bank.RemoveItem(cmd.ItemID, uint32(cmd.ItemAmount))
			if err != nil {
				return err
			}
			// Withdrawn items re-enter the room under a fresh id.
			item.ID = l.GenerateItemID(0xFF)
			if err := player.AddItem(item); err != nil {
				return err
			}
			sendCreateInventoryItem(l, c, item)
		}
	}
	return nil
}

func sendDestroyItem(l *lobby.Lobby, c *client.Client, itemID, amount uint32) {
	cmd := packets.DeleteInventoryItem{
		Header: packets.SubcommandHeader{
			Subcommand: packets.SubDeleteInventoryItem,
			SizeWords:  3,
			ClientID:   uint16(c.SlotID),
		},
		ItemID: itemID,
		Amount: amount,
	}
	l.Broadcast(packets.SubcmdBroadcastType, 0, buildSub(&cmd), -1)
}

func sendCreateInventoryItem(l *lobby.Lobby, c *client.Client, item items.ItemData) {
	cmd := packets.CreateItemResult{
		Header: packets.SubcommandHeader{
			Subcommand: packets.SubCreateItemResult,
			SizeWords:  7,
			ClientID:   uint16(c.SlotID),
		},
		Item: item,
	}
	l.Broadcast(packets.SubcmdBroadcastType, 0, buildSub(&cmd), -1)
}

const identifyFee = 100

func onIdentifyItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.Dialect.ServerIsItemAuthority() {
		forwardSubcommand(env, l, c, command, flag, data)
		return nil
	}
	var cmd packets.IdentifyItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if !l.IsGame() || c.Player == nil {
		return nil
	}
	if !itemTracking(l) {
		return errItemTrackingOff(l)
	}

	index, err := c.Player.Inventory.FindItem(cmd.ItemID)
	if err != nil {
		return err
	}
	if c.Player.Inventory.Items[index].Data.Category() != items.CategoryWeapon {
		return nil // only weapons can be identified
	}
	if c.Player.Meseta < identifyFee {
		return nil
	}
	c.Player.Meseta -= identifyFee

	result := c.Player.Inventory.Items[index].Data
	result.MarkIdentified()
	c.IdentifyResult = &result

	res := packets.IdentifyResult{
		Header: packets.SubcommandHeader{
			Subcommand: packets.SubIdentifyResult,
			SizeWords:  6,
			ClientID:   uint16(c.SlotID),
		},
		Item: result,
	}
	l.Broadcast(packets.SubcmdBroadcastType, 0, buildSub(&res), -1)
	return nil
}

func onAcceptIdentifyItem(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.Dialect.ServerIsItemAuthority() {
		forwardSubcommand(env, l, c, command, flag, data)
		return nil
	}
	var cmd packets.IdentifyItem
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if c.Player == nil {
		return nil
	}
	if !itemTracking(l) {
		return errItemTrackingOff(l)
	}
	if c.IdentifyResult == nil {
		return fmt.Errorf("subcmd: no identify result present")
	}
	if c.IdentifyResult.ID != cmd.ItemID {
		return fmt.Errorf("subcmd: accepted item id %08X does not match identify result %08X",
			cmd.ItemID, c.IdentifyResult.ID)
	}

	if err := c.Player.AddItem(*c.IdentifyResult); err != nil {
		return err
	}
	sendCreateInventoryItem(l, c, *c.IdentifyResult)
	c.IdentifyResult = nil
	return nil
}

func onSortInventory(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.Dialect.ServerIsItemAuthority() {
		return nil
	}
	var cmd packets.SortInventory
	if err := parseSub(data, &cmd); err != nil {
		return err
	}
	if c.Player == nil {
		return nil
	}
	if !itemTracking(l) {
		return errItemTrackingOff(l)
	}

	sorted := make([]character.InventoryItem, 0, len(c.Player.Inventory.Items))
	for _, id := range cmd.ItemIDs {
		if id == 0xFFFFFFFF {
			continue
		}
		index, err := c.Player.Inventory.FindItem(id)
		if err != nil {
			return err
		}
		sorted = append(sorted, c.Player.Inventory.Items[index])
	}
	if len(sorted) == len(c.Player.Inventory.Items) {
		c.Player.Inventory.Items = sorted
	}
	return nil
}

const medicalFee = 10

func onMedicalCenter(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if !l.Dialect.ServerIsItemAuthority() || c.Player == nil {
		return nil
	}
	if c.Player.Meseta < medicalFee {
		return fmt.Errorf("subcmd: insufficient funds for medical center")
	}
	c.Player.Meseta -= medicalFee
	return nil
}

// Shop pricing is not implemented; the original server never finished it
// either, so these fail loudly instead of guessing at prices.
func onSellItemAtShop(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if l.Dialect.ServerIsItemAuthority() {
		if !itemTracking(l) {
			return errItemTrackingOff(l)
		}
		return ErrUnsupported
	}
	return nil
}

func onBuyShopItemAuthoritative(env *Env, l *lobby.Lobby, c *client.Client, command uint16, flag uint32, data []byte) error {
	if l.Dialect.ServerIsItemAuthority() {
		if !itemTracking(l) {
			return errItemTrackingOff(l)
		}
		return ErrUnsupported
	}
	return nil
}
