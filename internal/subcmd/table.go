package subcmd

func setEntry(opcode uint8, e entry) {
	table[opcode] = &e
}

func setCustom(opcode uint8, name string, fn handlerFunc) {
	table[opcode] = &entry{name: name, policy: policyCustom, fn: fn}
}

func init() {
	// Pure forwarders, grouped by policy. Opcodes absent from every group
	// are unimplemented and dropped with a warning.
	for _, op := range []uint8{
		0x0B, 0x0C, 0x0D, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19,
		0x1C, 0x24, 0x28, 0x30, 0x31, 0x32, 0x33, 0x37, 0x39, 0x3A, 0x53,
		0x58, 0x61, 0x66, 0x67, 0x68, 0x69, 0x6A, 0x76, 0x77, 0x7C, 0x7D,
		0x36, 0x80, 0x83, 0x84, 0x85, 0x86, 0x88, 0x89, 0x91, 0x93, 0x94,
		0x9A, 0x9C, 0x9F, 0xA0, 0xA1, 0xA3, 0xA4, 0xA5, 0xA8, 0xA9, 0xAA,
		0xAD, 0xCF,
	} {
		setEntry(op, entry{name: "forward game", policy: policyForwardGame})
	}

	for _, op := range []uint8{0x1F, 0x20, 0x2C, 0x2D, 0x3B, 0x52, 0x79, 0xA6, 0xBE} {
		setEntry(op, entry{name: "forward", policy: policyForward})
	}

	// Quest/area sync subcommands only seen while a game is loading.
	for op := uint8(0x6B); op <= 0x72; op++ {
		setEntry(op, entry{name: "forward loading", policy: policyForwardLoading})
	}

	for _, op := range []uint8{
		0x22, 0x43, 0x44, 0x45, 0x4A, 0x4D, 0x4E, 0x4F, 0x50, 0x55, 0x56,
		0x57, 0x8D, 0xAB, 0xAE, 0xAF, 0xB0,
	} {
		setEntry(op, entry{name: "forward client", policy: policyForwardClient})
	}

	setEntry(0xBC, entry{name: "card trade", policy: policyForwardCardGame})
	setEntry(0xBF, entry{name: "card lobby music", policy: policyForwardCardLobby})

	setEntry(0x00, entry{name: "invalid", policy: policyInvalid})
	setEntry(0x73, entry{name: "invalid", policy: policyInvalid})

	// Handlers that touch room or player state.
	setCustom(0x05, "switch state changed", onSwitchStateChanged)
	setCustom(0x06, "guild card send", onGuildCardSend)
	setCustom(0x07, "symbol chat", onSymbolChat)
	setCustom(0x0A, "enemy hit", onEnemyHit)
	setCustom(0x21, "inter-level warp", onChangeArea)
	setCustom(0x23, "player visibility", onSetPlayerVisibility)
	setCustom(0x25, "equip item", onEquipUnequipItem)
	setCustom(0x26, "unequip item", onEquipUnequipItem)
	setCustom(0x27, "use item", onUseItem)
	setCustom(0x29, "destroy inventory item", onDestroyInventoryItem)
	setCustom(0x2A, "player drop item", onPlayerDropItem)
	setCustom(0x2B, "create inventory item", onCreateInventoryItem)
	setCustom(0x2F, "hit by enemy", onHitByEnemy)
	setCustom(0x3E, "stop at position", onMovement)
	setCustom(0x3F, "set position", onMovement)
	setCustom(0x40, "walk", onMovement)
	setCustom(0x42, "run", onMovement)
	setCustom(0x46, "attack finished", onAttackFinished)
	setCustom(0x47, "cast technique", onCastTechnique)
	setCustom(0x48, "technique finished", onCastTechniqueFinished)
	setCustom(0x49, "subtract PB energy", onSubtractPBEnergy)
	setCustom(0x4B, "hit by enemy", onHitByEnemy)
	setCustom(0x4C, "hit by enemy", onHitByEnemy)
	setCustom(0x59, "pick up item", onPickUpItem)
	setCustom(0x5A, "pick up item request", onPickUpItemRequest)
	setCustom(0x5D, "drop partial stack", onDropPartialStack)
	setCustom(0x5E, "buy shop item", onBuyShopItem)
	setCustom(0x5F, "box/enemy item drop", onBoxOrEnemyItemDrop)
	setCustom(0x60, "enemy drop request", onEnemyDropItemRequest)
	setCustom(0x63, "destroy ground item", onDestroyGroundItem)
	setCustom(0x74, "word select", onWordSelect)
	setCustom(0x75, "phase setup", onPhaseSetup)
	setCustom(0xA2, "box drop request", onBoxDropItemRequest)
	setCustom(0xB3, "card battle command", onCardBattleCommand)
	setCustom(0xB4, "card battle command", onCardBattleCommand)
	setCustom(0xB5, "shop request / card battle", onShopRequest)
	setCustom(0xB7, "buy shop item", onBuyShopItemAuthoritative)
	setCustom(0xB8, "identify item", onIdentifyItem)
	setCustom(0xBA, "accept identify", onAcceptIdentifyItem)
	setCustom(0xBB, "bank request / card trade", onBankRequest)
	setCustom(0xBD, "bank action", onBankAction)
	setCustom(0xC0, "sell item at shop", onSellItemAtShop)
	setCustom(0xC3, "split stacked item", onSplitStackedItem)
	setCustom(0xC4, "sort inventory", onSortInventory)
	setCustom(0xC5, "medical center", onMedicalCenter)
	setCustom(0xC8, "enemy killed", onEnemyKilled)
}
