// Package character holds the per-player record: identity, stats,
// inventory, and bank. Rooms treat players as slot contents; persistence
// treats them as opaque blobs via Marshal/Unmarshal.
package character

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mvantor/ragol/internal/items"
)

const (
	// InventorySize is the fixed client-side inventory capacity.
	InventorySize = 30
	// MaxLevel is the 0-based level cap (displayed as 200).
	MaxLevel = 199

	// equippedFlag is bit 3 of an inventory entry's flags.
	equippedFlag = 0x00000008
)

var ErrInventoryFull = errors.New("character: inventory is full")

// Stats is the six combat stats plus luck, in wire order.
type Stats struct {
	ATP uint16
	MST uint16
	EVP uint16
	HP  uint16
	DFP uint16
	ATA uint16
	LCK uint16
}

// InventoryItem is one held item plus its client-visible flags.
type InventoryItem struct {
	Flags uint32
	Data  items.ItemData
}

func (i *InventoryItem) Equipped() bool { return i.Flags&equippedFlag != 0 }

type Inventory struct {
	Items []InventoryItem
}

// FindItem returns the index of the item with the given id.
func (inv *Inventory) FindItem(id uint32) (int, error) {
	for i := range inv.Items {
		if inv.Items[i].Data.ID == id {
			return i, nil
		}
	}
	return 0, items.ErrNoSuchItem
}

// Player is one character's full state.
type Player struct {
	Name       string
	Class      uint8
	Level      uint8 // 0-based; displayed level is Level+1
	Experience uint32
	Meseta     uint32
	SectionID  uint8
	Stats      Stats

	Inventory Inventory
	Bank      Bank
}

// AddItem places an item in the inventory, merging stacks where the type
// allows it. The merged stack is clamped to the type's limit.
func (p *Player) AddItem(item items.ItemData) error {
	if item.Category() == items.CategoryMeseta {
		p.Meseta += uint32(item.Count())
		if p.Meseta > items.MaxMeseta {
			p.Meseta = items.MaxMeseta
		}
		return nil
	}

	if item.Stackable() {
		for i := range p.Inventory.Items {
			held := &p.Inventory.Items[i]
			if held.Data.SameType(&item) {
				combined := held.Data.Count() + item.Count()
				if max := held.Data.MaxStack(); combined > max {
					combined = max
				}
				held.Data.SetCount(combined)
				return nil
			}
		}
	}

	if len(p.Inventory.Items) >= InventorySize {
		return ErrInventoryFull
	}
	p.Inventory.Items = append(p.Inventory.Items, InventoryItem{Data: item})
	return nil
}

// RemoveItem takes an item (or part of a stack) out of the inventory. A
// partial stack removal returns an item carrying items.SentinelID, since
// the original id stays with the remaining stack; the caller must assign a
// fresh room-unique id before publishing it.
func (p *Player) RemoveItem(id uint32, amount uint32) (items.ItemData, error) {
	if id == items.MesetaID {
		if amount > p.Meseta {
			return items.ItemData{}, fmt.Errorf("character: removing %d meseta with only %d held", amount, p.Meseta)
		}
		p.Meseta -= amount
		var meseta items.ItemData
		meseta.Data1[0] = items.CategoryMeseta
		meseta.ID = items.SentinelID
		meseta.SetCount(int(amount))
		return meseta, nil
	}

	index, err := p.Inventory.FindItem(id)
	if err != nil {
		return items.ItemData{}, err
	}
	held := p.Inventory.Items[index]

	if amount != 0 && held.Data.Stackable() && int(amount) < held.Data.Count() {
		split := held.Data
		split.ID = items.SentinelID
		split.SetCount(int(amount))
		p.Inventory.Items[index].Data.SetCount(held.Data.Count() - int(amount))
		return split, nil
	}

	p.Inventory.Items = append(p.Inventory.Items[:index], p.Inventory.Items[index+1:]...)
	return held.Data, nil
}

// SetEquipped flips the equipped bit on an inventory entry.
func (p *Player) SetEquipped(id uint32, equipped bool) error {
	index, err := p.Inventory.FindItem(id)
	if err != nil {
		return err
	}
	if equipped {
		p.Inventory.Items[index].Flags |= equippedFlag
	} else {
		p.Inventory.Items[index].Flags &^= equippedFlag
	}
	return nil
}

// Bank is the out-of-game item store. Bank items keep their own ids until
// they're withdrawn, at which point the room issues fresh ones.
type Bank struct {
	Meseta uint32
	Items  []items.ItemData
}

func (b *Bank) AddItem(item items.ItemData) {
	if item.Stackable() {
		for i := range b.Items {
			if b.Items[i].SameType(&item) {
				combined := b.Items[i].Count() + item.Count()
				if max := b.Items[i].MaxStack(); combined > max {
					combined = max
				}
				b.Items[i].SetCount(combined)
				return
			}
		}
	}
	b.Items = append(b.Items, item)
}

func (b *Bank) RemoveItem(id uint32, amount uint32) (items.ItemData, error) {
	for i := range b.Items {
		if b.Items[i].ID != id {
			continue
		}
		held := b.Items[i]
		if amount != 0 && held.Stackable() && int(amount) < held.Count() {
			split := held
			split.ID = items.SentinelID
			split.SetCount(int(amount))
			b.Items[i].SetCount(held.Count() - int(amount))
			return split, nil
		}
		b.Items = append(b.Items[:i], b.Items[i+1:]...)
		return held, nil
	}
	return items.ItemData{}, items.ErrNoSuchItem
}

// Marshal serializes the player for the persistence layer.
func (p *Player) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPlayer restores a player from a persisted blob.
func UnmarshalPlayer(data []byte) (*Player, error) {
	p := &Player{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("character: unmarshaling player: %w", err)
	}
	return p, nil
}
