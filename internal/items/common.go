package items

import "math/rand"

// Generator produces common (non-rare) items. Rooms hold one; the rare
// table is consulted first and the generator covers everything else.
type Generator interface {
	// CreateDropItem produces a drop for an enemy or box, or
	// ErrNothingDropped when the roll comes up empty.
	CreateDropItem(episode, difficulty, area, sectionID uint8) (ItemData, error)
	// CreateShopItem produces an item of the given class (0 weapon,
	// 1 guard, 3 tool) scaled by difficulty.
	CreateShopItem(difficulty, itemClass uint8) ItemData
}

// CommonItemSet is a weight-table generator. It is deliberately simple:
// drop quality scales with difficulty and area, and roughly forty percent
// of requests produce nothing, which keeps item churn near what clients
// expect.
type CommonItemSet struct {
	rng *rand.Rand

	// Percentage of drop requests that produce no item.
	NothingChance int
}

func NewCommonItemSet(rng *rand.Rand) *CommonItemSet {
	return &CommonItemSet{rng: rng, NothingChance: 40}
}

func (s *CommonItemSet) CreateDropItem(episode, difficulty, area, sectionID uint8) (ItemData, error) {
	if s.rng.Intn(100) < s.NothingChance {
		return ItemData{}, ErrNothingDropped
	}

	roll := s.rng.Intn(100)
	switch {
	case roll < 25:
		return s.weapon(difficulty, area), nil
	case roll < 45:
		return s.armor(difficulty, area), nil
	case roll < 80:
		return s.tool(difficulty), nil
	default:
		return s.meseta(difficulty), nil
	}
}

func (s *CommonItemSet) CreateShopItem(difficulty, itemClass uint8) ItemData {
	switch itemClass {
	case CategoryWeapon:
		return s.weapon(difficulty, 0)
	case CategoryArmor:
		return s.armor(difficulty, 0)
	default:
		return s.tool(difficulty)
	}
}

func (s *CommonItemSet) weapon(difficulty, area uint8) ItemData {
	var item ItemData
	item.Data1[0] = CategoryWeapon
	// Weapon tier tracks difficulty with a little random spread; the area
	// only affects the grind below.
	item.Data1[1] = 1 + uint8(s.rng.Intn(3)) + difficulty*2
	item.Data1[2] = uint8(s.rng.Intn(5))
	// Grind.
	item.Data1[3] = uint8(s.rng.Intn(int(difficulty) + 2))
	if area > 0 && s.rng.Intn(10) == 0 {
		item.Data1[3]++
	}
	return item
}

func (s *CommonItemSet) armor(difficulty, area uint8) ItemData {
	var item ItemData
	item.Data1[0] = CategoryArmor
	item.Data1[1] = uint8(s.rng.Intn(3))
	item.Data1[2] = difficulty*3 + uint8(s.rng.Intn(4))
	// Slot count.
	item.Data1[5] = uint8(s.rng.Intn(5))
	return item
}

func (s *CommonItemSet) tool(difficulty uint8) ItemData {
	var item ItemData
	item.Data1[0] = CategoryTool
	// Mates and fluids at a tier the difficulty allows.
	item.Data1[1] = uint8(s.rng.Intn(2))
	item.Data1[2] = uint8(s.rng.Intn(int(difficulty) + 1))
	item.SetCount(1)
	return item
}

func (s *CommonItemSet) meseta(difficulty uint8) ItemData {
	var item ItemData
	item.Data1[0] = CategoryMeseta
	amount := (int(difficulty) + 1) * (10 + s.rng.Intn(90))
	item.SetCount(amount)
	return item
}
