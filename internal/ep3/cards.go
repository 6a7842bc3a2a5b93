package ep3

import (
	"fmt"

	"github.com/mvantor/ragol/internal/core/bytes"
)

// Card catalogue binary format: a sequence of 0x128-byte big-endian
// records, terminated by a record whose type byte is 0xFF.
const cardDefinitionSize = 0x128

// Card types.
const (
	CardTypeHuntersSC uint8 = 0x00
	CardTypeArkzSC    uint8 = 0x01
	CardTypeItem      uint8 = 0x02
	CardTypeCreature  uint8 = 0x03
	CardTypeAction    uint8 = 0x04
	CardTypeAssist    uint8 = 0x05
	CardTypeEndOfList uint8 = 0xFF
)

// CardStat is one stat code cell: an encoded code plus its decoded
// type/value pair.
type CardStat struct {
	Code uint16
	Type uint8
	Stat int8
}

// CardEffect is one of a card's three condition-effect slots.
type CardEffect struct {
	EffectNum      uint8
	Type           uint8
	Expr           [15]byte
	When           uint8
	Arg1           [4]byte
	Arg2           [4]byte
	Arg3           [4]byte
	ApplyCriterion uint8
	Unknown        uint8
}

// Empty reports whether the effect slot is unused.
func (e *CardEffect) Empty() bool {
	return e.Type == 0 || e.Type == 0xFF
}

// CardDefinition is one 0x128-byte catalogue record.
type CardDefinition struct {
	CardID   uint32
	JPName   [0x40]byte
	Type     uint8
	SelfCost uint8
	AllyCost uint8
	Unused1  uint8

	HP CardStat
	AP CardStat
	TP CardStat
	MV CardStat

	LeftColors  [8]uint8
	RightColors [8]uint8
	TopColors   [8]uint8

	Range   [6]uint32
	Unused2 uint32

	TargetMode     uint8
	AssistTurns    uint8
	CannotMove     uint8
	CannotAttack   uint8
	Unused3        uint8
	HideInDeckEdit uint8

	UsableCriterion uint8
	Rarity          uint8
	Unknown1        uint16
	CardClass       uint16

	AssistEffect [2]uint16
	DropRates    [2]uint16

	EnName      [0x14]byte
	JPShortName [0x0B]byte
	EnShortName [0x08]byte

	Effects [3]CardEffect
	Unused4 uint8
}

// Name returns the English card name without padding.
func (d *CardDefinition) Name() string {
	return string(bytes.StripPadding(d.EnName[:]))
}

// decodeCardDefinitions parses the decompressed catalogue.
func decodeCardDefinitions(data []byte) ([]*CardDefinition, error) {
	var defs []*CardDefinition
	for offset := 0; offset+cardDefinitionSize <= len(data); offset += cardDefinitionSize {
		def := &CardDefinition{}
		bytes.StructFromBytesBE(data[offset:offset+cardDefinitionSize], def)
		if def.Type == CardTypeEndOfList {
			return defs, nil
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("ep3: card catalogue contains no definitions")
	}
	return defs, nil
}
