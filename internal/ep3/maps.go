package ep3

import (
	"encoding/binary"
	"fmt"

	"github.com/mvantor/ragol/internal/core/bytes"
	"github.com/mvantor/ragol/internal/core/prs"
)

// Map binary formats: the map list is an uncompressed table of 0x220-byte
// entries plus a string pool; individual map definitions are 0x5A18-byte
// big-endian records, stored PRS-compressed with a small little-endian
// header (.mnm) or raw (.mnmd).
const (
	mapListEntrySize  = 0x220
	mapDefinitionSize = 0x5A18

	compressedMapHeaderSize = 8
)

// Rules is the 16-byte rule block embedded in map definitions. 0xFF in a
// field means the room creator may override it.
type Rules struct {
	OverallTimeLimit   uint8 // increments of 5 minutes; 0 = unlimited
	PhaseTimeLimit     uint8 // seconds; 0 = unlimited
	AllowedCards       uint8
	MinDice            uint8
	MaxDice            uint8
	DisableDeckShuffle uint8
	DisableDeckLoop    uint8
	CharHP             uint8
	HPType             uint8
	NoAssistCards      uint8
	DisableDialogue    uint8
	DiceExchangeMode   uint8
	DisableDiceBoost   uint8
	Unused             [3]uint8
}

// MapListEntry is one row of the map select table.
type MapListEntry struct {
	MapX              uint16
	MapY              uint16
	EnvironmentNumber uint16
	MapNumber         uint16
	NameOffset        uint32
	LocationNameOffset uint32
	QuestNameOffset   uint32
	DescriptionOffset uint32
	Width             uint16
	Height            uint16
	MapTiles          [16][16]uint8
	ModificationTiles [16][16]uint8
	Unknown           uint32
}

type NPCDeck struct {
	Name    [0x18]byte
	CardIDs [0x20]uint16
}

type NPCCharacter struct {
	Unknown1 [2]uint16
	Unknown2 [4]uint8
	Name     [0x10]byte
	Unknown3 [0x7E]uint16
}

type DialogueSet struct {
	Unknown1 uint16
	Unknown2 uint16
	Strings  [4][0x40]byte
}

// MapDefinition is the full 0x5A18-byte map record.
type MapDefinition struct {
	Unknown1          uint32
	MapNumber         uint32
	Width             uint8
	Height            uint8
	EnvironmentNumber uint8
	NumAltMaps        uint8

	MapTiles             [16][16]uint8
	StartTileDefinitions [2][6]uint8
	AltMaps              [2][10][16][16]uint8
	AltMapsUnknown       [2][10][0x12]uint32
	Unknown5             [3][0x24]uint32
	ModificationTiles    [16][16]uint8
	Unknown6             [0x74]uint8

	DefaultRules Rules
	Unknown7     [4]uint8

	Name         [0x14]byte
	LocationName [0x14]byte
	QuestName    [0x3C]byte
	Description  [0x190]byte
	MapX         uint16
	MapY         uint16

	NPCDecks [3]NPCDeck
	NPCChars [3]NPCCharacter
	Unknown8 [0x14]uint8

	BeforeMessage   [0x190]byte
	AfterMessage    [0x190]byte
	DispatchMessage [0x190]byte

	DialogueSets  [3][0x10]DialogueSet
	RewardCardIDs [0x10]uint16
	Unknown9      [0x0C]uint8
	Unknown10     uint8
	Unknown11     [0x3B]uint8
}

// MapName returns the map's name without padding.
func (m *MapDefinition) MapName() string {
	return string(bytes.StripPadding(m.Name[:]))
}

// decodeMapDefinition parses one raw 0x5A18-byte record.
func decodeMapDefinition(data []byte) (*MapDefinition, error) {
	if len(data) != mapDefinitionSize {
		return nil, fmt.Errorf("ep3: map definition is %d bytes, expected %#x", len(data), mapDefinitionSize)
	}
	def := &MapDefinition{}
	bytes.StructFromBytesBE(data, def)
	return def, nil
}

// decodeCompressedMap parses a .mnm file: a little-endian header followed
// by the PRS-compressed definition.
func decodeCompressedMap(data []byte) (*MapDefinition, error) {
	if len(data) < compressedMapHeaderSize {
		return nil, fmt.Errorf("ep3: compressed map truncated at %d bytes", len(data))
	}
	compressedSize := binary.LittleEndian.Uint32(data[4:8])
	body := data[compressedMapHeaderSize:]
	if int(compressedSize) > len(body) {
		return nil, fmt.Errorf("ep3: compressed map declares %d bytes, have %d", compressedSize, len(body))
	}

	raw, err := prs.Decompress(body[:compressedSize], mapDefinitionSize)
	if err != nil {
		return nil, fmt.Errorf("ep3: decompressing map: %w", err)
	}
	return decodeMapDefinition(raw)
}

// MapEntry pairs a definition with its cached compressed form for the wire.
type MapEntry struct {
	Def     *MapDefinition
	IsQuest bool

	compressed []byte
}

// Compressed returns the PRS blob clients download, generating it on first
// use.
func (e *MapEntry) Compressed() []byte {
	if e.compressed == nil {
		raw, _ := bytes.BytesFromStructBE(e.Def)
		e.compressed = prs.Compress(raw)
	}
	return e.compressed
}
