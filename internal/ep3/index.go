package ep3

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mvantor/ragol/internal/core/bytes"
	"github.com/mvantor/ragol/internal/core/prs"
)

// DataIndex is the loaded card-battle catalogue: card definitions, map
// definitions, and the behavior flags that tune the card protocol.
// Immutable after load and shared by reference.
type DataIndex struct {
	BehaviorFlags BehaviorFlag

	cards       map[uint32]*CardDefinition
	cardsByName map[string]*CardDefinition
	// The compressed catalogue exactly as it will be sent to clients.
	compressedCards []byte

	maps       map[uint32]*MapEntry
	mapsByName map[string]*MapEntry

	mapListOnce       sync.Once
	compressedMapList []byte
}

// LoadDataIndex reads the card catalogue (cards.prs) and every map file
// (*.mnm compressed, *.mnmd raw) under dir.
func LoadDataIndex(dir string, behaviorFlags BehaviorFlag) (*DataIndex, error) {
	index := &DataIndex{
		BehaviorFlags: behaviorFlags,
		cards:         make(map[uint32]*CardDefinition),
		cardsByName:   make(map[string]*CardDefinition),
		maps:          make(map[uint32]*MapEntry),
		mapsByName:    make(map[string]*MapEntry),
	}

	compressed, err := os.ReadFile(filepath.Join(dir, "cards.prs"))
	if err != nil {
		return nil, fmt.Errorf("ep3: loading card catalogue: %w", err)
	}
	index.compressedCards = compressed

	size, err := prs.DecompressSize(compressed)
	if err != nil {
		return nil, fmt.Errorf("ep3: card catalogue: %w", err)
	}
	raw, err := prs.Decompress(compressed, size)
	if err != nil {
		return nil, fmt.Errorf("ep3: card catalogue: %w", err)
	}

	defs, err := decodeCardDefinitions(raw)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		index.cards[def.CardID] = def
		if name := def.Name(); name != "" {
			index.cardsByName[name] = def
		}
	}

	if err := index.loadMaps(dir); err != nil {
		return nil, err
	}
	return index, nil
}

func (i *DataIndex) loadMaps(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("ep3: reading map directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)

		var def *MapDefinition
		switch {
		case strings.HasSuffix(name, ".mnm"):
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if def, err = decodeCompressedMap(data); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		case strings.HasSuffix(name, ".mnmd"):
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if def, err = decodeMapDefinition(data); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		default:
			continue
		}

		mapEntry := &MapEntry{Def: def}
		i.maps[def.MapNumber] = mapEntry
		if n := def.MapName(); n != "" {
			i.mapsByName[n] = mapEntry
		}
	}
	return nil
}

// DisableMasking reports whether the command mask rotation is turned off.
func (i *DataIndex) DisableMasking() bool {
	return i.BehaviorFlags&BehaviorDisableMasking != 0
}

// CardByID looks up one card definition.
func (i *DataIndex) CardByID(id uint32) (*CardDefinition, bool) {
	def, ok := i.cards[id]
	return def, ok
}

// CardByName looks up a card by its English name.
func (i *DataIndex) CardByName(name string) (*CardDefinition, bool) {
	def, ok := i.cardsByName[name]
	return def, ok
}

// AllCardIDs enumerates the catalogue in ascending order.
func (i *DataIndex) AllCardIDs() []uint32 {
	ids := make([]uint32, 0, len(i.cards))
	for id := range i.cards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// CompressedCardDefinitions returns the catalogue blob clients download.
func (i *DataIndex) CompressedCardDefinitions() []byte {
	return i.compressedCards
}

// MapByNumber looks up one map.
func (i *DataIndex) MapByNumber(number uint32) (*MapEntry, bool) {
	entry, ok := i.maps[number]
	return entry, ok
}

// MapByName looks up a map by name.
func (i *DataIndex) MapByName(name string) (*MapEntry, bool) {
	entry, ok := i.mapsByName[name]
	return entry, ok
}

// AllMapNumbers enumerates the loaded maps in ascending order.
func (i *DataIndex) AllMapNumbers() []uint32 {
	numbers := make([]uint32, 0, len(i.maps))
	for n := range i.maps {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(a, b int) bool { return numbers[a] < numbers[b] })
	return numbers
}

// CompressedMapList builds (once) the map-select table: a big-endian
// header, one entry per map, then the string pool, PRS-compressed.
func (i *DataIndex) CompressedMapList() []byte {
	i.mapListOnce.Do(func() {
		numbers := i.AllMapNumbers()

		var entryBlock []byte
		var stringPool []byte
		addString := func(s string) uint32 {
			offset := uint32(len(stringPool))
			stringPool = append(stringPool, s...)
			stringPool = append(stringPool, 0)
			return offset
		}

		for _, n := range numbers {
			def := i.maps[n].Def
			entry := MapListEntry{
				MapX:              def.MapX,
				MapY:              def.MapY,
				EnvironmentNumber: uint16(def.EnvironmentNumber),
				MapNumber:         uint16(def.MapNumber),
				NameOffset:        addString(def.MapName()),
				LocationNameOffset: addString(string(bytes.StripPadding(def.LocationName[:]))),
				QuestNameOffset:   addString(string(bytes.StripPadding(def.QuestName[:]))),
				DescriptionOffset: addString(string(bytes.StripPadding(def.Description[:]))),
				Width:             uint16(def.Width),
				Height:            uint16(def.Height),
				MapTiles:          def.MapTiles,
				ModificationTiles: def.ModificationTiles,
			}
			b, _ := bytes.BytesFromStructBE(&entry)
			entryBlock = append(entryBlock, b...)
		}

		header := mapListHeader{
			NumMaps:       uint32(len(numbers)),
			StringsOffset: uint32(len(entryBlock)),
		}
		header.TotalSize = 16 + header.StringsOffset + uint32(len(stringPool))
		hb, _ := bytes.BytesFromStructBE(&header)

		raw := append(append(hb, entryBlock...), stringPool...)
		i.compressedMapList = prs.Compress(raw)
	})
	return i.compressedMapList
}

type mapListHeader struct {
	NumMaps       uint32
	Unknown       uint32
	StringsOffset uint32
	TotalSize     uint32
}
