package ep3

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	corebytes "github.com/mvantor/ragol/internal/core/bytes"
	"github.com/mvantor/ragol/internal/core/prs"
)

func TestSetCommandMaskRoundTrip(t *testing.T) {
	build := func() []byte {
		// 16-byte card command: header + 8 body bytes, size field 4 words.
		data := []byte{0xB4, 0x04, 0x00, 0x00, 0x03, 0x01, 0x00, 0x00,
			0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80}
		return data
	}

	masked := build()
	require.NoError(t, SetCommandMask(masked, 0x5A))
	require.Equal(t, uint8(0x5A), masked[6])
	require.NotEqual(t, build()[8:], masked[8:], "body should be masked")

	// Re-keying unmasks with the stored key first, so clearing restores
	// the original body.
	require.NoError(t, SetCommandMask(masked, 0))
	require.Equal(t, build(), masked)
}

func TestSetCommandMaskRejectsBadSize(t *testing.T) {
	short := []byte{0xB4, 0x01}
	require.Error(t, SetCommandMask(short, 1))

	// Size field says 2 words but the buffer is 16 bytes.
	mismatched := make([]byte, 16)
	mismatched[0] = 0xB4
	mismatched[1] = 2
	require.Error(t, SetCommandMask(mismatched, 1))
}

func TestCardCatalogueDecode(t *testing.T) {
	sword := &CardDefinition{CardID: 0x0001, Type: CardTypeItem, Rarity: 2, CardClass: 0x18}
	copy(sword.EnName[:], "Saber")
	creature := &CardDefinition{CardID: 0x0102, Type: CardTypeCreature, Rarity: 5}
	copy(creature.EnName[:], "Booma")
	end := &CardDefinition{Type: CardTypeEndOfList}

	var raw []byte
	for _, def := range []*CardDefinition{sword, creature, end} {
		b, size := corebytes.BytesFromStructBE(def)
		require.Equal(t, cardDefinitionSize, size, "card record must be 0x128 bytes")
		raw = append(raw, b...)
	}

	defs, err := decodeCardDefinitions(raw)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Equal(t, "Saber", defs[0].Name())
	require.Equal(t, uint32(0x0102), defs[1].CardID)
}

func TestLoadDataIndex(t *testing.T) {
	dir := t.TempDir()

	card := &CardDefinition{CardID: 7, Type: CardTypeAction}
	copy(card.EnName[:], "Guard")
	end := &CardDefinition{Type: CardTypeEndOfList}
	var raw []byte
	for _, def := range []*CardDefinition{card, end} {
		b, _ := corebytes.BytesFromStructBE(def)
		raw = append(raw, b...)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cards.prs"), prs.Compress(raw), 0644))

	mapDef := &MapDefinition{MapNumber: 3, Width: 9, Height: 9}
	copy(mapDef.Name[:], "Lupus Silva")
	mapRaw, size := corebytes.BytesFromStructBE(mapDef)
	require.Equal(t, mapDefinitionSize, size, "map record must be 0x5A18 bytes")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lupus.mnmd"), mapRaw, 0644))

	index, err := LoadDataIndex(dir, BehaviorDisableMasking)
	require.NoError(t, err)
	require.True(t, index.DisableMasking())

	got, ok := index.CardByID(7)
	require.True(t, ok)
	require.Equal(t, "Guard", got.Name())
	_, ok = index.CardByName("Guard")
	require.True(t, ok)
	require.Equal(t, []uint32{7}, index.AllCardIDs())

	entry, ok := index.MapByNumber(3)
	require.True(t, ok)
	require.Equal(t, "Lupus Silva", entry.Def.MapName())

	// The wire blob for a map round-trips through PRS.
	compressed := entry.Compressed()
	decompressed, err := prs.Decompress(compressed, mapDefinitionSize)
	require.NoError(t, err)
	require.Equal(t, mapRaw, decompressed)

	list := index.CompressedMapList()
	listSize, err := prs.DecompressSize(list)
	require.NoError(t, err)
	require.Greater(t, listSize, mapListEntrySize)
}

func TestBattleRecordGating(t *testing.T) {
	record := NewBattleRecord()
	record.AddCommand(EventGameCommand, []byte{1, 2, 3})
	require.Empty(t, record.Events(), "events before battle start are dropped")

	record.SetBattleStarted()
	require.True(t, record.BattleInProgress())
	record.AddCommand(EventCardGameCommand, []byte{4, 5, 6})
	events := record.Events()
	require.Len(t, events, 1)
	require.Equal(t, EventCardGameCommand, events[0].Type)
	require.Equal(t, []byte{4, 5, 6}, events[0].Data)

	record.SetBattleEnded()
	require.False(t, record.BattleInProgress())
}
