package character

import (
	"fmt"
	"os"

	"github.com/mvantor/ragol/internal/core/bytes"
	"github.com/mvantor/ragol/internal/core/prs"
)

const (
	// NumClasses is the number of playable character classes.
	NumClasses = 12
	numLevels  = 200

	levelEntrySize = 20
)

// LevelStats is the stat delta applied on reaching a level, plus the
// cumulative experience required to reach it.
type LevelStats struct {
	ATP        uint16
	MST        uint16
	EVP        uint16
	HP         uint16
	DFP        uint16
	ATA        uint16
	LCK        uint16
	Unused     uint16
	Experience uint32
}

// Apply adds the level's deltas to a stat block.
func (l *LevelStats) Apply(s *Stats) {
	s.ATP += l.ATP
	s.MST += l.MST
	s.EVP += l.EVP
	s.HP += l.HP
	s.DFP += l.DFP
	s.ATA += l.ATA
	s.LCK += l.LCK
}

// LevelTable holds the per-class level progression. Immutable after load.
type LevelTable struct {
	levels [NumClasses][numLevels]LevelStats
}

// LoadLevelTable reads the PRS-compressed level table file. Level entries
// are stored sequentially per class, 20 bytes each.
func LoadLevelTable(path string) (*LevelTable, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	size, err := prs.DecompressSize(compressed)
	if err != nil {
		return nil, fmt.Errorf("level table %s: %w", path, err)
	}
	data, err := prs.Decompress(compressed, size)
	if err != nil {
		return nil, fmt.Errorf("level table %s: %w", path, err)
	}

	expected := NumClasses * numLevels * levelEntrySize
	if len(data) < expected {
		return nil, fmt.Errorf("level table %s: expected %d bytes decompressed, have %d", path, expected, len(data))
	}

	table := &LevelTable{}
	offset := 0
	for class := 0; class < NumClasses; class++ {
		for level := 0; level < numLevels; level++ {
			bytes.StructFromBytes(data[offset:offset+levelEntrySize], &table.levels[class][level])
			offset += levelEntrySize
		}
	}
	return table, nil
}

// StatsForLevel returns the entry for a 0-based level.
func (t *LevelTable) StatsForLevel(class uint8, level uint8) (*LevelStats, error) {
	if int(class) >= NumClasses {
		return nil, fmt.Errorf("character: invalid class %d", class)
	}
	if int(level) >= numLevels {
		return nil, fmt.Errorf("character: invalid level %d", level)
	}
	return &t.levels[class][level], nil
}
