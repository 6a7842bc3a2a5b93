package items

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestStackLimits(t *testing.T) {
	tests := []struct {
		name  string
		data1 [12]byte
		want  int
	}{
		{"weapon", [12]byte{CategoryWeapon}, 1},
		{"armor", [12]byte{CategoryArmor}, 1},
		{"mag", [12]byte{CategoryMag}, 1},
		{"monomate", [12]byte{CategoryTool, 0x00, 0x00}, 10},
		{"tech disk", [12]byte{CategoryTool, 0x02, 0x00}, 1},
		{"photon drop", [12]byte{CategoryTool, 0x10, 0x00}, 99},
		{"meseta", [12]byte{CategoryMeseta}, MaxMeseta},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := ItemData{Data1: tt.data1}
			if got := item.MaxStack(); got != tt.want {
				t.Errorf("MaxStack() want = %d, got = %d", tt.want, got)
			}
		})
	}
}

func TestStackCount(t *testing.T) {
	tool := ItemData{Data1: [12]byte{CategoryTool}}
	tool.SetCount(5)
	if tool.Count() != 5 {
		t.Errorf("tool Count() want = 5, got = %d", tool.Count())
	}

	meseta := ItemData{Data1: [12]byte{CategoryMeseta}}
	meseta.SetCount(123456)
	if meseta.Count() != 123456 {
		t.Errorf("meseta Count() want = 123456, got = %d", meseta.Count())
	}
}

func TestMarkUnidentified(t *testing.T) {
	weapon := ItemData{Data1: [12]byte{CategoryWeapon}}
	weapon.MarkUnidentified()
	if weapon.Data1[4]&0x80 == 0 {
		t.Error("weapon should carry the unidentified bit")
	}
	weapon.MarkIdentified()
	if weapon.Data1[4]&0x80 != 0 {
		t.Error("identified weapon should not carry the bit")
	}

	tool := ItemData{Data1: [12]byte{CategoryTool}}
	tool.MarkUnidentified()
	if tool.Data1[4] != 0 {
		t.Error("only weapons can be unidentified")
	}
}

func TestLoadRareItemSet(t *testing.T) {
	// Synthesize a full table file with one recognizable entry.
	size := NumEpisodes * NumDifficulties * NumSections * rareTableSize
	data := make([]byte, size)

	// Episode 1, difficulty 2, section 3, monster 7: probability 0xFF.
	base := ((0*NumDifficulties+2)*NumSections + 3) * rareTableSize
	entry := base + 7*rareEntrySize
	data[entry] = 0xFF
	data[entry+1] = 0x02 // mag
	data[entry+2] = 0x05
	data[entry+3] = 0x00

	path := filepath.Join(t.TempDir(), "rares.dat")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadRareItemSet(path)
	if err != nil {
		t.Fatalf("LoadRareItemSet() error: %v", err)
	}

	table := set.Table(1, 2, 3)
	if table == nil {
		t.Fatal("Table(1,2,3) returned nil")
	}
	if table.MonsterRares[7].Probability != 0xFF {
		t.Errorf("probability want = 0xFF, got = %#x", table.MonsterRares[7].Probability)
	}
	if table.MonsterRares[7].ItemCode != [3]byte{0x02, 0x05, 0x00} {
		t.Errorf("item code mismatch: %v", table.MonsterRares[7].ItemCode)
	}

	if set.Table(9, 0, 0) != nil {
		t.Error("out of range table should be nil")
	}
}

func TestSampleZeroNeverDrops(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		if Sample(rng, 0) {
			t.Fatal("probability 0 must never sample true")
		}
	}
}

func TestCommonItemSetDrops(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	gen := NewCommonItemSet(rng)

	var produced, skipped int
	for i := 0; i < 500; i++ {
		item, err := gen.CreateDropItem(1, 2, 3, 4)
		if err == ErrNothingDropped {
			skipped++
			continue
		}
		if err != nil {
			t.Fatalf("CreateDropItem() error: %v", err)
		}
		produced++
		if item.Category() > CategoryMeseta {
			t.Fatalf("invalid category %#x", item.Category())
		}
	}
	if produced == 0 || skipped == 0 {
		t.Fatalf("expected a mix of drops and empty rolls, got %d/%d", produced, skipped)
	}
}
