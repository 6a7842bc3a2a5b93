// Package quest loads the on-disk quest library. Each quest is a pair of
// PRS-compressed blobs (bin and dat) that can arrive in three packagings:
// plain .bin/.dat files, memory-card dumps (.gci), and download-quest
// archives (.dlq). All three decode to the same compressed payload.
package quest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mvantor/ragol/internal/dialect"
)

var (
	// ErrUnsupported marks formats the server refuses to guess at
	// (encrypted GCI files, download packaging for the V4 dialect).
	ErrUnsupported = errors.New("quest: unsupported quest packaging")
	// ErrLengthMismatch indicates a decoded blob whose decompressed size
	// disagrees with its header.
	ErrLengthMismatch = errors.New("quest: decompressed size does not match header")
)

type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryRetrieval
	CategoryExtermination
	CategoryEvent
	CategoryShop
	CategoryVR
	CategoryTower
	CategoryGovernmentEp1
	CategoryGovernmentEp2
	CategoryGovernmentEp4
	CategoryDownload
	CategorySolo
	CategoryBattle
	CategoryChallenge
	CategoryEpisode3
)

func (c Category) String() string {
	switch c {
	case CategoryRetrieval:
		return "Retrieval"
	case CategoryExtermination:
		return "Extermination"
	case CategoryEvent:
		return "Event"
	case CategoryShop:
		return "Shop"
	case CategoryVR:
		return "VR"
	case CategoryTower:
		return "Tower"
	case CategoryGovernmentEp1:
		return "GovernmentEpisode1"
	case CategoryGovernmentEp2:
		return "GovernmentEpisode2"
	case CategoryGovernmentEp4:
		return "GovernmentEpisode4"
	case CategoryDownload:
		return "Download"
	case CategorySolo:
		return "Solo"
	case CategoryBattle:
		return "Battle"
	case CategoryChallenge:
		return "Challenge"
	case CategoryEpisode3:
		return "Episode3"
	}
	return "Unknown"
}

// IsMode reports whether the category is a game mode rather than an
// episode-scoped quest list (mode quests ignore episode filtering).
func (c Category) IsMode() bool {
	return c == CategoryBattle || c == CategoryChallenge || c == CategoryEpisode3
}

var categoryTokens = map[string]Category{
	"ret": CategoryRetrieval,
	"ext": CategoryExtermination,
	"evt": CategoryEvent,
	"shp": CategoryShop,
	"vr":  CategoryVR,
	"twr": CategoryTower,
	"dl":  CategoryDownload,
	"1p":  CategorySolo,
}

type FileFormat uint8

const (
	FormatBinDat FileFormat = iota
	FormatGCI
	FormatDLQ
)

// Metadata is everything encoded in a quest's filename. Quest filenames
// look like:
//
//	b###-VV.bin   battle mode
//	c###-VV.bin   challenge mode
//	e###-gc3.bin  card battle
//	q###-CAT-VV.bin  everything else
type Metadata struct {
	ID       int64
	Category Category
	Dialect  dialect.Dialect
	IsV1     bool
	// True when the category token was "gov"; the episode from the bin
	// header picks the concrete government category.
	government bool
}

// ParseFilename extracts quest metadata from a .bin-family filename.
func ParseFilename(path string) (Metadata, FileFormat, string, error) {
	format := FormatBinDat
	base := filepath.Base(path)
	baseDir := filepath.Dir(path)

	var stem string
	switch {
	case strings.HasSuffix(base, ".bin.gci"):
		format = FormatGCI
		stem = strings.TrimSuffix(base, ".bin.gci")
	case strings.HasSuffix(base, ".bin.dlq"):
		format = FormatDLQ
		stem = strings.TrimSuffix(base, ".bin.dlq")
	case strings.HasSuffix(base, ".bin"):
		stem = strings.TrimSuffix(base, ".bin")
	default:
		return Metadata{}, 0, "", fmt.Errorf("quest: %s does not have a valid .bin file suffix", base)
	}
	if stem == "" {
		return Metadata{}, 0, "", fmt.Errorf("quest: empty filename")
	}

	meta := Metadata{}
	switch stem[0] {
	case 'b':
		meta.Category = CategoryBattle
	case 'c':
		meta.Category = CategoryChallenge
	case 'e':
		meta.Category = CategoryEpisode3
	case 'q':
	default:
		return Metadata{}, 0, "", fmt.Errorf("quest: filename %s does not indicate a mode", base)
	}

	tokens := strings.Split(stem, "-")
	wantTokens := 2
	if meta.Category == CategoryUnknown {
		wantTokens = 3
	}
	if len(tokens) != wantTokens {
		return Metadata{}, 0, "", fmt.Errorf("quest: incorrect filename format %s", base)
	}

	id, err := strconv.ParseInt(tokens[0][1:], 10, 64)
	if err != nil {
		return Metadata{}, 0, "", fmt.Errorf("quest: parsing quest id from %s: %w", base, err)
	}
	meta.ID = id

	if meta.Category == CategoryUnknown {
		if tokens[1] == "gov" {
			meta.government = true
		} else {
			cat, ok := categoryTokens[tokens[1]]
			if !ok {
				return Metadata{}, 0, "", fmt.Errorf("quest: unknown category token %q", tokens[1])
			}
			meta.Category = cat
		}
		tokens = append(tokens[:1], tokens[2:]...)
	}

	d, err := dialect.Parse(tokens[1])
	if err != nil {
		return Metadata{}, 0, "", fmt.Errorf("quest: %s: %w", base, err)
	}
	meta.Dialect = d
	meta.IsV1 = tokens[1] == "d1"

	// The base path is the full path minus the packaging suffix; the .dat
	// side lives next to it.
	return meta, format, filepath.Join(baseDir, stem), nil
}
