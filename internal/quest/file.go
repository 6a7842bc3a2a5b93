package quest

import (
	"fmt"
	"math/rand"

	"golang.org/x/text/encoding/japanese"

	"github.com/mvantor/ragol/internal/core/bytes"
	"github.com/mvantor/ragol/internal/core/prs"
	"github.com/mvantor/ragol/internal/dialect"
)

// Decompressed bin header field offsets shared by every dialect.
const (
	binHeaderDownloadFlagOffset = 0x10
	binHeaderQuestNumberOffset  = 0x12
	binHeaderTextOffset         = 0x14

	binNameChars      = 0x20
	binShortDescChars = 0x80

	// The V4 header replaces the download byte with quest metadata.
	v4EpisodeOffset  = 0x14
	v4JoinableOffset = 0x16
	v4TextOffset     = 0x18
)

// Quest is one indexed quest: its metadata plus lazily-decoded contents.
type Quest struct {
	ID       int64
	Category Category
	Dialect  dialect.Dialect
	Episode  uint8
	Joinable bool
	IsV1     bool

	Name             string
	ShortDescription string

	format   FileFormat
	basePath string

	binContents []byte
	datContents []byte
}

// NewQuest indexes one quest from its .bin-family file, reading enough of
// the decompressed header to learn its name and episode.
func NewQuest(binPath string) (*Quest, error) {
	meta, format, basePath, err := ParseFilename(binPath)
	if err != nil {
		return nil, err
	}

	q := &Quest{
		ID:       meta.ID,
		Category: meta.Category,
		Dialect:  meta.Dialect,
		IsV1:     meta.IsV1,
		format:   format,
		basePath: basePath,
	}

	compressed, err := q.Bin()
	if err != nil {
		return nil, err
	}
	size, err := prs.DecompressSize(compressed)
	if err != nil {
		return nil, fmt.Errorf("quest %s: %w", binPath, err)
	}
	decompressed, err := prs.Decompress(compressed, size)
	if err != nil {
		return nil, fmt.Errorf("quest %s: %w", binPath, err)
	}

	if err := q.parseBinHeader(decompressed); err != nil {
		return nil, fmt.Errorf("quest %s: %w", binPath, err)
	}

	// Government quests pick their concrete category from the episode.
	if meta.government {
		switch q.Episode {
		case 0:
			q.Category = CategoryGovernmentEp1
		case 1:
			q.Category = CategoryGovernmentEp2
		case 2:
			q.Category = CategoryGovernmentEp4
		default:
			return nil, fmt.Errorf("quest %s: government quest has episode %d", binPath, q.Episode)
		}
	}
	return q, nil
}

func (q *Quest) parseBinHeader(data []byte) error {
	if q.Dialect == dialect.V4 {
		if len(data) < v4TextOffset+2*(binNameChars+binShortDescChars) {
			return fmt.Errorf("bin file is too small for header")
		}
		q.Episode = data[v4EpisodeOffset]
		q.Joinable = data[v4JoinableOffset] != 0
		q.Name = bytes.ConvertFromUtf16(data[v4TextOffset : v4TextOffset+2*binNameChars])
		start := v4TextOffset + 2*binNameChars
		q.ShortDescription = bytes.ConvertFromUtf16(data[start : start+2*binShortDescChars])
		return nil
	}

	if q.Dialect.WideText() {
		if len(data) < binHeaderTextOffset+2*(binNameChars+binShortDescChars) {
			return fmt.Errorf("bin file is too small for header")
		}
		q.Name = bytes.ConvertFromUtf16(data[binHeaderTextOffset : binHeaderTextOffset+2*binNameChars])
		start := binHeaderTextOffset + 2*binNameChars
		q.ShortDescription = bytes.ConvertFromUtf16(data[start : start+2*binShortDescChars])
		return nil
	}

	if len(data) < binHeaderTextOffset+binNameChars+binShortDescChars {
		return fmt.Errorf("bin file is too small for header")
	}
	// The console builds store the episode next to the quest number.
	if q.Dialect == dialect.V3 || q.Dialect == dialect.V3Console {
		if data[binHeaderQuestNumberOffset+1] == 1 {
			q.Episode = 1
		}
	}
	var err error
	if q.Name, err = decodeSJIS(data[binHeaderTextOffset : binHeaderTextOffset+binNameChars]); err != nil {
		return err
	}
	start := binHeaderTextOffset + binNameChars
	q.ShortDescription, err = decodeSJIS(data[start : start+binShortDescChars])
	return err
}

// decodeSJIS converts a zero-padded Shift-JIS field to UTF-8.
func decodeSJIS(field []byte) (string, error) {
	trimmed := bytes.StripPadding(field)
	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(trimmed)
	if err != nil {
		return "", fmt.Errorf("decoding shift-jis text: %w", err)
	}
	return string(decoded), nil
}

// Bin returns the PRS-compressed bin blob, decoding the on-disk packaging
// on first use.
func (q *Quest) Bin() ([]byte, error) {
	if q.binContents == nil {
		contents, err := q.loadSide(".bin")
		if err != nil {
			return nil, err
		}
		q.binContents = contents
	}
	return q.binContents, nil
}

// Dat returns the PRS-compressed dat blob.
func (q *Quest) Dat() ([]byte, error) {
	if q.datContents == nil {
		contents, err := q.loadSide(".dat")
		if err != nil {
			return nil, err
		}
		q.datContents = contents
	}
	return q.datContents, nil
}

func (q *Quest) loadSide(ext string) ([]byte, error) {
	switch q.format {
	case FormatBinDat:
		return loadFile(q.basePath + ext)
	case FormatGCI:
		data, err := loadFile(q.basePath + ext + ".gci")
		if err != nil {
			return nil, err
		}
		return DecodeGCI(data)
	case FormatDLQ:
		data, err := loadFile(q.basePath + ext + ".dlq")
		if err != nil {
			return nil, err
		}
		return DecodeDLQ(data)
	}
	return nil, fmt.Errorf("quest: invalid file format %d", q.format)
}

// DownloadQuest packages the quest for offline download: the bin side gets
// its download flag set and both sides are wrapped in the encrypted
// download header. The V4 dialect has no offline mode.
func (q *Quest) DownloadQuest(rng *rand.Rand) (bin []byte, dat []byte, err error) {
	if q.Dialect == dialect.V4 {
		return nil, nil, fmt.Errorf("%w: the v4 client cannot store download quests", ErrUnsupported)
	}

	binCompressed, err := q.Bin()
	if err != nil {
		return nil, nil, err
	}
	size, err := prs.DecompressSize(binCompressed)
	if err != nil {
		return nil, nil, err
	}
	decompressed, err := prs.Decompress(binCompressed, size)
	if err != nil {
		return nil, nil, err
	}
	if len(decompressed) <= binHeaderDownloadFlagOffset {
		return nil, nil, fmt.Errorf("quest: bin file is too small for header")
	}

	// Without this flag the client skips the quest when scanning its
	// storage in an offline game.
	decompressed[binHeaderDownloadFlagOffset] = 0x01
	bin = EncodeDLQ(prs.Compress(decompressed), uint32(len(decompressed)), 0, rng)

	datCompressed, err := q.Dat()
	if err != nil {
		return nil, nil, err
	}
	datSize, err := prs.DecompressSize(datCompressed)
	if err != nil {
		return nil, nil, err
	}
	dat = EncodeDLQ(datCompressed, uint32(datSize), 0, rng)

	return bin, dat, nil
}
