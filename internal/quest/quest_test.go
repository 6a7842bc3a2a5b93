package quest

import (
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/mvantor/ragol/internal/core/bytes"
	"github.com/mvantor/ragol/internal/core/prs"
	"github.com/mvantor/ragol/internal/dialect"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(0xC0FFEE))
}

// narrowBin builds a decompressed narrow-dialect quest bin with the given
// name.
func narrowBin(name string, episode uint8) []byte {
	data := make([]byte, 0x400)
	data[binHeaderQuestNumberOffset+1] = episode
	copy(data[binHeaderTextOffset:], name)
	copy(data[binHeaderTextOffset+binNameChars:], "a short description")
	return data
}

// wideBin builds a decompressed V4 quest bin.
func wideBin(name string, episode uint8, joinable bool) []byte {
	data := make([]byte, 0x600)
	data[v4EpisodeOffset] = episode
	if joinable {
		data[v4JoinableOffset] = 1
	}
	copy(data[v4TextOffset:], bytes.ConvertToUtf16(name))
	copy(data[v4TextOffset+2*binNameChars:], bytes.ConvertToUtf16("wide description"))
	return data
}

func writeQuestPair(t *testing.T, dir, stem string, bin []byte) string {
	t.Helper()
	binPath := filepath.Join(dir, stem+".bin")
	require.NoError(t, os.WriteFile(binPath, prs.Compress(bin), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, stem+".dat"), prs.Compress([]byte("dat data")), 0644))
	return binPath
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		file     string
		category Category
		dialect  dialect.Dialect
		id       int64
	}{
		{"b123-v3.bin", CategoryBattle, dialect.V3, 123},
		{"c055-v2.bin", CategoryChallenge, dialect.V2, 55},
		{"e042-gc3.bin", CategoryEpisode3, dialect.V3Console, 42},
		{"q058-ret-v1.bin", CategoryRetrieval, dialect.V1, 58},
		{"q236-ext-v4.bin", CategoryExtermination, dialect.V4, 236},
		{"q300-dl-v3.bin.dlq", CategoryDownload, dialect.V3, 300},
	}
	for _, tt := range tests {
		meta, _, _, err := ParseFilename(tt.file)
		require.NoError(t, err, tt.file)
		require.Equal(t, tt.category, meta.Category, tt.file)
		require.Equal(t, tt.dialect, meta.Dialect, tt.file)
		require.Equal(t, tt.id, meta.ID, tt.file)
	}

	for _, bad := range []string{"x1-v1.bin", "q1.bin", "quest.txt", "q1-zzz-v1.bin"} {
		_, _, _, err := ParseFilename(bad)
		require.Error(t, err, bad)
	}
}

func TestNewQuestNarrow(t *testing.T) {
	dir := t.TempDir()
	binPath := writeQuestPair(t, dir, "q058-ret-v3", narrowBin("Lost HEAT SWORD", 0))

	q, err := NewQuest(binPath)
	require.NoError(t, err)
	require.Equal(t, "Lost HEAT SWORD", q.Name)
	require.Equal(t, CategoryRetrieval, q.Category)
	require.Equal(t, dialect.V3, q.Dialect)
	require.Equal(t, uint8(0), q.Episode)

	dat, err := q.Dat()
	require.NoError(t, err)
	size, err := prs.DecompressSize(dat)
	require.NoError(t, err)
	require.Equal(t, len("dat data"), size)
}

func TestNewQuestV4Government(t *testing.T) {
	dir := t.TempDir()
	binPath := writeQuestPair(t, dir, "q701-gov-v4", wideBin("Seat of the Heart", 1, true))

	q, err := NewQuest(binPath)
	require.NoError(t, err)
	require.Equal(t, "Seat of the Heart", q.Name)
	require.Equal(t, CategoryGovernmentEp2, q.Category)
	require.True(t, q.Joinable)
}

func TestDLQDecode(t *testing.T) {
	// A payload that decompresses to exactly 0x200 bytes, keyed with
	// 0xCAFEBABE.
	plain := make([]byte, 0x200)
	for i := range plain {
		plain[i] = byte(i % 7)
	}
	compressed := prs.Compress(plain)

	artifact := EncodeDLQ(compressed, 0x200, 0xCAFEBABE, testRand())
	require.Equal(t, uint32(0x200), binary.LittleEndian.Uint32(artifact[0:4]))
	require.Equal(t, uint32(0xCAFEBABE), binary.LittleEndian.Uint32(artifact[4:8]))

	decoded, err := DecodeDLQ(artifact)
	require.NoError(t, err)
	require.Equal(t, compressed, decoded)

	size, err := prs.DecompressSize(decoded)
	require.NoError(t, err)
	require.Equal(t, 0x200, size)
}

func TestDLQLengthMismatch(t *testing.T) {
	compressed := prs.Compress([]byte("some quest data"))
	artifact := EncodeDLQ(compressed, 9999, 0x1234, testRand())

	_, err := DecodeDLQ(artifact)
	require.True(t, errors.Is(err, ErrLengthMismatch), "got %v", err)
}

func buildGCI(inner []byte, u4 uint32) []byte {
	body := make([]byte, gciInnerHeaderSize+len(inner))
	binary.LittleEndian.PutUint32(body[12:16], u4)
	copy(body[gciInnerHeaderSize:], inner)

	data := make([]byte, gciMetadataSize+downloadHeaderSize+len(body))
	binary.LittleEndian.PutUint32(data[gciMetadataSize:], uint32(len(body)))
	binary.LittleEndian.PutUint32(data[gciMetadataSize+4:], 0xDEAD)
	copy(data[gciMetadataSize+downloadHeaderSize:], body)
	return data
}

func TestGCIDecode(t *testing.T) {
	plain := []byte("gci quest payload with some repetition repetition")
	compressed := prs.Compress(plain)

	gci := buildGCI(compressed, 0)
	// The inner header's size counts the 8-byte download header.
	binary.LittleEndian.PutUint32(gci[gciMetadataSize+downloadHeaderSize+8:], uint32(len(plain)+8))

	decoded, err := DecodeGCI(gci)
	require.NoError(t, err)
	require.Equal(t, compressed, decoded)
}

func TestGCIEncryptedRejected(t *testing.T) {
	gci := buildGCI(prs.Compress([]byte("data")), 0xBAD)
	_, err := DecodeGCI(gci)
	require.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
}

func TestDownloadQuestSetsFlag(t *testing.T) {
	dir := t.TempDir()
	binPath := writeQuestPair(t, dir, "q058-ret-v3", narrowBin("Lost HEAT SWORD", 0))

	q, err := NewQuest(binPath)
	require.NoError(t, err)

	bin, dat, err := q.DownloadQuest(testRand())
	require.NoError(t, err)

	decodedBin, err := DecodeDLQ(bin)
	require.NoError(t, err)
	size, err := prs.DecompressSize(decodedBin)
	require.NoError(t, err)
	decompressed, err := prs.Decompress(decodedBin, size)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), decompressed[binHeaderDownloadFlagOffset],
		"download flag must be set in the packaged bin")

	_, err = DecodeDLQ(dat)
	require.NoError(t, err)
}

func TestDownloadQuestUnsupportedForV4(t *testing.T) {
	dir := t.TempDir()
	binPath := writeQuestPair(t, dir, "q701-gov-v4", wideBin("Seat of the Heart", 1, false))

	q, err := NewQuest(binPath)
	require.NoError(t, err)
	_, _, err = q.DownloadQuest(testRand())
	require.True(t, errors.Is(err, ErrUnsupported))
}

func TestIndex(t *testing.T) {
	dir := t.TempDir()
	writeQuestPair(t, dir, "q058-ret-v3", narrowBin("Lost HEAT SWORD", 0))
	writeQuestPair(t, dir, "q059-ret-v3", narrowBin("Waterfall Tears", 0))
	writeQuestPair(t, dir, "b001-v3", narrowBin("Battle Training", 0))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chokocho.gba"), []byte{0x2E, 0x01}, 0644))

	index, err := NewIndex(dir, testRand(), testLogger())
	require.NoError(t, err)

	q, ok := index.Get(dialect.V3, 58)
	require.True(t, ok)
	require.Equal(t, "Lost HEAT SWORD", q.Name)

	_, ok = index.GetByName(dialect.V3, "Waterfall Tears")
	require.True(t, ok)

	retrieval := index.Filter(dialect.V3, false, CategoryRetrieval, 0)
	require.Len(t, retrieval, 2)
	require.Equal(t, int64(58), retrieval[0].ID)

	battle := index.Filter(dialect.V3, false, CategoryBattle, -1)
	require.Len(t, battle, 1)

	_, ok = index.GetGBA("chokocho.gba")
	require.True(t, ok)

	// Download artifacts are cached: same bytes on repeat calls (the seed
	// would differ otherwise).
	bin1, _, err := index.DownloadQuest(dialect.V3, 58)
	require.NoError(t, err)
	bin2, _, err := index.DownloadQuest(dialect.V3, 58)
	require.NoError(t, err)
	require.Equal(t, bin1, bin2)
}
