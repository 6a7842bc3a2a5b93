package quest

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/mvantor/ragol/internal/dialect"
)

type indexKey struct {
	dialect dialect.Dialect
	id      int64
}

type nameKey struct {
	dialect dialect.Dialect
	name    string
}

// Index is the loaded quest library for one server process. Immutable
// after load except for the artifact cache.
type Index struct {
	Directory string

	quests  map[indexKey]*Quest
	byName  map[nameKey]*Quest
	gbaFiles map[string][]byte

	// Generated download artifacts are expensive (recompress + encrypt),
	// so they're kept warm here.
	artifacts *gocache.Cache
	rng       *rand.Rand
}

// NewIndex scans a quest directory, indexing every readable quest and
// keeping .gba passthrough files verbatim.
func NewIndex(directory string, rng *rand.Rand, logger *logrus.Logger) (*Index, error) {
	index := &Index{
		Directory: directory,
		quests:    make(map[indexKey]*Quest),
		byName:    make(map[nameKey]*Quest),
		gbaFiles:  make(map[string][]byte),
		artifacts: gocache.New(30*time.Minute, 10*time.Minute),
		rng:       rng,
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("quest: reading %s: %w", directory, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		fullPath := filepath.Join(directory, name)

		if strings.HasSuffix(name, ".gba") {
			contents, err := os.ReadFile(fullPath)
			if err != nil {
				return nil, err
			}
			index.gbaFiles[name] = contents
			continue
		}

		if !strings.HasSuffix(name, ".bin") &&
			!strings.HasSuffix(name, ".bin.gci") &&
			!strings.HasSuffix(name, ".bin.dlq") {
			continue
		}

		q, err := NewQuest(fullPath)
		if err != nil {
			logger.Warnf("failed to parse quest file %s (%v)", name, err)
			continue
		}
		index.quests[indexKey{q.Dialect, q.ID}] = q
		index.byName[nameKey{q.Dialect, q.Name}] = q
		logger.Infof("indexed quest %s (%s-%d, %s, episode=%d, joinable=%v, v1=%v)",
			q.Name, q.Dialect, q.ID, q.Category, q.Episode, q.Joinable, q.IsV1)
	}
	return index, nil
}

// Get returns the quest with the given id for a dialect.
func (i *Index) Get(d dialect.Dialect, id int64) (*Quest, bool) {
	q, ok := i.quests[indexKey{d, id}]
	return q, ok
}

// GetByName returns the quest with the given display name for a dialect.
func (i *Index) GetByName(d dialect.Dialect, name string) (*Quest, bool) {
	q, ok := i.byName[nameKey{d, name}]
	return q, ok
}

// GetGBA returns a passthrough .gba file by name.
func (i *Index) GetGBA(name string) ([]byte, bool) {
	contents, ok := i.gbaFiles[name]
	return contents, ok
}

// Filter returns the quests matching a menu query, sorted by id. Episode
// filtering only applies to non-mode categories; pass a negative episode
// to skip it (e.g. the download menu).
func (i *Index) Filter(d dialect.Dialect, isV1 bool, category Category, episode int16) []*Quest {
	var out []*Quest
	for key, q := range i.quests {
		if key.dialect != d || q.IsV1 != isV1 || q.Category != category {
			continue
		}
		if episode >= 0 && !category.IsMode() && int16(q.Episode) != episode {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// DownloadQuest returns the download packaging for a quest, generating and
// caching it on first use.
func (i *Index) DownloadQuest(d dialect.Dialect, id int64) (bin []byte, dat []byte, err error) {
	q, ok := i.Get(d, id)
	if !ok {
		return nil, nil, fmt.Errorf("quest: no quest %d for %s", id, d)
	}

	cacheKey := fmt.Sprintf("dlq/%s/%d", d, id)
	if cached, found := i.artifacts.Get(cacheKey); found {
		pair := cached.([2][]byte)
		return pair[0], pair[1], nil
	}

	bin, dat, err = q.DownloadQuest(i.rng)
	if err != nil {
		return nil, nil, err
	}
	i.artifacts.Set(cacheKey, [2][]byte{bin, dat}, 0)
	return bin, dat, nil
}
