// Package lobby implements the shared room state machine: chat lobbies and
// games, their slot arrays, leader election, ground items, and enemies.
//
// A room's state is guarded by its mutex. The subcommand dispatcher holds
// the lock for the duration of a handler invocation so no peer observes a
// partially-applied mutation; room methods assume the caller holds it.
package lobby

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mvantor/ragol/internal/client"
	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/ep3"
	"github.com/mvantor/ragol/internal/items"
)

const (
	// LobbyCapacity is the slot count for chat lobbies and card games.
	LobbyCapacity = 12
	// GameCapacity is the slot count for combat games.
	GameCapacity = 4
)

var (
	ErrRoomFull = errors.New("lobby: room is full")
	// ErrWatcherNotLobby rejects subscribing a game as a watcher.
	ErrWatcherNotLobby = errors.New("lobby: watcher rooms must be lobbies")
)

// Room behavior flags.
const (
	// FlagItemTracking enables the authoritative item maps.
	FlagItemTracking uint32 = 1 << iota
	// FlagCheatsEnabled allows the per-client cheat options to act.
	FlagCheatsEnabled
	// FlagCardOnly marks a card-battle game.
	FlagCardOnly
	// FlagBattleInProgress gates watcher mirroring of non-chat
	// subcommands. Set by whoever drives the battle flow.
	FlagBattleInProgress
)

// GroundItem is one dropped item plus where it lies.
type GroundItem struct {
	Item items.ItemData
	Area uint8
	X    float32
	Z    float32
}

// Enemy kill bookkeeping. HitFlags has one bit per game slot; bit 7 is the
// sticky "already dead" bit, which never clears once set.
const EnemyKilledFlag = 0x80

// UnknownExperience marks enemies whose type wasn't resolvable; they award
// nothing.
const UnknownExperience = 0xFFFFFFFF

type Enemy struct {
	Type       uint16
	HitFlags   uint16
	LastHit    uint8
	Experience uint32
}

type Lobby struct {
	ID        uint32
	Dialect   dialect.Dialect
	IsGameRoom bool
	Episode   uint8 // 1-based
	Difficulty uint8
	SectionID uint8
	Flags     uint32
	Name      string

	MaxClients uint8
	Clients    [LobbyCapacity]*client.Client
	LeaderID   uint8

	// Item id counters: one per slot plus a pool for server-generated
	// drops. Ids are never reused within the room's lifetime.
	NextItemID     [LobbyCapacity]uint32
	NextDropItemID uint32

	GroundItems map[uint32]*GroundItem
	Enemies     []Enemy

	// Injected services. Immutable tables are shared; the RNG is owned.
	CommonItems items.Generator
	RareItems   *items.RareItemSet
	Rand        *rand.Rand
	Logger      *logrus.Logger

	BattleRecord   *ep3.BattleRecord
	WatcherLobbies []*Lobby

	mu sync.Mutex
}

// NewLobby creates a chat lobby.
func NewLobby(id uint32, d dialect.Dialect, logger *logrus.Logger) *Lobby {
	l := &Lobby{
		ID:          id,
		Dialect:     d,
		MaxClients:  LobbyCapacity,
		GroundItems: make(map[uint32]*GroundItem),
		Logger:      logger,
	}
	l.initItemCounters()
	return l
}

// NewGame creates a game room.
func NewGame(id uint32, d dialect.Dialect, episode, difficulty, sectionID uint8, cardOnly bool, logger *logrus.Logger) *Lobby {
	l := &Lobby{
		ID:          id,
		Dialect:     d,
		IsGameRoom:  true,
		Episode:     episode,
		Difficulty:  difficulty,
		SectionID:   sectionID,
		MaxClients:  GameCapacity,
		GroundItems: make(map[uint32]*GroundItem),
		Logger:      logger,
	}
	if cardOnly {
		l.Flags |= FlagCardOnly
		l.MaxClients = LobbyCapacity
	}
	l.initItemCounters()
	return l
}

func (l *Lobby) initItemCounters() {
	for i := range l.NextItemID {
		l.NextItemID[i] = 0x00010000*uint32(i+1) + 1
	}
	l.NextDropItemID = 0x00810001
}

// Lock serializes room access. The dispatcher holds this for entire handler
// invocations.
func (l *Lobby) Lock()   { l.mu.Lock() }
func (l *Lobby) Unlock() { l.mu.Unlock() }

func (l *Lobby) IsGame() bool { return l.IsGameRoom }

// AddClient places c in the lowest free slot and returns it. The first
// occupant becomes leader.
func (l *Lobby) AddClient(c *client.Client) (uint8, error) {
	for slot := uint8(0); slot < l.MaxClients; slot++ {
		if l.Clients[slot] != nil {
			continue
		}
		l.Clients[slot] = c
		c.LobbyID = l.ID
		c.SlotID = slot
		if l.occupantCount() == 1 {
			l.LeaderID = slot
		}
		return slot, nil
	}
	return 0, ErrRoomFull
}

// RemoveClient clears a slot. If the leader left, the lowest-index
// remaining occupant takes over; the second return reports whether a
// leader change happened (the caller publishes it).
func (l *Lobby) RemoveClient(slot uint8) (uint8, bool) {
	if slot >= l.MaxClients || l.Clients[slot] == nil {
		return l.LeaderID, false
	}
	c := l.Clients[slot]
	l.Clients[slot] = nil
	c.LobbyID = 0

	if l.LeaderID != slot {
		return l.LeaderID, false
	}
	for s := uint8(0); s < l.MaxClients; s++ {
		if l.Clients[s] != nil {
			l.LeaderID = s
			return s, true
		}
	}
	// Room is empty; leader index is meaningless until someone joins.
	l.LeaderID = 0
	return 0, false
}

func (l *Lobby) occupantCount() int {
	count := 0
	for _, c := range l.Clients {
		if c != nil {
			count++
		}
	}
	return count
}

// Leader returns the current leader, or nil for an empty room.
func (l *Lobby) Leader() *client.Client {
	if l.LeaderID < l.MaxClients {
		return l.Clients[l.LeaderID]
	}
	return nil
}

// AnyClientLoading reports whether any occupant is still loading into the
// game; a handful of subcommands are only forwarded during that window.
func (l *Lobby) AnyClientLoading() bool {
	for _, c := range l.Clients {
		if c != nil && c.Loading {
			return true
		}
	}
	return false
}

// Broadcast sends a command to every occupied slot, optionally skipping
// one. Dialect differences are handled per-slot by each client's channel.
func (l *Lobby) Broadcast(opcode uint16, flag uint32, payload []byte, exceptSlot int) {
	for slot := uint8(0); slot < l.MaxClients; slot++ {
		c := l.Clients[slot]
		if c == nil || int(slot) == exceptSlot {
			continue
		}
		if err := c.Send(opcode, flag, payload); err != nil && l.Logger != nil {
			l.Logger.Warnf("lobby %d: broadcast to slot %d failed: %v", l.ID, slot, err)
		}
	}
}

// SendToSlot sends to exactly one slot, silently dropping if it's empty.
func (l *Lobby) SendToSlot(slot uint8, opcode uint16, flag uint32, payload []byte) {
	if slot >= l.MaxClients || l.Clients[slot] == nil {
		return
	}
	if err := l.Clients[slot].Send(opcode, flag, payload); err != nil && l.Logger != nil {
		l.Logger.Warnf("lobby %d: send to slot %d failed: %v", l.ID, slot, err)
	}
}

// GenerateItemID returns a fresh room-unique item id. Slots draw from their
// own range; anything else (server drops) draws from the pool.
func (l *Lobby) GenerateItemID(slot uint8) uint32 {
	if slot < l.MaxClients {
		id := l.NextItemID[slot]
		l.NextItemID[slot]++
		return id
	}
	id := l.NextDropItemID
	l.NextDropItemID++
	return id
}

// AddGroundItem inserts a dropped item. An id collision is an invariant
// violation, not a client error.
func (l *Lobby) AddGroundItem(item items.ItemData, area uint8, x, z float32) error {
	if _, exists := l.GroundItems[item.ID]; exists {
		return fmt.Errorf("lobby %d: ground item id %08X already present", l.ID, item.ID)
	}
	l.GroundItems[item.ID] = &GroundItem{Item: item, Area: area, X: x, Z: z}
	return nil
}

// RemoveGroundItem takes a dropped item back out.
func (l *Lobby) RemoveGroundItem(id uint32) (items.ItemData, error) {
	ground, ok := l.GroundItems[id]
	if !ok {
		return items.ItemData{}, items.ErrNoSuchItem
	}
	delete(l.GroundItems, id)
	return ground.Item, nil
}

// RegisterEnemies installs the room's enemy table (from quest or map data).
func (l *Lobby) RegisterEnemies(enemies []Enemy) {
	l.Enemies = enemies
}

// AddWatcherLobby subscribes a chat lobby to this game's mirrored stream.
func (l *Lobby) AddWatcherLobby(watcher *Lobby) error {
	if watcher.IsGame() {
		return ErrWatcherNotLobby
	}
	l.WatcherLobbies = append(l.WatcherLobbies, watcher)
	return nil
}

// RemoveWatcherLobby unsubscribes a watcher.
func (l *Lobby) RemoveWatcherLobby(watcher *Lobby) {
	for i, w := range l.WatcherLobbies {
		if w == watcher {
			l.WatcherLobbies = append(l.WatcherLobbies[:i], l.WatcherLobbies[i+1:]...)
			return
		}
	}
}

// AllItemIDsUnique verifies the room-wide uniqueness invariant across the
// ground map and every occupant's inventory.
func (l *Lobby) AllItemIDsUnique() bool {
	seen := make(map[uint32]bool)
	for id := range l.GroundItems {
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	for _, c := range l.Clients {
		if c == nil || c.Player == nil {
			continue
		}
		for i := range c.Player.Inventory.Items {
			id := c.Player.Inventory.Items[i].Data.ID
			if seen[id] {
				return false
			}
			seen[id] = true
		}
	}
	return true
}
