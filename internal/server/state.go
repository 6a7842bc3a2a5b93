// Package server terminates game clients: it owns the listeners, the
// per-connection sessions, and the shared room registry. Everything the
// dispatcher needs (level table, rare tables, card index) is loaded once
// at startup and injected.
package server

import (
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mvantor/ragol/internal/core"
	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/encryption"
	"github.com/mvantor/ragol/internal/ep3"
	"github.com/mvantor/ragol/internal/items"
	"github.com/mvantor/ragol/internal/lobby"
	"github.com/mvantor/ragol/internal/quest"
	"github.com/mvantor/ragol/internal/subcmd"
)

// State is the shared server state: immutable tables plus the lobby/game
// registry. Rooms are looked up by id; sessions store only the id so the
// room owns its occupants outright.
type State struct {
	Config *core.Config
	Logger *logrus.Logger
	DB     *gorm.DB

	KeyPool []*encryption.KeyFile

	Quests *quest.Index
	Ep3    *ep3.DataIndex
	Rares  *items.RareItemSet

	Env *subcmd.Env

	mu          sync.Mutex
	nextLobbyID uint32
	rooms       map[uint32]*lobby.Lobby
	rng         *rand.Rand
}

// NewState builds the registry and seeds the default chat lobbies.
func NewState(cfg *core.Config, logger *logrus.Logger, db *gorm.DB, env *subcmd.Env) *State {
	s := &State{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Env:    env,
		rooms:  make(map[uint32]*lobby.Lobby),
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}

	numLobbies := cfg.GameServer.NumLobbies
	if numLobbies <= 0 {
		numLobbies = 15
	}
	for i := 0; i < numLobbies; i++ {
		l := lobby.NewLobby(s.allocateRoomID(), dialect.None, logger)
		s.rooms[l.ID] = l
	}
	return s
}

func (s *State) allocateRoomID() uint32 {
	s.nextLobbyID++
	return s.nextLobbyID
}

// Room returns the room with the given id.
func (s *State) Room(id uint32) *lobby.Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[id]
}

// DefaultLobby returns the first chat lobby with space, for post-handshake
// placement.
func (s *State) DefaultLobby() *lobby.Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := uint32(1); id <= s.nextLobbyID; id++ {
		l, ok := s.rooms[id]
		if !ok || l.IsGame() {
			continue
		}
		l.Lock()
		free := false
		for slot := uint8(0); slot < l.MaxClients; slot++ {
			if l.Clients[slot] == nil {
				free = true
				break
			}
		}
		l.Unlock()
		if free {
			return l
		}
	}
	return nil
}

// CreateGame registers a new game room configured for one dialect.
func (s *State) CreateGame(d dialect.Dialect, episode, difficulty, sectionID uint8, cardOnly bool) *lobby.Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := lobby.NewGame(s.allocateRoomID(), d, episode, difficulty, sectionID, cardOnly, s.Logger)
	if s.Config.GameServer.ItemTracking {
		l.Flags |= lobby.FlagItemTracking
	}
	l.Rand = rand.New(rand.NewSource(s.rng.Int63()))
	l.CommonItems = items.NewCommonItemSet(l.Rand)
	l.RareItems = s.Rares
	if cardOnly && s.Ep3 != nil && s.Ep3.BehaviorFlags&ep3.BehaviorEnableRecording != 0 {
		l.BattleRecord = ep3.NewBattleRecord()
	}
	s.rooms[l.ID] = l
	return l
}

// RemoveRoom drops an empty game room. Chat lobbies persist.
func (s *State) RemoveRoom(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.rooms[id]; ok && l.IsGame() {
		delete(s.rooms, id)
	}
}
