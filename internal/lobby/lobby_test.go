package lobby

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mvantor/ragol/internal/channel"
	"github.com/mvantor/ragol/internal/client"
	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/items"
)

type nullConn struct{}

func (nullConn) Read([]byte) (int, error)         { return 0, io.EOF }
func (nullConn) Write(b []byte) (int, error)      { return len(b), nil }
func (nullConn) Close() error                     { return nil }
func (nullConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (nullConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (nullConn) SetDeadline(time.Time) error      { return nil }
func (nullConn) SetReadDeadline(time.Time) error  { return nil }
func (nullConn) SetWriteDeadline(time.Time) error { return nil }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testClient() *client.Client {
	return client.New(channel.New(nullConn{}, dialect.V4))
}

func TestAddClientAssignsLowestSlot(t *testing.T) {
	l := NewGame(1, dialect.V4, 1, 0, 0, false, testLogger())

	a, b, c := testClient(), testClient(), testClient()
	for i, cl := range []*client.Client{a, b, c} {
		slot, err := l.AddClient(cl)
		if err != nil {
			t.Fatal(err)
		}
		if slot != uint8(i) {
			t.Fatalf("slot want = %d, got = %d", i, slot)
		}
	}
	if l.LeaderID != 0 {
		t.Fatalf("first joiner should lead, got %d", l.LeaderID)
	}

	// Free the middle slot; the next joiner reuses it.
	l.RemoveClient(1)
	d := testClient()
	slot, err := l.AddClient(d)
	if err != nil {
		t.Fatal(err)
	}
	if slot != 1 {
		t.Fatalf("freed slot should be reused, got %d", slot)
	}
}

func TestRoomFull(t *testing.T) {
	l := NewGame(1, dialect.V4, 1, 0, 0, false, testLogger())
	for i := 0; i < GameCapacity; i++ {
		if _, err := l.AddClient(testClient()); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := l.AddClient(testClient()); err != ErrRoomFull {
		t.Fatalf("want ErrRoomFull, got %v", err)
	}
}

func TestLeaderReelection(t *testing.T) {
	l := NewGame(1, dialect.V4, 1, 0, 0, false, testLogger())
	for i := 0; i < 3; i++ {
		_, _ = l.AddClient(testClient())
	}

	// A non-leader leaving changes nothing.
	if _, changed := l.RemoveClient(2); changed {
		t.Fatal("leader should not change when a follower leaves")
	}

	newLeader, changed := l.RemoveClient(0)
	if !changed || newLeader != 1 {
		t.Fatalf("lowest remaining slot should lead, got %d (changed=%v)", newLeader, changed)
	}

	// Last occupant leaves; the room is empty.
	l.RemoveClient(1)
	if l.Leader() != nil {
		t.Fatal("empty room has no leader")
	}
}

func TestGroundItems(t *testing.T) {
	l := NewGame(1, dialect.V4, 1, 0, 0, false, testLogger())

	item := items.ItemData{Data1: [12]byte{items.CategoryWeapon}, ID: 0x100}
	if err := l.AddGroundItem(item, 2, 1.0, 2.0); err != nil {
		t.Fatal(err)
	}
	if err := l.AddGroundItem(item, 2, 1.0, 2.0); err == nil {
		t.Fatal("duplicate ground item id must be rejected")
	}

	got, err := l.RemoveGroundItem(0x100)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 0x100 {
		t.Fatalf("removed item id want = 0x100, got = %#x", got.ID)
	}
	if _, err := l.RemoveGroundItem(0x100); err != items.ErrNoSuchItem {
		t.Fatalf("want ErrNoSuchItem, got %v", err)
	}
}

func TestGenerateItemIDNeverRepeats(t *testing.T) {
	l := NewGame(1, dialect.V4, 1, 0, 0, false, testLogger())

	seen := make(map[uint32]bool)
	for slot := uint8(0); slot < 4; slot++ {
		for i := 0; i < 100; i++ {
			id := l.GenerateItemID(slot)
			if seen[id] {
				t.Fatalf("id %08X issued twice", id)
			}
			seen[id] = true
		}
	}
	for i := 0; i < 100; i++ {
		id := l.GenerateItemID(0xFF)
		if seen[id] {
			t.Fatalf("pool id %08X issued twice", id)
		}
		seen[id] = true
	}
}

func TestWatcherLobbiesMustBeLobbies(t *testing.T) {
	game := NewGame(1, dialect.V3Console, 1, 0, 0, true, testLogger())
	otherGame := NewGame(2, dialect.V3Console, 1, 0, 0, true, testLogger())
	chat := NewLobby(3, dialect.V3Console, testLogger())

	if err := game.AddWatcherLobby(otherGame); err != ErrWatcherNotLobby {
		t.Fatalf("want ErrWatcherNotLobby, got %v", err)
	}
	if err := game.AddWatcherLobby(chat); err != nil {
		t.Fatal(err)
	}
	game.RemoveWatcherLobby(chat)
	if len(game.WatcherLobbies) != 0 {
		t.Fatal("watcher should be removed")
	}
}

func TestCardGameCapacity(t *testing.T) {
	card := NewGame(1, dialect.V3Console, 1, 0, 0, true, testLogger())
	if card.MaxClients != LobbyCapacity {
		t.Fatalf("card games hold %d clients, got %d", LobbyCapacity, card.MaxClients)
	}
	if card.Flags&FlagCardOnly == 0 {
		t.Fatal("card game should carry the card flag")
	}

	normal := NewGame(2, dialect.V4, 1, 0, 0, false, testLogger())
	if normal.MaxClients != GameCapacity {
		t.Fatalf("games hold %d clients, got %d", GameCapacity, normal.MaxClients)
	}
}
