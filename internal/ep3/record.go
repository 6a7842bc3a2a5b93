package ep3

import (
	"sync"
	"time"
)

// Battle record event types. Card-envelope traffic is tagged separately so
// replays can be filtered.
type EventType uint8

const (
	EventGameCommand EventType = iota
	EventCardGameCommand
)

type Event struct {
	Type EventType
	Data []byte
	When time.Time
}

// BattleRecord accumulates the subcommands forwarded through a room while
// a battle is running, for spectator catch-up and replays.
type BattleRecord struct {
	mu         sync.Mutex
	inProgress bool
	events     []Event
}

func NewBattleRecord() *BattleRecord {
	return &BattleRecord{}
}

func (r *BattleRecord) SetBattleStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inProgress = true
}

func (r *BattleRecord) SetBattleEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inProgress = false
}

func (r *BattleRecord) BattleInProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inProgress
}

// AddCommand appends one forwarded subcommand. The payload is copied; the
// dispatcher reuses its buffers.
func (r *BattleRecord) AddCommand(eventType EventType, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inProgress {
		return
	}
	event := Event{Type: eventType, Data: make([]byte, len(data)), When: time.Now()}
	copy(event.Data, data)
	r.events = append(r.events, event)
}

// Events returns a snapshot of the recorded stream.
func (r *BattleRecord) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
