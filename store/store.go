// Package store is the canonical in-memory model of the response world.
//
// Every mutation takes the write lock, runs to completion and bumps the
// version before the lock is released, so two mutations never interleave and
// subscribers observe changes in the order they were applied. Readers get
// copies of the collections; entities are value snapshots and are replaced,
// never edited in place.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go-aidr/types"
)

type ChangeKind string

const (
	ChangeIncident      ChangeKind = "incident"
	ChangeResource      ChangeKind = "resource"
	ChangeMission       ChangeKind = "mission"
	ChangeDamageAreas   ChangeKind = "damage_areas"
	ChangeAgentStatus   ChangeKind = "agent_status"
	ChangeTask          ChangeKind = "task"
	ChangeTasks         ChangeKind = "tasks"
	ChangeDamageReports ChangeKind = "damage_reports"
	ChangeDisasters     ChangeKind = "disasters"
	ChangeConnection    ChangeKind = "connection"
	ChangeStatus        ChangeKind = "status"
	ChangeSnapshot      ChangeKind = "snapshot"
)

// Change tells a subscriber what moved. It carries no entity data; read the
// store for the current value.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	ID      string     `json:"id,omitempty"`
	Version uint64     `json:"version"`
}

const subscriberBuffer = 64

type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	version uint64

	incidents     []types.Incident // most recent first
	resources     []types.Resource
	pending       []types.Mission // most recent first
	active        []types.Mission // most recent first
	damageAreas   []types.DamageArea
	agents        map[types.AgentType]types.AgentStatus
	tasks         []types.Task
	damageReports []types.DamageReport
	disasters     []types.Disaster

	conn    types.ConnectionState
	loading bool
	errMsg  string

	subMu sync.Mutex
	subs  map[string]chan Change
}

type Option func(*Store)

// WithClock replaces time.Now for receipt and approval timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:    time.Now,
		agents: make(map[types.AgentType]types.AgentStatus),
		conn:   types.ConnectionState{Status: types.Disconnected},
		subs:   make(map[string]chan Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers for change notifications. Delivery never blocks the
// writer: a subscriber whose buffer is full misses notifications and should
// re-read the store. Call cancel to unsubscribe; it closes the channel.
func (s *Store) Subscribe() (<-chan Change, func()) {
	id := uuid.NewString()
	ch := make(chan Change, subscriberBuffer)

	s.subMu.Lock()
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// commit bumps the version and fans the change out. Caller holds s.mu.
func (s *Store) commit(kind ChangeKind, id string) {
	s.version++
	c := Change{Kind: kind, ID: id, Version: s.version}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
