// Package runs segments play time into discrete runs bounded by
// level-load transitions. The segmenter is a pure state machine: at most
// one run per owner is active, and run ids are monotonic for the life of
// the process.
package runs

import (
	"time"

	"loottrack/internal/database"
	"loottrack/internal/events"
)

// Segmenter tracks the active run per owner and assigns run ids.
type Segmenter struct {
	nextID int64
	hubs   *events.HubMatcher
	active map[string]*database.Run
}

// NewSegmenter creates a segmenter whose first run gets id nextID. Seed
// from the store's max persisted id plus one so ids never repeat.
func NewSegmenter(nextID int64, hubs *events.HubMatcher) *Segmenter {
	if nextID < 1 {
		nextID = 1
	}
	return &Segmenter{
		nextID: nextID,
		hubs:   hubs,
		active: make(map[string]*database.Run),
	}
}

// Restore adopts a persisted active run, typically at startup. The next
// assigned id is bumped past it if necessary.
func (s *Segmenter) Restore(run *database.Run) {
	if run == nil || !run.Active() {
		return
	}
	s.active[run.OwnerID] = run
	if run.ID >= s.nextID {
		s.nextID = run.ID + 1
	}
}

// Active returns the owner's active run, or nil.
func (s *Segmenter) Active(ownerID string) *database.Run {
	return s.active[ownerID]
}

// Apply processes one qualifying transition: the owner's active run (if
// any) is closed at the transition timestamp and a new run is opened
// unconditionally. meta may be nil when the client logged no pending-level
// line before the transition.
func (s *Segmenter) Apply(ownerID, season string, t *events.Transition, meta *events.TransitionMeta, ts time.Time) (ended, started *database.Run) {
	if prior := s.active[ownerID]; prior != nil {
		endedAt := ts
		prior.EndedAt = &endedAt
		ended = prior
	}

	run := &database.Run{
		ID:        s.nextID,
		Zone:      t.Zone,
		StartedAt: ts,
		IsHub:     s.hubs.Matches(t.Zone),
		OwnerID:   ownerID,
		Season:    season,
	}
	s.nextID++

	if meta != nil {
		run.LevelID = meta.LevelID
		run.LevelType = meta.LevelType
		run.LevelUID = meta.LevelUID
	}

	s.active[ownerID] = run
	return ended, run
}

// ForceEnd closes the owner's active run without opening a new one. Used
// on shutdown and on identity changes. Returns the closed run, or nil.
func (s *Segmenter) ForceEnd(ownerID string, ts time.Time) *database.Run {
	run := s.active[ownerID]
	if run == nil {
		return nil
	}
	endedAt := ts
	run.EndedAt = &endedAt
	delete(s.active, ownerID)
	return run
}
