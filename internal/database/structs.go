package database

import (
	"fmt"
	"time"
)

// SlotKey identifies one storage cell: a container and an index within it.
// Used as a map key; never persisted as its own row.
type SlotKey struct {
	ContainerID int
	SlotIndex   int
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%d/%d", k.ContainerID, k.SlotIndex)
}

// SlotState is the authoritative contents of one slot for one owner.
type SlotState struct {
	Key         SlotKey
	ItemTypeID  int
	Quantity    int
	LastUpdated time.Time
	OwnerID     string
}

// ItemDelta is an immutable signed quantity change attributed to a causal
// context and, when known, a run. Quantity is never zero.
type ItemDelta struct {
	ID           int64
	Key          SlotKey
	ItemTypeID   int
	Quantity     int
	Context      string
	ContextLabel string
	RunID        *int64
	Timestamp    time.Time
	OwnerID      string
	Season       string
}

// Run is a contiguous interval of play bounded by level-load transitions.
// EndedAt is nil while the run is active; at most one run per owner is
// active at a time.
type Run struct {
	ID        int64
	Zone      string
	StartedAt time.Time
	EndedAt   *time.Time
	IsHub     bool
	LevelID   int
	LevelType string
	LevelUID  string
	OwnerID   string
	Season    string
}

// Active reports whether the run has not ended yet.
func (r *Run) Active() bool {
	return r.EndedAt == nil
}

// PriceObservation is one correlated trade-query result: the unit prices
// seen for an item, in the order the response listed them.
type PriceObservation struct {
	CorrelationID int64
	ItemTypeID    int
	Prices        []float64
	Timestamp     time.Time
}

// Checkpoint records how far into a log file ingestion has progressed.
// One row per file identity, overwritten in place.
type Checkpoint struct {
	FileIdentity string
	ByteOffset   int64
	FileSize     int64
}
