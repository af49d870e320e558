// Package ledger turns absolute slot observations into signed quantity
// deltas. The calculator is a pure state machine over its own slot map;
// it performs no I/O and is owned by the collector's single worker.
package ledger

import (
	"time"

	"loottrack/internal/database"
	"loottrack/internal/log"
)

// Change is the net effect of one observation: a signed quantity for an
// item type. Quantity is never zero.
type Change struct {
	Key        database.SlotKey
	ItemTypeID int
	Quantity   int
}

// Calculator remembers the last known state of every (owner, slot) and
// diffs new observations against it.
type Calculator struct {
	slots map[string]map[database.SlotKey]database.SlotState
}

// NewCalculator creates an empty calculator.
func NewCalculator() *Calculator {
	return &Calculator{
		slots: make(map[string]map[database.SlotKey]database.SlotState),
	}
}

// Load seeds slot state from persisted rows, typically at startup.
func (c *Calculator) Load(states []database.SlotState) {
	for _, state := range states {
		c.owner(state.OwnerID)[state.Key] = state
	}
}

// Process applies one observation and returns the resulting change (nil
// when none is emitted) plus the new authoritative slot state.
func (c *Calculator) Process(ownerID string, key database.SlotKey, itemTypeID, newQuantity int, snapshot bool, ts time.Time) (*Change, database.SlotState) {
	change, state := c.Preview(ownerID, key, itemTypeID, newQuantity, snapshot, ts)
	c.Commit(state)
	return change, state
}

// Preview computes the change one observation would produce without
// recording it. The caller commits the returned state once the change is
// durably persisted, so a failed write can be replayed against unchanged
// slot memory.
//
// Snapshot observations always update state without emitting a change:
// they re-announce contents after an external sort or reset, so reading
// them as gains would double-count. A slot whose item type changed is
// treated as a content swap: the full new quantity is a gain and no loss
// is recorded for the displaced item, which is assumed relocated rather
// than destroyed.
func (c *Calculator) Preview(ownerID string, key database.SlotKey, itemTypeID, newQuantity int, snapshot bool, ts time.Time) (*Change, database.SlotState) {
	if newQuantity < 0 {
		log.Warn("Clamping negative slot quantity",
			"slot", key, "itemType", itemTypeID, "quantity", newQuantity)
		newQuantity = 0
	}

	owned := c.owner(ownerID)
	prior, hasPrior := owned[key]

	var change *Change
	if !snapshot {
		switch {
		case !hasPrior && newQuantity == 0:
			// Slot remains empty.
		case !hasPrior:
			change = &Change{Key: key, ItemTypeID: itemTypeID, Quantity: newQuantity}
		case prior.ItemTypeID == itemTypeID:
			if diff := newQuantity - prior.Quantity; diff != 0 {
				change = &Change{Key: key, ItemTypeID: itemTypeID, Quantity: diff}
			}
		default:
			// Content swap.
			if newQuantity != 0 {
				change = &Change{Key: key, ItemTypeID: itemTypeID, Quantity: newQuantity}
			}
		}
	}

	state := database.SlotState{
		Key:         key,
		ItemTypeID:  itemTypeID,
		Quantity:    newQuantity,
		LastUpdated: ts,
		OwnerID:     ownerID,
	}
	return change, state
}

// Commit records a previewed state as the slot's authoritative contents.
func (c *Calculator) Commit(state database.SlotState) {
	c.owner(state.OwnerID)[state.Key] = state
}

// ClearContainer forgets every slot of one container for one owner. The
// collector calls this when a fresh snapshot batch begins so stale slots
// do not survive a reorganization.
func (c *Calculator) ClearContainer(ownerID string, containerID int) {
	owned := c.slots[ownerID]
	for key := range owned {
		if key.ContainerID == containerID {
			delete(owned, key)
		}
	}
}

// Reset forgets all slot state, used when the tracked identity changes.
func (c *Calculator) Reset() {
	c.slots = make(map[string]map[database.SlotKey]database.SlotState)
}

// SlotCount returns how many slots are tracked for an owner.
func (c *Calculator) SlotCount(ownerID string) int {
	return len(c.slots[ownerID])
}

func (c *Calculator) owner(ownerID string) map[database.SlotKey]database.SlotState {
	owned, ok := c.slots[ownerID]
	if !ok {
		owned = make(map[database.SlotKey]database.SlotState)
		c.slots[ownerID] = owned
	}
	return owned
}
