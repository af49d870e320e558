package collector

import (
	"loottrack/internal/database"
)

// Observer receives typed notifications from the collector's worker.
// Callbacks run synchronously on the worker, so a slow observer throttles
// ingestion directly; that trade is deliberate.
type Observer interface {
	OnDelta(delta database.ItemDelta)
	OnRunStart(run database.Run)
	OnRunEnd(run database.Run)
	OnPriceUpdate(itemTypeID int, price float64)
	OnIdentityChange(identity Identity)
	OnContainerReset(containerID int)
}

// NopObserver implements Observer with no-ops; embed it to subscribe to a
// subset of notifications.
type NopObserver struct{}

func (NopObserver) OnDelta(database.ItemDelta) {}
func (NopObserver) OnRunStart(database.Run)    {}
func (NopObserver) OnRunEnd(database.Run)      {}
func (NopObserver) OnPriceUpdate(int, float64) {}
func (NopObserver) OnIdentityChange(Identity)  {}
func (NopObserver) OnContainerReset(int)       {}

// PriceSyncer is the optional upload collaborator. Absence never affects
// core correctness.
type PriceSyncer interface {
	QueueSubmission(itemTypeID int, season string, referencePrice float64, prices []float64)
}
