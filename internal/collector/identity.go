package collector

import (
	"time"

	"loottrack/internal/events"
	"loottrack/internal/log"
)

// Identity is the assembled session identity of the tracked player.
type Identity struct {
	CharacterID   string
	CharacterName string
	AccountHash   string
	SessionID     string
}

// EffectiveID derives the comparison key: the explicit character id when
// the client logged one, else a composite of account and name.
func (id Identity) EffectiveID() string {
	if id.CharacterID != "" {
		return id.CharacterID
	}
	return id.AccountHash + "/" + id.CharacterName
}

// complete reports whether the minimum fields for a comparison are
// present.
func (id Identity) complete() bool {
	return id.CharacterName != "" && (id.CharacterID != "" || id.AccountHash != "")
}

// identityAssembler accumulates the piecemeal session attribute lines into
// a full identity. Fragments separated by more than the settle window are
// treated as unrelated; a pending record that stays incomplete past the
// staleness TTL is discarded rather than acted on.
type identityAssembler struct {
	settle   time.Duration
	staleTTL time.Duration

	pending   Identity
	hasFields bool
	firstSeen time.Time
	lastSeen  time.Time
}

func newIdentityAssembler(settle, staleTTL time.Duration) *identityAssembler {
	return &identityAssembler{settle: settle, staleTTL: staleTTL}
}

// add folds one attribute line into the pending record and returns the
// assembled identity once it is complete, nil otherwise.
func (a *identityAssembler) add(attr *events.IdentityAttr, ts time.Time) *Identity {
	if a.hasFields {
		if ts.Sub(a.lastSeen) > a.settle {
			// A fresh burst of attributes; the old fragment set is unrelated.
			a.reset()
		} else if ts.Sub(a.firstSeen) > a.staleTTL {
			log.Debug("Discarding stale incomplete identity record",
				"age", ts.Sub(a.firstSeen))
			a.reset()
		}
	}

	if !a.hasFields {
		a.firstSeen = ts
		a.hasFields = true
	}
	a.lastSeen = ts

	switch attr.Field {
	case events.FieldCharacterID:
		a.pending.CharacterID = attr.Value
	case events.FieldCharacterName:
		a.pending.CharacterName = attr.Value
	case events.FieldAccountHash:
		a.pending.AccountHash = attr.Value
	case events.FieldSessionID:
		a.pending.SessionID = attr.Value
	default:
		// Unknown session attribute; harmless.
		return nil
	}

	if !a.pending.complete() {
		return nil
	}

	assembled := a.pending
	a.reset()
	return &assembled
}

func (a *identityAssembler) reset() {
	a.pending = Identity{}
	a.hasFields = false
}
