package collector

import (
	"testing"
	"time"

	"loottrack/internal/events"
)

func attrAt(field, value string) *events.IdentityAttr {
	return &events.IdentityAttr{Field: field, Value: value}
}

func TestAssemblerCompletesWithinSettleWindow(t *testing.T) {
	a := newIdentityAssembler(2*time.Second, 30*time.Second)
	base := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)

	if id := a.add(attrAt(events.FieldCharacterName, "Vexa"), base); id != nil {
		t.Fatalf("incomplete record emitted: %+v", id)
	}
	id := a.add(attrAt(events.FieldCharacterID, "8839271"), base.Add(500*time.Millisecond))
	if id == nil || id.EffectiveID() != "8839271" {
		t.Fatalf("expected assembled identity, got %+v", id)
	}
}

func TestAssemblerDiscardsStaleIncompleteRecord(t *testing.T) {
	a := newIdentityAssembler(2*time.Second, 30*time.Second)
	base := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)

	// An incomplete record kept alive by steady sub-settle fragments must
	// not combine with an attribute arriving past the staleness TTL.
	if id := a.add(attrAt(events.FieldCharacterName, "Vexa"), base); id != nil {
		t.Fatalf("incomplete record emitted: %+v", id)
	}
	for ts := base.Add(1500 * time.Millisecond); !ts.After(base.Add(30 * time.Second)); ts = ts.Add(1500 * time.Millisecond) {
		if id := a.add(attrAt(events.FieldSessionID, "sess-1"), ts); id != nil {
			t.Fatalf("session fragments completed an identity: %+v", id)
		}
	}

	if id := a.add(attrAt(events.FieldCharacterID, "8839271"), base.Add(31500*time.Millisecond)); id != nil {
		t.Fatalf("stale record combined with late attribute: %+v", id)
	}

	// The late attribute started a fresh record; completing it works.
	id := a.add(attrAt(events.FieldCharacterName, "Vexa"), base.Add(32*time.Second))
	if id == nil || id.CharacterID != "8839271" || id.SessionID != "" {
		t.Fatalf("fresh record not assembled cleanly: %+v", id)
	}
}

func TestAssemblerSplitsFragmentsAcrossSettleGap(t *testing.T) {
	a := newIdentityAssembler(2*time.Second, 30*time.Second)
	base := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)

	a.add(attrAt(events.FieldCharacterName, "Vexa"), base)
	if id := a.add(attrAt(events.FieldCharacterID, "8839271"), base.Add(10*time.Second)); id != nil {
		t.Fatalf("fragments across the settle gap combined: %+v", id)
	}
}
