package events

import (
	"testing"
	"time"
)

func TestClassifyLineShapes(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		check func(t *testing.T, ev *Event)
	}{
		{
			name:  "slot modified",
			input: `[2026-08-25 14:03:22.481] Inventory :: slot modified: container=4001 slot=12 itemType=88112 count=550`,
			check: func(t *testing.T, ev *Event) {
				if ev.Kind != KindSlotChange {
					t.Fatalf("expected slot-change, got %v", ev.Kind)
				}
				if ev.Slot.ContainerID != 4001 || ev.Slot.SlotIndex != 12 {
					t.Errorf("wrong slot key: %+v", ev.Slot)
				}
				if ev.Slot.ItemTypeID != 88112 || ev.Slot.Quantity != 550 {
					t.Errorf("wrong item/quantity: %+v", ev.Slot)
				}
				if ev.Slot.Snapshot {
					t.Error("modified line must not be a snapshot")
				}
			},
		},
		{
			name:  "slot initialized is snapshot",
			input: `[2026-08-25 14:03:22.481] Inventory :: slot initialized: container=4001 slot=0 itemType=7 count=0`,
			check: func(t *testing.T, ev *Event) {
				if ev.Kind != KindSlotChange || !ev.Slot.Snapshot {
					t.Fatalf("expected snapshot slot-change, got %+v", ev)
				}
			},
		},
		{
			name:  "context begin",
			input: `[2026-08-25 14:03:22.490] Gameplay :: block "LootPickup" begin`,
			check: func(t *testing.T, ev *Event) {
				if ev.Kind != KindContextMarker || !ev.Context.Begin || ev.Context.Name != "LootPickup" {
					t.Fatalf("expected LootPickup begin, got %+v", ev)
				}
			},
		},
		{
			name:  "context end",
			input: `[2026-08-25 14:03:25.100] Gameplay :: block "EntryCost" end`,
			check: func(t *testing.T, ev *Event) {
				if ev.Kind != KindContextMarker || ev.Context.Begin || ev.Context.Name != "EntryCost" {
					t.Fatalf("expected EntryCost end, got %+v", ev)
				}
			},
		},
		{
			name:  "level load transition",
			input: `[2026-08-25 14:03:25.002] World :: transition complete: kind=LoadLevel dest="Zones/Act3/ForgottenCrypt_B2"`,
			check: func(t *testing.T, ev *Event) {
				if ev.Kind != KindTransition {
					t.Fatalf("expected transition, got %v", ev.Kind)
				}
				if ev.Transition.Kind != TransitionKindLoadLevel {
					t.Errorf("wrong transition kind: %s", ev.Transition.Kind)
				}
				if ev.Transition.Zone != "Zones/Act3/ForgottenCrypt_B2" {
					t.Errorf("wrong zone: %s", ev.Transition.Zone)
				}
			},
		},
		{
			name:  "non-qualifying transition still parses",
			input: `[2026-08-25 14:03:25.002] World :: transition complete: kind=Streaming dest="Zones/Act3/ForgottenCrypt_B2"`,
			check: func(t *testing.T, ev *Event) {
				if ev.Kind != KindTransition || ev.Transition.Kind != "Streaming" {
					t.Fatalf("expected Streaming transition, got %+v", ev)
				}
			},
		},
		{
			name:  "pending level metadata",
			input: `[2026-08-25 14:03:24.900] World :: pending level: id=214 type=Dungeon uid=f3a91c`,
			check: func(t *testing.T, ev *Event) {
				if ev.Kind != KindTransitionMeta {
					t.Fatalf("expected transition-meta, got %v", ev.Kind)
				}
				m := ev.TransitionMeta
				if m.LevelID != 214 || m.LevelType != "dungeon" || m.LevelUID != "f3a91c" {
					t.Errorf("wrong metadata: %+v", m)
				}
			},
		},
		{
			name:  "quoted identity attribute",
			input: `[2026-08-25 14:03:20.101] Session :: attr characterName="Vexa"`,
			check: func(t *testing.T, ev *Event) {
				if ev.Kind != KindIdentityAttr {
					t.Fatalf("expected identity-attr, got %v", ev.Kind)
				}
				if ev.Identity.Field != FieldCharacterName || ev.Identity.Value != "Vexa" {
					t.Errorf("wrong attribute: %+v", ev.Identity)
				}
			},
		},
		{
			name:  "unquoted identity attribute",
			input: `[2026-08-25 14:03:20.100] Session :: attr characterId=8839271`,
			check: func(t *testing.T, ev *Event) {
				if ev.Identity.Field != FieldCharacterID || ev.Identity.Value != "8839271" {
					t.Errorf("wrong attribute: %+v", ev.Identity)
				}
			},
		},
		{
			name:  "view change",
			input: `[2026-08-25 14:05:00.000] UI :: view changed: Stash`,
			check: func(t *testing.T, ev *Event) {
				if ev.Kind != KindViewChange || ev.View.View != "Stash" {
					t.Fatalf("expected Stash view change, got %+v", ev)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ev := Classify(tc.input)
			if ev == nil {
				t.Fatalf("line did not classify: %s", tc.input)
			}
			tc.check(t, ev)
		})
	}
}

func TestClassifyIgnoresIrrelevantLines(t *testing.T) {
	lines := []string{
		``,
		`random noise without timestamp`,
		`[2026-08-25 14:03:22.481] Renderer :: frame took 16.6ms`,
		`[2026-08-25 14:03:22.481] Inventory :: slot modified: container=abc slot=12 itemType=1 count=1`,
		`    item: 88112`, // price message body, no timestamp
		`[bad timestamp] Inventory :: slot modified: container=1 slot=1 itemType=1 count=1`,
	}

	for _, line := range lines {
		if ev := Classify(line); ev != nil {
			t.Errorf("expected no event for %q, got kind %v", line, ev.Kind)
		}
	}
}

func TestClassifyTimestamps(t *testing.T) {
	ev := Classify(`[2026-08-25 14:03:22.481] UI :: view changed: Stash`)
	if ev == nil {
		t.Fatal("line did not classify")
	}

	want := time.Date(2026, 8, 25, 14, 3, 22, 481*int(time.Millisecond), time.Local)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("expected %v, got %v", want, ev.Timestamp)
	}
}

func TestSplitTimestamp(t *testing.T) {
	_, rest, ok := SplitTimestamp(`[2026-08-25 14:03:22.481] Market :: query end id=50912`)
	if !ok {
		t.Fatal("timestamped line not recognized")
	}
	if rest != "Market :: query end id=50912" {
		t.Errorf("wrong rest: %q", rest)
	}

	if _, _, ok := SplitTimestamp(`    0.021`); ok {
		t.Error("continuation line must not split")
	}
}
