package events

import (
	"testing"
)

func TestHubMatcher(t *testing.T) {
	m := DefaultHubMatcher()

	testCases := []struct {
		zone string
		hub  bool
	}{
		{"Zones/Act1/NewTown_Square", true},
		{"Zones/Hideouts/CoastalHideout", true},
		{"Zones/Outposts/RangerEncampment", true},
		{"Zones/Act3/ForgottenCrypt_B2", false},
		{"Zones/Monolith/EmptyCorridor", false},
		{"CharacterSelect", true},
		{"", false},
	}

	for _, tc := range testCases {
		if got := m.Matches(tc.zone); got != tc.hub {
			t.Errorf("Matches(%q) = %v, want %v", tc.zone, got, tc.hub)
		}
	}
}

func TestTranslateLevelType(t *testing.T) {
	testCases := []struct {
		tag  string
		want string
	}{
		{"Dungeon", "dungeon"},
		{"Monolith", "monolith"},
		{"Frontdoor", "lobby"},
		{"SomethingNew", "somethingnew"},
	}

	for _, tc := range testCases {
		if got := TranslateLevelType(tc.tag); got != tc.want {
			t.Errorf("TranslateLevelType(%q) = %q, want %q", tc.tag, got, tc.want)
		}
	}
}
