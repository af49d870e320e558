package events

import (
	"strings"
)

// hubPatterns are the zone-path fragments that mark non-gameplay areas.
// Matching is case-insensitive substring; the list is fixed at build time.
var hubPatterns = []string{
	"town",
	"hideout",
	"encampment",
	"hub",
	"menagerie",
	"characterselect",
}

// levelTypeNames translates the client's level-type tags into the names
// stored with runs. Unknown tags are lowercased as-is.
var levelTypeNames = map[string]string{
	"Dungeon":   "dungeon",
	"Campaign":  "campaign",
	"Monolith":  "monolith",
	"Arena":     "arena",
	"Hideout":   "hideout",
	"Town":      "town",
	"Frontdoor": "lobby",
}

// HubMatcher classifies zone signatures as hub or gameplay areas. It is
// immutable after construction and shared by reference.
type HubMatcher struct {
	patterns []string
}

// NewHubMatcher builds a matcher over lowercase substring patterns.
func NewHubMatcher(patterns []string) *HubMatcher {
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &HubMatcher{patterns: lowered}
}

// DefaultHubMatcher matches the known town/hideout/camp zone names.
func DefaultHubMatcher() *HubMatcher {
	return NewHubMatcher(hubPatterns)
}

// Matches reports whether the zone signature names a hub area.
func (m *HubMatcher) Matches(zone string) bool {
	lowered := strings.ToLower(zone)
	for _, p := range m.patterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// TranslateLevelType maps a client level-type tag to its stored name.
func TranslateLevelType(tag string) string {
	if name, ok := levelTypeNames[tag]; ok {
		return name
	}
	return strings.ToLower(tag)
}
