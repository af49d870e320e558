// Package events turns raw client-log lines into typed events. The
// classifier is stateless; multi-line market messages are handled by the
// pricing package instead.
package events

import (
	"time"
)

// Kind discriminates the closed set of event shapes. Dispatch sites switch
// exhaustively on it, so adding a kind is a compile-visible change.
type Kind int

const (
	KindSlotChange Kind = iota
	KindContextMarker
	KindTransition
	KindTransitionMeta
	KindIdentityAttr
	KindViewChange
)

func (k Kind) String() string {
	switch k {
	case KindSlotChange:
		return "slot-change"
	case KindContextMarker:
		return "context-marker"
	case KindTransition:
		return "transition"
	case KindTransitionMeta:
		return "transition-meta"
	case KindIdentityAttr:
		return "identity-attr"
	case KindViewChange:
		return "view-change"
	}
	return "unknown"
}

// Event is one classified log line. Exactly the payload matching Kind is
// non-nil.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	Slot           *SlotChange
	Context        *ContextMarker
	Transition     *Transition
	TransitionMeta *TransitionMeta
	Identity       *IdentityAttr
	View           *ViewChange
}

// SlotChange is a slot-modified or slot-initialized observation. Snapshot
// lines re-announce state and must never be read as a gain or loss.
type SlotChange struct {
	ContainerID int
	SlotIndex   int
	ItemTypeID  int
	Quantity    int
	Snapshot    bool
}

// ContextMarker opens or closes a named gameplay block.
type ContextMarker struct {
	Name  string
	Begin bool
}

// Transition is a completed world transition. Only TransitionKindLoadLevel
// qualifies for run segmentation; other kinds are parsed and ignored.
type Transition struct {
	Kind string
	Zone string
}

// TransitionKindLoadLevel is the single transition kind that bounds runs.
const TransitionKindLoadLevel = "LoadLevel"

// TransitionMeta carries the level metadata the client logs shortly before
// the matching transition completes.
type TransitionMeta struct {
	LevelID   int
	LevelType string
	LevelUID  string
}

// IdentityAttr is one piecemeal session attribute line.
type IdentityAttr struct {
	Field string
	Value string
}

// Identity attribute field names as they appear in the log.
const (
	FieldCharacterID   = "characterId"
	FieldCharacterName = "characterName"
	FieldAccountHash   = "accountHash"
	FieldSessionID     = "sessionId"
)

// ViewChange reports which UI view became active.
type ViewChange struct {
	View string
}
