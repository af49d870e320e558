package events

import (
	"regexp"
	"strconv"
	"time"
)

// TimestampLayout is the wall-clock prefix every top-level log line carries.
const TimestampLayout = "2006-01-02 15:04:05.000"

var (
	timestampRe = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3})\] (.*)$`)

	slotModifiedRe = regexp.MustCompile(`^Inventory :: slot modified: container=(\d+) slot=(\d+) itemType=(\d+) count=(-?\d+)$`)
	slotInitRe     = regexp.MustCompile(`^Inventory :: slot initialized: container=(\d+) slot=(\d+) itemType=(\d+) count=(-?\d+)$`)
	blockRe        = regexp.MustCompile(`^Gameplay :: block "([^"]+)" (begin|end)$`)
	transitionRe   = regexp.MustCompile(`^World :: transition complete: kind=(\w+) dest="([^"]+)"$`)
	pendingLevelRe = regexp.MustCompile(`^World :: pending level: id=(\d+) type=(\w+) uid=(\S+)$`)
	sessionAttrRe  = regexp.MustCompile(`^Session :: attr (\w+)=(?:"([^"]*)"|(\S+))$`)
	viewRe         = regexp.MustCompile(`^UI :: view changed: (\S+)$`)
)

// SplitTimestamp strips the timestamp prefix from a top-level line.
// Continuation lines (price-message bodies) have no prefix and return ok
// false.
func SplitTimestamp(line string) (ts time.Time, rest string, ok bool) {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, "", false
	}
	parsed, err := time.ParseInLocation(TimestampLayout, m[1], time.Local)
	if err != nil {
		return time.Time{}, "", false
	}
	return parsed, m[2], true
}

// Classify matches one log line against the known shapes, in priority
// order, and returns the typed event. Most lines match nothing; that is
// the expected case and returns nil.
func Classify(line string) *Event {
	ts, rest, ok := SplitTimestamp(line)
	if !ok {
		return nil
	}

	if m := slotModifiedRe.FindStringSubmatch(rest); m != nil {
		return slotEvent(ts, m, false)
	}
	if m := slotInitRe.FindStringSubmatch(rest); m != nil {
		return slotEvent(ts, m, true)
	}
	if m := blockRe.FindStringSubmatch(rest); m != nil {
		return &Event{
			Kind:      KindContextMarker,
			Timestamp: ts,
			Context:   &ContextMarker{Name: m[1], Begin: m[2] == "begin"},
		}
	}
	if m := transitionRe.FindStringSubmatch(rest); m != nil {
		return &Event{
			Kind:       KindTransition,
			Timestamp:  ts,
			Transition: &Transition{Kind: m[1], Zone: m[2]},
		}
	}
	if m := pendingLevelRe.FindStringSubmatch(rest); m != nil {
		id, _ := strconv.Atoi(m[1])
		return &Event{
			Kind:      KindTransitionMeta,
			Timestamp: ts,
			TransitionMeta: &TransitionMeta{
				LevelID:   id,
				LevelType: TranslateLevelType(m[2]),
				LevelUID:  m[3],
			},
		}
	}
	if m := sessionAttrRe.FindStringSubmatch(rest); m != nil {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		return &Event{
			Kind:      KindIdentityAttr,
			Timestamp: ts,
			Identity:  &IdentityAttr{Field: m[1], Value: value},
		}
	}
	if m := viewRe.FindStringSubmatch(rest); m != nil {
		return &Event{
			Kind:      KindViewChange,
			Timestamp: ts,
			View:      &ViewChange{View: m[1]},
		}
	}

	return nil
}

func slotEvent(ts time.Time, m []string, snapshot bool) *Event {
	container, _ := strconv.Atoi(m[1])
	slot, _ := strconv.Atoi(m[2])
	itemType, _ := strconv.Atoi(m[3])
	count, _ := strconv.Atoi(m[4])

	return &Event{
		Kind:      KindSlotChange,
		Timestamp: ts,
		Slot: &SlotChange{
			ContainerID: container,
			SlotIndex:   slot,
			ItemTypeID:  itemType,
			Quantity:    count,
			Snapshot:    snapshot,
		},
	}
}
