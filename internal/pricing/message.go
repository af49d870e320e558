// Package pricing reassembles the multi-line market-query dumps embedded
// in the client log and extracts currency-filtered unit prices, and ships
// aggregated observations to the optional sync service.
package pricing

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"loottrack/internal/events"
)

// MessageKind distinguishes query requests from responses.
type MessageKind int

const (
	KindRequest MessageKind = iota
	KindResponse
)

// Message is one fully reassembled market query. Requests carry the
// subject item id; responses carry the target-currency price list.
type Message struct {
	CorrelationID int64
	Kind          MessageKind
	ItemTypeID    int
	Prices        []float64
	Timestamp     time.Time
}

var (
	queryBeginRe = regexp.MustCompile(`^Market :: query begin id=(\d+) kind=(request|response)$`)
	queryEndRe   = regexp.MustCompile(`^Market :: query end id=(\d+)$`)

	itemLineRe     = regexp.MustCompile(`^\s*item:\s*(\d+)\s*$`)
	sectionOpenRe  = regexp.MustCompile(`^\s*prices\s*\{\s*$`)
	sectionCloseRe = regexp.MustCompile(`^\s*\}\s*$`)
	currencyLineRe = regexp.MustCompile(`^\s*currency:\s*(\S+)\s*$`)
	priceLineRe    = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*$`)
)

// MessageParser accumulates one bracketed market message at a time.
// Messages never nest: a begin marker while accumulating discards the
// incomplete prior message.
type MessageParser struct {
	currency string

	active  bool
	id      int64
	kind    MessageKind
	started time.Time
	body    []string
}

// NewMessageParser creates a parser that keeps only prices tagged with the
// given currency.
func NewMessageParser(currency string) *MessageParser {
	return &MessageParser{currency: strings.ToLower(currency)}
}

// Accumulating reports whether a message body is currently open.
func (p *MessageParser) Accumulating() bool {
	return p.active
}

// Feed consumes one raw log line. consumed reports whether the line
// belonged to a market message (and must not be classified as a normal
// event); msg is non-nil when an end marker completed a well-formed
// message.
func (p *MessageParser) Feed(line string) (msg *Message, consumed bool) {
	ts, rest, timestamped := events.SplitTimestamp(line)

	if timestamped {
		if m := queryBeginRe.FindStringSubmatch(rest); m != nil {
			// Discards any incomplete prior message.
			p.active = true
			p.id, _ = strconv.ParseInt(m[1], 10, 64)
			if m[2] == "request" {
				p.kind = KindRequest
			} else {
				p.kind = KindResponse
			}
			p.started = ts
			p.body = p.body[:0]
			return nil, true
		}
		if m := queryEndRe.FindStringSubmatch(rest); m != nil {
			if !p.active {
				return nil, true
			}
			id, _ := strconv.ParseInt(m[1], 10, 64)
			defer p.reset()
			if id != p.id {
				// Stray end marker for a message we never saw.
				return nil, true
			}
			return p.finish(), true
		}
		// Other timestamped lines never belong to a message body.
		return nil, false
	}

	if p.active {
		p.body = append(p.body, line)
		return nil, true
	}
	return nil, false
}

func (p *MessageParser) reset() {
	p.active = false
	p.body = p.body[:0]
}

// finish parses the accumulated body. Malformed bodies yield nil rather
// than an error; the log stream routinely truncates these dumps.
func (p *MessageParser) finish() *Message {
	switch p.kind {
	case KindRequest:
		return p.finishRequest()
	case KindResponse:
		return p.finishResponse()
	}
	return nil
}

func (p *MessageParser) finishRequest() *Message {
	for _, line := range p.body {
		if m := itemLineRe.FindStringSubmatch(line); m != nil {
			itemType, err := strconv.Atoi(m[1])
			if err != nil {
				return nil
			}
			return &Message{
				CorrelationID: p.id,
				Kind:          KindRequest,
				ItemTypeID:    itemType,
				Timestamp:     p.started,
			}
		}
	}
	// Missing subject id.
	return nil
}

// finishResponse walks the price sections. Two historical layouts exist:
// the currency tag may precede or follow its section's values. Values seen
// before the tag is known are buffered and only committed once the tag
// arrives and matches the target currency.
func (p *MessageParser) finishResponse() *Message {
	var result []float64

	inSection := false
	sectionCurrency := ""
	var pending []float64

	for _, line := range p.body {
		switch {
		case sectionOpenRe.MatchString(line):
			inSection = true
			sectionCurrency = ""
			pending = pending[:0]

		case sectionCloseRe.MatchString(line):
			if inSection && sectionCurrency == p.currency {
				result = append(result, pending...)
			}
			inSection = false
			pending = pending[:0]

		case inSection && currencyLineRe.MatchString(line):
			m := currencyLineRe.FindStringSubmatch(line)
			sectionCurrency = strings.ToLower(m[1])
			if sectionCurrency == p.currency {
				result = append(result, pending...)
			}
			pending = pending[:0]

		case inSection && priceLineRe.MatchString(line):
			m := priceLineRe.FindStringSubmatch(line)
			price, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			switch sectionCurrency {
			case "":
				pending = append(pending, price)
			case p.currency:
				result = append(result, price)
			default:
				// Tagged with a non-target currency; discard.
			}
		}
	}

	if len(result) == 0 {
		// Empty price list is treated as malformed.
		return nil
	}
	return &Message{
		CorrelationID: p.id,
		Kind:          KindResponse,
		Prices:        result,
		Timestamp:     p.started,
	}
}
