package pricing

import (
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"loottrack/internal/log"
)

// Submission is one aggregated price observation shipped to the sync
// service.
type Submission struct {
	ID             string    `json:"id"`
	ItemTypeID     int       `json:"item_type_id"`
	Season         string    `json:"season"`
	ReferencePrice float64   `json:"reference_price"`
	Prices         []float64 `json:"prices"`
	ObservedAt     time.Time `json:"observed_at"`
}

// Client queues price submissions and posts them fire-and-forget from a
// single background goroutine. Ingestion never blocks on it: when the
// queue is full the submission is dropped.
type Client struct {
	http  *resty.Client
	queue chan Submission
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewClient creates a sync client for the given endpoint and starts its
// sender goroutine.
func NewClient(baseURL, apiKey string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		http.SetHeader("Authorization", "Bearer "+apiKey)
	}

	c := &Client{
		http:  http,
		queue: make(chan Submission, 64),
		stop:  make(chan struct{}),
	}

	c.wg.Add(1)
	go c.sender()

	return c
}

// QueueSubmission enqueues one observation for upload. Never blocks.
func (c *Client) QueueSubmission(itemTypeID int, season string, referencePrice float64, prices []float64) {
	sub := Submission{
		ID:             uuid.NewString(),
		ItemTypeID:     itemTypeID,
		Season:         season,
		ReferencePrice: referencePrice,
		Prices:         prices,
		ObservedAt:     time.Now(),
	}

	select {
	case c.queue <- sub:
	default:
		log.Warn("Price sync queue full, dropping submission", "itemType", itemTypeID)
	}
}

// Close stops the sender after draining whatever is already queued.
func (c *Client) Close() {
	close(c.stop)
	c.wg.Wait()
}

func (c *Client) sender() {
	defer c.wg.Done()

	for {
		select {
		case sub := <-c.queue:
			c.post(sub)
		case <-c.stop:
			// Drain what is left, then exit.
			for {
				select {
				case sub := <-c.queue:
					c.post(sub)
				default:
					return
				}
			}
		}
	}
}

func (c *Client) post(sub Submission) {
	resp, err := c.http.R().
		SetBody(sub).
		Post("/v1/prices")
	if err != nil {
		log.Debug("Price submission failed", "itemType", sub.ItemTypeID, "error", err)
		return
	}
	if resp.IsError() {
		log.Debug("Price submission rejected",
			"itemType", sub.ItemTypeID, "status", resp.StatusCode())
	}
}
