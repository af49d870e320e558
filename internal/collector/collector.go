// Package collector wires the incremental reader, the line classifier,
// the price-message parser and the delta/run state machines into one
// sequential ingestion worker with durable resumption.
package collector

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"loottrack/internal/config"
	"loottrack/internal/database"
	"loottrack/internal/events"
	"loottrack/internal/ledger"
	"loottrack/internal/log"
	"loottrack/internal/pricing"
	"loottrack/internal/runs"
	"loottrack/internal/tail"
)

// costContextName is the block whose deltas causally precede the run they
// belong to and are therefore buffered until that run starts.
const costContextName = "EntryCost"

// contextLabels maps known block names to their stored labels. Unknown
// blocks pass through lowercased.
var contextLabels = map[string]string{
	"LootPickup":        "pickup",
	"EntryCost":         "entry_cost",
	"VendorTransaction": "vendor",
}

func contextLabel(name string) string {
	if name == "" {
		return ""
	}
	if label, ok := contextLabels[name]; ok {
		return label
	}
	return strings.ToLower(name)
}

type priceRequest struct {
	itemTypeID int
	seenAt     time.Time
}

// Collector drives the read, parse, dispatch loop. All state below is
// owned exclusively by the single worker goroutine; no locking is needed
// internally.
type Collector struct {
	cfg    *config.Config
	store  database.Store
	reader *tail.Reader

	calc        *ledger.Calculator
	segmenter   *runs.Segmenter
	priceParser *pricing.MessageParser

	observer Observer
	syncer   PriceSyncer

	ownerID  string
	identity Identity
	idAsm    *identityAssembler

	currentContext string
	pendingMeta    *events.TransitionMeta

	// Snapshot batching: consecutive init lines for one container within
	// the gap threshold form one batch.
	lastSnapshotContainer int
	lastSnapshotAt        time.Time

	// Entry-cost deltas held until their run exists.
	pendingCost []database.ItemDelta

	// Deltas observed while no run is open; they belong to the next run.
	pendingRunless []database.ItemDelta

	// Price request correlation, bounded by the configured TTL.
	priceRequests map[int64]priceRequest

	running  bool
	stopChan chan struct{}
	errChan  chan error
	wg       sync.WaitGroup
}

// New creates a collector. observer and syncer may be nil.
func New(cfg *config.Config, store database.Store, observer Observer, syncer PriceSyncer) *Collector {
	return &Collector{
		cfg:           cfg,
		store:         store,
		reader:        tail.NewReader(cfg.LogPath, cfg.LogEncoding),
		calc:          ledger.NewCalculator(),
		segmenter:     runs.NewSegmenter(1, events.DefaultHubMatcher()),
		priceParser:   pricing.NewMessageParser(cfg.Currency),
		observer:      observer,
		syncer:        syncer,
		idAsm:         newIdentityAssembler(cfg.IdentitySettle(), cfg.IdentityStaleTTL()),
		priceRequests: make(map[int64]priceRequest),
		stopChan:      make(chan struct{}),
		errChan:       make(chan error, 1),
	}
}

// Errors delivers the escalation when consecutive failures exceed the
// retry ceiling. The worker has stopped by then; the caller may restart
// the whole pipeline.
func (c *Collector) Errors() <-chan error {
	return c.errChan
}

// Start resumes from persisted state and launches the worker.
func (c *Collector) Start() error {
	if c.running {
		return fmt.Errorf("collector already started")
	}

	if err := c.resume(); err != nil {
		return fmt.Errorf("failed to resume: %w", err)
	}

	c.running = true
	c.wg.Add(1)
	go c.loop()

	log.Info("Collector started", "log", c.cfg.LogPath, "owner", c.ownerID)
	return nil
}

// Stop signals the worker, waits for the in-flight batch, force-closes
// any active run and flushes a final checkpoint.
func (c *Collector) Stop() {
	if !c.running {
		return
	}
	c.running = false
	close(c.stopChan)
	c.wg.Wait()

	if run := c.segmenter.ForceEnd(c.ownerID, time.Now()); run != nil {
		if err := c.store.UpdateRunEnd(run.ID, *run.EndedAt); err != nil {
			log.Error("Failed to close run on shutdown", "run", run.ID, "error", err)
		}
		c.notifyRunEnd(*run)
	}
	c.drainRunless()
	c.writeCheckpoint()

	log.Info("Collector stopped")
}

// resume loads the run id seed, the owner-scoped state and the reader
// checkpoint. On first-ever attach the reader seeks to end so historical
// log content is not replayed.
func (c *Collector) resume() error {
	maxID, err := c.store.MaxRunID()
	if err != nil {
		return err
	}
	c.segmenter = runs.NewSegmenter(maxID+1, events.DefaultHubMatcher())

	if err := c.loadOwnerState(c.ownerID); err != nil {
		return err
	}

	cp, err := c.store.GetCheckpoint(c.reader.FileIdentity())
	if err != nil {
		return err
	}
	if cp != nil {
		c.reader.SetPosition(cp.ByteOffset, cp.FileSize)
		log.Info("Resuming from checkpoint", "offset", cp.ByteOffset)
	} else {
		c.reader.SeekToEnd()
		log.Info("No checkpoint, attaching at end of log")
	}
	return nil
}

func (c *Collector) loadOwnerState(ownerID string) error {
	states, err := c.store.LoadSlotStates(ownerID)
	if err != nil {
		return err
	}
	c.calc.Load(states)

	run, err := c.store.ActiveRun(ownerID)
	if err != nil {
		return err
	}
	c.segmenter.Restore(run)
	return nil
}

// loop is the single ingestion worker. Transient failures back off
// exponentially; a run of failures past the ceiling is escalated instead
// of looping forever.
func (c *Collector) loop() {
	defer c.wg.Done()

	retry := &backoff.Backoff{
		Min:    c.cfg.PollInterval(),
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	failures := 0

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		processed, err := c.processBatch()
		if err != nil {
			failures++
			log.Error("Batch processing failed", "failures", failures, "error", err)
			if failures >= c.cfg.RetryCeiling {
				select {
				case c.errChan <- fmt.Errorf("giving up after %d consecutive failures: %w", failures, err):
				default:
				}
				return
			}
			c.sleep(retry.Duration())
			continue
		}

		failures = 0
		retry.Reset()

		if processed == 0 {
			c.sleep(c.cfg.PollInterval())
		}
	}
}

func (c *Collector) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-c.stopChan:
	}
}

// processBatch reads and dispatches every newly appended line, then
// persists the resume checkpoint. A mid-batch failure rewinds the reader
// to the batch start so the retry re-reads every line; delivery is
// at-least-once, not exactly-once.
func (c *Collector) processBatch() (int, error) {
	mark := c.reader.Mark()
	lines := c.reader.ReadNewLines()
	for _, line := range lines {
		if err := c.processLine(line); err != nil {
			c.reader.Rewind(mark)
			return 0, err
		}
	}
	if len(lines) > 0 {
		c.writeCheckpoint()
	}
	return len(lines), nil
}

func (c *Collector) writeCheckpoint() {
	offset, size := c.reader.Position()
	cp := database.Checkpoint{
		FileIdentity: c.reader.FileIdentity(),
		ByteOffset:   offset,
		FileSize:     size,
	}
	if err := c.store.SaveCheckpoint(cp); err != nil {
		log.Error("Failed to save checkpoint", "error", err)
	}
}

// processLine routes one raw line: the price parser sees it first since
// message bodies must not reach the event classifier.
func (c *Collector) processLine(line string) error {
	if msg, consumed := c.priceParser.Feed(line); consumed {
		if msg != nil {
			return c.handlePriceMessage(msg)
		}
		return nil
	}

	ev := events.Classify(line)
	if ev == nil {
		// The majority of log lines are irrelevant; this is expected.
		return nil
	}

	switch ev.Kind {
	case events.KindSlotChange:
		return c.handleSlot(ev)
	case events.KindContextMarker:
		c.handleContext(ev)
	case events.KindTransition:
		return c.handleTransition(ev)
	case events.KindTransitionMeta:
		c.pendingMeta = ev.TransitionMeta
	case events.KindIdentityAttr:
		return c.handleIdentity(ev)
	case events.KindViewChange:
		log.Debug("View changed", "view", ev.View.View)
	}
	return nil
}

func (c *Collector) handleSlot(ev *events.Event) error {
	slot := ev.Slot
	key := database.SlotKey{ContainerID: slot.ContainerID, SlotIndex: slot.SlotIndex}

	if slot.Snapshot {
		if err := c.beginSnapshotBatch(slot.ContainerID, ev.Timestamp); err != nil {
			return err
		}
	}

	// Slot memory is committed only after the stores succeed, so a failed
	// write replays against the pre-observation state.
	change, state := c.calc.Preview(c.ownerID, key, slot.ItemTypeID, slot.Quantity, slot.Snapshot, ev.Timestamp)
	if err := c.store.UpsertSlotState(state); err != nil {
		return err
	}
	if change == nil {
		c.calc.Commit(state)
		return nil
	}

	delta := database.ItemDelta{
		Key:          change.Key,
		ItemTypeID:   change.ItemTypeID,
		Quantity:     change.Quantity,
		Context:      c.currentContext,
		ContextLabel: contextLabel(c.currentContext),
		Timestamp:    ev.Timestamp,
		OwnerID:      c.ownerID,
		Season:       c.cfg.Season,
	}

	if c.currentContext == costContextName {
		// These precede the run they belong to; hold until it starts.
		c.pendingCost = append(c.pendingCost, delta)
		c.calc.Commit(state)
		return nil
	}

	run := c.segmenter.Active(c.ownerID)
	if run == nil {
		// No run open yet; attribute to the one the next transition opens.
		c.pendingRunless = append(c.pendingRunless, delta)
		c.calc.Commit(state)
		return nil
	}

	runID := run.ID
	delta.RunID = &runID

	if err := c.store.InsertDelta(&delta); err != nil {
		return err
	}
	c.calc.Commit(state)
	c.notifyDelta(delta)
	return nil
}

// beginSnapshotBatch clears known state for a container when a fresh
// snapshot batch starts, so slots emptied by a reorganization do not
// linger. Consecutive init lines for the same container within the gap
// threshold belong to the same batch.
func (c *Collector) beginSnapshotBatch(containerID int, ts time.Time) error {
	sameBatch := containerID == c.lastSnapshotContainer &&
		!c.lastSnapshotAt.IsZero() &&
		ts.Sub(c.lastSnapshotAt) <= c.cfg.SnapshotGap()

	c.lastSnapshotContainer = containerID
	c.lastSnapshotAt = ts

	if sameBatch {
		return nil
	}

	log.Debug("New snapshot batch, clearing container", "container", containerID)
	c.calc.ClearContainer(c.ownerID, containerID)
	if err := c.store.ClearContainerSlots(containerID, c.ownerID); err != nil {
		return err
	}
	c.notifyContainerReset(containerID)
	return nil
}

func (c *Collector) handleContext(ev *events.Event) {
	marker := ev.Context
	if marker.Begin {
		c.currentContext = marker.Name
		if marker.Name == costContextName && len(c.pendingCost) > 0 {
			// Only the most recent cost block is kept.
			log.Debug("Discarding unconsumed cost buffer", "deltas", len(c.pendingCost))
			c.pendingCost = nil
		}
		return
	}
	// An end marker always returns to the uncontextualized default.
	c.currentContext = ""
}

func (c *Collector) handleTransition(ev *events.Event) error {
	if ev.Transition.Kind != events.TransitionKindLoadLevel {
		return nil
	}

	ended, started := c.segmenter.Apply(c.ownerID, c.cfg.Season, ev.Transition, c.pendingMeta, ev.Timestamp)
	c.pendingMeta = nil

	if ended != nil {
		if err := c.store.UpdateRunEnd(ended.ID, *ended.EndedAt); err != nil {
			return err
		}
		c.notifyRunEnd(*ended)
	}

	if err := c.store.InsertRun(started); err != nil {
		return err
	}
	if err := c.flushPending(&c.pendingRunless, started.ID); err != nil {
		return err
	}
	if err := c.flushPending(&c.pendingCost, started.ID); err != nil {
		return err
	}
	c.notifyRunStart(*started)

	log.Info("Run started", "run", started.ID, "zone", started.Zone, "hub", started.IsHub)
	return nil
}

// flushPending attributes one buffer of held deltas to the run that just
// started.
func (c *Collector) flushPending(buffer *[]database.ItemDelta, runID int64) error {
	for i := range *buffer {
		delta := (*buffer)[i]
		delta.RunID = &runID
		if err := c.store.InsertDelta(&delta); err != nil {
			return err
		}
		c.notifyDelta(delta)
	}
	*buffer = nil
	return nil
}

// drainRunless persists run-less deltas without attribution. Called when
// no further run can claim them: shutdown and identity changes.
func (c *Collector) drainRunless() {
	for i := range c.pendingRunless {
		delta := c.pendingRunless[i]
		if err := c.store.InsertDelta(&delta); err != nil {
			log.Error("Failed to persist unattributed delta", "slot", delta.Key, "error", err)
			continue
		}
		c.notifyDelta(delta)
	}
	c.pendingRunless = nil
}

func (c *Collector) handleIdentity(ev *events.Event) error {
	assembled := c.idAsm.add(ev.Identity, ev.Timestamp)
	if assembled == nil {
		return nil
	}
	if assembled.EffectiveID() == c.identity.EffectiveID() {
		return nil
	}
	return c.identityChanged(*assembled, ev.Timestamp)
}

// identityChanged closes the active run, drops in-memory slot state and
// switches to the new owner's persisted state.
func (c *Collector) identityChanged(identity Identity, ts time.Time) error {
	log.Info("Identity changed",
		"from", c.identity.EffectiveID(), "to", identity.EffectiveID())

	if run := c.segmenter.ForceEnd(c.ownerID, ts); run != nil {
		if err := c.store.UpdateRunEnd(run.ID, *run.EndedAt); err != nil {
			return err
		}
		c.notifyRunEnd(*run)
	}

	c.drainRunless()
	c.calc.Reset()
	c.pendingCost = nil
	c.currentContext = ""

	c.identity = identity
	c.ownerID = identity.EffectiveID()
	if err := c.loadOwnerState(c.ownerID); err != nil {
		return err
	}

	c.notifyIdentityChange(identity)
	return nil
}

func (c *Collector) handlePriceMessage(msg *pricing.Message) error {
	c.prunePriceRequests(msg.Timestamp)

	switch msg.Kind {
	case pricing.KindRequest:
		c.priceRequests[msg.CorrelationID] = priceRequest{
			itemTypeID: msg.ItemTypeID,
			seenAt:     msg.Timestamp,
		}
	case pricing.KindResponse:
		req, ok := c.priceRequests[msg.CorrelationID]
		if !ok {
			// Unmatched response, or the request's TTL already elapsed.
			log.Debug("Dropping unmatched price response", "correlation", msg.CorrelationID)
			return nil
		}
		delete(c.priceRequests, msg.CorrelationID)

		obs := database.PriceObservation{
			CorrelationID: msg.CorrelationID,
			ItemTypeID:    req.itemTypeID,
			Prices:        msg.Prices,
			Timestamp:     msg.Timestamp,
		}
		if err := c.store.UpsertPriceObservation(obs); err != nil {
			return err
		}

		reference := minPrice(msg.Prices)
		c.notifyPriceUpdate(req.itemTypeID, reference)
		if c.syncer != nil {
			c.syncer.QueueSubmission(req.itemTypeID, c.cfg.Season, reference, msg.Prices)
		}
	}
	return nil
}

func (c *Collector) prunePriceRequests(now time.Time) {
	ttl := c.cfg.PriceTTL()
	for id, req := range c.priceRequests {
		if now.Sub(req.seenAt) > ttl {
			delete(c.priceRequests, id)
		}
	}
}

func minPrice(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	lowest := prices[0]
	for _, p := range prices[1:] {
		if p < lowest {
			lowest = p
		}
	}
	return lowest
}

// Observer notifications; a nil observer is simply not invoked.

func (c *Collector) notifyDelta(delta database.ItemDelta) {
	if c.observer != nil {
		c.observer.OnDelta(delta)
	}
}

func (c *Collector) notifyRunStart(run database.Run) {
	if c.observer != nil {
		c.observer.OnRunStart(run)
	}
}

func (c *Collector) notifyRunEnd(run database.Run) {
	if c.observer != nil {
		c.observer.OnRunEnd(run)
	}
}

func (c *Collector) notifyPriceUpdate(itemTypeID int, price float64) {
	if c.observer != nil {
		c.observer.OnPriceUpdate(itemTypeID, price)
	}
}

func (c *Collector) notifyIdentityChange(identity Identity) {
	if c.observer != nil {
		c.observer.OnIdentityChange(identity)
	}
}

func (c *Collector) notifyContainerReset(containerID int) {
	if c.observer != nil {
		c.observer.OnContainerReset(containerID)
	}
}
