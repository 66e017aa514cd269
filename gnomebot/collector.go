package gnomebot

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"sync"
	"time"
)

// EndReason describes why a collector stopped
type EndReason string

const (
	EndReasonTime    EndReason = "time"
	EndReasonUser    EndReason = "user"
	EndReasonLimit   EndReason = "limit"
	EndReasonContext EndReason = "context"
)

// CollectorOptions configures a [Collector]
type CollectorOptions[T any] struct {
	// Timeout is how long the collector runs before ending with EndReasonTime
	Timeout time.Duration

	// Max ends the collector with EndReasonLimit once this many items
	// passed the filter. Zero means no limit.
	Max int

	// Filter drops items it returns false for. Dropped items don't count
	// towards Max.
	Filter func(item T) bool

	// OnCollect is called for every accepted item. Returning a non-empty
	// reason ends the collector.
	OnCollect func(item T) EndReason

	// OnEnd runs exactly once, after the last OnCollect/OnTick call
	OnEnd func(collected []T, reason EndReason)

	// Tick, if set along with OnTick, calls OnTick on that interval with
	// the time remaining before the timeout.
	Tick   time.Duration
	OnTick func(remaining time.Duration)

	Clock Clock
}

// Collector receives items pushed by event handlers for a bounded amount
// of time. All callbacks run on the collector's own goroutine, so they
// never run concurrently with each other.
type Collector[T any] struct {
	opts   CollectorOptions[T]
	events chan T
	stop   chan EndReason
	ended  chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewCollector[T any](opts CollectorOptions[T]) *Collector[T] {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Collector[T]{
		opts:   opts,
		events: make(chan T),
		stop:   make(chan EndReason, 1),
		ended:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs the collector in a new goroutine. Subsequent calls are no-ops.
func (c *Collector[T]) Start(ctx context.Context) {
	c.once.Do(
		func() {
			go c.run(ctx)
		},
	)
}

// Push hands an item to the collector. It returns false if the collector
// has already ended, in which case the item wasn't seen.
func (c *Collector[T]) Push(item T) bool {
	select {
	case c.events <- item:
		return true
	case <-c.ended:
		return false
	}
}

// Stop ends the collector with the given reason, if it's still running.
func (c *Collector[T]) Stop(reason EndReason) {
	select {
	case c.stop <- reason:
	default:
	}
}

// Done is closed after OnEnd has returned
func (c *Collector[T]) Done() <-chan struct{} {
	return c.done
}

func (c *Collector[T]) run(ctx context.Context) {
	defer close(c.done)

	clock := c.opts.Clock
	deadline := clock.Now().Add(c.opts.Timeout)
	timer := clock.NewTimer(c.opts.Timeout)
	defer timer.Stop()

	var tickC <-chan time.Time
	if c.opts.Tick > 0 && c.opts.OnTick != nil {
		ticker := clock.NewTicker(c.opts.Tick)
		defer ticker.Stop()
		tickC = ticker.C()
	}

	var collected []T
	var reason EndReason

	for reason == "" {
		select {
		case <-ctx.Done():
			reason = EndReasonContext
		case r := <-c.stop:
			reason = r
		case <-timer.C():
			reason = EndReasonTime
		case <-tickC:
			remaining := deadline.Sub(clock.Now())
			if remaining > 0 {
				guard(ctx, func() { c.opts.OnTick(remaining) })
			}
		case item := <-c.events:
			keep := c.opts.Filter == nil
			if !keep {
				guard(ctx, func() { keep = c.opts.Filter(item) })
			}
			if !keep {
				continue
			}
			collected = append(collected, item)
			if c.opts.OnCollect != nil {
				guard(ctx, func() { reason = c.opts.OnCollect(item) })
			}
			if reason == "" && c.opts.Max > 0 && len(collected) >= c.opts.Max {
				reason = EndReasonLimit
			}
		}
	}

	close(c.ended)
	if c.opts.OnEnd != nil {
		guard(ctx, func() { c.opts.OnEnd(collected, reason) })
	}
}

// guard runs a collector callback, logging a panic instead of letting it
// take down the process. A panicking Filter drops the item; a panicking
// OnCollect leaves the collector running.
func guard(ctx context.Context, fn func()) {
	defer func() {
		handleRecover(ctx, nil, recover())
	}()
	fn()
}

// collectorHub routes component interactions, modal submissions and
// messages to whichever collector is waiting for them.
type collectorHub struct {
	mu         sync.Mutex
	wg         sync.WaitGroup
	components map[string]*Collector[*Responder]
	modals     map[string]*Collector[*Responder]
	messages   map[string]*Collector[*discordgo.Message]
}

func newCollectorHub() *collectorHub {
	return &collectorHub{
		components: map[string]*Collector[*Responder]{},
		modals:     map[string]*Collector[*Responder]{},
		messages:   map[string]*Collector[*discordgo.Message]{},
	}
}

func watch[T any](
	h *collectorHub,
	registry map[string]*Collector[T],
	key string,
	c *Collector[T],
) {
	h.mu.Lock()
	registry[key] = c
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		<-c.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if registry[key] == c {
			delete(registry, key)
		}
	}()
}

func lookup[T any](
	h *collectorHub,
	registry map[string]*Collector[T],
	key string,
) *Collector[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return registry[key]
}

// Wait blocks until every watched collector has ended
func (h *collectorHub) Wait() {
	h.wg.Wait()
}

// WatchComponents starts c and routes component interactions on the
// given message to it until it ends.
func (h *collectorHub) WatchComponents(
	ctx context.Context,
	messageID string,
	c *Collector[*Responder],
) {
	watch(h, h.components, messageID, c)
	c.Start(ctx)
}

// WatchModal starts c and routes submissions of the modal with the given
// custom ID, from the given user, to it.
func (h *collectorHub) WatchModal(
	ctx context.Context,
	userID string,
	customID string,
	c *Collector[*Responder],
) {
	watch(h, h.modals, modalKey(userID, customID), c)
	c.Start(ctx)
}

// WatchMessages starts c and routes messages the given user sends in the
// given channel to it.
func (h *collectorHub) WatchMessages(
	ctx context.Context,
	channelID string,
	userID string,
	c *Collector[*discordgo.Message],
) {
	watch(h, h.messages, messageKey(channelID, userID), c)
	c.Start(ctx)
}

// RouteComponent pushes a component interaction to the collector watching
// its message, returning false if there isn't one.
func (h *collectorHub) RouteComponent(r *Responder) bool {
	i := r.Interaction()
	if i.Message == nil {
		return false
	}
	c := lookup(h, h.components, i.Message.ID)
	return c != nil && c.Push(r)
}

func (h *collectorHub) RouteModal(r *Responder) bool {
	i := r.Interaction()
	u := r.User()
	if u == nil {
		return false
	}
	c := lookup(h, h.modals, modalKey(u.ID, i.ModalSubmitData().CustomID))
	return c != nil && c.Push(r)
}

func (h *collectorHub) RouteMessage(m *discordgo.Message) bool {
	if m.Author == nil {
		return false
	}
	c := lookup(h, h.messages, messageKey(m.ChannelID, m.Author.ID))
	return c != nil && c.Push(m)
}

func modalKey(userID, customID string) string {
	return userID + ":" + customID
}

func messageKey(channelID, userID string) string {
	return channelID + ":" + userID
}
