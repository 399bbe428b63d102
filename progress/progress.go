// Package progress implements the Progress Channel (spec.md §4.6): ordered
// ProgressEvents delivered to at most one subscriber per request, rendered
// as a single accumulated display string the subscriber can re-show on
// every delivery without maintaining its own state.
package progress

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Kind enumerates the event kinds carried by the channel.
type Kind string

// Event kinds, per spec.md §4.6.
const (
	KindReasoning    Kind = "reasoning"
	KindSearching    Kind = "searching"
	KindDiscovery    Kind = "discovery"
	KindProcessing   Kind = "processing"
	KindSynthesizing Kind = "synthesizing"
	KindObserving    Kind = "observing"
	KindReplanning   Kind = "replanning"
	KindGenerating   Kind = "generating"
	KindWarning      Kind = "warning"
	KindError        Kind = "error"
	KindRetry        Kind = "retry"
)

// terminalKinds never get compressed out of the display when the soft cap
// is reached; they mark points a user should still be able to see.
var terminalKinds = map[Kind]bool{
	KindError:   true,
	KindWarning: true,
}

// Event is a single state-change notification.
type Event struct {
	Kind             Kind
	Action           string
	Details          string
	ReasoningSnippet string
	Timestamp        time.Time
	// CorrelationID ties every event on this channel back to the request
	// that produced it (github.com/google/uuid, stamped by the engine via
	// SetCorrelationID). Callers of Emit need not set it themselves.
	CorrelationID string
}

// line renders the event as one display line.
func (e Event) line() string {
	text := e.Action
	if e.Details != "" {
		text += ": " + e.Details
	}
	if e.ReasoningSnippet != "" {
		text += " (" + e.ReasoningSnippet + ")"
	}
	return text
}

// ErrAlreadySubscribed is returned when a second subscriber attempts to
// attach to a request that already has one (spec.md §4.6: "at most one
// subscriber per request").
var ErrAlreadySubscribed = errors.New("progress: request already has a subscriber")

// softCap bounds the number of display lines kept before older,
// non-terminal entries are compressed into a single summary line.
const softCap = 24

// Channel is a single request's Progress Channel.
type Channel struct {
	mu            sync.Mutex
	events        []Event
	subscribed    bool
	subscriberC   chan string // delivers the full rendered display string
	closed        bool
	lastEmit      time.Time
	correlationID string
}

// New creates a Progress Channel for one request.
func New() *Channel {
	return &Channel{}
}

// SetCorrelationID stamps the request correlation ID every subsequently
// emitted Event carries, if one has not already been set. The engine calls
// this once at the start of Process with its generated Request.RequestID.
func (c *Channel) SetCorrelationID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.correlationID == "" {
		c.correlationID = id
	}
}

// Subscribe attaches the single allowed observer. Additional calls return
// ErrAlreadySubscribed. The returned channel receives the full rendered
// display string on every delivery — the subscriber is not trusted to
// maintain incremental state.
func (c *Channel) Subscribe() (<-chan string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed {
		return nil, ErrAlreadySubscribed
	}
	c.subscribed = true
	c.subscriberC = make(chan string, 1)
	return c.subscriberC, nil
}

// Emit appends an event and, if a subscriber is attached, attempts a
// non-blocking delivery of the updated display string. If the subscriber is
// slow, the delivery is coalesced: only the latest rendered string within a
// slot is kept, never reordered — this channel never reorders events
// internally, only drops superseded display snapshots.
func (c *Channel) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.CorrelationID == "" {
		e.CorrelationID = c.correlationID
	}
	// Monotonic timestamps within a request (spec.md §8 property 4).
	if !c.lastEmit.IsZero() && e.Timestamp.Before(c.lastEmit) {
		e.Timestamp = c.lastEmit
	}
	c.lastEmit = e.Timestamp

	c.events = append(c.events, e)
	c.compressLocked()

	if c.subscriberC == nil {
		return
	}
	display := c.renderLocked()
	select {
	case c.subscriberC <- display:
	default:
		// Coalesce: drop the stale pending value, then deliver the latest.
		select {
		case <-c.subscriberC:
		default:
		}
		select {
		case c.subscriberC <- display:
		default:
		}
	}
}

// compressLocked collapses older non-terminal entries once the soft cap is
// exceeded, keeping the most recent window verbatim.
func (c *Channel) compressLocked() {
	if len(c.events) <= softCap {
		return
	}
	keepFrom := len(c.events) - softCap/2
	var compressedCount int
	var preserved []Event
	for i, e := range c.events[:keepFrom] {
		if terminalKinds[e.Kind] {
			preserved = append(preserved, e)
			continue
		}
		_ = i
		compressedCount++
	}
	summary := Event{
		Kind:      KindProcessing,
		Action:    "earlier progress",
		Details:   compressSummary(compressedCount),
		Timestamp: c.events[0].Timestamp,
	}
	rest := c.events[keepFrom:]
	merged := make([]Event, 0, len(preserved)+1+len(rest))
	merged = append(merged, preserved...)
	if compressedCount > 0 {
		merged = append(merged, summary)
	}
	merged = append(merged, rest...)
	c.events = merged
}

func compressSummary(n int) string {
	if n == 1 {
		return "1 earlier step"
	}
	return strconv.Itoa(n) + " earlier steps"
}

// renderLocked builds the accumulated display string from the current
// event log. Callers must hold c.mu.
func (c *Channel) renderLocked() string {
	lines := make([]string, len(c.events))
	for i, e := range c.events {
		lines[i] = e.line()
	}
	return strings.Join(lines, "\n")
}

// Display returns the current rendered display string without delivering
// it through the subscription channel. Safe to call at any time.
func (c *Channel) Display() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderLocked()
}

// Events returns a copy of the accumulated event log, for tests and
// property checks (spec.md §8 properties 4 and 13).
func (c *Channel) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Close cancels any downstream edit callbacks; the engine must stop
// emitting after Close returns (spec.md §4.6).
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.subscriberC != nil {
		close(c.subscriberC)
	}
}
