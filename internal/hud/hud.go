// Package hud holds the presentation-facing state of the daemon: the current
// HUD state and a bounded log of diagnostic events. Late subscribers get the
// cached state replayed before any live update.
package hud

import (
	"log/slog"
	"sync"
	"time"
)

// State is what a HUD renderer should show.
type State string

const (
	StateIdle               State = "idle"
	StateWarming            State = "warming"
	StateListening          State = "listening"
	StateProcessing         State = "processing"
	StatePerformanceWarning State = "performance_warning"
	StateSecureBlocked      State = "secure_blocked"
	StateAsrError           State = "asr_error"
)

// Kind classifies diagnostic events.
type Kind string

const (
	KindReadiness       Kind = "readiness"
	KindWatchdogStall   Kind = "watchdog-stall"
	KindWatchdogRestart Kind = "watchdog-restart"
	KindDeviceError     Kind = "device-error"
	KindBackpressure    Kind = "backpressure"
	KindNoOutput        Kind = "no-output"
	KindPaste           Kind = "paste"
	KindCapabilityError Kind = "capability-error"
)

// Reasons carried by KindNoOutput events.
const (
	ReasonNoAudio         = "no-audio"
	ReasonNoSpeech        = "no-speech"
	ReasonEmptyTranscript = "empty-transcript"
	ReasonSecureBlocked   = "secure-blocked"
	ReasonASRFailed       = "asr-failed"
)

// Reasons carried by KindDeviceError events when a press is refused.
const (
	ReasonCaptureRestarting = "capture-restarting"
	ReasonCaptureStalled    = "capture-stalled"
)

// Update is one HUD state change.
type Update struct {
	State  State     `json:"state"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// Event is a sequenced diagnostic.
type Event struct {
	Seq    int64             `json:"seq"`
	Kind   Kind              `json:"kind"`
	Reason string            `json:"reason,omitempty"`
	Time   time.Time         `json:"time"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Snapshot is the replay payload for a late-attaching presenter.
type Snapshot struct {
	Current Update  `json:"current"`
	Events  []Event `json:"events"`
}

const defaultMaxEvents = 32

// Hub caches the current state and fans updates out to subscribers.
type Hub struct {
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	current   Update
	nextSeq   int64
	maxEvents int
	events    []Event
	subs      map[*Subscription]struct{}
}

// NewHub returns a Hub whose initial state is Idle.
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		logger:    logger,
		now:       time.Now,
		maxEvents: defaultMaxEvents,
		events:    make([]Event, 0, defaultMaxEvents),
		subs:      make(map[*Subscription]struct{}),
	}
	h.current = Update{State: StateIdle, Time: h.now()}
	return h
}

// SetState publishes state unless it equals the cached state and detail.
// It reports whether subscribers were notified.
func (h *Hub) SetState(state State, detail string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current.State == state && h.current.Detail == detail {
		return false
	}
	h.current = Update{State: state, Detail: detail, Time: h.now()}
	for sub := range h.subs {
		sub.pushState(h.current)
	}
	if h.logger != nil {
		h.logger.Debug("hud state", "state", string(state), "detail", detail)
	}
	return true
}

// Emit assigns a sequence number and timestamp and publishes ev.
func (h *Hub) Emit(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	ev.Seq = h.nextSeq
	if ev.Time.IsZero() {
		ev.Time = h.now()
	}
	h.events = append(h.events, ev)
	if len(h.events) > h.maxEvents {
		trim := len(h.events) - h.maxEvents
		h.events = append([]Event(nil), h.events[trim:]...)
	}
	for sub := range h.subs {
		sub.pushEvent(ev)
	}
	if h.logger != nil {
		h.logger.Info("diagnostic", "kind", string(ev.Kind), "reason", ev.Reason, "seq", ev.Seq)
	}
	return ev
}

// Current returns the cached state.
func (h *Hub) Current() Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Since returns retained events with sequence strictly greater than seq.
func (h *Hub) Since(seq int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.events))
	for _, ev := range h.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// Replay returns the cached state plus retained diagnostics.
func (h *Hub) Replay() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{Current: h.current, Events: append([]Event(nil), h.events...)}
}

// Subscribe registers a subscriber. The cached state is already queued on
// States when Subscribe returns, ahead of any later update.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{
		hub:    h,
		states: make(chan Update, buffer),
		events: make(chan Event, buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sub.states <- h.current
	h.subs[sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.states)
	close(sub.events)
}

// Subscription delivers state updates and diagnostics to one consumer.
// A slow consumer loses the oldest queued item, never the newest.
type Subscription struct {
	hub    *Hub
	states chan Update
	events chan Event
}

// States yields state updates; the first value is the replayed current state.
func (s *Subscription) States() <-chan Update { return s.states }

// Events yields diagnostics published after Subscribe.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close detaches the subscription and closes its channels.
func (s *Subscription) Close() { s.hub.unsubscribe(s) }

// push* run with hub.mu held, so there is a single writer per channel.
func (s *Subscription) pushState(u Update) {
	for {
		select {
		case s.states <- u:
			return
		default:
		}
		select {
		case <-s.states:
		default:
		}
	}
}

func (s *Subscription) pushEvent(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}
