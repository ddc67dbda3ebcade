package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Event is one inbound client event after parsing.
// Kinds are opaque at this layer; the surface decides what they mean.
type Event struct {
	Kind    string `json:"kind"`
	Payload string `json:"payload,omitempty"`
}

func (e Event) String() string {
	if e.Payload == "" {
		return e.Kind
	}
	return e.Kind + " " + e.Payload
}

// ParseEvent splits sanitised event text into kind and payload.
// The kind is the first whitespace-delimited token and must start with a letter,
// followed by letters, digits or one of "_.:-".
func ParseEvent(text string) (Event, error) {
	return ParseEventLimit(text, 0)
}

// ParseEventLimit is ParseEvent with an explicit size limit for the raw text.
func ParseEventLimit(text string, limit int) (Event, error) {
	clean, err := SanitizeEventTextLimit(text, limit)
	if err != nil {
		return Event{}, err
	}
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return Event{}, fmt.Errorf("%w: empty text", ErrUnrecognizedEvent)
	}

	kind, payload := clean, ""
	if i := strings.IndexFunc(clean, unicode.IsSpace); i >= 0 {
		kind, payload = clean[:i], clean[i:]
	}
	if !validKind(kind) {
		return Event{}, fmt.Errorf("%w: kind %q", ErrUnrecognizedEvent, kind)
	}
	return Event{Kind: kind, Payload: strings.TrimSpace(payload)}, nil
}

func validKind(kind string) bool {
	if kind == "" {
		return false
	}
	for i, r := range kind {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		case i > 0 && strings.ContainsRune("_.:-", r):
		default:
			return false
		}
	}
	return true
}

// EventType defines the category of a lifecycle notification.
type EventType string

const (
	EventClientBind       EventType = "client_bind"
	EventClientInvalidate EventType = "client_invalidate"
	EventClientProbe      EventType = "client_probe"
	EventDispatch         EventType = "dispatch"
	EventDrop             EventType = "drop"
	EventRedraw           EventType = "redraw"
	EventPhase            EventType = "phase"
)

// Drop reasons reported on DispatchEvent and SurfaceEvent.
const (
	ReasonNotAccepting    = "not_accepting"
	ReasonUnrecognized    = "unrecognized"
	ReasonSurfaceNotReady = "surface_not_ready"
)

// EventBase contains common fields for all lifecycle notifications.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	PlotID    string    `json:"plot_id"`
}

// NewEventBase stamps a notification with the current time.
func NewEventBase(typ EventType, plotID string) EventBase {
	return EventBase{Timestamp: time.Now(), Type: typ, PlotID: plotID}
}

// ClientEvent reports a bind, invalidate or liveness probe.
type ClientEvent struct {
	EventBase
	Client     ClientInfo `json:"client"`
	Responding bool       `json:"responding,omitempty"`
	Cleared    bool       `json:"cleared,omitempty"`
}

// DispatchEvent reports an event forwarded to the surface or dropped before it.
type DispatchEvent struct {
	EventBase
	Kind    string `json:"kind,omitempty"`
	Payload string `json:"payload,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// SurfaceEvent reports a redraw request or a phase transition.
type SurfaceEvent struct {
	EventBase
	Phase   Phase  `json:"phase"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// LifecycleHooks defines callbacks for endpoint observability.
// Hooks run synchronously on the caller's goroutine and must not call back into the endpoint.
type LifecycleHooks struct {
	OnBind       func(*ClientEvent)
	OnInvalidate func(*ClientEvent)
	OnProbe      func(*ClientEvent)
	OnDispatch   func(*DispatchEvent)
	OnDrop       func(*DispatchEvent)
	OnRedraw     func(*SurfaceEvent)
	OnPhase      func(*SurfaceEvent)
}

// Merge returns hooks that call h first and then other for every callback set on either.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnBind:       chainClient(h.OnBind, other.OnBind),
		OnInvalidate: chainClient(h.OnInvalidate, other.OnInvalidate),
		OnProbe:      chainClient(h.OnProbe, other.OnProbe),
		OnDispatch:   chainDispatch(h.OnDispatch, other.OnDispatch),
		OnDrop:       chainDispatch(h.OnDrop, other.OnDrop),
		OnRedraw:     chainSurface(h.OnRedraw, other.OnRedraw),
		OnPhase:      chainSurface(h.OnPhase, other.OnPhase),
	}
}

func chainClient(a, b func(*ClientEvent)) func(*ClientEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(e *ClientEvent) { a(e); b(e) }
}

func chainDispatch(a, b func(*DispatchEvent)) func(*DispatchEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(e *DispatchEvent) { a(e); b(e) }
}

func chainSurface(a, b func(*SurfaceEvent)) func(*SurfaceEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(e *SurfaceEvent) { a(e); b(e) }
}
