package events

// Source tags the origin of an envelope and selects which filtering
// rules apply downstream.
type Source string

const (
	SourceUI  Source = "ui"
	SourceSim Source = "sim"
)

// Envelope is the immutable unit of transport. eventId, timestamp and
// sessionId are stamped exactly once by the emitter and never altered
// downstream. Field names are part of the wire contract.
type Envelope struct {
	EventID   string         `json:"eventId"`
	Timestamp int64          `json:"timestamp"` // milliseconds since epoch
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId,omitempty"`
	Source    Source         `json:"source"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

// Allow-listed event types. This closed set is the single source of
// truth for what is meaningful enough to persist; both the client
// publisher and the server ingress enforce it independently. Adding a
// tracked event type means adding it here, on both sides of the wire.
const (
	TypeHotspotEntered  = "ui.hotspot.entered"
	TypeHotspotLeft     = "ui.hotspot.left"
	TypeVoiceTranscript = "ui.voice.transcript.final"
	TypeButtonClicked   = "ui.button.clicked"
	TypeKeyboardPressed = "ui.keyboard.pressed"
	TypeRoomOccupancy   = "sim.room.occupancy.changed"
	TypeAgentState      = "sim.agent.state.changed"
)

// allowed is the global type allow-list.
var allowed = map[string]struct{}{
	TypeHotspotEntered:  {},
	TypeHotspotLeft:     {},
	TypeVoiceTranscript: {},
	TypeButtonClicked:   {},
	TypeKeyboardPressed: {},
	TypeRoomOccupancy:   {},
	TypeAgentState:      {},
}

// Allowed reports whether t is on the global type allow-list.
func Allowed(t string) bool {
	_, ok := allowed[t]
	return ok
}

// bootPass is the narrow subset of UI-sourced types that may flow
// while the upstream feature is still disabled. Simulation output is
// meaningless in that state, but direct user interactions are not.
var bootPass = map[string]struct{}{
	TypeButtonClicked:   {},
	TypeKeyboardPressed: {},
	TypeVoiceTranscript: {},
}

// BootAllowed reports whether an envelope may pass the boot/standby
// filter: UI-sourced and on the boot pass-list.
func BootAllowed(source Source, t string) bool {
	if source != SourceUI {
		return false
	}
	_, ok := bootPass[t]
	return ok
}

// meaningfulButtons pre-filters button clicks at the emitter: only
// clicks on these keys become envelopes at all. This list is narrower
// than the global allow-list on purpose; it keeps the in-process bus
// from flooding on arbitrary UI chrome.
var meaningfulButtons = map[string]struct{}{
	"mic.toggle":      {},
	"overlay.toggle":  {},
	"room.inspect":    {},
	"agent.follow":    {},
	"session.restart": {},
}

// MeaningfulButton reports whether a button key is worth emitting.
func MeaningfulButton(key string) bool {
	_, ok := meaningfulButtons[key]
	return ok
}

// The single key+action combination the keyboard pre-filter accepts.
const (
	MeaningfulKey       = "Space"
	MeaningfulKeyAction = "down"
)
