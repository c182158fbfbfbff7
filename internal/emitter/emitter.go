package emitter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lobbysim/eventpipe/internal/events"
)

// sessionKey is where the session id lives in session-scoped storage.
const sessionKey = "eventpipe.session.id"

// SessionStore is session-scoped storage for the session id. The id
// must survive re-construction of the emitter within one session and
// be regenerated for a fresh session.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// MemorySessionStore is the default in-process SessionStore.
type MemorySessionStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{values: map[string]string{}}
}

func (s *MemorySessionStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemorySessionStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Callback receives every emitted envelope, synchronously, in
// subscription order. It must never retain the envelope's payload map
// for mutation; envelopes are immutable after construction.
type Callback func(events.Envelope)

type subscriber struct {
	id uint64
	fn Callback
}

// Emitter is the in-process hub between occurrence sources (UI
// handlers, the world simulation) and the publisher. Emit is
// fire-and-forget: the emitter has no knowledge of delivery outcome
// downstream.
type Emitter struct {
	mu        sync.Mutex
	sessionID string
	userID    string
	nextSubID uint64
	subs      []subscriber

	logger *slog.Logger
	now    func() time.Time
}

// New builds an emitter bound to a session. An existing session id in
// the store is reused; otherwise a fresh one is generated and stored.
func New(store SessionStore, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	sessionID, ok := store.Get(sessionKey)
	if !ok || sessionID == "" {
		sessionID = uuid.NewString()
		store.Set(sessionKey, sessionID)
	}
	return &Emitter{
		sessionID: sessionID,
		logger:    logger,
		now:       time.Now,
	}
}

// SessionID returns the stable id stamped on every envelope.
func (e *Emitter) SessionID() string {
	return e.sessionID
}

// SetUserID attaches a user id to subsequent envelopes. Already
// emitted envelopes are not touched.
func (e *Emitter) SetUserID(id string) {
	e.mu.Lock()
	e.userID = id
	e.mu.Unlock()
}

// Subscribe registers a callback and returns a function that removes
// exactly that callback. Both are safe to call during a dispatch;
// dispatch iterates a snapshot, so a subscriber added mid-emit first
// sees the next envelope.
func (e *Emitter) Subscribe(fn Callback) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextSubID++
	id := e.nextSubID
	e.subs = append(e.subs, subscriber{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.subs {
			if sub.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit stamps a full envelope (eventId, timestamp, sessionId, userId)
// and synchronously invokes every subscriber with it.
func (e *Emitter) Emit(source events.Source, eventType string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}

	e.mu.Lock()
	envelope := events.Envelope{
		EventID:   uuid.NewString(),
		Timestamp: e.now().UnixMilli(),
		SessionID: e.sessionID,
		UserID:    e.userID,
		Source:    source,
		Type:      eventType,
		Payload:   payload,
	}
	subs := append([]subscriber(nil), e.subs...)
	e.mu.Unlock()

	for _, sub := range subs {
		e.dispatch(sub, envelope)
	}
}

// dispatch isolates one callback: a panicking subscriber is logged
// and must never interrupt delivery to the remaining subscribers.
func (e *Emitter) dispatch(sub subscriber, envelope events.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event subscriber panicked",
				"event", "emitter_subscriber_panic",
				"module", "emitter",
				"event_type", envelope.Type,
				"event_id", envelope.EventID,
				"panic", r,
			)
		}
	}()
	sub.fn(envelope)
}

// EmitButtonClick emits ui.button.clicked for meaningful buttons only.
// Arbitrary UI chrome clicks never become envelopes.
func (e *Emitter) EmitButtonClick(key string) {
	if !events.MeaningfulButton(key) {
		return
	}
	e.Emit(events.SourceUI, events.TypeButtonClicked, map[string]any{"button": key})
}

// EmitKeyPress emits ui.keyboard.pressed for the single tracked
// key+action combination; everything else is pre-filtered out.
func (e *Emitter) EmitKeyPress(key, action string) {
	if key != events.MeaningfulKey || action != events.MeaningfulKeyAction {
		return
	}
	e.Emit(events.SourceUI, events.TypeKeyboardPressed, map[string]any{
		"key":    key,
		"action": action,
	})
}

// EmitHotspotEntered emits ui.hotspot.entered.
func (e *Emitter) EmitHotspotEntered(hotspot string) {
	e.Emit(events.SourceUI, events.TypeHotspotEntered, map[string]any{"hotspot": hotspot})
}

// EmitHotspotLeft emits ui.hotspot.left.
func (e *Emitter) EmitHotspotLeft(hotspot string) {
	e.Emit(events.SourceUI, events.TypeHotspotLeft, map[string]any{"hotspot": hotspot})
}

// EmitVoiceTranscript emits ui.voice.transcript.final for a finalized
// transcript. Empty transcripts carry no information and are skipped.
func (e *Emitter) EmitVoiceTranscript(transcript string) {
	if transcript == "" {
		return
	}
	e.Emit(events.SourceUI, events.TypeVoiceTranscript, map[string]any{"transcript": transcript})
}

// EmitRoomOccupancy emits sim.room.occupancy.changed.
func (e *Emitter) EmitRoomOccupancy(room string, occupants int) {
	e.Emit(events.SourceSim, events.TypeRoomOccupancy, map[string]any{
		"room":      room,
		"occupants": occupants,
	})
}

// EmitAgentState emits sim.agent.state.changed.
func (e *Emitter) EmitAgentState(agent, from, to string) {
	e.Emit(events.SourceSim, events.TypeAgentState, map[string]any{
		"agent": agent,
		"from":  from,
		"to":    to,
	})
}
