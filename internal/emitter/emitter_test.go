package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobbysim/eventpipe/internal/events"
)

func newTestEmitter(t *testing.T) *Emitter {
	t.Helper()
	return New(NewMemorySessionStore(), nil)
}

func collect(e *Emitter) *[]events.Envelope {
	var got []events.Envelope
	e.Subscribe(func(env events.Envelope) {
		got = append(got, env)
	})
	return &got
}

func TestEmitStampsEnvelope(t *testing.T) {
	e := newTestEmitter(t)
	got := collect(e)

	e.Emit(events.SourceUI, events.TypeButtonClicked, map[string]any{"button": "mic.toggle"})

	require.Len(t, *got, 1)
	env := (*got)[0]
	assert.NotEmpty(t, env.EventID)
	assert.NotZero(t, env.Timestamp)
	assert.Equal(t, e.SessionID(), env.SessionID)
	assert.Empty(t, env.UserID)
	assert.Equal(t, events.SourceUI, env.Source)
	assert.Equal(t, events.TypeButtonClicked, env.Type)
	assert.Equal(t, "mic.toggle", env.Payload["button"])
}

func TestEventIDUniqueAcross10000Emissions(t *testing.T) {
	e := newTestEmitter(t)
	seen := make(map[string]struct{}, 10000)
	e.Subscribe(func(env events.Envelope) {
		seen[env.EventID] = struct{}{}
	})

	for i := 0; i < 10000; i++ {
		e.Emit(events.SourceSim, events.TypeAgentState, map[string]any{"i": i})
	}
	assert.Len(t, seen, 10000)
}

func TestSessionIDPersistsWithinSession(t *testing.T) {
	store := NewMemorySessionStore()

	first := New(store, nil)
	second := New(store, nil)
	assert.Equal(t, first.SessionID(), second.SessionID())

	// A fresh session store is a fresh session.
	third := New(NewMemorySessionStore(), nil)
	assert.NotEqual(t, first.SessionID(), third.SessionID())
}

func TestSetUserIDAppliesToSubsequentEnvelopesOnly(t *testing.T) {
	e := newTestEmitter(t)
	got := collect(e)

	e.Emit(events.SourceUI, events.TypeButtonClicked, nil)
	e.SetUserID("guest-42")
	e.Emit(events.SourceUI, events.TypeButtonClicked, nil)

	require.Len(t, *got, 2)
	assert.Empty(t, (*got)[0].UserID)
	assert.Equal(t, "guest-42", (*got)[1].UserID)
}

func TestSubscribersInvokedInSubscriptionOrder(t *testing.T) {
	e := newTestEmitter(t)
	var order []int
	e.Subscribe(func(events.Envelope) { order = append(order, 1) })
	e.Subscribe(func(events.Envelope) { order = append(order, 2) })
	e.Subscribe(func(events.Envelope) { order = append(order, 3) })

	e.Emit(events.SourceUI, events.TypeHotspotEntered, nil)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestUnsubscribeRemovesExactlyThatCallback(t *testing.T) {
	e := newTestEmitter(t)
	var a, b int
	unsubA := e.Subscribe(func(events.Envelope) { a++ })
	e.Subscribe(func(events.Envelope) { b++ })

	e.Emit(events.SourceUI, events.TypeHotspotEntered, nil)
	unsubA()
	e.Emit(events.SourceUI, events.TypeHotspotEntered, nil)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)

	// A second call is a no-op.
	unsubA()
	e.Emit(events.SourceUI, events.TypeHotspotEntered, nil)
	assert.Equal(t, 1, a)
	assert.Equal(t, 3, b)
}

func TestPanickingSubscriberDoesNotInterruptDelivery(t *testing.T) {
	e := newTestEmitter(t)
	var after int
	e.Subscribe(func(events.Envelope) { panic("boom") })
	e.Subscribe(func(events.Envelope) { after++ })

	assert.NotPanics(t, func() {
		e.Emit(events.SourceUI, events.TypeHotspotEntered, nil)
	})
	assert.Equal(t, 1, after)
}

func TestUnsubscribeDuringDispatchIsSafe(t *testing.T) {
	e := newTestEmitter(t)
	var unsub func()
	var second int
	unsub = e.Subscribe(func(events.Envelope) { unsub() })
	e.Subscribe(func(events.Envelope) { second++ })

	assert.NotPanics(t, func() {
		e.Emit(events.SourceUI, events.TypeHotspotEntered, nil)
		e.Emit(events.SourceUI, events.TypeHotspotEntered, nil)
	})
	assert.Equal(t, 2, second)
}

func TestSubscribeDuringDispatchSeesNextEnvelopeOnly(t *testing.T) {
	e := newTestEmitter(t)
	var late int
	e.Subscribe(func(events.Envelope) {
		if late == 0 {
			e.Subscribe(func(events.Envelope) { late++ })
		}
	})

	e.Emit(events.SourceUI, events.TypeHotspotEntered, nil)
	assert.Equal(t, 0, late)
	e.Emit(events.SourceUI, events.TypeHotspotEntered, nil)
	assert.Equal(t, 1, late)
}

func TestButtonClickPreFilter(t *testing.T) {
	e := newTestEmitter(t)
	got := collect(e)

	e.EmitButtonClick("decorative.lamp")
	assert.Empty(t, *got)

	e.EmitButtonClick("mic.toggle")
	require.Len(t, *got, 1)
	assert.Equal(t, events.TypeButtonClicked, (*got)[0].Type)
}

func TestKeyPressPreFilter(t *testing.T) {
	e := newTestEmitter(t)
	got := collect(e)

	e.EmitKeyPress("a", "down")
	e.EmitKeyPress("Space", "up")
	assert.Empty(t, *got)

	e.EmitKeyPress("Space", "down")
	require.Len(t, *got, 1)
	assert.Equal(t, events.TypeKeyboardPressed, (*got)[0].Type)
}

func TestEmptyVoiceTranscriptSkipped(t *testing.T) {
	e := newTestEmitter(t)
	got := collect(e)

	e.EmitVoiceTranscript("")
	assert.Empty(t, *got)

	e.EmitVoiceTranscript("two coffees please")
	require.Len(t, *got, 1)
}

func TestSimulationConvenienceEmitters(t *testing.T) {
	e := newTestEmitter(t)
	got := collect(e)

	e.EmitRoomOccupancy("lobby-bar", 4)
	e.EmitAgentState("agent-7", "idle", "walking")

	require.Len(t, *got, 2)
	assert.Equal(t, events.SourceSim, (*got)[0].Source)
	assert.Equal(t, events.TypeRoomOccupancy, (*got)[0].Type)
	assert.Equal(t, 4, (*got)[0].Payload["occupants"])
	assert.Equal(t, events.TypeAgentState, (*got)[1].Type)
	assert.Equal(t, "walking", (*got)[1].Payload["to"])
}
