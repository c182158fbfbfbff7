package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobbysim/eventpipe/internal/config"
	"github.com/lobbysim/eventpipe/internal/emitter"
	"github.com/lobbysim/eventpipe/internal/events"
	"github.com/lobbysim/eventpipe/internal/publisher"
)

// recordingBroker captures everything the ingress publishes.
type recordingBroker struct {
	mu        sync.Mutex
	published []events.Envelope
}

func (b *recordingBroker) PublishBatch(_ context.Context, batch []events.Envelope) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, batch...)
	return len(batch), nil
}

func (b *recordingBroker) Ping(context.Context) error { return nil }

func (b *recordingBroker) snapshot() []events.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Envelope(nil), b.published...)
}

func testConfig() config.Config {
	return config.Config{
		HTTPPort: "8080",
		APIKeys:  map[string]string{"test-key": "test-client"},
	}
}

func TestHealthIsPublic(t *testing.T) {
	r := NewRouter(testConfig(), Deps{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyWithoutOptionalDependencies(t *testing.T) {
	r := NewRouter(testConfig(), Deps{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventsRequireAPIKey(t *testing.T) {
	r := NewRouter(testConfig(), Deps{Broker: &recordingBroker{}})

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestPipelineEndToEnd drives the full path: emitter fan-out →
// publisher filtering/batching → HTTP delivery → ingress re-validation
// → broker publish. A 60-envelope burst must flush via the high-water
// path long before the (hour-long) timer fires, and per-session order
// must survive batching.
func TestPipelineEndToEnd(t *testing.T) {
	brk := &recordingBroker{}
	router := NewRouter(testConfig(), Deps{Broker: brk})
	server := httptest.NewServer(router)
	defer server.Close()

	em := emitter.New(emitter.NewMemorySessionStore(), nil)

	transport := publisher.NewHTTPTransport(server.Client(), server.URL+"/events", "test-key")
	pub := publisher.New(transport, nil, nil, publisher.Options{FlushInterval: time.Hour})
	pub.SetUpstreamEnabled(true)

	unsubscribe := em.Subscribe(pub.Publish)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub.Start(ctx)

	for i := 0; i < 60; i++ {
		em.EmitAgentState("agent-7", "idle", fmt.Sprintf("state-%03d", i))
	}

	// 60 >= high-water 50: at least one batch arrives without a timer.
	require.Eventually(t, func() bool {
		return len(brk.snapshot()) >= 50
	}, 2*time.Second, 10*time.Millisecond)

	// Drain the tail the timer would have picked up.
	pub.Close(ctx)

	published := brk.snapshot()
	require.Len(t, published, 60, "distinct payloads must not be deduplicated")

	// All envelopes belong to one session and arrive in emission order,
	// across batch boundaries.
	seen := map[string]struct{}{}
	for i, envelope := range published {
		assert.Equal(t, em.SessionID(), envelope.SessionID)
		assert.Equal(t, events.TypeAgentState, envelope.Type)
		assert.Equal(t, fmt.Sprintf("state-%03d", i), envelope.Payload["to"])
		seen[envelope.EventID] = struct{}{}
	}
	assert.Len(t, seen, 60)
}
