// ABOUTME: Tests for agent invocation against httptest servers
// ABOUTME: Covers reply shapes, failure envelopes, retry backoff, timeouts and health probes

package invoker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/message"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMessage() *message.UnifiedMessage {
	return &message.UnifiedMessage{
		ID:        "1-abc",
		UserID:    "u1",
		TenantID:  "acme",
		SessionID: "s1",
		Channel:   message.ChannelSlack,
		Text:      "hello",
		Metadata:  message.Metadata{"channelId": message.String("C1")},
	}
}

func replyWith(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestInvoke_SendsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"response":"hi back"}`)
	}))
	defer srv.Close()

	inv := New(srv.URL, time.Second, WithLogger(quietLogger()))
	resp := inv.Invoke(context.Background(), testMessage())

	assert.True(t, resp.Success)
	assert.Equal(t, "hi back", resp.Response)
	assert.Equal(t, "s1", resp.SessionID)

	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "slack", got["channel"])
	assert.Equal(t, "slack", got["platform"])
	assert.Equal(t, "u1", got["userId"])
	assert.Equal(t, "s1", got["sessionId"])
	assert.Equal(t, "acme", got["tenantId"])
	assert.Equal(t, map[string]any{"channelId": "C1"}, got["metadata"])
}

func TestExtractReply_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"response field", `{"response":"a","text":"b"}`, "a"},
		{"text field", `{"text":"b"}`, "b"},
		{"empty response falls through", `{"response":"","text":"b"}`, "b"},
		{"other object verbatim", `{"answer":42}`, `{"answer":42}`},
		{"json string", `"just text"`, "just text"},
		{"plain text", "plain reply\n", "plain reply"},
		{"number", `7`, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractReply([]byte(tt.body)))
		})
	}
}

func TestInvoke_Non2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(replyWith(http.StatusInternalServerError, "boom"))
	defer srv.Close()

	resp := New(srv.URL, time.Second, WithLogger(quietLogger())).Invoke(context.Background(), testMessage())

	assert.False(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.Response, "Error: "), resp.Response)
	assert.Contains(t, resp.Response, "500")
	assert.Equal(t, message.ErrorAgent, resp.ErrorKind())
	assert.Equal(t, "s1", resp.SessionID)
}

func TestInvoke_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(replyWith(http.StatusOK, "{}"))
	url := srv.URL
	srv.Close()

	resp := New(url, time.Second, WithLogger(quietLogger())).Invoke(context.Background(), testMessage())
	assert.False(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.Response, "Error: "))
}

func TestInvoke_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	inv := New(srv.URL, 50*time.Millisecond, WithLogger(quietLogger()))
	start := time.Now()
	resp := inv.Invoke(context.Background(), testMessage())

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Response, "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInvokeWithRetry_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"text":"third time"}`)
	}))
	defer srv.Close()

	inv := New(srv.URL, time.Second, WithLogger(quietLogger()), WithBaseDelay(time.Millisecond))
	resp := inv.InvokeWithRetry(context.Background(), testMessage(), 3)

	assert.True(t, resp.Success)
	assert.Equal(t, "third time", resp.Response)
	assert.Equal(t, int32(3), calls.Load())
	attempts, _ := resp.Extra[message.ExtAttempts].AsNumber()
	assert.Equal(t, 3.0, attempts)
}

func TestInvokeWithRetry_ExhaustsWithBackoff(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	inv := New(srv.URL, time.Second, WithLogger(quietLogger()))
	resp := inv.InvokeWithRetry(context.Background(), testMessage(), 2)

	assert.False(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.Response, "Agent invocation failed after 3 attempts: "), resp.Response)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 100*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 200*time.Millisecond)
}

func TestInvokeWithRetry_FailTwiceThenSucceed(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		n := len(stamps)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"response":"recovered"}`)
	}))
	defer srv.Close()

	inv := New(srv.URL, time.Second, WithLogger(quietLogger()))
	resp := inv.InvokeWithRetry(context.Background(), testMessage(), 2)

	assert.True(t, resp.Success)
	assert.Equal(t, "recovered", resp.Response)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 100*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 200*time.Millisecond)
}

func TestInvokeWithRetry_ZeroRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	resp := New(srv.URL, time.Second, WithLogger(quietLogger())).InvokeWithRetry(context.Background(), testMessage(), 0)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, resp.Response, "after 1 attempts")
}

func TestInvokeWithRetry_ContextCancelStopsBackoff(t *testing.T) {
	srv := httptest.NewServer(replyWith(http.StatusInternalServerError, ""))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	inv := New(srv.URL, time.Second, WithLogger(quietLogger()), WithBaseDelay(time.Hour))

	done := make(chan message.AgentResponse, 1)
	go func() { done <- inv.InvokeWithRetry(ctx, testMessage(), 5) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case resp := <-done:
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Response, "after 1 attempts")
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop ignored cancellation")
	}
}

func TestHealthCheck(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"response":"pong"}`)
	}))
	defer srv.Close()

	inv := New(srv.URL, time.Second, WithLogger(quietLogger()))
	assert.True(t, inv.HealthCheck(context.Background()))
	assert.Equal(t, "ping", body["text"])
	assert.Equal(t, "gateway", body["platform"])

	srv.Close()
	assert.False(t, inv.HealthCheck(context.Background()))
}

func TestHealthCheck_NonSuccessStatusIsUnhealthy(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusBadGateway} {
		srv := httptest.NewServer(replyWith(code, "boom"))
		inv := New(srv.URL, time.Second, WithLogger(quietLogger()))

		assert.False(t, inv.HealthCheck(context.Background()), "status %d", code)
		resp := inv.Invoke(context.Background(), testMessage())
		assert.False(t, resp.Success, "status %d", code)
		srv.Close()
	}
}

func TestSetters_TakeEffectOnNextCall(t *testing.T) {
	first := httptest.NewServer(replyWith(http.StatusOK, `{"response":"first"}`))
	defer first.Close()
	second := httptest.NewServer(replyWith(http.StatusOK, `{"response":"second"}`))
	defer second.Close()

	inv := New(first.URL, 0, WithLogger(quietLogger()))
	assert.Equal(t, DefaultTimeout, inv.Timeout())
	assert.Equal(t, "first", inv.Invoke(context.Background(), testMessage()).Response)

	inv.SetURL(second.URL)
	inv.SetTimeout(2 * time.Second)
	assert.Equal(t, second.URL, inv.URL())
	assert.Equal(t, 2*time.Second, inv.Timeout())
	assert.Equal(t, "second", inv.Invoke(context.Background(), testMessage()).Response)
}

func TestSetters_ConcurrentWithInvoke(t *testing.T) {
	srv := httptest.NewServer(replyWith(http.StatusOK, `{"response":"ok"}`))
	defer srv.Close()

	inv := New(srv.URL, time.Second, WithLogger(quietLogger()))
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			inv.SetTimeout(time.Second)
			inv.SetURL(srv.URL)
		}()
		go func() {
			defer wg.Done()
			assert.True(t, inv.Invoke(context.Background(), testMessage()).Success)
		}()
	}
	wg.Wait()
}
