package controllers_test

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"shadowtips-backend/suggest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProvider struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (p *recordingProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	return p.reply, p.err
}

func (p *recordingProvider) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}

func TestSuggestMessages_Success(t *testing.T) {
	provider := &recordingProvider{reply: testReply}
	env := newTestEnv(t, provider)

	resp, body := env.do(t, request{method: http.MethodPost, path: "/api/suggest-messages",
		body: map[string]string{"tone": "cryptic", "recipient": "nina"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, testReply, body["message"])
	assert.Equal(t, false, body["disabled"])
	assert.Len(t, strings.Split(body["message"].(string), suggest.Delimiter), 3)

	assert.Equal(t, suggest.BuildPrompt(suggest.NewParams("cryptic", "", "", "nina")), provider.last())
}

func TestSuggestMessages_EmptyAndMalformedBodiesUseDefaults(t *testing.T) {
	provider := &recordingProvider{reply: testReply}
	env := newTestEnv(t, provider)
	want := suggest.BuildPrompt(suggest.NewParams("", "", "", ""))

	for _, body := range []any{nil, map[string]string{}, "{broken"} {
		resp, out := env.do(t, request{method: http.MethodPost, path: "/api/suggest-messages", body: body})
		require.Equal(t, http.StatusOK, resp.StatusCode, out)
		assert.Equal(t, want, provider.last())
	}
}

func TestSuggestMessages_ThrottledPerClient(t *testing.T) {
	env := newTestEnv(t, nil)
	client := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}

	for i := 0; i < 10; i++ {
		resp, _ := env.do(t, request{method: http.MethodPost, path: "/api/suggest-messages", headers: client})
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	resp, body := env.do(t, request{method: http.MethodPost, path: "/api/suggest-messages", headers: client})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, true, body["disabled"])
	assert.Equal(t, float64(10), body["count"])
	assert.Equal(t, "Too many requests. Try again after 1 hour.", body["message"])
	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 3600)

	// Only the left-most forwarded address identifies the client.
	resp, _ = env.do(t, request{method: http.MethodPost, path: "/api/suggest-messages",
		headers: map[string]string{"X-Forwarded-For": "203.0.113.7"}})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = env.do(t, request{method: http.MethodPost, path: "/api/suggest-messages",
		headers: map[string]string{"X-Forwarded-For": "198.51.100.1"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// No header at all shares the "unknown" identity.
	resp, _ = env.do(t, request{method: http.MethodPost, path: "/api/suggest-messages"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSuggestMessages_ProviderFailure(t *testing.T) {
	provider := &recordingProvider{err: errors.New("quota exceeded upstream")}
	env := newTestEnv(t, provider)

	resp, body := env.do(t, request{method: http.MethodPost, path: "/api/suggest-messages"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to generate message", body["error"])

	// Failures are not counted against the client.
	d, err := env.quota.CheckAndConsume(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Count)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
