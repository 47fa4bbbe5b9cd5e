package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmsense/farmsense/ai"
	"github.com/farmsense/farmsense/client"
	"github.com/farmsense/farmsense/conversation"
	"github.com/farmsense/farmsense/store"
	"github.com/farmsense/farmsense/store/db/memory"
)

// scriptedProvider answers chat prompts with a fixed reply and naming
// prompts with a tagged identity.
type scriptedProvider struct {
	reply       string
	namingReply string
	err         error
	block       chan struct{} // when non-nil, Generate waits for ctx or close
	calls       atomic.Int32
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, _ *ai.ImagePart) (string, error) {
	p.calls.Add(1)
	if p.block != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-p.block:
		}
	}
	if p.err != nil {
		return "", p.err
	}
	if len(prompt) >= len("Based on") && prompt[:len("Based on")] == "Based on" {
		return p.namingReply, nil
	}
	return p.reply, nil
}

type backendCounters struct {
	creates atomic.Int32
	deletes atomic.Int32
}

func newTestBackend(t *testing.T, counters *backendCounters, failCreate bool) *conversation.Repository {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations/create", func(w http.ResponseWriter, r *http.Request) {
		counters.creates.Add(1)
		if failCreate {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"id":"conv-1","createdAt":"2026-03-01T08:00:00Z"}`))
	})
	mux.HandleFunc("/conversations/delete", func(w http.ResponseWriter, r *http.Request) {
		counters.deletes.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := store.New(memory.NewDB())
	require.NoError(t, s.SetCredentials(context.Background(), &store.Credentials{
		Tokens: store.TokenPair{AccessToken: "at", RefreshToken: "rt"},
	}))
	c := client.New(client.Config{BaseURL: srv.URL}, s, nil)
	return conversation.NewRepository(c, s)
}

func newTestSession(t *testing.T, provider ai.Provider, repo *conversation.Repository, cfg SessionConfig) *Session {
	t.Helper()
	pipeline := ai.NewPipeline(provider, "test", nil)
	namer := ai.NewNamer(provider, nil)
	return NewSession(pipeline, namer, repo, cfg)
}

func TestSessionLifecycle(t *testing.T) {
	provider := &scriptedProvider{
		reply:       "Sounds good.",
		namingReply: "**Hay budget**\n*-🌾-*\n*+Winter hay planning.+*",
	}
	var counters backendCounters
	repo := newTestBackend(t, &counters, false)
	session := newTestSession(t, provider, repo, SessionConfig{MessageLimit: 10, WarningDuration: 20 * time.Millisecond})

	assert.Equal(t, StateIdle, session.State())

	greeting, err := session.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SenderAssistant, greeting.Sender)
	assert.Equal(t, StateReady, session.State())

	for i := 1; i <= 10; i++ {
		reply, err := session.Send(context.Background(), fmt.Sprintf("message %d", i))
		require.NoError(t, err, "send %d", i)
		assert.Equal(t, SenderAssistant, reply.Sender)
		assert.Equal(t, StateReady, session.State())
	}

	// 1 greeting + 10 user + 10 assistant.
	assert.Len(t, session.Messages(), 21)
	assert.Equal(t, 10, session.UserMessageCount())

	// Naming fired exactly once, on the 2nd user message.
	assert.Equal(t, int32(1), counters.creates.Load())
	assert.Equal(t, "conv-1", session.ConversationID())

	// The 11th send is rejected without an API call and shows a
	// transient warning.
	callsBefore := provider.calls.Load()
	_, err = session.Send(context.Background(), "message 11")
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, StateLimitReached, session.State())
	assert.Equal(t, callsBefore, provider.calls.Load())
	assert.Len(t, session.Messages(), 21)

	assert.Eventually(t, func() bool {
		return session.State() == StateReady
	}, time.Second, 5*time.Millisecond, "limit warning must clear on its own")
}

func TestSessionSend_RequiresReady(t *testing.T) {
	session := newTestSession(t, &scriptedProvider{reply: "hi"}, nil, SessionConfig{})

	_, err := session.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSessionSend_RejectsEmpty(t *testing.T) {
	session := newTestSession(t, &scriptedProvider{reply: "hi"}, nil, SessionConfig{})
	_, err := session.Start(context.Background())
	require.NoError(t, err)

	_, err = session.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSessionSend_ImageAloneIsSendable(t *testing.T) {
	provider := &scriptedProvider{reply: "That looks like clover."}
	session := newTestSession(t, provider, nil, SessionConfig{})
	_, err := session.Start(context.Background())
	require.NoError(t, err)

	session.AttachImage(&ai.ImagePart{MIMEType: "image/jpeg", Data: "aGk="})
	reply, err := session.Send(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "That looks like clover.", reply.Text)

	messages := session.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "image/jpeg", messages[1].ImageRef)
}

func TestSessionSend_FailureRendersFallback(t *testing.T) {
	provider := &scriptedProvider{err: fmt.Errorf("connection reset")}
	session := newTestSession(t, provider, nil, SessionConfig{})
	_, err := session.Start(context.Background())
	require.NoError(t, err)

	// The greeting itself already fell back; the turn still works.
	reply, err := session.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, ai.FallbackReply, reply.Text)
	assert.Equal(t, StateReady, session.State())
}

func TestSessionNaming_FailureIsSwallowed(t *testing.T) {
	provider := &scriptedProvider{
		reply:       "ok",
		namingReply: "**Hay budget**\n*-🌾-*\n*+Planning.+*",
	}
	var counters backendCounters
	repo := newTestBackend(t, &counters, true)
	session := newTestSession(t, provider, repo, SessionConfig{})
	_, err := session.Start(context.Background())
	require.NoError(t, err)

	_, err = session.Send(context.Background(), "first")
	require.NoError(t, err)
	_, err = session.Send(context.Background(), "second")
	require.NoError(t, err, "a failed create must not fail the chat turn")

	assert.Equal(t, int32(1), counters.creates.Load())
	assert.Empty(t, session.ConversationID())

	// The once-flag holds: no retry on later sends.
	_, err = session.Send(context.Background(), "third")
	require.NoError(t, err)
	assert.Equal(t, int32(1), counters.creates.Load())
}

func TestSessionNaming_BlankNameSkipsCreate(t *testing.T) {
	provider := &scriptedProvider{reply: "ok", namingReply: "no tags in this reply"}
	var counters backendCounters
	repo := newTestBackend(t, &counters, false)
	session := newTestSession(t, provider, repo, SessionConfig{})
	_, err := session.Start(context.Background())
	require.NoError(t, err)

	_, err = session.Send(context.Background(), "first")
	require.NoError(t, err)
	_, err = session.Send(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, int32(0), counters.creates.Load())
}

func TestSessionReset_CancelsInFlightSend(t *testing.T) {
	provider := &scriptedProvider{reply: "late reply", block: make(chan struct{})}
	session := newTestSession(t, provider, nil, SessionConfig{})

	// Unblock the greeting, then re-arm for the send.
	close(provider.block)
	_, err := session.Start(context.Background())
	require.NoError(t, err)
	provider.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := session.Send(context.Background(), "slow question")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return session.State() == StateSending
	}, time.Second, time.Millisecond)

	session.Reset()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("cancelled send never returned")
	}

	// The stale reply did not leak into the fresh session.
	assert.Empty(t, session.Messages())
	assert.Equal(t, StateAwaitingGreeting, session.State())
}

func TestSessionReset_ClearsEverything(t *testing.T) {
	provider := &scriptedProvider{
		reply:       "ok",
		namingReply: "**Hay**\n*-🌾-*\n*+Planning.+*",
	}
	var counters backendCounters
	repo := newTestBackend(t, &counters, false)
	session := newTestSession(t, provider, repo, SessionConfig{})
	_, err := session.Start(context.Background())
	require.NoError(t, err)
	firstID := session.ID()

	_, err = session.Send(context.Background(), "first")
	require.NoError(t, err)
	_, err = session.Send(context.Background(), "second")
	require.NoError(t, err)
	require.Equal(t, int32(1), counters.creates.Load())

	_, err = session.Start(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, firstID, session.ID())
	assert.Len(t, session.Messages(), 1, "only the new greeting remains")
	assert.Empty(t, session.ConversationID())

	// A fresh session names again at its own 2nd message.
	_, err = session.Send(context.Background(), "first again")
	require.NoError(t, err)
	_, err = session.Send(context.Background(), "second again")
	require.NoError(t, err)
	assert.Equal(t, int32(2), counters.creates.Load())
}

func TestSessionLimit_CustomCap(t *testing.T) {
	provider := &scriptedProvider{reply: "ok"}
	session := newTestSession(t, provider, nil, SessionConfig{MessageLimit: 2, WarningDuration: 10 * time.Millisecond})
	_, err := session.Start(context.Background())
	require.NoError(t, err)

	_, err = session.Send(context.Background(), "one")
	require.NoError(t, err)
	_, err = session.Send(context.Background(), "two")
	require.NoError(t, err)
	_, err = session.Send(context.Background(), "three")
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, 0, session.Remaining())
}
