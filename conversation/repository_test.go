package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmsense/farmsense/client"
	"github.com/farmsense/farmsense/store"
	"github.com/farmsense/farmsense/store/db/memory"
)

func newTestRepository(t *testing.T, handler http.Handler) (*Repository, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := store.New(memory.NewDB())
	require.NoError(t, s.SetCredentials(context.Background(), &store.Credentials{
		Tokens: store.TokenPair{AccessToken: "at", RefreshToken: "rt"},
	}))
	c := client.New(client.Config{BaseURL: srv.URL}, s, nil)
	return NewRepository(c, s), s
}

func TestList(t *testing.T) {
	repo, s := newTestRepository(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/conversations/get", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[
			{"id":"c2","conversation_name":"Calving schedule","createdAt":"2026-03-02T08:00:00Z","description":"Spring calving notes","icon":"🐄"},
			{"id":"c1","conversation_name":"Soil tests","createdAt":"2026-03-01T08:00:00Z","description":"","icon":"🌱"}
		]}`))
	}))

	// Stale cache entry that the listing no longer carries.
	require.NoError(t, s.UpsertConversation(context.Background(), &store.Conversation{ID: "gone", Name: "Old"}))

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].ID)
	assert.Equal(t, "Calving schedule", got[0].Name)
	assert.Equal(t, "🐄", got[0].Icon)
	assert.Equal(t, 2026, got[0].CreatedAt.Year())

	cached, err := repo.Cached(context.Background())
	require.NoError(t, err)
	require.Len(t, cached, 2, "stale entries are pruned on reconcile")
	for _, c := range cached {
		assert.NotEqual(t, "gone", c.ID)
	}
}

func TestList_MalformedTimestamp(t *testing.T) {
	repo, _ := newTestRepository(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"c1","conversation_name":"X","createdAt":"yesterday"}]}`))
	}))

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].CreatedAt.IsZero())
}

func TestCreate(t *testing.T) {
	var gotBody map[string]string
	repo, s := newTestRepository(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/conversations/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"id":"c9","createdAt":"2026-03-05T10:00:00Z"}`))
	}))

	created, err := repo.Create(context.Background(), "Fence repair", "🔧", "East paddock fence line")
	require.NoError(t, err)
	assert.Equal(t, "c9", created.ID)
	assert.Equal(t, "Fence repair", created.Name)
	assert.Equal(t, "🔧", created.Icon)
	assert.Equal(t, "East paddock fence line", created.Description)

	assert.Equal(t, "Fence repair", gotBody["conversation_name"])
	assert.Equal(t, "🔧", gotBody["icon"])
	assert.Equal(t, "East paddock fence line", gotBody["description"])

	cached, err := s.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "c9", cached[0].ID)
}

func TestDelete(t *testing.T) {
	var gotBody map[string][]string
	repo, s := newTestRepository(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/conversations/delete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))

	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, s.UpsertConversation(context.Background(), &store.Conversation{ID: id}))
	}

	require.NoError(t, repo.Delete(context.Background(), []string{"c1", "c3"}))
	assert.Equal(t, []string{"c1", "c3"}, gotBody["conversationIds"])

	cached, err := s.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "c2", cached[0].ID)
}

func TestDelete_FailureLeavesCache(t *testing.T) {
	repo, s := newTestRepository(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	require.NoError(t, s.UpsertConversation(context.Background(), &store.Conversation{ID: "c1"}))

	err := repo.Delete(context.Background(), []string{"c1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, client.StatusOf(err))

	cached, err := s.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}

func TestDelete_EmptySetIsNoop(t *testing.T) {
	repo, _ := newTestRepository(t, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no backend call expected for an empty delete set")
	}))
	require.NoError(t, repo.Delete(context.Background(), nil))
}
