package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmsense/farmsense/internal/profile"
	"github.com/farmsense/farmsense/store"
)

func newTestDriver(t *testing.T) store.Driver {
	t.Helper()
	p := &profile.Profile{DSN: filepath.Join(t.TempDir(), "farmsense_test.db")}
	driver, err := NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))
	return driver
}

func TestCredentialsRoundTrip(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	got, err := driver.GetCredentials(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	creds := &store.Credentials{
		Tokens: store.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"},
		User:   &store.UserProfile{ID: "42", Name: "Mel", Email: "mel@example.com"},
	}
	require.NoError(t, driver.SetCredentials(ctx, creds))

	got, err = driver.GetCredentials(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access-1", got.Tokens.AccessToken)
	require.NotNil(t, got.User)
	assert.Equal(t, "mel@example.com", got.User.Email)

	// Overwrite replaces the single credential row.
	creds.Tokens.AccessToken = "access-2"
	require.NoError(t, driver.SetCredentials(ctx, creds))
	got, err = driver.GetCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.Tokens.AccessToken)

	require.NoError(t, driver.ClearCredentials(ctx))
	got, err = driver.GetCredentials(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConversationProjection(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	now := time.Now().Truncate(time.Second)
	require.NoError(t, driver.UpsertConversations(ctx, []*store.Conversation{
		{ID: "a", Name: "Soil report", Icon: "🌱", CreatedAt: now.Add(-time.Hour)},
		{ID: "b", Name: "Tractor maintenance", CreatedAt: now},
	}))

	list, err := driver.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Ordered by creation time, newest first.
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "🌱", list[1].Icon)

	require.NoError(t, driver.DeleteConversations(ctx, []string{"a", "b"}))
	list, err = driver.ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
