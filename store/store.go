// Package store provides local persistence for the farmsense client:
// the credential holder (token pair plus user profile) and a cached
// projection of the conversation list for instant sidebar rendering.
package store

import (
	"context"
)

// Driver is an interface for local storage backends.
type Driver interface {
	GetCredentials(ctx context.Context) (*Credentials, error)
	SetCredentials(ctx context.Context, creds *Credentials) error
	ClearCredentials(ctx context.Context) error

	ListConversations(ctx context.Context) ([]*Conversation, error)
	UpsertConversations(ctx context.Context, conversations []*Conversation) error
	DeleteConversations(ctx context.Context, ids []string) error

	Migrate(ctx context.Context) error
	Close() error
}

// Store wraps a storage driver.
type Store struct {
	driver Driver
}

// New creates a new Store backed by the given driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Migrate ensures the storage schema exists.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// Close closes the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

// GetTokens returns the persisted token pair, or nil when absent.
// Token contents are opaque; the store never validates them.
func (s *Store) GetTokens(ctx context.Context) (*TokenPair, error) {
	creds, err := s.driver.GetCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, nil
	}
	pair := creds.Tokens
	return &pair, nil
}

// SetTokens replaces the persisted token pair, preserving the user profile.
func (s *Store) SetTokens(ctx context.Context, pair TokenPair) error {
	creds, err := s.driver.GetCredentials(ctx)
	if err != nil {
		return err
	}
	if creds == nil {
		creds = &Credentials{}
	}
	creds.Tokens = pair
	return s.driver.SetCredentials(ctx, creds)
}

// SetCredentials persists a full credential set (login/registration).
func (s *Store) SetCredentials(ctx context.Context, creds *Credentials) error {
	return s.driver.SetCredentials(ctx, creds)
}

// ClearTokens drops the persisted credentials (logout, unrecoverable refresh failure).
func (s *Store) ClearTokens(ctx context.Context) error {
	return s.driver.ClearCredentials(ctx)
}

// Session derives the current session view from the persisted credentials.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	creds, err := s.driver.GetCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if creds == nil || creds.Tokens.AccessToken == "" {
		return &Session{}, nil
	}
	return &Session{Authenticated: true, User: creds.User}, nil
}

// ListConversations returns the cached conversation projection.
func (s *Store) ListConversations(ctx context.Context) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx)
}

// ReplaceConversations reconciles the cached projection with a fresh listing.
func (s *Store) ReplaceConversations(ctx context.Context, conversations []*Conversation) error {
	existing, err := s.driver.ListConversations(ctx)
	if err != nil {
		return err
	}
	fresh := make(map[string]bool, len(conversations))
	for _, c := range conversations {
		fresh[c.ID] = true
	}
	var stale []string
	for _, c := range existing {
		if !fresh[c.ID] {
			stale = append(stale, c.ID)
		}
	}
	if len(stale) > 0 {
		if err := s.driver.DeleteConversations(ctx, stale); err != nil {
			return err
		}
	}
	return s.driver.UpsertConversations(ctx, conversations)
}

// UpsertConversation adds or updates a single cached conversation.
func (s *Store) UpsertConversation(ctx context.Context, conversation *Conversation) error {
	return s.driver.UpsertConversations(ctx, []*Conversation{conversation})
}

// DeleteConversations removes conversations from the cached projection.
func (s *Store) DeleteConversations(ctx context.Context, ids []string) error {
	return s.driver.DeleteConversations(ctx, ids)
}
