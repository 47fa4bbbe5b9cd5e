// Package memory provides an in-memory store driver used by tests and the
// development stub.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/farmsense/farmsense/store"
)

type DB struct {
	mu            sync.RWMutex
	credentials   *store.Credentials
	conversations map[string]*store.Conversation
}

// NewDB creates an empty in-memory driver.
func NewDB() store.Driver {
	return &DB{conversations: make(map[string]*store.Conversation)}
}

func (d *DB) GetCredentials(_ context.Context) (*store.Credentials, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.credentials == nil {
		return nil, nil
	}
	creds := *d.credentials
	return &creds, nil
}

func (d *DB) SetCredentials(_ context.Context, creds *store.Credentials) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *creds
	d.credentials = &copied
	return nil
}

func (d *DB) ClearCredentials(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.credentials = nil
	return nil
}

func (d *DB) ListConversations(_ context.Context) ([]*store.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	list := make([]*store.Conversation, 0, len(d.conversations))
	for _, c := range d.conversations {
		copied := *c
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (d *DB) UpsertConversations(_ context.Context, conversations []*store.Conversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range conversations {
		copied := *c
		d.conversations[c.ID] = &copied
	}
	return nil
}

func (d *DB) DeleteConversations(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		delete(d.conversations, id)
	}
	return nil
}

func (d *DB) Migrate(_ context.Context) error { return nil }

func (d *DB) Close() error { return nil }
