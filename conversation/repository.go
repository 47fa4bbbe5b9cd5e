// Package conversation implements the conversation catalogue against the
// farm backend, with a locally cached projection for instant sidebar
// rendering while the authoritative listing is in flight.
package conversation

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/farmsense/farmsense/client"
	"github.com/farmsense/farmsense/store"
)

// Repository is the backend-facing conversation catalogue.
type Repository struct {
	client *client.Client
	store  *store.Store
}

// NewRepository creates a repository over the authenticated client. The
// store may be nil, in which case no projection cache is maintained.
func NewRepository(c *client.Client, s *store.Store) *Repository {
	return &Repository{client: c, store: s}
}

// wireConversation mirrors the backend listing entry.
type wireConversation struct {
	ID          string `json:"id"`
	Name        string `json:"conversation_name"`
	CreatedAt   string `json:"createdAt"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type listResponse struct {
	Data []wireConversation `json:"data"`
}

func (w wireConversation) toModel() *store.Conversation {
	created, err := time.Parse(time.RFC3339, w.CreatedAt)
	if err != nil {
		// A malformed timestamp degrades sorting, not the listing itself.
		slog.Warn("unparseable conversation timestamp", "id", w.ID, "createdAt", w.CreatedAt)
	}
	return &store.Conversation{
		ID:          w.ID,
		Name:        w.Name,
		Icon:        w.Icon,
		Description: w.Description,
		CreatedAt:   created,
	}
}

// List fetches the full conversation listing and reconciles the cached
// projection with it. Cache maintenance failures are logged, not surfaced;
// the authoritative listing has already been obtained.
func (r *Repository) List(ctx context.Context) ([]*store.Conversation, error) {
	var decoded listResponse
	if err := r.client.Do(ctx, http.MethodGet, "/conversations/get", nil, &decoded); err != nil {
		return nil, err
	}

	conversations := make([]*store.Conversation, 0, len(decoded.Data))
	for _, w := range decoded.Data {
		conversations = append(conversations, w.toModel())
	}

	if r.store != nil {
		if err := r.store.ReplaceConversations(ctx, conversations); err != nil {
			slog.Warn("conversation cache reconcile failed", "error", err)
		}
	}
	return conversations, nil
}

// Cached returns the locally cached projection without touching the
// backend. Returns an empty slice when no cache is configured.
func (r *Repository) Cached(ctx context.Context) ([]*store.Conversation, error) {
	if r.store == nil {
		return nil, nil
	}
	return r.store.ListConversations(ctx)
}

// Create registers a new conversation with the backend and seeds the
// cached projection with the created entry.
func (r *Repository) Create(ctx context.Context, name, icon, description string) (*store.Conversation, error) {
	var decoded wireConversation
	err := r.client.Do(ctx, http.MethodPost, "/conversations/create", map[string]string{
		"conversation_name": name,
		"icon":              icon,
		"description":       description,
	}, &decoded)
	if err != nil {
		return nil, err
	}

	created := decoded.toModel()
	// The backend may echo a partial record; the request fields are
	// authoritative for everything but id and createdAt.
	created.Name = name
	created.Icon = icon
	created.Description = description
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}

	if r.store != nil {
		if err := r.store.UpsertConversation(ctx, created); err != nil {
			slog.Warn("conversation cache upsert failed", "error", err)
		}
	}
	return created, nil
}

// Delete removes the given conversations in a single backend call and,
// on success, prunes them from the cached projection. On failure the
// cache is left untouched.
func (r *Repository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.client.Do(ctx, http.MethodDelete, "/conversations/delete", map[string][]string{
		"conversationIds": ids,
	}, nil)
	if err != nil {
		return err
	}

	if r.store != nil {
		if err := r.store.DeleteConversations(ctx, ids); err != nil {
			slog.Warn("conversation cache prune failed", "error", err)
		}
	}
	return nil
}
