package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/farmsense/farmsense/store"
)

func (d *DB) ListConversations(ctx context.Context) ([]*store.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, icon, description, created_ts
		FROM conversation
		ORDER BY created_ts DESC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	var list []*store.Conversation
	for rows.Next() {
		conversation := &store.Conversation{}
		var createdTs int64
		if err := rows.Scan(&conversation.ID, &conversation.Name, &conversation.Icon, &conversation.Description, &createdTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		if createdTs > 0 {
			conversation.CreatedAt = time.Unix(createdTs, 0)
		}
		list = append(list, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversations")
	}
	return list, nil
}

func (d *DB) UpsertConversations(ctx context.Context, conversations []*store.Conversation) error {
	if len(conversations) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	for _, conversation := range conversations {
		var createdTs int64
		if !conversation.CreatedAt.IsZero() {
			createdTs = conversation.CreatedAt.Unix()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversation (id, name, icon, description, created_ts)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				icon = excluded.icon,
				description = excluded.description,
				created_ts = excluded.created_ts
		`, conversation.ID, conversation.Name, conversation.Icon, conversation.Description, createdTs)
		if err != nil {
			return errors.Wrapf(err, "failed to upsert conversation %s", conversation.ID)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit")
}

func (d *DB) DeleteConversations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := d.db.ExecContext(ctx, `DELETE FROM conversation WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return errors.Wrap(err, "failed to delete conversations")
	}
	return nil
}
