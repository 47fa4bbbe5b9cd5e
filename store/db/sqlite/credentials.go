package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/farmsense/farmsense/store"
)

func (d *DB) GetCredentials(ctx context.Context) (*store.Credentials, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, user_id, user_name, user_email
		FROM credential WHERE id = 1
	`)

	creds := &store.Credentials{}
	var userID, userName, userEmail string
	err := row.Scan(&creds.Tokens.AccessToken, &creds.Tokens.RefreshToken, &userID, &userName, &userEmail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get credentials")
	}

	if userID != "" || userName != "" || userEmail != "" {
		creds.User = &store.UserProfile{ID: userID, Name: userName, Email: userEmail}
	}
	return creds, nil
}

func (d *DB) SetCredentials(ctx context.Context, creds *store.Credentials) error {
	if creds == nil {
		return errors.New("credentials required")
	}

	var userID, userName, userEmail string
	if creds.User != nil {
		userID, userName, userEmail = creds.User.ID, creds.User.Name, creds.User.Email
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO credential (id, access_token, refresh_token, user_id, user_name, user_email)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			user_email = excluded.user_email
	`, creds.Tokens.AccessToken, creds.Tokens.RefreshToken, userID, userName, userEmail)
	if err != nil {
		return errors.Wrap(err, "failed to set credentials")
	}
	return nil
}

func (d *DB) ClearCredentials(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM credential WHERE id = 1`); err != nil {
		return errors.Wrap(err, "failed to clear credentials")
	}
	return nil
}
