package client

import (
	"context"
	"net/http"

	"github.com/farmsense/farmsense/store"
)

// loginResponse mirrors the backend login/registration wire shape.
type loginResponse struct {
	User struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
	Tokens struct {
		Access struct {
			Token string `json:"token"`
		} `json:"access"`
		Refresh struct {
			Token string `json:"token"`
		} `json:"refresh"`
	} `json:"tokens"`
}

// Login authenticates against the backend and persists the resulting
// credentials. It is the only entry point besides refresh that writes the
// token store.
func (c *Client) Login(ctx context.Context, email, password string) (*store.Session, error) {
	var decoded loginResponse
	err := c.Do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &decoded)
	if err != nil {
		return nil, err
	}

	creds := &store.Credentials{
		Tokens: store.TokenPair{
			AccessToken:  decoded.Tokens.Access.Token,
			RefreshToken: decoded.Tokens.Refresh.Token,
		},
		User: &store.UserProfile{
			ID:    decoded.User.ID,
			Name:  decoded.User.Name,
			Email: decoded.User.Email,
		},
	}
	if err := c.tokens.SetCredentials(ctx, creds); err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	return &store.Session{Authenticated: true, User: creds.User}, nil
}

// Logout clears the persisted credentials. The backend session, if any,
// is left to expire on its own.
func (c *Client) Logout(ctx context.Context) error {
	return c.tokens.ClearTokens(ctx)
}
