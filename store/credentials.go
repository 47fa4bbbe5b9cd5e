package store

// TokenPair holds the opaque access/refresh token strings issued by the
// backend. No component holds a copy beyond the lifetime of a single request.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserProfile is the authenticated user as reported by the backend.
type UserProfile struct {
	ID    string
	Name  string
	Email string
}

// Credentials is the persisted unit: token pair plus user profile.
// Populated on login/registration, cleared on logout or unrecoverable
// refresh failure.
type Credentials struct {
	Tokens TokenPair
	User   *UserProfile
}

// Session is the derived authentication view, recomputed on start and
// after every refresh attempt.
type Session struct {
	Authenticated bool
	User          *UserProfile
}
