// Package stub runs a local farm backend for development and testing:
// JWT login and refresh plus the conversation endpoints, backed by the
// in-memory store driver. Not for production use.
package stub

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/farmsense/farmsense/store"
	"github.com/farmsense/farmsense/store/db/memory"
)

// Config configures the stub backend.
type Config struct {
	Addr      string        // listen address (default: :8094)
	Secret    string        // JWT signing secret (default: random-ish dev secret)
	AccessTTL time.Duration // access token lifetime (default: 15m)
}

// Server is the stub backend.
type Server struct {
	echo      *echo.Echo
	store     *store.Store
	secret    []byte
	accessTTL time.Duration
	addr      string
}

// New creates a stub backend with an empty in-memory conversation set.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8094"
	}
	if cfg.Secret == "" {
		cfg.Secret = "farmsense-dev-secret"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		store:     store.New(memory.NewDB()),
		secret:    []byte(cfg.Secret),
		accessTTL: cfg.AccessTTL,
		addr:      cfg.Addr,
	}

	e.POST("/auth/login", s.handleLogin)
	e.POST("/auth/refresh-tokens", s.handleRefresh)

	authed := e.Group("", s.requireAccessToken)
	authed.GET("/conversations/get", s.handleList)
	authed.POST("/conversations/create", s.handleCreate)
	authed.DELETE("/conversations/delete", s.handleDelete)

	return s
}

// Start blocks serving HTTP until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.addr)
	}()
	slog.Info("stub backend listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler exposes the routing tree for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

type claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func (s *Server) mintPair(subject string) (access, refresh string, err error) {
	now := time.Now()
	access, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}).SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	refresh, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(30 * 24 * time.Hour)),
		},
	}).SignedString(s.secret)
	return access, refresh, err
}

func (s *Server) parseToken(raw, wantType string) (*claims, error) {
	token, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*claims)
	if !ok || c.TokenType != wantType {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return c, nil
}

func (s *Server) requireAccessToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return c.NoContent(http.StatusUnauthorized)
		}
		if _, err := s.parseToken(raw, "access"); err != nil {
			return c.NoContent(http.StatusUnauthorized)
		}
		return next(c)
	}
}

func tokensEnvelope(access, refresh string) map[string]any {
	return map[string]any{
		"access":  map[string]string{"token": access},
		"refresh": map[string]string{"token": refresh},
	}
}

func (s *Server) handleLogin(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil || body.Email == "" || body.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "email and password required"})
	}

	access, refresh, err := s.mintPair(body.Email)
	if err != nil {
		return c.NoContent(http.StatusInternalServerError)
	}
	name, _, _ := strings.Cut(body.Email, "@")
	return c.JSON(http.StatusOK, map[string]any{
		"user": map[string]string{
			"id":    uuid.NewString(),
			"name":  name,
			"email": body.Email,
		},
		"tokens": tokensEnvelope(access, refresh),
	})
}

func (s *Server) handleRefresh(c echo.Context) error {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&body); err != nil || body.RefreshToken == "" {
		return c.NoContent(http.StatusBadRequest)
	}

	parsed, err := s.parseToken(body.RefreshToken, "refresh")
	if err != nil {
		return c.NoContent(http.StatusUnauthorized)
	}
	access, refresh, err := s.mintPair(parsed.Subject)
	if err != nil {
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"tokens": tokensEnvelope(access, refresh),
	})
}

func (s *Server) handleList(c echo.Context) error {
	conversations, err := s.store.ListConversations(c.Request().Context())
	if err != nil {
		return c.NoContent(http.StatusInternalServerError)
	}
	data := make([]map[string]string, 0, len(conversations))
	for _, conv := range conversations {
		data = append(data, map[string]string{
			"id":                conv.ID,
			"conversation_name": conv.Name,
			"icon":              conv.Icon,
			"description":       conv.Description,
			"createdAt":         conv.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"data": data})
}

func (s *Server) handleCreate(c echo.Context) error {
	var body struct {
		Name        string `json:"conversation_name"`
		Icon        string `json:"icon"`
		Description string `json:"description"`
	}
	if err := c.Bind(&body); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	conv := &store.Conversation{
		ID:          uuid.NewString(),
		Name:        body.Name,
		Icon:        body.Icon,
		Description: body.Description,
		CreatedAt:   time.Now(),
	}
	if err := s.store.UpsertConversation(c.Request().Context(), conv); err != nil {
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"id":        conv.ID,
		"createdAt": conv.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDelete(c echo.Context) error {
	var body struct {
		ConversationIDs []string `json:"conversationIds"`
	}
	if err := c.Bind(&body); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	if len(body.ConversationIDs) == 0 {
		return c.NoContent(http.StatusOK)
	}
	if err := s.store.DeleteConversations(c.Request().Context(), body.ConversationIDs); err != nil {
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusOK)
}
