package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/farmsense/farmsense/ai"
	"github.com/farmsense/farmsense/conversation"
)

// State is the session controller's current phase.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingGreeting State = "awaiting_greeting"
	StateReady            State = "ready"
	StateSending          State = "sending"
	StateLimitReached     State = "limit_reached"
)

var (
	// ErrNotReady is returned when a send arrives while the session is
	// not accepting input (greeting in flight, another send in flight).
	ErrNotReady = errors.New("session is not ready to send")

	// ErrLimitReached is returned when the per-session user message cap
	// has been hit. The message is not sent; the state shows a transient
	// warning and returns to ready on its own.
	ErrLimitReached = errors.New("session message limit reached")

	// ErrEmptyMessage is returned for a send with no text and no image.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrSuperseded is returned when a new conversation was started while
	// this send was in flight. The reply has been discarded.
	ErrSuperseded = errors.New("session was superseded")
)

// SessionConfig configures the session controller.
type SessionConfig struct {
	MessageLimit    int           // user messages per session (default: 10)
	WarningDuration time.Duration // how long the limit warning shows (default: 2s)
}

// Session orchestrates one chat session from greeting to reset. All
// methods are safe for concurrent use; sends block their caller while a
// reset from another goroutine cancels them.
type Session struct {
	pipeline *ai.Pipeline
	namer    *ai.Namer
	repo     *conversation.Repository

	limit   int
	warnDur time.Duration

	mu             sync.Mutex
	id             string
	state          State
	messages       []Message
	userTurns      []string
	pendingImage   *ai.ImagePart
	namedOnce      bool
	conversationID string

	// epoch increments on every reset; a send whose epoch is stale
	// discards its result instead of writing into the new session.
	epoch      int
	cancelSend context.CancelFunc
	warnTimer  *time.Timer
}

// NewSession creates an idle session controller. The repository may be
// nil, in which case naming still runs but no conversation is created.
func NewSession(pipeline *ai.Pipeline, namer *ai.Namer, repo *conversation.Repository, cfg SessionConfig) *Session {
	limit := cfg.MessageLimit
	if limit <= 0 {
		limit = 10
	}
	warnDur := cfg.WarningDuration
	if warnDur <= 0 {
		warnDur = 2 * time.Second
	}
	return &Session{
		pipeline: pipeline,
		namer:    namer,
		repo:     repo,
		limit:    limit,
		warnDur:  warnDur,
		state:    StateIdle,
	}
}

// Start begins a fresh session: the log, running context, pending image,
// and naming flag are reset, any in-flight send is cancelled, and the
// greeting is fetched. Callable from any state.
func (s *Session) Start(ctx context.Context) (Message, error) {
	s.mu.Lock()
	s.resetLocked()
	epoch := s.epoch
	greetCtx, cancel := context.WithCancel(ctx)
	s.cancelSend = cancel
	s.mu.Unlock()
	defer cancel()

	result := s.pipeline.Greet(greetCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return Message{}, ErrSuperseded
	}
	greeting := newMessage(SenderAssistant, result.Text, "")
	s.messages = append(s.messages, greeting)
	s.state = StateReady
	return greeting, nil
}

// resetLocked clears session state and invalidates in-flight work.
func (s *Session) resetLocked() {
	s.epoch++
	if s.cancelSend != nil {
		s.cancelSend()
		s.cancelSend = nil
	}
	if s.warnTimer != nil {
		s.warnTimer.Stop()
		s.warnTimer = nil
	}
	s.id = shortuuid.New()
	s.state = StateAwaitingGreeting
	s.messages = nil
	s.userTurns = nil
	s.pendingImage = nil
	s.namedOnce = false
	s.conversationID = ""
}

// Reset requests a new conversation. The greeting for the new session is
// fetched by the caller via Start; Reset alone only tears down.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// AttachImage stages an image for the next send. Cleared on send and on reset.
func (s *Session) AttachImage(image *ai.ImagePart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingImage = image
}

// Send runs one chat turn. It appends the user message, calls the
// pipeline, and appends the reply (real or fallback). On the second user
// message of the session it also derives a conversation identity and
// creates the backend record, exactly once per session; failures there
// are logged and swallowed.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return Message{}, ErrNotReady
	}
	if text == "" && s.pendingImage == nil {
		s.mu.Unlock()
		return Message{}, ErrEmptyMessage
	}
	if len(s.userTurns) >= s.limit {
		s.enterLimitWarningLocked()
		s.mu.Unlock()
		return Message{}, ErrLimitReached
	}

	image := s.pendingImage
	s.pendingImage = nil
	imageRef := ""
	if image != nil {
		imageRef = image.MIMEType
	}
	userMsg := newMessage(SenderUser, text, imageRef)
	s.messages = append(s.messages, userMsg)
	priorContext := strings.Join(s.userTurns, "\n")
	s.userTurns = append(s.userTurns, text)
	userCount := len(s.userTurns)
	s.state = StateSending

	epoch := s.epoch
	sendCtx, cancel := context.WithCancel(ctx)
	s.cancelSend = cancel
	s.mu.Unlock()
	defer cancel()

	result := s.pipeline.Send(sendCtx, text, image, priorContext)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return Message{}, ErrSuperseded
	}
	reply := newMessage(SenderAssistant, result.Text, "")
	s.messages = append(s.messages, reply)
	s.state = StateReady
	shouldName := userCount == 2 && !s.namedOnce
	if shouldName {
		s.namedOnce = true
	}
	s.mu.Unlock()

	if shouldName {
		s.nameConversation(ctx, epoch, text)
	}
	return reply, nil
}

// enterLimitWarningLocked flips to the transient warning state and arms
// the timer that returns the session to ready.
func (s *Session) enterLimitWarningLocked() {
	s.state = StateLimitReached
	epoch := s.epoch
	if s.warnTimer != nil {
		s.warnTimer.Stop()
	}
	s.warnTimer = time.AfterFunc(s.warnDur, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch == epoch && s.state == StateLimitReached {
			s.state = StateReady
		}
	})
}

// nameConversation derives an identity from the naming-trigger message
// and creates the backend record. Nothing here may fail the chat turn.
func (s *Session) nameConversation(ctx context.Context, epoch int, trigger string) {
	naming, err := s.namer.Generate(ctx, trigger)
	if err != nil {
		slog.Warn("conversation naming failed", "error", err)
		return
	}
	if naming.Name == "" {
		slog.Warn("conversation naming produced no name")
		return
	}
	if s.repo == nil {
		return
	}

	created, err := s.repo.Create(ctx, naming.Name, naming.Icon, naming.Description)
	if err != nil {
		slog.Warn("conversation create failed", "name", naming.Name, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == epoch {
		s.conversationID = created.ID
	}
	slog.Info("conversation created", "id", created.ID, "name", naming.Name)
}

// State returns the current session phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the session's local identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// ConversationID returns the backend conversation id, or empty if no
// record has been created for this session.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns a copy of the session log.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// UserMessageCount returns how many user messages this session holds.
func (s *Session) UserMessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.userTurns)
}

// Remaining returns how many sends are left before the cap.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit - len(s.userTurns)
}
