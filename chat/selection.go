package chat

import (
	"context"
	"sync"
	"time"

	"github.com/farmsense/farmsense/conversation"
	"github.com/farmsense/farmsense/store"
)

// SelectionMode is the sidebar's selection phase.
type SelectionMode string

const (
	ModeNormal    SelectionMode = "normal"
	ModeSelecting SelectionMode = "selecting"
)

// DefaultLongPress is how long a press must be held before it activates
// multi-select instead of counting as a tap.
const DefaultLongPress = 1500 * time.Millisecond

// SelectionConfig configures the sidebar selection controller.
type SelectionConfig struct {
	LongPress time.Duration // default: DefaultLongPress

	// OnActiveDeleted fires when a bulk delete removed the conversation
	// the chat session currently has open. May be nil.
	OnActiveDeleted func()
}

// Selection manages the sidebar's long-press-activated multi-select mode
// and batch delete over the conversation list projection.
type Selection struct {
	repo      *conversation.Repository
	longPress time.Duration
	onDeleted func()

	mu            sync.Mutex
	mode          SelectionMode
	selected      map[string]bool
	conversations []*store.Conversation
	pressTimer    *time.Timer
	pressedID     string
}

// NewSelection creates a selection controller in normal mode.
func NewSelection(repo *conversation.Repository, cfg SelectionConfig) *Selection {
	longPress := cfg.LongPress
	if longPress <= 0 {
		longPress = DefaultLongPress
	}
	return &Selection{
		repo:      repo,
		longPress: longPress,
		onDeleted: cfg.OnActiveDeleted,
		mode:      ModeNormal,
		selected:  make(map[string]bool),
	}
}

// SetConversations replaces the local list projection. Selected ids that
// no longer exist are dropped; an emptied selection returns to normal.
func (s *Selection) SetConversations(conversations []*store.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = conversations

	present := make(map[string]bool, len(conversations))
	for _, c := range conversations {
		present[c.ID] = true
	}
	for id := range s.selected {
		if !present[id] {
			delete(s.selected, id)
		}
	}
	if s.mode == ModeSelecting && len(s.selected) == 0 {
		s.mode = ModeNormal
	}
}

// Conversations returns the current list projection.
func (s *Selection) Conversations() []*store.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// PressStart begins a press on a list item. In normal mode it arms the
// long-press timer; if the press is held past the threshold the
// controller enters selecting mode with that item selected.
func (s *Selection) PressStart(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pressTimer != nil {
		s.pressTimer.Stop()
	}
	s.pressedID = id

	if s.mode != ModeNormal {
		return
	}
	s.pressTimer = time.AfterFunc(s.longPress, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.mode != ModeNormal || s.pressedID != id {
			return
		}
		s.mode = ModeSelecting
		s.selected[id] = true
		s.pressedID = ""
	})
}

// PressEnd completes a press. A release before the long-press threshold
// is a plain tap: in selecting mode it toggles the item's membership, in
// normal mode it is left to the caller (open the conversation). Returns
// true when the tap was consumed as a selection toggle.
func (s *Selection) PressEnd(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pressTimer != nil {
		s.pressTimer.Stop()
		s.pressTimer = nil
	}
	if s.pressedID != id {
		// The long-press already fired for this press, or the release
		// does not match the press. Nothing more to do.
		s.pressedID = ""
		return false
	}
	s.pressedID = ""

	if s.mode != ModeSelecting {
		return false
	}
	s.toggleLocked(id)
	return true
}

// Toggle flips an item's membership while selecting. An emptied
// selection returns the controller to normal mode.
func (s *Selection) Toggle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeSelecting {
		return
	}
	s.toggleLocked(id)
}

func (s *Selection) toggleLocked(id string) {
	if s.selected[id] {
		delete(s.selected, id)
	} else {
		s.selected[id] = true
	}
	if len(s.selected) == 0 {
		s.mode = ModeNormal
	}
}

// SelectAll forces selecting mode with every listed conversation selected.
func (s *Selection) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeSelecting
	for _, c := range s.conversations {
		s.selected[c.ID] = true
	}
}

// Cancel leaves selecting mode and clears the selection.
func (s *Selection) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeNormal
	s.selected = make(map[string]bool)
}

// Mode returns the current selection phase.
func (s *Selection) Mode() SelectionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Selected returns the currently selected conversation ids.
func (s *Selection) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	return out
}

// Delete removes the selected conversations in one backend call. On
// success the local projection is pruned, the selection clears, and if
// the active conversation was among the deleted the OnActiveDeleted
// signal fires. On failure the selection is left untouched.
func (s *Selection) Delete(ctx context.Context, activeConversationID string) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	if err := s.repo.Delete(ctx, ids); err != nil {
		return err
	}

	s.mu.Lock()
	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		deleted[id] = true
	}
	kept := s.conversations[:0]
	for _, c := range s.conversations {
		if !deleted[c.ID] {
			kept = append(kept, c)
		}
	}
	s.conversations = kept
	s.selected = make(map[string]bool)
	s.mode = ModeNormal
	activeDeleted := activeConversationID != "" && deleted[activeConversationID]
	onDeleted := s.onDeleted
	s.mu.Unlock()

	if activeDeleted && onDeleted != nil {
		onDeleted()
	}
	return nil
}
