package state

import (
	"sync"

	"github.com/practice-sem-2/dm-service/internal/models"
)

type listeners[T any] struct {
	nextID  int
	entries []listener[T]
}

type listener[T any] struct {
	id int
	fn func(T)
}

func (l *listeners[T]) add(fn func(T)) int {
	l.nextID++
	l.entries = append(l.entries, listener[T]{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *listeners[T]) remove(id int) {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *listeners[T]) snapshot() []func(T) {
	fns := make([]func(T), len(l.entries))
	for i, e := range l.entries {
		fns[i] = e.fn
	}
	return fns
}

// State is the shared application state: current view, open chat, panel
// visibility and the video pending to be shared. Setters notify only on an
// actual change. Listeners run synchronously, in subscription order, after
// the mutation is visible.
type State struct {
	mu         sync.Mutex
	view       View
	panelOpen  bool
	activeChat *models.Chat
	share      *models.Video

	viewListeners  listeners[View]
	panelListeners listeners[bool]
}

func New() *State {
	return &State{view: ViewLogin}
}

func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *State) SetView(view View) {
	s.mu.Lock()
	if s.view == view {
		s.mu.Unlock()
		return
	}
	s.view = view
	fns := s.viewListeners.snapshot()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(view)
	}
}

func (s *State) PanelOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelOpen
}

func (s *State) SetPanelOpen(open bool) {
	s.mu.Lock()
	if s.panelOpen == open {
		s.mu.Unlock()
		return
	}
	s.panelOpen = open
	fns := s.panelListeners.snapshot()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(open)
	}
}

// ActiveChat returns a copy of the open chat, nil when none is open.
func (s *State) ActiveChat() *models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeChat == nil {
		return nil
	}
	chat := *s.activeChat
	return &chat
}

// UpdateActiveChat edits the open chat in place without notifying.
func (s *State) UpdateActiveChat(fn func(chat *models.Chat)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeChat != nil {
		fn(s.activeChat)
	}
}

// OpenChat makes chat the open chat and switches to the chat view. Opening a
// different chat while the chat view is shown still notifies.
func (s *State) OpenChat(chat models.Chat) {
	s.mu.Lock()
	changed := s.view != ViewChat || s.activeChat == nil || s.activeChat.ID != chat.ID
	s.activeChat = &chat
	s.view = ViewChat
	var fns []func(View)
	if changed {
		fns = s.viewListeners.snapshot()
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ViewChat)
	}
}

func (s *State) CloseChat() {
	s.mu.Lock()
	s.activeChat = nil
	s.mu.Unlock()
	s.SetView(ViewDialogs)
}

// Reset drops the open chat and pending share and returns to the login view.
func (s *State) Reset() {
	s.mu.Lock()
	s.activeChat = nil
	s.share = nil
	s.mu.Unlock()
	s.SetView(ViewLogin)
}

func (s *State) ShareVideo() *models.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.share == nil {
		return nil
	}
	video := *s.share
	return &video
}

// EnterShareMode stores the video and shows the chat list to pick a target.
func (s *State) EnterShareMode(video models.Video) {
	s.mu.Lock()
	s.share = &video
	s.mu.Unlock()
	s.SetView(ViewDialogs)
}

func (s *State) ExitShareMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.share = nil
}

func (s *State) OnViewChange(fn func(View)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.viewListeners.add(fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.viewListeners.remove(id)
	}
}

func (s *State) OnPanelChange(fn func(open bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.panelListeners.add(fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.panelListeners.remove(id)
	}
}
