package shell

import (
	"sync"

	"github.com/practice-sem-2/dm-service/internal/controllers"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/state"
)

type Controller interface {
	Start()
	Destroy()
}

// Surface is the UI the shell renders into.
type Surface interface {
	ShowView(view state.View)
	ShowPanel(open bool)
	ShowIcon(filled bool)

	ChatView() controllers.ChatView
	DialogsView() controllers.DialogsView
	GroupView() controllers.GroupView
	SettingsView() controllers.SettingsView
}

type AuthSource interface {
	OnAuthChange(fn func(user *models.Profile)) func()
}

// Shell routes the current view to exactly one live controller. The old
// controller is destroyed before the next one is built.
type Shell struct {
	env     *controllers.Env
	surface Surface
	auth    AuthSource
	start   func(Controller)

	// renderMu serializes destroy, build and assign of the active controller.
	renderMu sync.Mutex

	mu        sync.Mutex
	active    Controller
	disposers []func()
}

func New(env *controllers.Env, surface Surface, auth AuthSource) *Shell {
	return &Shell{
		env:     env,
		surface: surface,
		auth:    auth,
		start:   func(c Controller) { go c.Start() },
	}
}

// Mount subscribes to view, panel and auth changes and renders the current
// view.
func (s *Shell) Mount() {
	s.mu.Lock()
	s.disposers = append(s.disposers,
		s.env.State.OnViewChange(s.render),
		s.env.State.OnPanelChange(s.onPanel),
		s.auth.OnAuthChange(s.onAuth),
	)
	s.mu.Unlock()

	open := s.env.State.PanelOpen()
	s.surface.ShowPanel(open)
	s.surface.ShowIcon(open)
	s.render(s.env.State.View())
}

// Unmount detaches every listener and destroys the active controller.
func (s *Shell) Unmount() {
	s.mu.Lock()
	disposers := s.disposers
	s.disposers = nil
	s.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}

	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	s.destroyActive()
}

func (s *Shell) onAuth(user *models.Profile) {
	if user != nil {
		if s.env.State.View() == state.ViewLogin {
			s.env.State.SetView(state.ViewDialogs)
		}
		return
	}

	s.env.State.Reset()
}

func (s *Shell) onPanel(open bool) {
	s.surface.ShowPanel(open)
	s.surface.ShowIcon(open)

	if open {
		s.render(s.env.State.View())
		return
	}
	s.env.State.ExitShareMode()

	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	s.destroyActive()
}

func (s *Shell) destroyActive() {
	s.mu.Lock()
	active := s.active
	s.active = nil
	s.mu.Unlock()

	if active != nil {
		active.Destroy()
	}
}

func (s *Shell) render(state.View) {
	next, ok := s.swap()
	if !ok {
		s.env.State.SetView(state.ViewDialogs)
		return
	}
	if next != nil {
		s.start(next)
	}
}

// swap replaces the active controller with one for the current view. The
// view is read under renderMu, so the last of several concurrent changes
// wins. Controllers tolerate Destroy before Start, so starting happens after
// the lock is released.
func (s *Shell) swap() (Controller, bool) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	view := s.env.State.View()
	if !s.env.State.PanelOpen() && view != state.ViewLogin {
		return nil, true
	}
	s.destroyActive()

	s.surface.ShowView(view)
	next, err := s.build(view)
	if err != nil {
		s.env.Logger.WithError(err).WithField("view", view.String()).Warning("can't build controller, falling back to dialogs")
		return nil, false
	}

	s.mu.Lock()
	s.active = next
	s.mu.Unlock()
	return next, true
}

func (s *Shell) build(view state.View) (Controller, error) {
	switch view {
	case state.ViewDialogs:
		return controllers.NewDialogsController(s.env, s.surface.DialogsView()), nil
	case state.ViewChat:
		return nilIfErr(controllers.NewChatController(s.env, s.surface.ChatView()))
	case state.ViewCreateGroup:
		return controllers.NewCreateGroupController(s.env, s.surface.GroupView()), nil
	case state.ViewAddMember:
		return nilIfErr(controllers.NewAddMemberController(s.env, s.surface.GroupView()))
	case state.ViewGroupInfo:
		return nilIfErr(controllers.NewGroupInfoController(s.env, s.surface.GroupView(), false))
	case state.ViewEditGroupInfo:
		return nilIfErr(controllers.NewGroupInfoController(s.env, s.surface.GroupView(), true))
	case state.ViewSettingsMain, state.ViewSettingsIgnoreList, state.ViewSettingsAppearance:
		return controllers.NewSettingsController(s.env, s.surface.SettingsView(), view), nil
	default:
		return nil, nil
	}
}

// nilIfErr keeps a failed constructor from leaking a typed nil into the
// Controller interface.
func nilIfErr[T Controller](c T, err error) (Controller, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Shell) TogglePanel() {
	s.env.State.SetPanelOpen(!s.env.State.PanelOpen())
}

func (s *Shell) OpenPanel() {
	s.env.State.SetPanelOpen(true)
}

func (s *Shell) ClosePanel() {
	s.env.State.SetPanelOpen(false)
}

// OpenChat shows chat, opening the panel first when it is closed.
func (s *Shell) OpenChat(chat models.Chat) {
	if !s.env.State.PanelOpen() {
		s.env.State.SetPanelOpen(true)
	}
	s.env.State.OpenChat(chat)
}

func (s *Shell) Active() Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActiveAs returns the live controller when it is a T.
func ActiveAs[T Controller](s *Shell) (T, bool) {
	c, ok := s.Active().(T)
	return c, ok
}
