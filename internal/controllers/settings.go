package controllers

import (
	"context"
	"sync"

	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/state"
)

type SettingsScreen struct {
	View    string           `json:"view"`
	Ignored []models.Profile `json:"ignored,omitempty"`
	Style   string           `json:"style"`
}

type SettingsView interface {
	RenderSettings(screen SettingsScreen)
	ShowError(message string)
	Destroy()
}

// SettingsController drives the three settings screens: the menu, the
// ignore list and the badge appearance.
type SettingsController struct {
	env    *Env
	view   SettingsView
	screen state.View

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	destroyed bool
}

func NewSettingsController(env *Env, view SettingsView, screen state.View) *SettingsController {
	ctx, cancel := context.WithCancel(context.Background())
	return &SettingsController{
		env:    env,
		view:   view,
		screen: screen,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *SettingsController) Start() {
	screen := SettingsScreen{
		View:  s.screen.String(),
		Style: string(s.env.Settings.Get().NotificationStyle),
	}

	if s.screen == state.ViewSettingsIgnoreList {
		uids, err := s.env.Backend.GetIgnoreList(s.ctx)
		if err != nil {
			s.env.Logger.WithError(err).Error("can't load ignore list")
			s.render(func(view SettingsView) { view.ShowError(userMessage(err, "Could not load ignore list.")) })
			return
		}
		screen.Ignored = s.env.profiles(s.ctx, uids)
	}

	s.render(func(view SettingsView) { view.RenderSettings(screen) })
}

func (s *SettingsController) render(fn func(view SettingsView)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.destroyed {
		fn(s.view)
	}
}

// Unignore removes uid from the ignore list and shows the list again.
func (s *SettingsController) Unignore(uid string) error {
	if err := s.env.Backend.RemoveFromIgnoreList(s.ctx, uid); err != nil {
		s.env.Logger.WithError(err).WithField("uid", uid).Error("can't remove user from ignore list")
		s.render(func(view SettingsView) { view.ShowError(userMessage(err, "Could not update ignore list.")) })
		return err
	}
	s.Start()
	return nil
}

func (s *SettingsController) SetBadgeStyle(style models.NotificationStyle) error {
	if err := s.env.Settings.SetNotificationStyle(style); err != nil {
		s.env.Logger.WithError(err).WithField("style", style).Error("can't save badge style")
		s.render(func(view SettingsView) { view.ShowError("Could not save settings.") })
		return err
	}
	s.Start()
	return nil
}

func (s *SettingsController) Open(screen state.View) {
	s.env.State.SetView(screen)
}

func (s *SettingsController) Back() {
	if s.screen == state.ViewSettingsMain {
		s.env.State.SetView(state.ViewDialogs)
		return
	}
	s.env.State.SetView(state.ViewSettingsMain)
}

func (s *SettingsController) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()

	s.cancel()
	s.view.Destroy()
}
