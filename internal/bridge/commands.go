package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/practice-sem-2/dm-service/internal/controllers"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/shell"
	"github.com/practice-sem-2/dm-service/internal/state"
	"github.com/practice-sem-2/dm-service/internal/video"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrWrongView      = errors.New("command is not available in the current view")
)

type signInPayload struct {
	Token string `json:"token"`
}

type viewPayload struct {
	View string `json:"view"`
}

type chatPayload struct {
	ChatID string `json:"chatId"`
}

type textPayload struct {
	Text string `json:"text"`
}

type sharePayload struct {
	IncludeTimestamp bool `json:"includeTimestamp"`
}

type groupPayload struct {
	Name     string   `json:"name"`
	PhotoURL string   `json:"photoURL"`
	Members  []string `json:"members"`
}

type usersPayload struct {
	UIDs []string `json:"uids"`
}

type groupActionPayload struct {
	Action string `json:"action"`
	UID    string `json:"uid"`
}

type stylePayload struct {
	Style models.NotificationStyle `json:"style"`
}

type userPayload struct {
	UID string `json:"uid"`
}

type backer interface {
	Back()
}

func decode(cmd Command, v interface{}) error {
	if len(cmd.Payload) == 0 {
		return fmt.Errorf("%s: payload is required", cmd.Type)
	}
	if err := json.Unmarshal(cmd.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", cmd.Type, err)
	}
	return nil
}

func active[T shell.Controller](s *Server) (T, error) {
	c, ok := shell.ActiveAs[T](s.shell)
	if !ok {
		return c, ErrWrongView
	}
	return c, nil
}

// dispatch runs one overlay command. Controller failures are already shown to
// the user, so the returned error is for logging only.
func (s *Server) dispatch(cmd Command) error {
	ctx := context.Background()

	switch cmd.Type {
	case "sign_in":
		var p signInPayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		return s.signIn(ctx, p.Token)

	case "sign_out":
		s.auth.SignOut()
		return nil

	case "toggle_panel":
		s.shell.TogglePanel()
		return nil

	case "open_panel":
		s.shell.OpenPanel()
		return nil

	case "close_panel":
		s.shell.ClosePanel()
		return nil

	case "page_url":
		var p video.PageInfo
		if err := decode(cmd, &p); err != nil {
			return err
		}
		return s.pageChanged(ctx, p)

	case "ui_ready":
		return s.links.UIReady(ctx)

	case "set_view":
		var p viewPayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		v, ok := state.ParseView(p.View)
		if !ok {
			return fmt.Errorf("%w: view %q", ErrUnknownCommand, p.View)
		}
		s.env.State.SetView(v)
		return nil

	case "back":
		b, ok := s.shell.Active().(backer)
		if !ok {
			s.env.State.SetView(state.ViewDialogs)
			return nil
		}
		b.Back()
		return nil

	case "enter_share_mode":
		var p sharePayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		v, ok := s.env.Videos.Resolve(ctx, s.page.CurrentPage(), p.IncludeTimestamp)
		if !ok {
			s.ShowAlert("There is no video to share on this page.")
			return nil
		}
		s.env.State.EnterShareMode(*v)
		s.shell.OpenPanel()
		return nil

	case "exit_share_mode":
		s.env.State.ExitShareMode()
		return nil

	case "open_chat":
		var p chatPayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		d, err := active[*controllers.DialogsController](s)
		if err != nil {
			return err
		}
		return d.SelectDialog(p.ChatID)

	case "copy_link":
		d, err := active[*controllers.DialogsController](s)
		if err != nil {
			return err
		}
		s.broadcast(Frame{Type: FrameLink, Payload: map[string]string{"url": d.MyLink()}})
		return nil

	case "send_text":
		var p textPayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		c, err := active[*controllers.ChatController](s)
		if err != nil {
			return err
		}
		return c.SendText(p.Text)

	case "share_video":
		var p sharePayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		c, err := active[*controllers.ChatController](s)
		if err != nil {
			return err
		}
		return c.ShareVideo(p.IncludeTimestamp)

	case "load_older":
		c, err := active[*controllers.ChatController](s)
		if err != nil {
			return err
		}
		return c.LoadOlder()

	case "ignore_user":
		c, err := active[*controllers.ChatController](s)
		if err != nil {
			return err
		}
		return c.IgnorePartner()

	case "create_group":
		var p groupPayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		c, err := active[*controllers.CreateGroupController](s)
		if err != nil {
			return err
		}
		return c.Create(p.Name, p.Members)

	case "invite_users":
		var p usersPayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		c, err := active[*controllers.AddMemberController](s)
		if err != nil {
			return err
		}
		return c.Invite(p.UIDs)

	case "group_action":
		var p groupActionPayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		return s.groupAction(p)

	case "save_group":
		var p groupPayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		c, err := active[*controllers.GroupInfoController](s)
		if err != nil {
			return err
		}
		return c.Save(p.Name, p.PhotoURL)

	case "set_badge_style":
		var p stylePayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		c, err := active[*controllers.SettingsController](s)
		if err != nil {
			return err
		}
		return c.SetBadgeStyle(p.Style)

	case "remove_ignored":
		var p userPayload
		if err := decode(cmd, &p); err != nil {
			return err
		}
		c, err := active[*controllers.SettingsController](s)
		if err != nil {
			return err
		}
		return c.Unignore(p.UID)
	}

	s.broadcast(Frame{Type: FrameError, Payload: messagePayload{Message: "Unsupported command."}})
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
}

func (s *Server) signIn(ctx context.Context, token string) error {
	profile, err := s.auth.SignIn(token)
	if err != nil {
		s.ShowAlert("Sign-in failed.")
		return err
	}
	if err := s.env.Backend.SaveUserProfile(ctx, profile); err != nil {
		s.logger.WithError(err).WithField("uid", profile.UID).Warning("can't save user profile")
	}
	return nil
}

// pageChanged records the page and handles link parameters found in its URL.
func (s *Server) pageChanged(ctx context.Context, info video.PageInfo) error {
	stripped, err := s.links.Capture(info.URL)
	if err != nil {
		return err
	}
	if stripped != info.URL {
		info.URL = stripped
		s.broadcast(Frame{Type: FrameReplaceURL, Payload: map[string]string{"url": stripped}})
	}

	s.page.Set(info)
	return s.links.Process(ctx)
}

func (s *Server) groupAction(p groupActionPayload) error {
	c, err := active[*controllers.GroupInfoController](s)
	if err != nil {
		return err
	}

	switch p.Action {
	case "remove":
		return c.RemoveMember(p.UID)
	case "cancel_invitation":
		return c.CancelInvitation(p.UID)
	case "promote":
		return c.Promote(p.UID)
	case "demote":
		return c.Demote(p.UID)
	case "leave":
		return c.Leave()
	case "delete":
		return c.Delete()
	case "edit":
		c.Edit()
		return nil
	}
	return fmt.Errorf("%w: group action %q", ErrUnknownCommand, p.Action)
}
