package controllers

import (
	"context"
	"sync"

	"github.com/practice-sem-2/dm-service/internal/gateway"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/state"
)

type DialogItem struct {
	ChatID      string              `json:"chatId"`
	IsGroup     bool                `json:"isGroup"`
	Title       string              `json:"title"`
	PhotoURL    string              `json:"photoURL,omitempty"`
	LastMessage *models.LastMessage `json:"lastMessage,omitempty"`
	Unread      bool                `json:"unread"`
}

type DialogsView interface {
	RenderDialogs(items []DialogItem, sharing bool)
	RenderEmpty(sharing bool)
	ShowError(message string)
	Destroy()
}

// DialogsController shows the roster of chats with messages, newest first.
// In share mode picking a dialog sends the pending video there.
type DialogsController struct {
	env  *Env
	view DialogsView
	me   string

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	destroyed   bool
	chats       map[string]models.Chat
	unsubscribe gateway.Unsubscribe
}

func NewDialogsController(env *Env, view DialogsView) *DialogsController {
	ctx, cancel := context.WithCancel(context.Background())
	return &DialogsController{
		env:    env,
		view:   view,
		me:     env.Identity.CurrentUID(),
		ctx:    ctx,
		cancel: cancel,
		chats:  make(map[string]models.Chat),
	}
}

func (d *DialogsController) Start() {
	unsubscribe, err := d.env.Backend.SubscribeToRoster(d.onRoster)
	if err != nil {
		d.env.Logger.WithError(err).Error("can't subscribe to roster")
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.destroyed {
			d.view.ShowError(userMessage(err, "Could not load chats."))
		}
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		unsubscribe()
		return
	}
	d.unsubscribe = unsubscribe
}

func (d *DialogsController) onRoster(chats []models.Chat) {
	ignored := d.env.ignored(d.ctx)

	items := make([]DialogItem, 0, len(chats))
	visible := make(map[string]models.Chat, len(chats))
	for _, chat := range chats {
		item := DialogItem{
			ChatID:      chat.ID,
			IsGroup:     chat.IsGroup(),
			LastMessage: chat.LastMessage,
			Unread:      d.env.Unread.IsUnread(chat.ID),
		}

		if chat.IsGroup() {
			item.Title = chat.Name
			item.PhotoURL = chat.PhotoURL
		} else {
			partner, ok := chat.Partner(d.me)
			if !ok {
				continue
			}
			if _, skip := ignored[partner]; skip {
				continue
			}
			profile, err := d.env.Backend.GetUserProfile(d.ctx, partner)
			if err != nil {
				d.env.Logger.WithError(err).WithField("uid", partner).Warning("can't resolve dialog partner, omitting entry")
				continue
			}
			item.Title = profile.DisplayName
			item.PhotoURL = profile.PhotoURL
		}

		items = append(items, item)
		visible[chat.ID] = chat
	}

	sharing := d.env.State.ShareVideo() != nil

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.chats = visible
	if len(items) == 0 {
		d.view.RenderEmpty(sharing)
		return
	}
	d.view.RenderDialogs(items, sharing)
}

func (d *DialogsController) lookup(chatID string) (models.Chat, error) {
	d.mu.Lock()
	chat, ok := d.chats[chatID]
	d.mu.Unlock()
	if ok {
		return chat, nil
	}

	found, err := d.env.Backend.GetChat(d.ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	return *found, nil
}

// SelectDialog opens the chat. With a video pending it is sent to the chat
// first and share mode ends.
func (d *DialogsController) SelectDialog(chatID string) error {
	chat, err := d.lookup(chatID)
	if err != nil {
		d.env.Logger.WithError(err).WithField("chat_id", chatID).Error("can't open dialog")
		d.showError(userMessage(err, "Could not open chat."))
		return err
	}

	if video := d.env.State.ShareVideo(); video != nil {
		err = d.env.Backend.AppendMessage(d.ctx, chat.ID, models.MessagePayload{Video: video})
		if err != nil {
			d.env.Logger.WithError(err).WithField("chat_id", chatID).Error("can't share video")
			d.showError(userMessage(err, "Could not share video."))
			return err
		}
		d.env.State.ExitShareMode()
	}

	d.env.State.OpenChat(chat)
	return nil
}

// MyLink is the link other users follow to open a chat with the current user.
func (d *DialogsController) MyLink() string {
	return d.env.DirectLink(d.me)
}

func (d *DialogsController) OpenCreateGroup() {
	d.env.State.SetView(state.ViewCreateGroup)
}

func (d *DialogsController) OpenSettings() {
	d.env.State.SetView(state.ViewSettingsMain)
}

func (d *DialogsController) showError(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.destroyed {
		d.view.ShowError(message)
	}
}

func (d *DialogsController) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	d.mu.Unlock()

	d.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	d.view.Destroy()
}
