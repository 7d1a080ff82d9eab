package controllers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/practice-sem-2/dm-service/internal/gateway"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/state"
)

type GroupInfo struct {
	Chat         models.Chat      `json:"chat"`
	Participants []models.Profile `json:"participants"`
	Invited      []models.Profile `json:"invited"`
	Editable     bool             `json:"editable"`
	Editing      bool             `json:"editing"`
}

type GroupView interface {
	RenderCandidates(users []models.Profile)
	RenderGroupInfo(info GroupInfo)
	ShowError(message string)
	Destroy()
}

// groupBase holds what the group screens share: a cancellable context, the
// destroyed flag and guarded access to the view.
type groupBase struct {
	env  *Env
	view GroupView
	me   string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	destroyed bool
}

func newGroupBase(env *Env, view GroupView) groupBase {
	ctx, cancel := context.WithCancel(context.Background())
	return groupBase{
		env:    env,
		view:   view,
		me:     env.Identity.CurrentUID(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (g *groupBase) render(fn func(view GroupView)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.destroyed {
		fn(g.view)
	}
}

func (g *groupBase) fail(err error, message, fallback string) error {
	g.env.Logger.WithError(err).Error(message)
	g.render(func(view GroupView) { view.ShowError(userMessage(err, fallback)) })
	return err
}

func (g *groupBase) invalid(message string) error {
	g.render(func(view GroupView) { view.ShowError(message) })
	return fmt.Errorf("%w: %s", gateway.ErrValidation, strings.ToLower(strings.TrimSuffix(message, ".")))
}

func (g *groupBase) Destroy() {
	g.mu.Lock()
	if g.destroyed {
		g.mu.Unlock()
		return
	}
	g.destroyed = true
	g.mu.Unlock()

	g.cancel()
	g.view.Destroy()
}

// contacts lists the partners of the current user's private chats that pass
// keep, sorted by display name.
func (g *groupBase) contacts(keep func(uid string) bool) ([]models.Profile, error) {
	chats, err := g.env.Backend.GetAllChats(g.ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var uids []string
	for _, chat := range chats {
		if chat.IsGroup() {
			continue
		}
		partner, ok := chat.Partner(g.me)
		if !ok || !keep(partner) {
			continue
		}
		if _, dup := seen[partner]; dup {
			continue
		}
		seen[partner] = struct{}{}
		uids = append(uids, partner)
	}

	users := g.env.profiles(g.ctx, uids)
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].DisplayName < users[j].DisplayName
	})
	return users, nil
}

type CreateGroupController struct {
	groupBase
}

func NewCreateGroupController(env *Env, view GroupView) *CreateGroupController {
	return &CreateGroupController{groupBase: newGroupBase(env, view)}
}

// Start lists the contacts that can be added to a new group.
func (c *CreateGroupController) Start() {
	ignored := c.env.ignored(c.ctx)
	users, err := c.contacts(func(uid string) bool {
		_, skip := ignored[uid]
		return !skip
	})
	if err != nil {
		_ = c.fail(err, "can't load contacts", "Could not load contacts.")
		return
	}
	c.render(func(view GroupView) { view.RenderCandidates(users) })
}

// Create makes a group of the current user and members and opens it.
func (c *CreateGroupController) Create(name string, members []string) error {
	group := models.GroupCreate{Name: strings.TrimSpace(name), Members: members}
	if group.Name == "" {
		return c.invalid("Group name cannot be empty.")
	}
	if len(group.Members) == 0 {
		return c.invalid("Select at least one member.")
	}
	if err := c.env.Validate.Struct(group); err != nil {
		return c.invalid("Please check the group details.")
	}

	chatID, err := c.env.Backend.CreateGroupChat(c.ctx, group)
	if err != nil {
		return c.fail(err, "can't create group", "Could not create group.")
	}

	chat, err := c.env.Backend.GetChat(c.ctx, chatID)
	if err != nil {
		return c.fail(err, "can't load created group", "Could not open group.")
	}
	c.env.State.OpenChat(*chat)
	return nil
}

func (c *CreateGroupController) Back() {
	c.env.State.SetView(state.ViewDialogs)
}

// AddMemberController invites contacts into the open group. Every invitee
// gets the invitation link in a private chat.
type AddMemberController struct {
	groupBase
	chat models.Chat
}

func NewAddMemberController(env *Env, view GroupView) (*AddMemberController, error) {
	chat := env.State.ActiveChat()
	if chat == nil || !chat.IsGroup() {
		return nil, ErrNoActiveChat
	}
	return &AddMemberController{groupBase: newGroupBase(env, view), chat: *chat}, nil
}

// Start lists contacts that are neither members, invited nor ignored.
func (a *AddMemberController) Start() {
	ignored := a.env.ignored(a.ctx)
	users, err := a.contacts(func(uid string) bool {
		_, skip := ignored[uid]
		return !skip && !a.chat.HasParticipant(uid) && !a.chat.IsInvited(uid)
	})
	if err != nil {
		_ = a.fail(err, "can't load contacts", "Could not load contacts.")
		return
	}
	a.render(func(view GroupView) { view.RenderCandidates(users) })
}

func (a *AddMemberController) Invite(uids []string) error {
	if len(uids) == 0 {
		return a.invalid("Select at least one user.")
	}

	link := a.env.InvitationLink(a.chat.ID)
	for _, uid := range uids {
		chatID, err := a.env.Backend.GetOrCreateChat(a.ctx, uid)
		if err != nil {
			return a.fail(err, "can't open chat with invitee", "Could not send invitation.")
		}
		err = a.env.Backend.AppendMessage(a.ctx, chatID, models.MessagePayload{Text: link})
		if err != nil {
			return a.fail(err, "can't send invitation link", "Could not send invitation.")
		}
	}

	if err := a.env.Backend.InviteUsers(a.ctx, a.chat.ID, uids); err != nil {
		return a.fail(err, "can't invite users", "Could not invite users.")
	}

	a.env.State.UpdateActiveChat(func(chat *models.Chat) {
		if chat.ID != a.chat.ID {
			return
		}
		for _, uid := range uids {
			if !chat.IsInvited(uid) {
				chat.Invited = append(chat.Invited, uid)
			}
		}
	})
	a.env.State.SetView(state.ViewChat)
	return nil
}

func (a *AddMemberController) Back() {
	a.env.State.SetView(state.ViewChat)
}

// GroupInfoController shows members and invitations of the open group and
// runs the admin actions on them. With editing set it shows the edit form.
type GroupInfoController struct {
	groupBase
	editing bool

	chatMu sync.Mutex
	chat   models.Chat
}

func NewGroupInfoController(env *Env, view GroupView, editing bool) (*GroupInfoController, error) {
	chat := env.State.ActiveChat()
	if chat == nil || !chat.IsGroup() {
		return nil, ErrNoActiveChat
	}
	return &GroupInfoController{groupBase: newGroupBase(env, view), chat: *chat, editing: editing}, nil
}

func (g *GroupInfoController) current() models.Chat {
	g.chatMu.Lock()
	defer g.chatMu.Unlock()
	return g.chat
}

func (g *GroupInfoController) Start() {
	g.refresh(g.current())
}

func (g *GroupInfoController) refresh(chat models.Chat) {
	info := GroupInfo{
		Chat:         chat,
		Participants: g.env.profiles(g.ctx, chat.Participants),
		Invited:      g.env.profiles(g.ctx, chat.Invited),
		Editable:     chat.IsAdmin(g.me),
		Editing:      g.editing,
	}
	g.render(func(view GroupView) { view.RenderGroupInfo(info) })
}

// reload fetches the group after a mutation and shares it with the state.
func (g *GroupInfoController) reload() error {
	chat, err := g.env.Backend.GetChat(g.ctx, g.current().ID)
	if err != nil {
		return g.fail(err, "can't reload group", "Could not load group.")
	}

	g.chatMu.Lock()
	g.chat = *chat
	g.chatMu.Unlock()

	g.env.State.UpdateActiveChat(func(active *models.Chat) {
		if active.ID == chat.ID {
			*active = *chat
		}
	})
	g.refresh(*chat)
	return nil
}

func (g *GroupInfoController) mutate(op func(ctx context.Context, chatID string) error, message, fallback string) error {
	if err := op(g.ctx, g.current().ID); err != nil {
		return g.fail(err, message, fallback)
	}
	return g.reload()
}

func (g *GroupInfoController) RemoveMember(uid string) error {
	return g.mutate(func(ctx context.Context, chatID string) error {
		return g.env.Backend.RemoveMember(ctx, chatID, uid)
	}, "can't remove member", "Could not remove member.")
}

func (g *GroupInfoController) CancelInvitation(uid string) error {
	return g.mutate(func(ctx context.Context, chatID string) error {
		return g.env.Backend.CancelInvitation(ctx, chatID, uid)
	}, "can't cancel invitation", "Could not cancel invitation.")
}

func (g *GroupInfoController) Promote(uid string) error {
	return g.mutate(func(ctx context.Context, chatID string) error {
		return g.env.Backend.PromoteToAdmin(ctx, chatID, uid)
	}, "can't promote member", "Could not promote member.")
}

func (g *GroupInfoController) Demote(uid string) error {
	return g.mutate(func(ctx context.Context, chatID string) error {
		return g.env.Backend.DemoteFromAdmin(ctx, chatID, uid)
	}, "can't demote admin", "Could not demote admin.")
}

// Save applies new group details and returns to the chat.
func (g *GroupInfoController) Save(name, photoURL string) error {
	details := models.ChatDetails{Name: strings.TrimSpace(name), PhotoURL: strings.TrimSpace(photoURL)}
	if details.Name == "" {
		return g.invalid("Group name cannot be empty.")
	}
	if err := g.env.Validate.Struct(details); err != nil {
		return g.invalid("Please check the group details.")
	}

	chatID := g.current().ID
	if err := g.env.Backend.UpdateChatDetails(g.ctx, chatID, details); err != nil {
		return g.fail(err, "can't update group", "Could not save changes.")
	}

	g.env.State.UpdateActiveChat(func(chat *models.Chat) {
		if chat.ID == chatID {
			chat.Name = details.Name
			chat.PhotoURL = details.PhotoURL
		}
	})
	g.env.State.SetView(state.ViewChat)
	return nil
}

func (g *GroupInfoController) Leave() error {
	if err := g.env.Backend.LeaveGroup(g.ctx, g.current().ID); err != nil {
		return g.fail(err, "can't leave group", "Could not leave group.")
	}
	g.env.State.CloseChat()
	return nil
}

func (g *GroupInfoController) Delete() error {
	if err := g.env.Backend.DeleteGroup(g.ctx, g.current().ID); err != nil {
		return g.fail(err, "can't delete group", "Could not delete group.")
	}
	g.env.State.CloseChat()
	return nil
}

func (g *GroupInfoController) Edit() {
	g.env.State.SetView(state.ViewEditGroupInfo)
}

func (g *GroupInfoController) Back() {
	if g.editing {
		g.env.State.SetView(state.ViewGroupInfo)
		return
	}
	g.env.State.SetView(state.ViewChat)
}
