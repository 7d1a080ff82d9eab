package controllers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/practice-sem-2/dm-service/internal/gateway"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/timeline"
	"github.com/sirupsen/logrus"
)

type ChatPhase int

const (
	ChatInitializing ChatPhase = iota
	ChatReady
	ChatLoadingOlder
	ChatSteady
	ChatDestroyed
)

type RenderMode string

const (
	RenderInitial RenderMode = "initial"
	RenderAppend  RenderMode = "append"
	RenderPrepend RenderMode = "prepend"
)

// Render is one update of the message list. AnchorID is the message that
// must stay in place after a prepend.
type Render struct {
	Mode     RenderMode      `json:"mode"`
	Items    []timeline.Item `json:"items"`
	AnchorID string          `json:"anchorId,omitempty"`
}

type ChatHeader struct {
	ChatID      string `json:"chatId"`
	Title       string `json:"title"`
	PhotoURL    string `json:"photoURL,omitempty"`
	PartnerUID  string `json:"partnerUid,omitempty"`
	IsGroup     bool   `json:"isGroup"`
	MemberCount int    `json:"memberCount,omitempty"`
	IsAdmin     bool   `json:"isAdmin,omitempty"`
}

type ChatView interface {
	ShowHeader(header ChatHeader)
	RenderMessages(render Render)
	ScrollToBottom()
	SetShareButtonEnabled(enabled bool)
	ShowError(message string)
	Destroy()
}

// ChatController owns the message history of the open chat: the initial
// page, older pages, the live tail and optimistic local echo of own sends.
type ChatController struct {
	env  *Env
	view ChatView
	chat models.Chat
	me   string

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	phase        ChatPhase
	timeline     *timeline.Timeline
	cursor       *gateway.Cursor
	loadingOlder bool
	unsubscribes []gateway.Unsubscribe
}

func NewChatController(env *Env, view ChatView) (*ChatController, error) {
	chat := env.State.ActiveChat()
	if chat == nil {
		return nil, ErrNoActiveChat
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ChatController{
		env:      env,
		view:     view,
		chat:     *chat,
		me:       env.Identity.CurrentUID(),
		ctx:      ctx,
		cancel:   cancel,
		timeline: timeline.New(time.Local),
	}, nil
}

func (c *ChatController) ChatID() string {
	return c.chat.ID
}

func (c *ChatController) Phase() ChatPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Messages returns a snapshot of the in-memory history, oldest first.
func (c *ChatController) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.Messages()
}

func (c *ChatController) alive() bool {
	return c.phase != ChatDestroyed
}

func (c *ChatController) log() logrus.FieldLogger {
	return c.env.Logger.WithField("chat_id", c.chat.ID)
}

// Start marks the chat read, shows its header, loads the newest page and
// attaches the live tail. It blocks on backend calls.
func (c *ChatController) Start() {
	c.markRead()
	c.showHeader()

	if !c.loadInitial() {
		return
	}
	c.beginLiveSubscription()
}

func (c *ChatController) markRead() {
	if err := c.env.Marks.Mark(c.chat.ID); err != nil {
		c.log().WithError(err).Warning("can't mark chat as read")
	}
}

func (c *ChatController) showHeader() {
	header := ChatHeader{
		ChatID:  c.chat.ID,
		IsGroup: c.chat.IsGroup(),
	}

	if c.chat.IsGroup() {
		header.Title = c.chat.Name
		header.PhotoURL = c.chat.PhotoURL
		header.MemberCount = len(c.chat.Participants)
		header.IsAdmin = c.chat.IsAdmin(c.me)
	} else if partner, ok := c.chat.Partner(c.me); ok {
		header.PartnerUID = partner
		header.Title = partner
		profile, err := c.env.Backend.GetUserProfile(c.ctx, partner)
		if err != nil {
			c.log().WithError(err).WithField("uid", partner).Warning("can't resolve chat partner")
		} else {
			header.Title = profile.DisplayName
			header.PhotoURL = profile.PhotoURL
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.alive() {
		c.view.ShowHeader(header)
	}
}

func (c *ChatController) loadInitial() bool {
	page, err := c.env.Backend.FetchLatestMessages(c.ctx, c.chat.ID, c.env.pageSize())

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive() {
		return false
	}
	if err != nil {
		c.log().WithError(err).Error("can't load messages")
		c.view.ShowError(userMessage(err, "Could not load messages."))
		return false
	}

	c.timeline.Append(page.Messages)
	c.cursor = page.Cursor
	c.phase = ChatReady
	c.view.RenderMessages(Render{Mode: RenderInitial, Items: c.timeline.Items()})
	c.view.ScrollToBottom()
	return true
}

// watermark is the timestamp of the newest loaded message, or now for an
// empty chat.
func (c *ChatController) watermark() time.Time {
	messages := c.timeline.Messages()
	if len(messages) == 0 {
		return c.env.now()
	}
	return messages[len(messages)-1].Timestamp
}

func (c *ChatController) beginLiveSubscription() {
	c.mu.Lock()
	after := c.watermark()
	c.mu.Unlock()

	unsubscribe, err := c.env.Backend.SubscribeToNewMessages(c.chat.ID, after, c.onLiveBatch)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log().WithError(err).Error("can't subscribe to new messages")
		if c.alive() {
			c.view.ShowError("Could not connect to the chat. New messages won't appear.")
		}
		return
	}
	if !c.alive() {
		unsubscribe()
		return
	}
	c.unsubscribes = append(c.unsubscribes, unsubscribe)
	if c.phase == ChatReady {
		c.phase = ChatSteady
	}
}

// onLiveBatch appends messages authored by others. Own messages were already
// rendered optimistically.
func (c *ChatController) onLiveBatch(batch []models.Message) {
	c.mu.Lock()
	if !c.alive() {
		c.mu.Unlock()
		return
	}

	incoming := make([]models.Message, 0, len(batch))
	for _, msg := range batch {
		if msg.From != c.me {
			incoming = append(incoming, msg)
		}
	}
	if len(incoming) == 0 {
		c.mu.Unlock()
		return
	}

	c.timeline.Append(incoming)
	c.view.RenderMessages(Render{Mode: RenderAppend, Items: c.timeline.Items()})
	c.mu.Unlock()

	c.markRead()
}

func (c *ChatController) addOptimistic(payload models.MessagePayload) bool {
	msg := models.NewOptimisticMessage(c.chat.ID, c.me, c.env.now(), payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive() {
		return false
	}
	c.timeline.Append([]models.Message{msg})
	c.view.RenderMessages(Render{Mode: RenderAppend, Items: c.timeline.Items()})
	c.view.ScrollToBottom()
	return true
}

func (c *ChatController) showError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.alive() {
		c.view.ShowError(message)
	}
}

// send renders payload right away and then writes it. A failed write is
// reported but the rendered message stays.
func (c *ChatController) send(payload models.MessagePayload, failure string) error {
	if !c.addOptimistic(payload) {
		return nil
	}

	if err := c.env.Backend.AppendMessage(c.ctx, c.chat.ID, payload); err != nil {
		c.log().WithError(err).Error("can't send message")
		c.showError(userMessage(err, failure))
		return err
	}
	return nil
}

// SendText sends text as a message. Blank input is ignored.
func (c *ChatController) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	payload := models.MessagePayload{Text: text}
	if err := c.env.Validate.Struct(payload); err != nil {
		c.showError(fmt.Sprintf("Messages must be 1 to %d characters long.", models.MaxTextLength))
		return fmt.Errorf("%w: %v", gateway.ErrValidation, err)
	}
	return c.send(payload, "Could not send message.")
}

// ShareVideo sends the video of the current host page. It does nothing when
// the page shows no video.
func (c *ChatController) ShareVideo(includeTimestamp bool) error {
	c.setShareButton(false)
	defer c.setShareButton(true)

	v, ok := c.env.Videos.Resolve(c.ctx, c.env.Page.CurrentPage(), includeTimestamp)
	if !ok {
		return nil
	}
	return c.send(models.MessagePayload{Video: v}, "Could not share video.")
}

func (c *ChatController) setShareButton(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.alive() {
		c.view.SetShareButtonEnabled(enabled)
	}
}

// LoadOlder prepends the page before the oldest loaded message. Calls made
// while one is in flight return immediately. An empty page disables further
// loads for good.
func (c *ChatController) LoadOlder() error {
	c.mu.Lock()
	if !c.alive() || c.loadingOlder || c.cursor == nil || c.phase == ChatInitializing {
		c.mu.Unlock()
		return nil
	}
	c.loadingOlder = true
	previous := c.phase
	c.phase = ChatLoadingOlder
	cursor := *c.cursor
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loadingOlder = false
		if c.phase == ChatLoadingOlder {
			c.phase = previous
			if len(c.unsubscribes) > 0 {
				c.phase = ChatSteady
			}
		}
		c.mu.Unlock()
	}()

	page, err := c.env.Backend.FetchMessagesBefore(c.ctx, c.chat.ID, cursor, c.env.pageSize())
	if err != nil {
		c.log().WithError(err).Error("can't load older messages")
		c.showError(userMessage(err, "Could not load older messages."))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive() {
		return nil
	}
	if len(page.Messages) == 0 {
		c.cursor = nil
		return nil
	}

	anchor := c.timeline.Prepend(page.Messages)
	c.cursor = page.Cursor
	c.view.RenderMessages(Render{Mode: RenderPrepend, Items: c.timeline.Items(), AnchorID: anchor})
	return nil
}

// CanLoadOlder reports whether older history may still exist.
func (c *ChatController) CanLoadOlder() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor != nil
}

// IgnorePartner blocks the partner of a private chat and leaves the chat.
func (c *ChatController) IgnorePartner() error {
	partner, ok := c.chat.Partner(c.me)
	if c.chat.IsGroup() || !ok {
		return fmt.Errorf("%w: only private chats have a partner", gateway.ErrValidation)
	}

	if err := c.env.Backend.AddToIgnoreList(c.ctx, partner); err != nil {
		c.log().WithError(err).Error("can't ignore user")
		c.showError(userMessage(err, "Could not ignore user."))
		return err
	}
	c.env.State.CloseChat()
	return nil
}

// Back closes the chat and returns to the chat list.
func (c *ChatController) Back() {
	c.env.State.CloseChat()
}

// Destroy detaches the live tail and releases the view. Safe to call more
// than once and before Start has finished.
func (c *ChatController) Destroy() {
	c.mu.Lock()
	if c.phase == ChatDestroyed {
		c.mu.Unlock()
		return
	}
	c.phase = ChatDestroyed
	unsubscribes := c.unsubscribes
	c.unsubscribes = nil
	c.mu.Unlock()

	c.cancel()
	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
	c.view.Destroy()
}
