package unread

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/practice-sem-2/dm-service/internal/gateway"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/state"
	"github.com/sirupsen/logrus"
)

type ReadMarks interface {
	Get(chatID string) (time.Time, bool)
	Mark(chatID string) error
}

type Session interface {
	CurrentUID() string
	OnAuthChange(fn func(user *models.Profile)) func()
}

type Settings interface {
	Get() models.AppSettings
	OnChange(fn func(models.AppSettings)) func()
}

type BadgeSink interface {
	ShowBadge(badge Badge)
}

// Tracker derives the set of chats with unseen activity from the live roster
// and the read markers, and keeps the toggle badge in sync with it.
type Tracker struct {
	mu          sync.Mutex
	backend     gateway.Backend
	marks       ReadMarks
	session     Session
	state       *state.State
	settings    Settings
	sink        BadgeSink
	logger      logrus.FieldLogger
	unread      map[string]struct{}
	unsubscribe gateway.Unsubscribe
	generation  int
	disposers   []func()
}

func NewTracker(
	b gateway.Backend,
	marks ReadMarks,
	session Session,
	st *state.State,
	settings Settings,
	sink BadgeSink,
	logger logrus.FieldLogger,
) *Tracker {
	return &Tracker{
		backend:  b,
		marks:    marks,
		session:  session,
		state:    st,
		settings: settings,
		sink:     sink,
		logger:   logger,
		unread:   make(map[string]struct{}),
	}
}

// Start wires the tracker to auth, view, panel and settings changes. It
// begins listening right away when a user is already signed in.
func (t *Tracker) Start() {
	t.disposers = append(t.disposers,
		t.session.OnAuthChange(func(user *models.Profile) {
			if user != nil {
				t.startListening()
			} else {
				t.stopListening()
			}
		}),
		t.state.OnViewChange(func(view state.View) {
			t.markOpenChatRead(view, t.state.PanelOpen())
		}),
		t.state.OnPanelChange(func(open bool) {
			t.markOpenChatRead(t.state.View(), open)
		}),
		t.settings.OnChange(func(models.AppSettings) {
			t.refreshBadge()
		}),
	)

	if t.session.CurrentUID() != "" {
		t.startListening()
	}
}

// Stop detaches every listener and clears the unread set.
func (t *Tracker) Stop() {
	for _, dispose := range t.disposers {
		dispose()
	}
	t.disposers = nil
	t.stopListening()
}

func (t *Tracker) startListening() {
	t.stopListening()

	t.mu.Lock()
	generation := t.generation
	t.mu.Unlock()

	unsubscribe, err := t.backend.SubscribeToRoster(func(chats []models.Chat) {
		t.process(generation, chats)
	})
	if err != nil {
		t.logger.WithError(err).Error("can't subscribe to roster")
		return
	}

	t.mu.Lock()
	t.unsubscribe = unsubscribe
	t.mu.Unlock()
}

func (t *Tracker) stopListening() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.generation++
	t.unread = make(map[string]struct{})
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	t.refreshBadge()
}

func (t *Tracker) markOpenChatRead(view state.View, panelOpen bool) {
	chat := t.state.ActiveChat()
	if view != state.ViewChat || chat == nil || !panelOpen {
		return
	}
	t.MarkRead(chat.ID)
}

// MarkRead advances the read marker of chatID and drops it from the set.
func (t *Tracker) MarkRead(chatID string) {
	if err := t.marks.Mark(chatID); err != nil {
		t.logger.WithError(err).WithField("chat_id", chatID).Error("can't mark chat as read")
	}

	t.mu.Lock()
	_, wasUnread := t.unread[chatID]
	delete(t.unread, chatID)
	t.mu.Unlock()

	if wasUnread {
		t.refreshBadge()
	}
}

func ignoredPartner(chat *models.Chat, me string, ignored map[string]struct{}) bool {
	if chat.IsGroup() {
		return false
	}
	partner, ok := chat.Partner(me)
	if !ok {
		return true
	}
	_, isIgnored := ignored[partner]
	return isIgnored
}

// process recomputes the whole set from one roster emission. Emissions from
// a feed that was already stopped are dropped.
func (t *Tracker) process(generation int, chats []models.Chat) {
	me := t.session.CurrentUID()
	if me == "" {
		return
	}

	ignored := make(map[string]struct{})
	uids, err := t.backend.GetIgnoreList(context.Background())
	if err != nil {
		t.logger.WithError(err).Warning("can't load ignore list, nobody is filtered")
	}
	for _, uid := range uids {
		ignored[uid] = struct{}{}
	}

	active := t.state.ActiveChat()
	visible := t.state.PanelOpen()

	next := make(map[string]struct{})
	for i := range chats {
		chat := &chats[i]
		if chat.LastMessage != nil && chat.LastMessage.From == me {
			continue
		}
		if ignoredPartner(chat, me, ignored) {
			continue
		}

		lastRead, _ := t.marks.Get(chat.ID)
		if !chat.UpdatedAt.After(lastRead) {
			continue
		}

		if active == nil || active.ID != chat.ID || !visible {
			next[chat.ID] = struct{}{}
		} else if err := t.marks.Mark(chat.ID); err != nil {
			t.logger.WithError(err).WithField("chat_id", chat.ID).Error("can't mark chat as read")
		}
	}

	t.mu.Lock()
	if generation != t.generation {
		t.mu.Unlock()
		return
	}
	t.unread = next
	t.mu.Unlock()
	t.refreshBadge()
}

// Unread returns the ids of unread chats, sorted.
func (t *Tracker) Unread() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.unread))
	for id := range t.unread {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) IsUnread(chatID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.unread[chatID]
	return ok
}

func (t *Tracker) Badge() Badge {
	t.mu.Lock()
	count := len(t.unread)
	t.mu.Unlock()
	return ComputeBadge(count, t.settings.Get().NotificationStyle)
}

func (t *Tracker) refreshBadge() {
	t.sink.ShowBadge(t.Badge())
}
