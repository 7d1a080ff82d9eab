package unread

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/practice-sem-2/dm-service/internal/gateway"
	"github.com/practice-sem-2/dm-service/internal/localstore"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/readmarks"
	"github.com/practice-sem-2/dm-service/internal/settings"
	"github.com/practice-sem-2/dm-service/internal/state"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const me = "me"

type fakeBackend struct {
	gateway.Backend
	mu           sync.Mutex
	onRoster     func([]models.Chat)
	ignored      []string
	unsubscribed int
}

func (f *fakeBackend) SubscribeToRoster(onChange func([]models.Chat)) (gateway.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRoster = onChange
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed++
	}, nil
}

func (f *fakeBackend) GetIgnoreList(context.Context) ([]string, error) {
	return f.ignored, nil
}

func (f *fakeBackend) emit(chats ...models.Chat) {
	f.mu.Lock()
	fn := f.onRoster
	f.mu.Unlock()
	fn(chats)
}

type fakeSession struct {
	uid       string
	listeners []func(*models.Profile)
}

func (s *fakeSession) CurrentUID() string { return s.uid }

func (s *fakeSession) OnAuthChange(fn func(*models.Profile)) func() {
	s.listeners = append(s.listeners, fn)
	return func() {}
}

func (s *fakeSession) signIn(uid string) {
	s.uid = uid
	for _, fn := range s.listeners {
		fn(&models.Profile{UID: uid})
	}
}

func (s *fakeSession) signOut() {
	s.uid = ""
	for _, fn := range s.listeners {
		fn(nil)
	}
}

type recordingSink struct {
	badges []Badge
}

func (r *recordingSink) ShowBadge(b Badge) { r.badges = append(r.badges, b) }

func (r *recordingSink) last() Badge { return r.badges[len(r.badges)-1] }

type env struct {
	backend *fakeBackend
	session *fakeSession
	state   *state.State
	marks   *readmarks.Store
	sink    *recordingSink
	tracker *Tracker
}

func newEnv(t *testing.T) *env {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	e := &env{
		backend: &fakeBackend{},
		session: &fakeSession{},
		state:   state.New(),
		marks:   readmarks.NewStore(localstore.NewMemory(), logger),
		sink:    &recordingSink{},
	}
	e.tracker = NewTracker(e.backend, e.marks, e.session, e.state,
		settings.NewService(localstore.NewMemory(), logger), e.sink, logger)
	e.tracker.Start()
	t.Cleanup(e.tracker.Stop)
	e.session.signIn(me)
	return e
}

func chat(id, from string, updated time.Time, participants ...string) models.Chat {
	return models.Chat{
		ID:           id,
		Type:         models.ChatPrivate,
		Participants: participants,
		UpdatedAt:    updated,
		LastMessage:  &models.LastMessage{From: from, Text: "hi", Timestamp: updated},
	}
}

func TestTracker_UnreadFromOthers(t *testing.T) {
	e := newEnv(t)
	now := time.Now()

	e.backend.emit(
		chat("a", "bob", now, me, "bob"),
		chat("b", me, now, me, "carol"),
	)

	assert.Equal(t, []string{"a"}, e.tracker.Unread(), "own last messages never count")
	assert.Equal(t, Badge{Visible: true, Style: models.NotificationCount, Text: "1"}, e.sink.last())
}

func TestTracker_IgnoredPartnersAreSkipped(t *testing.T) {
	e := newEnv(t)
	e.backend.ignored = []string{"bob"}

	group := chat("g", "bob", time.Now(), me, "bob", "carol")
	group.Type = models.ChatGroup
	e.backend.emit(chat("a", "bob", time.Now(), me, "bob"), group)

	assert.Equal(t, []string{"g"}, e.tracker.Unread())
}

func TestTracker_MarkedChatDisappearsOnNextRecompute(t *testing.T) {
	e := newEnv(t)
	roster := []models.Chat{chat("a", "bob", time.Now(), me, "bob")}

	e.backend.emit(roster...)
	require.True(t, e.tracker.IsUnread("a"))

	require.NoError(t, e.marks.Mark("a"))
	e.backend.emit(roster...)
	assert.False(t, e.tracker.IsUnread("a"), "updatedAt unchanged but marker is newer")
}

func TestTracker_OpenVisibleChatHealsItsMarker(t *testing.T) {
	e := newEnv(t)
	e.state.SetPanelOpen(true)
	e.state.OpenChat(models.Chat{ID: "a"})

	updated := time.Now().Add(time.Minute)
	e.backend.emit(chat("a", "bob", updated, me, "bob"))

	assert.Empty(t, e.tracker.Unread())
	mark, ok := e.marks.Get("a")
	require.True(t, ok)
	assert.True(t, mark.After(time.Now()), "marker advanced")
}

func TestTracker_OpenChatWithClosedPanelIsUnread(t *testing.T) {
	e := newEnv(t)
	e.state.OpenChat(models.Chat{ID: "a"})

	e.backend.emit(chat("a", "bob", time.Now().Add(time.Minute), me, "bob"))
	assert.True(t, e.tracker.IsUnread("a"))

	e.state.SetPanelOpen(true)
	assert.False(t, e.tracker.IsUnread("a"), "opening the panel on the chat marks it read")
	assert.False(t, e.sink.last().Visible)
}

func TestTracker_SignOutClears(t *testing.T) {
	e := newEnv(t)
	e.backend.emit(chat("a", "bob", time.Now(), me, "bob"))
	require.Len(t, e.tracker.Unread(), 1)

	e.session.signOut()
	assert.Empty(t, e.tracker.Unread())
	assert.Equal(t, 1, e.backend.unsubscribed)
	assert.False(t, e.sink.last().Visible)
}

func TestTracker_StaleEmissionAfterSignOut(t *testing.T) {
	e := newEnv(t)
	e.backend.mu.Lock()
	stale := e.backend.onRoster
	e.backend.mu.Unlock()

	e.session.signOut()
	e.session.signIn(me)
	stale([]models.Chat{chat("a", "bob", time.Now(), me, "bob")})

	assert.Empty(t, e.tracker.Unread())
}
