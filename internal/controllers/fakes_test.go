package controllers

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/practice-sem-2/dm-service/internal/gateway"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/state"
	"github.com/practice-sem-2/dm-service/internal/video"
	"github.com/sirupsen/logrus"
)

const (
	me    = "me"
	bob   = "bob"
	carol = "carol"
)

var fixedNow = time.UnixMilli(1700000000000).UTC()

type staticIdentity string

func (i staticIdentity) CurrentUID() string { return string(i) }

type recordingMarks struct {
	mu    sync.Mutex
	marks []string
}

func (m *recordingMarks) Mark(chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks = append(m.marks, chatID)
	return nil
}

func (m *recordingMarks) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marks)
}

type unreadSet map[string]bool

func (u unreadSet) IsUnread(chatID string) bool { return u[chatID] }

type memorySettings struct {
	current models.AppSettings
}

func (s *memorySettings) Get() models.AppSettings { return s.current }

func (s *memorySettings) SetNotificationStyle(style models.NotificationStyle) error {
	s.current.NotificationStyle = style
	return nil
}

type staticPage video.PageInfo

func (p staticPage) CurrentPage() video.PageInfo { return video.PageInfo(p) }

type staticResolver struct {
	video *models.Video
}

func (r staticResolver) Resolve(context.Context, video.PageInfo, bool) (*models.Video, bool) {
	if r.video == nil {
		return nil, false
	}
	v := *r.video
	return &v, true
}

type appendCall struct {
	chatID  string
	payload models.MessagePayload
}

// fakeBackend records calls and serves canned answers. Methods that a test
// does not configure fall through to the nil embedded interface and panic.
type fakeBackend struct {
	gateway.Backend

	mu sync.Mutex

	profiles map[string]models.Profile
	chats    map[string]models.Chat
	ignored  []string

	latest     gateway.Page
	latestErr  error
	before     []gateway.Page
	beforeGate chan struct{}
	cursors    []gateway.Cursor

	onAppend  func(call appendCall)
	appendErr error
	appended  []appendCall

	onBatch       func([]models.Message)
	after         time.Time
	subscribing   chan struct{}
	subscribeGate chan struct{}
	onRoster      func([]models.Chat)
	unsubscribed  int

	created  []models.GroupCreate
	invited  []string
	calls    []string
	chatSeq  int
	mutation error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		profiles: map[string]models.Profile{},
		chats:    map[string]models.Chat{},
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) GetUserProfile(_ context.Context, uid string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[uid]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return &p, nil
}

func (f *fakeBackend) GetChat(_ context.Context, chatID string) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[chatID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return &c, nil
}

func (f *fakeBackend) GetAllChats(context.Context) ([]models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Chat, 0, len(f.chats))
	for _, c := range f.chats {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeBackend) GetOrCreateChat(_ context.Context, peer string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if !c.IsGroup() && c.HasParticipant(peer) {
			return c.ID, nil
		}
	}
	f.chatSeq++
	id := "dm-" + peer
	f.chats[id] = models.Chat{ID: id, Type: models.ChatPrivate, Participants: models.PrivatePair(me, peer)}
	return id, nil
}

func (f *fakeBackend) FetchLatestMessages(context.Context, string, int) (gateway.Page, error) {
	return f.latest, f.latestErr
}

func (f *fakeBackend) FetchMessagesBefore(_ context.Context, _ string, cursor gateway.Cursor, _ int) (gateway.Page, error) {
	if f.beforeGate != nil {
		<-f.beforeGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if len(f.before) == 0 {
		return gateway.Page{}, nil
	}
	page := f.before[0]
	f.before = f.before[1:]
	return page, nil
}

func (f *fakeBackend) AppendMessage(_ context.Context, chatID string, payload models.MessagePayload) error {
	call := appendCall{chatID: chatID, payload: payload}
	if f.onAppend != nil {
		f.onAppend(call)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, call)
	return f.appendErr
}

func (f *fakeBackend) SubscribeToNewMessages(_ string, after time.Time, onBatch func([]models.Message)) (gateway.Unsubscribe, error) {
	if f.subscribing != nil {
		close(f.subscribing)
	}
	if f.subscribeGate != nil {
		<-f.subscribeGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after = after
	f.onBatch = onBatch
	return f.unsubscribe, nil
}

func (f *fakeBackend) SubscribeToRoster(onChange func([]models.Chat)) (gateway.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRoster = onChange
	return f.unsubscribe, nil
}

func (f *fakeBackend) unsubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed++
}

func (f *fakeBackend) deliver(batch ...models.Message) {
	f.mu.Lock()
	fn := f.onBatch
	f.mu.Unlock()
	fn(batch)
}

func (f *fakeBackend) CreateGroupChat(_ context.Context, group models.GroupCreate) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, group)
	id := "group-1"
	f.chats[id] = models.Chat{
		ID:           id,
		Type:         models.ChatGroup,
		Name:         group.Name,
		Creator:      me,
		Admins:       []string{me},
		Participants: append([]string{me}, group.Members...),
	}
	return id, nil
}

func (f *fakeBackend) InviteUsers(_ context.Context, chatID string, uids []string) error {
	f.record("invite:" + chatID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invited = append(f.invited, uids...)
	return nil
}

func (f *fakeBackend) groupCall(name, chatID, uid string) error {
	f.record(name + ":" + chatID + ":" + uid)
	return f.mutation
}

func (f *fakeBackend) RemoveMember(_ context.Context, chatID, uid string) error {
	return f.groupCall("remove", chatID, uid)
}

func (f *fakeBackend) CancelInvitation(_ context.Context, chatID, uid string) error {
	return f.groupCall("cancel", chatID, uid)
}

func (f *fakeBackend) PromoteToAdmin(_ context.Context, chatID, uid string) error {
	return f.groupCall("promote", chatID, uid)
}

func (f *fakeBackend) DemoteFromAdmin(_ context.Context, chatID, uid string) error {
	return f.groupCall("demote", chatID, uid)
}

func (f *fakeBackend) LeaveGroup(_ context.Context, chatID string) error {
	return f.groupCall("leave", chatID, me)
}

func (f *fakeBackend) DeleteGroup(_ context.Context, chatID string) error {
	return f.groupCall("delete", chatID, me)
}

func (f *fakeBackend) UpdateChatDetails(_ context.Context, chatID string, details models.ChatDetails) error {
	return f.groupCall("details", chatID, details.Name)
}

func (f *fakeBackend) GetIgnoreList(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ignored...), nil
}

func (f *fakeBackend) AddToIgnoreList(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignored = append(f.ignored, uid)
	return nil
}

func (f *fakeBackend) RemoveFromIgnoreList(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.ignored[:0]
	for _, id := range f.ignored {
		if id != uid {
			kept = append(kept, id)
		}
	}
	f.ignored = kept
	return nil
}

func newTestEnv(backend *fakeBackend) (*Env, *recordingMarks) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	marks := &recordingMarks{}
	return &Env{
		Backend:  backend,
		State:    state.New(),
		Identity: staticIdentity(me),
		Marks:    marks,
		Unread:   unreadSet{},
		Settings: &memorySettings{current: models.DefaultSettings()},
		Videos:   staticResolver{},
		Page:     staticPage{},
		Validate: validator.New(),
		Logger:   logger,
		SiteHost: "www.youtube.com",
		PageSize: 2,
		Now:      func() time.Time { return fixedNow },
	}, marks
}

func message(id, from string, at time.Time) models.Message {
	return models.Message{ID: id, ChatID: "dm", From: from, Timestamp: at, Text: id}
}

func ids(messages []models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}
