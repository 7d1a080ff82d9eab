package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/practice-sem-2/dm-service/internal/auth"
	"github.com/practice-sem-2/dm-service/internal/controllers"
	"github.com/practice-sem-2/dm-service/internal/deeplink"
	"github.com/practice-sem-2/dm-service/internal/gateway"
	"github.com/practice-sem-2/dm-service/internal/localstore"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/settings"
	"github.com/practice-sem-2/dm-service/internal/shell"
	"github.com/practice-sem-2/dm-service/internal/state"
	"github.com/practice-sem-2/dm-service/internal/unread"
	"github.com/practice-sem-2/dm-service/internal/video"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("bridge-test-secret")

type noMarks struct{}

func (noMarks) Mark(string) error { return nil }

type noUnread struct{}

func (noUnread) IsUnread(string) bool { return false }

type noVideo struct{}

func (noVideo) Resolve(context.Context, video.PageInfo, bool) (*models.Video, bool) {
	return nil, false
}

type fakeBackend struct {
	gateway.Backend
	mu    sync.Mutex
	saved []string
}

func (f *fakeBackend) SaveUserProfile(_ context.Context, profile *models.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, profile.UID)
	return nil
}

func (f *fakeBackend) savedProfiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.saved...)
}

func (f *fakeBackend) SubscribeToRoster(onChange func([]models.Chat)) (gateway.Unsubscribe, error) {
	onChange(nil)
	return func() {}, nil
}

func (f *fakeBackend) GetIgnoreList(context.Context) ([]string, error) {
	return nil, nil
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*Server, *fakeBackend, *websocket.Conn) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	backend := &fakeBackend{}
	session := auth.NewSession(secret, logger)
	page := &Page{}
	env := &controllers.Env{
		Backend:  backend,
		State:    state.New(),
		Identity: session,
		Marks:    noMarks{},
		Unread:   noUnread{},
		Settings: settings.NewService(localstore.NewMemory(), logger),
		Videos:   noVideo{},
		Page:     page,
		Validate: validator.New(),
		Logger:   logger,
		SiteHost: "www.youtube.com",
	}

	srv := NewServer(env, page, session, nil, logger)
	sh := shell.New(env, srv, session)
	links := deeplink.NewHandler(backend, localstore.NewMemory(), session, sh.OpenChat, srv.ShowAlert, logger)
	srv.Attach(sh, links)
	sh.Mount()
	t.Cleanup(sh.Unmount)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, backend, conn
}

// readUntil skips frames until one of frameType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame received
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == frameType {
			return frame
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, cmdType string, payload interface{}) {
	t.Helper()
	cmd := map[string]interface{}{"type": cmdType}
	if payload != nil {
		cmd["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(cmd))
}

func token(t *testing.T, uid string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Name:             "Me",
		RegisteredClaims: jwt.RegisteredClaims{Subject: uid},
	}).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestServer_SyncOnConnect(t *testing.T) {
	_, _, conn := newTestServer(t)

	frame := readUntil(t, conn, FrameView)
	assert.JSONEq(t, `{"view":"login"}`, string(frame.Payload))
	frame = readUntil(t, conn, FrameBadge)
	assert.JSONEq(t, `{"visible":false,"style":""}`, string(frame.Payload))
}

func TestServer_TogglePanel(t *testing.T) {
	_, _, conn := newTestServer(t)
	readUntil(t, conn, FrameBadge)

	send(t, conn, "toggle_panel", nil)

	frame := readUntil(t, conn, FramePanel)
	assert.JSONEq(t, `{"open":true}`, string(frame.Payload))
	frame = readUntil(t, conn, FrameIcon)
	assert.JSONEq(t, `{"filled":true}`, string(frame.Payload))
}

func TestServer_SignInShowsDialogs(t *testing.T) {
	_, backend, conn := newTestServer(t)
	readUntil(t, conn, FrameBadge)
	send(t, conn, "open_panel", nil)
	readUntil(t, conn, FramePanel)

	send(t, conn, "sign_in", map[string]string{"token": token(t, "me")})

	frame := readUntil(t, conn, FrameView)
	assert.JSONEq(t, `{"view":"dialogs"}`, string(frame.Payload))
	frame = readUntil(t, conn, FrameDialogs)
	assert.JSONEq(t, `{"items":[],"sharing":false}`, string(frame.Payload))
	assert.Eventually(t, func() bool {
		return len(backend.savedProfiles()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestServer_BadTokenAlerts(t *testing.T) {
	_, _, conn := newTestServer(t)
	readUntil(t, conn, FrameBadge)

	send(t, conn, "sign_in", map[string]string{"token": "garbage"})

	frame := readUntil(t, conn, FrameAlert)
	assert.JSONEq(t, `{"message":"Sign-in failed."}`, string(frame.Payload))
}

func TestServer_UnknownCommand(t *testing.T) {
	_, _, conn := newTestServer(t)
	readUntil(t, conn, FrameBadge)

	send(t, conn, "launch_rockets", nil)

	frame := readUntil(t, conn, FrameError)
	assert.JSONEq(t, `{"message":"Unsupported command."}`, string(frame.Payload))
}

func TestServer_PageURLStripsLink(t *testing.T) {
	srv, _, conn := newTestServer(t)
	readUntil(t, conn, FrameBadge)

	send(t, conn, "page_url", map[string]string{"url": "https://www.youtube.com/watch?v=abcdefghijk&dm_user=bob"})

	frame := readUntil(t, conn, FrameReplaceURL)
	assert.JSONEq(t, `{"url":"https://www.youtube.com/watch?v=abcdefghijk"}`, string(frame.Payload))
	assert.Equal(t, "https://www.youtube.com/watch?v=abcdefghijk", srv.page.CurrentPage().URL)
}

func TestServer_ChatCommandOutsideChat(t *testing.T) {
	srv, _, _ := newTestServer(t)

	err := srv.dispatch(Command{Type: "load_older"})
	assert.ErrorIs(t, err, ErrWrongView)

	err = srv.dispatch(Command{Type: "send_text"})
	assert.Error(t, err, "payload is required")
}

func TestServer_CheckOrigin(t *testing.T) {
	srv := NewServer(&controllers.Env{}, &Page{}, nil, []string{"https://www.youtube.com"}, logrus.New())

	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, srv.checkOrigin(request("")))
	assert.True(t, srv.checkOrigin(request("https://WWW.youtube.com")))
	assert.False(t, srv.checkOrigin(request("https://evil.example.com")))
	assert.False(t, srv.checkOrigin(request("not a url")))
}

func TestView_DestroyedViewIsSilent(t *testing.T) {
	srv := NewServer(&controllers.Env{}, &Page{}, nil, nil, logrus.New())
	c := &client{id: "c1", send: make(chan []byte, 4)}
	srv.clients[c.id] = c

	v := srv.ChatView()
	v.ShowError("first")
	v.Destroy()
	v.ShowError("second")

	require.Len(t, c.send, 1)
	assert.JSONEq(t, `{"type":"error","payload":{"message":"first"}}`, string(<-c.send))
}

func TestServer_BadgeIsRemembered(t *testing.T) {
	srv := NewServer(&controllers.Env{}, &Page{}, nil, nil, logrus.New())

	srv.ShowBadge(unread.Badge{Visible: true, Style: models.NotificationCount, Text: "3"})

	assert.Equal(t, "3", srv.badge.Text)
}
