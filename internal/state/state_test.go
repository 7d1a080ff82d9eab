package state

import (
	"testing"

	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestState_SetViewCompareAndNotify(t *testing.T) {
	s := New()
	var seen []View
	s.OnViewChange(func(v View) { seen = append(seen, v) })

	s.SetView(ViewDialogs)
	s.SetView(ViewDialogs)
	s.SetView(ViewSettingsMain)

	assert.Equal(t, []View{ViewDialogs, ViewSettingsMain}, seen)
}

func TestState_ListenersInSubscriptionOrder(t *testing.T) {
	s := New()
	var order []string
	s.OnPanelChange(func(bool) { order = append(order, "first") })
	s.OnPanelChange(func(bool) { order = append(order, "second") })
	s.OnPanelChange(func(open bool) {
		assert.True(t, s.PanelOpen(), "mutation is visible to listeners")
		order = append(order, "third")
	})

	s.SetPanelOpen(true)
	s.SetPanelOpen(true)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestState_Disposers(t *testing.T) {
	s := New()
	views, panels := 0, 0
	disposeView := s.OnViewChange(func(View) { views++ })
	disposePanel := s.OnPanelChange(func(bool) { panels++ })

	disposeView()
	disposePanel()
	disposeView()

	s.SetView(ViewDialogs)
	s.SetPanelOpen(true)
	assert.Zero(t, views)
	assert.Zero(t, panels)
}

func TestState_ListenerMayDisposeDuringNotify(t *testing.T) {
	s := New()
	calls := 0
	var dispose func()
	dispose = s.OnViewChange(func(View) {
		calls++
		dispose()
	})
	s.OnViewChange(func(View) { calls++ })

	s.SetView(ViewDialogs)
	s.SetView(ViewChat)
	assert.Equal(t, 3, calls)
}

func TestState_OpenAndCloseChat(t *testing.T) {
	s := New()
	var seen []View
	s.OnViewChange(func(v View) { seen = append(seen, v) })

	s.OpenChat(models.Chat{ID: "chat-1"})
	assert.Equal(t, ViewChat, s.View())
	assert.Equal(t, "chat-1", s.ActiveChat().ID)

	s.OpenChat(models.Chat{ID: "chat-1"})
	s.OpenChat(models.Chat{ID: "chat-2"})

	s.CloseChat()
	assert.Nil(t, s.ActiveChat())
	assert.Equal(t, []View{ViewChat, ViewChat, ViewDialogs}, seen)
}

func TestState_ShareMode(t *testing.T) {
	s := New()
	s.SetView(ViewChat)

	s.EnterShareMode(models.Video{Title: "Gopher", URL: "https://youtu.be/dQw4w9WgXcQ"})
	assert.Equal(t, ViewDialogs, s.View())
	assert.Equal(t, "Gopher", s.ShareVideo().Title)

	s.ExitShareMode()
	assert.Nil(t, s.ShareVideo())
}

func TestState_UpdateActiveChat(t *testing.T) {
	s := New()
	s.UpdateActiveChat(func(*models.Chat) { t.Fatal("no chat is open") })

	s.OpenChat(models.Chat{ID: "chat-1", Name: "old"})
	s.UpdateActiveChat(func(c *models.Chat) { c.Name = "new" })
	assert.Equal(t, "new", s.ActiveChat().Name)
}

func TestParseView(t *testing.T) {
	v, ok := ParseView("settings_appearance")
	assert.True(t, ok)
	assert.Equal(t, ViewSettingsAppearance, v)

	_, ok = ParseView("nope")
	assert.False(t, ok)
	assert.Equal(t, "group_info", ViewGroupInfo.String())
}

func TestState_Reset(t *testing.T) {
	s := New()
	s.OpenChat(models.Chat{ID: "chat-1"})
	s.EnterShareMode(models.Video{Title: "Gopher"})

	var views []View
	s.OnViewChange(func(v View) { views = append(views, v) })
	s.Reset()

	assert.Nil(t, s.ActiveChat())
	assert.Nil(t, s.ShareVideo())
	assert.Equal(t, []View{ViewLogin}, views)
}
