package bridge

import (
	"encoding/json"
	"sync"

	"github.com/practice-sem-2/dm-service/internal/controllers"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/video"
)

const (
	FrameView         = "view"
	FramePanel        = "panel"
	FrameIcon         = "icon"
	FrameBadge        = "badge"
	FrameHeader       = "header"
	FrameMessages     = "messages"
	FrameScrollBottom = "scroll_bottom"
	FrameShareButton  = "share_button"
	FrameDialogs      = "dialogs"
	FrameCandidates   = "candidates"
	FrameGroup        = "group"
	FrameSettings     = "settings"
	FrameError        = "error"
	FrameAlert        = "alert"
	FrameLink         = "link"
	FrameReplaceURL   = "replace_url"
)

// Frame is one server to overlay message.
type Frame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Command is one overlay to server message.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type dialogsPayload struct {
	Items   []controllers.DialogItem `json:"items"`
	Sharing bool                     `json:"sharing"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// Page keeps the latest page report of the overlay.
type Page struct {
	mu   sync.RWMutex
	info video.PageInfo
}

func (p *Page) Set(info video.PageInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = info
}

func (p *Page) CurrentPage() video.PageInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

// view forwards controller output as frames until it is destroyed.
type view struct {
	server *Server

	mu        sync.Mutex
	destroyed bool
}

func (v *view) emit(frameType string, payload interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.destroyed {
		v.server.broadcast(Frame{Type: frameType, Payload: payload})
	}
}

func (v *view) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destroyed = true
}

func (v *view) ShowHeader(header controllers.ChatHeader) {
	v.emit(FrameHeader, header)
}

func (v *view) RenderMessages(render controllers.Render) {
	v.emit(FrameMessages, render)
}

func (v *view) ScrollToBottom() {
	v.emit(FrameScrollBottom, nil)
}

func (v *view) SetShareButtonEnabled(enabled bool) {
	v.emit(FrameShareButton, map[string]bool{"enabled": enabled})
}

func (v *view) ShowError(message string) {
	v.emit(FrameError, messagePayload{Message: message})
}

func (v *view) RenderDialogs(items []controllers.DialogItem, sharing bool) {
	v.emit(FrameDialogs, dialogsPayload{Items: items, Sharing: sharing})
}

func (v *view) RenderEmpty(sharing bool) {
	v.emit(FrameDialogs, dialogsPayload{Items: []controllers.DialogItem{}, Sharing: sharing})
}

func (v *view) RenderCandidates(users []models.Profile) {
	v.emit(FrameCandidates, users)
}

func (v *view) RenderGroupInfo(info controllers.GroupInfo) {
	v.emit(FrameGroup, info)
}

func (v *view) RenderSettings(screen controllers.SettingsScreen) {
	v.emit(FrameSettings, screen)
}
