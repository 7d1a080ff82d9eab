package controllers

import (
	"sync"

	"github.com/practice-sem-2/dm-service/internal/models"
)

type chatView struct {
	mu        sync.Mutex
	headers   []ChatHeader
	renders   []Render
	scrolls   int
	buttons   []bool
	errors    []string
	destroyed int
}

func (v *chatView) ShowHeader(h ChatHeader) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.headers = append(v.headers, h)
}

func (v *chatView) RenderMessages(r Render) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders = append(v.renders, r)
}

func (v *chatView) ScrollToBottom() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrolls++
}

func (v *chatView) SetShareButtonEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buttons = append(v.buttons, enabled)
}

func (v *chatView) ShowError(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errors = append(v.errors, message)
}

func (v *chatView) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destroyed++
}

func (v *chatView) lastRender() Render {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renders[len(v.renders)-1]
}

// renderedIDs lists message ids of the last render, top to bottom.
func (v *chatView) renderedIDs() []string {
	var out []string
	for _, item := range v.lastRender().Items {
		if item.Message != nil {
			out = append(out, item.Message.ID)
		}
	}
	return out
}

type dialogsView struct {
	mu        sync.Mutex
	items     [][]DialogItem
	sharing   []bool
	empty     int
	errors    []string
	destroyed int
}

func (v *dialogsView) RenderDialogs(items []DialogItem, sharing bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = append(v.items, items)
	v.sharing = append(v.sharing, sharing)
}

func (v *dialogsView) RenderEmpty(sharing bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.empty++
	v.sharing = append(v.sharing, sharing)
}

func (v *dialogsView) ShowError(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errors = append(v.errors, message)
}

func (v *dialogsView) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destroyed++
}

type groupView struct {
	candidates [][]models.Profile
	infos      []GroupInfo
	errors     []string
	destroyed  int
}

func (v *groupView) RenderCandidates(users []models.Profile) {
	v.candidates = append(v.candidates, users)
}
func (v *groupView) RenderGroupInfo(info GroupInfo) { v.infos = append(v.infos, info) }
func (v *groupView) ShowError(message string)       { v.errors = append(v.errors, message) }
func (v *groupView) Destroy()                       { v.destroyed++ }

type settingsView struct {
	screens   []SettingsScreen
	errors    []string
	destroyed int
}

func (v *settingsView) RenderSettings(screen SettingsScreen) { v.screens = append(v.screens, screen) }
func (v *settingsView) ShowError(message string)             { v.errors = append(v.errors, message) }
func (v *settingsView) Destroy()                             { v.destroyed++ }
