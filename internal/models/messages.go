package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	OptimisticIDPrefix = "optimistic_"
	MaxTextLength      = 500
)

type VideoType string

const (
	VideoRegular VideoType = "video"
	VideoShort   VideoType = "short"
)

type Video struct {
	Title     string    `json:"title" validate:"required"`
	Type      VideoType `json:"type,omitempty" validate:"omitempty,oneof=video short"`
	Thumbnail string    `json:"thumbnail"`
	URL       string    `json:"url" validate:"required,url"`
	Duration  string    `json:"duration"`
	Timestamp *int      `json:"timestamp,omitempty" validate:"omitempty,min=0"`
}

type MessagePayload struct {
	Text  string `json:"text,omitempty" validate:"required_without=Video,excluded_with=Video,max=500"`
	Video *Video `json:"video,omitempty" validate:"required_without=Text"`
}

type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	From       string    `json:"from"`
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text,omitempty"`
	Video      *Video    `json:"video,omitempty"`
	Optimistic bool      `json:"optimistic,omitempty"`
}

func (m *Message) Payload() MessagePayload {
	return MessagePayload{Text: m.Text, Video: m.Video}
}

func (m *Message) IsOptimistic() bool {
	return m.Optimistic || strings.HasPrefix(m.ID, OptimisticIDPrefix)
}

func (m *Message) AsLastMessage() *LastMessage {
	return &LastMessage{
		From:      m.From,
		Text:      m.Text,
		Video:     m.Video,
		Timestamp: m.Timestamp,
	}
}

// NewOptimisticMessage builds the locally rendered twin of a message that
// has not been confirmed by the backend yet.
func NewOptimisticMessage(chatID, from string, now time.Time, payload MessagePayload) Message {
	return Message{
		ID:         fmt.Sprintf("%s%d", OptimisticIDPrefix, now.UnixMilli()),
		ChatID:     chatID,
		From:       from,
		Timestamp:  now,
		Text:       payload.Text,
		Video:      payload.Video,
		Optimistic: true,
	}
}
