package models

import "time"

type UpdateKind string

const (
	UpdateMessageSent UpdateKind = "message_sent"
	UpdateChatChanged UpdateKind = "chat_changed"
	UpdateChatDeleted UpdateKind = "chat_deleted"
)

type UpdateMeta struct {
	Timestamp time.Time
	Audience  []string
}

type Update struct {
	UpdateMeta
	Kind      UpdateKind `validate:"required,oneof=message_sent chat_changed chat_deleted"`
	ChatID    string     `validate:"required,uuid"`
	MessageID string     `validate:"required_if=Kind message_sent"`
	FromUser  string
}
