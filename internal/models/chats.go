package models

import (
	"sort"
	"time"
)

type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

type MemberRole string

const (
	RoleMember  MemberRole = "member"
	RoleAdmin   MemberRole = "admin"
	RoleInvited MemberRole = "invited"
)

type LastMessage struct {
	From      string    `json:"from"`
	Text      string    `json:"text,omitempty"`
	Video     *Video    `json:"video,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Chat struct {
	ID           string       `json:"id"`
	Type         ChatType     `json:"type"`
	Participants []string     `json:"participants"`
	Invited      []string     `json:"invited,omitempty"`
	Admins       []string     `json:"admins,omitempty"`
	Creator      string       `json:"creator,omitempty"`
	Name         string       `json:"name,omitempty"`
	PhotoURL     string       `json:"photoURL,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	LastMessage  *LastMessage `json:"lastMessage"`
}

func (c *Chat) IsGroup() bool {
	return c.Type == ChatGroup
}

// Partner returns the first participant that is not uid.
func (c *Chat) Partner(uid string) (string, bool) {
	for _, p := range c.Participants {
		if p != uid {
			return p, true
		}
	}
	return "", false
}

func (c *Chat) HasParticipant(uid string) bool {
	return contains(c.Participants, uid)
}

func (c *Chat) IsAdmin(uid string) bool {
	return c.Creator == uid || contains(c.Admins, uid)
}

func (c *Chat) IsInvited(uid string) bool {
	return contains(c.Invited, uid)
}

type ChatMember struct {
	UserID string     `json:"user_id" db:"user_id"`
	Role   MemberRole `json:"role" db:"role"`
}

type ChatWithMembers struct {
	Chat
	Members []ChatMember `json:"members"`
}

// ApplyMembers fills participant, admin and invited sets from member rows.
func (c *ChatWithMembers) ApplyMembers() {
	c.Participants = make([]string, 0, len(c.Members))
	c.Admins = nil
	c.Invited = nil
	for _, m := range c.Members {
		switch m.Role {
		case RoleInvited:
			c.Invited = append(c.Invited, m.UserID)
		case RoleAdmin:
			c.Admins = append(c.Admins, m.UserID)
			c.Participants = append(c.Participants, m.UserID)
		default:
			c.Participants = append(c.Participants, m.UserID)
		}
	}
	sort.Strings(c.Participants)
}

type GroupCreate struct {
	Name    string   `validate:"required,max=100"`
	Members []string `validate:"required,min=1,dive,required"`
}

type ChatDetails struct {
	Name     string `validate:"required,max=100"`
	PhotoURL string `validate:"omitempty,url"`
}

// PrivatePair returns the sorted participant pair of a private chat.
func PrivatePair(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
