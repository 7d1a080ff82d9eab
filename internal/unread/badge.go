package unread

import (
	"strconv"

	"github.com/practice-sem-2/dm-service/internal/models"
)

// BadgeCeiling is the largest count rendered as a number.
const BadgeCeiling = 99

type Badge struct {
	Visible bool                     `json:"visible"`
	Style   models.NotificationStyle `json:"style"`
	Text    string                   `json:"text,omitempty"`
}

func ComputeBadge(count int, style models.NotificationStyle) Badge {
	if count <= 0 {
		return Badge{Style: style}
	}
	if style == models.NotificationMinimal {
		return Badge{Visible: true, Style: style}
	}
	if count > BadgeCeiling {
		return Badge{Visible: true, Style: style, Text: strconv.Itoa(BadgeCeiling) + "+"}
	}
	return Badge{Visible: true, Style: style, Text: strconv.Itoa(count)}
}
