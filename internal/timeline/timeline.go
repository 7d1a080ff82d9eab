package timeline

import (
	"time"

	"github.com/practice-sem-2/dm-service/internal/models"
)

type ItemKind string

const (
	ItemMessage   ItemKind = "message"
	ItemSeparator ItemKind = "separator"
)

// Item is one rendered row: a message or the date separator in front of it.
type Item struct {
	Kind    ItemKind        `json:"kind"`
	Date    string          `json:"date,omitempty"`
	Label   string          `json:"label,omitempty"`
	Message *models.Message `json:"message,omitempty"`
}

// Timeline is the rendered message list of one open chat. Every inserted
// message brings its own separator; after each insert, a separator repeating
// the date of the separator before it is removed.
type Timeline struct {
	items []Item
	loc   *time.Location
	now   func() time.Time
}

func New(loc *time.Location) *Timeline {
	if loc == nil {
		loc = time.Local
	}
	return &Timeline{loc: loc, now: time.Now}
}

func (t *Timeline) render(messages []models.Message) []Item {
	items := make([]Item, 0, 2*len(messages))
	for i := range messages {
		msg := messages[i]
		local := msg.Timestamp.In(t.loc)
		items = append(items,
			Item{Kind: ItemSeparator, Date: local.Format(time.DateOnly), Label: t.label(local)},
			Item{Kind: ItemMessage, Message: &msg},
		)
	}
	return items
}

func (t *Timeline) label(day time.Time) string {
	today := t.now().In(t.loc)
	y, m, d := day.Date()
	ty, tm, td := today.Date()
	yesterday := today.AddDate(0, 0, -1)
	yy, ym, yd := yesterday.Date()

	switch {
	case y == ty && m == tm && d == td:
		return "Today"
	case y == yy && m == ym && d == yd:
		return "Yesterday"
	default:
		return day.Format("January 2, 2006")
	}
}

func (t *Timeline) dedupSeparators() {
	kept := t.items[:0]
	lastDate := ""
	for _, item := range t.items {
		if item.Kind == ItemSeparator {
			if item.Date == lastDate {
				continue
			}
			lastDate = item.Date
		}
		kept = append(kept, item)
	}
	t.items = kept
}

// Append renders messages at the bottom.
func (t *Timeline) Append(messages []models.Message) {
	if len(messages) == 0 {
		return
	}
	t.items = append(t.items, t.render(messages)...)
	t.dedupSeparators()
}

// Prepend renders messages at the top and returns the id of the message that
// was first before the insert, which the view keeps anchored in place.
func (t *Timeline) Prepend(messages []models.Message) (anchorID string) {
	if first := t.firstMessage(); first != nil {
		anchorID = first.ID
	}
	if len(messages) == 0 {
		return anchorID
	}
	t.items = append(t.render(messages), t.items...)
	t.dedupSeparators()
	return anchorID
}

func (t *Timeline) firstMessage() *models.Message {
	for _, item := range t.items {
		if item.Kind == ItemMessage {
			return item.Message
		}
	}
	return nil
}

func (t *Timeline) Items() []Item {
	out := make([]Item, len(t.items))
	copy(out, t.items)
	return out
}

func (t *Timeline) Messages() []models.Message {
	messages := make([]models.Message, 0, len(t.items)/2)
	for _, item := range t.items {
		if item.Kind == ItemMessage {
			messages = append(messages, *item.Message)
		}
	}
	return messages
}

func (t *Timeline) Len() int {
	return len(t.Messages())
}
