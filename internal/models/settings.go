package models

type NotificationStyle string

const (
	NotificationMinimal NotificationStyle = "minimal"
	NotificationCount   NotificationStyle = "count"
)

type AppSettings struct {
	NotificationStyle NotificationStyle `json:"notificationStyle"`
}

func DefaultSettings() AppSettings {
	return AppSettings{NotificationStyle: NotificationCount}
}
