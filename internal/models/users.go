package models

type Profile struct {
	UID         string `json:"uid" db:"user_id"`
	DisplayName string `json:"displayName" db:"display_name"`
	PhotoURL    string `json:"photoURL" db:"photo_url"`
}
