package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/practice-sem-2/dm-service/internal/gateway"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/state"
	"github.com/practice-sem-2/dm-service/internal/video"
	"github.com/sirupsen/logrus"
)

const DefaultPageSize = 25

var ErrNoActiveChat = errors.New("controller requires an active chat")

type ReadMarker interface {
	Mark(chatID string) error
}

type UnreadSet interface {
	IsUnread(chatID string) bool
}

type SettingsStore interface {
	Get() models.AppSettings
	SetNotificationStyle(style models.NotificationStyle) error
}

type VideoResolver interface {
	Resolve(ctx context.Context, page video.PageInfo, includeTimestamp bool) (*models.Video, bool)
}

// PageSource reports the host page the overlay currently shows.
type PageSource interface {
	CurrentPage() video.PageInfo
}

// Env carries the collaborators every controller is built with.
type Env struct {
	Backend  gateway.Backend
	State    *state.State
	Identity gateway.Identity
	Marks    ReadMarker
	Unread   UnreadSet
	Settings SettingsStore
	Videos   VideoResolver
	Page     PageSource
	Validate *validator.Validate
	Logger   logrus.FieldLogger
	SiteHost string
	PageSize int
	Now      func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) pageSize() int {
	if e.PageSize > 0 {
		return e.PageSize
	}
	return DefaultPageSize
}

// DirectLink is the shareable link that opens a private chat with uid.
func (e *Env) DirectLink(uid string) string {
	return fmt.Sprintf("https://%s/?dm_user=%s", e.SiteHost, uid)
}

// InvitationLink is the shareable link that joins the group chatID.
func (e *Env) InvitationLink(chatID string) string {
	return fmt.Sprintf("https://%s/?group_invitation=%s", e.SiteHost, chatID)
}

func (e *Env) ignored(ctx context.Context) map[string]struct{} {
	set := make(map[string]struct{})
	uids, err := e.Backend.GetIgnoreList(ctx)
	if err != nil {
		e.Logger.WithError(err).Warning("can't load ignore list")
	}
	for _, uid := range uids {
		set[uid] = struct{}{}
	}
	return set
}

// profiles resolves uids in order, omitting the ones whose profile can't be
// fetched.
func (e *Env) profiles(ctx context.Context, uids []string) []models.Profile {
	out := make([]models.Profile, 0, len(uids))
	for _, uid := range uids {
		profile, err := e.Backend.GetUserProfile(ctx, uid)
		if err != nil {
			e.Logger.WithError(err).WithField("uid", uid).Warning("can't fetch profile")
			continue
		}
		out = append(out, *profile)
	}
	return out
}

// userMessage turns a gateway error into the text shown to the user.
func userMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return "Not found."
	case errors.Is(err, gateway.ErrPermissionDenied):
		return "You are not allowed to do that."
	case errors.Is(err, gateway.ErrValidation):
		return "Please check your input."
	default:
		return fallback
	}
}
