package deeplink

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/practice-sem-2/dm-service/internal/gateway"
	"github.com/practice-sem-2/dm-service/internal/localstore"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	ChatParam  = "dm_user"
	GroupParam = "group_invitation"

	PendingChatKey  = "dm-pending-chat-uid"
	PendingGroupKey = "dm-pending-group-invitation-id"
)

var ErrNotInvited = errors.New("user is not invited to the group")

// Handler opens the chat a shared link points to once the user is signed in
// and the overlay is ready. A link is handled at most once.
type Handler struct {
	backend  gateway.Backend
	pending  localstore.Storage
	identity gateway.Identity
	trigger  func(chat models.Chat)
	alert    func(message string)
	logger   logrus.FieldLogger

	mu        sync.Mutex
	ready     bool
	processed bool
}

func NewHandler(
	b gateway.Backend,
	pending localstore.Storage,
	identity gateway.Identity,
	trigger func(chat models.Chat),
	alert func(message string),
	logger logrus.FieldLogger,
) *Handler {
	return &Handler{
		backend:  b,
		pending:  pending,
		identity: identity,
		trigger:  trigger,
		alert:    alert,
		logger:   logger,
	}
}

// Capture remembers link parameters found in rawURL and returns the URL with
// them stripped.
func (h *Handler) Capture(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	query := u.Query()
	captured := false
	for param, key := range map[string]string{ChatParam: PendingChatKey, GroupParam: PendingGroupKey} {
		value := query.Get(param)
		if value == "" {
			continue
		}
		if err := h.pending.Set(key, value); err != nil {
			return "", err
		}
		query.Del(param)
		captured = true
	}

	if !captured {
		return rawURL, nil
	}

	h.mu.Lock()
	h.processed = false
	h.mu.Unlock()

	u.RawQuery = query.Encode()
	return u.String(), nil
}

// UIReady allows pending links to be handled.
func (h *Handler) UIReady(ctx context.Context) error {
	h.mu.Lock()
	h.ready = true
	h.mu.Unlock()
	return h.Process(ctx)
}

func (h *Handler) OnAuthChange(user *models.Profile) {
	if user == nil {
		return
	}
	if err := h.Process(context.Background()); err != nil {
		h.logger.WithError(err).Warning("can't open shared link")
	}
}

func (h *Handler) take(key string) (string, bool) {
	value, ok, err := h.pending.Get(key)
	if err != nil {
		h.logger.WithError(err).WithField("key", key).Warning("can't read pending link")
		return "", false
	}
	if !ok {
		return "", false
	}
	if err := h.pending.Remove(key); err != nil {
		h.logger.WithError(err).WithField("key", key).Warning("can't clear pending link")
	}
	return value, true
}

// Process handles a pending link if the user is signed in, the overlay is
// ready and no link was handled yet. Links to oneself are dropped.
func (h *Handler) Process(ctx context.Context) error {
	h.mu.Lock()
	me := h.identity.CurrentUID()
	if h.processed || !h.ready || me == "" {
		h.mu.Unlock()
		return nil
	}

	if peer, ok := h.take(PendingChatKey); ok {
		if peer == me {
			h.mu.Unlock()
			return nil
		}
		h.processed = true
		h.mu.Unlock()
		return h.openPrivate(ctx, peer)
	}

	if groupID, ok := h.take(PendingGroupKey); ok {
		h.processed = true
		h.mu.Unlock()
		return h.joinGroup(ctx, groupID, me)
	}

	h.mu.Unlock()
	return nil
}

func (h *Handler) openPrivate(ctx context.Context, peer string) error {
	chatID, err := h.backend.GetOrCreateChat(ctx, peer)
	if err != nil {
		return h.fail(err, "Could not open chat.")
	}
	chat, err := h.backend.GetChat(ctx, chatID)
	if err != nil {
		return h.fail(err, "Could not open chat.")
	}
	h.trigger(*chat)
	return nil
}

func (h *Handler) joinGroup(ctx context.Context, groupID, me string) error {
	invited, err := h.backend.IsUserInvited(ctx, groupID, me)
	if err != nil {
		return h.fail(err, "Could not join group.")
	}
	if !invited {
		h.alert("You are not invited to this group.")
		return ErrNotInvited
	}

	if err := h.backend.JoinGroupChat(ctx, groupID); err != nil {
		return h.fail(err, "Could not join group.")
	}
	chat, err := h.backend.GetChat(ctx, groupID)
	if err != nil {
		return h.fail(err, "Could not open group.")
	}
	h.trigger(*chat)
	return nil
}

func (h *Handler) fail(err error, message string) error {
	h.logger.WithError(err).Error("can't open shared link")
	h.alert(message)
	return err
}
