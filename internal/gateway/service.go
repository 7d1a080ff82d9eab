package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/practice-sem-2/dm-service/internal/models"
	storage "github.com/practice-sem-2/dm-service/internal/storages"
	"github.com/sirupsen/logrus"
)

// Service implements Backend over the postgres registry. Writes publish an
// update after their transaction commits, live feeds re-query on every
// update they are woken by.
type Service struct {
	registry  storage.Registry
	publisher Publisher
	notifier  Notifier
	identity  Identity
	profiles  *ProfileCache
	validate  *validator.Validate
	logger    logrus.FieldLogger
	now       func() time.Time
}

var _ Backend = (*Service)(nil)

func NewService(
	r storage.Registry,
	p Publisher,
	n Notifier,
	i Identity,
	cache *ProfileCache,
	v *validator.Validate,
	logger logrus.FieldLogger,
) *Service {
	return &Service{
		registry:  r,
		publisher: p,
		notifier:  n,
		identity:  i,
		profiles:  cache,
		validate:  v,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) currentUser() (string, error) {
	uid := s.identity.CurrentUID()
	if uid == "" {
		return "", ErrUnauthenticated
	}
	return uid, nil
}

// serverTime is the timestamp assigned to writes, truncated to the storage
// precision so watermarks compare exactly.
func (s *Service) serverTime() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) publish(update *models.Update) {
	if update.Timestamp.IsZero() {
		update.Timestamp = s.serverTime()
	}
	if err := s.publisher.Publish(update); err != nil {
		s.logger.
			WithError(err).
			WithField("chat_id", update.ChatID).
			WithField("kind", update.Kind).
			Error("can't publish update")
	}
}

func (s *Service) GetUserProfile(ctx context.Context, uid string) (*models.Profile, error) {
	if profile, ok := s.profiles.Get(uid); ok {
		return profile, nil
	}

	profile, err := s.registry.GetUsersStore().GetUser(ctx, uid)
	if err != nil {
		return nil, mapStorageError(err)
	}
	s.profiles.Put(profile)
	return profile, nil
}

// SaveUserProfile upserts the profile of the signed-in user.
func (s *Service) SaveUserProfile(ctx context.Context, profile *models.Profile) error {
	uid, err := s.currentUser()
	if err != nil {
		return err
	}
	if profile.UID != uid {
		return fmt.Errorf("%w: can't save profile of another user", ErrPermissionDenied)
	}
	return s.registry.GetUsersStore().PutUser(ctx, profile)
}

// GetChat returns the chat if the current user participates in or is
// invited to it.
func (s *Service) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	uid, err := s.currentUser()
	if err != nil {
		return nil, err
	}
	if err = checkChatID(chatID); err != nil {
		return nil, err
	}

	chat, err := s.registry.GetChatsStore().GetChat(ctx, chatID)
	if err != nil {
		return nil, mapStorageError(err)
	}

	if !chat.HasParticipant(uid) && !chat.IsInvited(uid) {
		return nil, ErrNotAChatMember
	}
	return &chat.Chat, nil
}

// GetAllChats is a one-shot roster read, including chats without messages.
func (s *Service) GetAllChats(ctx context.Context) ([]models.Chat, error) {
	uid, err := s.currentUser()
	if err != nil {
		return nil, err
	}
	return s.registry.GetChatsStore().GetUserChats(ctx, uid, false)
}

// GetOrCreateChat returns the private chat with peerUID, creating it when the
// lookup finds none. Lookup and creation are separate steps, so two racing
// callers may both create a chat for the same pair.
func (s *Service) GetOrCreateChat(ctx context.Context, peerUID string) (string, error) {
	uid, err := s.currentUser()
	if err != nil {
		return "", err
	}
	if peerUID == "" || peerUID == uid {
		return "", fmt.Errorf("%w: invalid chat partner", ErrValidation)
	}

	chatID, err := s.findPrivateChat(ctx, uid, peerUID)
	if err == nil {
		return chatID, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	return s.createPrivateChat(ctx, uid, peerUID)
}

func (s *Service) findPrivateChat(ctx context.Context, uid, peerUID string) (string, error) {
	pair := models.PrivatePair(uid, peerUID)
	chatID, err := s.registry.GetChatsStore().FindPrivateChat(ctx, pair[0], pair[1])
	return chatID, mapStorageError(err)
}

func (s *Service) createPrivateChat(ctx context.Context, uid, peerUID string) (string, error) {
	now := s.serverTime()
	chat := &models.Chat{
		ID:           uuid.NewString(),
		Type:         models.ChatPrivate,
		Participants: models.PrivatePair(uid, peerUID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetChatsStore()
		if err := store.CreateChat(ctx, chat); err != nil {
			return err
		}
		return store.AddChatMembers(ctx, chat.ID, models.RoleMember, chat.Participants)
	})
	if err != nil {
		return "", mapStorageError(err)
	}

	s.publish(&models.Update{
		UpdateMeta: models.UpdateMeta{Timestamp: now, Audience: chat.Participants},
		Kind:       models.UpdateChatChanged,
		ChatID:     chat.ID,
	})
	return chat.ID, nil
}

func (s *Service) requireParticipant(ctx context.Context, r storage.Registry, chatID, uid string) (*models.ChatWithMembers, error) {
	if err := checkChatID(chatID); err != nil {
		return nil, err
	}
	chat, err := r.GetChatsStore().GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(uid) {
		return nil, ErrNotAChatMember
	}
	return chat, nil
}

func toPage(messages []models.Message) Page {
	page := Page{Messages: messages}
	if len(messages) > 0 {
		oldest := messages[0]
		page.Cursor = &Cursor{Timestamp: oldest.Timestamp, MessageID: oldest.ID}
	}
	return page
}

func (s *Service) FetchLatestMessages(ctx context.Context, chatID string, pageSize int) (Page, error) {
	uid, err := s.currentUser()
	if err != nil {
		return Page{}, err
	}
	if pageSize <= 0 {
		return Page{}, fmt.Errorf("%w: page size must be positive", ErrValidation)
	}

	if _, err = s.requireParticipant(ctx, s.registry, chatID, uid); err != nil {
		return Page{}, mapStorageError(err)
	}

	messages, err := s.registry.GetMessagesStore().GetLatestMessages(ctx, chatID, uint64(pageSize))
	if err != nil {
		return Page{}, err
	}
	return toPage(messages), nil
}

func (s *Service) FetchMessagesBefore(ctx context.Context, chatID string, cursor Cursor, pageSize int) (Page, error) {
	uid, err := s.currentUser()
	if err != nil {
		return Page{}, err
	}
	if pageSize <= 0 {
		return Page{}, fmt.Errorf("%w: page size must be positive", ErrValidation)
	}

	if _, err = s.requireParticipant(ctx, s.registry, chatID, uid); err != nil {
		return Page{}, mapStorageError(err)
	}

	messages, err := s.registry.GetMessagesStore().GetMessagesBefore(ctx, chatID, storage.MessageCursor{
		SendingTime: cursor.Timestamp,
		MessageID:   cursor.MessageID,
	}, uint64(pageSize))
	if err != nil {
		return Page{}, err
	}
	return toPage(messages), nil
}

// AppendMessage writes the message and the chat's denormalized last message
// in one transaction.
func (s *Service) AppendMessage(ctx context.Context, chatID string, payload models.MessagePayload) error {
	uid, err := s.currentUser()
	if err != nil {
		return err
	}

	if err = s.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msg := models.Message{
		ID:     uuid.NewString(),
		ChatID: chatID,
		From:   uid,
		Text:   payload.Text,
		Video:  payload.Video,
	}

	var audience []string
	err = s.registry.Atomic(ctx, func(r storage.Registry) error {
		if err := checkChatID(chatID); err != nil {
			return err
		}
		if err := r.GetChatsStore().LockChat(ctx, chatID); err != nil {
			return err
		}
		chat, err := s.requireParticipant(ctx, r, chatID, uid)
		if err != nil {
			return err
		}
		audience = chat.Participants

		// Stamped under the chat lock, so timestamps follow commit order and
		// never go back past the chat's updated_at.
		msg.Timestamp = s.serverTime()
		if floor := chat.UpdatedAt.UTC().Add(time.Microsecond); msg.Timestamp.Before(floor) {
			msg.Timestamp = floor
		}

		if err = r.GetMessagesStore().PutMessage(ctx, &msg); err != nil {
			return err
		}
		return r.GetChatsStore().TouchChat(ctx, chatID, msg.AsLastMessage(), msg.Timestamp)
	})
	if err != nil {
		return mapStorageError(err)
	}

	s.publish(&models.Update{
		UpdateMeta: models.UpdateMeta{Timestamp: msg.Timestamp, Audience: audience},
		Kind:       models.UpdateMessageSent,
		ChatID:     chatID,
		MessageID:  msg.ID,
		FromUser:   uid,
	})
	return nil
}
