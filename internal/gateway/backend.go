package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/practice-sem-2/dm-service/internal/models"
	storage "github.com/practice-sem-2/dm-service/internal/storages"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrPermissionDenied = errors.New("user is not authorized to this action")
	ErrValidation       = errors.New("validation failed")
	ErrNotAChatMember   = fmt.Errorf("%w: user is not a chat member", ErrPermissionDenied)
	ErrNotAnAdmin       = fmt.Errorf("%w: user is not a group admin", ErrPermissionDenied)
	ErrNotInvited       = fmt.Errorf("%w: user is not invited to the chat", ErrPermissionDenied)
)

// Unsubscribe detaches a live feed. Calling it more than once is a no-op.
type Unsubscribe func()

// Cursor is the position of the oldest message fetched so far.
type Cursor struct {
	Timestamp time.Time
	MessageID string
}

// Page holds messages oldest first. Cursor is nil when the page is empty.
type Page struct {
	Messages []models.Message
	Cursor   *Cursor
}

// Backend is everything the client controllers need from the hosted store.
type Backend interface {
	GetUserProfile(ctx context.Context, uid string) (*models.Profile, error)
	SaveUserProfile(ctx context.Context, profile *models.Profile) error

	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	GetAllChats(ctx context.Context) ([]models.Chat, error)
	GetOrCreateChat(ctx context.Context, peerUID string) (string, error)

	FetchLatestMessages(ctx context.Context, chatID string, pageSize int) (Page, error)
	FetchMessagesBefore(ctx context.Context, chatID string, cursor Cursor, pageSize int) (Page, error)
	AppendMessage(ctx context.Context, chatID string, payload models.MessagePayload) error

	SubscribeToRoster(onChange func([]models.Chat)) (Unsubscribe, error)
	SubscribeToNewMessages(chatID string, after time.Time, onBatch func([]models.Message)) (Unsubscribe, error)

	CreateGroupChat(ctx context.Context, group models.GroupCreate) (string, error)
	InviteUsers(ctx context.Context, chatID string, uids []string) error
	CancelInvitation(ctx context.Context, chatID string, uid string) error
	IsUserInvited(ctx context.Context, chatID string, uid string) (bool, error)
	JoinGroupChat(ctx context.Context, chatID string) error
	AddMembers(ctx context.Context, chatID string, uids []string) error
	RemoveMember(ctx context.Context, chatID string, uid string) error
	PromoteToAdmin(ctx context.Context, chatID string, uid string) error
	DemoteFromAdmin(ctx context.Context, chatID string, uid string) error
	UpdateChatDetails(ctx context.Context, chatID string, details models.ChatDetails) error
	LeaveGroup(ctx context.Context, chatID string) error
	DeleteGroup(ctx context.Context, chatID string) error

	GetIgnoreList(ctx context.Context) ([]string, error)
	AddToIgnoreList(ctx context.Context, uid string) error
	RemoveFromIgnoreList(ctx context.Context, uid string) error
}

// Identity reports the signed-in user, empty when signed out.
type Identity interface {
	CurrentUID() string
}

// Publisher delivers committed changes to live subscribers.
type Publisher interface {
	Publish(update *models.Update) error
}

// Notifier registers wake-up callbacks for chats and users.
type Notifier interface {
	SubscribeChat(chatID string, fn func(update *models.Update)) func()
	SubscribeUser(uid string, fn func(update *models.Update)) func()
}

func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrChatNotFound),
		errors.Is(err, storage.ErrUserNotFound),
		errors.Is(err, storage.ErrMemberNotFound),
		errors.Is(err, storage.ErrMessageNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, storage.ErrEmptyMembers):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return err
	}
}
