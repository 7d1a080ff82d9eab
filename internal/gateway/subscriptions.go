package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/practice-sem-2/dm-service/internal/models"
)

// liveQuery runs fetch once immediately and again after every wake-up until
// the returned Unsubscribe is called. Wake-ups arriving while a fetch is in
// flight collapse into one.
func (s *Service) liveQuery(register func(wake func(*models.Update)) func(), fetch func(ctx context.Context) error) Unsubscribe {
	ctx, cancel := context.WithCancel(context.Background())
	notify := make(chan struct{}, 1)
	notify <- struct{}{}

	detach := register(func(*models.Update) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-notify:
			}

			if err := fetch(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Warning("live query failed")
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			detach()
			cancel()
		})
	}
}

// SubscribeToRoster delivers the current user's chats that have at least one
// message, most recently updated first, initially and on every change.
func (s *Service) SubscribeToRoster(onChange func([]models.Chat)) (Unsubscribe, error) {
	uid, err := s.currentUser()
	if err != nil {
		return nil, err
	}

	register := func(wake func(*models.Update)) func() {
		return s.notifier.SubscribeUser(uid, wake)
	}

	return s.liveQuery(register, func(ctx context.Context) error {
		chats, err := s.registry.GetChatsStore().GetUserChats(ctx, uid, true)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		onChange(chats)
		return nil
	}), nil
}

// SubscribeToNewMessages delivers messages strictly newer than after in
// ascending order. The watermark advances to the last delivered message, so
// nothing is delivered twice and empty batches are never delivered.
func (s *Service) SubscribeToNewMessages(chatID string, after time.Time, onBatch func([]models.Message)) (Unsubscribe, error) {
	if _, err := s.currentUser(); err != nil {
		return nil, err
	}
	if err := checkChatID(chatID); err != nil {
		return nil, err
	}

	watermark := after
	register := func(wake func(*models.Update)) func() {
		return s.notifier.SubscribeChat(chatID, wake)
	}

	return s.liveQuery(register, func(ctx context.Context) error {
		messages, err := s.registry.GetMessagesStore().GetMessagesAfter(ctx, chatID, watermark)
		if err != nil {
			return err
		}
		if len(messages) == 0 || ctx.Err() != nil {
			return nil
		}
		watermark = messages[len(messages)-1].Timestamp
		onBatch(messages)
		return nil
	}), nil
}
