package feed

import (
	"sync"

	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Handler is invoked on the publishing goroutine and must not block.
type Handler = func(update *models.Update)

// Hub fans updates out to per-chat and per-user subscribers.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	chats  map[string]map[uint64]Handler
	users  map[string]map[uint64]Handler
	logger logrus.FieldLogger
}

func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		chats:  make(map[string]map[uint64]Handler),
		users:  make(map[string]map[uint64]Handler),
		logger: logger,
	}
}

func (h *Hub) subscribe(index map[string]map[uint64]Handler, key string, fn Handler) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if index[key] == nil {
		index[key] = make(map[uint64]Handler)
	}
	index[key][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(index[key], id)
			if len(index[key]) == 0 {
				delete(index, key)
			}
		})
	}
}

// SubscribeChat registers fn for every update touching chatID.
func (h *Hub) SubscribeChat(chatID string, fn Handler) func() {
	return h.subscribe(h.chats, chatID, fn)
}

// SubscribeUser registers fn for every update whose audience contains uid.
func (h *Hub) SubscribeUser(uid string, fn Handler) func() {
	return h.subscribe(h.users, uid, fn)
}

func (h *Hub) snapshot(update *models.Update) []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	handlers := make([]Handler, 0)
	for _, fn := range h.chats[update.ChatID] {
		handlers = append(handlers, fn)
	}
	for _, uid := range update.Audience {
		for _, fn := range h.users[uid] {
			handlers = append(handlers, fn)
		}
	}
	return handlers
}

// Publish dispatches the update synchronously. It never fails and exists so
// the hub can stand in for the Kafka publisher when no broker is configured.
func (h *Hub) Publish(update *models.Update) error {
	handlers := h.snapshot(update)
	h.logger.
		WithField("chat_id", update.ChatID).
		WithField("kind", update.Kind).
		WithField("subscribers", len(handlers)).
		Debug("dispatching update")

	for _, fn := range handlers {
		fn(update)
	}
	return nil
}
