package readmarks

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/practice-sem-2/dm-service/internal/localstore"
	"github.com/sirupsen/logrus"
)

const (
	StorageKey = "dm-read-timestamps"
	// Skew dates markers ahead so a self-sent message echoed by the server
	// never lands after the marker written when it was sent.
	Skew = 3 * time.Second
)

// Store keeps per-chat "read up to" markers as one JSON map of chat id to
// unix milliseconds.
type Store struct {
	mu      sync.Mutex
	storage localstore.Storage
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewStore(s localstore.Storage, logger logrus.FieldLogger) *Store {
	return &Store{
		storage: s,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Store) load() map[string]int64 {
	marks := make(map[string]int64)
	raw, ok, err := s.storage.Get(StorageKey)
	if err != nil {
		s.logger.WithError(err).Error("can't read read markers")
		return marks
	}
	if !ok {
		return marks
	}
	if err = json.Unmarshal([]byte(raw), &marks); err != nil {
		s.logger.WithError(err).Warning("read markers are corrupt, starting over")
		return make(map[string]int64)
	}
	return marks
}

// Get returns the marker of chatID, ok=false if it was never marked.
func (s *Store) Get(chatID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	millis, ok := s.load()[chatID]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

func (s *Store) All() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	marks := s.load()
	out := make(map[string]time.Time, len(marks))
	for chatID, millis := range marks {
		out[chatID] = time.UnixMilli(millis)
	}
	return out
}

// Mark sets the marker of chatID to now plus Skew. The whole map is read,
// changed and written back.
func (s *Store) Mark(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	marks := s.load()
	marks[chatID] = s.now().Add(Skew).UnixMilli()

	body, err := json.Marshal(marks)
	if err != nil {
		return err
	}
	return s.storage.Set(StorageKey, string(body))
}
