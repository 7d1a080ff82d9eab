package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/practice-sem-2/dm-service/internal/localstore"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/sirupsen/logrus"
)

const StorageKey = "dm-settings"

var ErrUnknownStyle = errors.New("unknown notification style")

// Service persists user-facing app settings in local storage and notifies
// listeners when they change.
type Service struct {
	mu        sync.Mutex
	storage   localstore.Storage
	logger    logrus.FieldLogger
	nextID    int
	listeners map[int]func(models.AppSettings)
}

func NewService(s localstore.Storage, logger logrus.FieldLogger) *Service {
	return &Service{
		storage:   s,
		logger:    logger,
		listeners: make(map[int]func(models.AppSettings)),
	}
}

// Get returns stored settings merged over the defaults.
func (s *Service) Get() models.AppSettings {
	current := models.DefaultSettings()
	raw, ok, err := s.storage.Get(StorageKey)
	if err != nil {
		s.logger.WithError(err).Error("can't read settings")
		return current
	}
	if !ok {
		return current
	}
	if err = json.Unmarshal([]byte(raw), &current); err != nil {
		s.logger.WithError(err).Warning("settings are corrupt, using defaults")
		return models.DefaultSettings()
	}
	if current.NotificationStyle != models.NotificationMinimal && current.NotificationStyle != models.NotificationCount {
		current.NotificationStyle = models.DefaultSettings().NotificationStyle
	}
	return current
}

func (s *Service) SetNotificationStyle(style models.NotificationStyle) error {
	if style != models.NotificationMinimal && style != models.NotificationCount {
		return fmt.Errorf("%w: %q", ErrUnknownStyle, style)
	}

	current := s.Get()
	if current.NotificationStyle == style {
		return nil
	}
	current.NotificationStyle = style

	body, err := json.Marshal(current)
	if err != nil {
		return err
	}
	if err = s.storage.Set(StorageKey, string(body)); err != nil {
		return err
	}

	s.mu.Lock()
	listeners := make([]func(models.AppSettings), 0, len(s.listeners))
	for id := 0; id <= s.nextID; id++ {
		if fn, ok := s.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(current)
	}
	return nil
}

// OnChange registers fn and returns its disposer.
func (s *Service) OnChange(fn func(models.AppSettings)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
