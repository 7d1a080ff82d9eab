package auth

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/sirupsen/logrus"
)

var ErrInvalidToken = errors.New("invalid id token")

// Claims of the ID token issued to the overlay on sign-in. The subject is the
// user id.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Session holds the signed-in user of this agent.
type Session struct {
	mu        sync.RWMutex
	secret    []byte
	user      *models.Profile
	nextID    int
	listeners map[int]func(*models.Profile)
	logger    logrus.FieldLogger
}

func NewSession(secret []byte, logger logrus.FieldLogger) *Session {
	return &Session{
		secret:    secret,
		listeners: make(map[int]func(*models.Profile)),
		logger:    logger,
	}
}

func (s *Session) verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	return claims, nil
}

// SignIn verifies the token and makes its subject the current user.
func (s *Session) SignIn(token string) (*models.Profile, error) {
	claims, err := s.verify(token)
	if err != nil {
		return nil, err
	}

	profile := &models.Profile{
		UID:         claims.Subject,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}

	s.mu.Lock()
	s.user = profile
	s.mu.Unlock()

	s.logger.WithField("uid", profile.UID).Info("signed in")
	s.notify(profile)
	return profile, nil
}

func (s *Session) SignOut() {
	s.mu.Lock()
	wasSignedIn := s.user != nil
	s.user = nil
	s.mu.Unlock()

	if wasSignedIn {
		s.logger.Info("signed out")
		s.notify(nil)
	}
}

// CurrentUID returns an empty string when nobody is signed in.
func (s *Session) CurrentUID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.UID
}

func (s *Session) CurrentUser() *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

// OnAuthChange registers fn for sign-in (non-nil profile) and sign-out (nil)
// and returns its disposer.
func (s *Session) OnAuthChange(fn func(user *models.Profile)) func() {
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

func (s *Session) notify(user *models.Profile) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(*models.Profile), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(user)
	}
}
