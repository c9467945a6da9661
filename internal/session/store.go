package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"diagdesk/internal/domain"
	"diagdesk/internal/events"
	"diagdesk/internal/logging"
	"diagdesk/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidCredentials is the only error Login surfaces; the cause is logged, not returned.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrCenterForbidden    = errors.New("center not allowed for this user")
)

// Store holds the logged-in identity for one client and mirrors it to local storage.
type Store struct {
	storage   domain.LocalStorage
	gateway   domain.AuthGateway
	publisher domain.EventPublisher
	logger    *zerolog.Logger

	mu      sync.RWMutex
	current *models.Session
}

// NewStore builds an empty store. publisher may be nil.
func NewStore(storage domain.LocalStorage, gateway domain.AuthGateway, publisher domain.EventPublisher, logger *zerolog.Logger) *Store {
	return &Store{
		storage:   storage,
		gateway:   gateway,
		publisher: publisher,
		logger:    logging.Component(logger, "session"),
	}
}

// Restore loads the persisted session. A corrupt or centerless value is removed.
func (s *Store) Restore(ctx context.Context) (*models.Session, error) {
	raw, ok, err := s.storage.Get(ctx, models.StorageKeySession)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || len(sess.Centers) == 0 || sess.Username == "" {
		s.logger.Warn().Err(err).Msg("discarding unusable stored session")
		if delErr := s.storage.Delete(ctx, models.StorageKeySession); delErr != nil {
			return nil, fmt.Errorf("remove session: %w", delErr)
		}
		return nil, nil
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()

	return s.Current(), nil
}

// Login authenticates against the backend and persists the result.
func (s *Store) Login(ctx context.Context, username, password string) (*models.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	resp, err := s.gateway.Login(ctx, username, password)
	if err != nil {
		s.logger.Info().Err(err).Str("username", username).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}
	if len(resp.Centers) == 0 {
		s.logger.Info().Str("username", username).Msg("login returned no centers")
		return nil, ErrInvalidCredentials
	}

	sess := &models.Session{Username: username, Centers: append([]string(nil), resp.Centers...)}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.storage.Set(ctx, models.StorageKeySession, string(data)); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	s.publish(events.EventSessionLogin, sess.Username)
	s.logger.Info().Str("username", username).Strs("centers", sess.Centers).Msg("logged in")
	return s.Current(), nil
}

// Logout forgets the session and the report token. Calling it twice is harmless.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, models.StorageKeySession); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	if err := s.storage.Delete(ctx, models.StorageKeyToken); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}

	if prev != nil {
		s.publish(events.EventSessionLogout, prev.Username)
		s.logger.Info().Str("username", prev.Username).Msg("logged out")
	}
	return nil
}

// Current returns a copy of the session, or nil when logged out.
func (s *Store) Current() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	cp.Centers = append([]string(nil), s.current.Centers...)
	return &cp
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Token returns the bearer token used for report calls; "" when none is stored.
func (s *Store) Token(ctx context.Context) (string, error) {
	tok, _, err := s.storage.Get(ctx, models.StorageKeyToken)
	return tok, err
}

func (s *Store) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.storage.Delete(ctx, models.StorageKeyToken)
	}
	return s.storage.Set(ctx, models.StorageKeyToken, token)
}

// AllowedCenters lists the centers the user may query. Admins get every
// backend center plus the admin sentinel.
func (s *Store) AllowedCenters(ctx context.Context) ([]string, error) {
	sess := s.Current()
	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	if !sess.IsAdmin() {
		return sess.Centers, nil
	}

	centers, err := s.gateway.Centers(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{models.AdminCenter: true}
	out := []string{models.AdminCenter}
	for _, c := range centers {
		name := strings.TrimSpace(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out[1:])
	return out, nil
}

// ResolveCenters narrows a requested center list to what the user may see.
// An empty request means every allowed center.
func (s *Store) ResolveCenters(ctx context.Context, requested []string) ([]string, error) {
	sess := s.Current()
	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	if len(requested) == 0 {
		return sess.Centers, nil
	}
	for _, c := range requested {
		if !sess.HasCenter(c) {
			return nil, fmt.Errorf("%w: %s", ErrCenterForbidden, c)
		}
	}
	return requested, nil
}

func (s *Store) publish(eventType, username string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(eventType, events.SessionPayload{Username: username}); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("publish failed")
	}
}
