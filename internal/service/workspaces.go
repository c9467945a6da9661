package service

import (
	"context"
	"errors"
	"sync"

	"diagdesk/internal/config"
	"diagdesk/internal/domain"
	"diagdesk/internal/logging"
	"diagdesk/internal/repository"
	"diagdesk/internal/session"

	"github.com/rs/zerolog"
)

var ErrWorkspaceIDRequired = errors.New("workspace id is required")

// Workspaces keeps one Dashboard per client id over a shared local storage.
// Each client's keys live under their own prefix, so a restart restores
// every session from storage.
type Workspaces struct {
	storage   domain.LocalStorage
	gateway   domain.Gateway
	booking   config.BookingConfig
	publisher domain.EventPublisher
	syncer    domain.SyncWorker
	logger    *zerolog.Logger

	mu   sync.Mutex
	open map[string]*Dashboard
}

func NewWorkspaces(
	storage domain.LocalStorage,
	gw domain.Gateway,
	booking config.BookingConfig,
	publisher domain.EventPublisher,
	syncer domain.SyncWorker,
	logger *zerolog.Logger,
) *Workspaces {
	return &Workspaces{
		storage:   storage,
		gateway:   gw,
		booking:   booking,
		publisher: publisher,
		syncer:    syncer,
		logger:    logging.Component(logger, "workspaces"),
		open:      make(map[string]*Dashboard),
	}
}

func (w *Workspaces) build(id string) *Dashboard {
	scoped := repository.NewScoped(w.storage, "ws:"+id+":")
	store := session.NewStore(scoped, w.gateway, w.publisher, w.logger)
	return NewDashboard(store, w.gateway, w.booking, w.publisher, w.syncer, w.logger)
}

// Login signs id in, replacing any dashboard it had.
func (w *Workspaces) Login(ctx context.Context, id, username, password string) (*Dashboard, error) {
	if id == "" {
		return nil, ErrWorkspaceIDRequired
	}
	d := w.build(id)
	if _, err := d.Session.Login(ctx, username, password); err != nil {
		return nil, err
	}

	w.mu.Lock()
	if prev, ok := w.open[id]; ok {
		prev.Close()
	}
	w.open[id] = d
	w.mu.Unlock()
	return d, nil
}

// Get returns the signed-in dashboard of id, restoring it from storage when
// it is not open. It fails with session.ErrNotLoggedIn when there is none.
func (w *Workspaces) Get(ctx context.Context, id string) (*Dashboard, error) {
	if id == "" {
		return nil, ErrWorkspaceIDRequired
	}
	w.mu.Lock()
	d, ok := w.open[id]
	w.mu.Unlock()
	if ok && d.Session.IsAuthenticated() {
		return d, nil
	}

	d = w.build(id)
	sess, err := d.Session.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, session.ErrNotLoggedIn
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.open[id]; ok && existing.Session.IsAuthenticated() {
		return existing, nil
	}
	w.open[id] = d
	return d, nil
}

// Logout clears id's session. It is safe to call for an unknown id.
func (w *Workspaces) Logout(ctx context.Context, id string) error {
	if id == "" {
		return ErrWorkspaceIDRequired
	}
	w.mu.Lock()
	d, ok := w.open[id]
	delete(w.open, id)
	w.mu.Unlock()

	if !ok {
		d = w.build(id)
	}
	d.Close()
	return d.Session.Logout(ctx)
}
