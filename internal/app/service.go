package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/codegouvfr/sill-web/internal/catalog"
	"github.com/codegouvfr/sill-web/internal/domain"
	"github.com/codegouvfr/sill-web/internal/userauth"
)

const (
	cleanupInterval   = time.Minute
	initTimeout       = 15 * time.Second
	unknownAPIVersion = "unknown"
)

// SessionFactory builds the identity and the backend view of a browser
// session.
type SessionFactory func(ctx context.Context, sessionID string) (domain.Identity, domain.SillAPI, error)

// SessionMetrics observes the session registry. *metrics.SessionMetrics
// implements it.
type SessionMetrics interface {
	SessionCreated()
	SessionDropped(reason string)
}

// ReferenceInvalidator drops cached reference data after it changed.
type ReferenceInvalidator interface {
	InvalidateAgencyNames(ctx context.Context) error
}

// Session is the server-side state of one browser session.
type Session struct {
	ID       string
	Identity domain.Identity
	API      domain.SillAPI
	Workflow *userauth.Workflow

	lastSeen time.Time
}

type Options struct {
	IdleTimeout time.Duration
	Recorder    userauth.UpdateRecorder
	Metrics     SessionMetrics
	References  ReferenceInvalidator
}

// Service is the application layer. It orchestrates the use cases and
// owns the session registry.
type Service struct {
	factory    SessionFactory
	explorer   *catalog.Explorer
	recorder   userauth.UpdateRecorder
	metrics    SessionMetrics
	references ReferenceInvalidator
	clock      clockwork.Clock
	idle       time.Duration

	mu        sync.Mutex
	sessions  map[string]*Session
	initGroup singleflight.Group

	versionMu  sync.RWMutex
	apiVersion string

	cleanupStopCh chan struct{}
	stopOnce      sync.Once
	cleanupWg     sync.WaitGroup
}

func NewService(factory SessionFactory, explorer *catalog.Explorer, clock clockwork.Clock, opts Options) *Service {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	s := &Service{
		factory:       factory,
		explorer:      explorer,
		recorder:      opts.Recorder,
		metrics:       opts.Metrics,
		references:    opts.References,
		clock:         clock,
		idle:          opts.IdleTimeout,
		sessions:      make(map[string]*Session),
		apiVersion:    unknownAPIVersion,
		cleanupStopCh: make(chan struct{}),
	}

	s.startCleanupTimer()
	return s
}

// Session returns the initialized session for sessionID, creating it on
// first use. Concurrent first requests share one initialization.
func (s *Service) Session(ctx context.Context, sessionID string) (*Session, error) {
	if sess, ok := s.lookup(sessionID); ok {
		return sess, nil
	}

	v, err, _ := s.initGroup.Do(sessionID, func() (any, error) {
		if sess, ok := s.lookup(sessionID); ok {
			return sess, nil
		}

		// Shared by every waiting request: one caller going away must not
		// fail the others.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), initTimeout)
		defer cancel()

		identity, api, err := s.factory(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to build session: %w", err)
		}

		workflow := userauth.New(api, identity, s.recorder)
		if err := workflow.Initialize(ctx); err != nil {
			return nil, err
		}

		sess := &Session{
			ID:       sessionID,
			Identity: identity,
			API:      api,
			Workflow: workflow,
			lastSeen: s.clock.Now(),
		}

		s.mu.Lock()
		s.sessions[sessionID] = sess
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.SessionCreated()
		}
		slog.DebugContext(ctx, "Session initialized", "logged_in", identity.IsLoggedIn())
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (s *Service) lookup(sessionID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if ok {
		sess.lastSeen = s.clock.Now()
	}
	return sess, ok
}

// Drop forgets a session; the next request rebuilds it from scratch, as a
// full page reload would.
func (s *Service) Drop(sessionID, reason string) {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok && s.metrics != nil {
		s.metrics.SessionDropped(reason)
	}
}

// dropIfExpired drops sess when err says its login ended behind its back,
// typically a refresh token rejected by the identity provider. The next
// request rebuilds it as anonymous.
func (s *Service) dropIfExpired(ctx context.Context, sess *Session, err error) bool {
	if !errors.Is(err, domain.ErrNotAuthenticated) {
		return false
	}
	slog.InfoContext(ctx, "Session login expired")
	s.Drop(sess.ID, "expired")
	return true
}

// SessionCount returns the number of sessions held in memory.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CleanupIdle drops sessions not seen for longer than the idle timeout.
func (s *Service) CleanupIdle() int {
	cutoff := s.clock.Now().Add(-s.idle)

	s.mu.Lock()
	var idle []string
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	for _, id := range idle {
		s.Drop(id, "idle")
	}
	if len(idle) > 0 {
		slog.Debug("Dropped idle sessions", "count", len(idle), "remaining", s.SessionCount())
	}
	return len(idle)
}

func (s *Service) startCleanupTimer() {
	ticker := s.clock.NewTicker(cleanupInterval)
	s.cleanupWg.Go(func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				s.CleanupIdle()
			case <-s.cleanupStopCh:
				return
			}
		}
	})
}

// Stop stops the cleanup timer and waits for it to exit.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.cleanupStopCh)
	})
	s.cleanupWg.Wait()
}

// LoadAPIVersion fetches the backend version shown in the footer. A failure
// is logged and leaves the version "unknown".
func (s *Service) LoadAPIVersion(ctx context.Context, api interface {
	APIVersion(ctx context.Context) (string, error)
}) {
	v, err := api.APIVersion(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to fetch SILL API version", "error", err)
		return
	}
	s.versionMu.Lock()
	s.apiVersion = v
	s.versionMu.Unlock()
}

func (s *Service) APIVersion() string {
	s.versionMu.RLock()
	defer s.versionMu.RUnlock()
	return s.apiVersion
}

// Catalog builds the catalog page for sess. A session whose login expired
// gets the anonymous page.
func (s *Service) Catalog(ctx context.Context, sess *Session, q catalog.Query) (*catalog.Page, error) {
	if !sess.Identity.IsLoggedIn() {
		return s.explorer.View(ctx, nil, q)
	}
	page, err := s.explorer.View(ctx, sess.API, q)
	if s.dropIfExpired(ctx, sess, err) {
		return s.explorer.View(ctx, nil, q)
	}
	return page, err
}

// RequireLogin starts a login when page needs an authenticated session. It
// returns nil when the visit may proceed.
func (s *Service) RequireLogin(ctx context.Context, sess *Session, page Page) error {
	if !page.RequiresLogin || sess.Identity.IsLoggedIn() {
		return nil
	}
	return s.Login(ctx, sess, true)
}

// Login always returns an error, a *domain.Redirect on success. The session
// is dropped so the login callback finds a fresh one.
func (s *Service) Login(ctx context.Context, sess *Session, requiresAuth bool) error {
	err := sess.Workflow.Login(ctx, requiresAuth)
	if _, ok := errors.AsType[*domain.Redirect](err); ok {
		s.Drop(sess.ID, "login")
	}
	return err
}

// Logout always returns an error, a *domain.Redirect on success.
func (s *Service) Logout(ctx context.Context, sess *Session) error {
	err := sess.Workflow.Logout(ctx, domain.LogoutToHome)
	s.Drop(sess.ID, "logout")
	return err
}
