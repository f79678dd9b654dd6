package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/logging"
)

const (
	// DefaultRefreshMargin is how close to expiry a token is refreshed.
	DefaultRefreshMargin = 5 * time.Minute

	// DefaultRefreshTimeout bounds a single refresh round-trip.
	DefaultRefreshTimeout = 10 * time.Second

	// DefaultCleanupInterval is how often StartCleanup sweeps dead sessions.
	DefaultCleanupInterval = time.Minute
)

// Store maps session ids to credentials, refreshing them on demand.
//
// Entries are immutable; an update replaces the pointer under the write lock,
// so readers observe either the old or the new credential. The lock is never
// held while talking to the token endpoint or a persister.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Credential

	refresher Refresher
	persister Persister
	group     singleflight.Group

	now            func() time.Time
	refreshMargin  time.Duration
	refreshTimeout time.Duration

	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRefreshMargin sets how early before expiry credentials are refreshed.
func WithRefreshMargin(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.refreshMargin = d
		}
	}
}

// WithRefreshTimeout bounds each refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// WithPersister enables write-through persistence.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		if p != nil {
			s.persister = p
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records refresh and resolve outcomes.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a Store that refreshes credentials through refresher.
func NewStore(refresher Refresher, opts ...Option) *Store {
	s := &Store{
		sessions:       make(map[string]*Credential),
		refresher:      refresher,
		persister:      MemoryPersister{},
		now:            time.Now,
		refreshMargin:  DefaultRefreshMargin,
		refreshTimeout: DefaultRefreshTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSessionID returns a fresh opaque session id.
func NewSessionID() string {
	return uuid.NewString()
}

func authRequired(reason string) error {
	return fmt.Errorf("%w: %s", ErrAuthRequired, reason)
}

// Resolve returns a usable credential for sessionID, refreshing it first when
// it is expired or about to expire. Failures match ErrAuthRequired, except
// when ctx ends while a refresh is in flight, which is a RemoteUnavailable
// contacts error.
func (s *Store) Resolve(ctx context.Context, sessionID string) (Credential, error) {
	if sessionID == "" {
		s.metrics.RecordCredentialResolve(ctx, instrumentation.ResolveAuthRequired)
		return Credential{}, authRequired("missing session id")
	}

	cur, err := s.lookup(ctx, sessionID)
	if err != nil {
		s.metrics.RecordCredentialResolve(ctx, instrumentation.ResolveAuthRequired)
		return Credential{}, err
	}

	if !cur.needsRefresh(s.now(), s.refreshMargin) {
		s.metrics.RecordCredentialResolve(ctx, instrumentation.ResolveCached)
		return *cur, nil
	}

	if cur.RefreshToken == "" {
		if cur.expired(s.now()) {
			s.evictIfCurrent(ctx, sessionID, cur)
			s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
			s.metrics.RecordCredentialResolve(ctx, instrumentation.ResolveAuthRequired)
			return Credential{}, authRequired("credential expired and cannot be refreshed")
		}
		// Inside the margin but still valid: use it while it lasts.
		s.metrics.RecordCredentialResolve(ctx, instrumentation.ResolveCached)
		return *cur, nil
	}

	ch := s.group.DoChan(sessionID, func() (any, error) {
		return s.refresh(ctx, sessionID, cur)
	})
	select {
	case <-ctx.Done():
		// The session may still be valid; the refresh keeps running for
		// the other waiters.
		s.metrics.RecordCredentialResolve(ctx, instrumentation.ResolveCanceled)
		return Credential{}, contacts.RemoteUnavailable(ctx.Err(), "gave up waiting for token refresh")
	case res := <-ch:
		if res.Err != nil {
			s.metrics.RecordCredentialResolve(ctx, instrumentation.ResolveAuthRequired)
			return Credential{}, res.Err
		}
		s.metrics.RecordCredentialResolve(ctx, instrumentation.ResolveRefreshed)
		return res.Val.(Credential), nil
	}
}

// lookup returns the in-memory entry, falling back to the persister on a miss.
func (s *Store) lookup(ctx context.Context, sessionID string) (*Credential, error) {
	s.mu.RLock()
	cur, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return cur, nil
	}

	cred, found, err := s.persister.Load(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Failed to load persisted session",
			logging.SessionHash(sessionID), logging.Err(err))
	}
	if !found {
		return nil, authRequired("unknown session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sessionID]; ok {
		return existing, nil
	}
	loaded := &cred
	s.sessions[sessionID] = loaded
	s.metrics.IncrementActiveSessions(ctx)
	return loaded, nil
}

// refresh runs once per session at a time; concurrent resolvers share its result.
func (s *Store) refresh(ctx context.Context, sessionID string, old *Credential) (Credential, error) {
	// The refresh outlives any single waiter but never the timeout.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
	defer cancel()

	log := s.logger.With(logging.SessionHash(sessionID), logging.Tenant(old.CoachID))

	if s.refresher == nil {
		s.evictIfCurrent(ctx, sessionID, old)
		return Credential{}, authRequired("token refresh is not configured")
	}

	tok, err := s.refresher.Refresh(rctx, *old)
	if err != nil {
		s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		log.Warn("Token refresh failed, evicting session",
			slog.Bool("invalid_grant", IsInvalidGrant(err)), logging.Err(err))
		s.evictIfCurrent(ctx, sessionID, old)
		return Credential{}, fmt.Errorf("%w: %w", ErrAuthRequired, err)
	}
	if tok == nil || tok.AccessToken == "" {
		s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		s.evictIfCurrent(ctx, sessionID, old)
		return Credential{}, authRequired("token endpoint returned no access token")
	}

	next := old.refreshed(tok)

	s.mu.Lock()
	cur, ok := s.sessions[sessionID]
	switch {
	case !ok:
		// Evicted while refreshing; do not bring it back.
		s.mu.Unlock()
		s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
		return Credential{}, authRequired("session ended during refresh")
	case cur != old:
		// Replaced by Put while refreshing; the newer credential wins.
		s.mu.Unlock()
		s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
		return *cur, nil
	}
	s.sessions[sessionID] = &next
	s.mu.Unlock()

	s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	log.Debug("Refreshed session credential", slog.Time("expiry", next.Expiry))

	if err := s.persister.Save(rctx, sessionID, next); err != nil {
		log.Warn("Failed to persist refreshed credential", logging.Err(err))
	}
	return next, nil
}

// Put stores cred under sessionID, replacing any previous credential.
func (s *Store) Put(ctx context.Context, sessionID string, cred Credential) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if cred.AccessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	c := cred
	s.mu.Lock()
	_, existed := s.sessions[sessionID]
	s.sessions[sessionID] = &c
	s.mu.Unlock()

	if !existed {
		s.metrics.IncrementActiveSessions(ctx)
	}
	s.logger.Debug("Saved session credential",
		logging.SessionHash(sessionID), logging.Tenant(cred.CoachID), slog.Time("expiry", cred.Expiry),
		slog.String("refresh_token", logging.SanitizeToken(cred.RefreshToken)))

	if err := s.persister.Save(ctx, sessionID, c); err != nil {
		s.logger.Warn("Failed to persist session", logging.SessionHash(sessionID), logging.Err(err))
	}
	return nil
}

// Evict removes a session. Evicting an unknown session is a no-op.
func (s *Store) Evict(ctx context.Context, sessionID string) {
	s.mu.Lock()
	_, existed := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.afterEvict(ctx, sessionID, existed)
}

// evictIfCurrent evicts only when the entry is still old, so a concurrent Put survives.
func (s *Store) evictIfCurrent(ctx context.Context, sessionID string, old *Credential) {
	s.mu.Lock()
	cur, ok := s.sessions[sessionID]
	if !ok || cur != old {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.afterEvict(ctx, sessionID, true)
}

func (s *Store) afterEvict(ctx context.Context, sessionID string, existed bool) {
	if existed {
		s.metrics.DecrementActiveSessions(ctx)
		s.logger.Info("Evicted session", logging.SessionHash(sessionID))
	}
	if err := s.persister.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to delete persisted session", logging.SessionHash(sessionID), logging.Err(err))
	}
}

// Len returns the number of sessions held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stats returns counts for the health endpoint.
func (s *Store) Stats() map[string]int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{"sessions": len(s.sessions), "refreshable": 0, "expired": 0}
	for _, c := range s.sessions {
		if c.RefreshToken != "" {
			stats["refreshable"]++
		}
		if c.expired(now) {
			stats["expired"]++
		}
	}
	return stats
}

// Cleanup removes expired sessions that cannot be refreshed and returns how many went.
// Candidates are collected under the read lock and re-checked under the write lock.
func (s *Store) Cleanup(ctx context.Context) int {
	now := s.now()

	s.mu.RLock()
	var candidates []string
	for id, c := range s.sessions {
		if c.RefreshToken == "" && c.expired(now) {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return 0
	}

	var removed []string
	s.mu.Lock()
	for _, id := range candidates {
		if c, ok := s.sessions[id]; ok && c.RefreshToken == "" && c.expired(s.now()) {
			delete(s.sessions, id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()

	for _, id := range removed {
		s.afterEvict(ctx, id, true)
	}
	return len(removed)
}

// StartCleanup sweeps dead sessions every interval until ctx is done.
func (s *Store) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Cleanup(ctx); n > 0 {
					s.logger.Debug("Cleaned up expired sessions", slog.Int("count", n))
				}
			}
		}
	}()
}

// IsAuthRequired reports whether err means the caller must re-authenticate.
func IsAuthRequired(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}
