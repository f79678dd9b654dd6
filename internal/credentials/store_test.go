package credentials

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/coachcontacts/internal/contacts"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingRefresher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, cred Credential) (*oauth2.Token, error)
}

func (r *countingRefresher) Refresh(ctx context.Context, cred Credential) (*oauth2.Token, error) {
	r.calls.Add(1)
	return r.fn(ctx, cred)
}

func issuing(clock *fakeClock, access string) *countingRefresher {
	return &countingRefresher{fn: func(context.Context, Credential) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: access, TokenType: "Bearer", Expiry: clock.Now().Add(time.Hour)}, nil
	}}
}

func TestStore_Resolve(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		sessionID     string
		seed          *Credential
		expiresIn     time.Duration
		refresher     func(*fakeClock) *countingRefresher
		wantErr       bool
		wantAccess    string
		wantRefreshes int32
		wantEvicted   bool
	}{
		{
			name:      "empty session id",
			sessionID: "",
			refresher: func(c *fakeClock) *countingRefresher { return issuing(c, "new") },
			wantErr:   true,
		},
		{
			name:      "unknown session",
			sessionID: "nope",
			refresher: func(c *fakeClock) *countingRefresher { return issuing(c, "new") },
			wantErr:   true,
		},
		{
			name:       "fresh credential is returned as is",
			sessionID:  "s1",
			seed:       &Credential{AccessToken: "old", RefreshToken: "rt"},
			expiresIn:  time.Hour,
			refresher:  func(c *fakeClock) *countingRefresher { return issuing(c, "new") },
			wantAccess: "old",
		},
		{
			name:       "zero expiry never refreshes",
			sessionID:  "s1",
			seed:       &Credential{AccessToken: "old"},
			refresher:  func(c *fakeClock) *countingRefresher { return issuing(c, "new") },
			wantAccess: "old",
		},
		{
			name:          "within margin refreshes once",
			sessionID:     "s1",
			seed:          &Credential{AccessToken: "old", RefreshToken: "rt"},
			expiresIn:     2 * time.Minute,
			refresher:     func(c *fakeClock) *countingRefresher { return issuing(c, "new") },
			wantAccess:    "new",
			wantRefreshes: 1,
		},
		{
			name:          "already expired refreshes",
			sessionID:     "s1",
			seed:          &Credential{AccessToken: "old", RefreshToken: "rt"},
			expiresIn:     -time.Minute,
			refresher:     func(c *fakeClock) *countingRefresher { return issuing(c, "new") },
			wantAccess:    "new",
			wantRefreshes: 1,
		},
		{
			name:          "refresh failure evicts",
			sessionID:     "s1",
			seed:          &Credential{AccessToken: "old", RefreshToken: "rt"},
			expiresIn:     time.Minute,
			refresher:     func(*fakeClock) *countingRefresher { return failing(errors.New("invalid_grant")) },
			wantErr:       true,
			wantRefreshes: 1,
			wantEvicted:   true,
		},
		{
			name:        "expired without refresh token evicts",
			sessionID:   "s1",
			seed:        &Credential{AccessToken: "old"},
			expiresIn:   -time.Second,
			refresher:   func(c *fakeClock) *countingRefresher { return issuing(c, "new") },
			wantErr:     true,
			wantEvicted: true,
		},
		{
			name:       "inside margin without refresh token is still usable",
			sessionID:  "s1",
			seed:       &Credential{AccessToken: "old"},
			expiresIn:  time.Minute,
			refresher:  func(c *fakeClock) *countingRefresher { return issuing(c, "new") },
			wantAccess: "old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			refresher := tt.refresher(clock)
			store := NewStore(refresher, WithClock(clock.Now))

			if tt.seed != nil {
				seed := *tt.seed
				if tt.expiresIn != 0 {
					seed.Expiry = clock.Now().Add(tt.expiresIn)
				}
				require.NoError(t, store.Put(ctx, tt.sessionID, seed))
			}

			got, err := store.Resolve(ctx, tt.sessionID)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAuthRequired)
				assert.True(t, IsAuthRequired(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAccess, got.AccessToken)
			}
			assert.Equal(t, tt.wantRefreshes, refresher.calls.Load())
			if tt.wantEvicted {
				assert.Zero(t, store.Len())
			}
		})
	}
}

func failing(err error) *countingRefresher {
	return &countingRefresher{fn: func(context.Context, Credential) (*oauth2.Token, error) {
		return nil, err
	}}
}

func TestStore_RefreshKeepsRefreshTokenAndIdentity(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewStore(issuing(clock, "new"), WithClock(clock.Now))

	require.NoError(t, store.Put(ctx, "s1", Credential{
		AccessToken:  "old",
		RefreshToken: "rt",
		Expiry:       clock.Now().Add(time.Minute),
		Scopes:       []string{"spreadsheets"},
		CoachID:      "coach-1",
		Email:        "coach@club.example",
	}))

	got, err := store.Resolve(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.Equal(t, "rt", got.RefreshToken)
	assert.Equal(t, "coach-1", got.CoachID)
	assert.Equal(t, "coach@club.example", got.Email)
	assert.Equal(t, []string{"spreadsheets"}, got.Scopes)

	// The refreshed credential is now stored; no second refresh.
	again, err := store.Resolve(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "new", again.AccessToken)
}

func TestStore_ConcurrentResolveRefreshesOnce(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	release := make(chan struct{})
	refresher := &countingRefresher{fn: func(context.Context, Credential) (*oauth2.Token, error) {
		<-release
		return &oauth2.Token{AccessToken: "new", Expiry: clock.Now().Add(time.Hour)}, nil
	}}
	store := NewStore(refresher, WithClock(clock.Now))
	require.NoError(t, store.Put(ctx, "s1", Credential{AccessToken: "old", RefreshToken: "rt", Expiry: clock.Now()}))

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := store.Resolve(ctx, "s1")
			if err == nil {
				results <- cred.AccessToken
			}
		}()
	}

	// Let the callers pile up on the in-flight refresh before it completes.
	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), refresher.calls.Load())
	for access := range results {
		assert.Equal(t, "new", access)
	}
}

func TestStore_EvictDuringRefreshIsNotResurrected(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	started := make(chan struct{})
	release := make(chan struct{})
	refresher := &countingRefresher{fn: func(context.Context, Credential) (*oauth2.Token, error) {
		close(started)
		<-release
		return &oauth2.Token{AccessToken: "new", Expiry: clock.Now().Add(time.Hour)}, nil
	}}
	store := NewStore(refresher, WithClock(clock.Now))
	require.NoError(t, store.Put(ctx, "s1", Credential{AccessToken: "old", RefreshToken: "rt", Expiry: clock.Now()}))

	errCh := make(chan error, 1)
	go func() {
		_, err := store.Resolve(ctx, "s1")
		errCh <- err
	}()

	<-started
	store.Evict(ctx, "s1")
	close(release)

	assert.ErrorIs(t, <-errCh, ErrAuthRequired)
	assert.Zero(t, store.Len())
	_, err := store.Resolve(ctx, "s1")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestStore_ResolveHonoursCallerContext(t *testing.T) {
	clock := newFakeClock()
	release := make(chan struct{})
	defer close(release)

	refresher := &countingRefresher{fn: func(context.Context, Credential) (*oauth2.Token, error) {
		<-release
		return &oauth2.Token{AccessToken: "new"}, nil
	}}
	store := NewStore(refresher, WithClock(clock.Now))
	require.NoError(t, store.Put(context.Background(), "s1", Credential{AccessToken: "old", RefreshToken: "rt", Expiry: clock.Now()}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := store.Resolve(ctx, "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthRequired, "a client timeout must not ask for a new sign-in")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, contacts.IsKind(err, contacts.KindRemoteUnavailable))
	assert.Equal(t, 1, store.Len(), "the session survives the abandoned wait")
}

func TestStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewStore(issuing(clock, "new"), WithClock(clock.Now))

	require.NoError(t, store.Put(ctx, "dead", Credential{AccessToken: "a", Expiry: clock.Now().Add(time.Minute)}))
	require.NoError(t, store.Put(ctx, "refreshable", Credential{AccessToken: "b", RefreshToken: "rt", Expiry: clock.Now().Add(time.Minute)}))
	require.NoError(t, store.Put(ctx, "forever", Credential{AccessToken: "c"}))

	assert.Zero(t, store.Cleanup(ctx))

	clock.Advance(2 * time.Minute)
	stats := store.Stats()
	assert.Equal(t, 3, stats["sessions"])
	assert.Equal(t, 2, stats["expired"])
	assert.Equal(t, 1, stats["refreshable"])

	assert.Equal(t, 1, store.Cleanup(ctx))
	assert.Equal(t, 2, store.Len())
}

func TestStore_PutValidation(t *testing.T) {
	store := NewStore(failing(errors.New("unused")))

	assert.Error(t, store.Put(context.Background(), "", Credential{AccessToken: "a"}))
	assert.Error(t, store.Put(context.Background(), "s1", Credential{}))
	assert.Zero(t, store.Len())
}

func TestStore_WithoutRefresherEvictsExpiring(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewStore(nil, WithClock(clock.Now))

	require.NoError(t, store.Put(ctx, "s1", Credential{AccessToken: "a", Expiry: clock.Now().Add(time.Minute)}))

	_, err := store.Resolve(ctx, "s1")
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Zero(t, store.Len())
}

func TestStore_LoadsFromPersisterOnMiss(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	persister, err := NewFilePersister(t.TempDir()+"/sessions.json", &Codec{})
	require.NoError(t, err)

	first := NewStore(issuing(clock, "new"), WithClock(clock.Now), WithPersister(persister))
	require.NoError(t, first.Put(ctx, "s1", Credential{AccessToken: "persisted", Expiry: clock.Now().Add(time.Hour), CoachID: "c1"}))

	// A second store simulates a restart.
	second := NewStore(issuing(clock, "new"), WithClock(clock.Now), WithPersister(persister))
	got, err := second.Resolve(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.AccessToken)
	assert.Equal(t, "c1", got.CoachID)

	second.Evict(ctx, "s1")
	third := NewStore(issuing(clock, "new"), WithClock(clock.Now), WithPersister(persister))
	_, err = third.Resolve(ctx, "s1")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestStore_StartCleanupStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := newFakeClock()
	store := NewStore(issuing(clock, "new"), WithClock(clock.Now))
	require.NoError(t, store.Put(ctx, "dead", Credential{AccessToken: "a", Expiry: clock.Now().Add(-time.Second)}))

	store.StartCleanup(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}
