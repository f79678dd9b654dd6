package contacts_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/sheets/sheetsfake"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id%06d", n)
	}
}

func newRepo(t *testing.T, seed ...contacts.Contact) (*contacts.Repository, *sheetsfake.Table, *testClock) {
	t.Helper()
	table := sheetsfake.NewTable(seed...)
	clock := &testClock{now: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
	repo := contacts.NewRepository(table,
		contacts.WithClock(clock.Now),
		contacts.WithIDGenerator(sequentialIDs()),
	)
	return repo, table, clock
}

func existing(id, name, email string) contacts.Contact {
	at := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)
	return contacts.Contact{
		ID:        id,
		Name:      name,
		Email:     email,
		Tags:      []string{},
		CreatedAt: at,
		UpdatedAt: at,
		Source:    contacts.SourceDashboard,
	}
}

func TestRepository_Add(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		patch    contacts.Patch
		wantKind contacts.Kind
		check    func(t *testing.T, c contacts.Contact)
	}{
		{
			name: "John Doe",
			patch: contacts.Patch{
				Name:  contacts.String("John Doe"),
				Email: contacts.String("john@example.com"),
			},
			check: func(t *testing.T, c contacts.Contact) {
				assert.NotEmpty(t, c.ID)
				assert.Equal(t, "John Doe", c.Name)
				assert.Equal(t, c.CreatedAt, c.UpdatedAt)
				assert.Equal(t, contacts.SourceDashboard, c.Source)
				assert.Equal(t, []string{}, c.Tags)
			},
		},
		{
			name: "explicit source and tags",
			patch: contacts.Patch{
				Name:   contacts.String("Jane"),
				Tags:   contacts.Tags("client", "vip"),
				Source: contacts.SourcePtr(contacts.SourceManual),
			},
			check: func(t *testing.T, c contacts.Contact) {
				assert.Equal(t, contacts.SourceManual, c.Source)
				assert.Equal(t, []string{"client", "vip"}, c.Tags)
			},
		},
		{
			name:     "missing name",
			patch:    contacts.Patch{Email: contacts.String("nobody@example.com")},
			wantKind: contacts.KindValidation,
		},
		{
			name:     "blank name",
			patch:    contacts.Patch{Name: contacts.String("  ")},
			wantKind: contacts.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, table, _ := newRepo(t)

			c, err := repo.Add(ctx, tt.patch)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, contacts.KindOf(err))
				assert.Zero(t, table.Appends)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)

			got, err := repo.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, c, got)
		})
	}
}

func TestRepository_AddRegeneratesCollidingIDs(t *testing.T) {
	ctx := context.Background()
	table := sheetsfake.NewTable(existing("taken", "Old", "old@example.com"))

	ids := []string{"taken", "fresh"}
	repo := contacts.NewRepository(table, contacts.WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))

	c, err := repo.Add(ctx, contacts.Patch{Name: contacts.String("New")})
	require.NoError(t, err)
	assert.Equal(t, "fresh", c.ID)
}

func TestRepository_AddFallsBackToFullUUID(t *testing.T) {
	ctx := context.Background()
	table := sheetsfake.NewTable(existing("taken", "Old", "old@example.com"))
	repo := contacts.NewRepository(table, contacts.WithIDGenerator(func() string { return "taken" }))

	c, err := repo.Add(ctx, contacts.Patch{Name: contacts.String("New")})
	require.NoError(t, err)
	assert.Len(t, c.ID, 36)
}

func TestRepository_ListAll(t *testing.T) {
	ctx := context.Background()
	repo, table, _ := newRepo(t,
		existing("a1", "Alice", "alice@example.com"),
		existing("b1", "Bob", "bob@example.com"),
	)
	table.InsertRaw(1, "", "Orphan", "orphan@example.com")
	table.InsertRaw(10, "", "", "")
	table.InsertRaw(10, "c1", "Carol")

	res, err := repo.ListAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Contacts, 3)
	assert.Equal(t, []string{"a1", "b1", "c1"}, []string{res.Contacts[0].ID, res.Contacts[1].ID, res.Contacts[2].ID})
	assert.Equal(t, contacts.SourceDashboard, res.Contacts[2].Source)
}

func TestRepository_ListAllEmpty(t *testing.T) {
	repo, _, _ := newRepo(t)

	res, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Contacts)
	assert.NotNil(t, res.Contacts)
	assert.Zero(t, res.Skipped)
}

func TestRepository_Update(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		id       string
		patch    contacts.Patch
		wantKind contacts.Kind
		check    func(t *testing.T, before, after contacts.Contact)
	}{
		{
			name:  "empty patch only touches updatedAt",
			id:    "a1",
			patch: contacts.Patch{},
			check: func(t *testing.T, before, after contacts.Contact) {
				after.UpdatedAt = before.UpdatedAt
				assert.Equal(t, before, after)
			},
		},
		{
			name:  "partial update keeps other fields",
			id:    "a1",
			patch: contacts.Patch{Phone: contacts.String("555-0100"), Tags: contacts.Tags("coach")},
			check: func(t *testing.T, before, after contacts.Contact) {
				assert.Equal(t, "555-0100", after.Phone)
				assert.Equal(t, []string{"coach"}, after.Tags)
				assert.Equal(t, before.Name, after.Name)
				assert.Equal(t, before.Email, after.Email)
				assert.Equal(t, before.CreatedAt, after.CreatedAt)
				assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
			},
		},
		{
			name:     "unknown id",
			id:       "missing",
			patch:    contacts.Patch{Name: contacts.String("X")},
			wantKind: contacts.KindNotFound,
		},
		{
			name:     "blank name",
			id:       "a1",
			patch:    contacts.Patch{Name: contacts.String("")},
			wantKind: contacts.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := existing("a1", "Alice", "alice@example.com")
			repo, table, _ := newRepo(t, before, existing("b1", "Bob", "bob@example.com"))

			after, err := repo.Update(ctx, tt.id, tt.patch)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, contacts.KindOf(err))
				assert.Zero(t, table.Updates)
				return
			}
			require.NoError(t, err)
			tt.check(t, before, after)

			stored, err := repo.Get(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, after, stored)
		})
	}
}

func TestRepository_UpdateNeverMovesUpdatedAtBackwards(t *testing.T) {
	ctx := context.Background()
	future := existing("a1", "Alice", "alice@example.com")
	future.UpdatedAt = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	repo, _, _ := newRepo(t, future)

	got, err := repo.Update(ctx, "a1", contacts.Patch{Notes: contacts.String("hi")})
	require.NoError(t, err)
	assert.Equal(t, future.UpdatedAt, got.UpdatedAt)
}

func TestRepository_UpdateFollowsShiftedRow(t *testing.T) {
	ctx := context.Background()
	repo, table, _ := newRepo(t,
		existing("a1", "Alice", "alice@example.com"),
		existing("b1", "Bob", "bob@example.com"),
	)

	shifted := false
	table.BeforeWrite = func(tb *sheetsfake.Table) {
		if !shifted {
			shifted = true
			tb.InsertRaw(0, "z9", "Inserted")
		}
	}

	got, err := repo.Update(ctx, "b1", contacts.Patch{Role: contacts.String("Captain")})
	require.NoError(t, err)
	assert.Equal(t, "Captain", got.Role)
	assert.Equal(t, 2, table.Updates)

	rows := table.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "b1", rows[2][0])
	assert.Equal(t, "Captain", rows[2][5])
	assert.Equal(t, "Alice", rows[1][1])
}

func TestRepository_UpdateConflictsWithConcurrentDelete(t *testing.T) {
	ctx := context.Background()
	repo, table, _ := newRepo(t, existing("a1", "Alice", "alice@example.com"))
	table.BeforeWrite = func(tb *sheetsfake.Table) { tb.RemoveID("a1") }

	_, err := repo.Update(ctx, "a1", contacts.Patch{Notes: contacts.String("late")})
	require.Error(t, err)
	assert.True(t, contacts.IsKind(err, contacts.KindConflict))
	assert.Empty(t, table.Rows())
}

func TestRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo, table, _ := newRepo(t,
		existing("a1", "Alice", "alice@example.com"),
		existing("b1", "Bob", "bob@example.com"),
	)

	require.NoError(t, repo.Delete(ctx, "a1"))
	require.NoError(t, repo.Delete(ctx, "a1"), "deleting twice succeeds")
	require.NoError(t, repo.Delete(ctx, "never-existed"))

	_, err := repo.Get(ctx, "a1")
	assert.True(t, contacts.IsKind(err, contacts.KindNotFound))

	rows := table.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "b1", rows[0][0])
	assert.Equal(t, 1, table.Deletes)
}

func TestRepository_DeleteRetriesShiftedRow(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		shifts   int
		wantKind contacts.Kind
	}{
		{name: "one shift is absorbed", shifts: 1},
		{name: "repeated shifts conflict", shifts: 2, wantKind: contacts.KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, table, _ := newRepo(t, existing("a1", "Alice", "alice@example.com"))
			left := tt.shifts
			table.BeforeWrite = func(tb *sheetsfake.Table) {
				if left > 0 {
					left--
					tb.InsertRaw(0, fmt.Sprintf("x%d", left), "Inserted")
				}
			}

			err := repo.Delete(ctx, "a1")
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, contacts.KindOf(err))
				return
			}
			require.NoError(t, err)
			for _, row := range table.Rows() {
				assert.NotEqual(t, "a1", row[0])
			}
		})
	}
}

func TestRepository_RemoteErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	remote := contacts.RemoteUnavailable(errors.New("503"), "sheets down")

	repo, table, _ := newRepo(t, existing("a1", "Alice", "alice@example.com"))

	table.ReadErr = remote
	_, err := repo.ListAll(ctx)
	assert.ErrorIs(t, err, remote)

	table.AppendErr = remote
	_, err = repo.Add(ctx, contacts.Patch{Name: contacts.String("New")})
	assert.ErrorIs(t, err, remote)

	table.UpdateErr = remote
	_, err = repo.Update(ctx, "a1", contacts.Patch{Notes: contacts.String("x")})
	assert.ErrorIs(t, err, remote)

	table.DeleteErr = remote
	err = repo.Delete(ctx, "a1")
	assert.ErrorIs(t, err, remote)
}

func TestRepository_SyncFromExternal(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		incoming []contacts.Patch
		want     contacts.SyncResult
		check    func(t *testing.T, list []contacts.Contact)
	}{
		{
			name: "additive: existing A and B plus changed B keeps A",
			incoming: []contacts.Patch{
				{ID: contacts.String("b1"), Name: contacts.String("Bob"), Email: contacts.String("bob@example.com"), Phone: contacts.String("555")},
			},
			want: contacts.SyncResult{Updated: 1},
			check: func(t *testing.T, list []contacts.Contact) {
				require.Len(t, list, 2)
				assert.Equal(t, "a1", list[0].ID)
				assert.Equal(t, "555", list[1].Phone)
			},
		},
		{
			name: "matches by email when id is unknown",
			incoming: []contacts.Patch{
				{ID: contacts.String("dashboard-7"), Name: contacts.String("Alice A."), Email: contacts.String("ALICE@example.com")},
			},
			want: contacts.SyncResult{Updated: 1},
			check: func(t *testing.T, list []contacts.Contact) {
				require.Len(t, list, 2)
				assert.Equal(t, "a1", list[0].ID)
				assert.Equal(t, "Alice A.", list[0].Name)
			},
		},
		{
			name: "new records are added with fresh ids",
			incoming: []contacts.Patch{
				{ID: contacts.String("external-1"), Name: contacts.String("Carol"), Email: contacts.String("carol@example.com")},
			},
			want: contacts.SyncResult{Added: 1},
			check: func(t *testing.T, list []contacts.Contact) {
				require.Len(t, list, 3)
				assert.Equal(t, "id000001", list[2].ID)
				assert.Equal(t, contacts.SourceDashboard, list[2].Source)
			},
		},
		{
			name: "duplicates within one payload collapse",
			incoming: []contacts.Patch{
				{Name: contacts.String("Dan"), Email: contacts.String("dan@example.com")},
				{Name: contacts.String("Dan"), Email: contacts.String("dan@example.com")},
			},
			want: contacts.SyncResult{Added: 1, Unchanged: 1},
			check: func(t *testing.T, list []contacts.Contact) {
				assert.Len(t, list, 3)
			},
		},
		{
			name: "records without a name are invalid",
			incoming: []contacts.Patch{
				{Email: contacts.String("nameless@example.com")},
				{Name: contacts.String(" "), Email: contacts.String("blank@example.com")},
				{Email: contacts.String("bob@example.com"), Phone: contacts.String("777")},
			},
			want: contacts.SyncResult{Invalid: 2, Updated: 1},
			check: func(t *testing.T, list []contacts.Contact) {
				require.Len(t, list, 2)
				assert.Equal(t, "777", list[1].Phone)
				assert.Equal(t, "Bob", list[1].Name)
			},
		},
		{
			name:     "empty payload",
			incoming: nil,
			want:     contacts.SyncResult{},
			check: func(t *testing.T, list []contacts.Contact) {
				assert.Len(t, list, 2)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _, _ := newRepo(t,
				existing("a1", "Alice", "alice@example.com"),
				existing("b1", "Bob", "bob@example.com"),
			)

			got, err := repo.SyncFromExternal(ctx, tt.incoming)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			list, err := repo.ListAll(ctx)
			require.NoError(t, err)
			tt.check(t, list.Contacts)
		})
	}
}

func TestRepository_SyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, _, clock := newRepo(t, existing("a1", "Alice", "alice@example.com"))

	payload := []contacts.Patch{
		{Name: contacts.String("Alice"), Email: contacts.String("alice@example.com")},
		{Name: contacts.String("John Smith"), Email: contacts.String("john.smith@example.com"), Tags: contacts.Tags("client")},
		{Name: contacts.String("Sarah Johnson"), Email: contacts.String("sarah.johnson@example.com"), Organization: contacts.String("Team Eagles")},
	}

	first, err := repo.SyncFromExternal(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, contacts.SyncResult{Added: 2, Unchanged: 1}, first)

	clock.Advance(time.Minute)
	second, err := repo.SyncFromExternal(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, contacts.SyncResult{Unchanged: 3}, second)
}

func TestRepository_PaddedFieldsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepo(t)

	added, err := repo.Add(ctx, contacts.Patch{
		Name:  contacts.String("John Doe"),
		Email: contacts.String(" john@example.com "),
		Phone: contacts.String(" 555 0100"),
		Notes: contacts.String("line\n"),
		Tags:  &contacts.TagList{"client,vip"},
	})
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", added.Email)
	assert.Equal(t, "line", added.Notes)

	got, err := repo.Get(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, added, got)
}

func TestRepository_PaddedSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, _, clock := newRepo(t)

	payload := []contacts.Patch{
		{Name: contacts.String("Jane"), Email: contacts.String("jane@example.com "), Phone: contacts.String(" 555")},
	}

	first, err := repo.SyncFromExternal(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, contacts.SyncResult{Added: 1}, first)

	before, err := repo.ListAll(ctx)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	second, err := repo.SyncFromExternal(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, contacts.SyncResult{Unchanged: 1}, second)

	after, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Contacts, after.Contacts)
}

func TestRepository_SyncReturnsPartialCountsOnFailure(t *testing.T) {
	ctx := context.Background()
	repo, table, _ := newRepo(t, existing("a1", "Alice", "alice@example.com"))

	table.AppendErr = contacts.RemoteUnavailable(errors.New("timeout"), "append")
	got, err := repo.SyncFromExternal(ctx, []contacts.Patch{
		{Email: contacts.String("alice@example.com"), Phone: contacts.String("555")},
		{Name: contacts.String("Second"), Email: contacts.String("second@example.com")},
		{Name: contacts.String("Third"), Email: contacts.String("third@example.com")},
	})
	require.Error(t, err)
	assert.True(t, contacts.IsKind(err, contacts.KindRemoteUnavailable))
	assert.Equal(t, contacts.SyncResult{Updated: 1}, got)
	assert.Len(t, table.Rows(), 1)
}
