package chat

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/shopkeeper/internal/reconcile"
	testutil "github.com/aristath/shopkeeper/internal/testing"
)

type fixture struct {
	db       *sql.DB
	clock    *testutil.Clock
	sessions *SessionRepository
	messages *MessageRepository
	staff    *StaffRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewMemoryDB(t)
	clock := testutil.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	f := &fixture{
		db:       db,
		clock:    clock,
		sessions: NewSessionRepository(db, zerolog.Nop()),
		messages: NewMessageRepository(db, zerolog.Nop()),
		staff:    NewStaffRepository(db, zerolog.Nop()),
	}
	f.sessions.SetClock(clock.Now)
	f.messages.SetClock(clock.Now)
	f.staff.now = clock.Now
	return f
}

func (f *fixture) idleSession(t *testing.T, status reconcile.State, idle time.Duration) *Session {
	t.Helper()
	at := f.clock.Now().Add(-idle)
	s := &Session{CustomerID: "c1", Status: status, CreatedAt: at, LastActivityAt: at}
	require.NoError(t, f.sessions.Create(context.Background(), s))
	return s
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	s := &Session{CustomerID: "c1"}
	require.NoError(t, f.sessions.Create(ctx, s))

	got, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
	assert.True(t, got.IsActive)
	assert.False(t, got.Terminal)
	assert.Empty(t, got.StaffID)
	assert.Nil(t, got.ClosedAt)
	assert.True(t, f.clock.Now().Equal(got.LastActivityAt))

	_, err = f.sessions.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRepository_PostBumpsActivity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := f.idleSession(t, StatusOpen, 3*time.Hour)

	m, err := f.messages.Post(ctx, s.ID, "c1", "hello?")
	require.NoError(t, err)
	assert.False(t, m.IsSystem)

	got, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, f.clock.Now().Equal(got.LastActivityAt))

	msgs, err := f.messages.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "c1", msgs[0].SenderID)
	assert.Equal(t, "hello?", msgs[0].Body)
}

func TestMessageRepository_PostToClosedSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := f.idleSession(t, StatusClosed, time.Hour)

	_, err := f.messages.Post(ctx, s.ID, "c1", "anyone?")
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = f.messages.Post(ctx, "missing", "c1", "anyone?")
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := f.messages.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSessionRepository_Resolve(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	open := f.idleSession(t, StatusOpen, time.Minute)
	assert.ErrorIs(t, f.sessions.Resolve(ctx, open.ID), ErrInvalidTransition)
	assert.ErrorIs(t, f.sessions.Resolve(ctx, "missing"), ErrNotFound)

	assigned := f.idleSession(t, StatusAssigned, time.Minute)
	require.NoError(t, f.sessions.Resolve(ctx, assigned.ID))

	got, err := f.sessions.GetByID(ctx, assigned.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	assert.True(t, got.Terminal)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.ClosedAt)
}

func TestSessionRepository_FindStale_Unassigned(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := f.clock.Now()

	waiting := f.idleSession(t, StatusOpen, 10*time.Minute)
	withStaff := &Session{CustomerID: "c2", StaffID: "s1", StaffName: "Ana", Status: StatusOpen,
		CreatedAt: now.Add(-time.Hour), LastActivityAt: now.Add(-time.Hour)}
	require.NoError(t, f.sessions.Create(ctx, withStaff))

	found, err := f.sessions.FindStale(ctx, reconcile.Query{
		States:          []reconcile.State{StatusOpen},
		InactiveBefore:  now.Add(-5 * time.Minute),
		ExcludeTerminal: true,
		Meta:            map[string]string{FilterUnassigned: "true"},
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, waiting.ID, found[0].ID)

	found, err = f.sessions.FindStale(ctx, reconcile.Query{
		States:         []reconcile.State{StatusOpen},
		InactiveBefore: now.Add(-5 * time.Minute),
	})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestStaffRepository_LeastLoaded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	busy := &Staff{Name: "Busy", Active: true, MaxActiveChats: 3, CreatedAt: f.clock.Now().Add(-2 * time.Hour)}
	idle := &Staff{Name: "Idle", Active: true, MaxActiveChats: 3, CreatedAt: f.clock.Now().Add(-time.Hour)}
	away := &Staff{Name: "Away", Active: false, MaxActiveChats: 3}
	for _, s := range []*Staff{busy, idle, away} {
		require.NoError(t, f.staff.Create(ctx, s))
	}
	require.NoError(t, f.staff.SetActive(ctx, away.ID, false))

	require.NoError(t, f.sessions.Create(ctx, &Session{CustomerID: "c1", StaffID: busy.ID, Status: StatusAssigned}))

	got, err := f.staff.LeastLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, idle.ID, got.ID)
	assert.Equal(t, 0, got.ActiveChats)

	// Terminal sessions do not count towards load
	require.NoError(t, f.sessions.Create(ctx, &Session{CustomerID: "c2", StaffID: idle.ID, Status: StatusAssigned}))
	require.NoError(t, f.sessions.Create(ctx, &Session{CustomerID: "c3", StaffID: busy.ID, Status: StatusClosed}))

	got, err = f.staff.LeastLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, busy.ID, got.ID, "ties go to the longest serving member")
	assert.Equal(t, 1, got.ActiveChats)
}

func TestStaffRepository_LeastLoaded_AtCapacity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.staff.LeastLoaded(ctx)
	assert.ErrorIs(t, err, ErrNoStaffAvailable)

	s := &Staff{Name: "Solo", Active: true, MaxActiveChats: 1}
	require.NoError(t, f.staff.Create(ctx, s))
	require.NoError(t, f.sessions.Create(ctx, &Session{CustomerID: "c1", StaffID: s.ID, Status: StatusAssigned}))

	_, err = f.staff.LeastLoaded(ctx)
	assert.ErrorIs(t, err, ErrNoStaffAvailable)
}
