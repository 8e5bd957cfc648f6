package chat

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/shopkeeper/internal/reconcile"
)

func TestRules_Validate(t *testing.T) {
	f := setup(t)

	require.NoError(t, InactivityRule(24*time.Hour).Validate(Transitions))
	require.NoError(t, AssignmentRule(5*time.Minute, f.staff).Validate(Transitions))
	assert.ErrorIs(t, InactivityRule(0).Validate(Transitions), reconcile.ErrInvalidRule)
}

func TestInactivityPass_ClosesIdleSessions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	idleOpen := f.idleSession(t, StatusOpen, 25*time.Hour)
	idleAssigned := f.idleSession(t, StatusAssigned, 30*time.Hour)
	recent := f.idleSession(t, StatusOpen, 2*time.Hour)
	resolved := f.idleSession(t, StatusResolved, 72*time.Hour)

	pass := reconcile.NewPass(reconcile.PassConfig{
		Rule:    InactivityRule(24 * time.Hour),
		Store:   f.sessions,
		Records: f.messages,
		Now:     f.clock.Now,
		Log:     zerolog.Nop(),
	})

	run, err := pass.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Scanned)
	assert.Equal(t, 2, run.Updated)
	assert.Equal(t, 2, run.SideEffects)
	assert.Empty(t, run.Errors)

	for _, id := range []string{idleOpen.ID, idleAssigned.ID} {
		got, err := f.sessions.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusClosed, got.Status)
		assert.True(t, got.Terminal)
		assert.False(t, got.IsActive)
		require.NotNil(t, got.ClosedAt)
		assert.True(t, f.clock.Now().Equal(*got.ClosedAt))

		msgs, err := f.messages.ListBySession(ctx, id)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.True(t, msgs[0].IsSystem)
		assert.Empty(t, msgs[0].SenderID)
		assert.Contains(t, msgs[0].Body, "1 day")
	}

	for _, id := range []string{recent.ID, resolved.ID} {
		msgs, err := f.messages.ListBySession(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	}

	again, err := pass.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Scanned)

	msgs, err := f.messages.ListBySession(ctx, idleOpen.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "a second run must not duplicate the system message")
}

func TestAssignmentPass_AssignsLeastLoadedStaff(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ana := &Staff{Name: "Ana", Active: true, MaxActiveChats: 1, CreatedAt: f.clock.Now().Add(-time.Hour)}
	ben := &Staff{Name: "Ben", Active: true, MaxActiveChats: 1}
	require.NoError(t, f.staff.Create(ctx, ana))
	require.NoError(t, f.staff.Create(ctx, ben))

	first := f.idleSession(t, StatusOpen, 20*time.Minute)
	second := f.idleSession(t, StatusOpen, 10*time.Minute)
	third := f.idleSession(t, StatusOpen, 6*time.Minute)
	fresh := f.idleSession(t, StatusOpen, time.Minute)

	pass := reconcile.NewPass(reconcile.PassConfig{
		Rule:    AssignmentRule(5*time.Minute, f.staff),
		Store:   f.sessions,
		Records: f.messages,
		Now:     f.clock.Now,
		Log:     zerolog.Nop(),
	})

	run, err := pass.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Scanned)
	assert.Equal(t, 2, run.Updated)
	assert.Equal(t, 1, run.Skipped, "third session waits for capacity")
	assert.Empty(t, run.Errors)

	got, err := f.sessions.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, got.Status)
	assert.Equal(t, ana.ID, got.StaffID)
	assert.False(t, got.Terminal)
	assert.True(t, got.IsActive)

	got, err = f.sessions.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, ben.ID, got.StaffID)

	got, err = f.sessions.GetByID(ctx, third.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
	assert.Empty(t, got.StaffID)

	got, err = f.sessions.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)

	msgs, err := f.messages.ListBySession(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsSystem)
	assert.Equal(t, "You are now chatting with Ana.", msgs[0].Body)
}

type pickerFunc func(ctx context.Context) (*Staff, error)

func (f pickerFunc) LeastLoaded(ctx context.Context) (*Staff, error) { return f(ctx) }

func TestAssignmentPass_PickerFailureIsIsolated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := f.idleSession(t, StatusOpen, time.Hour)

	pass := reconcile.NewPass(reconcile.PassConfig{
		Rule: AssignmentRule(5*time.Minute, pickerFunc(func(context.Context) (*Staff, error) {
			return nil, assert.AnError
		})),
		Store:   f.sessions,
		Records: f.messages,
		Now:     f.clock.Now,
		Log:     zerolog.Nop(),
	})

	run, err := pass.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Updated)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, s.ID, run.Errors[0].EntityID)
	assert.Equal(t, reconcile.StageAugment, run.Errors[0].Stage)
	assert.ErrorIs(t, run.Errors[0].Err, assert.AnError)
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "1 day", humanize(24*time.Hour))
	assert.Equal(t, "2 days", humanize(48*time.Hour))
	assert.Equal(t, "1 hour", humanize(time.Hour))
	assert.Equal(t, "36 hours", humanize(36*time.Hour))
	assert.Equal(t, "5m0s", humanize(5*time.Minute))
}
