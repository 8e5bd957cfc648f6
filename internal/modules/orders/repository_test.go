package orders

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/shopkeeper/internal/reconcile"
	testutil "github.com/aristath/shopkeeper/internal/testing"
)

func setupRepo(t *testing.T) (*Repository, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	repo := NewRepository(testutil.NewMemoryDB(t), zerolog.Nop())
	repo.SetClock(clock.Now)
	return repo, clock
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo, clock := setupRepo(t)
	ctx := context.Background()

	o := &Order{UserID: "u1", PaymentMethod: "COD", TotalCents: 4599}
	require.NoError(t, repo.Create(ctx, o))
	assert.NotEmpty(t, o.ID)

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaced, got.Status)
	assert.Equal(t, "COD", got.PaymentMethod)
	assert.Equal(t, int64(4599), got.TotalCents)
	assert.False(t, got.IsPaid)
	assert.False(t, got.Terminal)
	assert.Nil(t, got.PaidAt)
	assert.True(t, clock.Now().Equal(got.CreatedAt))
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	repo, _ := setupRepo(t)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_MarkShippedAndCancel(t *testing.T) {
	repo, clock := setupRepo(t)
	ctx := context.Background()

	o := &Order{UserID: "u1", PaymentMethod: "CARD"}
	require.NoError(t, repo.Create(ctx, o))

	clock.Advance(time.Hour)
	require.NoError(t, repo.MarkShipped(ctx, o.ID))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
	require.NotNil(t, got.ShippedAt)
	assert.True(t, clock.Now().Equal(*got.ShippedAt))
	assert.True(t, clock.Now().Equal(got.UpdatedAt))

	err = repo.Cancel(ctx, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.ErrorIs(t, repo.MarkShipped(ctx, "missing"), ErrNotFound)
}

func TestRepository_FindStale_AgeBoundary(t *testing.T) {
	repo, clock := setupRepo(t)
	ctx := context.Background()
	now := clock.Now()
	maxAge := 24 * time.Hour

	young := &Order{UserID: "u1", PaymentMethod: "CARD", Status: StatusShipped, UpdatedAt: now.Add(-maxAge + time.Second)}
	old := &Order{UserID: "u2", PaymentMethod: "CARD", Status: StatusShipped, UpdatedAt: now.Add(-maxAge - time.Second)}
	placed := &Order{UserID: "u3", PaymentMethod: "CARD", Status: StatusPlaced, UpdatedAt: now.Add(-72 * time.Hour)}
	for _, o := range []*Order{young, old, placed} {
		o.CreatedAt = o.UpdatedAt
		require.NoError(t, repo.Create(ctx, o))
	}

	found, err := repo.FindStale(ctx, reconcile.NewQuery(DeliveryRule(maxAge), now))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, old.ID, found[0].ID)
	assert.Equal(t, "CARD", found[0].Meta[MetaPaymentMethod])
}

func TestRepository_FindStale_EmptyIsNotError(t *testing.T) {
	repo, clock := setupRepo(t)

	found, err := repo.FindStale(context.Background(), reconcile.NewQuery(DeliveryRule(time.Hour), clock.Now()))
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Empty(t, found)
}

func TestRepository_FindStale_InsertionOrder(t *testing.T) {
	repo, clock := setupRepo(t)
	ctx := context.Background()
	now := clock.Now()

	// Insert newest-activity first to prove ordering is by insertion, not age
	ids := []string{"c", "a", "b"}
	for i, id := range ids {
		at := now.Add(-time.Duration(48+i) * time.Hour)
		require.NoError(t, repo.Create(ctx, &Order{
			ID: id, UserID: "u", PaymentMethod: "CARD", Status: StatusShipped, CreatedAt: at, UpdatedAt: at,
		}))
	}

	found, err := repo.FindStale(ctx, reconcile.NewQuery(DeliveryRule(24*time.Hour), now))
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{found[0].ID, found[1].ID, found[2].ID})
}

func TestRepository_Transition_Guarded(t *testing.T) {
	repo, clock := setupRepo(t)
	ctx := context.Background()

	at := clock.Now().Add(-48 * time.Hour)
	o := &Order{UserID: "u", PaymentMethod: "CARD", Status: StatusShipped, CreatedAt: at, UpdatedAt: at}
	require.NoError(t, repo.Create(ctx, o))

	tr := reconcile.Transition{
		EntityID: o.ID,
		From:     []reconcile.State{StatusShipped},
		To:       StatusDelivered,
		Terminal: true,
		At:       clock.Now(),
		Fields:   reconcile.Fields{"delivered_at": clock.Now()},
	}

	applied, err := repo.Transition(ctx, tr)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.Transition(ctx, tr)
	require.NoError(t, err)
	assert.False(t, applied, "terminal order must not be updated again")
}

func TestRepository_Transition_RejectsUnknownColumn(t *testing.T) {
	repo, clock := setupRepo(t)

	_, err := repo.Transition(context.Background(), reconcile.Transition{
		EntityID: "x",
		From:     []reconcile.State{StatusShipped},
		To:       StatusDelivered,
		At:       clock.Now(),
		Fields:   reconcile.Fields{"total_cents": 0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total_cents")
}
