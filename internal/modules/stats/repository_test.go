package stats

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/aristath/shopkeeper/internal/testing"
)

func TestRepository_RecordSaleAndReset(t *testing.T) {
	repo := NewRepository(testutil.NewMemoryDB(t), zerolog.Nop())
	ctx := context.Background()
	at := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RecordSale(ctx, "p1", 2))
	require.NoError(t, repo.RecordSale(ctx, "p1", 3))
	require.NoError(t, repo.RecordSale(ctx, "p2", 1))
	assert.Error(t, repo.RecordSale(ctx, "p2", 0))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.SoldDay)
	assert.Equal(t, int64(5), got.SoldWeek)
	assert.Equal(t, int64(5), got.SoldMonth)
	assert.Equal(t, int64(5), got.SoldTotal)
	assert.Nil(t, got.DayResetAt)

	n, err := repo.Reset(ctx, Day, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err = repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.SoldDay)
	assert.Equal(t, int64(5), got.SoldWeek, "other windows are untouched")
	assert.Equal(t, int64(5), got.SoldTotal)
	require.NotNil(t, got.DayResetAt)
	assert.True(t, at.Equal(*got.DayResetAt))
	assert.Nil(t, got.WeekResetAt)

	n, err = repo.Reset(ctx, Day, at.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRepository_Errors(t *testing.T) {
	repo := NewRepository(testutil.NewMemoryDB(t), zerolog.Nop())
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Reset(ctx, Period("year"), time.Now())
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

type resetterFunc func(ctx context.Context, p Period, at time.Time) (int64, error)

func (f resetterFunc) Reset(ctx context.Context, p Period, at time.Time) (int64, error) {
	return f(ctx, p, at)
}

func TestResetJob_Run(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	var gotPeriod Period
	var gotAt time.Time

	job := NewResetJob(resetterFunc(func(_ context.Context, p Period, at time.Time) (int64, error) {
		gotPeriod, gotAt = p, at
		return 7, nil
	}), Month, clock.Now, zerolog.Nop())

	assert.Equal(t, "stats_reset_monthly", job.Name())

	run, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Month, gotPeriod)
	assert.True(t, clock.Now().Equal(gotAt))
	assert.Equal(t, 7, run.Updated)
	assert.Equal(t, "stats_reset_monthly", run.Job)
	assert.NotEmpty(t, run.ID)
}

func TestResetJob_RunFailure(t *testing.T) {
	job := NewResetJob(resetterFunc(func(context.Context, Period, time.Time) (int64, error) {
		return 0, assert.AnError
	}), Week, nil, zerolog.Nop())

	run, err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, run.Err, assert.AnError)
}

func TestJobName(t *testing.T) {
	assert.Equal(t, "stats_reset_daily", JobName(Day))
	assert.Equal(t, "stats_reset_weekly", JobName(Week))
	assert.Equal(t, "stats_reset_monthly", JobName(Month))
}
