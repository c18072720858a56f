package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/repository"
)

type countingSweeper struct {
	runs atomic.Int64
	err  error
}

func (c *countingSweeper) CloseAuctions(context.Context) (bidding.SweepReport, error) {
	c.runs.Add(1)
	return bidding.SweepReport{Examined: 1, Closed: 1}, c.err
}

func TestScheduler_RunOnce_TakesAndReleasesLease(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	sweeper := &countingSweeper{}
	s := New(sweeper, repo, time.Minute, 30*time.Second)

	require.True(t, s.RunOnce(context.Background()))
	require.True(t, s.RunOnce(context.Background()), "released lease can be taken again")
	require.Equal(t, int64(2), sweeper.runs.Load())
}

func TestScheduler_RunOnce_SkipsWhileAnotherOwnerHoldsLease(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	ctx := context.Background()
	ok, err := repo.AcquireLease(ctx, LeaseName, "other-replica", time.Minute, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	sweeper := &countingSweeper{}
	s := New(sweeper, repo, time.Minute, 30*time.Second)

	require.False(t, s.RunOnce(ctx))
	require.Zero(t, sweeper.runs.Load())

	// the stale lease expires and this replica takes over
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	require.True(t, s.RunOnce(ctx))
	require.Equal(t, int64(1), sweeper.runs.Load())
}

func TestScheduler_RunOnce_LeaseStoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	leases := repository.NewMockLeaseStore(ctrl)
	leases.EXPECT().AcquireLease(gomock.Any(), LeaseName, gomock.Any(), 30*time.Second, gomock.Any()).
		Return(false, errors.New("db unavailable"))

	sweeper := &countingSweeper{}
	s := New(sweeper, leases, time.Minute, 30*time.Second)

	require.False(t, s.RunOnce(context.Background()))
	require.Zero(t, sweeper.runs.Load())
}

func TestScheduler_RunOnce_ReleasesLeaseWhenSweepFails(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	leases := repository.NewMockLeaseStore(ctrl)
	gomock.InOrder(
		leases.EXPECT().AcquireLease(gomock.Any(), LeaseName, gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil),
		leases.EXPECT().ReleaseLease(gomock.Any(), LeaseName, gomock.Any()).Return(nil),
	)

	s := New(&countingSweeper{err: errors.New("boom")}, leases, time.Minute, 30*time.Second)
	require.True(t, s.RunOnce(context.Background()))
}

func TestScheduler_Run_StopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	sweeper := &countingSweeper{}
	s := New(sweeper, repo, 5*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	require.Eventually(t, func() bool { return sweeper.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
