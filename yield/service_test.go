package yield

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/yieldcache/cache"
	"github.com/agentuity/yieldcache/logger"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	Source
	history    atomic.Int32
	hourly     atomic.Int32
	lendBorrow atomic.Int32
	err        error
}

func (c *countingSource) History(ctx context.Context, configID string) ([]HistoryPoint, error) {
	c.history.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Source.History(ctx, configID)
}

func (c *countingSource) HourlyHistory(ctx context.Context, configID string) ([]HistoryPoint, error) {
	c.hourly.Add(1)
	return c.Source.HourlyHistory(ctx, configID)
}

func (c *countingSource) LendBorrowHistory(ctx context.Context, configID string) ([]LendBorrowPoint, error) {
	c.lendBorrow.Add(1)
	return c.Source.LendBorrowHistory(ctx, configID)
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *countingSource, clockwork.FakeClock) {
	t.Helper()
	repo := newTestRepository(t)
	seed(t, repo)
	src := &countingSource{Source: repo}
	clock := clockwork.NewFakeClock()
	tbl := cache.New(cache.WithClock(clock), cache.WithLogger(logger.NewTestLogger()))
	opts = append([]ServiceOption{WithLogger(logger.NewTestLogger())}, opts...)
	return NewService(tbl, src, opts...), src, clock
}

func TestServiceHistoryIsCached(t *testing.T) {
	ctx := context.Background()
	svc, src, clock := newTestService(t)

	found, points, err := svc.History(ctx, poolID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, points, 2)

	clock.Advance(time.Hour)
	found, again, err := svc.History(ctx, poolID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, points, again)
	assert.EqualValues(t, 1, src.history.Load())

	clock.Advance(time.Hour)
	_, _, err = svc.History(ctx, poolID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.history.Load())
}

func TestServiceNamespacesAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc, src, _ := newTestService(t)

	_, daily, err := svc.History(ctx, poolID)
	require.NoError(t, err)
	_, hourly, err := svc.HourlyHistory(ctx, poolID)
	require.NoError(t, err)
	_, lend, err := svc.LendBorrowHistory(ctx, poolID)
	require.NoError(t, err)

	assert.Len(t, daily, 2)
	assert.Len(t, hourly, 4)
	assert.Len(t, lend, 2)
	assert.Equal(t, 3, svc.Table().Len())
	assert.EqualValues(t, 1, src.history.Load())
	assert.EqualValues(t, 1, src.hourly.Load())
	assert.EqualValues(t, 1, src.lendBorrow.Load())
}

func TestServiceEmptyHistoryIsNotCached(t *testing.T) {
	ctx := context.Background()
	svc, src, _ := newTestService(t)
	unknown := "11111111-2222-3333-4444-555555555555"

	found, points, err := svc.History(ctx, unknown)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, points)

	_, _, err = svc.History(ctx, unknown)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.history.Load())
	_, ok := svc.Table().Peek(NamespaceHistory, unknown)
	assert.False(t, ok)
}

func TestServiceNamespaceStaleAfter(t *testing.T) {
	ctx := context.Background()
	svc, src, clock := newTestService(t, WithStaleAfter(NamespaceHistoryHourly, 10*time.Minute))

	_, _, err := svc.HourlyHistory(ctx, poolID)
	require.NoError(t, err)
	_, _, err = svc.History(ctx, poolID)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	_, _, err = svc.HourlyHistory(ctx, poolID)
	require.NoError(t, err)
	_, _, err = svc.History(ctx, poolID)
	require.NoError(t, err)

	assert.EqualValues(t, 2, src.hourly.Load())
	assert.EqualValues(t, 1, src.history.Load())
}

func TestServiceSourceErrorPropagates(t *testing.T) {
	ctx := context.Background()
	svc, src, _ := newTestService(t)
	sentinel := errors.New("database unavailable")
	src.err = errors.Wrap(sentinel, "querying")

	found, _, err := svc.History(ctx, poolID)
	assert.False(t, found)
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, 0, svc.Table().Len())
}
