package yield

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolID = "747c1d2a-c668-4682-b9f9-296708a3dd90"

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := OpenRepository(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func ptr(v float64) *float64 {
	return &v
}

func at(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 0, 0, 0, time.UTC)
}

func seed(t *testing.T, repo *Repository) {
	t.Helper()
	require.NoError(t, repo.Insert(context.Background(),
		Row{ConfigID: poolID, Timestamp: at(1, 0), TvlUsd: ptr(100.0), Apy: ptr(1.0)},
		Row{ConfigID: poolID, Timestamp: at(1, 12), TvlUsd: ptr(110.0), Apy: ptr(1.5)},
		Row{ConfigID: poolID, Timestamp: at(1, 23), TvlUsd: ptr(120.0), Apy: ptr(2.0), TotalSupplyUsd: ptr(500.0)},
		Row{ConfigID: poolID, Timestamp: at(2, 6), TvlUsd: ptr(130.0), Apy: ptr(2.5), TotalBorrowUsd: ptr(40.0)},
		Row{ConfigID: "other", Timestamp: at(2, 7), TvlUsd: ptr(1.0)},
	))
}

func TestRepositoryHistoryKeepsLastRowPerDay(t *testing.T) {
	repo := newTestRepository(t)
	seed(t, repo)

	points, err := repo.History(context.Background(), poolID)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, at(1, 23), points[0].Timestamp)
	assert.Equal(t, 120.0, *points[0].TvlUsd)
	assert.Equal(t, at(2, 6), points[1].Timestamp)
	assert.Nil(t, points[1].IL7d)
}

func TestRepositoryHourlyHistoryReturnsEveryRow(t *testing.T) {
	repo := newTestRepository(t)
	seed(t, repo)

	points, err := repo.HourlyHistory(context.Background(), poolID)
	require.NoError(t, err)
	require.Len(t, points, 4)
	for i := 1; i < len(points); i++ {
		assert.True(t, points[i-1].Timestamp.Before(points[i].Timestamp))
	}
}

func TestRepositoryLendBorrowHistory(t *testing.T) {
	repo := newTestRepository(t)
	seed(t, repo)

	points, err := repo.LendBorrowHistory(context.Background(), poolID)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 500.0, *points[0].TotalSupplyUsd)
	assert.Nil(t, points[0].TotalBorrowUsd)
	assert.Equal(t, 40.0, *points[1].TotalBorrowUsd)
}

func TestRepositoryUnknownPool(t *testing.T) {
	repo := newTestRepository(t)
	seed(t, repo)

	points, err := repo.History(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestRepositoryInsertUpserts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, Row{ConfigID: poolID, Timestamp: at(1, 0), TvlUsd: ptr(1.0)}))
	require.NoError(t, repo.Insert(ctx, Row{ConfigID: poolID, Timestamp: at(1, 0), TvlUsd: ptr(2.0)}))

	points, err := repo.HourlyHistory(ctx, poolID)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 2.0, *points[0].TvlUsd)
}

func TestRepositoryInsertRejectsMissingConfigID(t *testing.T) {
	repo := newTestRepository(t)
	err := repo.Insert(context.Background(), Row{Timestamp: at(1, 0)})
	assert.ErrorContains(t, err, "missing configID")
	assert.NoError(t, repo.Insert(context.Background()))
}

func TestRepositoryClosed(t *testing.T) {
	repo, err := OpenRepository(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = repo.History(context.Background(), poolID)
	assert.ErrorContains(t, err, "querying history for "+poolID)
}
