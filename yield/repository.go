package yield

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// DefaultQueryTimeout is the per-query timeout applied by Repository.
const DefaultQueryTimeout = 5 * time.Second

const schema = `CREATE TABLE IF NOT EXISTS yield (
	"configID" TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	"tvlUsd" REAL,
	apy REAL,
	"apyBase" REAL,
	"apyReward" REAL,
	"il7d" REAL,
	"apyBase7d" REAL,
	"totalSupplyUsd" REAL,
	"totalBorrowUsd" REAL,
	"debtCeilingUsd" REAL,
	"apyBaseBorrow" REAL,
	"apyRewardBorrow" REAL,
	PRIMARY KEY ("configID", timestamp)
)`

// Latest row of every UTC day for a pool.
const dailyFilter = `timestamp IN (
		SELECT max(timestamp) FROM yield
		WHERE "configID" = :configID
		GROUP BY date(timestamp, 'unixepoch')
	) AND "configID" = :configID`

const historyQuery = `SELECT timestamp, "tvlUsd", apy, "apyBase", "apyReward", "il7d", "apyBase7d"
	FROM yield WHERE ` + dailyFilter + ` ORDER BY timestamp ASC`

const hourlyQuery = `SELECT timestamp, "tvlUsd", apy, "apyBase", "apyReward", "il7d", "apyBase7d"
	FROM yield WHERE "configID" = :configID ORDER BY timestamp ASC`

const lendBorrowQuery = `SELECT timestamp, "totalSupplyUsd", "totalBorrowUsd", "debtCeilingUsd",
	"apyBase", "apyReward", "apyBaseBorrow", "apyRewardBorrow"
	FROM yield WHERE ` + dailyFilter + ` ORDER BY timestamp ASC`

const insertQuery = `INSERT INTO yield (
	"configID", timestamp, "tvlUsd", apy, "apyBase", "apyReward", "il7d", "apyBase7d",
	"totalSupplyUsd", "totalBorrowUsd", "debtCeilingUsd", "apyBaseBorrow", "apyRewardBorrow"
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT ("configID", timestamp) DO UPDATE SET
	"tvlUsd" = excluded."tvlUsd",
	apy = excluded.apy,
	"apyBase" = excluded."apyBase",
	"apyReward" = excluded."apyReward",
	"il7d" = excluded."il7d",
	"apyBase7d" = excluded."apyBase7d",
	"totalSupplyUsd" = excluded."totalSupplyUsd",
	"totalBorrowUsd" = excluded."totalBorrowUsd",
	"debtCeilingUsd" = excluded."debtCeilingUsd",
	"apyBaseBorrow" = excluded."apyBaseBorrow",
	"apyRewardBorrow" = excluded."apyRewardBorrow"`

// Source produces the history series served by Service.
type Source interface {
	History(ctx context.Context, configID string) ([]HistoryPoint, error)
	HourlyHistory(ctx context.Context, configID string) ([]HistoryPoint, error)
	LendBorrowHistory(ctx context.Context, configID string) ([]LendBorrowPoint, error)
}

// Repository stores yield rows in SQLite.
type Repository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

var _ Source = (*Repository)(nil)

// OpenRepository opens (creating if needed) the SQLite database at dbPath.
// If dbPath is empty or ":memory:", an in-memory database is used.
func OpenRepository(ctx context.Context, dbPath string) (*Repository, error) {
	memory := dbPath == "" || dbPath == ":memory:"
	if memory {
		dbPath = ":memory:"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dbPath)
	}
	if memory {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enabling WAL")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating yield table")
	}
	return &Repository{db: db, queryTimeout: DefaultQueryTimeout}, nil
}

func (r *Repository) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.queryTimeout)
}

// Insert upserts rows in a single transaction.
func (r *Repository) Insert(ctx context.Context, rows ...Row) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning insert")
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return errors.Wrap(err, "preparing insert")
	}
	defer stmt.Close()
	for _, row := range rows {
		if row.ConfigID == "" {
			return errors.New("row is missing configID")
		}
		if _, err := stmt.ExecContext(ctx,
			row.ConfigID, row.Timestamp.Unix(), row.TvlUsd, row.Apy, row.ApyBase, row.ApyReward,
			row.IL7d, row.ApyBase7d, row.TotalSupplyUsd, row.TotalBorrowUsd, row.DebtCeilingUsd,
			row.ApyBaseBorrow, row.ApyRewardBorrow,
		); err != nil {
			return errors.Wrapf(err, "inserting %s at %s", row.ConfigID, row.Timestamp.UTC().Format(time.RFC3339))
		}
	}
	return errors.Wrap(tx.Commit(), "committing insert")
}

// History returns the last observation of every UTC day for configID.
func (r *Repository) History(ctx context.Context, configID string) ([]HistoryPoint, error) {
	return r.historyPoints(ctx, historyQuery, configID)
}

// HourlyHistory returns every observation for configID.
func (r *Repository) HourlyHistory(ctx context.Context, configID string) ([]HistoryPoint, error) {
	return r.historyPoints(ctx, hourlyQuery, configID)
}

func (r *Repository) historyPoints(ctx context.Context, query, configID string) ([]HistoryPoint, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	rows, err := r.db.QueryContext(qctx, query, sql.Named("configID", configID))
	if err != nil {
		return nil, errors.Wrapf(err, "querying history for %s", configID)
	}
	defer rows.Close()
	var points []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		var ts int64
		if err := rows.Scan(&ts, &p.TvlUsd, &p.Apy, &p.ApyBase, &p.ApyReward, &p.IL7d, &p.ApyBase7d); err != nil {
			return nil, errors.Wrapf(err, "scanning history for %s", configID)
		}
		p.Timestamp = time.Unix(ts, 0).UTC()
		points = append(points, p)
	}
	return points, errors.Wrapf(rows.Err(), "reading history for %s", configID)
}

// LendBorrowHistory returns the last lending observation of every UTC day for configID.
func (r *Repository) LendBorrowHistory(ctx context.Context, configID string) ([]LendBorrowPoint, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	rows, err := r.db.QueryContext(qctx, lendBorrowQuery, sql.Named("configID", configID))
	if err != nil {
		return nil, errors.Wrapf(err, "querying lend/borrow history for %s", configID)
	}
	defer rows.Close()
	var points []LendBorrowPoint
	for rows.Next() {
		var p LendBorrowPoint
		var ts int64
		if err := rows.Scan(&ts, &p.TotalSupplyUsd, &p.TotalBorrowUsd, &p.DebtCeilingUsd,
			&p.ApyBase, &p.ApyReward, &p.ApyBaseBorrow, &p.ApyRewardBorrow); err != nil {
			return nil, errors.Wrapf(err, "scanning lend/borrow history for %s", configID)
		}
		p.Timestamp = time.Unix(ts, 0).UTC()
		points = append(points, p)
	}
	return points, errors.Wrapf(rows.Err(), "reading lend/borrow history for %s", configID)
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}
