package yield

import "time"

// HistoryPoint is one observation of a pool's TVL and APY.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	TvlUsd    *float64  `json:"tvlUsd" msgpack:"tvlUsd"`
	Apy       *float64  `json:"apy" msgpack:"apy"`
	ApyBase   *float64  `json:"apyBase" msgpack:"apyBase"`
	ApyReward *float64  `json:"apyReward" msgpack:"apyReward"`
	IL7d      *float64  `json:"il7d" msgpack:"il7d"`
	ApyBase7d *float64  `json:"apyBase7d" msgpack:"apyBase7d"`
}

// LendBorrowPoint is one observation of a lending pool's supply and borrow side.
type LendBorrowPoint struct {
	Timestamp       time.Time `json:"timestamp" msgpack:"timestamp"`
	TotalSupplyUsd  *float64  `json:"totalSupplyUsd" msgpack:"totalSupplyUsd"`
	TotalBorrowUsd  *float64  `json:"totalBorrowUsd" msgpack:"totalBorrowUsd"`
	DebtCeilingUsd  *float64  `json:"debtCeilingUsd" msgpack:"debtCeilingUsd"`
	ApyBase         *float64  `json:"apyBase" msgpack:"apyBase"`
	ApyReward       *float64  `json:"apyReward" msgpack:"apyReward"`
	ApyBaseBorrow   *float64  `json:"apyBaseBorrow" msgpack:"apyBaseBorrow"`
	ApyRewardBorrow *float64  `json:"apyRewardBorrow" msgpack:"apyRewardBorrow"`
}

// Row is a stored yield observation as ingested.
type Row struct {
	ConfigID        string    `json:"configID"`
	Timestamp       time.Time `json:"timestamp"`
	TvlUsd          *float64  `json:"tvlUsd,omitempty"`
	Apy             *float64  `json:"apy,omitempty"`
	ApyBase         *float64  `json:"apyBase,omitempty"`
	ApyReward       *float64  `json:"apyReward,omitempty"`
	IL7d            *float64  `json:"il7d,omitempty"`
	ApyBase7d       *float64  `json:"apyBase7d,omitempty"`
	TotalSupplyUsd  *float64  `json:"totalSupplyUsd,omitempty"`
	TotalBorrowUsd  *float64  `json:"totalBorrowUsd,omitempty"`
	DebtCeilingUsd  *float64  `json:"debtCeilingUsd,omitempty"`
	ApyBaseBorrow   *float64  `json:"apyBaseBorrow,omitempty"`
	ApyRewardBorrow *float64  `json:"apyRewardBorrow,omitempty"`
}
