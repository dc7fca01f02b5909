package yield

import (
	"context"
	"time"

	"github.com/agentuity/yieldcache/cache"
	"github.com/agentuity/yieldcache/logger"
)

// Cache namespaces, one per query shape.
const (
	NamespaceHistory           = "yieldHistory"
	NamespaceHistoryHourly     = "yieldHistoryHourly"
	NamespaceLendBorrowHistory = "yieldLendBorrowHistory"
)

// Namespaces lists every namespace the service materializes.
var Namespaces = []string{NamespaceHistory, NamespaceHistoryHourly, NamespaceLendBorrowHistory}

// Service serves pool history through a shared cache table.
type Service struct {
	table      *cache.Table
	source     Source
	staleAfter map[string]time.Duration
	logger     logger.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStaleAfter overrides the table's staleness threshold for one namespace.
func WithStaleAfter(namespace string, d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.staleAfter[namespace] = d
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log logger.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// NewService returns a Service reading from source and caching in table.
func NewService(table *cache.Table, source Source, opts ...ServiceOption) *Service {
	s := &Service{
		table:      table,
		source:     source,
		staleAfter: make(map[string]time.Duration),
		logger:     logger.NewConsoleLogger(logger.LevelNone),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table returns the cache table backing the service.
func (s *Service) Table() *cache.Table {
	return s.table
}

func (s *Service) config(namespace, configID string) cache.MaterializeConfig {
	return cache.MaterializeConfig{
		Namespace:  namespace,
		ResourceID: configID,
		StaleAfter: s.staleAfter[namespace],
	}
}

// producer adapts a source query to a cache producer. An empty series is
// reported as not found so it is never cached.
func producer[T any](s *Service, namespace, configID string, query func(context.Context, string) ([]T, error)) cache.Producer[[]T] {
	return func(ctx context.Context) ([]T, bool, error) {
		started := time.Now()
		rows, err := query(ctx, configID)
		if err != nil {
			return nil, false, err
		}
		s.logger.Debug("%s for %s produced %d rows in %s", namespace, configID, len(rows), time.Since(started))
		return rows, len(rows) > 0, nil
	}
}

// History returns the daily history of a pool.
func (s *Service) History(ctx context.Context, configID string) (bool, []HistoryPoint, error) {
	return cache.Materialize(ctx, s.config(NamespaceHistory, configID), s.table,
		producer(s, NamespaceHistory, configID, s.source.History))
}

// HourlyHistory returns every observation of a pool.
func (s *Service) HourlyHistory(ctx context.Context, configID string) (bool, []HistoryPoint, error) {
	return cache.Materialize(ctx, s.config(NamespaceHistoryHourly, configID), s.table,
		producer(s, NamespaceHistoryHourly, configID, s.source.HourlyHistory))
}

// LendBorrowHistory returns the daily lending history of a pool.
func (s *Service) LendBorrowHistory(ctx context.Context, configID string) (bool, []LendBorrowPoint, error) {
	return cache.Materialize(ctx, s.config(NamespaceLendBorrowHistory, configID), s.table,
		producer(s, NamespaceLendBorrowHistory, configID, s.source.LendBorrowHistory))
}
