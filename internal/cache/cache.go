package cache

import (
	"context"
	"time"

	"dukaanpos/backend/internal/domain"
)

type OverviewCache interface {
	Get(ctx context.Context, key string) (*domain.FinancialOverview, bool, error)
	Set(ctx context.Context, key string, value *domain.FinancialOverview, ttl time.Duration) error
	InvalidateStore(ctx context.Context, storeID string) error
}

type NoopOverviewCache struct{}

func (NoopOverviewCache) Get(_ context.Context, _ string) (*domain.FinancialOverview, bool, error) {
	return nil, false, nil
}

func (NoopOverviewCache) Set(_ context.Context, _ string, _ *domain.FinancialOverview, _ time.Duration) error {
	return nil
}

func (NoopOverviewCache) InvalidateStore(_ context.Context, _ string) error {
	return nil
}
