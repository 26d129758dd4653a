package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// BudgetResult is the outcome of a budget check.
type BudgetResult struct {
	Allowed    bool
	SpentCents int64
	LimitCents int64
}

// BudgetTracker tracks daily generation spend per workflow via Redis, so a
// runaway workflow cannot burn an unbounded amount of provider credit.
type BudgetTracker struct {
	rdb *redis.Client
}

// NewBudgetTracker creates a budget tracker. If rdb is nil, all checks pass.
func NewBudgetTracker(rdb *redis.Client) *BudgetTracker {
	return &BudgetTracker{rdb: rdb}
}

func dailyBudgetKey(workflowID string) string {
	day := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("scribe:budget:daily:%s:%s", workflowID, day)
}

// CheckDailySpend checks if the workflow is under its daily spend limit.
func (b *BudgetTracker) CheckDailySpend(ctx context.Context, workflowID string, limitCents int64) (BudgetResult, error) {
	if b.rdb == nil || workflowID == "" || limitCents <= 0 {
		return BudgetResult{Allowed: true, LimitCents: limitCents}, nil
	}

	key := dailyBudgetKey(workflowID)
	spent, err := b.rdb.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		// Fail open on Redis errors
		return BudgetResult{Allowed: true, LimitCents: limitCents}, nil
	}

	return BudgetResult{
		Allowed:    spent < limitCents,
		SpentCents: spent,
		LimitCents: limitCents,
	}, nil
}

// RecordSpend adds cost to the workflow's daily spend counter.
func (b *BudgetTracker) RecordSpend(ctx context.Context, workflowID string, costUSD float64) error {
	costCents := int64(math.Ceil(costUSD * 100))
	if b.rdb == nil || workflowID == "" || costCents <= 0 {
		return nil
	}

	key := dailyBudgetKey(workflowID)
	pipe := b.rdb.Pipeline()
	pipe.IncrBy(ctx, key, costCents)
	// Expire at end of day UTC + 1 hour buffer
	now := time.Now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	ttl := endOfDay.Sub(now) + time.Hour
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}
