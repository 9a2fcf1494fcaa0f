// Package stats computes the dashboard summary. Counts are taken in the
// store, never by pulling rows into memory.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/BigNeeme/Chinese/internal/model"
	"github.com/BigNeeme/Chinese/internal/store"
)

const (
	cacheKey           = "dashboard:stats:v1"
	recentSessionCount = 5
)

// Engine assembles DashboardStats from gateway aggregates. "Today" comes
// from the injected clock so tests can pin the date.
type Engine struct {
	gw  store.Gateway
	now func() time.Time
	log *zap.SugaredLogger

	cache    *store.Redis
	cacheTTL time.Duration
}

// New creates an engine. A nil clock defaults to time.Now.
func New(gw store.Gateway, now func() time.Time, log *zap.SugaredLogger) *Engine {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{gw: gw, now: now, log: log}
}

// EnableCache serves recent snapshots from redis. Cache failures degrade to
// recomputation and are logged, never surfaced to the caller.
func (e *Engine) EnableCache(cache *store.Redis, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	e.cache = cache
	e.cacheTTL = ttl
}

// Dashboard returns the current aggregate summary. Each component is a single
// store query, so todayAttendance is internally consistent: the four status
// counts sum to the number of today's records at the moment of computation.
func (e *Engine) Dashboard(ctx context.Context) (model.DashboardStats, error) {
	if e.cache != nil {
		var cached model.DashboardStats
		hit, err := e.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			e.log.Warnw("stats cache read failed", "error", err)
		} else if hit {
			return cached, nil
		}
	}

	stats, err := e.compute(ctx)
	if err != nil {
		return model.DashboardStats{}, err
	}

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, cacheKey, stats, e.cacheTTL); err != nil {
			e.log.Warnw("stats cache write failed", "error", err)
		}
	}
	return stats, nil
}

func (e *Engine) compute(ctx context.Context) (model.DashboardStats, error) {
	totalStudents, err := e.gw.CountStudents(ctx)
	if err != nil {
		return model.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	totalSessions, err := e.gw.CountSessions(ctx)
	if err != nil {
		return model.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}

	today := e.now().Format(model.DateLayout)
	todayCounts, err := e.gw.StatusCountsOn(ctx, today)
	if err != nil {
		return model.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}

	present, total, err := e.gw.AttendanceTotals(ctx)
	if err != nil {
		return model.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}

	recent, err := e.gw.RecentSessions(ctx, recentSessionCount)
	if err != nil {
		return model.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	if recent == nil {
		recent = []model.Session{}
	}

	return model.DashboardStats{
		TotalStudents:         totalStudents,
		TotalSessions:         totalSessions,
		TodayAttendance:       todayCounts,
		OverallAttendanceRate: rate(present, total),
		RecentSessions:        recent,
	}, nil
}

// rate is the integer percentage of present records, rounded half up.
// Zero records means a rate of 0, not a division error.
func rate(present, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(present) / float64(total) * 100))
}
