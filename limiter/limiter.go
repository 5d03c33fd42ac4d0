package limiter

import (
	"context"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// 限速器接口，统一不同限速器的行为
type RateLimiter interface {
	Wait(context.Context) error // 阻塞调用者，直到允许继续执行或上下文被取消
	Limit() rate.Limit
}

// 将多个限速器按速率限制从小到大排序后组合成一个多级限速器
func Multi(limiters ...RateLimiter) *multiLimiter {
	byLimit := func(i, j int) bool {
		return limiters[i].Limit() < limiters[j].Limit()
	}
	sort.Slice(limiters, byLimit)
	return &multiLimiter{limiters: limiters}
}

type multiLimiter struct {
	limiters []RateLimiter
}

// 依次等待每个限速器的令牌，任何一个返回错误则整体失败
func (l *multiLimiter) Wait(ctx context.Context) error {
	for _, l := range l.limiters {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// 返回最严格（最小）的速率限制
func (l *multiLimiter) Limit() rate.Limit {
	return l.limiters[0].Limit()
}

// Per用于表示duration时间内允许eventCount个事件的速率
func Per(eventCount int, duration time.Duration) rate.Limit {
	return rate.Every(duration / time.Duration(eventCount))
}
