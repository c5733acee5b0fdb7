package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc 从请求中取出限流维度，返回空串表示不限流
type KeyFunc func(c *gin.Context) string

// ByClientIP 按客户端 IP 限流
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByUserID 按登录用户限流，需挂在 JWTAuth 之后
func ByUserID(c *gin.Context) string {
	id := GetCurrentUserID(c)
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("user:%d", id)
}

// SlidingWindow 滑动窗口计数器，每个 key 在 window 内最多 limit 次
type SlidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

// NewSlidingWindow 创建滑动窗口计数器
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow 记录一次访问，超出限制时返回 false 且不计数
func (w *SlidingWindow) Allow(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)
	if now.Sub(w.lastSweep) > w.window {
		for k, ts := range w.hits {
			if ts = prune(ts, cutoff); len(ts) == 0 {
				delete(w.hits, k)
			} else {
				w.hits[k] = ts
			}
		}
		w.lastSweep = now
	}

	ts := prune(w.hits[key], cutoff)
	if len(ts) >= w.limit {
		w.hits[key] = ts
		return false
	}
	w.hits[key] = append(ts, now)
	return true
}

// Len 当前跟踪的 key 数量
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hits)
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// RateLimit 按 key 限流，超出返回 429
func RateLimit(w *SlidingWindow, key KeyFunc, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k == "" || w.Allow(k) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"code":    http.StatusTooManyRequests,
			"message": message,
		})
	}
}

// LoginRateLimit 登录接口限流，每 IP 在 window 内最多 maxAttempts 次
func LoginRateLimit(maxAttempts int, window time.Duration) gin.HandlerFunc {
	return RateLimit(NewSlidingWindow(maxAttempts, window), ByClientIP, "登录尝试过于频繁，请稍后再试")
}

// UploadRateLimit 票据上传限流，每个用户在 window 内最多 maxUploads 次
func UploadRateLimit(maxUploads int, window time.Duration) gin.HandlerFunc {
	return RateLimit(NewSlidingWindow(maxUploads, window), ByUserID, "上传过于频繁，请稍后再试")
}
