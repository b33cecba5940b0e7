// Package ratelimit はRedisの固定ウィンドウカウンターによるレート制限を提供する。
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter はRedisのINCR/EXPIREでキーごとのリクエスト数を数える。
type Limiter struct {
	// client はRedisクライアント。
	client redis.Cmdable
	// prefix はRedisキーの接頭辞。
	prefix string
}

// New は新しいLimiterを生成する。
func New(client redis.Cmdable) *Limiter {
	return &Limiter{client: client, prefix: "rl:"}
}

// Allow はkeyに対するリクエストがwindow内でlimit件以内かを判定する。
// 戻り値はウィンドウ内の現在の件数を含む。
func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	k := l.prefix + key
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("レート制限カウンターの更新に失敗: %w", err)
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// Middleware はkeyFnで得たキーごとにレート制限を行うGinミドルウェアを返す。
// 上限を超えた場合はrejectを呼び出して処理を中断する。
// Redisに到達できない場合は制限せずに通す。
func (l *Limiter) Middleware(limit int64, window time.Duration, keyFn func(*gin.Context) string, reject gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			c.Next()
			return
		}

		ok, n, err := l.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			log.Printf("[RateLimit] %v", err)
			c.Next()
			return
		}
		if !ok {
			log.Printf("[RateLimit] 上限超過: key=%s count=%d limit=%d", key, n, limit)
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			reject(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
