// Package retry 提供针对瞬时错误的有界指数退避重试。
package retry

import (
	"context"
	"time"

	"doc-chat-go/pkg/apperr"
)

// DefaultBaseDelay 是首次重试前的等待时长，之后逐次翻倍。
const DefaultBaseDelay = 200 * time.Millisecond

// Do 执行 fn，若返回瞬时错误则重试，最多执行 attempts 次。
// 非瞬时错误立即返回；ctx 取消时停止等待并返回 ctx 的错误。
func Do(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !apperr.IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}
