package xretry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// RetryPolicy 定义重试策略接口：判断是否应该继续重试。
type RetryPolicy interface {
	// MaxAttempts 返回最大尝试次数（包含首次尝试），0 表示无限重试。
	MaxAttempts() int

	// ShouldRetry 判断第 attempt 次失败（1-based）后是否应再试一次。
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy 定义退避策略接口：计算第 attempt 次重试前的等待时间。
type BackoffPolicy interface {
	// NextDelay 返回下次重试的延迟时间，attempt 从 1 开始。
	NextDelay(attempt int) time.Duration
}

// Unrecoverable 将错误标记为不可恢复，Retryer 遇到后立即停止重试。
// 这是 retry-go 的原生标记，errors.Is/As 可穿透包装访问原始错误。
var Unrecoverable = retry.Unrecoverable

// IsRecoverable 检查错误是否未被 Unrecoverable 标记。
var IsRecoverable = retry.IsRecoverable
