package xretry

import "context"

// FixedRetryPolicy 固定次数重试策略。
type FixedRetryPolicy struct {
	maxAttempts int
}

// NewFixedRetry 创建固定次数重试策略。
// maxAttempts 为最大尝试次数（包含首次尝试），最小为 1。
func NewFixedRetry(maxAttempts int) *FixedRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &FixedRetryPolicy{maxAttempts: maxAttempts}
}

func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

func (p *FixedRetryPolicy) ShouldRetry(ctx context.Context, attempt int, _ error) bool {
	if ctx.Err() != nil {
		return false
	}
	return attempt < p.maxAttempts
}

// AlwaysRetryPolicy 无限重试策略，仅上下文取消或不可恢复错误才停止。
type AlwaysRetryPolicy struct{}

// NewAlwaysRetry 创建无限重试策略。
func NewAlwaysRetry() *AlwaysRetryPolicy {
	return &AlwaysRetryPolicy{}
}

func (p *AlwaysRetryPolicy) MaxAttempts() int {
	return 0
}

func (p *AlwaysRetryPolicy) ShouldRetry(ctx context.Context, _ int, _ error) bool {
	return ctx.Err() == nil
}

// NeverRetryPolicy 永不重试策略。
type NeverRetryPolicy struct{}

// NewNeverRetry 创建永不重试策略。
func NewNeverRetry() *NeverRetryPolicy {
	return &NeverRetryPolicy{}
}

func (p *NeverRetryPolicy) MaxAttempts() int {
	return 1
}

func (p *NeverRetryPolicy) ShouldRetry(context.Context, int, error) bool {
	return false
}

// 确保实现了接口
var (
	_ RetryPolicy = (*FixedRetryPolicy)(nil)
	_ RetryPolicy = (*AlwaysRetryPolicy)(nil)
	_ RetryPolicy = (*NeverRetryPolicy)(nil)
)
