package xretry

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Retryer 重试执行器，组合 RetryPolicy 与 BackoffPolicy。
// 底层使用 avast/retry-go/v5，每次 Do 调用构建独立的选项闭包，
// 同一 Retryer 可被并发使用。
type Retryer struct {
	policy  RetryPolicy
	backoff BackoffPolicy
	onRetry func(attempt int, err error)
}

// RetryerOption 执行器配置选项。
type RetryerOption func(*Retryer)

// WithRetryPolicy 设置重试策略，nil 时保持默认值。
func WithRetryPolicy(p RetryPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.policy = p
		}
	}
}

// WithBackoffPolicy 设置退避策略，nil 时保持默认值。
func WithBackoffPolicy(p BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.backoff = p
		}
	}
}

// WithOnRetry 设置每次重试前的回调，attempt 从 1 开始。
func WithOnRetry(f func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.onRetry = f
		}
	}
}

// NewRetryer 创建重试执行器。
// 默认使用 FixedRetry(3) 与 ExponentialBackoff。
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{
		policy:  NewFixedRetry(3),
		backoff: NewExponentialBackoff(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy 返回当前重试策略，nil 接收者返回 nil。
func (r *Retryer) Policy() RetryPolicy {
	if r == nil {
		return nil
	}
	return r.policy
}

// Backoff 返回当前退避策略，nil 接收者返回 nil。
func (r *Retryer) Backoff() BackoffPolicy {
	if r == nil {
		return nil
	}
	return r.backoff
}

// Do 执行带重试的操作。
// 失败后是否继续由两个条件共同决定：错误未被 Unrecoverable 标记，
// 且 policy.ShouldRetry 返回 true——二者是合取关系。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil {
		return ErrNilRetryer
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(r.buildOptions(ctx)...).Do(func() error {
		return fn(ctx)
	})
}

// DoWithResult 执行带重试的操作（有返回值）。泛型函数，只能以包级形式提供。
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilRetryer
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](r.buildOptions(ctx)...).Do(func() (T, error) {
		return fn(ctx)
	})
}

// buildOptions 构建 retry-go 选项。
// Attempts 设置硬上限，RetryIf 内的 ShouldRetry 提供逐次判断，
// 两者共同生效：ShouldRetry 可提前终止，但不会超过 Attempts 上限。
func (r *Retryer) buildOptions(ctx context.Context) []retry.Option {
	policy := r.policy
	if policy == nil {
		policy = NewFixedRetry(3)
	}
	backoff := r.backoff
	if backoff == nil {
		backoff = NewExponentialBackoff()
	}

	opts := make([]retry.Option, 0, 6)
	opts = append(opts, retry.Context(ctx))

	if maxAttempts := policy.MaxAttempts(); maxAttempts <= 0 {
		opts = append(opts, retry.UntilSucceeded())
	} else {
		opts = append(opts, retry.Attempts(toUint(maxAttempts)))
	}

	// attemptCount 用原子操作递增：Do 路径每次创建独立闭包，原子只是
	// 防御闭包被并发驱动的场景，不影响单调计数语义（1-based 失败次数）
	var attemptCount atomic.Int64
	opts = append(opts, retry.RetryIf(func(err error) bool {
		count := int(attemptCount.Add(1))
		if !IsRecoverable(err) {
			return false
		}
		return policy.ShouldRetry(ctx, count, err)
	}))

	opts = append(opts, retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
		return backoff.NextDelay(toInt(n))
	}))

	if r.onRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			// retry-go 的 OnRetry n 从 0 开始，转换为 1-based
			r.onRetry(toInt(n)+1, err)
		}))
	}

	// 只返回最后一个错误，简化调用方的错误处理
	opts = append(opts, retry.LastErrorOnly(true))
	return opts
}

func toUint(n int) uint {
	if n <= 0 {
		return 0
	}
	return uint(n)
}

func toInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}
