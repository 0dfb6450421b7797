// Package xretry 提供策略化的重试执行能力。
//
// 本包把"是否继续重试"（RetryPolicy）与"重试间隔多久"（BackoffPolicy）
// 拆成两个独立接口，由 Retryer 组合执行，底层基于 avast/retry-go/v5。
//
// # 基本使用
//
//	r := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(5)),
//	    xretry.WithBackoffPolicy(xretry.NewExponentialBackoff()),
//	)
//	err := r.Do(ctx, func(ctx context.Context) error {
//	    return commit(ctx)
//	})
//
// # 不可恢复错误
//
// 回调返回 Unrecoverable 包装的错误时立即停止重试，原始错误原样返回。
// 提交重试等"仅特定错误类可重试"的场景依赖这一短路：调用方把非可重试
// 类错误包装为 Unrecoverable，RetryPolicy 只负责次数与上下文判断。
package xretry
