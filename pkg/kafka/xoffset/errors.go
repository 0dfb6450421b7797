package xoffset

import "errors"

// 预定义错误变量，便于调用方使用 errors.Is 进行判断。
var (
	// ErrNegativeOffset 表示偏移量为负数。
	ErrNegativeOffset = errors.New("xoffset: offset is negative")

	// ErrNilCommitFunc 表示提交动作为 nil。
	ErrNilCommitFunc = errors.New("xoffset: commit func is nil")

	// ErrMixedCommitFunc 表示合并了携带不同提交动作的批次。
	// 一个消费者实例应当只有一个提交动作；检测在 Merge 时记录，
	// 在 Commit 时显式报错而不是静默选择其一。
	ErrMixedCommitFunc = errors.New("xoffset: batches merged with different commit funcs")

	// ErrNilRetryer 表示重试器为 nil。
	ErrNilRetryer = errors.New("xoffset: retryer is nil")
)
