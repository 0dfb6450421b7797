package xrunloop

import "errors"

// 预定义错误变量，便于调用方使用 errors.Is 进行判断。
var (
	// ErrNilHandle 表示传入的独占句柄为 nil。
	ErrNilHandle = errors.New("xrunloop: handle is nil")

	// ErrEmptyOffsets 表示提交请求不含任何偏移量。
	ErrEmptyOffsets = errors.New("xrunloop: offsets map is empty")

	// ErrStopped 表示循环已停止，排队中的请求不会再被处理。
	ErrStopped = errors.New("xrunloop: runloop stopped")

	// ErrAlreadyRunning 表示 Run 被重复调用。
	ErrAlreadyRunning = errors.New("xrunloop: already running")
)
