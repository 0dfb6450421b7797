package xaccess

import "errors"

// 预定义错误变量，便于调用方使用 errors.Is 进行判断。
var (
	// ErrNilClient 表示传入的底层客户端为 nil。
	ErrNilClient = errors.New("xaccess: client is nil")

	// ErrNilFunc 表示传入的回调函数为 nil。
	ErrNilFunc = errors.New("xaccess: fn is nil")

	// ErrClosed 表示句柄已关闭，不再接受新的调用。
	ErrClosed = errors.New("xaccess: handle closed")
)
