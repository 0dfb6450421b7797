package xretry

import "errors"

var (
	// ErrNilRetryer 表示接收者为 nil。
	ErrNilRetryer = errors.New("xretry: nil retryer")

	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xretry: nil context")

	// ErrNilFunc 表示传入的函数为 nil。
	ErrNilFunc = errors.New("xretry: nil func")
)
