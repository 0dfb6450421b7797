package kafcore

import "errors"

// 共享错误定义（pkg/kafka 各包共同使用）。
// 设计决策: 错误前缀使用 "kafka:" 而非 "kafcore:"，这些错误会被公开包
// 重导出给终端用户，通用前缀避免暴露 internal 包名。
var (
	// ErrNilClient 表示传入的 broker 客户端为空。
	ErrNilClient = errors.New("kafka: nil client")

	// ErrNilFunc 表示传入的函数为空。
	ErrNilFunc = errors.New("kafka: nil func")

	// ErrClosed 表示目标已关闭。
	ErrClosed = errors.New("kafka: closed")

	// ErrEmptySubscription 表示订阅为空（既无主题也无模式）。
	ErrEmptySubscription = errors.New("kafka: empty subscription")
)
