package xstream

import "github.com/omeyang/streamkit/internal/kafcore"

// 重导出共享值类型与订阅构造函数，调用方无需触碰 internal 包。
type (
	// TopicPartition 分区标识。
	TopicPartition = kafcore.TopicPartition
	// Record 已消费记录。
	Record = kafcore.Record
	// Header 记录头。
	Header = kafcore.Header
	// Subscription 订阅描述。
	Subscription = kafcore.Subscription
)

// Topics 构造主题列表订阅。
func Topics(topics ...string) Subscription {
	return kafcore.Topics(topics...)
}

// Pattern 构造正则模式订阅。
func Pattern(expr string) Subscription {
	return kafcore.Pattern(expr)
}
