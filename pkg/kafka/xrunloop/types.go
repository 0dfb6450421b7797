package xrunloop

import "github.com/omeyang/streamkit/internal/kafcore"

// 重导出共享值类型，避免调用方直接依赖 internal 包。
type (
	// TopicPartition 分区标识。
	TopicPartition = kafcore.TopicPartition
	// Record 已消费记录。
	Record = kafcore.Record
	// Subscription 订阅描述。
	Subscription = kafcore.Subscription
)
