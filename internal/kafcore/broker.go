package kafcore

import (
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// BrokerClient 是对 confluent-kafka-go *kafka.Consumer 的最小接口抽象，
// 仅包含本模块消费的操作。*kafka.Consumer 天然满足此接口。
//
// 线协议、消费组协商、分区分配算法全部由底层客户端实现，本模块只负责
// 安全地编排对它的并发访问：除 xaccess.Handle 外，任何代码不得持有
// BrokerClient 的裸引用。
//
// 注意：Poll 是阻塞调用（最长阻塞 timeoutMs），订阅时注册的
// RebalanceCb 在 Poll 内部被同步回调。
type BrokerClient interface {
	// SubscribeTopics 订阅主题列表（"^" 前缀的条目按正则匹配）。
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error

	// Unsubscribe 取消当前订阅。
	Unsubscribe() error

	// Poll 拉取单个事件，最长阻塞 timeoutMs 毫秒，无事件时返回 nil。
	Poll(timeoutMs int) kafka.Event

	// Assignment 返回 broker 报告的当前分区分配。
	Assignment() ([]kafka.TopicPartition, error)

	// CommitOffsets 同步提交给定偏移量。
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)

	// Committed 查询已提交偏移量。
	Committed(partitions []kafka.TopicPartition, timeoutMs int) ([]kafka.TopicPartition, error)

	// SeekPartitions 调整给定分区的读取位置。
	SeekPartitions(partitions []kafka.TopicPartition) ([]kafka.TopicPartition, error)

	// QueryWatermarkOffsets 查询分区的低/高水位。
	QueryWatermarkOffsets(topic string, partition int32, timeoutMs int) (low, high int64, err error)

	// OffsetsForTimes 按时间戳查询偏移量。
	OffsetsForTimes(times []kafka.TopicPartition, timeoutMs int) ([]kafka.TopicPartition, error)

	// GetMetadata 获取主题/集群元数据。
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)

	// Position 查询下一条将被拉取的消息的偏移量。
	Position(partitions []kafka.TopicPartition) ([]kafka.TopicPartition, error)

	// Pause 暂停给定分区的拉取。
	Pause(partitions []kafka.TopicPartition) error

	// Resume 恢复给定分区的拉取。
	Resume(partitions []kafka.TopicPartition) error

	// Close 关闭客户端，离开消费组。
	Close() error
}

// 确保 confluent-kafka-go 的消费者满足接口
var _ BrokerClient = (*kafka.Consumer)(nil)
