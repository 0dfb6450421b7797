package xdiag

import (
	"time"

	"github.com/omeyang/streamkit/internal/kafcore"
)

// TopicPartition 重导出共享分区标识，避免调用方直接依赖 internal 包。
type TopicPartition = kafcore.TopicPartition

// Event 诊断事件。封闭变体：实现仅限本包内定义的事件类型。
type Event interface {
	// Kind 返回事件种类名，用于日志与指标标签。
	Kind() string
}

// PollEvent 一次 poll 迭代完成。
type PollEvent struct {
	// Records 本次迭代拉取的记录总数。
	Records int
	// Partitions 本次迭代产生记录的分区数。
	Partitions int
	// Elapsed poll 阶段耗时。
	Elapsed time.Duration
}

func (PollEvent) Kind() string { return "poll" }

// RebalanceEvent 一次分区再均衡。Assigned/Revoked 至少一个非空。
type RebalanceEvent struct {
	Assigned []TopicPartition
	Revoked  []TopicPartition
}

func (RebalanceEvent) Kind() string { return "rebalance" }

// CommitEvent 一次偏移量提交完成。
type CommitEvent struct {
	// Offsets 本次提交覆盖的分区数。
	Offsets int
	// Err 提交结果，nil 表示成功。
	Err error
	// Retried 本次提交是否是对先前失败请求的重试。
	Retried bool
}

func (CommitEvent) Kind() string { return "commit" }

// PartitionOpenedEvent 新分配分区的通道已开通并发布。
type PartitionOpenedEvent struct {
	Partition TopicPartition
}

func (PartitionOpenedEvent) Kind() string { return "partition_opened" }

// PartitionClosedEvent 分区通道已关闭。
// Revoked 为 true 表示由分区撤销触发，否则为循环停止时的收尾关闭。
type PartitionClosedEvent struct {
	Partition TopicPartition
	Revoked   bool
}

func (PartitionClosedEvent) Kind() string { return "partition_closed" }

// FailureEvent 运行循环遇到致命错误并停止。
type FailureEvent struct {
	Err error
}

func (FailureEvent) Kind() string { return "failure" }

// 确保事件类型实现接口
var (
	_ Event = PollEvent{}
	_ Event = RebalanceEvent{}
	_ Event = CommitEvent{}
	_ Event = PartitionOpenedEvent{}
	_ Event = PartitionClosedEvent{}
	_ Event = FailureEvent{}
)
