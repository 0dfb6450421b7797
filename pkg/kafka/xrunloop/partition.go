package xrunloop

import (
	"github.com/omeyang/streamkit/internal/kafcore"
)

// AssignedPartition 是再均衡分配给本消费者的一个分区及其记录通道。
//
// Records 按 broker 投递顺序产出记录块；通道关闭表示该分区被撤销或
// 消费者已关闭，属正常结束。循环因致命错误停止时通道同样会关闭，
// 下游通过 Runloop.Cause 区分两种结束。
type AssignedPartition struct {
	TopicPartition kafcore.TopicPartition
	Records        <-chan []kafcore.Record
}

// partitionQueue 是单个分区的派发状态。只被循环 goroutine 访问。
type partitionQueue struct {
	tp kafcore.TopicPartition

	// ch 写端归循环所有，关闭即向下游宣告分区结束。
	ch chan []kafcore.Record

	// pending 是通道满时的本地积压，FIFO。积压非空期间分区处于
	// Pause 状态，新记录一律追加到积压尾部以保序。
	pending [][]kafcore.Record
	paused  bool
}

func newPartitionQueue(tp kafcore.TopicPartition, buffer int) *partitionQueue {
	return &partitionQueue{
		tp: tp,
		ch: make(chan []kafcore.Record, buffer),
	}
}

// offer 尝试无阻塞写入一个记录块，返回是否需要暂停该分区。
func (q *partitionQueue) offer(chunk []kafcore.Record) (needPause bool) {
	if q.paused || len(q.pending) > 0 {
		q.pending = append(q.pending, chunk)
		return false
	}
	select {
	case q.ch <- chunk:
		return false
	default:
		q.pending = append(q.pending, chunk)
		q.paused = true
		return true
	}
}

// flush 尽量排空积压，返回分区是否已具备恢复拉取的条件。
// paused 标记由调用方在 Resume 实际成功后才清除。
func (q *partitionQueue) flush() (canResume bool) {
	for len(q.pending) > 0 {
		select {
		case q.ch <- q.pending[0]:
			q.pending[0] = nil
			q.pending = q.pending[1:]
		default:
			return false
		}
	}
	return q.paused
}

// shutdown 丢弃积压并关闭通道。未送达的记录未被提交，
// 再均衡后会重新投递，至少一次语义不受影响。
func (q *partitionQueue) shutdown() {
	q.pending = nil
	close(q.ch)
}
