package xoffset

import (
	"context"

	"github.com/omeyang/streamkit/internal/kafcore"
	"github.com/omeyang/streamkit/pkg/resilience/xretry"
)

// CommitFunc 是外部注入的提交动作，接收 分区→记录偏移量 的映射。
// 映射中的值是记录自身的偏移量；提交实现负责转换为 broker 的
// 提交语义（记录偏移量 +1）。
type CommitFunc func(ctx context.Context, offsets map[kafcore.TopicPartition]int64) error

// Offset 表示单条已消费记录的确认位置。纯值，创建后不再变更。
type Offset struct {
	tp     kafcore.TopicPartition
	offset int64
	commit CommitFunc
}

// New 创建 Offset。offset 为负数时返回 ErrNegativeOffset，
// commit 为 nil 时返回 ErrNilCommitFunc。
func New(tp kafcore.TopicPartition, offset int64, commit CommitFunc) (Offset, error) {
	if offset < 0 {
		return Offset{}, ErrNegativeOffset
	}
	if commit == nil {
		return Offset{}, ErrNilCommitFunc
	}
	return Offset{tp: tp, offset: offset, commit: commit}, nil
}

// FromRecord 从已消费记录创建其确认位置。
func FromRecord(rec kafcore.Record, commit CommitFunc) (Offset, error) {
	return New(rec.TopicPartition, rec.Offset, commit)
}

// TopicPartition 返回所属分区。
func (o Offset) TopicPartition() kafcore.TopicPartition {
	return o.tp
}

// Value 返回记录自身的偏移量（非提交偏移量，提交时 +1）。
func (o Offset) Value() int64 {
	return o.offset
}

// Batch 派生仅含此 Offset 的单元素批次，共享同一提交动作。
func (o Offset) Batch() Batch {
	if o.commit == nil {
		return EmptyBatch()
	}
	return Batch{
		offsets: map[kafcore.TopicPartition]int64{o.tp: o.offset},
		commit:  o.commit,
	}
}

// Commit 直接提交此单条偏移量。
func (o Offset) Commit(ctx context.Context) error {
	return o.Batch().Commit(ctx)
}

// CommitOrRetry 提交此单条偏移量，按 r 的策略重试可重试类失败。
func (o Offset) CommitOrRetry(ctx context.Context, r *xretry.Retryer) error {
	return o.Batch().CommitOrRetry(ctx, r)
}
