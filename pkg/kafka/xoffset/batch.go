package xoffset

import (
	"context"
	"maps"
	"reflect"

	"github.com/omeyang/streamkit/internal/kafcore"
	"github.com/omeyang/streamkit/pkg/resilience/xretry"
)

// Batch 是跨分区的偏移量合并映射。纯值，所有操作返回新值。
//
// 零值即空批次，合并的幺元。
type Batch struct {
	offsets map[kafcore.TopicPartition]int64
	commit  CommitFunc

	// mixed 在 Merge 检测到不同提交动作时置位，Commit 时报错。
	// 设计决策: CommitFunc 是函数类型无法用 == 比较，Merge 用
	// reflect 比较函数指针。包装同一函数的两个不同闭包会被视为
	// 不同动作——宁可误报也不静默提交到错误的目标。
	mixed bool
}

// EmptyBatch 返回空批次。空批次是 Merge 的幺元，Commit 为无操作。
func EmptyBatch() Batch {
	return Batch{}
}

// Merge 合并两个批次：键取并集，共有键取两者偏移量的最大值。
// 乱序合并不会使任一分区的偏移量回退。
func (b Batch) Merge(other Batch) Batch {
	if len(other.offsets) == 0 && !other.mixed {
		return b
	}
	if len(b.offsets) == 0 && !b.mixed {
		return other
	}

	merged := make(map[kafcore.TopicPartition]int64, len(b.offsets)+len(other.offsets))
	maps.Copy(merged, b.offsets)
	for tp, off := range other.offsets {
		if cur, ok := merged[tp]; !ok || off > cur {
			merged[tp] = off
		}
	}

	out := Batch{offsets: merged, commit: b.commit, mixed: b.mixed || other.mixed}
	switch {
	case out.commit == nil:
		out.commit = other.commit
	case other.commit != nil && !sameFunc(out.commit, other.commit):
		out.mixed = true
	}
	return out
}

// Add 将单个 Offset 并入批次，等价于 b.Merge(o.Batch())。
func (b Batch) Add(o Offset) Batch {
	return b.Merge(o.Batch())
}

// Offsets 返回 分区→最大记录偏移量 映射的拷贝。
func (b Batch) Offsets() map[kafcore.TopicPartition]int64 {
	if len(b.offsets) == 0 {
		return nil
	}
	return maps.Clone(b.offsets)
}

// Size 返回批次覆盖的分区数。
func (b Batch) Size() int {
	return len(b.offsets)
}

// IsEmpty 报告批次是否为空。
func (b Batch) IsEmpty() bool {
	return len(b.offsets) == 0
}

// Commit 以批次的提交动作提交全部偏移量。
// 空批次为无操作；合并过不同提交动作的批次返回 ErrMixedCommitFunc。
func (b Batch) Commit(ctx context.Context) error {
	if b.mixed {
		return ErrMixedCommitFunc
	}
	if len(b.offsets) == 0 || b.commit == nil {
		return nil
	}
	return b.commit(ctx, maps.Clone(b.offsets))
}

// CommitOrRetry 提交批次，失败时按 r 的策略重试。
//
// 仅当失败属于 broker 定义的可重试类别（见 IsRetriable）且 r 的策略
// 仍允许下一次尝试时才重试；其余失败立即返回。
func (b Batch) CommitOrRetry(ctx context.Context, r *xretry.Retryer) error {
	if r == nil {
		return ErrNilRetryer
	}
	return r.Do(ctx, func(ctx context.Context) error {
		err := b.Commit(ctx)
		if err == nil || IsRetriable(err) {
			return err
		}
		return xretry.Unrecoverable(err)
	})
}

func sameFunc(a, b CommitFunc) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
