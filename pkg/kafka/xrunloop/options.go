package xrunloop

import (
	"log/slog"
	"time"

	"github.com/omeyang/streamkit/pkg/kafka/xdiag"
)

// Option 配置 Runloop 的选项函数。
type Option func(*runloopOptions)

type runloopOptions struct {
	logger          *slog.Logger
	sink            xdiag.Sink
	pollTimeout     time.Duration
	maxPollRecords  int
	partitionBuffer int
	commitRetries   int
	assignedBuffer  int
}

func defaultRunloopOptions() *runloopOptions {
	return &runloopOptions{
		logger:          slog.Default(),
		sink:            xdiag.NoopSink{},
		pollTimeout:     100 * time.Millisecond,
		maxPollRecords:  500,
		partitionBuffer: 32,
		commitRetries:   3,
		assignedBuffer:  64,
	}
}

// WithLogger 设置日志记录器。默认使用 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *runloopOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSink 设置诊断事件接收器。默认丢弃所有事件。
func WithSink(sink xdiag.Sink) Option {
	return func(o *runloopOptions) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithPollTimeout 设置单次轮询的阻塞上限，同时决定提交冲刷的节拍。
// 默认 100ms。非正值被忽略。
func WithPollTimeout(d time.Duration) Option {
	return func(o *runloopOptions) {
		if d > 0 {
			o.pollTimeout = d
		}
	}
}

// WithMaxPollRecords 设置单轮迭代最多处理的事件数（含记录）。默认 500。
func WithMaxPollRecords(n int) Option {
	return func(o *runloopOptions) {
		if n > 0 {
			o.maxPollRecords = n
		}
	}
}

// WithPartitionBuffer 设置每个分区通道缓冲的记录块数。
// 通道满即触发该分区的 Pause 背压。默认 32。
func WithPartitionBuffer(n int) Option {
	return func(o *runloopOptions) {
		if n > 0 {
			o.partitionBuffer = n
		}
	}
}

// WithCommitRetries 设置可重试类提交失败的默认重新入队预算。默认 3。
func WithCommitRetries(n int) Option {
	return func(o *runloopOptions) {
		if n >= 0 {
			o.commitRetries = n
		}
	}
}
