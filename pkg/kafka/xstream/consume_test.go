package xstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/streamkit/internal/kafcore"
)

func TestConsumeWith_NilHandler(t *testing.T) {
	c := newTestConsumer(t, newFakeBroker())
	assert.ErrorIs(t, c.ConsumeWith(context.Background(), Topics("orders"), nil), ErrNilHandler)
}

func TestConsumeWith_ProcessesAndCommits(t *testing.T) {
	tp := kafcore.TopicPartition{Topic: "orders", Partition: 0}
	script := []any{assignEvent(tp), pollEnd{}}
	for i := 0; i < 10; i++ {
		script = append(script, record(tp, int64(i), "v"))
	}
	broker := newFakeBroker(script...)
	c := newTestConsumer(t, broker)

	var mu sync.Mutex
	var got []int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- c.ConsumeWith(ctx, Topics("orders"), func(_ context.Context, rec Record) error {
			mu.Lock()
			got = append(got, rec.Offset)
			mu.Unlock()
			return nil
		})
	}()

	// 全部记录处理完且空闲间隙触发批次提交
	require.Eventually(t, func() bool {
		last := broker.lastCommit()
		return last != nil && last[tp] == kafka.Offset(10)
	}, 10*time.Second, time.Millisecond, "accumulated batch was never committed")

	mu.Lock()
	require.Len(t, got, 10)
	for i, off := range got {
		assert.Equal(t, int64(i), off)
	}
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-consumeErr, context.Canceled)
}

func TestConsumeWith_HandlerErrorStopsAndFlushes(t *testing.T) {
	tp := kafcore.TopicPartition{Topic: "orders", Partition: 0}
	script := []any{assignEvent(tp), pollEnd{}}
	for i := 0; i < 5; i++ {
		script = append(script, record(tp, int64(i), "v"))
	}
	broker := newFakeBroker(script...)
	c := newTestConsumer(t, broker)

	boom := errors.New("handler gave up")
	err := c.ConsumeWith(context.Background(), Topics("orders"), func(_ context.Context, rec Record) error {
		if rec.Offset == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)

	// 失败前的记录 0..2 已折叠进批次并尽力提交
	require.Eventually(t, func() bool {
		last := broker.lastCommit()
		return last != nil && last[tp] == kafka.Offset(3)
	}, 5*time.Second, time.Millisecond)
}

func TestConsumeWith_BatchSizeForcesCommit(t *testing.T) {
	tp := kafcore.TopicPartition{Topic: "orders", Partition: 0}
	script := []any{assignEvent(tp), pollEnd{}}
	for i := 0; i < 6; i++ {
		script = append(script, record(tp, int64(i), "v"))
	}
	broker := newFakeBroker(script...)
	c := newTestConsumer(t, broker, WithCommitBatchSize(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- c.ConsumeWith(ctx, Topics("orders"), func(context.Context, Record) error {
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		last := broker.lastCommit()
		return last != nil && last[tp] == kafka.Offset(6)
	}, 10*time.Second, time.Millisecond)

	// 每累积 2 条至少提交一次，提交次数不少于 3
	broker.mu.Lock()
	commitCalls := len(broker.commits)
	broker.mu.Unlock()
	assert.GreaterOrEqual(t, commitCalls, 3)

	cancel()
	assert.ErrorIs(t, <-consumeErr, context.Canceled)
}
