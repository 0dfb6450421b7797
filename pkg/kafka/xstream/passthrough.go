package xstream

import (
	"context"
	"sort"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/streamkit/internal/kafcore"
	"github.com/omeyang/streamkit/pkg/kafka/xaccess"
)

// 本文件是对底层客户端管理类操作的单持有者透传：每个操作都经独占
// 句柄路由，与运行循环的轮询公平竞争同一枚令牌。

const metadataTimeoutMs = 10_000

// Seek 调整单个分区的读取位置到 offset。
func (c *Consumer) Seek(ctx context.Context, tp kafcore.TopicPartition, offset int64) error {
	return c.seek(ctx, []kafka.TopicPartition{tp.ToKafka(kafka.Offset(offset))})
}

// SeekToBeginning 将给定分区的读取位置调整到起始处。
func (c *Consumer) SeekToBeginning(ctx context.Context, tps []kafcore.TopicPartition) error {
	return c.seek(ctx, toKafkaAll(tps, kafka.OffsetBeginning))
}

// SeekToEnd 将给定分区的读取位置调整到末尾。
func (c *Consumer) SeekToEnd(ctx context.Context, tps []kafcore.TopicPartition) error {
	return c.seek(ctx, toKafkaAll(tps, kafka.OffsetEnd))
}

func (c *Consumer) seek(ctx context.Context, ktps []kafka.TopicPartition) error {
	return c.handle.WithHandle(ctx, func(client kafcore.BrokerClient) error {
		_, err := client.SeekPartitions(ktps)
		return err
	})
}

// BeginningOffsets 查询给定分区的起始偏移量（低水位）。
func (c *Consumer) BeginningOffsets(ctx context.Context, tps []kafcore.TopicPartition) (map[kafcore.TopicPartition]int64, error) {
	return c.watermarks(ctx, tps, false)
}

// EndOffsets 查询给定分区的末端偏移量（高水位）。
func (c *Consumer) EndOffsets(ctx context.Context, tps []kafcore.TopicPartition) (map[kafcore.TopicPartition]int64, error) {
	return c.watermarks(ctx, tps, true)
}

func (c *Consumer) watermarks(ctx context.Context, tps []kafcore.TopicPartition, high bool) (map[kafcore.TopicPartition]int64, error) {
	return xaccess.Do(ctx, c.handle, func(client kafcore.BrokerClient) (map[kafcore.TopicPartition]int64, error) {
		out := make(map[kafcore.TopicPartition]int64, len(tps))
		for _, tp := range tps {
			lo, hi, err := client.QueryWatermarkOffsets(tp.Topic, tp.Partition, metadataTimeoutMs)
			if err != nil {
				return nil, err
			}
			if high {
				out[tp] = hi
			} else {
				out[tp] = lo
			}
		}
		return out, nil
	})
}

// OffsetsForTimes 查询各分区在给定时间点之后的首条记录偏移量。
// 无对应记录的分区在结果中缺席。
func (c *Consumer) OffsetsForTimes(ctx context.Context, times map[kafcore.TopicPartition]time.Time) (map[kafcore.TopicPartition]int64, error) {
	query := make([]kafka.TopicPartition, 0, len(times))
	for tp, ts := range times {
		query = append(query, tp.ToKafka(kafka.Offset(ts.UnixMilli())))
	}

	return xaccess.Do(ctx, c.handle, func(client kafcore.BrokerClient) (map[kafcore.TopicPartition]int64, error) {
		found, err := client.OffsetsForTimes(query, metadataTimeoutMs)
		if err != nil {
			return nil, err
		}
		out := make(map[kafcore.TopicPartition]int64, len(found))
		for _, ktp := range found {
			if ktp.Offset < 0 {
				continue
			}
			out[kafcore.FromKafka(ktp)] = int64(ktp.Offset)
		}
		return out, nil
	})
}

// ListTopics 返回集群中的全部主题名，按字典序排列。
func (c *Consumer) ListTopics(ctx context.Context) ([]string, error) {
	return xaccess.Do(ctx, c.handle, func(client kafcore.BrokerClient) ([]string, error) {
		md, err := client.GetMetadata(nil, true, metadataTimeoutMs)
		if err != nil {
			return nil, err
		}
		topics := make([]string, 0, len(md.Topics))
		for name := range md.Topics {
			topics = append(topics, name)
		}
		sort.Strings(topics)
		return topics, nil
	})
}

// PartitionsFor 返回主题的全部分区。
func (c *Consumer) PartitionsFor(ctx context.Context, topic string) ([]kafcore.TopicPartition, error) {
	return xaccess.Do(ctx, c.handle, func(client kafcore.BrokerClient) ([]kafcore.TopicPartition, error) {
		md, err := client.GetMetadata(&topic, false, metadataTimeoutMs)
		if err != nil {
			return nil, err
		}
		tm, ok := md.Topics[topic]
		if !ok {
			return nil, nil
		}
		out := make([]kafcore.TopicPartition, 0, len(tm.Partitions))
		for _, p := range tm.Partitions {
			out = append(out, kafcore.TopicPartition{Topic: topic, Partition: p.ID})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Partition < out[j].Partition })
		return out, nil
	})
}

// Position 查询各分区下一条将被拉取的偏移量。未知位置的分区值为 -1。
func (c *Consumer) Position(ctx context.Context, tps []kafcore.TopicPartition) (map[kafcore.TopicPartition]int64, error) {
	return xaccess.Do(ctx, c.handle, func(client kafcore.BrokerClient) (map[kafcore.TopicPartition]int64, error) {
		found, err := client.Position(toKafkaAll(tps, kafka.OffsetInvalid))
		if err != nil {
			return nil, err
		}
		return offsetMap(found), nil
	})
}

// Committed 查询各分区的已提交偏移量。未提交过的分区值为 -1。
func (c *Consumer) Committed(ctx context.Context, tps []kafcore.TopicPartition) (map[kafcore.TopicPartition]int64, error) {
	return xaccess.Do(ctx, c.handle, func(client kafcore.BrokerClient) (map[kafcore.TopicPartition]int64, error) {
		found, err := client.Committed(toKafkaAll(tps, kafka.OffsetInvalid), metadataTimeoutMs)
		if err != nil {
			return nil, err
		}
		return offsetMap(found), nil
	})
}

// Assignment 返回 broker 报告的当前分区分配。
func (c *Consumer) Assignment(ctx context.Context) ([]kafcore.TopicPartition, error) {
	return xaccess.Do(ctx, c.handle, func(client kafcore.BrokerClient) ([]kafcore.TopicPartition, error) {
		ktps, err := client.Assignment()
		if err != nil {
			return nil, err
		}
		return kafcore.FromKafkaAll(ktps), nil
	})
}

func toKafkaAll(tps []kafcore.TopicPartition, offset kafka.Offset) []kafka.TopicPartition {
	out := make([]kafka.TopicPartition, len(tps))
	for i, tp := range tps {
		out[i] = tp.ToKafka(offset)
	}
	return out
}

func offsetMap(ktps []kafka.TopicPartition) map[kafcore.TopicPartition]int64 {
	out := make(map[kafcore.TopicPartition]int64, len(ktps))
	for _, ktp := range ktps {
		if ktp.Offset < 0 {
			out[kafcore.FromKafka(ktp)] = -1
			continue
		}
		out[kafcore.FromKafka(ktp)] = int64(ktp.Offset)
	}
	return out
}
