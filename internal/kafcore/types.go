package kafcore

import (
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// TopicPartition 标识一个主题分区。
//
// 与 kafka.TopicPartition 不同，本类型不携带 offset、错误等易变字段，
// 且 Topic 为值类型而非指针，因此值相等即身份相等，可直接用作 map key。
type TopicPartition struct {
	Topic     string
	Partition int32
}

// String 返回 "topic[partition]" 形式的可读表示。
func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s[%d]", tp.Topic, tp.Partition)
}

// ToKafka 转换为 confluent-kafka-go 的 TopicPartition。
// offset 为要携带的偏移量，不关心时传 kafka.OffsetInvalid。
//
// 设计决策: Topic 指针指向新分配的局部变量副本，而非调用方持有的字符串，
// 避免 confluent-kafka-go 内部持有指针导致的别名问题。
func (tp TopicPartition) ToKafka(offset kafka.Offset) kafka.TopicPartition {
	topic := tp.Topic
	return kafka.TopicPartition{
		Topic:     &topic,
		Partition: tp.Partition,
		Offset:    offset,
	}
}

// FromKafka 从 confluent-kafka-go 的 TopicPartition 提取分区标识。
// Topic 为 nil 时返回空主题名（librdkafka 不应产生这种事件，防御性处理）。
func FromKafka(ktp kafka.TopicPartition) TopicPartition {
	tp := TopicPartition{Partition: ktp.Partition}
	if ktp.Topic != nil {
		tp.Topic = *ktp.Topic
	}
	return tp
}

// FromKafkaAll 批量转换分区标识。
func FromKafkaAll(ktps []kafka.TopicPartition) []TopicPartition {
	if len(ktps) == 0 {
		return nil
	}
	tps := make([]TopicPartition, 0, len(ktps))
	for _, ktp := range ktps {
		tps = append(tps, FromKafka(ktp))
	}
	return tps
}

// Header 一条消息头。
type Header struct {
	Key   string
	Value []byte
}

// Record 一条已拉取的原始消息记录。
//
// Offset 是该记录自身的位置；"下次读取应从此记录之后恢复"的提交语义
// （即提交 Offset+1）由 xoffset 包在转换为 broker 偏移量时统一处理。
type Record struct {
	TopicPartition TopicPartition
	Offset         int64
	Key            []byte
	Value          []byte
	Timestamp      time.Time
	Headers        []Header
}

// RecordFromMessage 从 confluent-kafka-go 消息构造 Record。
// msg 为 nil 时返回零值 Record。
func RecordFromMessage(msg *kafka.Message) Record {
	if msg == nil {
		return Record{}
	}
	rec := Record{
		TopicPartition: FromKafka(msg.TopicPartition),
		Offset:         int64(msg.TopicPartition.Offset),
		Key:            msg.Key,
		Value:          msg.Value,
		Timestamp:      msg.Timestamp,
	}
	if len(msg.Headers) > 0 {
		rec.Headers = make([]Header, 0, len(msg.Headers))
		for _, h := range msg.Headers {
			rec.Headers = append(rec.Headers, Header{Key: h.Key, Value: h.Value})
		}
	}
	return rec
}
