// Package kafcore 提供 Kafka 流式消费的共享核心类型。
//
// 本包是 internal 包，仅供 pkg/kafka 下的 xaccess、xoffset、xrunloop、
// xstream、xdiag 包内部使用。外部用户通过各公开包的类型别名访问这些类型。
//
// 主要内容：
//   - TopicPartition：主题分区标识（值相等即身份相等，可作 map key）
//   - Record：一条已拉取的原始消息记录（保留 broker 投递顺序）
//   - Subscription：订阅描述（主题集合或正则模式的封闭二元变体）
//   - BrokerClient：对 confluent-kafka-go *kafka.Consumer 的最小接口抽象
//   - 共享错误定义（仅含各包共用的错误，各包专用错误定义在各包内）
//
// 依赖策略: 本包只依赖 confluent-kafka-go，不依赖任何高层包，
// 依赖链为：pkg/kafka/* → internal/kafcore → confluent-kafka-go。
package kafcore
