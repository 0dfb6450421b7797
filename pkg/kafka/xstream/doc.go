// Package xstream 是面向应用的 Kafka 消费门面。
//
// 它把 xrunloop 的分区通道包装成懒惰的记录流：Partitions 暴露
// 分区→顺序流 的序列（每个分区独立背压与预取），Records 把全部分区
// 扁平化为一个无序交错的流，ConsumeWith 在此之上提供回调式消费与
// 偏移量自动聚合提交。三种消费方式互斥，一个消费者实例只能选择一种。
//
// 投递语义为至少一次：偏移量在记录处理后提交，处理与提交之间的崩溃
// 会导致重新投递。分区内保持 broker 投递顺序，跨分区无序。
//
// 使用方式：
//
//	settings := xstream.DefaultSettings()
//	settings.BootstrapServers = []string{"localhost:9092"}
//	settings.GroupID = "billing"
//
//	c, err := xstream.NewConsumer(settings)
//	if err != nil { ... }
//	defer c.Close()
//
//	err = c.ConsumeWith(ctx, xstream.Topics("orders"),
//	    func(ctx context.Context, rec xstream.Record) error {
//	        return process(ctx, rec)
//	    })
package xstream
