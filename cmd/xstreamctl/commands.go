package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/streamkit/pkg/kafka/xstream"
)

// usageError 表示参数层面的错误，main 据此返回退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createTailCommand(),
		createLagCommand(),
		createTopicsCommand(),
		createOffsetsCommand(),
	}
}

// buildSettings 根据全局选项组装消费者配置。
// 优先读取 --config 指定的文件，命令行选项覆盖文件内容。
func buildSettings(cmd *cli.Command) (xstream.Settings, error) {
	settings := xstream.DefaultSettings()
	if path := cmd.String("config"); path != "" {
		loaded, err := xstream.LoadSettings(path)
		if err != nil {
			return settings, err
		}
		settings = loaded
	}
	if brokers := cmd.StringSlice("brokers"); len(brokers) > 0 {
		settings.BootstrapServers = brokers
	}
	if group := cmd.String("group"); group != "" {
		settings.GroupID = group
	}
	return settings, nil
}

func newConsumer(cmd *cli.Command) (*xstream.Consumer, error) {
	settings, err := buildSettings(cmd)
	if err != nil {
		return nil, err
	}
	if len(settings.BootstrapServers) == 0 {
		return nil, usageErrorf("缺少 bootstrap 地址，请指定 --brokers 或 --config")
	}
	if settings.GroupID == "" {
		return nil, usageErrorf("缺少消费组 ID，请指定 --group 或 --config")
	}
	return xstream.NewConsumer(settings)
}

// createTailCommand 创建 tail 子命令（持续消费并打印记录）。
func createTailCommand() *cli.Command {
	return &cli.Command{
		Name:      "tail",
		Usage:     "持续消费主题并打印记录",
		ArgsUsage: "<topic>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "打印指定条数后退出 (0 表示不限)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			topic := cmd.Args().First()
			if topic == "" {
				return usageErrorf("tail 需要一个主题参数")
			}
			return cmdTail(ctx, cmd, topic, cmd.Int("count"))
		},
	}
}

func cmdTail(ctx context.Context, cmd *cli.Command, topic string, count int) error {
	consumer, err := newConsumer(cmd)
	if err != nil {
		return err
	}
	defer consumer.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printed := 0
	err = consumer.ConsumeWith(ctx, xstream.Topics(topic),
		func(_ context.Context, rec xstream.Record) error {
			fmt.Println(formatRecord(rec))
			printed++
			if count > 0 && printed >= count {
				cancel()
			}
			return nil
		})
	// count 达到上限触发的取消属于正常结束
	if count > 0 && printed >= count && ctx.Err() != nil {
		return nil
	}
	return err
}

// formatRecord 格式化单条记录用于终端输出。
func formatRecord(rec xstream.Record) string {
	key := "<nil>"
	if rec.Key != nil {
		key = string(rec.Key)
	}
	return fmt.Sprintf("%s[%d]@%d ts=%s key=%s value=%s",
		rec.TopicPartition.Topic, rec.TopicPartition.Partition, rec.Offset,
		rec.Timestamp.Format(time.RFC3339), key, string(rec.Value))
}

// createLagCommand 创建 lag 子命令（查看消费组滞后量）。
func createLagCommand() *cli.Command {
	return &cli.Command{
		Name:      "lag",
		Usage:     "查看消费组在各分区上的滞后量",
		ArgsUsage: "<topic>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			topics := cmd.Args().Slice()
			if len(topics) == 0 {
				return usageErrorf("lag 需要至少一个主题参数")
			}
			return cmdLag(ctx, cmd, topics)
		},
	}
}

func cmdLag(ctx context.Context, cmd *cli.Command, topics []string) error {
	consumer, err := newConsumer(cmd)
	if err != nil {
		return err
	}
	defer consumer.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOPIC\tPARTITION\tCOMMITTED\tEND\tLAG")
	for _, topic := range topics {
		parts, err := consumer.PartitionsFor(ctx, topic)
		if err != nil {
			return fmt.Errorf("查询主题 %s 分区失败: %w", topic, err)
		}
		committed, err := consumer.Committed(ctx, parts)
		if err != nil {
			return fmt.Errorf("查询主题 %s 提交位点失败: %w", topic, err)
		}
		ends, err := consumer.EndOffsets(ctx, parts)
		if err != nil {
			return fmt.Errorf("查询主题 %s 高水位失败: %w", topic, err)
		}
		for _, tp := range parts {
			fmt.Fprintln(w, formatLagRow(tp, committed[tp], ends[tp]))
		}
	}
	return w.Flush()
}

// formatLagRow 生成 lag 表格的一行。未提交过位点时提交列记 "-"，滞后量按高水位估算。
func formatLagRow(tp xstream.TopicPartition, committed, end int64) string {
	committedCol := "-"
	lag := end
	if committed >= 0 {
		committedCol = fmt.Sprintf("%d", committed)
		lag = end - committed
	}
	if lag < 0 {
		lag = 0
	}
	return fmt.Sprintf("%s\t%d\t%s\t%d\t%d",
		tp.Topic, tp.Partition, committedCol, end, lag)
}

// createTopicsCommand 创建 topics 子命令。
func createTopicsCommand() *cli.Command {
	return &cli.Command{
		Name:  "topics",
		Usage: "列出集群中的全部主题",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdTopics(ctx, cmd)
		},
	}
}

func cmdTopics(ctx context.Context, cmd *cli.Command) error {
	consumer, err := newConsumer(cmd)
	if err != nil {
		return err
	}
	defer consumer.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	topics, err := consumer.ListTopics(ctx)
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(topics, "\n"))
	return nil
}

// createOffsetsCommand 创建 offsets 子命令。
func createOffsetsCommand() *cli.Command {
	return &cli.Command{
		Name:      "offsets",
		Usage:     "查看主题各分区的水位区间",
		ArgsUsage: "<topic>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			topic := cmd.Args().First()
			if topic == "" {
				return usageErrorf("offsets 需要一个主题参数")
			}
			return cmdOffsets(ctx, cmd, topic)
		},
	}
}

func cmdOffsets(ctx context.Context, cmd *cli.Command, topic string) error {
	consumer, err := newConsumer(cmd)
	if err != nil {
		return err
	}
	defer consumer.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	parts, err := consumer.PartitionsFor(ctx, topic)
	if err != nil {
		return err
	}
	lows, err := consumer.BeginningOffsets(ctx, parts)
	if err != nil {
		return err
	}
	highs, err := consumer.EndOffsets(ctx, parts)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOPIC\tPARTITION\tBEGIN\tEND\tCOUNT")
	for _, tp := range parts {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
			tp.Topic, tp.Partition, lows[tp], highs[tp], highs[tp]-lows[tp])
	}
	return w.Flush()
}
