// xstreamctl 是 streamkit 消费者的命令行小工具。
//
// 用法:
//
//	xstreamctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config   消费者配置文件 (.yaml/.json)
//	-b, --brokers  bootstrap 地址（覆盖配置文件）
//	-g, --group    消费组 ID（覆盖配置文件）
//	-t, --timeout  管理类命令超时时间 (默认: 30s)
//
// 命令:
//
//	tail <topic>     持续消费主题并打印记录
//	lag <topic>...   查看消费组在各分区上的滞后量
//	topics           列出集群中的全部主题
//	offsets <topic>  查看主题各分区的水位区间
//
// 退出码:
//
//	0: 命令执行成功
//	1: 命令执行失败
//	2: 参数错误（缺少必需参数、未知命令等）
//
// 示例:
//
//	xstreamctl -b localhost:9092 -g probe tail orders --count 10
//	xstreamctl -c consumer.yaml lag orders audit
//	xstreamctl -b localhost:9092 -g probe topics
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 管理类命令的默认超时时间。
const defaultTimeout = 30 * time.Second

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xstreamctl",
		Usage:   "streamkit 消费者命令行小工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "消费者配置文件路径 (.yaml/.json)",
			},
			&cli.StringSliceFlag{
				Name:    "brokers",
				Aliases: []string{"b"},
				Usage:   "bootstrap 地址，可重复指定",
			},
			&cli.StringFlag{
				Name:    "group",
				Aliases: []string{"g"},
				Usage:   "消费组 ID",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "管理类命令超时时间",
				Value:   defaultTimeout,
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			// ExitCoder 错误（如未知命令）的消息需在此输出，
			// 替代 HandleExitCoder 的默认 os.Exit 行为。
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
		Description: `xstreamctl 是 streamkit 消费者的命令行客户端，用于排查
Kafka 主题与消费组的消费情况。

命令:
  tail <topic>        持续消费主题并打印记录
    --count, -n       打印指定条数后退出 (0 表示不限)
  lag <topic>...      查看消费组在各分区上的滞后量
  topics              列出集群中的全部主题
  offsets <topic>     查看主题各分区的水位区间`,
	}
}

func run() int {
	app := createApp()

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, os.Args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		// CLI 框架产生的参数错误（如未知 flag、未知命令）也返回退出码 2。
		// ExitErrHandler 或 flag 解析器已向 stderr 输出错误详情，此处仅设置退出码。
		var coder cli.ExitCoder
		if errors.As(err, &coder) {
			return 2
		}
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}
