package xstream

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 配置格式。
type Format string

// 支持的配置格式。
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Settings 是消费者的不可变配置。构造后只读。
type Settings struct {
	// BootstrapServers 是 broker 地址列表。必填。
	BootstrapServers []string `koanf:"bootstrap_servers"`

	// GroupID 是消费组 ID。必填。
	GroupID string `koanf:"group_id"`

	// ClientID 是客户端标识，默认自动生成。
	ClientID string `koanf:"client_id"`

	// AutoOffsetReset 指定无已提交偏移量时的起读策略，默认 earliest。
	AutoOffsetReset string `koanf:"auto_offset_reset"`

	// PollTimeout 是单次轮询的阻塞上限，默认 100ms。
	PollTimeout time.Duration `koanf:"poll_timeout"`

	// MaxPollRecords 是单轮迭代最多拉取的记录数，默认 500。
	MaxPollRecords int `koanf:"max_poll_records"`

	// PartitionBuffer 是每个分区通道缓冲的记录块数，默认 32。
	PartitionBuffer int `koanf:"partition_buffer"`

	// PrefetchDepth 是分区流预取缓冲的记录条数，默认 64。
	PrefetchDepth int `koanf:"prefetch_depth"`

	// CommitRetries 是可重试类提交失败的自动重试预算，默认 3。
	CommitRetries int `koanf:"commit_retries"`

	// CloseTimeout 是关闭底层客户端的等待上限，默认 10s。
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// Properties 透传给底层客户端的额外驱动配置。
	// 与偏移量管理冲突的键（enable.auto.commit 等）会被强制覆盖。
	Properties map[string]string `koanf:"properties"`
}

// DefaultSettings 返回带默认值的配置。ClientID 每次调用都会重新生成。
func DefaultSettings() Settings {
	return Settings{
		ClientID:        "streamkit-" + uuid.NewString(),
		AutoOffsetReset: "earliest",
		PollTimeout:     100 * time.Millisecond,
		MaxPollRecords:  500,
		PartitionBuffer: 32,
		PrefetchDepth:   64,
		CommitRetries:   3,
		CloseTimeout:    10 * time.Second,
	}
}

// LoadSettings 从文件加载配置，按扩展名检测格式（.yaml/.yml/.json）。
// 文件中省略的字段保留默认值。
func LoadSettings(path string) (Settings, error) {
	format, err := detectFormat(path)
	if err != nil {
		return Settings{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrSettingsLoad, err)
	}
	return LoadSettingsBytes(data, format)
}

// LoadSettingsBytes 从字节数据加载配置，需显式指定格式。
// 适用于 K8s ConfigMap 等非文件来源。
func LoadSettingsBytes(data []byte, format Format) (Settings, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Settings{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	// 分隔符避开 "."：Properties 中的驱动配置键本身带点
	// （如 session.timeout.ms），不能被展开成嵌套路径。
	k := koanf.New("::")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Settings{}, fmt.Errorf("%w: %w", ErrSettingsLoad, err)
		}
	}

	s := DefaultSettings()
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrSettingsLoad, err)
	}
	return s, nil
}

// Validate 校验配置完整性。
func (s Settings) Validate() error {
	if len(s.BootstrapServers) == 0 {
		return ErrMissingBrokers
	}
	if s.GroupID == "" {
		return ErrMissingGroupID
	}
	return nil
}

// configMap 构建底层客户端配置。
// 偏移量的提交完全由运行循环掌控，enable.auto.commit 强制关闭，
// Properties 中的同名键不生效。
func (s Settings) configMap() *kafka.ConfigMap {
	cfg := kafka.ConfigMap{}
	for key, value := range s.Properties {
		cfg[key] = value
	}

	cfg["bootstrap.servers"] = strings.Join(s.BootstrapServers, ",")
	cfg["group.id"] = s.GroupID
	cfg["client.id"] = s.ClientID
	cfg["auto.offset.reset"] = s.AutoOffsetReset
	cfg["enable.auto.commit"] = false
	cfg["enable.auto.offset.store"] = false
	return &cfg
}

func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
