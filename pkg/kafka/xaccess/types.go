package xaccess

import "github.com/omeyang/streamkit/internal/kafcore"

// BrokerClient 重导出底层客户端接口，避免调用方直接依赖 internal 包。
type BrokerClient = kafcore.BrokerClient
