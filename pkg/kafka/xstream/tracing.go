package xstream

import (
	"context"

	"go.opentelemetry.io/otel/propagation"

	"github.com/omeyang/streamkit/internal/kafcore"
)

// headerCarrier 让记录头满足 propagation.TextMapCarrier。
// 只读场景：Set 不会回写到记录上。
type headerCarrier []kafcore.Header

func (h headerCarrier) Get(key string) string {
	// 同名头取最后一个，与生产端覆盖写入的习惯一致
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Key == key {
			return string(h[i].Value)
		}
	}
	return ""
}

func (h headerCarrier) Set(string, string) {}

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for _, hdr := range h {
		keys = append(keys, hdr.Key)
	}
	return keys
}

var _ propagation.TextMapCarrier = headerCarrier(nil)

func extractTrace(ctx context.Context, rec kafcore.Record, prop propagation.TextMapPropagator) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(rec.Headers) == 0 || prop == nil {
		return ctx
	}
	return prop.Extract(ctx, headerCarrier(rec.Headers))
}
