package business

import (
	"context"
	"time"
)

// EvaluationCache 评估结果缓存接口. Values are opaque encoded results.
type EvaluationCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}
