package processing

import (
	"context"

	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// DrawValidator 开奖记录验证器接口
type DrawValidator interface {
	// Validate 验证记录
	Validate(ctx context.Context, record *models.DrawRecord) error

	// GetName 获取验证器名称
	GetName() string
}

// DrawLookup resolves stored neighbours of a round.
type DrawLookup interface {
	Get(ctx context.Context, round int) (models.DrawRecord, bool, error)
}
