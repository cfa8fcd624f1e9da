package entity

// Re-export common types from the common package.

import (
	"interior/internal/entity/common"
)

type JSONMap = common.JSONMap
type Meta = common.Meta
type BaseParams = common.BaseParams
