package model

import (
	"time"

	"gorm.io/datatypes"
)

// Artifact 表示一次拟合产出的序列化工件（统计量、词表、特征矩阵）。
// 只追加不修改，加载端总是取最新版本。
type Artifact struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// ProfileRecord 持久化单个用户画像，整体覆盖写入。
type ProfileRecord struct {
	UserID    string      `gorm:"primaryKey" json:"user_id"`
	Profile   UserProfile `gorm:"serializer:json" json:"profile"`
	UpdatedAt time.Time   `json:"updated_at"`
}
