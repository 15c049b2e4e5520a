package model

import "time"

// UserPreferences 表示用户的加权打分偏好与硬过滤条件。
// 三个权重控制距离/面积/租金之间的取舍，不强制区间。
type UserPreferences struct {
	UserID      string    `gorm:"primaryKey" json:"user_id"`
	MilesWeight float64   `json:"miles_weight"`
	SqftWeight  float64   `json:"sqft_weight"`
	RentWeight  float64   `json:"rent_weight"`
	Campus      string    `json:"campus"`
	MaxRent     float64   `json:"max_rent"`
	MinSqft     float64   `json:"min_sqft"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultPreferences 返回文档化的默认偏好。
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:      userID,
		MilesWeight: 0.5,
		SqftWeight:  0.5,
		RentWeight:  0.5,
		Campus:      "Texas A&M University",
		MaxRent:     10000,
		MinSqft:     0,
	}
}
