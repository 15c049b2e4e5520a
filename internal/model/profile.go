package model

// UserProfile 表示从事件流聚合出的用户行为画像。
// 每次全量重建，不做增量更新。
type UserProfile struct {
	UserID            string             `json:"user_id"`
	PropertyTimeSpent map[string]float64 `json:"property_time_spent"`
	ViewedProperties  map[string]bool    `json:"viewed_properties"`
	SavedProperties   map[string]bool    `json:"saved_properties"`
	Interactions      []Interaction      `json:"interactions"`
}

// Interaction 记录单次事件的快照字段。
type Interaction struct {
	Action     string   `json:"action"`
	PropertyID string   `json:"property_id"`
	Details    []string `json:"details"`
	SquareFeet *float64 `json:"square_feet"`
	Rent       *float64 `json:"rent"`
	Rating     *float64 `json:"rating"`
	TimeSpent  float64  `json:"time_spent"`
}

// NewUserProfile 创建空画像。
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:            userID,
		PropertyTimeSpent: make(map[string]float64),
		ViewedProperties:  make(map[string]bool),
		SavedProperties:   make(map[string]bool),
	}
}

// Saved 判断画像中是否收藏了指定楼盘。
func (p *UserProfile) Saved(propertyID string) bool {
	if p == nil {
		return false
	}
	return p.SavedProperties[propertyID]
}
