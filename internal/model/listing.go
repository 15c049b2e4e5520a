package model

import (
	"time"

	"gorm.io/datatypes"
)

// Listing 表示一个公寓楼盘，ID 为数据集内唯一标识。
// Rating/WalkScore 可能缺失，用指针表达空值；
// 嵌套的 PetFees/Colleges/Rentals 以 JSON 列整体存储。
type Listing struct {
	ID        string                      `gorm:"primaryKey" json:"id"`
	Name      string                      `json:"name"`
	Rating    *float64                    `json:"rating"`
	WalkScore *float64                    `json:"walk_score"`
	City      string                      `json:"city"`
	State     string                      `json:"state"`
	Address   string                      `json:"address"`
	Latitude  *float64                    `json:"latitude"`
	Longitude *float64                    `json:"longitude"`
	Photos    datatypes.JSONSlice[string] `json:"photos"`
	PetFees   []PetPolicy                 `gorm:"serializer:json" json:"pet_fees"`
	Colleges  []CollegeRef                `gorm:"serializer:json" json:"colleges"`
	Rentals   []RentalUnit                `gorm:"serializer:json" json:"rentals"`
	Source    string                      `json:"source"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// RentalUnit 表示楼盘下的一个户型单元，属于唯一的 Listing。
type RentalUnit struct {
	Key                    string     `json:"key"`
	PropertyID             string     `json:"property_id"`
	ModelName              string     `json:"model_name"`
	Image                  string     `json:"image"`
	Beds                   *float64   `json:"beds"`
	Baths                  *float64   `json:"baths"`
	Rent                   *float64   `json:"rent"`
	MaxRent                *float64   `json:"max_rent"`
	SquareFeet             *float64   `json:"square_feet"`
	MaxSquareFeet          *float64   `json:"max_square_feet"`
	Details                []string   `json:"details"`
	IsNew                  bool       `json:"is_new"`
	HasKnownAvailabilities bool       `json:"has_known_availabilities"`
	AvailableDate          *time.Time `json:"available_date"`
}

// PetPolicy 表示某一宠物类型的收费政策，例如 "Dogs Allowed"。
type PetPolicy struct {
	Title string     `json:"title"`
	Fees  []FeeEntry `json:"fees"`
}

// FeeEntry 表示一条键值收费项，例如 key="Monthly pet rent"。
type FeeEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CollegeRef 表示楼盘附近的大学及距离（英里）。
type CollegeRef struct {
	Name  string  `json:"name"`
	Miles float64 `json:"miles"`
}
