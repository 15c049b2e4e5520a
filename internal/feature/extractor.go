package feature

import (
	"strconv"
	"strings"

	"offcampus/internal/model"
)

// 特征列名，管道按名称选择列。
const (
	ColRent       = "rent"
	ColSquareFeet = "squareFeet"
	ColWalkScore  = "walkScore"
	ColRating     = "rating"
	ColLatitude   = "latitude"
	ColLongitude  = "longitude"
	ColDetails    = "details"
	ColCity       = "city"
	ColState      = "state"
)

// NumericColumns 是特征行可用的全部数值列。
var NumericColumns = []string{ColRent, ColSquareFeet, ColWalkScore, ColRating, ColLatitude, ColLongitude}

// CategoricalColumns 是特征行可用的全部类别列。
var CategoricalColumns = []string{ColDetails, ColCity, ColState}

// 宠物费用条目的固定键名，来自数据集的 petFees 结构。
const (
	FeeKeyMonthlyPetRent = "Monthly pet rent"
	FeeKeyOneTime        = "One time Fee"
)

// Row 表示一个户型单元展平后的特征行。
// 数值字段用指针表达缺失；Details 为逗号拼接后的标量。
// TimeWeight 仅在行为画像查询时填充，拟合列之外的字段会被管道忽略。
type Row struct {
	PropertyID string
	UnitKey    string
	Rent       *float64
	SquareFeet *float64
	WalkScore  *float64
	Rating     *float64
	Latitude   *float64
	Longitude  *float64
	Details    string
	City       string
	State      string
	TimeWeight float64
}

// Numeric 按列名取数值，未知列与缺失值都返回 nil。
func (r Row) Numeric(col string) *float64 {
	switch col {
	case ColRent:
		return r.Rent
	case ColSquareFeet:
		return r.SquareFeet
	case ColWalkScore:
		return r.WalkScore
	case ColRating:
		return r.Rating
	case ColLatitude:
		return r.Latitude
	case ColLongitude:
		return r.Longitude
	}
	return nil
}

// Categorical 按列名取类别值，空串视作缺失。
func (r Row) Categorical(col string) string {
	switch col {
	case ColDetails:
		return r.Details
	case ColCity:
		return r.City
	case ColState:
		return r.State
	}
	return ""
}

// Extract 将楼盘集合展平为每户型一行的特征表。
func Extract(listings []model.Listing) []Row {
	rows := make([]Row, 0)
	for i := range listings {
		l := &listings[i]
		for _, unit := range l.Rentals {
			rows = append(rows, rowFor(unit, l))
		}
	}
	return rows
}

// ExtractUnits 处理已脱离父楼盘的户型记录：
// propertyId 无法在本批楼盘中解析的户型被静默丢弃。
func ExtractUnits(units []model.RentalUnit, listings []model.Listing) []Row {
	byID := make(map[string]*model.Listing, len(listings))
	for i := range listings {
		byID[listings[i].ID] = &listings[i]
	}

	rows := make([]Row, 0, len(units))
	for _, unit := range units {
		parent, ok := byID[unit.PropertyID]
		if !ok {
			continue
		}
		rows = append(rows, rowFor(unit, parent))
	}
	return rows
}

func rowFor(unit model.RentalUnit, l *model.Listing) Row {
	return Row{
		PropertyID: l.ID,
		UnitKey:    unit.Key,
		Rent:       unit.Rent,
		SquareFeet: unit.SquareFeet,
		WalkScore:  l.WalkScore,
		Rating:     l.Rating,
		Latitude:   l.Latitude,
		Longitude:  l.Longitude,
		Details:    strings.Join(unit.Details, ", "),
		City:       l.City,
		State:      l.State,
	}
}

// MonthlyPetFee 返回指定宠物类型的每月费用，缺失返回 nil。
func MonthlyPetFee(l model.Listing, petType string) *float64 {
	return petFee(l, petType, FeeKeyMonthlyPetRent)
}

// OneTimePetFee 返回指定宠物类型的一次性费用，缺失返回 nil。
func OneTimePetFee(l model.Listing, petType string) *float64 {
	return petFee(l, petType, FeeKeyOneTime)
}

func petFee(l model.Listing, petType, feeKey string) *float64 {
	for _, policy := range l.PetFees {
		if policy.Title != petType {
			continue
		}
		for _, fee := range policy.Fees {
			if fee.Key == feeKey {
				if v, ok := feeAmount(fee.Value); ok {
					return &v
				}
				return nil
			}
		}
	}
	return nil
}

// feeAmount 解析 "$25" / "25.00" 形式的金额字符串。
func feeAmount(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
