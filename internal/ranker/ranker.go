package ranker

import (
	"sort"

	"offcampus/internal/model"
)

// 固定量纲系数：把英里/平方英尺/美元拉到可比较的数量级。
// 距离与租金越大越差（负系数），面积越大越好（正系数）。
const (
	MilesScale = -1000.0
	SqftScale  = 800.0
	RentScale  = -1.0
)

// Page 控制分页，Size <= 0 表示不分页。
type Page struct {
	Size   int
	Offset int
}

// RankedUnit 是加权打分排序的单条结果。
type RankedUnit struct {
	PropertyID  string           `json:"property_id"`
	ListingName string           `json:"listing_name"`
	Campus      string           `json:"campus"`
	Miles       float64          `json:"miles"`
	Unit        model.RentalUnit `json:"unit"`
	Score       float64          `json:"score"`
	IsSaved     bool             `json:"is_saved"`
}

// Score 计算单个户型相对某个校区的加权得分。
func Score(prefs model.UserPreferences, miles, sqft, rent float64) float64 {
	return prefs.MilesWeight*MilesScale*miles +
		prefs.SqftWeight*SqftScale*sqft +
		prefs.RentWeight*RentScale*rent
}

// Rank 对校区匹配且满足硬过滤（rent <= max_rent, sqft >= min_sqft）
// 的户型计算确定性加权得分，按得分降序返回。
// 同一户型因多个校区匹配出现多次时按 key 去重，保留最高得分。
func Rank(listings []model.Listing, prefs model.UserPreferences, saved map[string]bool, page Page) []RankedUnit {
	ranked := make([]RankedUnit, 0)
	bestByKey := make(map[string]int)

	for i := range listings {
		l := &listings[i]
		for _, college := range l.Colleges {
			if college.Name != prefs.Campus {
				continue
			}
			for _, unit := range l.Rentals {
				if unit.Rent == nil || unit.SquareFeet == nil {
					continue
				}
				if *unit.Rent > prefs.MaxRent || *unit.SquareFeet < prefs.MinSqft {
					continue
				}

				entry := RankedUnit{
					PropertyID:  l.ID,
					ListingName: l.Name,
					Campus:      college.Name,
					Miles:       college.Miles,
					Unit:        unit,
					Score:       Score(prefs, college.Miles, *unit.SquareFeet, *unit.Rent),
					IsSaved:     saved[l.ID],
				}

				if prev, ok := bestByKey[unit.Key]; ok {
					if entry.Score > ranked[prev].Score {
						ranked[prev] = entry
					}
					continue
				}
				bestByKey[unit.Key] = len(ranked)
				ranked = append(ranked, entry)
			}
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return paginate(ranked, page)
}

func paginate(ranked []RankedUnit, page Page) []RankedUnit {
	if page.Offset > 0 {
		if page.Offset >= len(ranked) {
			return []RankedUnit{}
		}
		ranked = ranked[page.Offset:]
	}
	if page.Size > 0 && len(ranked) > page.Size {
		ranked = ranked[:page.Size]
	}
	return ranked
}
