package events

import (
	"bytes"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"offcampus/internal/model"
)

// 事件类型，来自前端埋点。
const (
	ActionViewStart = "APARTMENT_DETAILS_VIEW_START"
	ActionViewEnd   = "APARTMENT_DETAILS_VIEW_END"
	ActionSave      = "SAVE_APARTMENT"
)

// 缺失字段的默认值，与事件生产方的约定保持一致。
const (
	unknownUser     = "unknown"
	unknownProperty = "N/A"
)

var logger = log.New(os.Stdout, "[events] ", log.LstdFlags)

// rawEvent 对应日志中单条 JSON 事件。
type rawEvent struct {
	Type              string `json:"type"`
	UserID            string `json:"userId"`
	ApartmentProperty struct {
		PropertyID string       `json:"propertyId"`
		Details    []string     `json:"details"`
		SquareFeet *looseNumber `json:"squareFeet"`
		Rent       *looseNumber `json:"rent"`
		Rating     *looseNumber `json:"rating"`
	} `json:"apartmentProperty"`
	Metrics struct {
		TotalTime looseNumber `json:"totalTime"`
	} `json:"metrics"`
}

// looseNumber 接受数字或数字字符串，无法解析时取零。
type looseNumber float64

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "" || text == "null" {
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		s = strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "$"), ",", "")
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*n = looseNumber(v)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*n = looseNumber(v)
	}
	return nil
}

func (n *looseNumber) float() *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}

// BuildProfiles 解析拼接的原始事件日志并聚合出每用户画像。
// 日志没有外层数组包装且可能混入截断记录：按字节扫描 JSON 对象边界，
// 无法起始合法对象的字节被跳过，残缺的尾部记录静默丢弃，从不致命。
func BuildProfiles(data []byte) map[string]*model.UserProfile {
	profiles := make(map[string]*model.UserProfile)

	skipped := 0
	pos := 0
	for pos < len(data) {
		var ev rawEvent
		dec := json.NewDecoder(bytes.NewReader(data[pos:]))
		if err := dec.Decode(&ev); err != nil {
			pos++
			skipped++
			continue
		}
		pos += int(dec.InputOffset())
		apply(profiles, ev)
	}
	if skipped > 0 {
		logger.Printf("skipped %d unparseable bytes in event log", skipped)
	}
	return profiles
}

// BuildProfilesReader 是 BuildProfiles 的流式入口。
func BuildProfilesReader(r io.Reader) (map[string]*model.UserProfile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return BuildProfiles(data), nil
}

func apply(profiles map[string]*model.UserProfile, ev rawEvent) {
	// 合法 JSON 但不是埋点事件的对象直接忽略。
	if ev.Type == "" {
		return
	}
	userID := ev.UserID
	if userID == "" {
		userID = unknownUser
	}
	propertyID := ev.ApartmentProperty.PropertyID
	if propertyID == "" {
		propertyID = unknownProperty
	}
	timeSpent := float64(ev.Metrics.TotalTime)

	profile, ok := profiles[userID]
	if !ok {
		profile = model.NewUserProfile(userID)
		profiles[userID] = profile
	}

	profile.PropertyTimeSpent[propertyID] += timeSpent
	profile.ViewedProperties[propertyID] = true
	profile.Interactions = append(profile.Interactions, model.Interaction{
		Action:     ev.Type,
		PropertyID: propertyID,
		Details:    ev.ApartmentProperty.Details,
		SquareFeet: ev.ApartmentProperty.SquareFeet.float(),
		Rent:       ev.ApartmentProperty.Rent.float(),
		Rating:     ev.ApartmentProperty.Rating.float(),
		TimeSpent:  timeSpent,
	})

	if ev.Type == ActionSave {
		profile.SavedProperties[propertyID] = true
	}
}
