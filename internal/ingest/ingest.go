package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"

	"offcampus/internal/model"
)

// Config 定义数据集加载配置。URL 优先于本地路径。
type Config struct {
	Path   string `yaml:"path" json:"path"`
	URL    string `yaml:"url" json:"url"`
	Source string `yaml:"source" json:"source"`
}

// ListingFetcher 统一楼盘加载接口。
type ListingFetcher interface {
	Fetch(ctx context.Context) ([]model.Listing, error)
}

// DatasetFetcher 读取公寓抓取数据集的 JSON 导出并转换为类型化楼盘。
// 所有金额/数值字符串在这里解析一次，下游不再做散落的默认值处理。
type DatasetFetcher struct {
	cfg    Config
	client *http.Client
	logger *log.Logger
}

// NewDatasetFetcher 创建 DatasetFetcher。
func NewDatasetFetcher(cfg Config, client *http.Client) *DatasetFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Source == "" {
		cfg.Source = "apartments-dataset"
	}
	return &DatasetFetcher{
		cfg:    cfg,
		client: client,
		logger: log.New(os.Stdout, "[ingest] ", log.LstdFlags),
	}
}

// Fetch 加载并转换整个数据集，单条坏记录跳过并记录日志。
func (f *DatasetFetcher) Fetch(ctx context.Context) ([]model.Listing, error) {
	data, err := f.read(ctx)
	if err != nil {
		return nil, err
	}

	var raws []rawListing
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	listings := make([]model.Listing, 0, len(raws))
	for i, raw := range raws {
		if raw.ID == "" {
			f.logger.Printf("skip record %d: missing id", i)
			continue
		}
		listings = append(listings, f.convert(raw))
	}
	f.logf("loaded %d listings (%d raw records)", len(listings), len(raws))
	return listings, nil
}

func (f *DatasetFetcher) read(ctx context.Context) ([]byte, error) {
	if f.cfg.URL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http get: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}

	data, err := os.ReadFile(f.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}
	return data, nil
}

func (f *DatasetFetcher) convert(raw rawListing) model.Listing {
	l := model.Listing{
		ID:      raw.ID,
		Name:    raw.Name,
		Rating:  raw.Rating,
		City:    raw.Location.City,
		State:   raw.Location.State,
		Address: raw.Location.FullAddress,
		Photos:  datatypes.NewJSONSlice(raw.Photos),
		Source:  f.cfg.Source,
	}
	if raw.Scores != nil {
		l.WalkScore = raw.Scores.WalkScore
	}
	if raw.Coordinates != nil {
		l.Latitude = raw.Coordinates.Latitude
		l.Longitude = raw.Coordinates.Longitude
	}

	for _, fee := range raw.PetFees {
		policy := model.PetPolicy{Title: fee.Title}
		for _, entry := range fee.Fees {
			policy.Fees = append(policy.Fees, model.FeeEntry{Key: entry.Key, Value: entry.Value})
		}
		l.PetFees = append(l.PetFees, policy)
	}

	for _, college := range raw.Colleges {
		l.Colleges = append(l.Colleges, model.CollegeRef{Name: college.Name, Miles: college.Miles})
	}

	for _, rental := range raw.Rentals {
		unit := model.RentalUnit{
			Key:                    rental.Key,
			PropertyID:             raw.ID,
			ModelName:              rental.ModelName,
			Image:                  rental.Image,
			Details:                rental.Details,
			IsNew:                  rental.IsNew,
			HasKnownAvailabilities: rental.HasKnownAvailabilities,
			AvailableDate:          parseDate(rental.AvailableDate),
		}
		unit.Rent, unit.MaxRent = parseAmountRange(rental.Rent)
		unit.SquareFeet, unit.MaxSquareFeet = parseAmountRange(rental.SquareFeet)
		unit.Beds = detailCount(rental.Details, "Beds")
		unit.Baths = detailCount(rental.Details, "Baths")
		l.Rentals = append(l.Rentals, unit)
	}

	return l
}

func (f *DatasetFetcher) logf(format string, args ...any) {
	f.logger.Printf(format, args...)
}

// rawListing 对应数据集导出中的单条楼盘记录，数值多为字符串。
type rawListing struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Rating *float64 `json:"rating"`
	Scores *struct {
		WalkScore *float64 `json:"walkScore"`
	} `json:"scores"`
	Location struct {
		City        string `json:"city"`
		State       string `json:"state"`
		FullAddress string `json:"fullAddress"`
	} `json:"location"`
	Coordinates *struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"coordinates"`
	Photos  []string `json:"photos"`
	PetFees []struct {
		Title string `json:"title"`
		Fees  []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"fees"`
	} `json:"petFees"`
	Colleges []struct {
		Name  string  `json:"name"`
		Miles float64 `json:"miles"`
	} `json:"colleges"`
	Rentals []struct {
		Key                    string   `json:"key"`
		Image                  string   `json:"image"`
		ModelName              string   `json:"modelName"`
		Rent                   string   `json:"rent"`
		SquareFeet             string   `json:"squareFeet"`
		Details                []string `json:"details"`
		IsNew                  bool     `json:"isNew"`
		HasKnownAvailabilities bool     `json:"hasKnownAvailabilities"`
		AvailableDate          string   `json:"availableDate"`
	} `json:"rentals"`
}

// parseAmountRange 解析 "$1,050" 或 "$1,050 - $1,200" 形式的数值字符串，
// 返回下限与上限（单值时上限为 nil）。
func parseAmountRange(raw string) (*float64, *float64) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil, nil
	}

	parts := strings.Split(strings.ReplaceAll(cleaned, "–", "-"), "-")
	lo := parseAmount(parts[0])
	if len(parts) == 1 {
		return lo, nil
	}
	return lo, parseAmount(parts[len(parts)-1])
}

func parseAmount(raw string) *float64 {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSuffix(cleaned, " sq ft")
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// detailCount 从 "1 Beds, 1 Baths" 类标签中提取数量。
func detailCount(details []string, suffix string) *float64 {
	for _, d := range details {
		trimmed := strings.TrimSpace(d)
		if !strings.HasSuffix(trimmed, suffix) {
			continue
		}
		numText := strings.TrimSpace(strings.TrimSuffix(trimmed, suffix))
		if v, err := strconv.ParseFloat(numText, 64); err == nil {
			return &v
		}
	}
	return nil
}

func parseDate(raw string) *time.Time {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return &t
		}
	}
	return nil
}
