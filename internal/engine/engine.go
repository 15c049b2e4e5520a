package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"offcampus/internal/events"
	"offcampus/internal/feature"
	"offcampus/internal/model"
	"offcampus/internal/neighbors"
	"offcampus/internal/pipeline"
	"offcampus/internal/ranker"
	"offcampus/internal/storage"
)

// ErrNotFitted 表示尚无可用的拟合工件。
var ErrNotFitted = errors.New("recommendation artifacts not fitted")

// Store 抽象存储接口，便于测试替换。
type Store interface {
	ListListings(ctx context.Context, opts storage.ListingQueryOptions) ([]model.Listing, error)
	GetPreferences(ctx context.Context, userID string) (*model.UserPreferences, error)
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	SaveProfiles(ctx context.Context, profiles map[string]*model.UserProfile) error
	SaveArtifact(ctx context.Context, payload []byte) (model.Artifact, error)
	LatestArtifact(ctx context.Context) (*model.Artifact, error)
}

// Config 控制推荐引擎行为。
type Config struct {
	Pipeline           pipeline.Config `yaml:"pipeline" json:"pipeline"`
	NeighborCandidates int             `yaml:"neighbor_candidates" json:"neighbor_candidates"`
	MaxResults         int             `yaml:"max_results" json:"max_results"`
	LeafSize           int             `yaml:"leaf_size" json:"leaf_size"`
}

// 显式查询未给出的维度使用固定默认值。
const (
	defaultQueryRent      = 1050.0
	defaultQuerySqft      = 500.0
	defaultQueryWalkScore = 40.0
	defaultQueryRating    = 4.2
	defaultQueryLatitude  = 30.5
	defaultQueryLongitude = -96.3
)

// Artifacts 是一次拟合的全部产物。构建后只读，整体替换，从不原地修改；
// 近邻索引由持久化的矩阵确定性重建，不参与序列化。
type Artifacts struct {
	Version  string           `json:"-"`
	FittedAt time.Time        `json:"fitted_at"`
	Pipeline *pipeline.Fitted `json:"pipeline"`
	Rows     []feature.Row    `json:"rows"`
	Matrix   [][]float64      `json:"matrix"`

	tree *neighbors.Tree
}

// ExplicitQuery 表示用户直接给出的相似查询偏好。
// 指针字段缺省时使用固定默认值；Rent/SquareFeet 同时作为结果上限。
type ExplicitQuery struct {
	Rent       *float64 `json:"rent"`
	SquareFeet *float64 `json:"square_feet"`
	Details    string   `json:"details"`
}

// Recommendation 是相似推荐的单条结果。
type Recommendation struct {
	PropertyID string      `json:"property_id"`
	UnitKey    string      `json:"unit_key"`
	Distance   float64     `json:"distance"`
	Row        feature.Row `json:"row"`
}

// Engine 组合特征抽取、预处理管道与近邻索引，提供请求级操作。
// 拟合状态经 atomic.Pointer 整体换入，查询方只读共享。
type Engine struct {
	store     Store
	cfg       Config
	artifacts atomic.Pointer[Artifacts]
	profiles  atomic.Pointer[map[string]*model.UserProfile]
	logger    *log.Logger
}

// New 创建 Engine 并填充默认配置。
func New(store Store, cfg Config) *Engine {
	if len(cfg.Pipeline.NumericColumns) == 0 && len(cfg.Pipeline.CategoricalColumns) == 0 {
		cfg.Pipeline = pipeline.DefaultConfig()
	}
	if cfg.NeighborCandidates <= 0 {
		cfg.NeighborCandidates = 20
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: log.New(os.Stdout, "[engine] ", log.LstdFlags),
	}
}

// FitPipeline 在当前全量语料上拟合管道、构建索引并持久化工件。
// 新工件先落库再换入，换入前请求继续读旧版本。
func (e *Engine) FitPipeline(ctx context.Context) (*Artifacts, error) {
	listings, err := e.store.ListListings(ctx, storage.ListingQueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}

	rows := feature.Extract(listings)
	fitted, err := pipeline.Fit(rows, e.cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("fit pipeline: %w", err)
	}
	matrix, err := fitted.Transform(rows)
	if err != nil {
		return nil, fmt.Errorf("transform corpus: %w", err)
	}

	arts := &Artifacts{
		FittedAt: time.Now().UTC(),
		Pipeline: fitted,
		Rows:     rows,
		Matrix:   matrix,
		tree:     neighbors.Build(matrix, e.cfg.LeafSize),
	}

	payload, err := json.Marshal(arts)
	if err != nil {
		return nil, fmt.Errorf("marshal artifacts: %w", err)
	}
	record, err := e.store.SaveArtifact(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("persist artifacts: %w", err)
	}
	arts.Version = record.ID

	e.artifacts.Store(arts)
	e.logger.Printf("fitted artifacts version=%s rows=%d dim=%d", arts.Version, len(rows), fitted.Dim())
	return arts, nil
}

// LoadArtifacts 加载最新持久化工件并换入，用于进程启动时热身。
func (e *Engine) LoadArtifacts(ctx context.Context) error {
	record, err := e.store.LatestArtifact(ctx)
	if err != nil {
		return err
	}

	var arts Artifacts
	if err := json.Unmarshal(record.Payload, &arts); err != nil {
		return fmt.Errorf("unmarshal artifacts: %w", err)
	}
	arts.Version = record.ID
	if arts.Pipeline != nil {
		arts.Pipeline.Prepare()
	}
	arts.tree = neighbors.Build(arts.Matrix, e.cfg.LeafSize)

	e.artifacts.Store(&arts)
	e.logger.Printf("loaded artifacts version=%s rows=%d", arts.Version, len(arts.Rows))
	return nil
}

// Artifacts 返回当前换入的拟合工件，可能为 nil。
func (e *Engine) Artifacts() *Artifacts {
	return e.artifacts.Load()
}

// Rank 对指定用户执行加权打分排序。偏好缺失时使用文档化默认值，
// 收藏集合来自用户画像，画像缺失按空集处理。
func (e *Engine) Rank(ctx context.Context, userID string, page ranker.Page) ([]ranker.RankedUnit, error) {
	prefs, err := e.store.GetPreferences(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get preferences: %w", err)
		}
		defaults := model.DefaultPreferences(userID)
		prefs = &defaults
	}

	saved := e.savedSet(ctx, userID)

	listings, err := e.store.ListListings(ctx, storage.ListingQueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return ranker.Rank(listings, *prefs, saved, page), nil
}

// RecommendSimilar 返回与显式偏好最相似的楼盘。
// 命中不足或被上限过滤为空时正常返回空列表。
func (e *Engine) RecommendSimilar(ctx context.Context, query ExplicitQuery) ([]Recommendation, error) {
	arts := e.artifacts.Load()
	if arts == nil || arts.tree == nil {
		return nil, ErrNotFitted
	}

	row := feature.Row{
		Rent:       orDefault(query.Rent, defaultQueryRent),
		SquareFeet: orDefault(query.SquareFeet, defaultQuerySqft),
		WalkScore:  ptr(defaultQueryWalkScore),
		Rating:     ptr(defaultQueryRating),
		Latitude:   ptr(defaultQueryLatitude),
		Longitude:  ptr(defaultQueryLongitude),
		Details:    query.Details,
	}
	vec, err := arts.Pipeline.TransformRow(row)
	if err != nil {
		return nil, fmt.Errorf("transform query: %w", err)
	}

	return e.collect(arts, vec, query.Rent, query.SquareFeet), nil
}

// RecommendForUser 基于行为画像构造查询向量并返回相似楼盘。
// 画像缺失或没有任何可用交互时正常返回空列表。
func (e *Engine) RecommendForUser(ctx context.Context, userID string) ([]Recommendation, error) {
	arts := e.artifacts.Load()
	if arts == nil || arts.tree == nil {
		return nil, ErrNotFitted
	}

	profile := e.profile(ctx, userID)
	if profile == nil || len(profile.PropertyTimeSpent) == 0 {
		return []Recommendation{}, nil
	}

	rowByProperty := make(map[string]feature.Row, len(arts.Rows))
	for _, row := range arts.Rows {
		if _, ok := rowByProperty[row.PropertyID]; !ok {
			rowByProperty[row.PropertyID] = row
		}
	}

	var query []float64
	var totalWeight float64
	for propertyID, timeSpent := range profile.PropertyTimeSpent {
		row, ok := rowByProperty[propertyID]
		if !ok {
			e.logger.Printf("property %s absent from fitted corpus, skipping", propertyID)
			continue
		}
		row.TimeWeight = timeSpent

		vec, err := arts.Pipeline.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("transform interaction row: %w", err)
		}
		weight := timeSpent
		if weight <= 0 {
			weight = 1
		}
		if query == nil {
			query = make([]float64, len(vec))
		}
		for i, v := range vec {
			query[i] += v * weight
		}
		totalWeight += weight
	}
	if query == nil {
		return []Recommendation{}, nil
	}
	for i := range query {
		query[i] /= totalWeight
	}

	return e.collect(arts, query, nil, nil), nil
}

// BuildProfiles 从原始事件日志全量重建用户画像并持久化、换入。
func (e *Engine) BuildProfiles(ctx context.Context, data []byte) (map[string]*model.UserProfile, error) {
	profiles := events.BuildProfiles(data)
	if err := e.store.SaveProfiles(ctx, profiles); err != nil {
		return nil, fmt.Errorf("save profiles: %w", err)
	}
	e.profiles.Store(&profiles)
	return profiles, nil
}

// collect 取回候选近邻，应用租金/面积上限过滤，按楼盘去重并截断。
func (e *Engine) collect(arts *Artifacts, query []float64, maxRent, maxSqft *float64) []Recommendation {
	found := arts.tree.Nearest(query, e.cfg.NeighborCandidates)

	recs := make([]Recommendation, 0, e.cfg.MaxResults)
	seen := make(map[string]struct{})
	for _, n := range found {
		row := arts.Rows[n.Index]
		if maxRent != nil && (row.Rent == nil || *row.Rent > *maxRent) {
			continue
		}
		if maxSqft != nil && (row.SquareFeet == nil || *row.SquareFeet > *maxSqft) {
			continue
		}
		if _, ok := seen[row.PropertyID]; ok {
			continue
		}
		seen[row.PropertyID] = struct{}{}
		recs = append(recs, Recommendation{
			PropertyID: row.PropertyID,
			UnitKey:    row.UnitKey,
			Distance:   n.Distance,
			Row:        row,
		})
		if len(recs) == e.cfg.MaxResults {
			break
		}
	}
	return recs
}

// savedSet 返回用户的收藏楼盘集合，优先取内存画像。
func (e *Engine) savedSet(ctx context.Context, userID string) map[string]bool {
	if profile := e.profile(ctx, userID); profile != nil {
		return profile.SavedProperties
	}
	return map[string]bool{}
}

func (e *Engine) profile(ctx context.Context, userID string) *model.UserProfile {
	if cached := e.profiles.Load(); cached != nil {
		if profile, ok := (*cached)[userID]; ok {
			return profile
		}
	}
	profile, err := e.store.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			e.logger.Printf("get profile %s: %v", userID, err)
		}
		return nil
	}
	return profile
}

func orDefault(v *float64, fallback float64) *float64 {
	if v != nil {
		return v
	}
	return &fallback
}

func ptr(v float64) *float64 {
	p := v
	return &p
}
