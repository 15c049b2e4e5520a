package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"offcampus/internal/model"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 封装 SQLite 数据库访问，负责楼盘、用户偏好、画像与拟合工件的读写。
type Store struct {
	db *gorm.DB
}

// UpsertResult 表示楼盘写入结果。
type UpsertResult struct {
	Created     int
	NewListings []model.Listing
}

// ListingQueryOptions 提供楼盘查询过滤条件。
type ListingQueryOptions struct {
	Limit  int
	Offset int
	City   string
}

// NewStore 创建 Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&model.Listing{}, &model.UserPreferences{}, &model.ProfileRecord{}, &model.Artifact{}); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// UpsertListings 写入楼盘列表，已有主键则更新，返回新增数量与新增记录。
func (s *Store) UpsertListings(ctx context.Context, listings []model.Listing) (UpsertResult, error) {
	res := UpsertResult{}
	if len(listings) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
	}

	var existing []string
	if err := s.db.WithContext(ctx).Model(&model.Listing{}).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
		return res, fmt.Errorf("query existing ids: %w", err)
	}

	existingSet := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		existingSet[id] = struct{}{}
	}

	for i, id := range ids {
		if _, ok := existingSet[id]; !ok {
			res.Created++
			res.NewListings = append(res.NewListings, listings[i])
			existingSet[id] = struct{}{}
		}
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"rating",
			"walk_score",
			"city",
			"state",
			"address",
			"latitude",
			"longitude",
			"photos",
			"pet_fees",
			"colleges",
			"rentals",
			"source",
			"updated_at",
		}),
	}).Create(&listings)
	if tx.Error != nil {
		return res, fmt.Errorf("upsert listings: %w", tx.Error)
	}

	return res, nil
}

// ListListings 返回楼盘列表，按主键升序保证顺序稳定。
func (s *Store) ListListings(ctx context.Context, opts ListingQueryOptions) ([]model.Listing, error) {
	var listings []model.Listing
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	query := s.db.WithContext(ctx).Model(&model.Listing{}).Order("id ASC")
	if opts.City != "" {
		query = query.Where("city = ?", opts.City)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	if err := query.Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// CountListings 返回满足过滤条件的楼盘数量。
func (s *Store) CountListings(ctx context.Context, opts ListingQueryOptions) (int64, error) {
	var total int64
	query := s.db.WithContext(ctx).Model(&model.Listing{})
	if opts.City != "" {
		query = query.Where("city = ?", opts.City)
	}
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return total, nil
}

// GetPreferences 根据用户 ID 获取偏好，不存在时返回 sql.ErrNoRows。
func (s *Store) GetPreferences(ctx context.Context, userID string) (*model.UserPreferences, error) {
	var prefs model.UserPreferences
	if err := s.db.WithContext(ctx).First(&prefs, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return &prefs, nil
}

// SavePreferences 写入或覆盖用户偏好。
func (s *Store) SavePreferences(ctx context.Context, prefs *model.UserPreferences) error {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(prefs)
	if tx.Error != nil {
		return fmt.Errorf("save preferences: %w", tx.Error)
	}
	return nil
}

// SaveProfiles 全量覆盖写入用户画像。
func (s *Store) SaveProfiles(ctx context.Context, profiles map[string]*model.UserProfile) error {
	if len(profiles) == 0 {
		return nil
	}
	records := make([]model.ProfileRecord, 0, len(profiles))
	for userID, profile := range profiles {
		records = append(records, model.ProfileRecord{UserID: userID, Profile: *profile})
	}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&records)
	if tx.Error != nil {
		return fmt.Errorf("save profiles: %w", tx.Error)
	}
	return nil
}

// GetProfile 根据用户 ID 获取画像，不存在时返回 sql.ErrNoRows。
func (s *Store) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var record model.ProfileRecord
	if err := s.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &record.Profile, nil
}

// SaveArtifact 追加写入一份拟合工件并返回生成的版本号。
func (s *Store) SaveArtifact(ctx context.Context, payload []byte) (model.Artifact, error) {
	artifact := model.Artifact{ID: uuid.NewString(), Payload: payload}
	if err := s.db.WithContext(ctx).Create(&artifact).Error; err != nil {
		return model.Artifact{}, fmt.Errorf("save artifact: %w", err)
	}
	return artifact, nil
}

// LatestArtifact 返回最新一份拟合工件，不存在时返回 sql.ErrNoRows。
func (s *Store) LatestArtifact(ctx context.Context) (*model.Artifact, error) {
	var artifact model.Artifact
	if err := s.db.WithContext(ctx).Order("created_at DESC").First(&artifact).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("latest artifact: %w", err)
	}
	return &artifact, nil
}
