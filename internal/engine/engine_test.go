package engine

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"offcampus/internal/model"
	"offcampus/internal/ranker"
	"offcampus/internal/storage"
)

func f64(v float64) *float64 { return &v }

const campus = "Texas A&M University"

func testListings() []model.Listing {
	mk := func(id string, miles, rent, sqft float64, details ...string) model.Listing {
		return model.Listing{
			ID:        id,
			City:      "College Station",
			State:     "TX",
			WalkScore: f64(40),
			Rating:    f64(4.2),
			Latitude:  f64(30.6),
			Longitude: f64(-96.3),
			Colleges:  []model.CollegeRef{{Name: campus, Miles: miles}},
			Rentals: []model.RentalUnit{
				{Key: id + "-u1", PropertyID: id, Rent: f64(rent), SquareFeet: f64(sqft), Details: details},
			},
		}
	}
	return []model.Listing{
		mk("p1", 1.0, 900, 600, "1 Beds", "1 Baths"),
		mk("p2", 0.5, 1100, 700, "2 Beds", "2 Baths"),
		mk("p3", 2.0, 1400, 900, "3 Beds", "2 Baths"),
		mk("p4", 0.2, 800, 450, "1 Beds", "1 Baths"),
	}
}

type stubStore struct {
	listings  []model.Listing
	prefs     map[string]*model.UserPreferences
	profiles  map[string]*model.UserProfile
	artifacts []model.Artifact

	savedProfiles map[string]*model.UserProfile
}

func newStubStore(listings []model.Listing) *stubStore {
	return &stubStore{
		listings: listings,
		prefs:    map[string]*model.UserPreferences{},
		profiles: map[string]*model.UserProfile{},
	}
}

func (s *stubStore) ListListings(ctx context.Context, opts storage.ListingQueryOptions) ([]model.Listing, error) {
	return s.listings, nil
}

func (s *stubStore) GetPreferences(ctx context.Context, userID string) (*model.UserPreferences, error) {
	if p, ok := s.prefs[userID]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubStore) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubStore) SaveProfiles(ctx context.Context, profiles map[string]*model.UserProfile) error {
	s.savedProfiles = profiles
	return nil
}

func (s *stubStore) SaveArtifact(ctx context.Context, payload []byte) (model.Artifact, error) {
	artifact := model.Artifact{ID: "artifact-v1", Payload: payload}
	s.artifacts = append(s.artifacts, artifact)
	return artifact, nil
}

func (s *stubStore) LatestArtifact(ctx context.Context) (*model.Artifact, error) {
	if len(s.artifacts) == 0 {
		return nil, sql.ErrNoRows
	}
	return &s.artifacts[len(s.artifacts)-1], nil
}

func TestFitPipelinePersistsAndSwaps(t *testing.T) {
	t.Parallel()

	store := newStubStore(testListings())
	eng := New(store, Config{})

	arts, err := eng.FitPipeline(context.Background())
	if err != nil {
		t.Fatalf("FitPipeline error: %v", err)
	}
	if arts.Version != "artifact-v1" {
		t.Fatalf("expected persisted version, got %q", arts.Version)
	}
	if len(arts.Rows) != 4 || len(arts.Matrix) != 4 {
		t.Fatalf("expected 4 fitted rows, got %d/%d", len(arts.Rows), len(arts.Matrix))
	}
	if eng.Artifacts() != arts {
		t.Fatalf("expected artifacts swapped in")
	}
	if len(store.artifacts) != 1 {
		t.Fatalf("expected one persisted artifact, got %d", len(store.artifacts))
	}
}

func TestRecommendSimilarNotFitted(t *testing.T) {
	t.Parallel()

	eng := New(newStubStore(nil), Config{})
	if _, err := eng.RecommendSimilar(context.Background(), ExplicitQuery{}); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
}

func TestRecommendSimilarCapAndFilter(t *testing.T) {
	t.Parallel()

	store := newStubStore(testListings())
	eng := New(store, Config{MaxResults: 2})
	if _, err := eng.FitPipeline(context.Background()); err != nil {
		t.Fatalf("FitPipeline error: %v", err)
	}

	recs, err := eng.RecommendSimilar(context.Background(), ExplicitQuery{Rent: f64(1000), SquareFeet: f64(650)})
	if err != nil {
		t.Fatalf("RecommendSimilar error: %v", err)
	}
	if len(recs) > 2 {
		t.Fatalf("expected at most 2 results, got %d", len(recs))
	}
	seen := map[string]bool{}
	for i, rec := range recs {
		if *rec.Row.Rent > 1000 {
			t.Fatalf("rent ceiling violated by %s", rec.PropertyID)
		}
		if *rec.Row.SquareFeet > 650 {
			t.Fatalf("sqft ceiling violated by %s", rec.PropertyID)
		}
		if seen[rec.PropertyID] {
			t.Fatalf("duplicate property %s", rec.PropertyID)
		}
		seen[rec.PropertyID] = true
		if i > 0 && recs[i].Distance < recs[i-1].Distance {
			t.Fatalf("results not in distance order")
		}
	}
}

func TestRecommendSimilarEmptyResultIsNotError(t *testing.T) {
	t.Parallel()

	store := newStubStore(testListings())
	eng := New(store, Config{})
	if _, err := eng.FitPipeline(context.Background()); err != nil {
		t.Fatalf("FitPipeline error: %v", err)
	}

	// 上限低于语料中的任何租金，应返回空列表而非错误。
	recs, err := eng.RecommendSimilar(context.Background(), ExplicitQuery{Rent: f64(100)})
	if err != nil {
		t.Fatalf("RecommendSimilar error: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected empty result, got %+v", recs)
	}
}

func TestLoadArtifactsRoundtrip(t *testing.T) {
	t.Parallel()

	store := newStubStore(testListings())
	first := New(store, Config{})
	arts, err := first.FitPipeline(context.Background())
	if err != nil {
		t.Fatalf("FitPipeline error: %v", err)
	}

	second := New(store, Config{})
	if err := second.LoadArtifacts(context.Background()); err != nil {
		t.Fatalf("LoadArtifacts error: %v", err)
	}
	reloaded := second.Artifacts()
	if reloaded == nil {
		t.Fatalf("expected artifacts loaded")
	}
	if len(reloaded.Matrix) != len(arts.Matrix) {
		t.Fatalf("matrix size mismatch: %d vs %d", len(reloaded.Matrix), len(arts.Matrix))
	}
	for i := range arts.Matrix {
		for j := range arts.Matrix[i] {
			if arts.Matrix[i][j] != reloaded.Matrix[i][j] {
				t.Fatalf("matrix mismatch at %d/%d", i, j)
			}
		}
	}

	// 重新加载的管道必须把同一行映射到同一向量。
	probe := arts.Rows[0]
	a, err := arts.Pipeline.TransformRow(probe)
	if err != nil {
		t.Fatalf("TransformRow error: %v", err)
	}
	b, err := reloaded.Pipeline.TransformRow(probe)
	if err != nil {
		t.Fatalf("TransformRow error: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("reloaded pipeline diverged at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRecommendForUser(t *testing.T) {
	t.Parallel()

	store := newStubStore(testListings())
	store.profiles["user-1"] = &model.UserProfile{
		UserID: "user-1",
		PropertyTimeSpent: map[string]float64{
			"p1":    60,
			"ghost": 10, // 不在语料中，应被跳过
		},
		ViewedProperties: map[string]bool{"p1": true, "ghost": true},
		SavedProperties:  map[string]bool{},
	}

	eng := New(store, Config{})
	if _, err := eng.FitPipeline(context.Background()); err != nil {
		t.Fatalf("FitPipeline error: %v", err)
	}

	recs, err := eng.RecommendForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("RecommendForUser error: %v", err)
	}
	if len(recs) == 0 {
		t.Fatalf("expected recommendations for interacting user")
	}
	if len(recs) > 5 {
		t.Fatalf("expected default cap 5, got %d", len(recs))
	}
}

func TestRecommendForUserWithoutProfile(t *testing.T) {
	t.Parallel()

	store := newStubStore(testListings())
	eng := New(store, Config{})
	if _, err := eng.FitPipeline(context.Background()); err != nil {
		t.Fatalf("FitPipeline error: %v", err)
	}

	recs, err := eng.RecommendForUser(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("RecommendForUser error: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected empty result for unknown user, got %+v", recs)
	}
}

func TestRankUsesDefaultsAndSavedSet(t *testing.T) {
	t.Parallel()

	store := newStubStore(testListings())
	store.profiles["user-1"] = &model.UserProfile{
		UserID:            "user-1",
		PropertyTimeSpent: map[string]float64{},
		ViewedProperties:  map[string]bool{},
		SavedProperties:   map[string]bool{"p2": true},
	}

	eng := New(store, Config{})
	ranked, err := eng.Rank(context.Background(), "user-1", ranker.Page{})
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if len(ranked) != 4 {
		t.Fatalf("expected all units under default max_rent, got %d", len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Fatalf("rank not sorted descending")
		}
	}
	foundSaved := false
	for _, entry := range ranked {
		if entry.PropertyID == "p2" && entry.IsSaved {
			foundSaved = true
		}
	}
	if !foundSaved {
		t.Fatalf("expected p2 flagged as saved")
	}
}

func TestBuildProfilesPersistsAndCaches(t *testing.T) {
	t.Parallel()

	store := newStubStore(testListings())
	eng := New(store, Config{})

	log := `{"type":"SAVE_APARTMENT","userId":"user-9","apartmentProperty":{"propertyId":"p1"},"metrics":{"totalTime":9}}`
	profiles, err := eng.BuildProfiles(context.Background(), []byte(log))
	if err != nil {
		t.Fatalf("BuildProfiles error: %v", err)
	}
	if store.savedProfiles == nil {
		t.Fatalf("expected profiles persisted")
	}
	if !profiles["user-9"].SavedProperties["p1"] {
		t.Fatalf("expected save recorded, got %+v", profiles["user-9"])
	}

	// 构建后的画像应直接服务 Rank 的收藏判定，无需读库。
	ranked, err := eng.Rank(context.Background(), "user-9", ranker.Page{})
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	for _, entry := range ranked {
		if entry.PropertyID == "p1" && !entry.IsSaved {
			t.Fatalf("expected cached profile to mark p1 saved")
		}
	}
}
