package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"offcampus/internal/engine"
	"offcampus/internal/model"
	"offcampus/internal/ranker"
	"offcampus/internal/storage"
)

// ListingStore 抽象楼盘读取接口。
type ListingStore interface {
	ListListings(ctx context.Context, opts storage.ListingQueryOptions) ([]model.Listing, error)
	CountListings(ctx context.Context, opts storage.ListingQueryOptions) (int64, error)
}

// Recommender 抽象推荐引擎接口。
type Recommender interface {
	Rank(ctx context.Context, userID string, page ranker.Page) ([]ranker.RankedUnit, error)
	RecommendSimilar(ctx context.Context, query engine.ExplicitQuery) ([]engine.Recommendation, error)
	RecommendForUser(ctx context.Context, userID string) ([]engine.Recommendation, error)
	BuildProfiles(ctx context.Context, data []byte) (map[string]*model.UserProfile, error)
}

// Scheduler 抽象刷新接口。
type Scheduler interface {
	RunOnce(ctx context.Context) (int, error)
}

// NewHandler 构造 HTTP 多路复用器。
func NewHandler(store ListingStore, rec Recommender, sched Scheduler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/listings", func(w http.ResponseWriter, r *http.Request) {
		limit, page := pagination(r)
		offset := (page - 1) * limit
		opts := storage.ListingQueryOptions{Limit: limit + 1, Offset: offset, City: r.URL.Query().Get("city")}

		listings, err := store.ListListings(r.Context(), opts)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		total, err := store.CountListings(r.Context(), storage.ListingQueryOptions{City: opts.City})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		hasMore := false
		if len(listings) > limit {
			hasMore = true
			listings = listings[:limit]
		}

		w.Header().Set("X-Page", strconv.Itoa(page))
		w.Header().Set("X-Limit", strconv.Itoa(limit))
		w.Header().Set("X-Has-More", strconv.FormatBool(hasMore))
		w.Header().Set("X-Total", strconv.FormatInt(total, 10))
		writeJSON(w, http.StatusOK, listings)
	})

	mux.HandleFunc("/api/recommendations", func(w http.ResponseWriter, r *http.Request) {
		userID := resolveUserID(r)
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user identity"})
			return
		}

		limit, page := pagination(r)
		ranked, err := rec.Rank(r.Context(), userID, ranker.Page{Size: limit, Offset: (page - 1) * limit})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, ranked)
	})

	mux.HandleFunc("/api/similar", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		var recs []engine.Recommendation
		var err error
		if query.Get("mode") == "user" {
			userID := resolveUserID(r)
			if userID == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user identity"})
				return
			}
			recs, err = rec.RecommendForUser(r.Context(), userID)
		} else {
			recs, err = rec.RecommendSimilar(r.Context(), engine.ExplicitQuery{
				Rent:       floatParam(query.Get("rent")),
				SquareFeet: floatParam(query.Get("sqft")),
				Details:    query.Get("details"),
			})
		}
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, engine.ErrNotFitted) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, recs)
	})

	mux.HandleFunc("/api/profiles", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
			return
		}
		profiles, err := rec.BuildProfiles(r.Context(), data)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"users": len(profiles)})
	})

	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		created, err := sched.RunOnce(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"created": created})
	})

	return mux
}

func pagination(r *http.Request) (limit, page int) {
	limit = 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			if v > 100 {
				v = 100
			}
			limit = v
		}
	}
	page = 1
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	return limit, page
}

func floatParam(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
