package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"offcampus/internal/engine"
	"offcampus/internal/ingest"
	"offcampus/internal/model"
	"offcampus/internal/storage"

	"golang.org/x/sync/errgroup"
)

// Config 用于调度配置。
type Config struct {
	Interval string `yaml:"interval" json:"interval"`
	Timeout  string `yaml:"timeout" json:"timeout"`
}

// Store 抽象存储接口，便于测试替换。
type Store interface {
	UpsertListings(ctx context.Context, listings []model.Listing) (storage.UpsertResult, error)
}

// Fitter 触发拟合工件重建。
type Fitter interface {
	FitPipeline(ctx context.Context) (*engine.Artifacts, error)
}

// Scheduler 负责周期性加载数据集、写入存储并重建拟合工件。
// 重建产物由 Fitter 原子换入，刷新期间查询继续读旧版本。
type Scheduler struct {
	fetcher   ingest.ListingFetcher
	store     Store
	fitter    Fitter
	interval  time.Duration
	timeout   time.Duration
	running   atomic.Bool
	newTicker func(time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewScheduler 创建 Scheduler，解析配置的间隔与超时。
func NewScheduler(f ingest.ListingFetcher, s Store, fit Fitter, cfg Config) *Scheduler {
	interval := 24 * time.Hour
	if cfg.Interval != "" {
		if d, err := time.ParseDuration(cfg.Interval); err == nil && d > 0 {
			interval = d
		}
	}
	timeout := 60 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}

	return &Scheduler{
		fetcher:   f,
		store:     s,
		fitter:    fit,
		interval:  interval,
		timeout:   timeout,
		newTicker: defaultTicker,
	}
}

// Start 启动调度循环，直到上下文取消。
func (s *Scheduler) Start(ctx context.Context) error {
	if s.fetcher == nil || s.store == nil || s.fitter == nil {
		return fmt.Errorf("scheduler missing dependencies")
	}

	g, ctx := errgroup.WithContext(ctx)

	tick := s.newTicker(s.interval)
	ch := tick.C()

	g.Go(func() error {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ch:
				if _, err := s.runOnce(ctx); err != nil {
					return err
				}
			drain:
				for {
					select {
					case <-ch:
						continue
					default:
						break drain
					}
				}
			}
		}
	})

	return g.Wait()
}

// RunOnce 对外暴露单次刷新接口，便于手动触发。
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	return s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) (int, error) {
	if s.running.Swap(true) {
		return 0, nil
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	listings, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch listings: %w", err)
	}

	res, err := s.store.UpsertListings(ctx, listings)
	if err != nil {
		return 0, fmt.Errorf("upsert listings: %w", err)
	}

	if _, err := s.fitter.FitPipeline(ctx); err != nil {
		return res.Created, fmt.Errorf("refit artifacts: %w", err)
	}

	return res.Created, nil
}

func defaultTicker(d time.Duration) ticker {
	t := time.NewTicker(d)
	return tickerWrapper{t}
}

type tickerWrapper struct {
	*time.Ticker
}

func (t tickerWrapper) C() <-chan time.Time { return t.Ticker.C }
func (t tickerWrapper) Stop()               { t.Ticker.Stop() }
