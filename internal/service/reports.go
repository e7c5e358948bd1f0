package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/iago/obra-back/internal/cache"
	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/metrics"
	"github.com/iago/obra-back/internal/report"
	"github.com/iago/obra-back/internal/repository"
)

// ReportQuery narrows a report view. Range is applied before aggregation,
// Query after it.
type ReportQuery struct {
	Range    report.RangeMode
	Query    string
	Sort     report.SortMode
	Page     int
	PageSize int
}

type ReportsConfig struct {
	Cache           cache.Config
	DefaultPageSize int
}

// ReportsService serves the dashboard views. Computed pages are cached per
// query and dropped on any write through Invalidate.
type ReportsService struct {
	store    repository.Store
	now      Clock
	pageSize int

	sites     *cache.ReportCache[report.Page[report.SiteRow]]
	overdue   *cache.ReportCache[report.Page[report.OverdueTask]]
	engineers *cache.ReportCache[report.Page[report.EngineerRow]]
}

func NewReportsService(store repository.Store, config ReportsConfig, clock Clock) *ReportsService {
	if clock == nil {
		clock = SystemClock(nil)
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = report.DefaultPageSize
	}
	return &ReportsService{
		store:     store,
		now:       clock,
		pageSize:  config.DefaultPageSize,
		sites:     cache.NewReportCache[report.Page[report.SiteRow]](config.Cache),
		overdue:   cache.NewReportCache[report.Page[report.OverdueTask]](config.Cache),
		engineers: cache.NewReportCache[report.Page[report.EngineerRow]](config.Cache),
	}
}

func (s *ReportsService) Invalidate() {
	s.sites.Invalidate()
	s.overdue.Invalidate()
	s.engineers.Invalidate()
}

func (s *ReportsService) SiteReport(ctx context.Context, actor domain.Actor, query ReportQuery) (report.Page[report.SiteRow], error) {
	query = s.normalize(query)
	return cachedView(ctx, s, actor, "sites", query, s.sites, func(sites []domain.Site, tasks []domain.Task) report.Page[report.SiteRow] {
		rows := report.SummarizeSites(sites, tasks)
		rows = report.Search(rows, query.Query, report.SiteRowFields)
		return report.Paginate(rows, query.Page, query.PageSize)
	})
}

func (s *ReportsService) OverdueReport(ctx context.Context, actor domain.Actor, query ReportQuery) (report.Page[report.OverdueTask], error) {
	query = s.normalize(query)
	return cachedView(ctx, s, actor, "overdue", query, s.overdue, func(sites []domain.Site, tasks []domain.Task) report.Page[report.OverdueTask] {
		rows := report.RankOverdueTasks(tasks, report.IndexSites(sites))
		rows = report.Search(rows, query.Query, report.OverdueTaskFields)
		return report.Paginate(rows, query.Page, query.PageSize)
	})
}

func (s *ReportsService) EngineerReport(ctx context.Context, actor domain.Actor, query ReportQuery) (report.Page[report.EngineerRow], error) {
	query = s.normalize(query)
	return cachedView(ctx, s, actor, "engineers", query, s.engineers, func(sites []domain.Site, tasks []domain.Task) report.Page[report.EngineerRow] {
		rows := report.SummarizeByEngineer(sites, tasks, query.Sort)
		rows = report.Search(rows, query.Query, report.EngineerRowFields)
		return report.Paginate(rows, query.Page, query.PageSize)
	})
}

func (s *ReportsService) normalize(query ReportQuery) ReportQuery {
	if query.Range == "" {
		query.Range = report.RangeAll
	}
	if query.Sort == "" {
		query.Sort = report.SortMostPending
	}
	if query.PageSize <= 0 {
		query.PageSize = s.pageSize
	}
	return query
}

// cachedView loads the portfolio, applies the range filter and builds the
// view on a cache miss.
func cachedView[T any](
	ctx context.Context,
	s *ReportsService,
	actor domain.Actor,
	view string,
	query ReportQuery,
	store *cache.ReportCache[report.Page[T]],
	build func(sites []domain.Site, tasks []domain.Task) report.Page[T],
) (report.Page[T], error) {
	if !actor.Is(domain.RoleAdmin, domain.RoleAccountant) {
		return report.Page[T]{}, ErrForbidden
	}

	now := s.now()
	// The day is part of the key so relative ranges roll over at midnight.
	key := cache.Key(view, string(query.Range), query.Query, string(query.Sort),
		strconv.Itoa(query.Page), strconv.Itoa(query.PageSize), now.Format("2006-01-02"))
	if page, ok := store.Get(key); ok {
		metrics.RecordReportCache(view, true)
		return page, nil
	}
	metrics.RecordReportCache(view, false)

	generation := store.Generation()
	sites, tasks, err := loadPortfolio(ctx, s.store)
	if err != nil {
		return report.Page[T]{}, err
	}
	page := build(sites, report.FilterByRange(tasks, query.Range, now))
	store.SetIfCurrent(key, page, generation)
	return page, nil
}

func loadPortfolio(ctx context.Context, store repository.Store) ([]domain.Site, []domain.Task, error) {
	sites, err := store.ListSites(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load sites: %w", err)
	}
	tasks, err := store.ListTasks(ctx, domain.TaskFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	return sites, tasks, nil
}
