package query

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET OVERVIEW QUERY
// Everything a dashboard needs about one user in a single read.
// ══════════════════════════════════════════════════════════════════════════════

// GetOverviewQuery contains the parameters of the overview.
type GetOverviewQuery struct {
	Viewer Viewer
	UserID string
}

// Validate checks the query.
func (q GetOverviewQuery) Validate() error {
	if q.UserID == "" {
		return shared.NewValidationError("GetOverview", "userId is required")
	}
	return q.Viewer.Authorize("GetOverview", q.UserID)
}

// ModuleProgressSummary is one row of the overview module list.
type ModuleProgressSummary struct {
	ModuleID    string         `json:"moduleId"`
	ModuleTitle string         `json:"moduleTitle"`
	Enrollment  *EnrollmentDTO `json:"enrollment"`
}

// OverviewResult is the body of GET /progress/overview/{userId}.
type OverviewResult struct {
	OverallStats   OverallStatistics       `json:"overallStats"`
	ModuleProgress []ModuleProgressSummary `json:"moduleProgress"`
	ContentStats   []ContentTypeStatistics `json:"contentStats"`
}

// Overview builds the overview. Dropped enrollments are left out.
func (q *ProgressQueries) Overview(ctx context.Context, query GetOverviewQuery) (_ *OverviewResult, err error) {
	ctx, span := startSpan(ctx, "ProgressQueries.Overview", attribute.String("user.id", query.UserID))
	defer func() { endSpan(span, err) }()

	if err := query.Validate(); err != nil {
		return nil, err
	}

	list, err := q.stats.openAndCompleted(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	var (
		titles       map[string]string
		contentStats []ContentTypeStatistics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		titles, err = q.moduleTitles(gctx, distinctModules(list))
		return err
	})
	g.Go(func() error {
		var err error
		contentStats, err = q.stats.ContentTypeStats(gctx, query.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	modules := make([]ModuleProgressSummary, 0, len(list))
	for _, e := range list {
		modules = append(modules, ModuleProgressSummary{
			ModuleID:    e.ModuleID,
			ModuleTitle: titles[e.ModuleID],
			Enrollment:  NewEnrollmentDTO(e),
		})
	}

	return &OverviewResult{
		OverallStats:   *overallOf(list),
		ModuleProgress: modules,
		ContentStats:   contentStats,
	}, nil
}

// moduleTitles resolves module titles concurrently. A module removed from
// the catalog keeps an empty title instead of failing the overview.
func (q *ProgressQueries) moduleTitles(ctx context.Context, moduleIDs []string) (map[string]string, error) {
	titles := make([]string, len(moduleIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(catalogFanOut)
	for i, id := range moduleIDs {
		g.Go(func() error {
			m, err := load(gctx, q.deps, "GetModule", func(ctx context.Context) (*catalog.Module, error) {
				return q.catalog.GetModule(ctx, id)
			})
			if shared.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			titles[i] = m.Title
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(moduleIDs))
	for i, id := range moduleIDs {
		out[id] = titles[i]
	}
	return out, nil
}
