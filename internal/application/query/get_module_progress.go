package query

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/enrollment"
	"github.com/alem-hub/learnhub/internal/domain/progress"
	"github.com/alem-hub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MODULE PROGRESS QUERY
// One user's progress through one module, item by item.
// ══════════════════════════════════════════════════════════════════════════════

// GetModuleProgressQuery contains the parameters of the module progress view.
type GetModuleProgressQuery struct {
	Viewer   Viewer
	UserID   string
	ModuleID string
}

// Validate checks the query.
func (q GetModuleProgressQuery) Validate() error {
	if q.UserID == "" || q.ModuleID == "" {
		return shared.NewValidationError("GetModuleProgress", "userId and moduleId are required")
	}
	return q.Viewer.Authorize("GetModuleProgress", q.UserID)
}

// ModuleProgressStatistics is computed over the module's current content set.
type ModuleProgressStatistics struct {
	TotalContent       int  `json:"totalContent"`
	CompletedContent   int  `json:"completedContent"`
	InProgressContent  int  `json:"inProgressContent"`
	ProgressPercentage int  `json:"progressPercentage"`
	AverageScore       *int `json:"averageScore"`
}

// ModuleProgressResult is the body of GET /progress/module/{userId}/{moduleId}.
type ModuleProgressResult struct {
	Module *ModuleDTO `json:"module"`

	// Enrollment is the most recent enrollment in any status, nil if the
	// user never enrolled.
	Enrollment *EnrollmentDTO `json:"enrollment"`

	Content    []ContentItemDTO         `json:"content"`
	Statistics ModuleProgressStatistics `json:"statistics"`
}

// ProgressQueries builds the per-user progress views.
type ProgressQueries struct {
	deps        Deps
	enrollments enrollment.Repository
	progress    progress.Repository
	catalog     catalog.Reader
	stats       *StatisticsAggregator
}

// NewProgressQueries creates a new ProgressQueries.
func NewProgressQueries(
	enrollments enrollment.Repository,
	progressRepo progress.Repository,
	catalogReader catalog.Reader,
	stats *StatisticsAggregator,
	deps Deps,
) *ProgressQueries {
	return &ProgressQueries{
		deps:        deps.withDefaults(),
		enrollments: enrollments,
		progress:    progressRepo,
		catalog:     catalogReader,
		stats:       stats,
	}
}

// ModuleProgress builds the module progress view.
func (q *ProgressQueries) ModuleProgress(ctx context.Context, query GetModuleProgressQuery) (_ *ModuleProgressResult, err error) {
	ctx, span := startSpan(ctx, "ProgressQueries.ModuleProgress",
		attribute.String("user.id", query.UserID), attribute.String("module.id", query.ModuleID))
	defer func() { endSpan(span, err) }()

	if err := query.Validate(); err != nil {
		return nil, err
	}

	var (
		module   *catalog.Module
		contents []catalog.Content
		latest   *enrollment.Enrollment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		module, err = load(gctx, q.deps, "GetModule", func(ctx context.Context) (*catalog.Module, error) {
			return q.catalog.GetModule(ctx, query.ModuleID)
		})
		return err
	})
	g.Go(func() error {
		var err error
		contents, err = load(gctx, q.deps, "ListContents", func(ctx context.Context) ([]catalog.Content, error) {
			return q.catalog.ListContents(ctx, query.ModuleID)
		})
		return err
	})
	g.Go(func() error {
		e, err := load(gctx, q.deps, "FindLatestEnrollment", func(ctx context.Context) (*enrollment.Enrollment, error) {
			return q.enrollments.FindLatest(ctx, query.UserID, query.ModuleID)
		})
		if shared.IsNotFound(err) {
			return nil
		}
		latest = e
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows, err := load(ctx, q.deps, "ListProgressByContents", func(ctx context.Context) ([]*progress.ContentProgress, error) {
		return q.progress.ListByUserAndContents(ctx, query.UserID, catalog.IDs(contents))
	})
	if err != nil {
		return nil, err
	}

	return &ModuleProgressResult{
		Module:     NewModuleDTO(module),
		Enrollment: NewEnrollmentDTO(latest),
		Content:    contentItems(contents, rows),
		Statistics: moduleProgressStatsOf(contents, rows),
	}, nil
}

func contentItems(contents []catalog.Content, rows []*progress.ContentProgress) []ContentItemDTO {
	byContent := make(map[string]*progress.ContentProgress, len(rows))
	for _, p := range rows {
		byContent[p.ContentID] = p
	}
	out := make([]ContentItemDTO, 0, len(contents))
	for _, c := range contents {
		out = append(out, newContentItemDTO(c, byContent[c.ID]))
	}
	return out
}

func moduleProgressStatsOf(contents []catalog.Content, rows []*progress.ContentProgress) ModuleProgressStatistics {
	stats := ModuleProgressStatistics{TotalContent: len(contents)}
	var (
		scoreSum float64
		scored   int
	)
	for _, p := range rows {
		switch p.Status {
		case progress.StatusCompleted:
			stats.CompletedContent++
		case progress.StatusInProgress:
			stats.InProgressContent++
		}
		if s, ok := p.NormalizedScore(); ok {
			scoreSum += s
			scored++
		}
	}
	stats.ProgressPercentage = shared.RoundPercent(stats.CompletedContent, stats.TotalContent)
	if scored > 0 {
		avg := shared.RoundHalfUp(scoreSum / float64(scored))
		stats.AverageScore = &avg
	}
	return stats
}
