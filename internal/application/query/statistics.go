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
// STATISTICS AGGREGATOR
// Module, user and content-type statistics. All percentages are rounded
// half-up to integers.
// ══════════════════════════════════════════════════════════════════════════════

// catalogFanOut bounds concurrent catalog reads for one request.
const catalogFanOut = 8

// ModuleStatistics aggregates every enrollment of one module.
type ModuleStatistics struct {
	// ModuleID - the module being described.
	ModuleID string `json:"moduleId"`

	// TotalEnrollments counts enrollments in any status.
	TotalEnrollments int `json:"totalEnrollments"`

	// ByStatus always carries all four statuses.
	ByStatus map[string]int `json:"byStatus"`

	// AverageProgress - mean progressPercentage over all enrollments.
	AverageProgress int `json:"averageProgress"`

	// CompletionRate - completed / total × 100.
	CompletionRate int `json:"completionRate"`
}

// OverallStatistics summarises one user's non-dropped enrollments.
type OverallStatistics struct {
	TotalModules                int `json:"totalModules"`
	CompletedModules            int `json:"completedModules"`
	InProgressModules           int `json:"inProgressModules"`
	OverallCompletionPercentage int `json:"overallCompletionPercentage"`
}

// ContentTypeStatistics describes one content type across the user's
// enrolled modules.
type ContentTypeStatistics struct {
	Type           string `json:"type"`
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	InProgress     int    `json:"inProgress"`
	CompletionRate int    `json:"completionRate"`

	// AverageScore is nil when no item of the type carries a score.
	AverageScore *int `json:"averageScore"`
}

// StatisticsAggregator computes statistics from current store state.
type StatisticsAggregator struct {
	deps        Deps
	enrollments enrollment.Repository
	progress    progress.Repository
	catalog     catalog.Reader
}

// NewStatisticsAggregator creates a new StatisticsAggregator.
func NewStatisticsAggregator(
	enrollments enrollment.Repository,
	progressRepo progress.Repository,
	catalogReader catalog.Reader,
	deps Deps,
) *StatisticsAggregator {
	return &StatisticsAggregator{
		deps:        deps.withDefaults(),
		enrollments: enrollments,
		progress:    progressRepo,
		catalog:     catalogReader,
	}
}

// ModuleStats aggregates all enrollments of moduleID.
func (a *StatisticsAggregator) ModuleStats(ctx context.Context, moduleID string) (_ *ModuleStatistics, err error) {
	ctx, span := startSpan(ctx, "StatisticsAggregator.ModuleStats", attribute.String("module.id", moduleID))
	defer func() { endSpan(span, err) }()

	if _, err := load(ctx, a.deps, "GetModule", func(ctx context.Context) (*catalog.Module, error) {
		return a.catalog.GetModule(ctx, moduleID)
	}); err != nil {
		return nil, err
	}
	list, err := load(ctx, a.deps, "ListEnrollmentsByModule", func(ctx context.Context) ([]*enrollment.Enrollment, error) {
		return a.enrollments.ListByModule(ctx, moduleID)
	})
	if err != nil {
		return nil, err
	}

	stats := &ModuleStatistics{
		ModuleID:         moduleID,
		TotalEnrollments: len(list),
		ByStatus:         make(map[string]int, len(enrollment.AllStatuses)),
	}
	for _, st := range enrollment.AllStatuses {
		stats.ByStatus[string(st)] = 0
	}
	sum := 0
	for _, e := range list {
		stats.ByStatus[string(e.Status)]++
		sum += e.ProgressPercentage
	}
	stats.AverageProgress = shared.RoundRatio(sum, len(list))
	stats.CompletionRate = shared.RoundPercent(stats.ByStatus[string(enrollment.StatusCompleted)], len(list))
	return stats, nil
}

// UserOverall summarises the user's enrollments. Dropped enrollments are
// not counted.
func (a *StatisticsAggregator) UserOverall(ctx context.Context, userID string) (*OverallStatistics, error) {
	list, err := a.openAndCompleted(ctx, userID)
	if err != nil {
		return nil, err
	}
	return overallOf(list), nil
}

// ContentTypeStats reports per-type totals over the content reachable
// through the user's non-dropped enrollments. Every type is present.
func (a *StatisticsAggregator) ContentTypeStats(ctx context.Context, userID string) (_ []ContentTypeStatistics, err error) {
	ctx, span := startSpan(ctx, "StatisticsAggregator.ContentTypeStats", attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	list, err := a.openAndCompleted(ctx, userID)
	if err != nil {
		return nil, err
	}
	moduleIDs := distinctModules(list)
	contents, err := a.contentsOf(ctx, moduleIDs)
	if err != nil {
		return nil, err
	}

	var all []catalog.Content
	for _, id := range moduleIDs {
		all = append(all, contents[id]...)
	}
	rows, err := load(ctx, a.deps, "ListProgressByContents", func(ctx context.Context) ([]*progress.ContentProgress, error) {
		return a.progress.ListByUserAndContents(ctx, userID, catalog.IDs(all))
	})
	if err != nil {
		return nil, err
	}
	return contentTypeStatsOf(all, rows), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

func (a *StatisticsAggregator) openAndCompleted(ctx context.Context, userID string) ([]*enrollment.Enrollment, error) {
	return load(ctx, a.deps, "ListEnrollments", func(ctx context.Context) ([]*enrollment.Enrollment, error) {
		return a.enrollments.ListByUser(ctx, userID,
			enrollment.StatusActive, enrollment.StatusPaused, enrollment.StatusCompleted)
	})
}

// contentsOf loads the current content set of each module concurrently.
func (a *StatisticsAggregator) contentsOf(ctx context.Context, moduleIDs []string) (map[string][]catalog.Content, error) {
	results := make([][]catalog.Content, len(moduleIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(catalogFanOut)
	for i, id := range moduleIDs {
		g.Go(func() error {
			contents, err := load(gctx, a.deps, "ListContents", func(ctx context.Context) ([]catalog.Content, error) {
				return a.catalog.ListContents(ctx, id)
			})
			if err != nil {
				return err
			}
			results[i] = contents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]catalog.Content, len(moduleIDs))
	for i, id := range moduleIDs {
		out[id] = results[i]
	}
	return out, nil
}

func overallOf(list []*enrollment.Enrollment) *OverallStatistics {
	stats := &OverallStatistics{TotalModules: len(list)}
	sum := 0
	for _, e := range list {
		switch e.Status {
		case enrollment.StatusCompleted:
			stats.CompletedModules++
		case enrollment.StatusActive, enrollment.StatusPaused:
			stats.InProgressModules++
		}
		sum += e.ProgressPercentage
	}
	stats.OverallCompletionPercentage = shared.RoundRatio(sum, len(list))
	return stats
}

func contentTypeStatsOf(contents []catalog.Content, rows []*progress.ContentProgress) []ContentTypeStatistics {
	byContent := make(map[string]*progress.ContentProgress, len(rows))
	for _, p := range rows {
		byContent[p.ContentID] = p
	}

	type acc struct {
		ContentTypeStatistics
		scoreSum float64
		scored   int
	}
	accs := make(map[catalog.ContentType]*acc, len(catalog.AllContentTypes))
	for _, t := range catalog.AllContentTypes {
		accs[t] = &acc{ContentTypeStatistics: ContentTypeStatistics{Type: string(t)}}
	}

	seen := make(map[string]struct{}, len(contents))
	for _, c := range contents {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		a, ok := accs[c.Type]
		if !ok {
			continue
		}
		a.Total++
		p := byContent[c.ID]
		if p == nil {
			continue
		}
		switch p.Status {
		case progress.StatusCompleted:
			a.Completed++
		case progress.StatusInProgress:
			a.InProgress++
		}
		if score, ok := p.NormalizedScore(); ok {
			a.scoreSum += score
			a.scored++
		}
	}

	out := make([]ContentTypeStatistics, 0, len(catalog.AllContentTypes))
	for _, t := range catalog.AllContentTypes {
		a := accs[t]
		a.CompletionRate = shared.RoundPercent(a.Completed, a.Total)
		if a.scored > 0 {
			avg := shared.RoundHalfUp(a.scoreSum / float64(a.scored))
			a.AverageScore = &avg
		}
		out = append(out, a.ContentTypeStatistics)
	}
	return out
}

func distinctModules(list []*enrollment.Enrollment) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, e := range list {
		if _, ok := seen[e.ModuleID]; ok {
			continue
		}
		seen[e.ModuleID] = struct{}{}
		out = append(out, e.ModuleID)
	}
	return out
}
