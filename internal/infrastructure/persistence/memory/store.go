// Package memory is a process-local store with the same conditional-update
// semantics as the Postgres implementation. It backs tests and single-node
// development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/enrollment"
	"github.com/alem-hub/learnhub/internal/domain/progress"
	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/internal/domain/streak"
)

// FaultFunc may return an error to fail the named operation before it runs.
type FaultFunc func(op string) error

// Store holds every table behind a single lock.
type Store struct {
	mu sync.RWMutex

	modules     map[string]*catalog.Module
	contents    map[string]*catalog.Content
	enrollments map[string]*enrollment.Enrollment
	progress    map[progressKey]*progress.ContentProgress
	streaks     map[string]*streak.Streak

	fault FaultFunc
	now   func() time.Time
}

type progressKey struct {
	userID    string
	contentID string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		modules:     make(map[string]*catalog.Module),
		contents:    make(map[string]*catalog.Content),
		enrollments: make(map[string]*enrollment.Enrollment),
		progress:    make(map[progressKey]*progress.ContentProgress),
		streaks:     make(map[string]*streak.Streak),
		now:         time.Now,
	}
}

// SetFault installs a fault injector; nil removes it.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	s.fault = fn
	s.mu.Unlock()
}

// Ping implements the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.check(ctx, "Ping")
}

// Catalog returns the catalog reader/writer view.
func (s *Store) Catalog() *CatalogRepo { return &CatalogRepo{s: s} }

// Enrollments returns the enrollment repository view.
func (s *Store) Enrollments() *EnrollmentRepo { return &EnrollmentRepo{s: s} }

// Progress returns the content progress repository view.
func (s *Store) Progress() *ProgressRepo { return &ProgressRepo{s: s} }

// Streaks returns the streak repository view.
func (s *Store) Streaks() *StreakRepo { return &StreakRepo{s: s} }

func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	fault := s.fault
	s.mu.RUnlock()
	if fault != nil {
		return fault(op)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepo implements catalog.Reader and catalog.Writer.
type CatalogRepo struct{ s *Store }

var (
	_ catalog.Reader = (*CatalogRepo)(nil)
	_ catalog.Writer = (*CatalogRepo)(nil)
)

func (r *CatalogRepo) GetModule(ctx context.Context, moduleID string) (*catalog.Module, error) {
	if err := r.s.check(ctx, "GetModule"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.modules[moduleID]
	if !ok {
		return nil, shared.ErrModuleNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *CatalogRepo) GetContent(ctx context.Context, contentID string) (*catalog.Content, error) {
	if err := r.s.check(ctx, "GetContent"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.contents[contentID]
	if !ok {
		return nil, shared.ErrContentNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CatalogRepo) ListContents(ctx context.Context, moduleID string) ([]catalog.Content, error) {
	if err := r.s.check(ctx, "ListContents"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]catalog.Content, 0)
	for _, c := range r.s.contents {
		if c.ModuleID == moduleID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *CatalogRepo) SaveModule(ctx context.Context, m *catalog.Module) error {
	if err := r.s.check(ctx, "SaveModule"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *m
	r.s.modules[m.ID] = &cp
	return nil
}

// SaveContent upserts a content item. Moving it to another module is allowed;
// the old module simply no longer counts it.
func (r *CatalogRepo) SaveContent(ctx context.Context, c *catalog.Content) error {
	if err := r.s.check(ctx, "SaveContent"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.modules[c.ModuleID]; !ok {
		return shared.ErrModuleNotFound
	}
	cp := *c
	r.s.contents[c.ID] = &cp
	return nil
}

// DeleteContent removes a content item from the catalog.
func (r *CatalogRepo) DeleteContent(ctx context.Context, contentID string) error {
	if err := r.s.check(ctx, "DeleteContent"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.contents, contentID)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepo implements enrollment.Repository.
type EnrollmentRepo struct{ s *Store }

var _ enrollment.Repository = (*EnrollmentRepo)(nil)

func (r *EnrollmentRepo) Create(ctx context.Context, e *enrollment.Enrollment) error {
	if err := r.s.check(ctx, "CreateEnrollment"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.enrollments[e.ID]; ok {
		return shared.ErrVersionConflict.WithOp("CreateEnrollment")
	}
	if e.Status.IsOpen() {
		for _, other := range r.s.enrollments {
			if other.UserID == e.UserID && other.ModuleID == e.ModuleID && other.Status.IsOpen() {
				return shared.ErrAlreadyEnrolled
			}
		}
	}

	e.Version = 1
	e.UpdatedAt = r.s.now()
	r.s.enrollments[e.ID] = e.Clone()
	return nil
}

func (r *EnrollmentRepo) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	if err := r.s.check(ctx, "GetEnrollment"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return e.Clone(), nil
}

func (r *EnrollmentRepo) FindOpen(ctx context.Context, userID, moduleID string) (*enrollment.Enrollment, error) {
	if err := r.s.check(ctx, "FindOpenEnrollment"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.enrollments {
		if e.UserID == userID && e.ModuleID == moduleID && e.Status.IsOpen() {
			return e.Clone(), nil
		}
	}
	return nil, shared.ErrEnrollmentNotFound
}

func (r *EnrollmentRepo) FindLatest(ctx context.Context, userID, moduleID string) (*enrollment.Enrollment, error) {
	if err := r.s.check(ctx, "FindLatestEnrollment"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *enrollment.Enrollment
	for _, e := range r.s.enrollments {
		if e.UserID != userID || e.ModuleID != moduleID {
			continue
		}
		if latest == nil || newerEnrollment(e, latest) {
			latest = e
		}
	}
	if latest == nil {
		return nil, shared.ErrEnrollmentNotFound
	}
	return latest.Clone(), nil
}

func (r *EnrollmentRepo) Update(ctx context.Context, e *enrollment.Enrollment) error {
	if err := r.s.check(ctx, "UpdateEnrollment"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.enrollments[e.ID]
	if !ok {
		return shared.ErrEnrollmentNotFound
	}
	if stored.Version != e.Version {
		return shared.ErrVersionConflict.WithOp("UpdateEnrollment")
	}

	e.Version++
	e.UpdatedAt = r.s.now()
	r.s.enrollments[e.ID] = e.Clone()
	return nil
}

func (r *EnrollmentRepo) ListByUser(ctx context.Context, userID string, filter ...enrollment.Status) ([]*enrollment.Enrollment, error) {
	if err := r.s.check(ctx, "ListEnrollmentsByUser"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*enrollment.Enrollment, 0)
	for _, e := range r.s.enrollments {
		if e.UserID == userID && statusMatches(e.Status, filter) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerEnrollment(out[i], out[j]) })
	return out, nil
}

func (r *EnrollmentRepo) ListByModule(ctx context.Context, moduleID string) ([]*enrollment.Enrollment, error) {
	if err := r.s.check(ctx, "ListEnrollmentsByModule"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*enrollment.Enrollment, 0)
	for _, e := range r.s.enrollments {
		if e.ModuleID == moduleID {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerEnrollment(out[i], out[j]) })
	return out, nil
}

func newerEnrollment(a, b *enrollment.Enrollment) bool {
	if !a.EnrolledAt.Equal(b.EnrolledAt) {
		return a.EnrolledAt.After(b.EnrolledAt)
	}
	return a.ID > b.ID
}

func statusMatches(s enrollment.Status, filter []enrollment.Status) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == s {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepo implements progress.Repository.
type ProgressRepo struct{ s *Store }

var _ progress.Repository = (*ProgressRepo)(nil)

func (r *ProgressRepo) Get(ctx context.Context, userID, contentID string) (*progress.ContentProgress, error) {
	if err := r.s.check(ctx, "GetProgress"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.progress[progressKey{userID, contentID}]
	if !ok {
		return nil, progress.ErrProgressNotFound
	}
	return p.Clone(), nil
}

func (r *ProgressRepo) Create(ctx context.Context, p *progress.ContentProgress) error {
	if err := r.s.check(ctx, "CreateProgress"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := progressKey{p.UserID, p.ContentID}
	if _, ok := r.s.progress[key]; ok {
		return shared.ErrVersionConflict.WithOp("CreateProgress")
	}
	p.Version = 1
	p.UpdatedAt = r.s.now()
	r.s.progress[key] = p.Clone()
	return nil
}

func (r *ProgressRepo) Update(ctx context.Context, p *progress.ContentProgress) error {
	if err := r.s.check(ctx, "UpdateProgress"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := progressKey{p.UserID, p.ContentID}
	stored, ok := r.s.progress[key]
	if !ok {
		return progress.ErrProgressNotFound
	}
	if stored.Version != p.Version {
		return shared.ErrVersionConflict.WithOp("UpdateProgress")
	}
	p.Version++
	p.UpdatedAt = r.s.now()
	r.s.progress[key] = p.Clone()
	return nil
}

func (r *ProgressRepo) ListByUser(ctx context.Context, userID string) ([]*progress.ContentProgress, error) {
	if err := r.s.check(ctx, "ListProgressByUser"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*progress.ContentProgress, 0)
	for k, p := range r.s.progress {
		if k.userID == userID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentID < out[j].ContentID })
	return out, nil
}

func (r *ProgressRepo) ListByUserAndContents(ctx context.Context, userID string, contentIDs []string) ([]*progress.ContentProgress, error) {
	if err := r.s.check(ctx, "ListProgressByContents"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*progress.ContentProgress, 0, len(contentIDs))
	for _, id := range contentIDs {
		if p, ok := r.s.progress[progressKey{userID, id}]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r *ProgressRepo) CountCompleted(ctx context.Context, userID string, contentIDs []string) (int, error) {
	if err := r.s.check(ctx, "CountCompleted"); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[string]struct{}, len(contentIDs))
	n := 0
	for _, id := range contentIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.s.progress[progressKey{userID, id}]; ok && p.IsCompleted() {
			n++
		}
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepo implements streak.Repository.
type StreakRepo struct{ s *Store }

var _ streak.Repository = (*StreakRepo)(nil)

func (r *StreakRepo) Get(ctx context.Context, userID string) (*streak.Streak, error) {
	if err := r.s.check(ctx, "GetStreak"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.streaks[userID]
	if !ok {
		return nil, streak.ErrStreakNotFound
	}
	return st.Clone(), nil
}

func (r *StreakRepo) Create(ctx context.Context, st *streak.Streak) error {
	if err := r.s.check(ctx, "CreateStreak"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.streaks[st.UserID]; ok {
		return shared.ErrVersionConflict.WithOp("CreateStreak")
	}
	st.Version = 1
	st.UpdatedAt = r.s.now()
	r.s.streaks[st.UserID] = st.Clone()
	return nil
}

func (r *StreakRepo) Update(ctx context.Context, st *streak.Streak) error {
	if err := r.s.check(ctx, "UpdateStreak"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.streaks[st.UserID]
	if !ok {
		return streak.ErrStreakNotFound
	}
	if stored.Version != st.Version {
		return shared.ErrVersionConflict.WithOp("UpdateStreak")
	}
	st.Version++
	st.UpdatedAt = r.s.now()
	r.s.streaks[st.UserID] = st.Clone()
	return nil
}

func (r *StreakRepo) Top(ctx context.Context, by streak.RankBy, today time.Time, limit int) ([]*streak.Streak, error) {
	if err := r.s.check(ctx, "TopStreaks"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	out := make([]*streak.Streak, 0, len(r.s.streaks))
	for _, st := range r.s.streaks {
		out = append(out, st.Clone())
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return streak.Less(out[i], out[j], by, today) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
