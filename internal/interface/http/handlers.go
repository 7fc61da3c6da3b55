package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/learnhub/internal/application/query"
	"github.com/alem-hub/learnhub/internal/domain/enrollment"
	"github.com/alem-hub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

// EnrollRequest is the body of POST /enrollments.
type EnrollRequest struct {
	ModuleID string `json:"moduleId" binding:"required"`
}

// ContentRequest is the body of POST /progress/content/start.
type ContentRequest struct {
	ContentID string `json:"contentId" binding:"required"`
}

// CompleteContentRequest is the body of POST /progress/content/complete.
type CompleteContentRequest struct {
	ContentID string   `json:"contentId" binding:"required"`
	Score     *float64 `json:"score" binding:"omitempty,gte=0"`
	MaxScore  *float64 `json:"maxScore" binding:"omitempty,gt=0"`
}

// UpdateProgressRequest is the body of POST /progress/content/update.
// Out-of-range percentages are clamped by the service.
type UpdateProgressRequest struct {
	ContentID          string `json:"contentId" binding:"required"`
	ProgressPercentage *int   `json:"progressPercentage" binding:"required"`
}

// ListEnrollmentsQuery holds the GET /enrollments filter. Status may list
// several comma-separated values.
type ListEnrollmentsQuery struct {
	Status string `form:"status"`
}

// LeaderboardQuery holds GET /streak/leaderboard parameters.
type LeaderboardQuery struct {
	Limit int    `form:"limit" binding:"omitempty,min=0"`
	Type  string `form:"type" binding:"omitempty,oneof=current longest"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleEnroll(c *gin.Context) {
	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError("Enroll", err))
		return
	}
	moduleID, err := shared.ParseID("moduleId", req.ModuleID)
	if err != nil {
		writeError(c, err)
		return
	}

	e, err := s.deps.Enrollments.Enroll(c.Request.Context(), identityOf(c).UserID, moduleID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, query.NewEnrollmentDTO(e))
}

func (s *Server) handleListEnrollments(c *gin.Context) {
	var q ListEnrollmentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindError("ListEnrollments", err))
		return
	}
	filter, err := parseStatuses(q.Status)
	if err != nil {
		writeError(c, err)
		return
	}

	list, err := s.deps.Enrollments.List(c.Request.Context(), identityOf(c).UserID, filter...)
	if err != nil {
		writeError(c, err)
		return
	}
	writeList(c, query.NewEnrollmentDTOs(list), len(list))
}

func (s *Server) handleGetEnrollment(c *gin.Context) {
	s.enrollmentAction(c, s.deps.Enrollments.Get)
}

func (s *Server) handlePause(c *gin.Context) {
	s.enrollmentAction(c, s.deps.Enrollments.Pause)
}

func (s *Server) handleResume(c *gin.Context) {
	s.enrollmentAction(c, s.deps.Enrollments.Resume)
}

func (s *Server) handleCompleteEnrollment(c *gin.Context) {
	s.enrollmentAction(c, s.deps.Enrollments.Complete)
}

func (s *Server) handleUnenroll(c *gin.Context) {
	s.enrollmentAction(c, s.deps.Enrollments.Unenroll)
}

type enrollmentOp = func(ctx context.Context, userID, enrollmentID string) (*enrollment.Enrollment, error)

func (s *Server) enrollmentAction(c *gin.Context, op enrollmentOp) {
	id, err := shared.ParseID("id", c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	e, err := op(c.Request.Context(), identityOf(c).UserID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewEnrollmentDTO(e))
}

func parseStatuses(raw string) ([]enrollment.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []enrollment.Status
	for _, part := range strings.Split(raw, ",") {
		st, err := enrollment.ParseStatus(part)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleStartContent(c *gin.Context) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError("MarkStarted", err))
		return
	}
	contentID, err := shared.ParseID("contentId", req.ContentID)
	if err != nil {
		writeError(c, err)
		return
	}

	p, err := s.deps.Progress.MarkStarted(c.Request.Context(), identityOf(c).UserID, contentID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewContentProgressDTO(p))
}

func (s *Server) handleCompleteContent(c *gin.Context) {
	var req CompleteContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError("MarkComplete", err))
		return
	}
	contentID, err := shared.ParseID("contentId", req.ContentID)
	if err != nil {
		writeError(c, err)
		return
	}

	p, err := s.deps.Progress.MarkComplete(c.Request.Context(), identityOf(c).UserID, contentID, req.Score, req.MaxScore)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewContentProgressDTO(p))
}

func (s *Server) handleUpdateProgress(c *gin.Context) {
	var req UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError("UpdateProgress", err))
		return
	}
	contentID, err := shared.ParseID("contentId", req.ContentID)
	if err != nil {
		writeError(c, err)
		return
	}

	p, err := s.deps.Progress.UpdateProgress(c.Request.Context(), identityOf(c).UserID, contentID, *req.ProgressPercentage)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewContentProgressDTO(p))
}

func (s *Server) handleGetContentProgress(c *gin.Context) {
	contentID, err := shared.ParseID("contentId", c.Param("contentId"))
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := s.deps.Progress.Get(c.Request.Context(), identityOf(c).UserID, contentID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewContentProgressDTO(p))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS VIEWS & STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleModuleProgress(c *gin.Context) {
	moduleID, err := shared.ParseID("moduleId", c.Param("moduleId"))
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := s.deps.ProgressViews.ModuleProgress(c.Request.Context(), query.GetModuleProgressQuery{
		Viewer:   identityOf(c).Viewer(),
		UserID:   strings.TrimSpace(c.Param("userId")),
		ModuleID: moduleID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

func (s *Server) handleOverview(c *gin.Context) {
	result, err := s.deps.ProgressViews.Overview(c.Request.Context(), query.GetOverviewQuery{
		Viewer: identityOf(c).Viewer(),
		UserID: strings.TrimSpace(c.Param("userId")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

func (s *Server) handleModuleStats(c *gin.Context) {
	moduleID, err := shared.ParseID("moduleId", c.Param("moduleId"))
	if err != nil {
		writeError(c, err)
		return
	}
	stats, err := s.deps.Statistics.ModuleStats(c.Request.Context(), moduleID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleStreakStatus(c *gin.Context) {
	snap, err := s.deps.StreakReads.GetStatus(c.Request.Context(), identityOf(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewStreakDTO(snap))
}

func (s *Server) handleStreakUpdate(c *gin.Context) {
	snap, err := s.deps.Streaks.RecordActivity(c.Request.Context(), identityOf(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewStreakDTO(snap))
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	var q LeaderboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindError("GetLeaderboard", err))
		return
	}
	result, err := s.deps.StreakReads.Leaderboard(c.Request.Context(), query.GetLeaderboardQuery{Limit: q.Limit, Type: q.Type})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, result)
}
