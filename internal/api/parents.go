package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/studybuddy/internal/monitor"
	"github.com/abhisek/studybuddy/internal/reports"
)

const defaultNotificationLimit = 20

func (s *Server) getNotifications(c *gin.Context) {
	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	list, err := s.parents.GetNotifications(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.internal(c, "notifications", err)
		return
	}
	ok(c, list)
}

func (s *Server) getAlerts(c *gin.Context) {
	list, err := s.parents.GetUrgentAlerts(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internal(c, "urgent alerts", err)
		return
	}
	ok(c, list)
}

// pruneAlerts drops urgent alerts older than the ?before= date (default
// today, which clears everything before midnight UTC).
func (s *Server) pruneAlerts(c *gin.Context) {
	before, good := s.date(c, "before")
	if !good {
		return
	}
	n, err := s.parents.PruneUrgentAlerts(c.Request.Context(), c.Param("id"), before)
	if err != nil {
		s.internal(c, "prune alerts", err)
		return
	}
	ok(c, gin.H{"removed": n})
}

func (s *Server) getIncidents(c *gin.Context) {
	list, err := s.parents.GetSafetyIncidents(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internal(c, "incidents", err)
		return
	}
	ok(c, list)
}

func (s *Server) getSummary(c *gin.Context) {
	date, good := s.date(c, "date")
	if !good {
		return
	}
	sum, err := s.parents.GenerateConversationSummary(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		s.internal(c, "summary", err)
		return
	}
	ok(c, sum)
}

func (s *Server) getWeekly(c *gin.Context) {
	end, good := s.date(c, "end")
	if !good {
		return
	}
	week, err := s.parents.GetWeeklySummary(c.Request.Context(), c.Param("id"), end)
	if err != nil {
		s.internal(c, "weekly summary", err)
		return
	}
	ok(c, week)
}

func (s *Server) getDashboard(c *gin.Context) {
	end, good := s.date(c, "end")
	if !good {
		return
	}
	stats, err := s.parents.GetParentDashboardStats(c.Request.Context(), c.Param("id"), end)
	if err != nil {
		s.internal(c, "dashboard", err)
		return
	}
	ok(c, stats)
}

func (s *Server) archiveWeekly(c *gin.Context) {
	if s.archiver == nil {
		fail(c, http.StatusServiceUnavailable, "report archive is not configured")
		return
	}
	end, good := s.date(c, "end")
	if !good {
		return
	}
	report, err := reports.BuildWeekly(c.Request.Context(), s.parents, c.Param("id"), end, s.Now())
	if err != nil {
		s.internal(c, "weekly report", err)
		return
	}
	out, err := s.archiver.Archive(c.Request.Context(), report)
	if err != nil {
		s.logger.Error("archive weekly report failed", zap.String("child_id", c.Param("id")), zap.Error(err))
		fail(c, http.StatusBadGateway, "could not archive report")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": http.StatusCreated, "message": "success", "data": out})
}

// date reads a YYYY-MM-DD query parameter, defaulting to today.
func (s *Server) date(c *gin.Context, param string) (time.Time, bool) {
	d, err := monitor.ParseDate(c.Query(param), s.Now())
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	return d, true
}

func (s *Server) internal(c *gin.Context, what string, err error) {
	s.logger.Error("parent read failed", zap.String("what", what), zap.String("child_id", c.Param("id")), zap.Error(err))
	fail(c, http.StatusInternalServerError, "could not load "+what)
}
