package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/studybuddy/internal/gateway"
	"github.com/abhisek/studybuddy/internal/learner"
)

type messageRequest struct {
	Text string `json:"text" binding:"required,max=4000"`
}

type progressRequest struct {
	CurrentStreak int      `json:"currentStreak" binding:"gte=0"`
	XP            int      `json:"xp" binding:"gte=0"`
	RecentTopics  []string `json:"recentTopics" binding:"max=20"`
}

type conversationView struct {
	ChildID     string              `json:"childId"`
	Profile     learner.UserProfile `json:"profile"`
	History     any                 `json:"history"`
	Suggestions []string            `json:"suggestions"`
}

func (s *Server) openConversation(c *gin.Context) {
	var profile learner.UserProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		fail(c, http.StatusBadRequest, "invalid profile")
		return
	}
	gw, err := s.manager.Open(c.Request.Context(), profile)
	if err != nil {
		s.logger.Info("open conversation rejected", zap.Error(err))
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, conversationView{
		ChildID:     gw.Profile().ID,
		Profile:     gw.Profile(),
		History:     gw.History(),
		Suggestions: gw.SuggestedQuestions(),
	})
}

func (s *Server) closeConversation(c *gin.Context) {
	if _, found := s.conversation(c); !found {
		return
	}
	s.manager.Close(c.Param("id"))
	ok(c, nil)
}

func (s *Server) sendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "text is required")
		return
	}
	res, err := s.manager.Send(c.Request.Context(), c.Param("id"), req.Text, gateway.SendOptions{})
	switch {
	case errors.Is(err, gateway.ErrUnknownConversation):
		fail(c, http.StatusNotFound, "conversation not open")
		return
	case errors.Is(err, gateway.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, "text is required")
		return
	case err != nil:
		fail(c, http.StatusConflict, err.Error())
		return
	}
	ok(c, res)
}

func (s *Server) getHistory(c *gin.Context) {
	gw, found := s.conversation(c)
	if !found {
		return
	}
	ok(c, gw.History())
}

func (s *Server) clearHistory(c *gin.Context) {
	gw, found := s.conversation(c)
	if !found {
		return
	}
	if err := gw.ClearHistory(c.Request.Context()); err != nil {
		s.logger.Warn("clear history failed", zap.String("child_id", c.Param("id")), zap.Error(err))
		fail(c, http.StatusInternalServerError, "could not clear history")
		return
	}
	ok(c, nil)
}

func (s *Server) updateLesson(c *gin.Context) {
	gw, found := s.conversation(c)
	if !found {
		return
	}
	var lesson learner.LessonContext
	if err := c.ShouldBindJSON(&lesson); err != nil {
		fail(c, http.StatusBadRequest, "invalid lesson context")
		return
	}
	if err := gw.UpdateLessonContext(&lesson); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, gw.SuggestedQuestions())
}

func (s *Server) clearLesson(c *gin.Context) {
	gw, found := s.conversation(c)
	if !found {
		return
	}
	_ = gw.UpdateLessonContext(nil)
	ok(c, gw.SuggestedQuestions())
}

func (s *Server) updateProgress(c *gin.Context) {
	gw, found := s.conversation(c)
	if !found {
		return
	}
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid progress")
		return
	}
	gw.UpdateProgress(req.CurrentStreak, req.XP, req.RecentTopics)
	ok(c, nil)
}

func (s *Server) getSuggestions(c *gin.Context) {
	gw, found := s.conversation(c)
	if !found {
		return
	}
	ok(c, gw.SuggestedQuestions())
}

// conversation resolves the :id conversation or writes a 404.
func (s *Server) conversation(c *gin.Context) (*gateway.Gateway, bool) {
	gw, found := s.manager.Get(c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, "conversation not open")
	}
	return gw, found
}
