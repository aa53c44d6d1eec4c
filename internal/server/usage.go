package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	usageservice "github.com/hakwonlab/wonpay/internal/usage/service"
)

func (s *Server) handleIngestUsage(c *gin.Context) {
	var report usageservice.Report
	if err := c.ShouldBindJSON(&report); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snapshot, err := s.usageSvc.Ingest(c.Request.Context(), report)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func countParam(c *gin.Context) (int64, bool) {
	raw := c.DefaultQuery("count", "1")
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || count <= 0 {
		return 0, false
	}
	return count, true
}

func (s *Server) handleCanAddStudents(c *gin.Context) {
	count, ok := countParam(c)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	decision, err := s.enforcer.CanAddStudents(c.Request.Context(), c.Param("academyId"), count)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) handleCanAddTeachers(c *gin.Context) {
	count, ok := countParam(c)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	decision, err := s.enforcer.CanAddTeachers(c.Request.Context(), c.Param("academyId"), count)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) handleHasFeature(c *gin.Context) {
	enabled, err := s.enforcer.HasFeature(c.Request.Context(), c.Param("academyId"), c.Param("feature"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feature": c.Param("feature"),
		"enabled": enabled,
	})
}

func (s *Server) handleCheckLimits(c *gin.Context) {
	report, err := s.enforcer.CheckAll(c.Request.Context(), c.Param("academyId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
