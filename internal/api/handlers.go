package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cosmicds/cosmicds/internal/measurement"
	"github.com/cosmicds/cosmicds/internal/remote"
	"github.com/cosmicds/cosmicds/internal/store"
	"github.com/cosmicds/cosmicds/internal/value"
)

const maxBodySize = 4 << 20

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// studentParam parses the :student path segment.
func studentParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("student"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return 0, false
	}
	return id, true
}

// requireStudent replies 404 unless the student exists.
func (s *Server) requireStudent(c *gin.Context, id int64) bool {
	ok, err := s.store.StudentExists(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return false
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return false
	}
	return true
}

func (s *Server) getStoryState(c *gin.Context) {
	id, ok := studentParam(c)
	if !ok {
		return
	}
	st, err := s.store.GetStoryState(c.Request.Context(), id, c.Param("story"))
	var state value.Value = value.Null{}
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	default:
		state = st.State
	}

	body, err := value.MarshalCanonical(value.Object{"state": state})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) putStoryState(c *gin.Context) {
	id, ok := studentParam(c)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := value.DecodeObject(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be a JSON object: " + err.Error()})
		return
	}
	if !s.requireStudent(c, id) {
		return
	}

	hash, err := s.store.PutStoryState(c.Request.Context(), id, c.Param("story"), state)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash})
}

func (s *Server) newDummyStudent(c *gin.Context) {
	var req remote.NewStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.store.CreateStudent(c.Request.Context(), req.Seed, req.TeamMember)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("student created", "student_id", id, "seed", req.Seed)
	c.JSON(http.StatusOK, remote.NewStudentResponse{Student: remote.StudentRef{ID: id}})
}

func (s *Server) submitMeasurement(c *gin.Context) {
	var p measurement.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if p.GalaxyName == nil || *p.GalaxyName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "galaxy_name is required"})
		return
	}
	if p.StudentID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}
	if !s.requireStudent(c, p.StudentID) {
		return
	}
	if err := s.store.UpsertMeasurement(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listMeasurements(c *gin.Context) {
	id, ok := studentParam(c)
	if !ok {
		return
	}
	list, err := s.store.ListMeasurements(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"measurements": list})
}
