// Package web serves stored benchmark runs over HTTP.
package web

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/TreeWu/mongo-perf/history"
	"github.com/TreeWu/mongo-perf/report"
)

// RunReader lists stored runs, newest first.
type RunReader interface {
	Runs(ctx context.Context, f report.RunFilter) ([]report.Run, error)
}

type Server struct {
	addr   string
	store  RunReader
	router *gin.Engine
}

func NewServer(addr string, store RunReader) *Server {
	s := &Server{addr: addr, store: store}

	// 创建 Gin 路由
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.GET("/results", s.HandleResults)
	router.GET("/raw", s.HandleRaw)
	router.GET("/history", s.HandleHistory)
	s.router = router
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving until the listener fails.
func (s *Server) Start() error {
	log.WithField("addr", s.addr).Info("结果服务器启动")
	return s.router.Run(s.addr)
}

// HandleResults lists stored runs matching label, version and platform.
func (s *Server) HandleResults(c *gin.Context) {
	var q ResultsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	runs, err := s.store.Runs(c.Request.Context(), report.RunFilter{
		Label:    q.Label,
		Version:  q.Version,
		Platform: q.Platform,
		Limit:    q.Limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if runs == nil {
		runs = []report.Run{}
	}
	c.JSON(http.StatusOK, runs)
}

// HandleRaw returns the newest run for a label.
func (s *Server) HandleRaw(c *gin.Context) {
	var q RawQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	runs, err := s.store.Runs(c.Request.Context(), report.RunFilter{Label: q.Label, Limit: 1})
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(runs) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no run labelled " + q.Label})
		return
	}
	c.JSON(http.StatusOK, runs[0])
}

// HandleHistory returns one test's best throughput per stored run, oldest
// first.
func (s *Server) HandleHistory(c *gin.Context) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	runs, err := s.store.Runs(c.Request.Context(), report.RunFilter{Label: q.Label, Limit: q.Limit})
	if err != nil {
		s.fail(c, err)
		return
	}
	points := FromRuns(runs).Series(q.Name)
	if points == nil {
		points = []history.Point{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Name: q.Name, Points: points})
}

// FromRuns turns newest-first runs into a history. A run's revision is its
// server version and date.
func FromRuns(runs []report.Run) history.History {
	entries := make([]history.Entry, len(runs))
	for i, run := range runs {
		e := history.Entry{
			Revision: run.Version + "@" + run.RunDate,
			Order:    len(runs) - 1 - i,
		}
		e.Data.Results = run.Results
		entries[i] = e
	}
	return history.New(entries...)
}

func (s *Server) fail(c *gin.Context, err error) {
	log.WithError(err).WithField("path", c.Request.URL.Path).Error("查询结果失败")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"query":  c.Request.URL.RawQuery,
			"status": c.Writer.Status(),
		}).Debug("request")
	}
}
