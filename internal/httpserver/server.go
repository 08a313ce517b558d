// Package httpserver exposes the analysis store over a small read-only HTTP API.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tracekit/blockscope/internal/model"
)

// QueryStore is the narrow store contract required by the HTTP API.
type QueryStore interface {
	model.RowReader
}

// Server provides an HTTP API for querying blocking analysis results.
type Server struct {
	addr      string
	store     QueryStore
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store QueryStore) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	s.registerRoutes(r)

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.listener = listener
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the bound listen address, useful when the configured port is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/api/health", s.handleHealth)
	r.GET("/api/schema", s.handleSchema)
	r.GET("/api/fields", s.handleFields)
	r.GET("/api/rows", s.handleRows)
	r.GET("/api/reasons", s.handleReasons)
	r.GET("/api/processes", s.handleProcesses)
	r.GET("/api/connections", s.handleConnections)
	r.POST("/api/query", s.handleQuery)
}

// queryOptsFromRequest reads the optional reason/process_id filters.
func queryOptsFromRequest(c *gin.Context) model.QueryOpts {
	opts := model.QueryOpts{Reason: c.Query("reason")}
	if pid, err := strconv.ParseUint(c.Query("process_id"), 10, 32); err == nil {
		opts.ProcessID = uint32(pid)
	}
	return opts
}

func limitFromRequest(c *gin.Context, fallback int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func (s *Server) handleHealth(c *gin.Context) {
	rowCount, err := s.store.TotalRowCount(model.QueryOpts{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).String(),
		"row_count": rowCount,
	})
}

func (s *Server) handleSchema(c *gin.Context) {
	description := s.store.GetSchemaDescription()

	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": description,
		"row_counts":  counts,
	})
}

// handleFields publishes the stable row shape so rendering backends can bind
// columns without importing this module.
func (s *Server) handleFields(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fields": model.RowFields()})
}

func (s *Server) handleRows(c *gin.Context) {
	opts := queryOptsFromRequest(c)
	limit := limitFromRequest(c, model.DefaultRowLimit)

	rows, err := s.store.RowsFiltered(limit, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"connection_id": r.ConnectionID,
			"process_id":    r.ProcessID,
			"reason":        r.Reason,
			"timestamp":     r.Timestamp,
			"duration_ns":   int64(r.Duration),
			"percent":       r.Percent,
			"count":         r.Count,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rows": out, "row_count": len(out)})
}

func (s *Server) handleReasons(c *gin.Context) {
	opts := queryOptsFromRequest(c)

	stats, err := s.store.ReasonBreakdown(opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	totalBlocked, err := s.store.TotalBlockedTime(opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reasons":          stats,
		"total_blocked_ns": totalBlocked,
	})
}

func (s *Server) handleProcesses(c *gin.Context) {
	opts := queryOptsFromRequest(c)
	limit := limitFromRequest(c, model.DefaultTopLimit)

	stats, err := s.store.TopProcesses(limit, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"processes": stats})
}

func (s *Server) handleConnections(c *gin.Context) {
	opts := queryOptsFromRequest(c)
	limit := limitFromRequest(c, model.DefaultTopLimit)

	stats, err := s.store.TopConnections(limit, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": stats})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
