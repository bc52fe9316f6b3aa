// Package httpapi exposes the validation engine over HTTP using gin.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/c360studio/defcheck/catalog"
	"github.com/c360studio/defcheck/contract"
	"github.com/c360studio/defcheck/rules"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 4 << 20

// Validator is the orchestrator surface served over HTTP.
type Validator interface {
	Validate(ctx context.Context, req contract.Request) (*contract.Result, error)
	ValidateDefinition(ctx context.Context, def contract.Definition, vctx *contract.Context) (*contract.Result, error)
	BatchValidate(ctx context.Context, items []contract.Request, maxConcurrency int) ([]*contract.Result, error)
}

// Catalog is the rule catalog surface served over HTTP. *catalog.Store
// implements it.
type Catalog interface {
	Snapshot() (*catalog.Snapshot, error)
	Reload(ctx context.Context) (*catalog.Snapshot, error)
}

// Server holds the HTTP handlers.
type Server struct {
	validator Validator
	catalog   Catalog
	metrics   http.Handler
	logger    *slog.Logger
}

// NewServer creates a Server. metrics may be nil, in which case /metrics is
// not registered.
func NewServer(v Validator, cat Catalog, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{validator: v, catalog: cat, metrics: metrics, logger: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.Register(r)
	return r
}

// Register adds the routes to r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := r.Group("/v1")
	v1.POST("/validate", s.handleValidate)
	v1.POST("/validate/definition", s.handleValidateDefinition)
	v1.POST("/batch", s.handleBatch)
	v1.GET("/catalog", s.handleCatalog)
	v1.POST("/catalog/reload", s.handleReload)
	v1.GET("/schema/:version", s.handleSchema)
}

// DefinitionRequest is the body of POST /v1/validate/definition.
type DefinitionRequest struct {
	Definition contract.Definition `json:"definition"`
	Context    *contract.Context   `json:"context,omitempty"`
}

// BatchRequest is the body of POST /v1/batch.
type BatchRequest struct {
	Items          []contract.Request `json:"items"`
	MaxConcurrency int                `json:"max_concurrency,omitempty"`
}

// BatchResponse is the response of POST /v1/batch.
type BatchResponse struct {
	Results []*contract.Result `json:"results"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// CatalogResponse is the response of GET /v1/catalog.
type CatalogResponse struct {
	Version  string             `json:"version"`
	Source   string             `json:"source"`
	LoadedAt string             `json:"loaded_at"`
	Profile  string             `json:"profile,omitempty"`
	Profiles []string           `json:"profiles"`
	Rules    []rules.Definition `json:"rules"`
	Count    int                `json:"count"`
}

// ReloadResponse is the response of POST /v1/catalog/reload.
type ReloadResponse struct {
	Success   bool   `json:"success"`
	Version   string `json:"version,omitempty"`
	RuleCount int    `json:"rule_count"`
	Message   string `json:"message,omitempty"`
}

// HealthResponse is the response of GET /healthz.
type HealthResponse struct {
	Status         string `json:"status"`
	CatalogVersion string `json:"catalog_version,omitempty"`
}

func (s *Server) handleValidate(c *gin.Context) {
	var req contract.Request
	if !s.bind(c, &req) {
		return
	}
	res, err := s.validator.Validate(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleValidateDefinition(c *gin.Context) {
	var req DefinitionRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.validator.ValidateDefinition(c.Request.Context(), req.Definition, req.Context)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleBatch(c *gin.Context) {
	var req BatchRequest
	if !s.bind(c, &req) {
		return
	}
	results, err := s.validator.BatchValidate(c.Request.Context(), req.Items, req.MaxConcurrency)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, BatchResponse{Results: results})
}

func (s *Server) handleCatalog(c *gin.Context) {
	snap, err := s.catalog.Snapshot()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}

	profile := c.Query("profile")
	defs := snap.Rules()
	if profile != "" {
		defs, err = snap.RulesFor(profile)
		if err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Field: "profile"})
			return
		}
	}

	c.JSON(http.StatusOK, CatalogResponse{
		Version:  snap.Version(),
		Source:   snap.Source(),
		LoadedAt: snap.LoadedAt().Format(time.RFC3339),
		Profile:  profile,
		Profiles: snap.Profiles(),
		Rules:    defs,
		Count:    len(defs),
	})
}

func (s *Server) handleReload(c *gin.Context) {
	snap, err := s.catalog.Reload(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if catalog.IsConfigError(err) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, ReloadResponse{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ReloadResponse{
		Success:   true,
		Version:   snap.Version(),
		RuleCount: snap.Len(),
		Message:   "catalog reloaded",
	})
}

func (s *Server) handleSchema(c *gin.Context) {
	data, err := contract.Schema(c.Param("version"))
	if err != nil {
		if errors.Is(err, contract.ErrUnknownVersion) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Field: "version"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/schema+json", data)
}

func (s *Server) handleHealth(c *gin.Context) {
	snap, err := s.catalog.Snapshot()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", CatalogVersion: snap.Version()})
}

// bind decodes the JSON body into dst and writes a 400 on failure.
func (s *Server) bind(c *gin.Context, dst any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return false
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeError maps engine errors to status codes. Degraded results are not
// errors and never reach this point.
func (s *Server) writeError(c *gin.Context, err error) {
	var cv *contract.ContractViolation
	switch {
	case errors.As(err, &cv):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: cv.Error(), Field: cv.Field})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled"})
	default:
		s.logger.Error("Validation request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
