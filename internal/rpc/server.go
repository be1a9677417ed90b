package rpc

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/born-ml/drift/internal/worker"
	"github.com/born-ml/drift/version"
)

// Server exposes one worker over HTTP.
type Server struct {
	worker *worker.Worker
}

// NewServer creates a server for the given worker.
func NewServer(w *worker.Worker) *Server {
	return &Server{worker: w}
}

// Routes builds the worker's HTTP handler.
func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/api/module/create", s.createModule)
	r.POST("/api/module/param", s.moduleParam)
	r.POST("/api/module/forward", s.forward)
	r.POST("/api/module/backward", s.backward)
	r.POST("/api/param/get", s.paramValue)
	r.POST("/api/rref/retain", s.retain)
	r.POST("/api/rref/release", s.release)
	r.POST("/api/context/end", s.endContext)
	r.POST("/api/optim/step", s.optimStep)
	r.POST("/api/optim/close", s.optimClose)
	r.GET("/api/version", s.version)

	return r
}

// abortWithError writes the error envelope with the status and code the
// error maps to.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "worker", s.worker.Name(), "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Error: err.Error()})
}

func (s *Server) createModule(c *gin.Context) {
	var req CreateModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeInternal, Error: err.Error()})
		return
	}

	h := s.worker.CreateModule(req.Rows, req.Cols, req.Seed)
	c.JSON(http.StatusOK, CreateModuleResponse{Module: h})
}

func (s *Server) moduleParam(c *gin.Context) {
	var req ModuleParamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeInternal, Error: err.Error()})
		return
	}

	param, err := s.worker.ModuleParam(req.Module)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ModuleParamResponse{Param: param})
}

func (s *Server) forward(c *gin.Context) {
	var req ForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeInternal, Error: err.Error()})
		return
	}

	out, err := s.worker.Forward(req.Context, req.Module, req.Input)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ForwardResponse{Output: out})
}

func (s *Server) backward(c *gin.Context) {
	var req BackwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeInternal, Error: err.Error()})
		return
	}

	inGrad, err := s.worker.ModuleBackward(req.Context, req.Module, req.Upstream)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, BackwardResponse{InputGrad: inGrad})
}

func (s *Server) paramValue(c *gin.Context) {
	var req ParamValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeInternal, Error: err.Error()})
		return
	}

	v, err := s.worker.ParamValue(req.Param)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ParamValueResponse{Value: v})
}

func (s *Server) retain(c *gin.Context) {
	var req HandleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeInternal, Error: err.Error()})
		return
	}

	if err := s.worker.Retain(req.Handle); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) release(c *gin.Context) {
	var req HandleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeInternal, Error: err.Error()})
		return
	}

	if err := s.worker.Release(req.Handle); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) endContext(c *gin.Context) {
	var req EndContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeInternal, Error: err.Error()})
		return
	}

	if err := s.worker.EndContext(req.Context); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) optimStep(c *gin.Context) {
	var req OptimStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeInternal, Error: err.Error()})
		return
	}

	if err := s.worker.OptimStep(req.Instance, req.Variant, req.Args, req.Params, req.Context); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) optimClose(c *gin.Context) {
	var req OptimCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeInternal, Error: err.Error()})
		return
	}

	s.worker.CloseOptimizer(req.Instance)
	c.Status(http.StatusOK)
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, VersionResponse{Worker: s.worker.Name(), Version: version.Version})
}
