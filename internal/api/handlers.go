package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/optisuite/optisuite/internal/batch"
	"github.com/optisuite/optisuite/internal/claude"
	"github.com/optisuite/optisuite/internal/revenue"
	"github.com/optisuite/optisuite/internal/workflow"
)

// errorResponse is the error envelope returned by every endpoint.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, errorResponse{Error: errorDetail{Type: errType, Message: message}})
}

func writeBindError(c *gin.Context, err error) {
	writeError(c, http.StatusBadRequest, "invalid_request_error", fmt.Sprintf("Invalid request: %v", err))
}

// writeUpstreamError maps client errors to response codes: upstream API
// errors keep their status, everything else is a 502.
func writeUpstreamError(c *gin.Context, err error) {
	var apiErr *claude.APIError
	if errors.As(err, &apiErr) {
		writeError(c, apiErr.StatusCode, "upstream_error", apiErr.Message)
		return
	}
	writeError(c, http.StatusBadGateway, "upstream_error", err.Error())
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type generateRequest struct {
	ContentType  string         `json:"content_type" binding:"required"`
	Topic        string         `json:"topic" binding:"required"`
	Requirements map[string]any `json:"requirements"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	text, err := s.deps.Generator.Generate(c.Request.Context(), req.ContentType, req.Topic, req.Requirements)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"content_type": req.ContentType,
		"topic":        req.Topic,
		"content":      text,
	})
}

type optimizeRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Goal   string `json:"goal"`
}

func (s *Server) handleOptimize(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	optimized, err := s.deps.Generator.OptimizePrompt(c.Request.Context(), req.Prompt, req.Goal)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"optimized_prompt": optimized})
}

type batchRequest struct {
	Prompts    []string `json:"prompts" binding:"required,min=1"`
	System     string   `json:"system"`
	MaxWorkers int      `json:"max_workers"`
}

type batchItem struct {
	Index int    `json:"index"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	workers := req.MaxWorkers
	if workers <= 0 {
		workers = int(s.maxWorkers.Load())
	}
	results := batch.Process(c.Request.Context(), s.deps.Messenger, req.Prompts, batch.Options{
		System:     req.System,
		MaxWorkers: workers,
	})
	items := make([]batchItem, len(results))
	for i, result := range results {
		items[i] = batchItem{Index: result.Index}
		if result.Err != nil {
			items[i].Error = result.Err.Error()
		} else if result.Response != nil {
			items[i].Text = result.Response.Text
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": items})
}

func (s *Server) handleListWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workflows": s.deps.Engine.Names()})
}

type executeWorkflowRequest struct {
	Context map[string]any `json:"context"`
}

func (s *Server) handleExecuteWorkflow(c *gin.Context) {
	var req executeWorkflowRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
	}
	name := c.Param("name")
	results, err := s.deps.Engine.Execute(c.Request.Context(), name, req.Context)
	if err != nil {
		if errors.Is(err, workflow.ErrUnknownWorkflow) {
			writeError(c, http.StatusNotFound, "not_found_error", err.Error())
			return
		}
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow": name, "results": results})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Stats.Snapshot())
}

type estimateRequest struct {
	ServiceType string `json:"service_type" binding:"required"`

	// Quantity may legitimately be zero (zero revenue, zero margin), so the
	// negative-value check in Pricing.Estimate is the only validation.
	Quantity    int     `json:"quantity"`
	CustomPrice float64 `json:"custom_price"`
}

func (s *Server) handleEstimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	estimate, err := s.deps.Pricing.Estimate(req.ServiceType, req.Quantity, req.CustomPrice)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, estimate)
}

func (s *Server) handleListTransactions(c *gin.Context) {
	transactions, err := s.deps.Ledger.List(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "ledger_error", err.Error())
		return
	}
	total, err := s.deps.Ledger.Total(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "ledger_error", err.Error())
		return
	}
	if transactions == nil {
		transactions = []revenue.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions, "total": total})
}

type logTransactionRequest struct {
	Service  string            `json:"service" binding:"required"`
	Amount   float64           `json:"amount" binding:"required"`
	Tokens   int64             `json:"tokens"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleLogTransaction(c *gin.Context) {
	var req logTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	tx, err := s.deps.Ledger.Log(c.Request.Context(), revenue.Transaction{
		Service:  req.Service,
		Amount:   req.Amount,
		Tokens:   req.Tokens,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	c.JSON(http.StatusCreated, tx)
}

type buildPackageRequest struct {
	Name     string                `json:"package_name" binding:"required"`
	Services []revenue.ServiceSpec `json:"services" binding:"required,min=1"`
}

func (s *Server) handleBuildPackage(c *gin.Context) {
	var req buildPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	pkg, err := s.deps.Packager.Build(c.Request.Context(), req.Name, req.Services)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, pkg)
}
