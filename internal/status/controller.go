package status

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/latoulicious/Sasayaki/pkg/database"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// AnswerSource lists archived answers
type AnswerSource interface {
	GetAnswers(ctx context.Context, query *database.AnswerQuery) ([]*database.AnswerRecord, error)
}

// Controller exposes the pipeline over HTTP
type Controller struct {
	api      *echo.Group
	pipeline pipeline.PipelineManager
	answers  AnswerSource
}

// NewController creates a controller. answers may be nil when the archive is disabled.
func NewController(api *echo.Group, p pipeline.PipelineManager, answers AnswerSource) *Controller {
	return &Controller{api: api, pipeline: p, answers: answers}
}

// InitRoutes registers the read routes on the group and the mutating
// routes on write, which may carry extra middleware
func (controller *Controller) InitRoutes(write *echo.Group) {
	controller.api.GET("/health", controller.Health)
	controller.api.GET("/status", controller.Status)
	controller.api.GET("/components", controller.Components)
	controller.api.GET("/components/:name", controller.Component)
	controller.api.GET("/metrics", controller.Metrics)
	controller.api.GET("/events", controller.Events)
	controller.api.GET("/answers", controller.Answers)

	write.POST("/input", controller.SubmitInput)
	write.POST("/recovery", controller.Recover)
}

// InputRequest is the body of POST /input
type InputRequest struct {
	Text string `json:"text"`
}

// RecoveryRequest is the body of POST /recovery
type RecoveryRequest struct {
	Reason string `json:"reason"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Healthy bool                   `json:"healthy"`
	State   pipeline.PipelineState `json:"state"`
	Overall pipeline.OverallStatus `json:"overall"`
}

// Health reports 200 while the pipeline is healthy and 503 otherwise
func (controller *Controller) Health(c echo.Context) error {
	report := controller.pipeline.Status()
	healthy := controller.pipeline.IsHealthy()

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, HealthResponse{Healthy: healthy, State: report.State, Overall: report.Overall})
}

// Status returns the full status report
func (controller *Controller) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, controller.pipeline.Status())
}

// Components returns every component health record
func (controller *Controller) Components(c echo.Context) error {
	return c.JSON(http.StatusOK, controller.pipeline.Status().Components)
}

// Component returns one component health record
func (controller *Controller) Component(c echo.Context) error {
	name := c.Param("name")
	for _, record := range controller.pipeline.Status().Components {
		if record.Name == name {
			return c.JSON(http.StatusOK, record)
		}
	}
	return c.JSON(http.StatusNotFound, map[string]string{"error": "component not found"})
}

// Metrics returns the pipeline counters, queue depths and per stage telemetry
func (controller *Controller) Metrics(c echo.Context) error {
	report := controller.pipeline.Status()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"counters":         report.Metrics,
		"queue_depths":     report.QueueDepths,
		"queue_high_water": report.Telemetry.QueueHighWater,
		"stage_latency":    report.Telemetry.StageLatency,
		"stage_errors":     report.Telemetry.StageErrors,
		"recoveries":       report.Telemetry.Recoveries,
		"state_changes":    report.Telemetry.StateChanges,
		"uptime":           report.Uptime,
	})
}

// Events returns the most recent events, newest last
func (controller *Controller) Events(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	return c.JSON(http.StatusOK, controller.pipeline.Events(limit))
}

// Answers returns archived answers, newest first
func (controller *Controller) Answers(c echo.Context) error {
	if controller.answers == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "answer archive is disabled"})
	}

	answers, err := controller.answers.GetAnswers(c.Request().Context(), &database.AnswerQuery{
		PipelineID: c.QueryParam("pipeline_id"),
		Category:   c.QueryParam("category"),
		Limit:      queryInt(c, "limit", 20),
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, answers)
}

// SubmitInput queues typed text as manual input
func (controller *Controller) SubmitInput(c echo.Context) error {
	var req InputRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := controller.pipeline.SubmitManualInput(req.Text); err != nil {
		return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

// Recover runs a full system recovery
func (controller *Controller) Recover(c echo.Context) error {
	var req RecoveryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.Reason == "" {
		req.Reason = "requested over http"
	}

	if err := controller.pipeline.FullRecovery(req.Reason); err != nil {
		return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, controller.pipeline.Status())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrPipelineNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(c echo.Context, name string, def int) int {
	value, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || value <= 0 {
		return def
	}
	return value
}
