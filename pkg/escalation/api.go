package escalation

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/helpdesk/escalation-engine/pkg/apiresponses"
	"github.com/helpdesk/escalation-engine/pkg/system"
)

// BatchRunner triggers one batch run. Implemented by Orchestrator; the
// indirection keeps the controller testable without real stores.
type BatchRunner interface {
	RunBatch(ctx context.Context, req BatchRequest) (BatchReport, error)
}

// APIController exposes the engine over HTTP: manual batch trigger, rule
// listing and the per-ticket escalation history.
type APIController struct {
	log            *zap.SugaredLogger
	runner         BatchRunner
	rules          RuleStore
	logs           LogStore
	middleware     gin.HandlerFunc
	triggerLimiter gin.HandlerFunc
}

func NewAPIController(log *zap.SugaredLogger, runner BatchRunner, rules RuleStore, logs LogStore) *APIController {
	return &APIController{
		log:    log,
		runner: runner,
		rules:  rules,
		logs:   logs,
	}
}

// WithMiddleware sets a middleware applied to every route of the controller.
func (c *APIController) WithMiddleware(mw gin.HandlerFunc) *APIController {
	c.middleware = mw
	return c
}

// WithTriggerLimiter sets an extra middleware for the run endpoint only.
// Batch runs are expensive, so they get a tighter rate limit.
func (c *APIController) WithTriggerLimiter(mw gin.HandlerFunc) *APIController {
	c.triggerLimiter = mw
	return c
}

// BasePath returns the base path for escalation routes.
func (c *APIController) BasePath() string {
	return "escalation"
}

// Handlers returns middleware to apply to all routes.
func (c *APIController) Handlers() []gin.HandlerFunc {
	if c.middleware != nil {
		return []gin.HandlerFunc{c.middleware}
	}
	return nil
}

// Register registers the escalation routes.
func (c *APIController) Register(rg *gin.RouterGroup) error {
	if c.triggerLimiter != nil {
		rg.POST("run", c.triggerLimiter, instrumentedHandler("handleRunBatch", c.handleRunBatch))
	} else {
		rg.POST("run", instrumentedHandler("handleRunBatch", c.handleRunBatch))
	}
	rg.GET("rules", instrumentedHandler("handleListRules", c.handleListRules))
	rg.GET("logs/:ticketID", instrumentedHandler("handleListLogs", c.handleListLogs))
	return nil
}

func (c *APIController) handleRunBatch(gc *gin.Context) {
	var req BatchRequest
	if gc.Request.ContentLength > 0 {
		if err := gc.ShouldBindJSON(&req); err != nil {
			apiresponses.RespondBadRequest(gc, "invalid run request: "+err.Error())
			return
		}
	}

	report, err := c.runner.RunBatch(gc.Request.Context(), req)
	if err != nil {
		apiresponses.RespondInternalError(gc, "run escalation batch", err, system.GetReqLogger(gc, c.log))
		return
	}
	apiresponses.RespondOK(gc, report)
}

func (c *APIController) handleListRules(gc *gin.Context) {
	rules, err := c.rules.FetchActiveRules(gc.Request.Context())
	if err != nil {
		apiresponses.RespondInternalError(gc, "list escalation rules", err, system.GetReqLogger(gc, c.log))
		return
	}
	if rules == nil {
		rules = []EscalationRule{}
	}
	apiresponses.RespondOK(gc, rules)
}

func (c *APIController) handleListLogs(gc *gin.Context) {
	ticketID := gc.Param("ticketID")
	if ticketID == "" {
		apiresponses.RespondBadRequest(gc, "ticketID is required")
		return
	}

	entries, err := c.logs.ListByTicket(gc.Request.Context(), ticketID)
	if err != nil {
		apiresponses.RespondInternalError(gc, "list escalation logs", err, system.GetReqLogger(gc, c.log))
		return
	}
	if entries == nil {
		entries = []EscalationLog{}
	}
	apiresponses.RespondOK(gc, entries)
}
